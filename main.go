package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"whale-futures/config"
	"whale-futures/internal/api"
	"whale-futures/internal/app"
	"whale-futures/observability"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		observability.Debug("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		observability.Fatal("failed to load configuration", "error", err)
	}

	observability.InitLoggerWithLevel(cfg.Log.Production, observability.ParseLevel(cfg.Log.Level))
	observability.InitMetrics()

	deps, err := app.BuildDependencies(context.Background(), cfg)
	if err != nil {
		observability.Fatal("failed to initialize dependencies", "error", err)
	}

	application := app.New(cfg, deps)
	router := api.NewRouter(api.NewHandler(application, cfg), cfg)
	desktop := NewDesktop(application)

	// The window loads the dashboard from the router; there are no static
	// assets besides what the templates render.
	err = wails.Run(&options.App{
		Title:  "Whale Futures",
		Width:  1440,
		Height: 900,
		AssetServer: &assetserver.Options{
			Handler: router,
		},
		BackgroundColour: options.NewRGB(15, 23, 42),
		OnStartup:        desktop.startup,
		OnShutdown:       desktop.shutdown,
		Bind: []interface{}{
			desktop,
		},
	})

	if err != nil {
		observability.Fatal("desktop app failed", "error", err)
	}
}
