package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration
type Config struct {
	// Upstream proxy endpoints
	Upstream UpstreamConfig

	// Order polling and price refresh cadence
	Polling PollingConfig

	// Trader discovery and UID lists
	Traders TradersConfig

	// AI summary configuration
	Summary SummaryConfig
	Bedrock BedrockConfig
	OpenAI  OpenAIConfig

	// Optional fallback price source
	Alpaca AlpacaConfig

	// Optional storage backends
	Database DatabaseConfig
	Redis    RedisConfig
	Archive  ArchiveConfig

	// Local credential store
	Settings SettingsConfig

	// Display configuration
	Display DisplayConfig

	// HTTP configuration
	HTTP HTTPConfig

	// Logging configuration
	Log LogConfig
}

// UpstreamConfig holds the proxy endpoints the dashboard polls
type UpstreamConfig struct {
	ProxyBase             string
	OrdersAPI             string
	PricesAPI             string
	AIAPI                 string
	OrdersAIAPI           string
	TradersBaseURL        string
	RequestTimeoutSeconds int
}

// PollingConfig holds the cadence of the two background tasks
type PollingConfig struct {
	PollIntervalMs    int // price refresh period
	PerRequestDelayMs int // pause after every order batch
	BatchSize         int // trader UIDs per orders request
	EmptyListDelayMs  int // wait when the UID list is empty
}

// TradersConfig holds trader discovery parameters
type TradersConfig struct {
	Interval         string
	Limit            int
	Page             int
	OrderBys         []string
	DiscoveryDelayMs int
	SeedUIDs         []string
	VIPUIDs          []string
}

// SummaryConfig holds AI summary configuration
type SummaryConfig struct {
	Provider   string // remote, bedrock or openai
	TopN       int
	OrdersTopN int
	Lang       string
}

// BedrockConfig holds AWS Bedrock configuration
type BedrockConfig struct {
	Region           string
	ModelID          string
	MaxTokens        int
	AnthropicVersion string
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// AlpacaConfig holds Alpaca market data credentials
type AlpacaConfig struct {
	APIKey    string
	APISecret string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds the last-known price cache configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// ArchiveConfig holds S3 snapshot archive configuration
type ArchiveConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// SettingsConfig holds the local credential store configuration
type SettingsConfig struct {
	Dir            string
	Passphrase     string
	InternalAPIKey string // fallback when nothing is stored
}

// DisplayConfig holds presentation settings
type DisplayConfig struct {
	Timezone string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Addr               string
	CORSAllowedOrigins string
	TimeoutSeconds     int
}

// LogConfig holds logger configuration
type LogConfig struct {
	Production bool
	Level      string
}

// Summary providers
const (
	SummaryProviderRemote  = "remote"
	SummaryProviderBedrock = "bedrock"
	SummaryProviderOpenAI  = "openai"
)

const (
	defaultProxyBase      = "http://localhost:8788"
	defaultTradersBaseURL = "https://www.mexc.com/api/platform/futures/copyFutures/api/v1/traders/v2"
)

var defaultOrderBys = []string{"ROI", "PNL", "WIN_RATE", "FOLLOWERS"}

var defaultVIPUIDs = []string{
	"28905362", "71312117", "87698388", "20393898", "61775694", "58298982", "01086225", "74785697", "90901845", "23747691",
	"15480060", "22247145", "80778881", "54447554", "98086898", "93765871", "85581052", "42806597", "8197321", "64877108",
	"7981129", "89989257", "13040215", "70798336", "07695752", "07867898", "01893067", "27337672", "77143655", "91401780",
	"98695755", "94299227", "63070731", "77587922",
}

// fileConfig holds the list-shaped values that are awkward in environment variables
type fileConfig struct {
	SeedUIDs []string `toml:"seed_uids"`
	VIPUIDs  []string `toml:"vip_uids"`
	OrderBys []string `toml:"order_bys"`
}

// Load loads configuration from environment variables and, when CONFIG_FILE is
// set, from a TOML file holding UID lists
func Load() (*Config, error) {
	proxyBase := strings.TrimRight(getEnvString("PROXY_BASE", defaultProxyBase), "/")
	pollMs := getEnvInt("POLL_MS", 3000)

	cfg := &Config{
		Upstream: UpstreamConfig{
			ProxyBase:             proxyBase,
			OrdersAPI:             getEnvString("ORDERS_API", proxyBase+"/api/orders"),
			PricesAPI:             getEnvString("PRICES_API", proxyBase+"/api/prices"),
			AIAPI:                 getEnvString("AI_API", proxyBase+"/api/AI/recommend"),
			OrdersAIAPI:           getEnvString("ORDERS_AI_API", proxyBase+"/api/AI/recommend-orders"),
			TradersBaseURL:        getEnvString("TRADERS_BASE_URL", defaultTradersBaseURL),
			RequestTimeoutSeconds: getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 30),
		},
		Polling: PollingConfig{
			PollIntervalMs:    pollMs,
			PerRequestDelayMs: getEnvInt("PER_REQ_DELAY_MS", 90),
			BatchSize:         getEnvInt("BATCH_SIZE", 3),
			EmptyListDelayMs:  getEnvInt("EMPTY_LIST_DELAY_MS", max(pollMs, 2000)),
		},
		Traders: TradersConfig{
			Interval:         getEnvString("TRADERS_INTERVAL", "ALL"),
			Limit:            getEnvInt("TRADERS_LIMIT", 100),
			Page:             getEnvInt("TRADERS_PAGE", 1),
			OrderBys:         getEnvList("TRADERS_ORDER_BYS", defaultOrderBys),
			DiscoveryDelayMs: getEnvInt("DISCOVERY_DELAY_MS", 300),
			SeedUIDs:         getEnvList("SEED_UIDS", nil),
			VIPUIDs:          getEnvList("VIP_UIDS", defaultVIPUIDs),
		},
		Summary: SummaryConfig{
			Provider:   strings.ToLower(getEnvString("SUMMARY_PROVIDER", SummaryProviderRemote)),
			TopN:       getEnvInt("AI_TOP_N", 8),
			OrdersTopN: getEnvInt("ORDERS_AI_TOP_N", 10),
			Lang:       getEnvString("ORDERS_AI_LANG", "vi"),
		},
		Bedrock: BedrockConfig{
			Region:           os.Getenv("AWS_REGION"),
			ModelID:          os.Getenv("BEDROCK_MODEL_ID"),
			MaxTokens:        getEnvInt("BEDROCK_MAX_TOKENS", 4096),
			AnthropicVersion: getEnvString("BEDROCK_ANTHROPIC_VERSION", "bedrock-2023-05-31"),
		},
		OpenAI: OpenAIConfig{
			APIKey:    os.Getenv("OPENAI_API_KEY"),
			Model:     getEnvString("OPENAI_MODEL", "gpt-4o"),
			MaxTokens: getEnvInt("OPENAI_MAX_TOKENS", 4096),
		},
		Alpaca: AlpacaConfig{
			APIKey:    os.Getenv("ALPACA_API_KEY"),
			APISecret: os.Getenv("ALPACA_API_SECRET"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      time.Duration(getEnvInt("REDIS_PRICE_TTL_SECONDS", 3600)) * time.Second,
		},
		Archive: ArchiveConfig{
			Bucket:    os.Getenv("ARCHIVE_S3_BUCKET"),
			Region:    getEnvString("ARCHIVE_S3_REGION", "us-east-1"),
			Endpoint:  os.Getenv("ARCHIVE_S3_ENDPOINT"),
			AccessKey: os.Getenv("ARCHIVE_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("ARCHIVE_S3_SECRET_KEY"),
			Prefix:    getEnvString("ARCHIVE_S3_PREFIX", "snapshots"),
		},
		Settings: SettingsConfig{
			Dir:            os.Getenv("SETTINGS_DIR"),
			Passphrase:     os.Getenv("SETTINGS_PASSPHRASE"),
			InternalAPIKey: os.Getenv("INTERNAL_API_KEY"),
		},
		Display: DisplayConfig{
			Timezone: getEnvString("DISPLAY_TIMEZONE", "Asia/Ho_Chi_Minh"),
		},
		HTTP: HTTPConfig{
			Addr:               getEnvString("HTTP_ADDR", ":8080"),
			CORSAllowedOrigins: getEnvString("CORS_ALLOWED_ORIGINS", "*"),
			TimeoutSeconds:     getEnvInt("HTTP_TIMEOUT_SECONDS", 60),
		},
		Log: LogConfig{
			Production: strings.EqualFold(os.Getenv("APP_ENV"), "production"),
			Level:      getEnvString("LOG_LEVEL", "info"),
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyFile overlays non-empty lists from a TOML file
func (c *Config) applyFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if len(fc.SeedUIDs) > 0 {
		c.Traders.SeedUIDs = normalizeList(fc.SeedUIDs)
	}
	if len(fc.VIPUIDs) > 0 {
		c.Traders.VIPUIDs = normalizeList(fc.VIPUIDs)
	}
	if len(fc.OrderBys) > 0 {
		c.Traders.OrderBys = normalizeList(fc.OrderBys)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	endpoints := map[string]string{
		"ORDERS_API":       c.Upstream.OrdersAPI,
		"PRICES_API":       c.Upstream.PricesAPI,
		"AI_API":           c.Upstream.AIAPI,
		"ORDERS_AI_API":    c.Upstream.OrdersAIAPI,
		"TRADERS_BASE_URL": c.Upstream.TradersBaseURL,
	}
	for name, raw := range endpoints {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}

	if c.Polling.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.Polling.BatchSize)
	}
	if c.Polling.PollIntervalMs < 1000 {
		return fmt.Errorf("POLL_MS must be at least 1000, got %d", c.Polling.PollIntervalMs)
	}
	if len(c.Traders.OrderBys) == 0 {
		return fmt.Errorf("TRADERS_ORDER_BYS must name at least one ranking")
	}

	switch c.Summary.Provider {
	case SummaryProviderRemote:
	case SummaryProviderBedrock:
		if !c.HasBedrock() {
			return fmt.Errorf("SUMMARY_PROVIDER=bedrock requires AWS_REGION and BEDROCK_MODEL_ID")
		}
	case SummaryProviderOpenAI:
		if !c.HasOpenAI() {
			return fmt.Errorf("SUMMARY_PROVIDER=openai requires OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("SUMMARY_PROVIDER must be one of remote, bedrock, openai, got %q", c.Summary.Provider)
	}

	if _, err := time.LoadLocation(c.Display.Timezone); err != nil {
		return fmt.Errorf("DISPLAY_TIMEZONE %q is invalid: %w", c.Display.Timezone, err)
	}

	return nil
}

// PollInterval returns the price refresh period
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Polling.PollIntervalMs) * time.Millisecond
}

// PerRequestDelay returns the pause after each order batch
func (c *Config) PerRequestDelay() time.Duration {
	return time.Duration(c.Polling.PerRequestDelayMs) * time.Millisecond
}

// EmptyListDelay returns the wait used while no trader UIDs are known
func (c *Config) EmptyListDelay() time.Duration {
	return time.Duration(c.Polling.EmptyListDelayMs) * time.Millisecond
}

// DiscoveryDelay returns the pause between trader ranking requests
func (c *Config) DiscoveryDelay() time.Duration {
	return time.Duration(c.Traders.DiscoveryDelayMs) * time.Millisecond
}

// UpstreamTimeout returns the HTTP client timeout for proxy calls
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.RequestTimeoutSeconds) * time.Second
}

// Location returns the display time zone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Display.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HasDatabase returns true if database configuration is available
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasBedrock returns true if AWS Bedrock configuration is available
func (c *Config) HasBedrock() bool {
	return c.Bedrock.Region != "" && c.Bedrock.ModelID != ""
}

// HasOpenAI returns true if OpenAI configuration is available
func (c *Config) HasOpenAI() bool {
	return c.OpenAI.APIKey != ""
}

// HasAlpaca returns true if Alpaca configuration is available
func (c *Config) HasAlpaca() bool {
	return c.Alpaca.APIKey != "" && c.Alpaca.APISecret != ""
}

// HasRedis returns true if the price cache is configured
func (c *Config) HasRedis() bool {
	return c.Redis.Addr != ""
}

// HasArchive returns true if the S3 snapshot archive is configured
func (c *Config) HasArchive() bool {
	return c.Archive.Bucket != ""
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList reads a comma-separated list, ignoring blank entries
func getEnvList(key string, defaultValue []string) []string {
	if val := os.Getenv(key); val != "" {
		if list := normalizeList(strings.Split(val, ",")); len(list) > 0 {
			return list
		}
	}
	return defaultValue
}

func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			ProxyBase:             defaultProxyBase,
			OrdersAPI:             defaultProxyBase + "/api/orders",
			PricesAPI:             defaultProxyBase + "/api/prices",
			AIAPI:                 defaultProxyBase + "/api/AI/recommend",
			OrdersAIAPI:           defaultProxyBase + "/api/AI/recommend-orders",
			TradersBaseURL:        defaultTradersBaseURL,
			RequestTimeoutSeconds: 5,
		},
		Polling: PollingConfig{
			PollIntervalMs:    3000,
			PerRequestDelayMs: 1,
			BatchSize:         3,
			EmptyListDelayMs:  10,
		},
		Traders: TradersConfig{
			Interval:         "ALL",
			Limit:            100,
			Page:             1,
			OrderBys:         append([]string(nil), defaultOrderBys...),
			DiscoveryDelayMs: 1,
			VIPUIDs:          []string{"28905362"},
		},
		Summary: SummaryConfig{
			Provider:   SummaryProviderRemote,
			TopN:       8,
			OrdersTopN: 10,
			Lang:       "vi",
		},
		Bedrock: BedrockConfig{
			MaxTokens:        4096,
			AnthropicVersion: "bedrock-2023-05-31",
		},
		OpenAI: OpenAIConfig{
			Model:     "gpt-4o",
			MaxTokens: 4096,
		},
		Redis: RedisConfig{
			TTL: time.Hour,
		},
		Archive: ArchiveConfig{
			Region: "us-east-1",
			Prefix: "snapshots",
		},
		Display: DisplayConfig{
			Timezone: "UTC",
		},
		HTTP: HTTPConfig{
			Addr:               ":0",
			CORSAllowedOrigins: "*",
			TimeoutSeconds:     30,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
