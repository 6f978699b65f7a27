// Package templates holds the server-rendered HTML views.
package templates

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/shopspring/decimal"

	"whale-futures/export"
	"whale-futures/models"
	"whale-futures/tracker"
)

// DashboardView is everything the dashboard page shows
type DashboardView struct {
	Rows          []models.Position // display order
	Status        tracker.StatusSnapshot
	UIDCount      int
	HideNegative  bool
	KeyConfigured bool
	VIP           export.VIPSet
	Location      *time.Location
	Now           time.Time
	RefreshEvery  time.Duration
}

const pageStyle = `<style>body{font-family:system-ui,sans-serif;font-size:13px;margin:1rem}` +
	`table{border-collapse:collapse;width:100%}th,td{padding:2px 6px;border-bottom:1px solid #ddd;white-space:nowrap}` +
	`td.num{text-align:right}.long{color:#0a7d32}.short{color:#b3261e}.error{color:#b3261e}</style>`

// Dashboard renders the full page
func Dashboard(v DashboardView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		body := templ.Join(StatusBar(v), PositionsTable(v))
		return layout("Whale futures", v.RefreshEvery).Render(templ.WithChildren(ctx, body), w)
	})
}

// layout wraps the children in the document shell
func layout(title string, refresh time.Duration) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`); err != nil {
			return err
		}
		if refresh > 0 {
			if _, err := fmt.Fprintf(w, `<meta http-equiv="refresh" content="%d">`, int(refresh.Seconds())); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, `<title>%s</title>`, templ.EscapeString(title)); err != nil {
			return err
		}
		if err := templ.Raw(pageStyle + `</head><body>`).Render(ctx, w); err != nil {
			return err
		}
		if err := templ.GetChildren(ctx).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

// StatusBar renders counts, the last error and the export links
func StatusBar(v DashboardView) templ.Component {
	parts := []templ.Component{
		templ.Raw(fmt.Sprintf(`<strong>%d</strong> positions from <strong>%d</strong> traders`, len(v.Rows), v.UIDCount)),
	}
	if !v.Status.LastBatchAt.IsZero() {
		parts = append(parts, text(" · updated "+export.RelativeTime(v.Status.LastBatchAt.UnixMilli(), v.Now)))
	}
	if v.Status.Refreshing {
		parts = append(parts, text(" · refreshing traders"))
	}
	if !v.KeyConfigured {
		parts = append(parts, text(" · "), element("em", nil, text("no API key")))
	}

	csvHref := "/api/rows.csv"
	toggleHref, toggleText := "/?hideNegative=1", "Hide -PNL"
	if v.HideNegative {
		csvHref += "?hideNegative=1"
		toggleHref, toggleText = "/", "Show all"
	}
	parts = append(parts,
		text(" · "), link(templ.URL(toggleHref), toggleText),
		text(" · "), link(templ.URL(csvHref), "Export CSV"),
	)

	if v.Status.LastError != "" {
		parts = append(parts, element("p", attrs{{"class", "error"}}, text(v.Status.LastError)))
	}
	return element("header", nil, parts...)
}

var tableHeaders = []string{
	"Symbol", "Mode", "Margin", "PNL", "Lev", "Opened", "Trader", "Flrs", "ROI %",
	"M/Mode", "Notional", "Open Price", "Market Price", "Δ % vs Open", "Amount", "Margin %", "UID",
}

// PositionsTable renders the rows in the order given
func PositionsTable(v DashboardView) templ.Component {
	headers := make([]templ.Component, len(tableHeaders))
	for i, h := range tableHeaders {
		headers[i] = element("th", nil, text(h))
	}

	rows := make([]templ.Component, 0, len(v.Rows))
	for _, p := range v.Rows {
		rows = append(rows, positionRow(p, v))
	}
	if len(rows) == 0 {
		rows = append(rows, element("tr", nil,
			element("td", attrs{{"colspan", strconv.Itoa(len(tableHeaders))}}, text("No positions yet"))))
	}

	return element("table", nil,
		element("thead", nil, element("tr", nil, headers...)),
		element("tbody", nil, rows...),
	)
}

func positionRow(p models.Position, v DashboardView) templ.Component {
	modeClass := ""
	switch p.Mode.Direction() {
	case 1:
		modeClass = "long"
	case -1:
		modeClass = "short"
	}

	trader := export.TruncateName(p.Trader)
	if v.VIP.Has(p.TraderUID) {
		trader = export.VIPMarker + " " + trader
	}

	return element("tr", attrs{{"data-id", p.ID}},
		titledCell(p.Symbol, export.DisplaySymbol(p.Symbol)),
		element("td", attrs{{"class", modeClass}}, text(string(p.Mode))),
		numCell(withIcon(short(p.Margin, 2), export.MarginIcon(p.Margin))),
		numCell(withIcon(short(p.PNL, 2), export.PNLIcon(p.PNL))),
		numCell(leverage(p.Leverage)),
		titledCell(export.AbsoluteTime(p.OpenAt, v.Location), export.RelativeTime(p.OpenAt, v.Now)),
		titledCell(p.Trader, trader),
		numCell(short(p.Followers, 0)),
		numCell(withIcon(short(p.ROI, 2), export.ROIIcon(p.ROI))),
		element("td", nil, text(p.MarginMode)),
		numCell(short(p.Notional, 2)),
		numCell(plain(p.OpenPrice)),
		numCell(plain(p.MarketPrice)),
		numCell(short(p.ChangePct, 2)),
		numCell(short(p.Amount, 4)),
		numCell(short(p.MarginPct, 2)),
		element("td", nil, text(p.TraderUID)),
	)
}

func numCell(s string) templ.Component {
	return element("td", attrs{{"class", "num"}}, text(s))
}

func titledCell(title, s string) templ.Component {
	return element("td", attrs{{"title", title}}, text(s))
}

// attr is one HTML attribute; attrs keep their declared order
type attr struct{ name, value string }

type attrs []attr

// element renders <tag attrs>children</tag>. Attribute values are escaped;
// an empty class is omitted.
func element(tag string, as attrs, children ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<"+tag); err != nil {
			return err
		}
		for _, a := range as {
			if a.name == "class" && a.value == "" {
				continue
			}
			if _, err := fmt.Fprintf(w, ` %s="%s"`, a.name, templ.EscapeString(a.value)); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, ">"); err != nil {
			return err
		}
		if err := templ.Join(children...).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</"+tag+">")
		return err
	})
}

func link(href templ.SafeURL, label string) templ.Component {
	return element("a", attrs{{"href", string(href)}}, text(label))
}

// text renders s as escaped character data
func text(s string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, templ.EscapeString(s))
		return err
	})
}

func short(d decimal.NullDecimal, decimals int32) string {
	if !d.Valid {
		return "-"
	}
	return export.ShortNumber(d.Decimal, decimals)
}

func plain(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}

func leverage(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String() + "x"
}

func withIcon(value, icon string) string {
	if icon == "" || value == "-" {
		return value
	}
	return icon + " " + value
}

// ErrorState renders a standalone error message
func ErrorState(message string) templ.Component {
	return element("div", attrs{{"class", "error"}, {"role", "alert"}}, text(message))
}
