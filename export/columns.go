// Package export renders the positions table as CSV and provides the
// display formatting shared by the HTML view.
package export

import (
	"time"

	"github.com/shopspring/decimal"

	"whale-futures/models"
)

// AbsoluteLayout is the day-first layout used for open times
const AbsoluteLayout = "02/01/2006 15:04:05"

// Column is one exported table column
type Column struct {
	Header string
	Value  func(p models.Position) string
}

// Columns returns the table columns in display order. Open times are
// rendered in loc.
func Columns(loc *time.Location) []Column {
	return []Column{
		{"Symbol", func(p models.Position) string { return p.Symbol }},
		{"Mode", func(p models.Position) string { return string(p.Mode) }},
		{"Margin", func(p models.Position) string { return number(p.Margin) }},
		{"PNL", func(p models.Position) string { return number(p.PNL) }},
		{"Lev", func(p models.Position) string { return number(p.Leverage) }},
		{"At VNT", func(p models.Position) string { return AbsoluteTime(p.OpenAt, loc) }},
		{"Trader", func(p models.Position) string { return p.Trader }},
		{"Flrs", func(p models.Position) string { return number(p.Followers) }},
		{"ROI %", func(p models.Position) string { return number(p.ROI) }},
		{"M/Mode", func(p models.Position) string { return p.MarginMode }},
		{"Notional", func(p models.Position) string { return number(p.Notional) }},
		{"Open Price", func(p models.Position) string { return number(p.OpenPrice) }},
		{"Market Price", func(p models.Position) string { return number(p.MarketPrice) }},
		{"Δ % vs Open", func(p models.Position) string { return number(p.ChangePct) }},
		{"Amount", func(p models.Position) string { return number(p.Amount) }},
		{"Margin %", func(p models.Position) string { return number(p.MarginPct) }},
		{"UID", func(p models.Position) string { return p.TraderUID }},
	}
}

// number renders a defined value in plain decimal notation; undefined
// values are empty
func number(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// AbsoluteTime formats epoch milliseconds in loc; zero is empty
func AbsoluteTime(ms int64, loc *time.Location) string {
	if ms <= 0 {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(ms).In(loc).Format(AbsoluteLayout)
}
