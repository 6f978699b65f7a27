package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
	billion  = decimal.NewFromInt(1_000_000_000)
)

// ShortNumber abbreviates large magnitudes with k, M or B and one decimal
// ("1.5k", "2M"); smaller values keep up to decimals fraction digits
func ShortNumber(d decimal.Decimal, decimals int32) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	abs := d.Abs()

	var body string
	switch {
	case abs.GreaterThanOrEqual(billion):
		body = oneDecimal(abs.Div(billion)) + "B"
	case abs.GreaterThanOrEqual(million):
		body = oneDecimal(abs.Div(million)) + "M"
	case abs.GreaterThanOrEqual(thousand):
		body = oneDecimal(abs.Div(thousand)) + "k"
	default:
		body = abs.Round(decimals).String()
	}
	if body == "0" {
		sign = ""
	}
	return sign + body
}

func oneDecimal(d decimal.Decimal) string {
	return strings.TrimSuffix(d.StringFixed(1), ".0")
}

// RelativeTime describes how long ago ms was, relative to now: "2d 3h ago",
// "1h5m ago", "3m12s ago", "42s ago" or "just now"
func RelativeTime(ms int64, now time.Time) string {
	if ms <= 0 {
		return ""
	}
	diff := now.UnixMilli() - ms
	if diff < 0 {
		return "just now"
	}

	s := diff / 1000
	m := s / 60
	h := m / 60
	d := h / 24

	switch {
	case d > 0:
		return withRemainder(d, "d ", h%24, "h")
	case h > 0:
		return withRemainder(h, "h", m%60, "m")
	case m > 0:
		return withRemainder(m, "m", s%60, "s")
	case s > 5:
		return fmt.Sprintf("%ds ago", s)
	default:
		return "just now"
	}
}

func withRemainder(major int64, majorUnit string, minor int64, minorUnit string) string {
	if minor == 0 {
		return fmt.Sprintf("%d%s ago", major, strings.TrimSpace(majorUnit))
	}
	return fmt.Sprintf("%d%s%d%s ago", major, majorUnit, minor, minorUnit)
}

type tier struct {
	above decimal.Decimal
	icon  string
}

var (
	pnlTiers = []tier{
		{decimal.NewFromInt(7000), "💎"},
		{decimal.NewFromInt(3000), "💰"},
		{decimal.NewFromInt(2000), "🔥"},
		{decimal.NewFromInt(1000), "🟢"},
	}
	marginTiers = []tier{
		{decimal.NewFromInt(10000), "🏦"},
		{decimal.NewFromInt(5000), "💎"},
		{decimal.NewFromInt(2000), "📈"},
		{decimal.NewFromInt(1000), "💼"},
	}
	roiTiers = []tier{
		{decimal.NewFromInt(100), "🚀"},
		{decimal.NewFromInt(60), "🔥"},
		{decimal.NewFromInt(30), "💰"},
		{decimal.NewFromInt(10), "🟢"},
	}
)

func iconFor(tiers []tier, d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	for _, t := range tiers {
		if d.Decimal.GreaterThan(t.above) {
			return t.icon
		}
	}
	return ""
}

// PNLIcon marks large profits
func PNLIcon(pnl decimal.NullDecimal) string { return iconFor(pnlTiers, pnl) }

// MarginIcon marks large margins
func MarginIcon(margin decimal.NullDecimal) string { return iconFor(marginTiers, margin) }

// ROIIcon marks high returns
func ROIIcon(roi decimal.NullDecimal) string { return iconFor(roiTiers, roi) }

// VIPMarker is shown next to traders on the VIP list
const VIPMarker = "⭐"

// VIPSet is a set of highlighted trader UIDs
type VIPSet map[string]struct{}

// NewVIPSet builds a VIPSet from uids
func NewVIPSet(uids []string) VIPSet {
	set := make(VIPSet, len(uids))
	for _, uid := range uids {
		set[strings.TrimSpace(uid)] = struct{}{}
	}
	return set
}

// Has reports whether uid is a VIP
func (s VIPSet) Has(uid string) bool {
	_, ok := s[uid]
	return ok
}

// TruncateName shortens names longer than six characters to the first four,
// an ellipsis and the last two
func TruncateName(name string) string {
	r := []rune(name)
	if len(r) <= 6 {
		return name
	}
	return string(r[:4]) + "…" + string(r[len(r)-2:])
}

// DisplaySymbol limits a symbol to eight characters
func DisplaySymbol(symbol string) string {
	r := []rune(symbol)
	if len(r) <= 8 {
		return symbol
	}
	return string(r[:8])
}
