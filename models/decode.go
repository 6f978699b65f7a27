package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Bounds of an accepted decimal: about the finite range and precision of a
// float64. Arithmetic on values past them rescales into enormous integers.
const (
	maxDecimalExponent  = 330
	maxDecimalDigits    = 340
	maxDecimalMagnitude = 308
)

// Finite reports whether d is inside float64's finite range. Values outside
// it are treated as undefined.
func Finite(d decimal.Decimal) bool {
	exp := int(d.Exponent())
	if exp > maxDecimalExponent || exp < -maxDecimalExponent {
		return false
	}
	coef := d.Coefficient()
	if coef.Sign() == 0 {
		return true
	}
	if float64(coef.BitLen())*math.Log10(2) > maxDecimalDigits+1 {
		return false
	}
	digits := len(coef.String())
	if coef.Sign() < 0 {
		digits--
	}
	return digits <= maxDecimalDigits && digits-1+exp <= maxDecimalMagnitude
}

// ParseDecimal parses a number from its text form. Blank, malformed or
// non-finite input yields an invalid NullDecimal.
func ParseDecimal(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !Finite(d) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// rawString reads a JSON string or number as text; anything else is empty
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// DecimalFromJSON reads a JSON number or numeric string. Any other value,
// null included, yields an invalid NullDecimal.
func DecimalFromJSON(raw json.RawMessage) decimal.NullDecimal {
	return rawDecimal(raw)
}

func rawDecimal(raw json.RawMessage) decimal.NullDecimal {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return ParseDecimal(n.String())
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseDecimal(s)
	}
	return decimal.NullDecimal{}
}

// rawTimestamp normalizes a timestamp to epoch milliseconds. Numbers and
// numeric strings are taken as milliseconds; other strings are parsed as
// RFC 3339 or a plain UTC date-time. Unparseable input yields 0.
func rawTimestamp(raw json.RawMessage) int64 {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return numberToMillis(n.String())
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	return ParseTimestamp(s)
}

// ParseTimestamp converts a textual timestamp to epoch milliseconds
func ParseTimestamp(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if ms := numberToMillis(s); ms != 0 {
		return ms
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}

func numberToMillis(s string) int64 {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return 0
		}
		return ms
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > float64(1<<62) {
		return 0
	}
	return int64(f)
}
