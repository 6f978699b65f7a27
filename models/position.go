package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PositionMode is the direction of a futures position
type PositionMode string

const (
	PositionModeLong  PositionMode = "long"
	PositionModeShort PositionMode = "short"
)

// Direction returns +1 for long, -1 for short and 0 for anything else
func (m PositionMode) Direction() int64 {
	switch PositionMode(strings.ToLower(strings.TrimSpace(string(m)))) {
	case PositionModeLong:
		return 1
	case PositionModeShort:
		return -1
	default:
		return 0
	}
}

// positionField marks which keys were present when a record was decoded
type positionField uint32

const (
	fieldID positionField = 1 << iota
	fieldTraderUID
	fieldTrader
	fieldFollowers
	fieldSymbol
	fieldMode
	fieldOpenPrice
	fieldAmount
	fieldMargin
	fieldLeverage
	fieldMarginMode
	fieldNotional
	fieldMarginPct
	fieldOpenAt
	fieldCloseAvgPrice

	// set on every decoded record so an empty object still has a mask
	fieldDecoded positionField = 1 << 31
)

// Position is one leader's open or closed futures position as reported by
// the orders endpoint, plus the derived metrics computed by Enrich.
//
// Numeric attributes are NullDecimal; Valid=false means the value was absent
// or could not be parsed.
type Position struct {
	ID            string
	TraderUID     string
	Trader        string
	Followers     decimal.NullDecimal
	Symbol        string
	Mode          PositionMode
	OpenPrice     decimal.NullDecimal
	Amount        decimal.NullDecimal
	Margin        decimal.NullDecimal
	Leverage      decimal.NullDecimal
	MarginMode    string
	Notional      decimal.NullDecimal
	MarginPct     decimal.NullDecimal
	OpenAt        int64 // epoch milliseconds, 0 when unknown
	CloseAvgPrice decimal.NullDecimal

	// Derived, recomputed on every enrichment
	PNL         decimal.NullDecimal
	ROI         decimal.NullDecimal
	MarketPrice decimal.NullDecimal
	ChangePct   decimal.NullDecimal

	// Extra holds every input key this type does not model
	Extra map[string]json.RawMessage

	present positionField
}

// IsClosed reports whether the position carries a settlement price
func (p Position) IsClosed() bool {
	return p.CloseAvgPrice.Valid && !p.CloseAvgPrice.Decimal.IsZero()
}

// has reports whether a field was present in the decoded input. Records
// built in code, rather than decoded, count every field as present.
func (p Position) has(f positionField) bool {
	if p.present == 0 {
		return true
	}
	return p.present&f != 0
}

// Merge shallow-merges incoming onto p: fields present in incoming replace
// those of p, absent fields are kept. Derived fields are left untouched.
func (p Position) Merge(incoming Position) Position {
	out := p

	if incoming.has(fieldID) {
		out.ID = incoming.ID
	}
	if incoming.has(fieldTraderUID) {
		out.TraderUID = incoming.TraderUID
	}
	if incoming.has(fieldTrader) {
		out.Trader = incoming.Trader
	}
	if incoming.has(fieldFollowers) {
		out.Followers = incoming.Followers
	}
	if incoming.has(fieldSymbol) {
		out.Symbol = incoming.Symbol
	}
	if incoming.has(fieldMode) {
		out.Mode = incoming.Mode
	}
	if incoming.has(fieldOpenPrice) {
		out.OpenPrice = incoming.OpenPrice
	}
	if incoming.has(fieldAmount) {
		out.Amount = incoming.Amount
	}
	if incoming.has(fieldMargin) {
		out.Margin = incoming.Margin
	}
	if incoming.has(fieldLeverage) {
		out.Leverage = incoming.Leverage
	}
	if incoming.has(fieldMarginMode) {
		out.MarginMode = incoming.MarginMode
	}
	if incoming.has(fieldNotional) {
		out.Notional = incoming.Notional
	}
	if incoming.has(fieldMarginPct) {
		out.MarginPct = incoming.MarginPct
	}
	if incoming.has(fieldOpenAt) {
		out.OpenAt = incoming.OpenAt
	}
	if incoming.has(fieldCloseAvgPrice) {
		out.CloseAvgPrice = incoming.CloseAvgPrice
	}

	if len(p.Extra) > 0 || len(incoming.Extra) > 0 {
		out.Extra = make(map[string]json.RawMessage, len(p.Extra)+len(incoming.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = v
		}
		for k, v := range incoming.Extra {
			out.Extra[k] = v
		}
	}

	if p.present == 0 || incoming.present == 0 {
		out.present = 0
	} else {
		out.present = p.present | incoming.present
	}

	return out
}

// UnmarshalJSON decodes an upstream record leniently: numbers may arrive as
// JSON numbers or numeric strings, and unknown keys are kept in Extra.
func (p *Position) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("position: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("position: expected object, got null")
	}

	*p = Position{present: fieldDecoded}
	var traderFromRaw, traderFromUID string

	for key, val := range raw {
		switch key {
		case "id":
			p.ID = rawString(val)
			p.present |= fieldID
		case "traderUid":
			p.TraderUID = rawString(val)
			p.present |= fieldTraderUID
		case "trader":
			p.Trader = rawString(val)
			p.present |= fieldTrader
		case "followers":
			p.Followers = rawDecimal(val)
			p.present |= fieldFollowers
		case "symbol":
			p.Symbol = rawString(val)
			p.present |= fieldSymbol
		case "mode":
			p.Mode = PositionMode(rawString(val))
			p.present |= fieldMode
		case "openPrice":
			p.OpenPrice = rawDecimal(val)
			p.present |= fieldOpenPrice
		case "amount":
			p.Amount = rawDecimal(val)
			p.present |= fieldAmount
		case "margin":
			p.Margin = rawDecimal(val)
			p.present |= fieldMargin
		case "lev", "leverage":
			if d := rawDecimal(val); d.Valid || !p.Leverage.Valid {
				p.Leverage = d
			}
			p.present |= fieldLeverage
		case "marginMode":
			p.MarginMode = rawString(val)
			p.present |= fieldMarginMode
		case "notional":
			p.Notional = rawDecimal(val)
			p.present |= fieldNotional
		case "marginPct":
			p.MarginPct = rawDecimal(val)
			p.present |= fieldMarginPct
		case "openAt":
			p.OpenAt = rawTimestamp(val)
			p.present |= fieldOpenAt
		case "closeAvgPrice":
			p.CloseAvgPrice = rawDecimal(val)
			p.present |= fieldCloseAvgPrice
		case "pnl", "roi", "marketPrice", "changePct":
			// derived, never taken from input
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]json.RawMessage)
			}
			p.Extra[key] = val
			switch key {
			case "raw":
				var nested struct {
					TraderUID json.RawMessage `json:"traderUid"`
				}
				if json.Unmarshal(val, &nested) == nil && nested.TraderUID != nil {
					traderFromRaw = rawString(nested.TraderUID)
				}
			case "uid":
				traderFromUID = rawString(val)
			}
		}
	}

	if p.TraderUID == "" {
		if traderFromRaw != "" {
			p.TraderUID = traderFromRaw
		} else {
			p.TraderUID = traderFromUID
		}
		if p.TraderUID != "" {
			p.present |= fieldTraderUID
		}
	}

	if p.OpenAt == 0 {
		if ms, ok := p.Extra["openAtMs"]; ok {
			if ts := rawTimestamp(ms); ts != 0 {
				p.OpenAt = ts
				p.present |= fieldOpenAt
			}
		}
	}

	return nil
}

// MarshalJSON emits the modelled fields, the derived metrics and every
// preserved extra key. Undefined numbers encode as null.
func (p Position) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 20+len(p.Extra))
	for k, v := range p.Extra {
		out[k] = v
	}

	out["id"] = p.ID
	out["traderUid"] = p.TraderUID
	out["trader"] = p.Trader
	out["followers"] = jsonNumber(p.Followers)
	out["symbol"] = p.Symbol
	out["mode"] = string(p.Mode)
	out["openPrice"] = jsonNumber(p.OpenPrice)
	out["amount"] = jsonNumber(p.Amount)
	out["margin"] = jsonNumber(p.Margin)
	out["lev"] = jsonNumber(p.Leverage)
	out["marginMode"] = p.MarginMode
	out["notional"] = jsonNumber(p.Notional)
	out["marginPct"] = jsonNumber(p.MarginPct)
	if p.OpenAt > 0 {
		out["openAt"] = p.OpenAt
	} else {
		out["openAt"] = nil
	}
	out["closeAvgPrice"] = jsonNumber(p.CloseAvgPrice)

	out["pnl"] = jsonNumber(p.PNL)
	out["roi"] = jsonNumber(p.ROI)
	out["marketPrice"] = jsonNumber(p.MarketPrice)
	out["changePct"] = jsonNumber(p.ChangePct)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func jsonNumber(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return json.Number(d.Decimal.String())
}
