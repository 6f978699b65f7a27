package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

// divPrecision is the number of decimal places kept by every division in
// Enrich, so repeated runs produce identical output.
const divPrecision = 8

var hundred = decimal.NewFromInt(100)

// PriceMap maps a symbol to its latest known live price
type PriceMap map[string]decimal.Decimal

// Clone returns a copy of the map
func (m PriceMap) Clone() PriceMap {
	out := make(PriceMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Symbols returns the symbols in the map, sorted
func (m PriceMap) Symbols() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Enrich computes the derived metrics of p against prices. It never fails:
// any metric whose inputs are missing, non-finite or would divide by zero
// is left invalid. A closed position settles at its close price; an open one uses
// the live price for its symbol.
func Enrich(p Position, prices PriceMap) Position {
	out := p
	out.PNL = decimal.NullDecimal{}
	out.ROI = decimal.NullDecimal{}
	out.MarketPrice = decimal.NullDecimal{}
	out.ChangePct = decimal.NullDecimal{}

	price, ok := settlementPrice(p, prices)
	if !ok {
		return out
	}
	out.MarketPrice = decimal.NewNullDecimal(price)

	openPrice := finite(p.OpenPrice)
	if dir := p.Mode.Direction(); dir != 0 && openPrice && finite(p.Amount) {
		pnl := price.Sub(p.OpenPrice.Decimal).
			Mul(decimal.NewFromInt(dir)).
			Mul(p.Amount.Decimal)
		out.PNL = decimal.NewNullDecimal(pnl)

		if finite(p.Margin) && !p.Margin.Decimal.IsZero() {
			out.ROI = decimal.NewNullDecimal(pnl.Mul(hundred).DivRound(p.Margin.Decimal, divPrecision))
		}
	}

	if openPrice && !p.OpenPrice.Decimal.IsZero() {
		change := price.Sub(p.OpenPrice.Decimal).Mul(hundred).DivRound(p.OpenPrice.Decimal, divPrecision)
		out.ChangePct = decimal.NewNullDecimal(change)
	}

	return out
}

func settlementPrice(p Position, prices PriceMap) (decimal.Decimal, bool) {
	if p.IsClosed() {
		return p.CloseAvgPrice.Decimal, Finite(p.CloseAvgPrice.Decimal)
	}
	if p.Symbol == "" {
		return decimal.Zero, false
	}
	price, ok := prices[p.Symbol]
	return price, ok && Finite(price)
}

func finite(d decimal.NullDecimal) bool {
	return d.Valid && Finite(d.Decimal)
}
