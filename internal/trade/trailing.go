package trade

import "github.com/shopspring/decimal"

// Trailing-stop math for long spot positions. All comparisons are decimal
// so that a stale or duplicated tick can never nudge a stop through float
// rounding.

var (
	decOne     = decimal.NewFromInt(1)
	decHundred = decimal.NewFromInt(100)
	decimalEps = decimal.New(1, -8) // 1e-8, dust threshold for quantities
)

// activationPrice is the favorable price at which trailing arms:
// entry * (1 + triggerPct/100).
func activationPrice(entry, triggerPct decimal.Decimal) decimal.Decimal {
	return entry.Mul(decOne.Add(triggerPct.Div(decHundred)))
}

// trailingStopFor derives the stop from the current peak:
// peak * (1 - offsetPct/100).
func trailingStopFor(peak, offsetPct decimal.Decimal) decimal.Decimal {
	return peak.Mul(decOne.Sub(offsetPct.Div(decHundred)))
}

// shouldRaiseStop reports whether candidate improves on the current stop.
// The stop only tightens; a candidate at or below current is ignored,
// which also rejects out-of-order ticks.
func shouldRaiseStop(candidate decimal.Decimal, current *decimal.Decimal) bool {
	if candidate.Sign() <= 0 {
		return false
	}
	if current == nil {
		return true
	}
	return candidate.GreaterThan(*current)
}

// crossedBelow reports price <= boundary for a positive boundary.
func crossedBelow(price, boundary decimal.Decimal) bool {
	return boundary.Sign() > 0 && price.LessThanOrEqual(boundary)
}

// crossedAbove reports price >= boundary for a positive boundary.
func crossedAbove(price, boundary decimal.Decimal) bool {
	return boundary.Sign() > 0 && price.GreaterThanOrEqual(boundary)
}

// isDust treats quantities below 1e-8 as zero.
func isDust(qty decimal.Decimal) bool {
	return qty.Abs().LessThan(decimalEps)
}
