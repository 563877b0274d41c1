package board

import (
	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"

	"rudder/internal/market"
)

// winRates holds the two simulated figures for one market. A nil value
// means the pass produced no simulated trades.
type winRates struct {
	recommended *decimal.Decimal
	marketEntry *decimal.Decimal
}

// simulateWinRates runs the two entry/exit passes over one candle window.
//
// The recommended pass enters only where the live engine's pullback
// trigger fires (RSI under the oversold line). The market pass enters on a
// fixed cadence as a naive baseline. Both share the same exit rule:
// stop-loss or take-profit crossing, checked bar by bar in decimal; when
// both cross inside one bar the stop wins, which biases losses
// conservatively. A position still open at the horizon wins iff it closes
// above entry.
func simulateWinRates(candles []market.Candle, prof ModeProfile) winRates {
	candles = market.NormalizeCandles(candles)
	if len(candles) < prof.RSIPeriod+2 {
		return winRates{}
	}
	closes := market.Closes(candles)
	rsi := talib.Rsi(closes, prof.RSIPeriod)

	var recWins, recTotal, mktWins, mktTotal int
	for i := prof.RSIPeriod; i < len(candles)-1; i++ {
		if rsi[i] > 0 && rsi[i] <= prof.RSIOversold {
			if win, ok := simulateOne(candles, i, prof); ok {
				recTotal++
				if win {
					recWins++
				}
			}
		}
		cadence := prof.EntryCadence
		if cadence <= 0 {
			cadence = 1
		}
		if (i-prof.RSIPeriod)%cadence == 0 {
			if win, ok := simulateOne(candles, i, prof); ok {
				mktTotal++
				if win {
					mktWins++
				}
			}
		}
	}

	return winRates{
		recommended: rateOf(recWins, recTotal),
		marketEntry: rateOf(mktWins, mktTotal),
	}
}

// simulateOne enters at the close of bar i and walks forward until an exit
// boundary is hit or the holding horizon ends. ok is false when no forward
// bar exists.
func simulateOne(candles []market.Candle, i int, prof ModeProfile) (win, ok bool) {
	entry := candles[i].Close
	if entry.Sign() <= 0 || i+1 >= len(candles) {
		return false, false
	}
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)
	stop := entry.Mul(one.Sub(decimal.NewFromFloat(prof.StopLossPercent).Div(hundred)))
	target := entry.Mul(one.Add(decimal.NewFromFloat(prof.TakeProfitPercent).Div(hundred)))

	horizon := i + prof.HoldBars
	if horizon >= len(candles) {
		horizon = len(candles) - 1
	}
	for j := i + 1; j <= horizon; j++ {
		if candles[j].Low.LessThanOrEqual(stop) {
			return false, true
		}
		if candles[j].High.GreaterThanOrEqual(target) {
			return true, true
		}
	}
	return candles[horizon].Close.GreaterThan(entry), true
}

func rateOf(wins, total int) *decimal.Decimal {
	if total == 0 {
		return nil
	}
	rate := decimal.NewFromInt(int64(wins)).
		Div(decimal.NewFromInt(int64(total))).
		Mul(decimal.NewFromInt(100)).
		Round(4)
	return &rate
}
