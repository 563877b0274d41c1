package regime

import (
	"fmt"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"

	"rudder/internal/market"
)

// Regime is a discrete classification of recent market behavior.
type Regime string

const (
	RegimeBullTrend      Regime = "BULL_TREND"
	RegimeBearTrend      Regime = "BEAR_TREND"
	RegimeSideways       Regime = "SIDEWAYS"
	RegimeHighVolatility Regime = "HIGH_VOLATILITY"
)

// Analysis is the derived classification for one candle window. It is
// recomputed per request and not persisted.
type Analysis struct {
	Regime         Regime          `json:"regime"`
	ATRPercent     decimal.Decimal `json:"atr_percent"`
	TrendDirection int             `json:"trend_direction"` // -1, 0, 1
	ComputedAt     time.Time       `json:"computed_at"`
}

// InsufficientDataError signals too few candles for a reliable read.
// Callers skip or defer; it never fails a batch.
type InsufficientDataError struct {
	Have int
	Want int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient candle data: have %d, want at least %d", e.Have, e.Want)
}

// Settings are the tunable thresholds of the classifier. The defaults are
// reference values; deployments adjust them through config.
type Settings struct {
	// Window is the trailing candle count examined.
	Window int
	// MinCandles is the hard floor below which Detect refuses to classify.
	MinCandles int
	// ATRPeriod is the talib ATR smoothing period.
	ATRPeriod int
	// HighVolATRPercent is the ATR%-of-close above which whipsaw checks run.
	HighVolATRPercent float64
	// DeadBandPercent is the displacement below which drift alone does not
	// establish a trend.
	DeadBandPercent float64
	// ConsistencyBand is the fraction of same-signed candle steps that
	// establishes a trend even with small absolute displacement.
	ConsistencyBand float64
	// WhipsawFlipRatio is the fraction of candle steps whose direction
	// reverses that qualifies as whipsaw. Alternating swings approach 1.0;
	// a monotone drift approaches 0.
	WhipsawFlipRatio float64
}

// DefaultSettings returns the reference thresholds.
func DefaultSettings() Settings {
	return Settings{
		Window:            120,
		MinCandles:        20,
		ATRPeriod:         14,
		HighVolATRPercent: 2.0,
		DeadBandPercent:   1.0,
		ConsistencyBand:   0.6,
		WhipsawFlipRatio:  0.4,
	}
}

// Detector classifies candle windows into regimes.
type Detector struct {
	settings Settings
	nowFn    func() time.Time
}

// NewDetector builds a detector; zero-valued settings fields fall back to
// defaults.
func NewDetector(settings Settings) *Detector {
	def := DefaultSettings()
	if settings.Window <= 0 {
		settings.Window = def.Window
	}
	if settings.MinCandles <= 0 {
		settings.MinCandles = def.MinCandles
	}
	if settings.ATRPeriod <= 0 {
		settings.ATRPeriod = def.ATRPeriod
	}
	if settings.HighVolATRPercent <= 0 {
		settings.HighVolATRPercent = def.HighVolATRPercent
	}
	if settings.DeadBandPercent <= 0 {
		settings.DeadBandPercent = def.DeadBandPercent
	}
	if settings.ConsistencyBand <= 0 {
		settings.ConsistencyBand = def.ConsistencyBand
	}
	if settings.WhipsawFlipRatio <= 0 {
		settings.WhipsawFlipRatio = def.WhipsawFlipRatio
	}
	return &Detector{settings: settings, nowFn: time.Now}
}

// Detect classifies the trailing window of the candle sequence.
//
// Priority order: a high-ATR whipsaw pattern wins over any trend read,
// because rapid sign reversal invalidates the drift estimate. Then a
// sustained drift in either direction, then SIDEWAYS. Direction is judged
// by step consistency as well as displacement, so a low-volatility but
// strictly one-directional crawl still reads as a trend.
func (d *Detector) Detect(candles []market.Candle) (Analysis, error) {
	s := d.settings
	candles = market.NormalizeCandles(candles)
	if len(candles) < s.MinCandles {
		return Analysis{}, &InsufficientDataError{Have: len(candles), Want: s.MinCandles}
	}
	if len(candles) > s.Window {
		candles = candles[len(candles)-s.Window:]
	}

	atrPct := d.atrPercent(candles)
	direction := d.trendDirection(candles)

	regime := RegimeSideways
	switch {
	case atrPct.GreaterThanOrEqual(decimal.NewFromFloat(s.HighVolATRPercent)) && d.isWhipsaw(candles):
		regime = RegimeHighVolatility
	case direction > 0:
		regime = RegimeBullTrend
	case direction < 0:
		regime = RegimeBearTrend
	}

	return Analysis{
		Regime:         regime,
		ATRPercent:     atrPct,
		TrendDirection: direction,
		ComputedAt:     d.nowFn(),
	}, nil
}

// atrPercent is the latest ATR expressed as a percent of the latest close.
func (d *Detector) atrPercent(candles []market.Candle) decimal.Decimal {
	period := d.settings.ATRPeriod
	if len(candles) <= period {
		period = len(candles) - 1
	}
	if period < 1 {
		return decimal.Zero
	}
	series := talib.Atr(market.Highs(candles), market.Lows(candles), market.Closes(candles), period)
	atr := series[len(series)-1]
	lastClose := candles[len(candles)-1].Close
	if atr <= 0 || lastClose.Sign() <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(atr).Div(lastClose).Mul(decimal.NewFromInt(100)).Round(4)
}

// trendDirection combines normalized displacement with step consistency.
func (d *Detector) trendDirection(candles []market.Candle) int {
	closes := market.Closes(candles)
	first, last := closes[0], closes[len(closes)-1]
	if first <= 0 {
		return 0
	}
	dispPct := (last - first) / first * 100

	up, down := 0, 0
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			up++
		case closes[i] < closes[i-1]:
			down++
		}
	}
	consistency := 0.0
	if steps := up + down; steps > 0 {
		consistency = float64(up-down) / float64(steps)
	}

	switch {
	case dispPct >= d.settings.DeadBandPercent && consistency > 0,
		consistency >= d.settings.ConsistencyBand && dispPct > 0:
		return 1
	case dispPct <= -d.settings.DeadBandPercent && consistency < 0,
		consistency <= -d.settings.ConsistencyBand && dispPct < 0:
		return -1
	default:
		return 0
	}
}

// isWhipsaw counts direction reversals between consecutive candle steps.
// Alternating up/down swings reverse on almost every step; a sustained
// trend almost never does, so high ATR alone cannot flip a trend read.
func (d *Detector) isWhipsaw(candles []market.Candle) bool {
	closes := market.Closes(candles)
	flips, steps := 0, 0
	prevSign := 0
	for i := 1; i < len(closes); i++ {
		sign := 0
		if closes[i] > closes[i-1] {
			sign = 1
		} else if closes[i] < closes[i-1] {
			sign = -1
		}
		if sign == 0 {
			continue
		}
		steps++
		if prevSign != 0 && sign != prevSign {
			flips++
		}
		prevSign = sign
	}
	if steps < 2 {
		return false
	}
	return float64(flips)/float64(steps) >= d.settings.WhipsawFlipRatio
}
