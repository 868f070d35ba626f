package regime

import (
	"math"

	"github.com/stepannikulin59/btc-intraday-bot/config"
	"github.com/stepannikulin59/btc-intraday-bot/internal/bybit"
	"github.com/stepannikulin59/btc-intraday-bot/internal/indicators"
)

// Regime labels the market condition used to pick the trailing mode
// and to annotate journal entries.
type Regime string

const (
	Trend         Regime = "trend"
	MeanReversion Regime = "mean-reversion"
	Neutral       Regime = "neutral"
)

// Detect classifies the market from the latest feature row and the
// exchange metrics bundle.
//
// Trend requires a strong ADX, a bullish EMA stack, and either a
// positive basis or rising open interest. Mean-reversion requires a
// weak ADX and an essentially flat (or absent) basis. Everything else
// is neutral, including an empty feature set.
func Detect(rows []indicators.FeatureRow, metrics bybit.Metrics, cfg config.RegimeConfig) Regime {
	last, ok := indicators.Last(rows)
	if !ok {
		return Neutral
	}

	strongADX := indicators.Valid(last.ADX) && last.ADX > cfg.ADXTrend
	weakADX := indicators.Valid(last.ADX) && last.ADX < cfg.ADXRange

	stacked := indicators.Valid(last.EMA9) && indicators.Valid(last.EMA21) && indicators.Valid(last.EMA50) &&
		last.EMA9 > last.EMA21 && last.EMA21 > last.EMA50

	basisPositive := metrics.Basis != nil && *metrics.Basis > 0

	if strongADX && stacked && (basisPositive || openInterestRising(metrics.OpenInterest, cfg.OIWindow)) {
		return Trend
	}

	basisFlat := metrics.Basis == nil || math.Abs(*metrics.Basis) < cfg.BasisEpsilon
	if weakADX && basisFlat {
		return MeanReversion
	}

	return Neutral
}

// openInterestRising reports whether the newest of the last window
// points exceeds the mean of the points before it. Fewer than two
// points cannot establish a rise.
func openInterestRising(oi []float64, window int) bool {
	if window > 0 && len(oi) > window {
		oi = oi[len(oi)-window:]
	}
	if len(oi) < 2 {
		return false
	}

	last := oi[len(oi)-1]
	sum := 0.0
	for _, v := range oi[:len(oi)-1] {
		sum += v
	}
	mean := sum / float64(len(oi)-1)
	return last > mean
}
