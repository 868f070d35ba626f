package indicators

import (
	"math"

	"github.com/stepannikulin59/btc-intraday-bot/internal/bybit"
)

// supertrendResult holds the overlay columns, index-aligned with the candles
type supertrendResult struct {
	line  []float64
	upper []float64
	lower []float64
	dir   []Direction
}

// supertrend computes the classic Supertrend overlay:
//
//  1. ATR(period) as the volatility unit
//  2. candidate bands = (high+low)/2 +/- multiplier*ATR
//  3. final bands ratchet monotonically: the upper band only moves down
//     and the lower band only moves up, resetting when the prior close
//     escapes the prior final band
//  4. the active line sits on one band; direction flips only when the
//     close crosses the currently active band
//
// The state starts on the lower band with direction up at the first
// index where ATR is defined; any unmatched transition case falls back
// to lower band / up, matching the reference behavior exactly.
func supertrend(candles []bybit.Candle, period int, multiplier float64) supertrendResult {
	n := len(candles)
	res := supertrendResult{
		line:  nanSlice(n),
		upper: nanSlice(n),
		lower: nanSlice(n),
		dir:   make([]Direction, n),
	}

	atr := atrSeries(candles, period)

	started := false
	for i := 0; i < n; i++ {
		if math.IsNaN(atr[i]) {
			continue
		}

		hl2 := (candles[i].High + candles[i].Low) / 2.0
		basicUpper := hl2 + multiplier*atr[i]
		basicLower := hl2 - multiplier*atr[i]

		if !started {
			res.upper[i] = basicUpper
			res.lower[i] = basicLower
			res.line[i] = res.lower[i]
			res.dir[i] = DirUp
			started = true
			continue
		}

		prevClose := candles[i-1].Close
		prevUpper := res.upper[i-1]
		prevLower := res.lower[i-1]

		if prevClose > prevUpper {
			res.upper[i] = basicUpper
		} else {
			res.upper[i] = math.Min(basicUpper, prevUpper)
		}

		if prevClose < prevLower {
			res.lower[i] = basicLower
		} else {
			res.lower[i] = math.Max(basicLower, prevLower)
		}

		prevLine := res.line[i-1]
		close := candles[i].Close

		switch {
		case prevLine == prevUpper && close <= res.upper[i]:
			res.line[i] = res.upper[i]
			res.dir[i] = DirDown
		case prevLine == prevUpper && close > res.upper[i]:
			res.line[i] = res.lower[i]
			res.dir[i] = DirUp
		case prevLine == prevLower && close >= res.lower[i]:
			res.line[i] = res.lower[i]
			res.dir[i] = DirUp
		case prevLine == prevLower && close < res.lower[i]:
			res.line[i] = res.upper[i]
			res.dir[i] = DirDown
		default:
			// Unmatched state, e.g. after the warm-up row. Documented
			// fallback, not an error path.
			res.line[i] = res.lower[i]
			res.dir[i] = DirUp
		}
	}

	return res
}
