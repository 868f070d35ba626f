package indicators

import (
	"math"

	"github.com/stepannikulin59/btc-intraday-bot/internal/bybit"
)

// Fixed lookback windows matching the reference parameter set
const (
	rsiPeriod   = 14
	adxPeriod   = 14
	atrPeriod   = 14
	volMAPeriod = 20
)

var emaPeriods = [4]int{9, 21, 50, 200}

// Config holds the tunable pipeline parameters
type Config struct {
	SupertrendPeriod     int
	SupertrendMultiplier float64
}

// DefaultConfig returns the reference Supertrend parameters
func DefaultConfig() Config {
	return Config{SupertrendPeriod: 10, SupertrendMultiplier: 3.0}
}

// FeatureRow is one candle augmented with derived indicator values.
// Fields are NaN while their lookback window is unsatisfied; use Valid
// before reading. They are never silently coerced to zero.
type FeatureRow struct {
	Candle bybit.Candle

	EMA9   float64
	EMA21  float64
	EMA50  float64
	EMA200 float64
	RSI    float64
	ADX    float64
	ATR    float64
	VWAP   float64
	OBV    float64
	VolMA  float64

	Supertrend      float64
	SupertrendUpper float64
	SupertrendLower float64
	SupertrendDir   Direction
}

// Direction is the Supertrend direction flag
type Direction int

const (
	DirNone Direction = 0
	DirUp   Direction = 1
	DirDown Direction = -1
)

// Valid reports whether an indicator value is defined (lookback satisfied)
func Valid(v float64) bool {
	return !math.IsNaN(v)
}

// Calculate derives the full feature series from candles ordered
// ascending by time. The output has one row per candle in the same
// order; it is a pure function of its input (identical candles always
// produce identical rows).
func Calculate(candles []bybit.Candle, cfg Config) []FeatureRow {
	n := len(candles)
	if n == 0 {
		return nil
	}

	closes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
	}

	emas := [4][]float64{}
	for k, p := range emaPeriods {
		emas[k] = emaSeries(closes, p)
	}
	rsi := rsiSeries(closes, rsiPeriod)
	adx := adxSeries(candles, adxPeriod)
	atr := atrSeries(candles, atrPeriod)
	vwap := vwapSeries(candles)
	obv := obvSeries(candles)
	volMA := rollingMean(volumes(candles), volMAPeriod)
	st := supertrend(candles, cfg.SupertrendPeriod, cfg.SupertrendMultiplier)

	rows := make([]FeatureRow, n)
	for i := 0; i < n; i++ {
		rows[i] = FeatureRow{
			Candle: candles[i],
			EMA9:   emas[0][i],
			EMA21:  emas[1][i],
			EMA50:  emas[2][i],
			EMA200: emas[3][i],
			RSI:    rsi[i],
			ADX:    adx[i],
			ATR:    atr[i],
			VWAP:   vwap[i],
			OBV:    obv[i],
			VolMA:  volMA[i],

			Supertrend:      st.line[i],
			SupertrendUpper: st.upper[i],
			SupertrendLower: st.lower[i],
			SupertrendDir:   st.dir[i],
		}
	}
	return rows
}

// Last returns the newest row, or false when the series is empty
func Last(rows []FeatureRow) (FeatureRow, bool) {
	if len(rows) == 0 {
		return FeatureRow{}, false
	}
	return rows[len(rows)-1], true
}

// ATRValues extracts the ATR column (NaN where unwarmed), used for the
// volatility sub-score's rolling normalization.
func ATRValues(rows []FeatureRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.ATR
	}
	return out
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

func volumes(candles []bybit.Candle) []float64 {
	v := make([]float64, len(candles))
	for i, c := range candles {
		v[i] = c.Volume
	}
	return v
}

// emaSeries computes an exponential moving average seeded with the SMA
// of the first period values; earlier indexes stay NaN.
func emaSeries(values []float64, period int) []float64 {
	n := len(values)
	out := nanSlice(n)
	if n < period {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	out[period-1] = ema

	multiplier := 2.0 / float64(period+1)
	for i := period; i < n; i++ {
		ema = values[i]*multiplier + ema*(1-multiplier)
		out[i] = ema
	}
	return out
}

// rsiSeries computes the Wilder RSI; NaN for the first period indexes
func rsiSeries(closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSlice(n)
	if n < period+1 {
		return out
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func trueRange(c, prev bybit.Candle) float64 {
	return math.Max(c.High-c.Low,
		math.Max(math.Abs(c.High-prev.Close), math.Abs(c.Low-prev.Close)))
}

// atrSeries computes the Wilder-smoothed average true range; the first
// defined value (index period) is the simple mean of the first period
// true ranges.
func atrSeries(candles []bybit.Candle, period int) []float64 {
	n := len(candles)
	out := nanSlice(n)
	if n < period+1 {
		return out
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += trueRange(candles[i], candles[i-1])
	}
	atr := sum / float64(period)
	out[period] = atr

	for i := period + 1; i < n; i++ {
		tr := trueRange(candles[i], candles[i-1])
		atr = (atr*float64(period-1) + tr) / float64(period)
		out[i] = atr
	}
	return out
}

// adxSeries computes the Wilder ADX from smoothed directional movement.
// Values are NaN until a full DX window has accumulated (index
// 2*period-1 onward).
func adxSeries(candles []bybit.Candle, period int) []float64 {
	n := len(candles)
	out := nanSlice(n)
	if n < 2*period {
		return out
	}

	dx := nanSlice(n)
	var smTR, smPlusDM, smMinusDM float64

	for i := 1; i < n; i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low

		plusDM := 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		minusDM := 0.0
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		tr := trueRange(candles[i], candles[i-1])

		if i <= period {
			smTR += tr
			smPlusDM += plusDM
			smMinusDM += minusDM
			if i < period {
				continue
			}
		} else {
			smTR = smTR - smTR/float64(period) + tr
			smPlusDM = smPlusDM - smPlusDM/float64(period) + plusDM
			smMinusDM = smMinusDM - smMinusDM/float64(period) + minusDM
		}

		if smTR == 0 {
			dx[i] = 0
			continue
		}
		plusDI := 100 * smPlusDM / smTR
		minusDI := 100 * smMinusDM / smTR
		if plusDI+minusDI == 0 {
			dx[i] = 0
			continue
		}
		dx[i] = 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
	}

	// First ADX is the mean of the first period DX values, then Wilder
	sum := 0.0
	for i := period; i < 2*period; i++ {
		sum += dx[i]
	}
	adx := sum / float64(period)
	out[2*period-1] = adx

	for i := 2 * period; i < n; i++ {
		adx = (adx*float64(period-1) + dx[i]) / float64(period)
		out[i] = adx
	}
	return out
}

// vwapSeries computes the cumulative volume-weighted average price over
// the fetched window. Zero-volume candles are excluded from both sums.
func vwapSeries(candles []bybit.Candle) []float64 {
	n := len(candles)
	out := nanSlice(n)

	var cumPV, cumVol float64
	for i, c := range candles {
		if c.Volume > 0 {
			typical := (c.High + c.Low + c.Close) / 3.0
			cumPV += typical * c.Volume
			cumVol += c.Volume
		}
		if cumVol > 0 {
			out[i] = cumPV / cumVol
		}
	}
	return out
}

// obvSeries computes on-balance volume starting from zero
func obvSeries(candles []bybit.Candle) []float64 {
	n := len(candles)
	out := make([]float64, n)
	for i := 1; i < n; i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			out[i] = out[i-1] + candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			out[i] = out[i-1] - candles[i].Volume
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// rollingMean computes a trailing mean over up to window values,
// defined from the first index (partial windows allowed). NaN inputs
// are skipped; an all-NaN window yields NaN.
func rollingMean(values []float64, window int) []float64 {
	n := len(values)
	out := nanSlice(n)
	for i := 0; i < n; i++ {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		sum, count := 0.0, 0
		for j := start; j <= i; j++ {
			if !math.IsNaN(values[j]) {
				sum += values[j]
				count++
			}
		}
		if count > 0 {
			out[i] = sum / float64(count)
		}
	}
	return out
}

// RollingMean is rollingMean exposed for the scorer's ATR normalization
func RollingMean(values []float64, window int) []float64 {
	return rollingMean(values, window)
}
