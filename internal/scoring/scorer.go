package scoring

import (
	"math"

	"github.com/stepannikulin59/btc-intraday-bot/config"
	"github.com/stepannikulin59/btc-intraday-bot/internal/bybit"
	"github.com/stepannikulin59/btc-intraday-bot/internal/indicators"
)

// Breakdown holds the four component scores, each clamped to [-1, 1]
// and rounded to 3 decimals.
type Breakdown struct {
	TA         float64 `json:"ta"`
	Exchange   float64 `json:"exchange"`
	Volume     float64 `json:"volume"`
	Volatility float64 `json:"volatility"`
}

// Scorer combines technical, exchange-microstructure, volume and
// volatility components into one weighted directional score. Absent
// inputs (unwarmed indicators, missing metrics) contribute zero to
// their component; they never fail the scoring.
type Scorer struct {
	cfg config.ScoringConfig
}

// NewScorer creates a scorer with the given weights and thresholds
func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score evaluates the latest feature row against the metrics bundle.
// The total is rounded to 2 decimals; weights are applied to components
// already clamped to [-1, 1], so the total stays within the sum of
// absolute weights.
func (s *Scorer) Score(rows []indicators.FeatureRow, metrics bybit.Metrics) (float64, Breakdown) {
	ta := s.taSubscore(rows)
	exch := s.exchangeSubscore(metrics)
	volm := s.volumeSubscore(rows)
	vola := s.volatilitySubscore(rows)

	w := s.cfg.Weights
	total := ta*w.TA + exch*w.Exchange + volm*w.Volume + vola*w.Volatility

	return round2(total), Breakdown{
		TA:         round3(ta),
		Exchange:   round3(exch),
		Volume:     round3(volm),
		Volatility: round3(vola),
	}
}

// taSubscore sums the EMA-stack bonus, ADX trend bonus, RSI extreme
// penalty and VWAP alignment, then clamps.
func (s *Scorer) taSubscore(rows []indicators.FeatureRow) float64 {
	last, ok := indicators.Last(rows)
	if !ok {
		return 0
	}
	cfg := s.cfg.TA
	score := 0.0

	if indicators.Valid(last.EMA9) && indicators.Valid(last.EMA21) && indicators.Valid(last.EMA50) {
		if last.EMA9 > last.EMA21 && last.EMA21 > last.EMA50 {
			score += cfg.EMAStackBonus
		} else if last.EMA9 < last.EMA21 && last.EMA21 < last.EMA50 {
			score -= cfg.EMAStackBonus
		}
	}

	if indicators.Valid(last.ADX) && last.ADX >= cfg.ADXTrend {
		score += cfg.ADXScore
	}

	if indicators.Valid(last.RSI) && (last.RSI >= cfg.RSIHot || last.RSI <= cfg.RSICold) {
		score += cfg.RSIScore
	}

	if indicators.Valid(last.VWAP) {
		if last.Candle.Close >= last.VWAP {
			score += cfg.VWAPAlignment
		} else {
			score -= cfg.VWAPAlignment
		}
	}

	return clamp(score)
}

// exchangeSubscore signs each microstructure input independently and
// sums. Missing inputs contribute nothing.
func (s *Scorer) exchangeSubscore(metrics bybit.Metrics) float64 {
	cfg := s.cfg.Exchange
	score := 0.0

	if metrics.Funding != nil {
		if *metrics.Funding > 0 {
			score += cfg.FundingPos
		} else if *metrics.Funding < 0 {
			score += cfg.FundingNeg
		}
	}

	if metrics.Basis != nil {
		if *metrics.Basis > 0 {
			score += cfg.BasisPos
		} else if *metrics.Basis < 0 {
			score += cfg.BasisNeg
		}
	}

	if lsr, ok := metrics.LatestLongShortRatio(); ok {
		if lsr > 1.0 {
			score += cfg.LSRPos
		} else if lsr < 1.0 {
			score += cfg.LSRNeg
		}
	}

	return clamp(score)
}

// volumeSubscore scores the current volume against its moving average:
// fixed scores beyond the surge/lull thresholds, linear interpolation
// toward zero between them, pivoting at a ratio of 1.0.
func (s *Scorer) volumeSubscore(rows []indicators.FeatureRow) float64 {
	last, ok := indicators.Last(rows)
	if !ok {
		return 0
	}
	cfg := s.cfg.Volume

	vol := last.Candle.Volume
	if !indicators.Valid(last.VolMA) || last.VolMA <= 0 {
		return 0
	}

	surge := vol / math.Max(last.VolMA, 1e-9)
	if surge >= cfg.SurgeHi {
		return clamp(cfg.ScoreHi)
	}
	if surge <= cfg.SurgeLo {
		return clamp(cfg.ScoreLo)
	}

	const mid = 1.0
	if surge >= mid {
		frac := (surge - mid) / math.Max(cfg.SurgeHi-mid, 1e-9)
		return clamp(frac * cfg.ScoreHi)
	}
	frac := (mid - surge) / math.Max(mid-cfg.SurgeLo, 1e-9)
	return clamp(-frac * math.Abs(cfg.ScoreLo))
}

// volatilitySubscore classifies the ATR against its own rolling mean
// (hot/cold) and adds an ATR-normalized momentum term relative to
// EMA21, then clamps.
func (s *Scorer) volatilitySubscore(rows []indicators.FeatureRow) float64 {
	last, ok := indicators.Last(rows)
	if !ok {
		return 0
	}
	cfg := s.cfg.Volatility

	if !indicators.Valid(last.ATR) || last.ATR <= 0 {
		return 0
	}

	atrMA := indicators.RollingMean(indicators.ATRValues(rows), cfg.ATRMAWindow)
	mean := atrMA[len(atrMA)-1]
	if !indicators.Valid(mean) {
		return 0
	}

	score := 0.0
	ratio := last.ATR / math.Max(mean, 1e-9)
	if ratio >= cfg.HotRatio {
		score += cfg.ScoreHot
	} else if ratio <= cfg.ColdRatio {
		score += cfg.ScoreCold
	}

	if indicators.Valid(last.EMA21) {
		z := (last.Candle.Close - last.EMA21) / math.Max(last.ATR, 1e-9)
		if z >= cfg.ZMomentumHi {
			score += cfg.ScoreZHi
		} else if z <= cfg.ZMomentumLo {
			score += cfg.ScoreZLo
		}
	}

	return clamp(score)
}

func clamp(v float64) float64 {
	return math.Max(math.Min(v, 1.0), -1.0)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
