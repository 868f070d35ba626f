package scoring

import (
	"math"
	"testing"

	"github.com/stepannikulin59/btc-intraday-bot/config"
	"github.com/stepannikulin59/btc-intraday-bot/internal/bybit"
	"github.com/stepannikulin59/btc-intraday-bot/internal/indicators"
)

func floatPtr(v float64) *float64 { return &v }

// row builds a single fully-populated feature row; tests tweak the
// fields they care about.
func row() indicators.FeatureRow {
	return indicators.FeatureRow{
		Candle: bybit.Candle{Close: 105, Volume: 100},
		EMA9:   104, EMA21: 103, EMA50: 102, EMA200: 100,
		RSI:    55,
		ADX:    30,
		ATR:    2,
		VWAP:   104,
		VolMA:  100,
	}
}

func newScorer() *Scorer {
	return NewScorer(config.Default().ScoringConfig)
}

func TestScoreBullishScenario(t *testing.T) {
	s := newScorer()
	rows := []indicators.FeatureRow{row()}
	metrics := bybit.Metrics{
		Funding:        floatPtr(0.0001),
		Basis:          floatPtr(0.5),
		LongShortRatio: []float64{1.1, 1.3},
	}

	total, bd := s.Score(rows, metrics)

	// stacked EMAs +0.4, ADX 30 >= 25 +0.2, close above VWAP +0.1
	if bd.TA != 0.7 {
		t.Errorf("TA = %v, want 0.7", bd.TA)
	}
	// funding +0.05, basis +0.1, LSR 1.3 > 1 +0.1
	if bd.Exchange != 0.25 {
		t.Errorf("Exchange = %v, want 0.25", bd.Exchange)
	}
	// volume exactly at its moving average sits at the pivot
	if bd.Volume != 0 {
		t.Errorf("Volume = %v, want 0", bd.Volume)
	}
	want := math.Round((0.7*0.45+0.25*0.25+bd.Volatility*0.15)*100) / 100
	if total != want {
		t.Errorf("total = %v, want %v", total, want)
	}
}

func TestScoreMissingMetricsAreNeutral(t *testing.T) {
	s := newScorer()
	rows := []indicators.FeatureRow{row()}

	_, withNone := s.Score(rows, bybit.Metrics{})
	if withNone.Exchange != 0 {
		t.Errorf("Exchange = %v with no metrics, want 0", withNone.Exchange)
	}
}

func TestScoreEmptyRows(t *testing.T) {
	s := newScorer()
	total, bd := s.Score(nil, bybit.Metrics{Funding: floatPtr(0.0001)})
	if bd.TA != 0 || bd.Volume != 0 || bd.Volatility != 0 {
		t.Errorf("row-dependent components nonzero without rows: %+v", bd)
	}
	// exchange metrics still score without candles
	if bd.Exchange != 0.05 {
		t.Errorf("Exchange = %v, want 0.05", bd.Exchange)
	}
	if total != math.Round(0.05*0.25*100)/100 {
		t.Errorf("total = %v", total)
	}
}

func TestTASubscoreBearishStackAndExtremes(t *testing.T) {
	s := newScorer()
	r := row()
	r.EMA9, r.EMA21, r.EMA50 = 100, 101, 102 // bearish stack
	r.RSI = 75                               // overbought penalty
	r.ADX = 10                               // below trend threshold
	r.Candle.Close = 99                      // below VWAP
	r.VWAP = 104

	_, bd := s.Score([]indicators.FeatureRow{r}, bybit.Metrics{})
	// -0.4 stack, -0.1 RSI, -0.1 VWAP
	if bd.TA != -0.6 {
		t.Errorf("TA = %v, want -0.6", bd.TA)
	}
}

func TestTASubscoreSkipsUnwarmedIndicators(t *testing.T) {
	s := newScorer()
	r := row()
	nan := math.NaN()
	r.EMA9, r.EMA21, r.EMA50 = nan, nan, nan
	r.RSI, r.ADX, r.VWAP = nan, nan, nan
	r.ATR, r.VolMA = nan, nan

	total, bd := s.Score([]indicators.FeatureRow{r}, bybit.Metrics{})
	if total != 0 || bd.TA != 0 || bd.Volume != 0 || bd.Volatility != 0 {
		t.Errorf("unwarmed indicators should score zero, got total=%v %+v", total, bd)
	}
}

func TestVolumeSubscoreInterpolation(t *testing.T) {
	s := newScorer()

	cases := []struct {
		vol  float64
		want float64
	}{
		{200, 0.6},  // 2.0x, beyond the surge threshold
		{150, 0.6},  // exactly at the threshold
		{125, 0.3},  // halfway between pivot and surge
		{100, 0.0},  // at the pivot
		{85, -0.2},  // halfway between pivot and lull
		{70, -0.4},  // at the lull threshold
		{10, -0.4},  // beyond the lull threshold
	}
	for _, tc := range cases {
		r := row()
		r.Candle.Volume = tc.vol
		r.VolMA = 100
		_, bd := s.Score([]indicators.FeatureRow{r}, bybit.Metrics{})
		if math.Abs(bd.Volume-tc.want) > 1e-9 {
			t.Errorf("vol=%v: Volume = %v, want %v", tc.vol, bd.Volume, tc.want)
		}
	}
}

func TestVolumeSubscoreZeroAverage(t *testing.T) {
	s := newScorer()
	r := row()
	r.VolMA = 0
	_, bd := s.Score([]indicators.FeatureRow{r}, bybit.Metrics{})
	if bd.Volume != 0 {
		t.Errorf("Volume = %v with zero average, want 0", bd.Volume)
	}
}

func TestVolumeSubscoreClampedUnderWideConfig(t *testing.T) {
	cfg := config.Default().ScoringConfig
	cfg.Volume.ScoreHi = 2.5
	cfg.Volume.ScoreLo = -2.5
	s := NewScorer(cfg)

	r := row()
	r.Candle.Volume = 300 // deep in surge territory
	r.VolMA = 100
	_, bd := s.Score([]indicators.FeatureRow{r}, bybit.Metrics{})
	if bd.Volume != 1 {
		t.Errorf("Volume = %v, want 1 (clamped)", bd.Volume)
	}

	r.Candle.Volume = 10 // deep in lull territory
	_, bd = s.Score([]indicators.FeatureRow{r}, bybit.Metrics{})
	if bd.Volume != -1 {
		t.Errorf("Volume = %v, want -1 (clamped)", bd.Volume)
	}
}

func TestVolatilitySubscoreHotAndMomentum(t *testing.T) {
	s := newScorer()

	// 21 rows with a flat ATR history, then a hot last ATR
	rows := make([]indicators.FeatureRow, 21)
	for i := range rows {
		rows[i] = row()
		rows[i].ATR = 1.0
	}
	last := &rows[len(rows)-1]
	last.ATR = 2.0 // well above its rolling mean
	last.EMA21 = 100
	last.Candle.Close = 102 // z = (102-100)/2 = 1.0 >= 0.6

	_, bd := s.Score(rows, bybit.Metrics{})
	if bd.Volatility != 0.5 {
		t.Errorf("Volatility = %v, want 0.5 (hot 0.3 + momentum 0.2)", bd.Volatility)
	}
}

func TestVolatilitySubscoreColdAndDownMomentum(t *testing.T) {
	s := newScorer()

	rows := make([]indicators.FeatureRow, 21)
	for i := range rows {
		rows[i] = row()
		rows[i].ATR = 2.0
	}
	last := &rows[len(rows)-1]
	last.ATR = 1.0 // below the cold ratio
	last.EMA21 = 106
	last.Candle.Close = 105 // z = -1.0 <= -0.6

	_, bd := s.Score(rows, bybit.Metrics{})
	if bd.Volatility != -0.5 {
		t.Errorf("Volatility = %v, want -0.5", bd.Volatility)
	}
}

func TestComponentsClamped(t *testing.T) {
	cfg := config.Default().ScoringConfig
	cfg.Exchange.FundingPos = 2.0
	cfg.Exchange.BasisPos = 2.0
	s := NewScorer(cfg)

	_, bd := s.Score([]indicators.FeatureRow{row()}, bybit.Metrics{
		Funding: floatPtr(0.001),
		Basis:   floatPtr(1.0),
	})
	if bd.Exchange != 1.0 {
		t.Errorf("Exchange = %v, want clamp at 1.0", bd.Exchange)
	}
}
