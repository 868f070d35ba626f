package risk

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stepannikulin59/btc-intraday-bot/config"
	"github.com/stepannikulin59/btc-intraday-bot/internal/bybit"
	"github.com/stepannikulin59/btc-intraday-bot/internal/indicators"
	"github.com/stepannikulin59/btc-intraday-bot/internal/notification"
	"github.com/stepannikulin59/btc-intraday-bot/internal/state"
)

const testSymbol = "BTCUSDT"

func newTestManager(t *testing.T) (*Manager, *bybit.MockClient, *state.Store) {
	t.Helper()
	store, err := state.Open(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	mock := bybit.NewMockClient()
	m := NewManager(mock, store, notification.Nop{}, config.Default().StopsConfig)
	return m, mock, store
}

// lifecycleRow builds a feature row with the fields the lifecycle reads.
func lifecycleRow(price, atr, lower, upper float64) indicators.FeatureRow {
	return indicators.FeatureRow{
		Candle:          bybit.Candle{Close: price},
		ATR:             atr,
		SupertrendLower: lower,
		SupertrendUpper: upper,
	}
}

func longPos(size float64) bybit.Position {
	return bybit.Position{Symbol: testSymbol, Side: bybit.SideBuy, Size: size, AvgPrice: 100}
}

func TestLifecycleNoopWithoutATR(t *testing.T) {
	m, mock, store := newTestManager(t)
	store.ResetPosition(testSymbol, 100)

	row := lifecycleRow(105, math.NaN(), 95, 110)
	m.UpdateStopsAndPartials(testSymbol, longPos(1), row, mock.Filters)

	if len(mock.StopUpdates) != 0 || len(mock.Orders) != 0 {
		t.Error("lifecycle acted without a warmed-up ATR")
	}
}

func TestBreakevenPromotion(t *testing.T) {
	m, mock, store := newTestManager(t)
	store.ResetPosition(testSymbol, 100)

	// entry 100, ATR 2, breakeven multiplier 0.5: trigger at 101.
	// Keep the band below entry so only breakeven can move the stop.
	row := lifecycleRow(101, 2, 95, 110)
	m.UpdateStopsAndPartials(testSymbol, longPos(1), row, mock.Filters)

	if len(mock.StopUpdates) != 1 {
		t.Fatalf("expected one stop update, got %d", len(mock.StopUpdates))
	}
	if mock.StopUpdates[0] != 100 {
		t.Errorf("stop = %v, want breakeven at entry 100", mock.StopUpdates[0])
	}
	if st := store.Get(testSymbol); st.LastStop == nil || *st.LastStop != 100 {
		t.Error("breakeven stop not persisted")
	}
}

func TestBreakevenNotTriggeredEarly(t *testing.T) {
	m, mock, store := newTestManager(t)
	store.ResetPosition(testSymbol, 100)

	row := lifecycleRow(100.5, 2, 90, 110) // below the 101 trigger, band loose
	m.UpdateStopsAndPartials(testSymbol, longPos(1), row, mock.Filters)

	for _, s := range mock.StopUpdates {
		if s >= 100 {
			t.Errorf("stop %v at entry before the breakeven trigger", s)
		}
	}
}

func TestTrailingFollowsSupertrendBand(t *testing.T) {
	m, mock, store := newTestManager(t)
	store.ResetPosition(testSymbol, 100)

	row := lifecycleRow(100.5, 2, 98, 110) // band above any breakeven candidate
	m.UpdateStopsAndPartials(testSymbol, longPos(1), row, mock.Filters)

	if len(mock.StopUpdates) != 1 || mock.StopUpdates[0] != 98 {
		t.Fatalf("stop updates = %v, want [98]", mock.StopUpdates)
	}
}

func TestTrailingPicksTighterOfBreakevenAndBand(t *testing.T) {
	m, mock, store := newTestManager(t)
	store.ResetPosition(testSymbol, 100)

	// both candidates apply: breakeven 100 vs band 102, long keeps the higher
	row := lifecycleRow(104, 2, 102, 115)
	m.UpdateStopsAndPartials(testSymbol, longPos(1), row, mock.Filters)

	if len(mock.StopUpdates) == 0 || mock.StopUpdates[0] != 102 {
		t.Fatalf("stop updates = %v, want first 102", mock.StopUpdates)
	}
}

func TestStopNeverLoosens(t *testing.T) {
	m, mock, store := newTestManager(t)
	store.ResetPosition(testSymbol, 100)
	store.SetLastStop(testSymbol, 99)

	// band retreats below the stop already on the exchange
	row := lifecycleRow(100.2, 2, 97, 110)
	m.UpdateStopsAndPartials(testSymbol, longPos(1), row, mock.Filters)

	if len(mock.StopUpdates) != 0 {
		t.Errorf("stop moved backwards: %v", mock.StopUpdates)
	}
}

func TestStopRatchetsShortSide(t *testing.T) {
	m, mock, store := newTestManager(t)
	store.ResetPosition(testSymbol, 100)
	store.SetLastStop(testSymbol, 103)

	pos := bybit.Position{Symbol: testSymbol, Side: bybit.SideSell, Size: 1, AvgPrice: 100}

	// tighter for a short means lower
	row := lifecycleRow(99, 2, 90, 102)
	m.UpdateStopsAndPartials(testSymbol, pos, row, mock.Filters)
	if len(mock.StopUpdates) != 1 || mock.StopUpdates[0] != 100 {
		// breakeven trigger 99 reached, entry 100 beats band 102
		t.Fatalf("stop updates = %v, want [100]", mock.StopUpdates)
	}

	// a higher candidate afterwards must be ignored
	mock.StopUpdates = nil
	row = lifecycleRow(99.5, 2, 90, 101)
	m.UpdateStopsAndPartials(testSymbol, pos, row, mock.Filters)
	if len(mock.StopUpdates) != 0 {
		t.Errorf("short stop loosened: %v", mock.StopUpdates)
	}
}

func TestStopFailureKeepsPersistedStop(t *testing.T) {
	m, mock, store := newTestManager(t)
	store.ResetPosition(testSymbol, 100)
	mock.FailStops = true

	row := lifecycleRow(101, 2, 98, 110)
	m.UpdateStopsAndPartials(testSymbol, longPos(1), row, mock.Filters)

	if st := store.Get(testSymbol); st.LastStop != nil {
		t.Error("rejected stop was persisted")
	}
}

func TestPartialTakeProfits(t *testing.T) {
	m, mock, store := newTestManager(t)
	store.ResetPosition(testSymbol, 100)

	var fills []PartialFill
	m.OnPartial = func(symbol string, f PartialFill) { fills = append(fills, f) }

	// entry 100, ATR 2: TP1 at 102, TP2 at 104. Price at 103 hits TP1 only.
	row := lifecycleRow(103, 2, 95, 110)
	m.UpdateStopsAndPartials(testSymbol, longPos(1), row, mock.Filters)

	if len(mock.Orders) != 1 {
		t.Fatalf("expected one partial order, got %d", len(mock.Orders))
	}
	order := mock.Orders[0]
	if order.Side != bybit.SideSell || !order.ReduceOnly {
		t.Errorf("partial must be a reduce-only sell, got %+v", order)
	}
	if order.Qty != 0.3 {
		t.Errorf("partial qty = %v, want 0.3", order.Qty)
	}
	if st := store.Get(testSymbol); !st.TookTP1 || st.TookTP2 {
		t.Errorf("flags = tp1:%v tp2:%v, want tp1 only", st.TookTP1, st.TookTP2)
	}
	if len(fills) != 1 || fills[0].Level != 1 {
		t.Errorf("fills = %+v, want one level-1 fill", fills)
	}

	// same price again: TP1 is latched, nothing new fires
	m.UpdateStopsAndPartials(testSymbol, longPos(0.7), row, mock.Filters)
	if len(mock.Orders) != 1 {
		t.Errorf("latched partial fired again, orders = %d", len(mock.Orders))
	}

	// price runs to TP2
	row = lifecycleRow(104.5, 2, 95, 110)
	m.UpdateStopsAndPartials(testSymbol, longPos(0.7), row, mock.Filters)
	if len(mock.Orders) != 2 {
		t.Fatalf("expected TP2 order, got %d orders", len(mock.Orders))
	}
	if st := store.Get(testSymbol); !st.TookTP2 {
		t.Error("TP2 flag not latched")
	}
}

func TestPartialOrderFailureRetries(t *testing.T) {
	m, mock, store := newTestManager(t)
	store.ResetPosition(testSymbol, 100)
	mock.FailOrders = true

	row := lifecycleRow(103, 2, 95, 110)
	m.UpdateStopsAndPartials(testSymbol, longPos(1), row, mock.Filters)

	if st := store.Get(testSymbol); st.TookTP1 {
		t.Fatal("flag latched on a failed order")
	}

	// next cycle the order succeeds and the flag latches
	mock.FailOrders = false
	m.UpdateStopsAndPartials(testSymbol, longPos(1), row, mock.Filters)
	if st := store.Get(testSymbol); !st.TookTP1 {
		t.Error("partial not retried after the failure")
	}
}

func TestShouldAddPosition(t *testing.T) {
	m, _, store := newTestManager(t)

	row := lifecycleRow(105, 2, 101, 112)

	// no stop on the exchange yet means no pyramid
	if m.ShouldAddPosition(testSymbol, bybit.SideBuy, row) {
		t.Error("add allowed without a placed stop")
	}

	store.SetLastStop(testSymbol, 100)
	if !m.ShouldAddPosition(testSymbol, bybit.SideBuy, row) {
		t.Error("add refused although the band (101) is at or above the stop (100)")
	}

	store.SetLastStop(testSymbol, 102)
	if m.ShouldAddPosition(testSymbol, bybit.SideBuy, row) {
		t.Error("add allowed although it would loosen the stop")
	}
}

func TestShouldAddPositionShortSide(t *testing.T) {
	m, _, store := newTestManager(t)
	store.SetLastStop(testSymbol, 110)

	row := lifecycleRow(105, 2, 95, 108)
	if !m.ShouldAddPosition(testSymbol, bybit.SideSell, row) {
		t.Error("short add refused although the band (108) is at or below the stop (110)")
	}

	store.SetLastStop(testSymbol, 107)
	if m.ShouldAddPosition(testSymbol, bybit.SideSell, row) {
		t.Error("short add allowed although it would loosen the stop")
	}
}

func TestShouldAddPositionATRMode(t *testing.T) {
	cfg := config.Default().StopsConfig
	cfg.Trailing = "atr"
	store, err := state.Open(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	m := NewManager(bybit.NewMockClient(), store, notification.Nop{}, cfg)

	store.SetLastStop(testSymbol, 100)

	// price 105, ATR 2, multiplier 1.0: candidate 103 >= 100
	row := lifecycleRow(105, 2, math.NaN(), math.NaN())
	if !m.ShouldAddPosition(testSymbol, bybit.SideBuy, row) {
		t.Error("ATR-mode add refused with a tighter candidate")
	}

	// unwarmed ATR blocks the gate entirely
	row = lifecycleRow(105, math.NaN(), math.NaN(), math.NaN())
	if m.ShouldAddPosition(testSymbol, bybit.SideBuy, row) {
		t.Error("ATR-mode add allowed without an ATR")
	}
}
