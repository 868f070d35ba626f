package risk

import (
	"math"
	"testing"

	"github.com/stepannikulin59/btc-intraday-bot/config"
	"github.com/stepannikulin59/btc-intraday-bot/internal/bybit"
)

var btcFilters = bybit.InstrumentFilters{QtyStep: 0.001, MinQty: 0.001, MinOrderValue: 5.0}

func TestComputePositionSize(t *testing.T) {
	// 1% of 1000 USDT against a 1% move at 50000 is 0.02 BTC
	qty := ComputePositionSize(1000, 50000, 0.01, btcFilters)
	if qty != 0.02 {
		t.Errorf("qty = %v, want 0.02", qty)
	}
}

func TestComputePositionSizeFloorsToStep(t *testing.T) {
	qty := ComputePositionSize(1000, 43211, 0.01, btcFilters)
	// raw = 10 / 432.11 = 0.023142..., floored to 0.023
	if qty != 0.023 {
		t.Errorf("qty = %v, want 0.023", qty)
	}
}

func TestComputePositionSizeRespectsMinOrderValue(t *testing.T) {
	f := bybit.InstrumentFilters{QtyStep: 0.001, MinQty: 0.001, MinOrderValue: 100.0}
	qty := ComputePositionSize(1000, 50000, 0.0001, f)
	// risk sizing alone gives 0.001 BTC = 50 USDT, below the minimum
	if qty*50000 < 100.0-1e-6 {
		t.Errorf("qty %v does not meet the minimum order value", qty)
	}
}

func TestComputePositionSizeNeverBelowMinQty(t *testing.T) {
	qty := ComputePositionSize(1, 50000, 0.0001, btcFilters)
	if qty < btcFilters.MinQty {
		t.Errorf("qty = %v below the minimum %v", qty, btcFilters.MinQty)
	}
}

func TestComputePositionSizeInvalidInputs(t *testing.T) {
	if qty := ComputePositionSize(0, 50000, 0.01, btcFilters); qty != 0 {
		t.Errorf("qty = %v for zero equity, want 0", qty)
	}
	if qty := ComputePositionSize(1000, 0, 0.01, btcFilters); qty != 0 {
		t.Errorf("qty = %v for zero price, want 0", qty)
	}
	if qty := ComputePositionSize(1000, -5, 0.01, btcFilters); qty != 0 {
		t.Errorf("qty = %v for negative price, want 0", qty)
	}
}

func TestComputeInitialStopsFromATR(t *testing.T) {
	cfg := config.Default().StopsConfig

	long := ComputeInitialStops(bybit.SideBuy, 50000, 200, cfg)
	if long.StopLoss != 49800 || long.TP1 != 50200 || long.TP2 != 50400 {
		t.Errorf("long bracket = %+v", long)
	}
	if !(long.StopLoss < 50000 && 50000 < long.TP1 && long.TP1 < long.TP2) {
		t.Errorf("long bracket misordered: %+v", long)
	}

	short := ComputeInitialStops(bybit.SideSell, 50000, 200, cfg)
	if short.StopLoss != 50200 || short.TP1 != 49800 || short.TP2 != 49600 {
		t.Errorf("short bracket = %+v", short)
	}
	if !(short.TP2 < short.TP1 && short.TP1 < 50000 && 50000 < short.StopLoss) {
		t.Errorf("short bracket misordered: %+v", short)
	}
}

func TestComputeInitialStopsFallback(t *testing.T) {
	cfg := config.Default().StopsConfig

	long := ComputeInitialStops(bybit.SideBuy, 50000, math.NaN(), cfg)
	if long.StopLoss != 49600 { // 0.8% below
		t.Errorf("fallback stop = %v, want 49600", long.StopLoss)
	}
	if long.TP1 != 50600 || long.TP2 != 51200 { // 1.2% and 2.4% above
		t.Errorf("fallback targets = %v / %v", long.TP1, long.TP2)
	}

	zeroATR := ComputeInitialStops(bybit.SideBuy, 50000, 0, cfg)
	if zeroATR != long {
		t.Errorf("zero ATR should use the fallback bracket, got %+v", zeroATR)
	}
}

func TestFloorToStep(t *testing.T) {
	if got := FloorToStep(0.0237, 0.001); got != 0.023 {
		t.Errorf("FloorToStep = %v, want 0.023", got)
	}
	if got := FloorToStep(1.5, 0); got != 1.5 {
		t.Errorf("zero step should pass through, got %v", got)
	}
}
