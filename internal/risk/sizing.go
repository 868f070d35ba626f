package risk

import (
	"math"

	"github.com/stepannikulin59/btc-intraday-bot/config"
	"github.com/stepannikulin59/btc-intraday-bot/internal/bybit"
)

// ComputePositionSize converts an equity fraction into an order
// quantity respecting the instrument's lot filters. The risk fraction
// is interpreted against a 1% adverse move, so the raw quantity is
// equity*riskPct / (price*0.01). The result is bumped to meet the
// minimum order value, floored to the lot step, and never below the
// minimum quantity. A non-positive price or equity yields zero.
func ComputePositionSize(equity, price, riskPct float64, f bybit.InstrumentFilters) float64 {
	if price <= 0 || equity <= 0 {
		return 0
	}

	raw := math.Max(equity*riskPct/(price*0.01), f.MinQty)
	if raw*price < f.MinOrderValue {
		raw = f.MinOrderValue / price
	}

	qty := math.Max(FloorToStep(raw, f.QtyStep), f.MinQty)
	return roundTo(qty, 6)
}

// StopsTargets is the initial protective bracket for a new position.
type StopsTargets struct {
	StopLoss float64
	TP1      float64
	TP2      float64
}

// ComputeInitialStops derives the protective stop and two take-profit
// levels from the ATR when it is available, falling back to fixed
// percentage offsets when the indicator has not warmed up. All levels
// are rounded to 2 decimals.
func ComputeInitialStops(side string, entry, atr float64, cfg config.StopsConfig) StopsTargets {
	dir := 1.0
	if side == bybit.SideSell {
		dir = -1.0
	}

	if !math.IsNaN(atr) && atr > 0 {
		return StopsTargets{
			StopLoss: roundTo(entry-dir*cfg.ATRStopMult*atr, 2),
			TP1:      roundTo(entry+dir*cfg.ATRTP1Mult*atr, 2),
			TP2:      roundTo(entry+dir*cfg.ATRTP2Mult*atr, 2),
		}
	}

	return StopsTargets{
		StopLoss: roundTo(entry*(1-dir*cfg.FallbackSLPct), 2),
		TP1:      roundTo(entry*(1+dir*cfg.FallbackTPPct), 2),
		TP2:      roundTo(entry*(1+dir*2*cfg.FallbackTPPct), 2),
	}
}

// FloorToStep floors a quantity to the exchange lot step. A
// non-positive step returns the quantity unchanged.
func FloorToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Floor(qty/step) * step
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
