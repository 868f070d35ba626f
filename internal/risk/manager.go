package risk

import (
	"fmt"

	"github.com/stepannikulin59/btc-intraday-bot/config"
	"github.com/stepannikulin59/btc-intraday-bot/internal/bybit"
	"github.com/stepannikulin59/btc-intraday-bot/internal/indicators"
	"github.com/stepannikulin59/btc-intraday-bot/internal/logging"
	"github.com/stepannikulin59/btc-intraday-bot/internal/notification"
	"github.com/stepannikulin59/btc-intraday-bot/internal/state"
)

// Exchange is the slice of the account API the stop lifecycle needs.
type Exchange interface {
	SetStopLoss(symbol string, price float64) error
	PlaceMarketOrder(req bybit.OrderRequest) (*bybit.OrderResponse, error)
}

// PartialFill describes a partial take-profit the manager just
// executed, for journaling by the caller.
type PartialFill struct {
	Level int
	Side  string
	Qty   float64
	Price float64
}

// Manager owns the protective-stop lifecycle of an open position:
// breakeven promotion, trailing (Supertrend band or ATR offset),
// ratcheting the exchange stop only in the favorable direction, and
// latched partial take-profits. All decisions are re-derived from the
// persisted state each cycle, so a restart or a failed order is
// retried naturally on the next pass.
type Manager struct {
	exchange Exchange
	store    *state.Store
	notifier notification.Notifier
	cfg      config.StopsConfig
	log      *logging.Logger

	// OnPartial, when set, is invoked after each confirmed partial
	// take-profit.
	OnPartial func(symbol string, fill PartialFill)
}

func NewManager(exchange Exchange, store *state.Store, notifier notification.Notifier, cfg config.StopsConfig) *Manager {
	return &Manager{
		exchange: exchange,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		log:      logging.WithComponent("risk"),
	}
}

// UpdateStopsAndPartials runs one lifecycle pass for an open position
// against the latest feature row. It is a no-op until the ATR has
// warmed up.
func (m *Manager) UpdateStopsAndPartials(symbol string, pos bybit.Position, last indicators.FeatureRow, filters bybit.InstrumentFilters) {
	atr := last.ATR
	if !indicators.Valid(atr) || atr <= 0 {
		return
	}

	st := m.store.Get(symbol)
	entry := pos.AvgPrice
	if st.EntryPrice != nil {
		entry = *st.EntryPrice
	}
	if entry <= 0 {
		return
	}

	price := last.Candle.Close
	isBuy := pos.Side == bybit.SideBuy

	var desired *float64

	// Breakeven: once price has run half an ATR (by default) in our
	// favor, the stop may sit at the entry.
	beTrigger := entry + m.cfg.ATRBreakevenMult*atr
	if !isBuy {
		beTrigger = entry - m.cfg.ATRBreakevenMult*atr
	}
	if (isBuy && price >= beTrigger) || (!isBuy && price <= beTrigger) {
		v := roundTo(entry, 2)
		desired = &v
	}

	if cand, ok := m.trailingCandidate(isBuy, price, atr, last); ok {
		if desired == nil ||
			(isBuy && cand > *desired) ||
			(!isBuy && cand < *desired) {
			desired = &cand
		}
	}

	if desired != nil && tighter(isBuy, *desired, st.LastStop) {
		if err := m.exchange.SetStopLoss(symbol, *desired); err != nil {
			m.log.Warn("Stop update rejected", "symbol", symbol, "stop", *desired, "error", err)
		} else {
			if err := m.store.SetLastStop(symbol, *desired); err != nil {
				m.log.Error("Failed to persist stop", "symbol", symbol, "error", err)
			}
			m.log.Info("Stop moved", "symbol", symbol, "stop", *desired, "side", pos.Side)
		}
	}

	m.takePartials(symbol, pos, st, entry, price, atr, filters)
}

// ShouldAddPosition reports whether scaling in is allowed: the trailing
// candidate for the new combined position must not loosen the stop
// already on the exchange.
func (m *Manager) ShouldAddPosition(symbol, side string, last indicators.FeatureRow) bool {
	st := m.store.Get(symbol)
	if st.LastStop == nil {
		return false
	}

	isBuy := side == bybit.SideBuy
	cand, ok := m.trailingCandidate(isBuy, last.Candle.Close, last.ATR, last)
	if !ok {
		return false
	}
	if isBuy {
		return cand >= *st.LastStop
	}
	return cand <= *st.LastStop
}

// trailingCandidate computes the trailing stop for the configured mode,
// rounded to 2 decimals. It reports false when the underlying
// indicator is not available yet.
func (m *Manager) trailingCandidate(isBuy bool, price, atr float64, last indicators.FeatureRow) (float64, bool) {
	if m.cfg.Trailing == "atr" {
		if !indicators.Valid(atr) || atr <= 0 {
			return 0, false
		}
		if isBuy {
			return roundTo(price-m.cfg.TrailATRMult*atr, 2), true
		}
		return roundTo(price+m.cfg.TrailATRMult*atr, 2), true
	}

	band := last.SupertrendLower
	if !isBuy {
		band = last.SupertrendUpper
	}
	if !indicators.Valid(band) {
		return 0, false
	}
	return roundTo(band, 2), true
}

func (m *Manager) takePartials(symbol string, pos bybit.Position, st state.PositionState, entry, price, atr float64, filters bybit.InstrumentFilters) {
	isBuy := pos.Side == bybit.SideBuy
	dir := 1.0
	if !isBuy {
		dir = -1.0
	}

	levels := []struct {
		level   int
		mult    float64
		pct     float64
		taken   bool
		setFlag func(string, bool) error
	}{
		{1, m.cfg.ATRTP1Mult, m.cfg.PartialTP1Pct, st.TookTP1, m.store.SetTookTP1},
		{2, m.cfg.ATRTP2Mult, m.cfg.PartialTP2Pct, st.TookTP2, m.store.SetTookTP2},
	}

	for _, lv := range levels {
		if lv.taken {
			continue
		}
		target := entry + dir*lv.mult*atr
		if (isBuy && price < target) || (!isBuy && price > target) {
			continue
		}

		qty := FloorToStep(pos.Size*lv.pct, filters.QtyStep)
		if qty <= 0 {
			continue
		}

		closeSide := bybit.SideSell
		if !isBuy {
			closeSide = bybit.SideBuy
		}
		resp, err := m.exchange.PlaceMarketOrder(bybit.OrderRequest{
			Symbol:     symbol,
			Side:       closeSide,
			Qty:        qty,
			ReduceOnly: true,
		})
		if err != nil || !resp.OK {
			// flag stays unset so the partial is retried next cycle
			m.log.Warn("Partial take-profit order failed", "symbol", symbol, "level", lv.level, "error", err)
			continue
		}

		if err := lv.setFlag(symbol, true); err != nil {
			m.log.Error("Failed to persist partial flag", "symbol", symbol, "level", lv.level, "error", err)
		}
		m.log.Info("Partial take-profit filled", "symbol", symbol, "level", lv.level, "qty", qty, "price", price)
		if err := m.notifier.Notify(fmt.Sprintf("TP%d %s %s qty=%v around %.2f", lv.level, symbol, pos.Side, qty, price)); err != nil {
			m.log.Warn("Notification failed", "error", err)
		}
		if m.OnPartial != nil {
			m.OnPartial(symbol, PartialFill{Level: lv.level, Side: closeSide, Qty: qty, Price: price})
		}
	}
}

func tighter(isBuy bool, candidate float64, lastStop *float64) bool {
	if lastStop == nil {
		return true
	}
	if isBuy {
		return candidate > *lastStop
	}
	return candidate < *lastStop
}
