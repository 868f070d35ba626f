package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stepannikulin59/btc-intraday-bot/config"
	"github.com/stepannikulin59/btc-intraday-bot/internal/bybit"
	"github.com/stepannikulin59/btc-intraday-bot/internal/indicators"
	"github.com/stepannikulin59/btc-intraday-bot/internal/journal"
	"github.com/stepannikulin59/btc-intraday-bot/internal/logging"
	"github.com/stepannikulin59/btc-intraday-bot/internal/notification"
	"github.com/stepannikulin59/btc-intraday-bot/internal/regime"
	"github.com/stepannikulin59/btc-intraday-bot/internal/risk"
	"github.com/stepannikulin59/btc-intraday-bot/internal/scoring"
	"github.com/stepannikulin59/btc-intraday-bot/internal/state"
	"github.com/stepannikulin59/btc-intraday-bot/internal/telegram"
)

// Cycle cadences. A disabled bot idles faster than a working one so a
// /on command takes effect quickly; an empty kline response backs off
// a little before retrying.
const (
	delayDisabled = 5 * time.Second
	delayNoData   = 10 * time.Second
	delayCycle    = 15 * time.Second
)

// Snapshot is the last completed cycle's view of the market and the
// position, published for the HTTP API and the Telegram commands.
type Snapshot struct {
	Time        time.Time         `json:"time"`
	Symbol      string            `json:"symbol"`
	Price       float64           `json:"price"`
	Score       float64           `json:"score"`
	Breakdown   scoring.Breakdown `json:"breakdown"`
	Regime      string            `json:"regime"`
	HasPosition bool              `json:"has_position"`
	Side        string            `json:"side,omitempty"`
	Size        float64           `json:"size,omitempty"`
	EntryPrice  *float64          `json:"entry_price,omitempty"`
	LastStop    *float64          `json:"last_stop,omitempty"`
	Enabled     bool              `json:"enabled"`
}

// prevPosition is the previous cycle's position view, kept to detect
// an exit that happened on the exchange (stop or take-profit filled)
// between cycles.
type prevPosition struct {
	has   bool
	side  string
	size  float64
	entry float64
}

// Bot runs the decision loop for a single symbol: fetch candles and
// exchange metrics, compute features, score, classify the regime, then
// either manage the open position or look for an entry.
type Bot struct {
	cfg      *config.Config
	market   bybit.MarketData
	account  bybit.Account
	scorer   *scoring.Scorer
	riskMgr  *risk.Manager
	store    *state.Store
	journal  journal.Recorder
	notifier notification.Notifier
	sw       *telegram.Switch
	log      *logging.Logger

	mu       sync.RWMutex
	snapshot Snapshot

	prev        prevPosition
	lastEntryAt time.Time
	lastAddAt   time.Time

	filters       bybit.InstrumentFilters
	filtersLoaded bool
}

func New(
	cfg *config.Config,
	market bybit.MarketData,
	account bybit.Account,
	store *state.Store,
	rec journal.Recorder,
	notifier notification.Notifier,
	sw *telegram.Switch,
) *Bot {
	b := &Bot{
		cfg:      cfg,
		market:   market,
		account:  account,
		scorer:   scoring.NewScorer(cfg.ScoringConfig),
		store:    store,
		journal:  rec,
		notifier: notifier,
		sw:       sw,
		log:      logging.WithComponent("bot"),
		snapshot: Snapshot{Symbol: cfg.TradingConfig.Symbol},
	}
	b.riskMgr = risk.NewManager(account, store, notifier, cfg.StopsConfig)
	b.riskMgr.OnPartial = b.journalPartial
	return b
}

// Snapshot returns the last published cycle snapshot.
func (b *Bot) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.snapshot
	s.Enabled = b.sw.Enabled()
	return s
}

// Status answers the Telegram command bot with fresh market data, so
// /price and /why stay live while trading is off and the cycle is not
// publishing. Falls back to the last snapshot when no candles come back.
func (b *Bot) Status() telegram.Status {
	s := b.Snapshot()
	st := telegram.Status{
		Symbol:      s.Symbol,
		Price:       s.Price,
		Score:       s.Score,
		Breakdown:   s.Breakdown,
		Regime:      s.Regime,
		HasPosition: s.HasPosition,
		EntryPrice:  s.EntryPrice,
	}

	tc := b.cfg.TradingConfig
	candles := b.market.GetKlines(tc.Symbol, tc.Interval, tc.CandleLimit)
	if len(candles) == 0 {
		return st
	}
	rows := indicators.Calculate(candles, indicators.Config{
		SupertrendPeriod:     b.cfg.IndicatorsConfig.SupertrendPeriod,
		SupertrendMultiplier: b.cfg.IndicatorsConfig.SupertrendMultiplier,
	})
	last, _ := indicators.Last(rows)
	metrics := b.collectMetrics(tc.Symbol)
	score, breakdown := b.scorer.Score(rows, metrics)
	reg := regime.Detect(rows, metrics, b.cfg.RegimeConfig)

	st.Price = last.Candle.Close
	st.Score = score
	st.Breakdown = breakdown
	st.Regime = string(reg)
	return st
}

// AvailableBalance reports the available USDT balance for /balance.
func (b *Bot) AvailableBalance() (float64, error) {
	return b.account.GetAvailableBalance("USDT")
}

// DailySummary reports today's journal totals for /status.
func (b *Bot) DailySummary() (journal.Summary, error) {
	return b.journal.DailySummary(time.Now().UTC())
}

// Run drives the decision loop until the context is canceled. Leverage
// is set once up front; a rejection is logged but not fatal since the
// exchange keeps the previously configured value.
func (b *Bot) Run(ctx context.Context) {
	symbol := b.cfg.TradingConfig.Symbol
	if err := b.account.SetLeverage(symbol, b.cfg.TradingConfig.Leverage); err != nil {
		b.log.Warn("Setting leverage failed", "symbol", symbol, "error", err)
	}

	startup := fmt.Sprintf("bot started for %s in STOP mode - enable with /on", symbol)
	if b.sw.Enabled() {
		startup = fmt.Sprintf("bot started for %s with trading enabled", symbol)
	}
	if err := b.notifier.Notify(startup); err != nil {
		b.log.Warn("Notification failed", "error", err)
	}

	b.log.Info("Decision loop started", "symbol", symbol, "interval", b.cfg.TradingConfig.Interval)
	for {
		delay := b.Cycle()
		select {
		case <-ctx.Done():
			b.log.Info("Decision loop stopped", "symbol", symbol)
			return
		case <-time.After(delay):
		}
	}
}

// Cycle runs one decision pass and returns the delay before the next.
// A panic inside a cycle is contained here: it is logged, reported,
// and the loop carries on.
func (b *Bot) Cycle() (delay time.Duration) {
	delay = delayCycle
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Cycle failed", "panic", r)
			if err := b.notifier.Notify(fmt.Sprintf("cycle error: %v", r)); err != nil {
				b.log.Warn("Notification failed", "error", err)
			}
		}
	}()

	if !b.sw.Enabled() {
		return delayDisabled
	}

	tc := b.cfg.TradingConfig
	candles := b.market.GetKlines(tc.Symbol, tc.Interval, tc.CandleLimit)
	if len(candles) == 0 {
		b.log.Warn("No candles returned", "symbol", tc.Symbol)
		return delayNoData
	}

	rows := indicators.Calculate(candles, indicators.Config{
		SupertrendPeriod:     b.cfg.IndicatorsConfig.SupertrendPeriod,
		SupertrendMultiplier: b.cfg.IndicatorsConfig.SupertrendMultiplier,
	})
	last, _ := indicators.Last(rows)
	metrics := b.collectMetrics(tc.Symbol)

	score, breakdown := b.scorer.Score(rows, metrics)
	reg := regime.Detect(rows, metrics, b.cfg.RegimeConfig)

	pos, posErr := b.account.GetPosition(tc.Symbol)
	hasPos := pos != nil
	if posErr != nil {
		// can't tell; assume a position is open and skip trading actions
		b.log.Warn("Position query failed", "symbol", tc.Symbol, "error", posErr)
		hasPos = true
		pos = nil
	}

	if b.prev.has && !hasPos {
		b.handleExit(tc.Symbol, last.Candle.Close, score, reg)
	}

	b.publish(tc.Symbol, last, score, breakdown, reg, pos, hasPos)

	// Record the queried view before acting: a confirmed entry below
	// overwrites it, so a stop-out before the next cycle is still seen
	// as a position-to-flat transition.
	b.rememberPosition(pos, hasPos)

	switch {
	case hasPos && pos != nil:
		b.riskMgr.UpdateStopsAndPartials(tc.Symbol, *pos, last, b.instrumentFilters())
		b.maybeAdd(tc.Symbol, *pos, last, score, breakdown, reg)
	case hasPos:
		// unknown position state, manage nothing this cycle
	default:
		b.maybeEnter(tc.Symbol, last, score, breakdown, reg)
	}

	return delayCycle
}

// handleExit reconciles a position that disappeared between cycles:
// the stop or a take-profit filled on the exchange. The PnL is
// estimated from the previous cycle's size and entry against the
// current close.
func (b *Bot) handleExit(symbol string, price, score float64, reg regime.Regime) {
	pnl := b.prev.size * (price - b.prev.entry)
	if b.prev.side == bybit.SideSell {
		pnl = b.prev.size * (b.prev.entry - price)
	}

	b.log.Info("Position closed on exchange", "symbol", symbol, "side", b.prev.side, "pnl", pnl)
	b.recordEvent(journal.Event{
		Time:   time.Now(),
		Symbol: symbol,
		Side:   b.prev.side,
		Qty:    b.prev.size,
		Price:  price,
		Kind:   journal.EventExit,
		Score:  &score,
		Regime: string(reg),
		PnL:    &pnl,
	})
	if err := b.notifier.Notify(fmt.Sprintf("exit %s %s pnl=%.2f", symbol, b.prev.side, pnl)); err != nil {
		b.log.Warn("Notification failed", "error", err)
	}
	if err := b.store.ClearPosition(symbol); err != nil {
		b.log.Error("Failed to clear position state", "symbol", symbol, "error", err)
	}
}

// maybeEnter opens a position when the score clears the threshold, the
// entry cooldown has elapsed, and the balance supports a minimum
// order. Direction follows the sign of the technical component.
func (b *Bot) maybeEnter(symbol string, last indicators.FeatureRow, score float64, breakdown scoring.Breakdown, reg regime.Regime) {
	tc := b.cfg.TradingConfig
	if score <= tc.SignalThreshold {
		return
	}
	if time.Since(b.lastEntryAt) < time.Duration(tc.CooldownSec)*time.Second {
		return
	}

	filters := b.instrumentFilters()
	avail, err := b.account.GetAvailableBalance("USDT")
	if err != nil {
		b.log.Warn("Balance query failed", "error", err)
		return
	}
	if avail < filters.MinOrderValue {
		return
	}
	equity, err := b.account.GetEquity()
	if err != nil {
		b.log.Warn("Equity query failed", "error", err)
		return
	}

	price := last.Candle.Close
	qty := risk.ComputePositionSize(equity, price, tc.RiskPct, filters)
	if maxQty := risk.FloorToStep(avail/price, filters.QtyStep); qty > maxQty {
		qty = maxQty
	}
	if qty <= 0 || qty*price < filters.MinOrderValue {
		return
	}

	side := bybit.SideBuy
	if breakdown.TA < 0 {
		side = bybit.SideSell
	}
	stops := risk.ComputeInitialStops(side, price, last.ATR, b.cfg.StopsConfig)

	resp, err := b.account.PlaceMarketOrder(bybit.OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Qty:        qty,
		StopLoss:   &stops.StopLoss,
		TakeProfit: &stops.TP2,
	})
	if err != nil || !resp.OK {
		b.log.Warn("Entry order rejected", "symbol", symbol, "side", side, "error", err)
		return
	}
	b.lastEntryAt = time.Now()

	// prefer the exchange's average fill price for bookkeeping
	entry := price
	size := qty
	if p, err := b.account.GetPosition(symbol); err == nil && p != nil {
		if p.AvgPrice > 0 {
			entry = p.AvgPrice
		}
		if p.Size > 0 {
			size = p.Size
		}
	}
	if err := b.store.ResetPosition(symbol, entry); err != nil {
		b.log.Error("Failed to persist entry", "symbol", symbol, "error", err)
	}
	if err := b.store.SetLastStop(symbol, stops.StopLoss); err != nil {
		b.log.Error("Failed to persist stop", "symbol", symbol, "error", err)
	}

	// the position is open now even though this cycle queried it as
	// flat; a fill-and-stop-out within one cycle must still reconcile
	b.prev = prevPosition{has: true, side: side, size: size, entry: entry}

	b.log.Info("Entered position", "symbol", symbol, "side", side, "qty", qty, "entry", entry,
		"sl", stops.StopLoss, "tp1", stops.TP1, "tp2", stops.TP2, "score", score)
	b.recordEvent(journal.Event{
		Time:       time.Now(),
		Symbol:     symbol,
		Side:       side,
		Qty:        qty,
		Price:      entry,
		Kind:       journal.EventEntry,
		StopLoss:   &stops.StopLoss,
		TakeProfit: &stops.TP2,
		Score:      &score,
		Regime:     string(reg),
	})
	if err := b.notifier.Notify(fmt.Sprintf("entry %s %s qty=%v @ %.2f (score %.2f, %s)",
		symbol, side, qty, entry, score, reg)); err != nil {
		b.log.Warn("Notification failed", "error", err)
	}
}

// maybeAdd scales into the open position when the signal persists, the
// add cooldown has elapsed, and tightening the trailing stop for the
// combined position would not loosen the stop already placed.
func (b *Bot) maybeAdd(symbol string, pos bybit.Position, last indicators.FeatureRow, score float64, breakdown scoring.Breakdown, reg regime.Regime) {
	tc := b.cfg.TradingConfig
	if score <= tc.SignalThreshold {
		return
	}
	if time.Since(b.lastAddAt) < time.Duration(tc.CooldownSec)*time.Second {
		return
	}

	filters := b.instrumentFilters()
	avail, err := b.account.GetAvailableBalance("USDT")
	if err != nil || avail < filters.MinOrderValue {
		return
	}
	if !b.riskMgr.ShouldAddPosition(symbol, pos.Side, last) {
		return
	}
	equity, err := b.account.GetEquity()
	if err != nil {
		return
	}

	price := last.Candle.Close
	qty := risk.ComputePositionSize(equity, price, tc.RiskPct, filters)
	if maxQty := risk.FloorToStep(avail/price, filters.QtyStep); qty > maxQty {
		qty = maxQty
	}
	if qty <= 0 || qty*price < filters.MinOrderValue {
		return
	}

	resp, err := b.account.PlaceMarketOrder(bybit.OrderRequest{
		Symbol: symbol,
		Side:   pos.Side,
		Qty:    qty,
	})
	if err != nil || !resp.OK {
		b.log.Warn("Add-on order rejected", "symbol", symbol, "error", err)
		return
	}
	b.lastAddAt = time.Now()

	b.log.Info("Added to position", "symbol", symbol, "side", pos.Side, "qty", qty, "price", price, "score", score)
	b.recordEvent(journal.Event{
		Time:   time.Now(),
		Symbol: symbol,
		Side:   pos.Side,
		Qty:    qty,
		Price:  price,
		Kind:   journal.EventAdd,
		Score:  &score,
		Regime: string(reg),
	})
	if err := b.notifier.Notify(fmt.Sprintf("add %s %s qty=%v @ %.2f", symbol, pos.Side, qty, price)); err != nil {
		b.log.Warn("Notification failed", "error", err)
	}
}

func (b *Bot) journalPartial(symbol string, fill risk.PartialFill) {
	s := b.Snapshot()
	score := s.Score
	b.recordEvent(journal.Event{
		Time:   time.Now(),
		Symbol: symbol,
		Side:   fill.Side,
		Qty:    fill.Qty,
		Price:  fill.Price,
		Kind:   journal.EventTP,
		Score:  &score,
		Regime: s.Regime,
	})
}

func (b *Bot) recordEvent(ev journal.Event) {
	if err := b.journal.Record(ev); err != nil {
		b.log.Error("Journal write failed", "event", ev.Kind, "error", err)
	}
}

func (b *Bot) collectMetrics(symbol string) bybit.Metrics {
	return bybit.Metrics{
		OpenInterest:   b.market.GetOpenInterest(symbol),
		Funding:        b.market.GetFundingRate(symbol),
		Basis:          b.market.GetBasis(symbol),
		LongShortRatio: b.market.GetLongShortRatio(symbol),
	}
}

func (b *Bot) publish(symbol string, last indicators.FeatureRow, score float64, breakdown scoring.Breakdown, reg regime.Regime, pos *bybit.Position, hasPos bool) {
	st := b.store.Get(symbol)

	s := Snapshot{
		Time:        time.Now(),
		Symbol:      symbol,
		Price:       last.Candle.Close,
		Score:       score,
		Breakdown:   breakdown,
		Regime:      string(reg),
		HasPosition: hasPos,
		EntryPrice:  st.EntryPrice,
		LastStop:    st.LastStop,
	}
	if pos != nil {
		s.Side = pos.Side
		s.Size = pos.Size
	}

	b.mu.Lock()
	b.snapshot = s
	b.mu.Unlock()
}

// rememberPosition saves this cycle's position view for next cycle's
// exit detection. When the position state is unknown the previous
// side, size and entry are kept so a later confirmed exit can still be
// reconciled.
func (b *Bot) rememberPosition(pos *bybit.Position, hasPos bool) {
	b.prev.has = hasPos
	if pos != nil {
		b.prev.side = pos.Side
		b.prev.size = pos.Size
		entry := pos.AvgPrice
		if st := b.store.Get(pos.Symbol); st.EntryPrice != nil {
			entry = *st.EntryPrice
		}
		b.prev.entry = entry
	}
}

func (b *Bot) instrumentFilters() bybit.InstrumentFilters {
	if b.filtersLoaded {
		return b.filters
	}
	f, err := b.account.GetInstrumentFilters(b.cfg.TradingConfig.Symbol)
	if err != nil {
		b.log.Warn("Instrument filters unavailable, using defaults", "error", err)
		return bybit.InstrumentFilters{QtyStep: 0.001, MinQty: 0.001, MinOrderValue: 5.0}
	}
	b.filters = f
	b.filtersLoaded = true
	return f
}
