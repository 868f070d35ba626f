package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const createTradesTable = `
CREATE TABLE IF NOT EXISTS trades (
	id      BIGSERIAL PRIMARY KEY,
	ts      TIMESTAMPTZ NOT NULL,
	symbol  TEXT NOT NULL,
	side    TEXT NOT NULL,
	qty     DOUBLE PRECISION NOT NULL,
	price   DOUBLE PRECISION NOT NULL,
	event   TEXT NOT NULL,
	sl      DOUBLE PRECISION,
	tp      DOUBLE PRECISION,
	score   DOUBLE PRECISION,
	regime  TEXT,
	pnl     DOUBLE PRECISION
)`

// PostgresRecorder stores trade events in a Postgres table, for setups
// where the journal outlives the host running the bot.
type PostgresRecorder struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewPostgresRecorder(ctx context.Context, dsn string, log zerolog.Logger) (*PostgresRecorder, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createTradesTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating trades table: %w", err)
	}
	return &PostgresRecorder{pool: pool, log: log.With().Str("component", "journal").Logger()}, nil
}

func (r *PostgresRecorder) Record(ev Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO trades (ts, symbol, side, qty, price, event, sl, tp, score, regime, pnl)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ev.Time.UTC(), ev.Symbol, ev.Side, ev.Qty, ev.Price, ev.Kind,
		ev.StopLoss, ev.TakeProfit, ev.Score, ev.Regime, ev.PnL)
	if err != nil {
		return fmt.Errorf("inserting trade event: %w", err)
	}

	r.log.Info().
		Str("symbol", ev.Symbol).
		Str("event", ev.Kind).
		Str("side", ev.Side).
		Float64("qty", ev.Qty).
		Float64("price", ev.Price).
		Msg("trade journaled")
	return nil
}

func (r *PostgresRecorder) DailySummary(day time.Time) (Summary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	summary := Summary{Date: day}
	row := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(score), 0), COALESCE(SUM(pnl), 0)
		 FROM trades WHERE ts::date = $1::date`,
		day.UTC())
	if err := row.Scan(&summary.Events, &summary.AvgScore, &summary.PnL); err != nil {
		return summary, fmt.Errorf("querying daily summary: %w", err)
	}
	return summary, nil
}

func (r *PostgresRecorder) Close() error {
	r.pool.Close()
	return nil
}
