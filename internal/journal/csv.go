package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var csvHeader = []string{"ts", "symbol", "side", "qty", "price", "event", "sl", "tp", "score", "regime", "pnl"}

// CSVRecorder appends trade events to a CSV file, writing the header
// when it creates the file.
type CSVRecorder struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger
}

func NewCSVRecorder(path string, log zerolog.Logger) (*CSVRecorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating journal dir: %w", err)
		}
	}
	return &CSVRecorder{path: path, log: log.With().Str("component", "journal").Logger()}, nil
}

func (r *CSVRecorder) Record(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, statErr := os.Stat(r.path)
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening journal file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if os.IsNotExist(statErr) {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("writing journal header: %w", err)
		}
	}

	row := []string{
		ev.Time.UTC().Format(time.RFC3339),
		ev.Symbol,
		ev.Side,
		formatFloat(ev.Qty),
		formatFloat(ev.Price),
		ev.Kind,
		formatOptional(ev.StopLoss),
		formatOptional(ev.TakeProfit),
		formatOptional(ev.Score),
		ev.Regime,
		formatOptional(ev.PnL),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("writing journal row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing journal: %w", err)
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

// DailySummary re-reads the file and aggregates the rows stamped on
// the given UTC date.
func (r *CSVRecorder) DailySummary(day time.Time) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := Summary{Date: day}

	f, err := os.Open(r.path)
	if os.IsNotExist(err) {
		return summary, nil
	}
	if err != nil {
		return summary, fmt.Errorf("opening journal file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(csvHeader)
	rows, err := reader.ReadAll()
	if err != nil {
		return summary, fmt.Errorf("reading journal file: %w", err)
	}

	wantDate := day.UTC().Format("2006-01-02")
	scoreSum, scoreN := 0.0, 0
	for i, row := range rows {
		if i == 0 {
			continue
		}
		ts, err := time.Parse(time.RFC3339, row[0])
		if err != nil || ts.UTC().Format("2006-01-02") != wantDate {
			continue
		}
		summary.Events++
		if v, err := strconv.ParseFloat(row[8], 64); err == nil {
			scoreSum += v
			scoreN++
		}
		if v, err := strconv.ParseFloat(row[10], 64); err == nil {
			summary.PnL += v
		}
	}
	if scoreN > 0 {
		summary.AvgScore = scoreSum / float64(scoreN)
	}
	return summary, nil
}

func (r *CSVRecorder) Close() error { return nil }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
