package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func floatPtr(v float64) *float64 { return &v }

func tempCSV(t *testing.T) (*CSVRecorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trades.csv")
	r, err := NewCSVRecorder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("creating recorder: %v", err)
	}
	return r, path
}

func TestRecordWritesHeaderOnce(t *testing.T) {
	r, path := tempCSV(t)

	ev := Event{
		Time:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Symbol: "BTCUSDT",
		Side:   "Buy",
		Qty:    0.02,
		Price:  50000,
		Kind:   EventEntry,
		Score:  floatPtr(2.1),
		Regime: "trend",
	}
	if err := r.Record(ev); err != nil {
		t.Fatalf("Record: %v", err)
	}
	ev.Kind = EventExit
	ev.PnL = floatPtr(12.5)
	if err := r.Record(ev); err != nil {
		t.Fatalf("Record: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "ts" || rows[0][5] != "event" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[1][5] != EventEntry || rows[2][5] != EventExit {
		t.Errorf("event columns: %v / %v", rows[1][5], rows[2][5])
	}
	if rows[1][10] != "" {
		t.Errorf("entry row should have an empty pnl, got %q", rows[1][10])
	}
	if rows[2][10] != "12.5" {
		t.Errorf("exit pnl = %q, want 12.5", rows[2][10])
	}
}

func TestDailySummary(t *testing.T) {
	r, _ := tempCSV(t)

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{Time: day.Add(10 * time.Hour), Symbol: "BTCUSDT", Side: "Buy", Qty: 0.02, Price: 50000, Kind: EventEntry, Score: floatPtr(2.0)},
		{Time: day.Add(14 * time.Hour), Symbol: "BTCUSDT", Side: "Sell", Qty: 0.02, Price: 50500, Kind: EventExit, Score: floatPtr(1.0), PnL: floatPtr(10)},
		// a different day must not leak in
		{Time: day.AddDate(0, 0, 1), Symbol: "BTCUSDT", Side: "Buy", Qty: 0.02, Price: 50000, Kind: EventEntry, Score: floatPtr(3.0)},
	}
	for _, ev := range events {
		if err := r.Record(ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	sum, err := r.DailySummary(day)
	if err != nil {
		t.Fatalf("DailySummary: %v", err)
	}
	if sum.Events != 2 {
		t.Errorf("events = %d, want 2", sum.Events)
	}
	if sum.AvgScore != 1.5 {
		t.Errorf("avg score = %v, want 1.5", sum.AvgScore)
	}
	if sum.PnL != 10 {
		t.Errorf("pnl = %v, want 10", sum.PnL)
	}
}

func TestDailySummaryNoFile(t *testing.T) {
	r, _ := tempCSV(t)
	sum, err := r.DailySummary(time.Now())
	if err != nil {
		t.Fatalf("DailySummary on an empty journal: %v", err)
	}
	if sum.Events != 0 || sum.PnL != 0 {
		t.Errorf("empty journal summary = %+v", sum)
	}
}
