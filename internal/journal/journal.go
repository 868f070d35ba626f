package journal

import "time"

// Event kinds recorded by the trade journal.
const (
	EventEntry = "entry"
	EventAdd   = "add"
	EventTP    = "partial_take_profit"
	EventExit  = "exit"
)

// Event is one journaled trading action. Optional fields are pointers
// and stay empty in the stored record when absent.
type Event struct {
	Time       time.Time
	Symbol     string
	Side       string
	Qty        float64
	Price      float64
	Kind       string
	StopLoss   *float64
	TakeProfit *float64
	Score      *float64
	Regime     string
	PnL        *float64
}

// Summary aggregates one day of journal activity.
type Summary struct {
	Date     time.Time
	Events   int
	AvgScore float64
	PnL      float64
}

// Recorder persists trade events and can summarize a day of activity.
type Recorder interface {
	Record(ev Event) error
	DailySummary(day time.Time) (Summary, error)
	Close() error
}
