package bybit

// Order sides as Bybit V5 spells them
const (
	SideBuy  = "Buy"
	SideSell = "Sell"
)

// Candle is one kline, ordered ascending by start time once returned
// from GetKlines. Values are immutable after fetch.
type Candle struct {
	Start    int64 // kline start time, unix ms
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Turnover float64
}

// Metrics bundles the exchange microstructure data consumed by the
// scorer and regime classifier. Every field is optional: a nil pointer
// or empty slice means the source was unavailable this cycle and must
// contribute neutrally downstream.
type Metrics struct {
	OpenInterest   []float64 // ascending by time
	Funding        *float64  // latest funding rate
	Basis          *float64  // premium-index kline close
	LongShortRatio []float64 // ascending by time, long/short account ratio
}

// LatestLongShortRatio returns the most recent ratio, or false when the
// series is empty.
func (m Metrics) LatestLongShortRatio() (float64, bool) {
	if len(m.LongShortRatio) == 0 {
		return 0, false
	}
	return m.LongShortRatio[len(m.LongShortRatio)-1], true
}

// Position is the exchange's view of the open position at read time.
// It is the authoritative source for "is a position open" and is never
// cached across cycles.
type Position struct {
	Symbol   string
	Side     string // SideBuy or SideSell
	Size     float64
	AvgPrice float64
}

// InstrumentFilters holds the exchange lot-size constraints for a symbol
type InstrumentFilters struct {
	QtyStep       float64
	MinQty        float64
	MinOrderValue float64
}

// OrderRequest describes a market order to submit
type OrderRequest struct {
	Symbol     string
	Side       string
	Qty        float64
	StopLoss   *float64
	TakeProfit *float64
	ReduceOnly bool
}

// OrderResponse reports the outcome of an order submission. OK is true
// only for a zero return code; any other shape means the caller must
// not assume side effects occurred.
type OrderResponse struct {
	OK      bool
	RetCode int
	RetMsg  string
	OrderID string
}
