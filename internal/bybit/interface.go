package bybit

// MarketData provides best-effort read access to public market data.
// Every method degrades to an empty/nil result on failure instead of
// returning an error; callers treat absence as a neutral input.
type MarketData interface {
	// GetKlines returns up to limit candles ascending by start time,
	// or nil when the exchange is unreachable.
	GetKlines(symbol, interval string, limit int) []Candle
	GetOpenInterest(symbol string) []float64
	GetFundingRate(symbol string) *float64
	GetBasis(symbol string) *float64
	GetLongShortRatio(symbol string) []float64
}

// Account provides authenticated account and execution access. Unlike
// MarketData these calls surface errors explicitly: the decision loop
// decides per call site whether a failure skips the cycle or the trade.
type Account interface {
	// GetPosition returns the open position for symbol, or nil when flat.
	GetPosition(symbol string) (*Position, error)
	GetAvailableBalance(coin string) (float64, error)
	GetEquity() (float64, error)
	GetInstrumentFilters(symbol string) (InstrumentFilters, error)
	PlaceMarketOrder(req OrderRequest) (*OrderResponse, error)
	SetStopLoss(symbol string, price float64) error
	SetLeverage(symbol string, leverage int) error
}
