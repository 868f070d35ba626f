package bybit

import (
	"fmt"
	"sync"
)

// MockClient implements the MarketData and Account interfaces for tests
// and dry-run mode. Every return value is scriptable and submitted
// orders are recorded for inspection.
type MockClient struct {
	mu sync.RWMutex

	Klines      []Candle
	OIData      []float64
	Funding     *float64
	Basis       *float64
	LSRData     []float64
	Position    *Position
	PositionErr error
	Equity      float64
	Available   float64
	Filters     InstrumentFilters

	// FailOrders makes PlaceMarketOrder return a non-zero retCode
	FailOrders bool
	// FailStops makes SetStopLoss return an error
	FailStops bool

	Orders      []OrderRequest
	StopUpdates []float64
}

// NewMockClient creates a mock with typical BTCUSDT instrument filters
func NewMockClient() *MockClient {
	return &MockClient{
		Equity:    1000,
		Available: 1000,
		Filters:   InstrumentFilters{QtyStep: 0.001, MinQty: 0.001, MinOrderValue: 5.0},
	}
}

func (m *MockClient) GetKlines(symbol, interval string, limit int) []Candle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Klines
}

func (m *MockClient) GetOpenInterest(symbol string) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.OIData
}

func (m *MockClient) GetFundingRate(symbol string) *float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Funding
}

func (m *MockClient) GetBasis(symbol string) *float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Basis
}

func (m *MockClient) GetLongShortRatio(symbol string) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LSRData
}

func (m *MockClient) GetPosition(symbol string) (*Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.PositionErr != nil {
		return nil, m.PositionErr
	}
	return m.Position, nil
}

func (m *MockClient) GetAvailableBalance(coin string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Available, nil
}

func (m *MockClient) GetEquity() (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Equity, nil
}

func (m *MockClient) GetInstrumentFilters(symbol string) (InstrumentFilters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Filters, nil
}

func (m *MockClient) PlaceMarketOrder(req OrderRequest) (*OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailOrders {
		return &OrderResponse{OK: false, RetCode: 110007, RetMsg: "insufficient available balance"}, nil
	}
	m.Orders = append(m.Orders, req)
	return &OrderResponse{OK: true, OrderID: fmt.Sprintf("mock-%d", len(m.Orders))}, nil
}

func (m *MockClient) SetStopLoss(symbol string, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailStops {
		return fmt.Errorf("mock: trading-stop rejected")
	}
	m.StopUpdates = append(m.StopUpdates, price)
	return nil
}

func (m *MockClient) SetLeverage(symbol string, leverage int) error {
	return nil
}

// SetPosition swaps the scripted open position (nil means flat)
func (m *MockClient) SetPosition(p *Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Position = p
}

// LastOrder returns the most recently recorded order, or nil
func (m *MockClient) LastOrder() *OrderRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.Orders) == 0 {
		return nil
	}
	o := m.Orders[len(m.Orders)-1]
	return &o
}
