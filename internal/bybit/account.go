package bybit

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ==================== ACCOUNT ====================

// GetEquity returns the unified account total equity in USD terms
func (c *Client) GetEquity() (float64, error) {
	env, err := c.signedGet("/v5/account/wallet-balance", map[string]string{
		"accountType": "UNIFIED",
	})
	if err != nil {
		return 0, fmt.Errorf("error fetching wallet balance: %w", err)
	}
	if env.RetCode != 0 {
		return 0, fmt.Errorf("wallet balance retCode=%d retMsg=%s", env.RetCode, env.RetMsg)
	}

	var result struct {
		List []struct {
			TotalEquity string `json:"totalEquity"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return 0, fmt.Errorf("error parsing wallet balance: %w", err)
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("wallet balance: empty account list")
	}

	equity, ok := parseFloat(result.List[0].TotalEquity)
	if !ok {
		return 0, fmt.Errorf("wallet balance: bad totalEquity %q", result.List[0].TotalEquity)
	}
	return equity, nil
}

// GetAvailableBalance returns the tradable balance for the given coin
func (c *Client) GetAvailableBalance(coin string) (float64, error) {
	env, err := c.signedGet("/v5/account/wallet-balance", map[string]string{
		"accountType": "UNIFIED",
	})
	if err != nil {
		return 0, fmt.Errorf("error fetching wallet balance: %w", err)
	}
	if env.RetCode != 0 {
		return 0, fmt.Errorf("wallet balance retCode=%d retMsg=%s", env.RetCode, env.RetMsg)
	}

	var result struct {
		List []struct {
			Coin []struct {
				Coin                string `json:"coin"`
				AvailableToWithdraw string `json:"availableToWithdraw"`
				WalletBalance       string `json:"walletBalance"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return 0, fmt.Errorf("error parsing wallet balance: %w", err)
	}

	for _, acct := range result.List {
		for _, c := range acct.Coin {
			if c.Coin != coin {
				continue
			}
			if v, ok := parseFloat(c.AvailableToWithdraw); ok {
				return v, nil
			}
			if v, ok := parseFloat(c.WalletBalance); ok {
				return v, nil
			}
			return 0, nil
		}
	}
	return 0, nil
}

// GetInstrumentFilters returns the lot-size constraints for the symbol
func (c *Client) GetInstrumentFilters(symbol string) (InstrumentFilters, error) {
	// Sensible defaults for BTCUSDT-class instruments when a field is missing
	filters := InstrumentFilters{QtyStep: 0.001, MinQty: 0.001, MinOrderValue: 5.0}

	env, err := c.publicGet("/v5/market/instruments-info", map[string]string{
		"category": "linear",
		"symbol":   symbol,
	})
	if err != nil {
		return filters, fmt.Errorf("error fetching instrument info: %w", err)
	}
	if env.RetCode != 0 {
		return filters, fmt.Errorf("instrument info retCode=%d retMsg=%s", env.RetCode, env.RetMsg)
	}

	var result struct {
		List []struct {
			LotSizeFilter struct {
				QtyStep     string `json:"qtyStep"`
				MinOrderQty string `json:"minOrderQty"`
				MinOrderAmt string `json:"minOrderAmt"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return filters, fmt.Errorf("error parsing instrument info: %w", err)
	}
	if len(result.List) == 0 {
		return filters, fmt.Errorf("instrument info: symbol %s not found", symbol)
	}

	lot := result.List[0].LotSizeFilter
	if v, ok := parseFloat(lot.QtyStep); ok && v > 0 {
		filters.QtyStep = v
	}
	if v, ok := parseFloat(lot.MinOrderQty); ok && v > 0 {
		filters.MinQty = v
	}
	if v, ok := parseFloat(lot.MinOrderAmt); ok && v > 0 {
		filters.MinOrderValue = v
	}
	return filters, nil
}

// GetPosition returns the open position for the symbol, or nil when flat
func (c *Client) GetPosition(symbol string) (*Position, error) {
	env, err := c.signedGet("/v5/position/list", map[string]string{
		"category": "linear",
		"symbol":   symbol,
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching positions: %w", err)
	}
	if env.RetCode != 0 {
		return nil, fmt.Errorf("position list retCode=%d retMsg=%s", env.RetCode, env.RetMsg)
	}

	var result struct {
		List []struct {
			Side     string `json:"side"`
			Size     string `json:"size"`
			AvgPrice string `json:"avgPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("error parsing positions: %w", err)
	}

	for _, p := range result.List {
		size, ok := parseFloat(p.Size)
		if !ok || math.Abs(size) == 0 {
			continue
		}
		avg, _ := parseFloat(p.AvgPrice)
		return &Position{
			Symbol:   symbol,
			Side:     p.Side,
			Size:     math.Abs(size),
			AvgPrice: avg,
		}, nil
	}
	return nil, nil
}

// SetLeverage sets both-side leverage for the symbol. Best effort at
// startup: Bybit rejects a no-op change with retCode 110043.
func (c *Client) SetLeverage(symbol string, leverage int) error {
	lev := strconv.Itoa(leverage)
	env, err := c.signedPost("/v5/position/set-leverage", map[string]interface{}{
		"category":     "linear",
		"symbol":       symbol,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	})
	if err != nil {
		return fmt.Errorf("error setting leverage: %w", err)
	}
	// 110043 = leverage not modified
	if env.RetCode != 0 && env.RetCode != 110043 {
		return fmt.Errorf("set leverage retCode=%d retMsg=%s", env.RetCode, env.RetMsg)
	}
	return nil
}
