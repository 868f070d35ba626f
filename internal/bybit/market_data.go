package bybit

import (
	"encoding/json"
	"log"
	"sort"
	"strconv"
)

// ==================== MARKET DATA ====================
// All fetchers here are best-effort: on any failure they log a warning
// and return an empty result so a single unavailable source never
// aborts a decision cycle.

// GetKlines fetches up to limit candles for the symbol and returns them
// ascending by start time. Bybit delivers klines newest-first; rows
// that fail to parse are dropped.
func (c *Client) GetKlines(symbol, interval string, limit int) []Candle {
	env, err := c.publicGet("/v5/market/kline", map[string]string{
		"category": "linear",
		"symbol":   symbol,
		"interval": interval,
		"limit":    strconv.Itoa(limit),
	})
	if err != nil || env.RetCode != 0 {
		log.Printf("[BYBIT] GetKlines %s failed: retCode=%v err=%v", symbol, retCode(env), err)
		return nil
	}

	var result struct {
		List [][]string `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		log.Printf("[BYBIT] GetKlines %s: error parsing result: %v", symbol, err)
		return nil
	}

	candles := make([]Candle, 0, len(result.List))
	for _, row := range result.List {
		if len(row) < 7 {
			continue
		}
		start, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		open, ok1 := parseFloat(row[1])
		high, ok2 := parseFloat(row[2])
		low, ok3 := parseFloat(row[3])
		closeP, ok4 := parseFloat(row[4])
		volume, ok5 := parseFloat(row[5])
		turnover, ok6 := parseFloat(row[6])
		if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
			continue
		}
		candles = append(candles, Candle{
			Start: start, Open: open, High: high, Low: low,
			Close: closeP, Volume: volume, Turnover: turnover,
		})
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Start < candles[j].Start })
	return candles
}

// GetOpenInterest returns the recent open-interest series ascending by
// time. Entries with unrecognized shapes are skipped rather than
// propagated as errors.
func (c *Client) GetOpenInterest(symbol string) []float64 {
	env, err := c.publicGet("/v5/market/open-interest", map[string]string{
		"category":     "linear",
		"symbol":       symbol,
		"intervalTime": "5min",
	})
	if err != nil || env.RetCode != 0 {
		log.Printf("[BYBIT] GetOpenInterest %s failed: retCode=%v err=%v", symbol, retCode(env), err)
		return nil
	}

	var result struct {
		List []struct {
			OpenInterest string `json:"openInterest"`
			Timestamp    string `json:"timestamp"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		log.Printf("[BYBIT] GetOpenInterest %s: error parsing result: %v", symbol, err)
		return nil
	}

	// Newest first on the wire; emit ascending.
	values := make([]float64, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		if v, ok := parseFloat(result.List[i].OpenInterest); ok {
			values = append(values, v)
		}
	}
	return values
}

// GetFundingRate returns the latest funding rate, or nil when unavailable
func (c *Client) GetFundingRate(symbol string) *float64 {
	env, err := c.publicGet("/v5/market/funding/history", map[string]string{
		"category": "linear",
		"symbol":   symbol,
		"limit":    "1",
	})
	if err != nil || env.RetCode != 0 {
		log.Printf("[BYBIT] GetFundingRate %s failed: retCode=%v err=%v", symbol, retCode(env), err)
		return nil
	}

	var result struct {
		List []struct {
			FundingRate string `json:"fundingRate"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil || len(result.List) == 0 {
		return nil
	}

	if v, ok := parseFloat(result.List[0].FundingRate); ok {
		return &v
	}
	return nil
}

// GetBasis returns the latest premium-index kline close as the basis
// proxy, or nil when unavailable.
func (c *Client) GetBasis(symbol string) *float64 {
	env, err := c.publicGet("/v5/market/premium-index-price-kline", map[string]string{
		"category": "linear",
		"symbol":   symbol,
		"interval": "5",
		"limit":    "1",
	})
	if err != nil || env.RetCode != 0 {
		log.Printf("[BYBIT] GetBasis %s failed: retCode=%v err=%v", symbol, retCode(env), err)
		return nil
	}

	var result struct {
		List [][]string `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil || len(result.List) == 0 || len(result.List[0]) < 5 {
		return nil
	}

	if v, ok := parseFloat(result.List[0][4]); ok {
		return &v
	}
	return nil
}

// GetLongShortRatio returns the long/short account ratio series
// ascending by time. Bybit reports per-side fractions; the ratio is
// buy divided by sell.
func (c *Client) GetLongShortRatio(symbol string) []float64 {
	env, err := c.publicGet("/v5/market/account-ratio", map[string]string{
		"category": "linear",
		"symbol":   symbol,
		"period":   "5min",
	})
	if err != nil || env.RetCode != 0 {
		log.Printf("[BYBIT] GetLongShortRatio %s failed: retCode=%v err=%v", symbol, retCode(env), err)
		return nil
	}

	var result struct {
		List []struct {
			BuyRatio  string `json:"buyRatio"`
			SellRatio string `json:"sellRatio"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil
	}

	values := make([]float64, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		buy, ok1 := parseFloat(result.List[i].BuyRatio)
		sell, ok2 := parseFloat(result.List[i].SellRatio)
		if ok1 && ok2 && sell > 0 {
			values = append(values, buy/sell)
		}
	}
	return values
}

// GetMetrics fetches the full microstructure bundle in one call
func (c *Client) GetMetrics(symbol string) Metrics {
	return Metrics{
		OpenInterest:   c.GetOpenInterest(symbol),
		Funding:        c.GetFundingRate(symbol),
		Basis:          c.GetBasis(symbol),
		LongShortRatio: c.GetLongShortRatio(symbol),
	}
}

func retCode(env *envelope) interface{} {
	if env == nil {
		return nil
	}
	return env.RetCode
}
