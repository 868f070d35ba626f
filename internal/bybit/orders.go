package bybit

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// ==================== ORDERS ====================

// PlaceMarketOrder submits a market order, optionally with an attached
// stop-loss / take-profit and the reduce-only flag. Success means a
// zero return code; anything else must be treated as "no side effects
// guaranteed".
func (c *Client) PlaceMarketOrder(req OrderRequest) (*OrderResponse, error) {
	body := map[string]interface{}{
		"category":    "linear",
		"symbol":      req.Symbol,
		"side":        req.Side,
		"orderType":   "Market",
		"qty":         formatQty(req.Qty),
		"timeInForce": "GoodTillCancel",
		"reduceOnly":  req.ReduceOnly,
		"orderLinkId": uuid.New().String(),
	}
	if req.StopLoss != nil {
		body["stopLoss"] = formatPrice(*req.StopLoss)
	}
	if req.TakeProfit != nil {
		body["takeProfit"] = formatPrice(*req.TakeProfit)
	}

	env, err := c.signedPost("/v5/order/create", body)
	if err != nil {
		return nil, fmt.Errorf("error placing order: %w", err)
	}

	resp := &OrderResponse{
		OK:      env.RetCode == 0,
		RetCode: env.RetCode,
		RetMsg:  env.RetMsg,
	}

	if resp.OK {
		var result struct {
			OrderID string `json:"orderId"`
		}
		if err := json.Unmarshal(env.Result, &result); err == nil {
			resp.OrderID = result.OrderID
		}
		log.Printf("[BYBIT] order placed: %s %s qty=%s reduceOnly=%v orderId=%s",
			req.Side, req.Symbol, formatQty(req.Qty), req.ReduceOnly, resp.OrderID)
	} else {
		log.Printf("[BYBIT] order rejected: %s %s retCode=%d retMsg=%s",
			req.Side, req.Symbol, env.RetCode, env.RetMsg)
	}

	return resp, nil
}

// SetStopLoss moves the position's exchange-side stop to price
func (c *Client) SetStopLoss(symbol string, price float64) error {
	env, err := c.signedPost("/v5/position/trading-stop", map[string]interface{}{
		"category": "linear",
		"symbol":   symbol,
		"stopLoss": formatPrice(price),
	})
	if err != nil {
		return fmt.Errorf("error setting stop loss: %w", err)
	}
	if env.RetCode != 0 {
		return fmt.Errorf("trading-stop retCode=%d retMsg=%s", env.RetCode, env.RetMsg)
	}
	return nil
}
