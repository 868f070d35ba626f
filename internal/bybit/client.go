package bybit

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Retry configuration for API calls
const (
	maxRetries     = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

const (
	// BaseURL is the production Bybit V5 API URL
	BaseURL = "https://api.bybit.com"
	// TestnetURL is the testnet Bybit V5 API URL
	TestnetURL = "https://api-testnet.bybit.com"

	recvWindow = "10000"
)

// Client implements the MarketData and Account interfaces against the
// Bybit V5 REST API (linear category only).
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Bybit V5 REST client
func NewClient(apiKey, secretKey string, testnet bool) *Client {
	baseURL := BaseURL
	if testnet {
		baseURL = TestnetURL
	}

	// Trim any whitespace from keys - critical for signature generation
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		secretKey:  strings.TrimSpace(secretKey),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// envelope is the common V5 response wrapper
type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// sign produces the V5 HMAC-SHA256 signature over
// timestamp + apiKey + recvWindow + payload.
func (c *Client) sign(timestamp, payload string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(timestamp + c.apiKey + recvWindow + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func buildQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		values.Set(k, params[k])
	}
	return values.Encode()
}

// publicGet performs an unauthenticated GET with bounded retry
func (c *Client) publicGet(endpoint string, params map[string]string) (*envelope, error) {
	return c.doRequest("GET", endpoint, params, nil, false)
}

// signedGet performs an authenticated GET with bounded retry
func (c *Client) signedGet(endpoint string, params map[string]string) (*envelope, error) {
	return c.doRequest("GET", endpoint, params, nil, true)
}

// signedPost performs an authenticated POST with a JSON body
func (c *Client) signedPost(endpoint string, body map[string]interface{}) (*envelope, error) {
	return c.doRequest("POST", endpoint, nil, body, true)
}

func (c *Client) doRequest(method, endpoint string, params map[string]string, body map[string]interface{}, signed bool) (*envelope, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		env, err := c.attempt(method, endpoint, params, body, signed)
		if err == nil {
			return env, nil
		}
		lastErr = err

		if attempt < maxRetries {
			delay := calculateRetryDelay(attempt)
			log.Printf("[BYBIT] %s %s failed (attempt %d/%d): %v, retrying in %v",
				method, endpoint, attempt+1, maxRetries+1, err, delay)
			time.Sleep(delay)
		}
	}

	return nil, lastErr
}

func (c *Client) attempt(method, endpoint string, params map[string]string, body map[string]interface{}, signed bool) (*envelope, error) {
	var (
		payload string
		reqBody io.Reader
	)

	if method == "GET" {
		payload = buildQuery(params)
	} else {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = string(data)
		reqBody = bytes.NewReader(data)
	}

	reqURL := c.baseURL + endpoint
	if method == "GET" && payload != "" {
		reqURL += "?" + payload
	}

	req, err := http.NewRequest(method, reqURL, reqBody)
	if err != nil {
		return nil, err
	}

	if method == "POST" {
		req.Header.Set("Content-Type", "application/json")
	}

	if signed {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		req.Header.Set("X-BAPI-API-KEY", c.apiKey)
		req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
		req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
		req.Header.Set("X-BAPI-SIGN", c.sign(timestamp, payload))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}

	return &env, nil
}

// calculateRetryDelay returns an exponential backoff delay for the attempt
func calculateRetryDelay(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

func formatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', -1, 64)
}

func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}
