// Package gasoracle fetches and sanitizes gas price tiers from an external
// HTTP gas price oracle (spec component C).
package gasoracle

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Default tiers substituted when the oracle's response is missing a field
// or the field isn't numeric. Slow intentionally sits at the floor of the
// valid range so a missing "slow" field degrades to the most conservative
// price rather than something invented.
const (
	DefaultSlowGwei    = 1.0
	DefaultAverageGwei = 5.0
	DefaultFastGwei    = 10.0
)

// Prices is the sanitized {slow, average, fast} gwei tuple returned by
// GetAutoGasPrices.
type Prices struct {
	Slow    float64
	Average float64
	Fast    float64
}

// Client issues GETs against a configured gas price oracle URL.
type Client struct {
	url        string
	maxGwei    float64
	httpClient *http.Client
	logger     log.Logger
}

// New constructs a Client. maxGwei is the clamp ceiling applied to every
// tier (MAX_AUTO_GAS_PRICE_GWEI in the spec).
func New(url string, maxGwei float64) *Client {
	return &Client{
		url:     url,
		maxGwei: maxGwei,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: log.New("component", "gasoracle"),
	}
}

// GetAutoGasPrices fetches the current {slow, average, fast} tiers. It
// never returns an error: any network or parse failure yields the default
// tuple, and every field is independently clamped to [1, maxGwei].
func (c *Client) GetAutoGasPrices(ctx context.Context) Prices {
	defaults := Prices{Slow: DefaultSlowGwei, Average: DefaultAverageGwei, Fast: DefaultFastGwei}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		c.logger.Warn("gasoracle: building request failed, using defaults", "err", err)
		return c.clamp(defaults)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("gasoracle: request failed, using defaults", "err", err)
		return c.clamp(defaults)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("gasoracle: unexpected status, using defaults", "status", resp.StatusCode)
		return c.clamp(defaults)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		c.logger.Warn("gasoracle: malformed response, using defaults", "err", err)
		return c.clamp(defaults)
	}

	return Prices{
		Slow:    c.sanitizeField(raw["slow"], DefaultSlowGwei),
		Average: c.sanitizeField(raw["average"], DefaultAverageGwei),
		Fast:    c.sanitizeField(raw["fast"], DefaultFastGwei),
	}
}

func (c *Client) clamp(p Prices) Prices {
	return Prices{
		Slow:    c.sanitizeField(p.Slow, DefaultSlowGwei),
		Average: c.sanitizeField(p.Average, DefaultAverageGwei),
		Fast:    c.sanitizeField(p.Fast, DefaultFastGwei),
	}
}

// sanitizeField substitutes def for a missing/non-numeric value and clamps
// the result to [1, maxGwei].
func (c *Client) sanitizeField(v any, def float64) float64 {
	f, ok := asFiniteFloat(v)
	if !ok {
		f = def
	}
	if f < 1 {
		f = 1
	}
	if c.maxGwei > 0 && f > c.maxGwei {
		f = c.maxGwei
	}
	return f
}

func asFiniteFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
