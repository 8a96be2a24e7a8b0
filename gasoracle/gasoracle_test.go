package gasoracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// S3 from the spec: oracle returns {slow:"x", average:500000, fast:7} with
// MAX=100. Result: {slow:1, average:100, fast:7}.
func TestScenarioS3ClampAndSanitize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"slow":"x","average":500000,"fast":7}`))
	}))
	defer srv.Close()

	client := New(srv.URL, 100)
	prices := client.GetAutoGasPrices(context.Background())

	assert.Equal(t, Prices{Slow: 1, Average: 100, Fast: 7}, prices)
}

func TestMalformedResponseYieldsDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client := New(srv.URL, 100)
	prices := client.GetAutoGasPrices(context.Background())

	assert.Equal(t, Prices{Slow: DefaultSlowGwei, Average: DefaultAverageGwei, Fast: DefaultFastGwei}, prices)
}

func TestNetworkFailureYieldsDefaultsAndNeverPanics(t *testing.T) {
	client := New("http://127.0.0.1:0/unreachable", 100)
	prices := client.GetAutoGasPrices(context.Background())
	assert.Equal(t, Prices{Slow: DefaultSlowGwei, Average: DefaultAverageGwei, Fast: DefaultFastGwei}, prices)
}

func TestEveryFieldClampedIndependently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"slow":0.2,"average":50,"fast":9999}`))
	}))
	defer srv.Close()

	client := New(srv.URL, 200)
	prices := client.GetAutoGasPrices(context.Background())

	assert.Equal(t, float64(1), prices.Slow)
	assert.Equal(t, float64(50), prices.Average)
	assert.Equal(t, float64(200), prices.Fast)
}
