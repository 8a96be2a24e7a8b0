package connection

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/dudendy/df-network/gasoracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidateRejectsEmptyURL(t *testing.T) {
	err := Config{}.validate()
	require.ErrorIs(t, err, ErrConfig)
}

func TestConfigValidateRejectsUnsupportedScheme(t *testing.T) {
	err := Config{RPCURL: "ftp://example.com"}.validate()
	require.ErrorIs(t, err, ErrConfig)
}

func TestConfigValidateAcceptsEverySupportedScheme(t *testing.T) {
	for _, url := range []string{"wss://x", "ws://x", "https://x", "http://x"} {
		require.NoError(t, Config{RPCURL: url}.validate(), url)
	}
}

func TestIsWebsocketURLMatchesOnlyWSS(t *testing.T) {
	assert.True(t, isWebsocketURL("wss://example.com"))
	assert.False(t, isWebsocketURL("ws://example.com"))
	assert.False(t, isWebsocketURL("https://example.com"))
}

func TestGetAutoGasPriceGweiNamedTiers(t *testing.T) {
	prices := gasoracle.Prices{Slow: 2, Average: 4, Fast: 8}
	assert.Equal(t, 2.0, GetAutoGasPriceGwei(prices, "Slow"))
	assert.Equal(t, 4.0, GetAutoGasPriceGwei(prices, "Average"))
	assert.Equal(t, 8.0, GetAutoGasPriceGwei(prices, "Fast"))
}

func TestGetAutoGasPriceGweiNumericOverride(t *testing.T) {
	prices := gasoracle.Prices{Slow: 2, Average: 4, Fast: 8}
	assert.Equal(t, 12.5, GetAutoGasPriceGwei(prices, "12.5"))
}

func TestGetAutoGasPriceGweiUnparseableFallsBackToAverage(t *testing.T) {
	prices := gasoracle.Prices{Slow: 2, Average: 4, Fast: 8}
	assert.Equal(t, 4.0, GetAutoGasPriceGwei(prices, "not-a-number"))
}

func TestDebouncerFiresLeadingImmediately(t *testing.T) {
	var calls int32
	d := newDebouncer(50*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	defer d.Stop()

	d.Trigger()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
}

func TestDebouncerCoalescesTrailingFire(t *testing.T) {
	var calls int32
	d := newDebouncer(30*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	defer d.Stop()

	d.Trigger()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)

	d.Trigger()
	d.Trigger()
	d.Trigger()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "rapid retriggers must coalesce into a single trailing fire")
}

func TestDebouncerStopCancelsPendingTrailingFire(t *testing.T) {
	var calls int32
	d := newDebouncer(30*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

	d.Trigger()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	d.Trigger()
	d.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestParseFiniteFloatRejectsNonNumeric(t *testing.T) {
	_, ok := parseFiniteFloat("abc")
	assert.False(t, ok)
}

func TestParseFiniteFloatAcceptsPlainNumber(t *testing.T) {
	f, ok := parseFiniteFloat("3.25")
	require.True(t, ok)
	assert.Equal(t, 3.25, f)
}
