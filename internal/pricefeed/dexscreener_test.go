package pricefeed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

type recordingCache struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (c *recordingCache) SetPrice(_ context.Context, mint string, price float64, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prices == nil {
		c.prices = make(map[string]float64)
	}
	c.prices[mint] = price
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func servePairs(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPriceParsesFirstPair(t *testing.T) {
	srv := servePairs(t, `{"pairs":[{"priceNative":"0.0042"},{"priceNative":"0.0050"}]}`, http.StatusOK)
	c := New(srv.URL, nil, testLogger())

	price, err := c.Price(context.Background(), "mintA")
	require.NoError(t, err)
	assert.Equal(t, 0.0042, price)
}

func TestPriceEmptyPairsIsUnavailable(t *testing.T) {
	srv := servePairs(t, `{"pairs":[]}`, http.StatusOK)
	c := New(srv.URL, nil, testLogger())

	_, err := c.Price(context.Background(), "mintA")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestPriceZeroIsUnavailable(t *testing.T) {
	srv := servePairs(t, `{"pairs":[{"priceNative":"0"}]}`, http.StatusOK)
	c := New(srv.URL, nil, testLogger())

	_, err := c.Price(context.Background(), "mintA")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestPriceUpstreamErrorIsSurfaced(t *testing.T) {
	srv := servePairs(t, `rate limited`, http.StatusTooManyRequests)
	c := New(srv.URL, nil, testLogger())

	_, err := c.Price(context.Background(), "mintA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 429")
}

func TestPriceWritesThroughToCache(t *testing.T) {
	srv := servePairs(t, `{"pairs":[{"priceNative":"1.25"}]}`, http.StatusOK)
	cache := &recordingCache{}
	c := New(srv.URL, cache, testLogger())

	_, err := c.Price(context.Background(), "mintA")
	require.NoError(t, err)
	assert.Equal(t, 1.25, cache.prices["mintA"])
}
