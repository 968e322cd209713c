package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.Owner = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	cfg.Discovery.URL = "https://example.com/candidates"
	return cfg
}

func TestDefaultsValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonMonotonicTakeProfit(t *testing.T) {
	cfg := validConfig()
	cfg.Ladder.TakeProfit = []domain.Stage{
		{Name: "tp1", Multiple: 5, SellPercent: 50, Enabled: true},
		{Name: "tp2", Multiple: 2, SellPercent: 50, Enabled: true},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strictly increasing")
}

func TestValidateRejectsNonMonotonicStopLoss(t *testing.T) {
	cfg := validConfig()
	cfg.Ladder.StopLoss = []domain.Stage{
		{Name: "sl1", Multiple: 0.5, SellPercent: 50, Enabled: true},
		{Name: "sl2", Multiple: 0.8, SellPercent: 100, Enabled: true},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strictly decreasing")
}

func TestValidateIgnoresDisabledStagesForMonotonicity(t *testing.T) {
	cfg := validConfig()
	cfg.Ladder.TakeProfit = []domain.Stage{
		{Name: "tp1", Multiple: 2, SellPercent: 50, Enabled: true},
		{Name: "tp2", Multiple: 1.5, SellPercent: 50, Enabled: false},
		{Name: "tp3", Multiple: 5, SellPercent: 100, Enabled: true},
	}
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeSellPercent(t *testing.T) {
	cfg := validConfig()
	cfg.Ladder.TakeProfit = []domain.Stage{
		{Name: "tp1", Multiple: 2, SellPercent: 0, Enabled: true},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sell_percent")

	cfg.Ladder.TakeProfit[0].SellPercent = 101
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sell_percent")
}

func TestValidateRejectsStopLossMultipleAboveOne(t *testing.T) {
	cfg := validConfig()
	cfg.Ladder.StopLoss = []domain.Stage{
		{Name: "sl1", Multiple: 1.2, SellPercent: 100, Enabled: true},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be in (0,1)")
}

func TestStoreSwapRejectsInvalidSnapshot(t *testing.T) {
	cfg := validConfig()
	store := NewStore(&cfg)

	bad := cfg
	bad.Scheduler.BatchSize = 0
	require.Error(t, store.Swap(&bad))
	assert.Equal(t, &cfg, store.Current())
}

func TestStoreSwapNotifiesSubscribers(t *testing.T) {
	cfg := validConfig()
	store := NewStore(&cfg)

	var got *Config
	store.OnChange(func(c *Config) { got = c })

	next := validConfig()
	next.Scheduler.BatchSize = 8
	require.NoError(t, store.Swap(&next))
	require.NotNil(t, got)
	assert.Equal(t, 8, got.Scheduler.BatchSize)
}
