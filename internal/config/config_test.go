package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "BTC/JPY", cfg.Pair)
	assert.Equal(t, 20.0, cfg.Trading.TriggerPct)
	assert.Equal(t, time.Hour, cfg.Trading.Cooldown)
	assert.Equal(t, 100.0, cfg.Trading.MaxRiskPct)
	assert.Equal(t, 1000.0, cfg.Trading.BalanceBuffer)
	assert.True(t, cfg.Trading.ReinvestProceeds)
	assert.True(t, cfg.Alerts.DepositDetection)
	assert.Equal(t, 10*time.Second, cfg.Lock.Timeout)
	assert.Equal(t, "0 0 * * * *", cfg.Schedule.CycleCron)
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	path := writeConfig(t, `
pair: ETH/JPY
dry_run: true
trading:
  trigger_pct: 5
  cooldown: 30m
  reinvest_proceeds: false
breakout:
  enabled: true
  lookback_days: 10
lock:
  timeout: 2s
smtp:
  host: smtp.example.com
  to: "a@example.com, b@example.com"
`)
	t.Setenv("BALANCE_BUFFER", "250")
	t.Setenv("AUTO_RESIZE", "1")
	t.Setenv("BUY_COOLDOWN", "90")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "ETH/JPY", cfg.Pair)
	assert.Equal(t, 5.0, cfg.Trading.TriggerPct)
	assert.Equal(t, 90*time.Second, cfg.Trading.Cooldown)
	assert.Equal(t, 250.0, cfg.Trading.BalanceBuffer)
	assert.True(t, cfg.Trading.AutoResize)
	assert.False(t, cfg.Trading.ReinvestProceeds)
	assert.Equal(t, 2*time.Second, cfg.Lock.Timeout)

	smtp, ok := cfg.SMTPConfig()
	require.True(t, ok)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, smtp.To)
	assert.Equal(t, 587, smtp.Port)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("FEE_RATE", "a lot")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "FEE_RATE")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		cfg.DryRun = true
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"dry run defaults", func(*Config) {}, true},
		{"live without keys", func(c *Config) { c.DryRun = false }, false},
		{"live with keys", func(c *Config) { c.DryRun = false; c.Exchange.APIKey, c.Exchange.SecretKey = "k", "s" }, true},
		{"bad pair", func(c *Config) { c.Pair = "BTCJPY" }, false},
		{"risk above 100", func(c *Config) { c.Trading.MaxRiskPct = 120 }, false},
		{"negative buffer", func(c *Config) { c.Trading.BalanceBuffer = -1 }, false},
		{"fee rate 1", func(c *Config) { c.Trading.FeeRate = 1 }, false},
		{"resize multiplier 1", func(c *Config) { c.Trading.AutoResize = true; c.Trading.AutoResizeMultiplier = 1 }, false},
		{"telegram token alone", func(c *Config) { c.Telegram.BotToken = "t" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestParamsConversion(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.Trading.FeeRate = 0.0012
	cfg.Trading.OrderBudget = 3000

	tp := cfg.TraderParams()
	assert.True(t, tp.Sizing.Fees.Rate.Equal(decimal.RequireFromString("0.0012")))
	assert.True(t, tp.Sizing.MinQty.Equal(decimal.RequireFromString("0.0001")))
	assert.True(t, tp.OrderBudget.Equal(decimal.NewFromInt(3000)))
	assert.Equal(t, cfg.Lock.File, tp.LockPath)

	gp := cfg.TriggerParams()
	assert.True(t, gp.TriggerPct.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, time.Hour, gp.Cooldown)

	ms := cfg.MonitorSettings()
	assert.True(t, ms.DepositMinIncrease.Equal(decimal.NewFromInt(1000)))
	assert.True(t, ms.LowFunds.Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, cfg.Lock.Timeout, ms.LockTimeout)
}
