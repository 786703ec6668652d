package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
log:
  level: debug
data:
  cache_max_age: 45s
  default_limit: 400
backtest:
  initial_balance: 25000
  result_db: ""
profiles:
  btc-momentum:
    strategy: momentum
    symbol: BTCUSDT
    execution_timeframe: 5m
    confirm_timeframe: 15m
    context_timeframe: 1h
    lookbacks:
      5m: 400
    entry:
      atr_stop_mult: 1.5
      atr_target_mult: 3.0
      session_hours: [7, 8, 9, 13, 14, 15]
    exit:
      max_duration_bars: 48
      max_drawdown_pct: 0.015
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 45*time.Second, cfg.Data.CacheMaxAge)
	assert.Equal(t, 400, cfg.Data.DefaultLimit)
	assert.Equal(t, time.Minute, cfg.Data.PollInterval, "default poll interval")
	assert.Equal(t, 25000.0, cfg.Backtest.InitialBalance)
	assert.Equal(t, 0.0004, cfg.Backtest.FeeRate, "default taker fee")
	assert.Equal(t, ":8080", cfg.Server.Addr)

	p, ok := cfg.Profiles["btc-momentum"]
	require.True(t, ok)
	assert.Equal(t, 14, p.Entry.ATRPeriod, "default ATR period")
	assert.Equal(t, 1.5, p.Entry.ATRStopMult)
	assert.Equal(t, 48, p.Exit.MaxDurationBars)
	assert.Equal(t, 6, p.Exit.CooldownBars, "default cooldown")
	assert.Equal(t, []string{"5m", "15m", "1h"}, p.Timeframes())
	assert.Equal(t, 400, p.LookbackFor("5m"))
	assert.Equal(t, 300, p.LookbackFor("15m"), "fallback lookback")
	assert.Equal(t, 60, p.MinBarsFor("5m"), "fallback min bars")
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		mangle  string
		replace string
		wantErr string
	}{
		{"missing stop mult", "atr_stop_mult: 1.5", "atr_stop_mult: 0", "entry.atr_stop_mult"},
		{"missing target mult", "atr_target_mult: 3.0", "atr_target_mult: 0", "entry.atr_target_mult"},
		{"missing max duration", "max_duration_bars: 48", "max_duration_bars: 0", "exit.max_duration_bars"},
		{"missing max drawdown", "max_drawdown_pct: 0.015", "max_drawdown_pct: 0", "exit.max_drawdown_pct"},
		{"missing symbol", "symbol: BTCUSDT", `symbol: ""`, "symbol is required"},
		{"bad timeframe", "execution_timeframe: 5m", "execution_timeframe: 7m", "7m"},
		{"bad session hour", "session_hours: [7, 8, 9, 13, 14, 15]", "session_hours: [25]", "session_hours"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := validYAML
			require.Contains(t, body, tc.mangle)
			path := writeConfig(t, strings.Replace(body, tc.mangle, tc.replace, 1))
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr, "error should name the field")
		})
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsBadVolCeiling(t *testing.T) {
	body := strings.Replace(validYAML, "atr_target_mult: 3.0", "atr_target_mult: 3.0\n      vol_ceiling: extreme", 1)
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vol_ceiling")
}
