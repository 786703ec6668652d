package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads the YAML config at path, applies defaults for optional fields and
// fails fast on missing required ones.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = decodeHook
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Data.Source == "" {
		c.Data.Source = "binance"
	}
	if c.Data.CacheMaxAge <= 0 {
		c.Data.CacheMaxAge = 30 * time.Second
	}
	if c.Data.DefaultLimit <= 0 {
		c.Data.DefaultLimit = 300
	}
	if c.Data.PollInterval <= 0 {
		c.Data.PollInterval = time.Minute
	}
	if c.Risk.RiskPerTrade <= 0 {
		c.Risk.RiskPerTrade = 0.01
	}
	if c.Risk.MaxPositionFraction <= 0 {
		c.Risk.MaxPositionFraction = 0.2
	}
	if c.Risk.Leverage <= 0 {
		c.Risk.Leverage = 1
	}
	if c.Backtest.InitialBalance <= 0 {
		c.Backtest.InitialBalance = 10000
	}
	if c.Backtest.FeeRate <= 0 {
		c.Backtest.FeeRate = 0.0004 // 4 bps taker
	}
	if c.Backtest.SlippageBps <= 0 {
		c.Backtest.SlippageBps = 2
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	for name, p := range c.Profiles {
		p.applyDefaults()
		c.Profiles[name] = p
	}
}

func (p *StrategyProfile) applyDefaults() {
	if p.Entry.ATRPeriod <= 0 {
		p.Entry.ATRPeriod = 14
	}
	if p.Entry.EMAFast <= 0 {
		p.Entry.EMAFast = 21
	}
	if p.Entry.EMASlow <= 0 {
		p.Entry.EMASlow = 50
	}
	if p.Entry.RSIPeriod <= 0 {
		p.Entry.RSIPeriod = 14
	}
	if p.Entry.VWAPWindow <= 0 {
		p.Entry.VWAPWindow = 48
	}
	if p.Entry.SlopePeriod <= 0 {
		p.Entry.SlopePeriod = 20
	}
	if p.Entry.RangeWindow <= 0 {
		p.Entry.RangeWindow = 48
	}
	if p.Entry.SwingLook <= 0 {
		p.Entry.SwingLook = 2
	}
	if p.Entry.MinSlope <= 0 {
		p.Entry.MinSlope = 0.0003
	}
	if p.Entry.VolCeiling == "" {
		p.Entry.VolCeiling = "high"
	}
	if p.Entry.RiskScaleMin <= 0 {
		p.Entry.RiskScaleMin = 0.5
	}
	if p.Entry.RiskScaleMax <= 0 {
		p.Entry.RiskScaleMax = 1.5
	}
	if p.Exit.TrailLockInPct <= 0 {
		p.Exit.TrailLockInPct = 0.008
	}
	if p.Exit.TrailGivebackPct <= 0 {
		p.Exit.TrailGivebackPct = 0.4
	}
	if p.Exit.StallBars <= 0 {
		p.Exit.StallBars = 12
	}
	if p.Exit.StallRangePct <= 0 {
		p.Exit.StallRangePct = 0.002
	}
	if p.Exit.RSIExitHigh <= 0 {
		p.Exit.RSIExitHigh = 78
	}
	if p.Exit.RSIExitLow <= 0 {
		p.Exit.RSIExitLow = 22
	}
	if p.Exit.VolFadeRatio <= 0 {
		p.Exit.VolFadeRatio = 0.6
	}
	if p.Exit.CooldownBars <= 0 {
		p.Exit.CooldownBars = 6
	}
	if p.Exit.DailyDrawdownPct <= 0 {
		p.Exit.DailyDrawdownPct = 0.05
	}
}
