package config

import "time"

// Config is the process-wide configuration. The core packages never read
// files themselves; everything they need arrives through these structs.
type Config struct {
	Log      LogConfig                  `mapstructure:"log"`
	Data     DataConfig                 `mapstructure:"data"`
	Risk     RiskConfig                 `mapstructure:"risk"`
	Backtest BacktestConfig             `mapstructure:"backtest"`
	Server   ServerConfig               `mapstructure:"server"`
	Profiles map[string]StrategyProfile `mapstructure:"profiles"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DataConfig struct {
	Source       string        `mapstructure:"source"`
	BaseURL      string        `mapstructure:"base_url"`
	CacheMaxAge  time.Duration `mapstructure:"cache_max_age"`
	DefaultLimit int           `mapstructure:"default_limit"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type RiskConfig struct {
	RiskPerTrade        float64 `mapstructure:"risk_per_trade"`
	MaxPositionFraction float64 `mapstructure:"max_position_fraction"`
	Leverage            int     `mapstructure:"leverage"`
}

type BacktestConfig struct {
	InitialBalance float64 `mapstructure:"initial_balance"`
	FeeRate        float64 `mapstructure:"fee_rate"`
	SlippageBps    float64 `mapstructure:"slippage_bps"`
	ResultDB       string  `mapstructure:"result_db"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// StrategyProfile fully parameterizes one strategy instance. Strategy names a
// kind in the compile-time registry; the timeframe triple feeds the context
// builder.
type StrategyProfile struct {
	Strategy           string         `mapstructure:"strategy"`
	Symbol             string         `mapstructure:"symbol"`
	ExecutionTimeframe string         `mapstructure:"execution_timeframe"`
	ConfirmTimeframe   string         `mapstructure:"confirm_timeframe"`
	ContextTimeframe   string         `mapstructure:"context_timeframe"`
	Lookbacks          map[string]int `mapstructure:"lookbacks"`
	MinBars            map[string]int `mapstructure:"min_bars"`
	Entry              EntryConfig    `mapstructure:"entry"`
	Exit               ExitConfig     `mapstructure:"exit"`
}

// EntryConfig drives setup evaluation and entry selection. ATRStopMult and
// ATRTargetMult have no safe default and are validated as required.
type EntryConfig struct {
	Priority      []string `mapstructure:"priority"`
	ATRPeriod     int      `mapstructure:"atr_period"`
	EMAFast       int      `mapstructure:"ema_fast"`
	EMASlow       int      `mapstructure:"ema_slow"`
	RSIPeriod     int      `mapstructure:"rsi_period"`
	VWAPWindow    int      `mapstructure:"vwap_window"`
	SlopePeriod   int      `mapstructure:"slope_period"`
	RangeWindow   int      `mapstructure:"range_window"`
	SwingLook     int      `mapstructure:"swing_lookaround"`
	ATRStopMult   float64  `mapstructure:"atr_stop_mult"`
	ATRTargetMult float64  `mapstructure:"atr_target_mult"`
	MinSlope      float64  `mapstructure:"min_slope"`
	SessionHours  []int    `mapstructure:"session_hours"`
	VolCeiling    string   `mapstructure:"vol_ceiling"`
	RiskScaleMin  float64  `mapstructure:"risk_scale_min"`
	RiskScaleMax  float64  `mapstructure:"risk_scale_max"`
}

// ExitConfig drives the exit state machine. MaxDurationBars and
// MaxDrawdownPct are required; everything else has a working default.
type ExitConfig struct {
	MaxDurationBars  int     `mapstructure:"max_duration_bars"`
	MaxDrawdownPct   float64 `mapstructure:"max_drawdown_pct"`
	TrailLockInPct   float64 `mapstructure:"trail_lock_in_pct"`
	TrailGivebackPct float64 `mapstructure:"trail_giveback_pct"`
	StallBars        int     `mapstructure:"stall_bars"`
	StallRangePct    float64 `mapstructure:"stall_range_pct"`
	RSIExitHigh      float64 `mapstructure:"rsi_exit_high"`
	RSIExitLow       float64 `mapstructure:"rsi_exit_low"`
	VolFadeEnabled   bool    `mapstructure:"vol_fade_enabled"`
	VolFadeRatio     float64 `mapstructure:"vol_fade_ratio"`
	CooldownBars     int     `mapstructure:"cooldown_bars"`
	DailyDrawdownPct float64 `mapstructure:"daily_drawdown_pct"`
}

// Timeframes returns the unique timeframes the profile consults, execution
// first.
func (p StrategyProfile) Timeframes() []string {
	seen := make(map[string]struct{}, 3)
	var out []string
	for _, tf := range []string{p.ExecutionTimeframe, p.ConfirmTimeframe, p.ContextTimeframe} {
		if tf == "" {
			continue
		}
		if _, ok := seen[tf]; ok {
			continue
		}
		seen[tf] = struct{}{}
		out = append(out, tf)
	}
	return out
}

// LookbackFor returns the configured warm-up depth for a timeframe.
func (p StrategyProfile) LookbackFor(tf string) int {
	if v, ok := p.Lookbacks[tf]; ok && v > 0 {
		return v
	}
	return 300
}

// MinBarsFor returns the minimum history required before the engine will emit
// anything but a no-action intent.
func (p StrategyProfile) MinBarsFor(tf string) int {
	if v, ok := p.MinBars[tf]; ok && v > 0 {
		return v
	}
	return 60
}
