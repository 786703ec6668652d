package config

import (
	"fmt"
	"strings"

	"quantra/internal/market"
)

// validate rejects configurations that cannot run. Fields with no safe default
// (stop/target multiples, exit duration and drawdown caps) must be present and
// positive; the error names the offending field.
func validate(c *Config) error {
	if c.Risk.RiskPerTrade >= 1 {
		return fmt.Errorf("risk.risk_per_trade must be a fraction < 1")
	}
	if c.Risk.MaxPositionFraction > 1 {
		return fmt.Errorf("risk.max_position_fraction must be <= 1")
	}
	for name, p := range c.Profiles {
		if err := p.validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (p StrategyProfile) validate(name string) error {
	if strings.TrimSpace(p.Strategy) == "" {
		return fmt.Errorf("profiles.%s.strategy is required", name)
	}
	if strings.TrimSpace(p.Symbol) == "" {
		return fmt.Errorf("profiles.%s.symbol is required", name)
	}
	if strings.TrimSpace(p.ExecutionTimeframe) == "" {
		return fmt.Errorf("profiles.%s.execution_timeframe is required", name)
	}
	for _, tf := range p.Timeframes() {
		if _, err := market.ParseTimeframe(tf); err != nil {
			return fmt.Errorf("profiles.%s: %w", name, err)
		}
	}
	if p.Entry.ATRStopMult <= 0 {
		return fmt.Errorf("profiles.%s.entry.atr_stop_mult is required and must be > 0", name)
	}
	if p.Entry.ATRTargetMult <= 0 {
		return fmt.Errorf("profiles.%s.entry.atr_target_mult is required and must be > 0", name)
	}
	if p.Exit.MaxDurationBars <= 0 {
		return fmt.Errorf("profiles.%s.exit.max_duration_bars is required and must be > 0", name)
	}
	if p.Exit.MaxDrawdownPct <= 0 {
		return fmt.Errorf("profiles.%s.exit.max_drawdown_pct is required and must be > 0", name)
	}
	for _, h := range p.Entry.SessionHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("profiles.%s.entry.session_hours contains invalid hour %d", name, h)
		}
	}
	switch p.Entry.VolCeiling {
	case "low", "balanced", "high":
	default:
		return fmt.Errorf("profiles.%s.entry.vol_ceiling must be low/balanced/high", name)
	}
	return nil
}
