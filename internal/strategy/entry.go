package strategy

import (
	"math"
	"sort"
	"time"

	"quantra/internal/config"
)

// entryCandidate is one qualifying setup with its levels and sizing hint.
type entryCandidate struct {
	setup      SetupResult
	priority   int
	stop       float64
	target     float64
	confidence float64
	riskScale  float64
}

// sessionAllowed gates entries by UTC hour bucket. An empty list allows all
// sessions.
func sessionAllowed(cfg config.EntryConfig, ts int64) bool {
	if len(cfg.SessionHours) == 0 {
		return true
	}
	hour := time.UnixMilli(ts).UTC().Hour()
	for _, h := range cfg.SessionHours {
		if h == hour {
			return true
		}
	}
	return false
}

// qualityPass applies the non-setup gates: volatility-regime ceiling, trend
// slope magnitude for with-trend entries, and CVD alignment. Pure predicate.
func qualityPass(mc MarketContext, cfg config.EntryConfig, s SetupResult) bool {
	if regimeRank(mc.Regime) > regimeRank(VolRegime(cfg.VolCeiling)) {
		return false
	}
	switch s.Name {
	case SetupTrendIgnitionLong, SetupTrendIgnitionShort:
		if math.Abs(mc.Slope) < cfg.MinSlope {
			return false
		}
	}
	if s.Side == SideLong && mc.CVD.Falling() && mc.CVD.Divergence != "bullish" {
		return false
	}
	if s.Side == SideShort && mc.CVD.Rising() && mc.CVD.Divergence != "bearish" {
		return false
	}
	return true
}

// confidence scores a candidate into [0,1] from regime/alignment heuristics:
// 0.5 base, trend alignment +0.2, CVD alignment +0.15, balanced regime +0.15.
func confidence(mc MarketContext, s SetupResult) float64 {
	score := 0.5
	if (s.Side == SideLong && mc.Trend == TrendingUp) ||
		(s.Side == SideShort && mc.Trend == TrendingDown) {
		score += 0.2
	}
	if (s.Side == SideLong && (mc.CVD.Rising() || mc.CVD.Divergence == "bullish")) ||
		(s.Side == SideShort && (mc.CVD.Falling() || mc.CVD.Divergence == "bearish")) {
		score += 0.15
	}
	if mc.Regime == VolBalanced {
		score += 0.15
	}
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

func buildCandidate(mc MarketContext, cfg config.EntryConfig, s SetupResult, priority int) entryCandidate {
	var stop, target float64
	if s.Side == SideLong {
		stop = mc.Price - cfg.ATRStopMult*mc.ATR
		target = mc.Price + cfg.ATRTargetMult*mc.ATR
	} else {
		stop = mc.Price + cfg.ATRStopMult*mc.ATR
		target = mc.Price - cfg.ATRTargetMult*mc.ATR
	}
	conf := confidence(mc, s)
	scale := cfg.RiskScaleMin + (cfg.RiskScaleMax-cfg.RiskScaleMin)*conf
	return entryCandidate{
		setup:      s,
		priority:   priority,
		stop:       stop,
		target:     target,
		confidence: conf,
		riskScale:  scale,
	}
}

// selectEntry picks the winning setup: lowest priority index first, ties
// broken by highest confidence. Returns nil when nothing qualifies.
func selectEntry(mc MarketContext, cfg config.EntryConfig, results []SetupResult) *entryCandidate {
	order := cfg.Priority
	if len(order) == 0 {
		order = DefaultSetupOrder
	}
	index := make(map[string]int, len(order))
	for i, name := range order {
		index[name] = i
	}

	if !sessionAllowed(cfg, mc.Timestamp) {
		return nil
	}

	var candidates []entryCandidate
	for _, s := range results {
		prio, listed := index[s.Name]
		if !listed {
			continue // not in the priority order, never eligible
		}
		if !s.Active || !qualityPass(mc, cfg, s) {
			continue
		}
		candidates = append(candidates, buildCandidate(mc, cfg, s, prio))
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}
		return candidates[i].confidence > candidates[j].confidence
	})
	return &candidates[0]
}
