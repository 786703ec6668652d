package backtest

import (
	"errors"
	"time"

	"quantra/internal/strategy"
)

// Documented failure modes; callers match with errors.Is.
var (
	ErrNoExecutionCandles = errors.New("no candles loaded for execution timeframe")
	ErrInvalidRange       = errors.New("start timestamp must be before end timestamp")
	ErrProfileMismatch    = errors.New("strategy profile mismatch")
	ErrUnknownProfile     = errors.New("unknown strategy profile")
)

// RunConfig is the parameter snapshot of one simulation, kept on the result
// so a run can be replayed byte for byte.
type RunConfig struct {
	RunID              string         `json:"run_id"`
	Symbol             string         `json:"symbol"`
	Profile            string         `json:"profile"`
	Strategy           string         `json:"strategy"`
	StartTS            int64          `json:"start_ts"`
	EndTS              int64          `json:"end_ts"`
	ExecutionTimeframe string         `json:"execution_timeframe"`
	Timeframes         []string       `json:"timeframes"`
	Lookbacks          map[string]int `json:"lookbacks"`
	InitialBalance     float64        `json:"initial_balance"`
	FeeRate            float64        `json:"fee_rate"`
	SlippageBps        float64        `json:"slippage_bps"`
}

// Trade is one completed round trip: an OPEN linked to its matching CLOSE.
// Append-only, write-once; PnL is net of both fees.
type Trade struct {
	Symbol      string        `json:"symbol"`
	Side        strategy.Side `json:"side"`
	EntryTime   int64         `json:"entry_time"`
	ExitTime    int64         `json:"exit_time"`
	EntryPrice  float64       `json:"entry_price"`
	ExitPrice   float64       `json:"exit_price"`
	Quantity    float64       `json:"quantity"`
	Fee         float64       `json:"fee"`
	PnL         float64       `json:"pnl"`
	PnLPct      float64       `json:"pnl_pct"`
	EntryReason string        `json:"entry_reason"`
	ExitReason  string        `json:"exit_reason"`
}

// EquitySnapshot captures balance plus unrealized PnL after one processed
// candle.
type EquitySnapshot struct {
	Timestamp int64   `json:"timestamp"`
	Balance   float64 `json:"balance"`
	Equity    float64 `json:"equity"`
	Drawdown  float64 `json:"drawdown"`
}

// SkipRecord notes a tick whose intent produced no executable plan.
type SkipRecord struct {
	Timestamp int64           `json:"timestamp"`
	Intent    strategy.Intent `json:"intent"`
	Reason    string          `json:"reason"`
}

// RunStats summarizes a finished run.
type RunStats struct {
	FinalBalance   float64   `json:"final_balance"`
	Profit         float64   `json:"profit"`
	ReturnPct      float64   `json:"return_pct"`
	WinRate        float64   `json:"win_rate"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	Trades         int       `json:"trades"`
	Wins           int       `json:"wins"`
	Losses         int       `json:"losses"`
	EquityPeak     float64   `json:"equity_peak"`
	EquityValley   float64   `json:"equity_valley"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Result is the auditable output of one run.
type Result struct {
	Config RunConfig        `json:"config"`
	Trades []Trade          `json:"trades"`
	Equity []EquitySnapshot `json:"equity_snapshots"`
	Skips  []SkipRecord     `json:"skips,omitempty"`
	Stats  RunStats         `json:"stats"`
}

func (r *Result) computeStats() {
	s := RunStats{
		FinalBalance: r.Config.InitialBalance,
		EquityPeak:   r.Config.InitialBalance,
		EquityValley: r.Config.InitialBalance,
		Trades:       len(r.Trades),
	}
	for _, t := range r.Trades {
		if t.PnL >= 0 {
			s.Wins++
		} else {
			s.Losses++
		}
	}
	if len(r.Trades) > 0 {
		s.WinRate = float64(s.Wins) / float64(len(r.Trades))
	}
	for _, e := range r.Equity {
		if e.Equity > s.EquityPeak {
			s.EquityPeak = e.Equity
		}
		if e.Equity < s.EquityValley {
			s.EquityValley = e.Equity
		}
		if e.Drawdown > s.MaxDrawdownPct {
			s.MaxDrawdownPct = e.Drawdown
		}
	}
	if n := len(r.Equity); n > 0 {
		s.FinalBalance = r.Equity[n-1].Balance
	}
	s.Profit = s.FinalBalance - r.Config.InitialBalance
	if r.Config.InitialBalance > 0 {
		s.ReturnPct = s.Profit / r.Config.InitialBalance
	}
	s.FinishedAt = time.Now().UTC()
	r.Stats = s
}
