package backtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"quantra/internal/strategy"
)

// ErrRunNotFound is returned when a run id has no record.
var ErrRunNotFound = errors.New("backtest run not found")

// RunRecord is one persisted run: config and stats as JSON blobs, headline
// numbers as columns so listings stay a single query.
type RunRecord struct {
	ID             string `gorm:"primaryKey"`
	Symbol         string `gorm:"index"`
	Profile        string
	Strategy       string
	StartTS        int64
	EndTS          int64
	InitialBalance float64
	FinalBalance   float64
	ReturnPct      float64
	WinRate        float64
	MaxDrawdownPct float64
	TradeCount     int
	ConfigJSON     string
	StatsJSON      string
	CreatedAt      time.Time
}

func (RunRecord) TableName() string { return "backtest_runs" }

type TradeRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	RunID       string `gorm:"index"`
	Symbol      string
	Side        string
	EntryTime   int64
	ExitTime    int64
	EntryPrice  float64
	ExitPrice   float64
	Quantity    float64
	Fee         float64
	PnL         float64
	PnLPct      float64
	EntryReason string
	ExitReason  string
}

func (TradeRecord) TableName() string { return "backtest_trades" }

type SnapshotRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	RunID     string `gorm:"index"`
	Timestamp int64
	Balance   float64
	Equity    float64
	Drawdown  float64
}

func (SnapshotRecord) TableName() string { return "backtest_snapshots" }

// ResultStore persists finished runs to sqlite.
type ResultStore struct {
	db *gorm.DB
}

func NewResultStore(path string) (*ResultStore, error) {
	if path == "" {
		return nil, fmt.Errorf("result store path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	if err := db.AutoMigrate(&RunRecord{}, &TradeRecord{}, &SnapshotRecord{}); err != nil {
		return nil, fmt.Errorf("migrate result store: %w", err)
	}
	return &ResultStore{db: db}, nil
}

func (s *ResultStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveResult writes the run, its trades and its equity curve in one
// transaction.
func (s *ResultStore) SaveResult(res *Result) error {
	cfgJSON, err := json.Marshal(res.Config)
	if err != nil {
		return err
	}
	statsJSON, err := json.Marshal(res.Stats)
	if err != nil {
		return err
	}
	record := RunRecord{
		ID:             res.Config.RunID,
		Symbol:         res.Config.Symbol,
		Profile:        res.Config.Profile,
		Strategy:       res.Config.Strategy,
		StartTS:        res.Config.StartTS,
		EndTS:          res.Config.EndTS,
		InitialBalance: res.Config.InitialBalance,
		FinalBalance:   res.Stats.FinalBalance,
		ReturnPct:      res.Stats.ReturnPct,
		WinRate:        res.Stats.WinRate,
		MaxDrawdownPct: res.Stats.MaxDrawdownPct,
		TradeCount:     res.Stats.Trades,
		ConfigJSON:     string(cfgJSON),
		StatsJSON:      string(statsJSON),
		CreatedAt:      time.Now().UTC(),
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		for _, t := range res.Trades {
			tr := TradeRecord{
				RunID:       res.Config.RunID,
				Symbol:      t.Symbol,
				Side:        string(t.Side),
				EntryTime:   t.EntryTime,
				ExitTime:    t.ExitTime,
				EntryPrice:  t.EntryPrice,
				ExitPrice:   t.ExitPrice,
				Quantity:    t.Quantity,
				Fee:         t.Fee,
				PnL:         t.PnL,
				PnLPct:      t.PnLPct,
				EntryReason: t.EntryReason,
				ExitReason:  t.ExitReason,
			}
			if err := tx.Create(&tr).Error; err != nil {
				return err
			}
		}
		snaps := make([]SnapshotRecord, 0, len(res.Equity))
		for _, e := range res.Equity {
			snaps = append(snaps, SnapshotRecord{
				RunID:     res.Config.RunID,
				Timestamp: e.Timestamp,
				Balance:   e.Balance,
				Equity:    e.Equity,
				Drawdown:  e.Drawdown,
			})
		}
		if len(snaps) > 0 {
			if err := tx.CreateInBatches(snaps, 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRun returns the headline record of one run.
func (s *ResultStore) GetRun(id string) (*RunRecord, error) {
	var rec RunRecord
	err := s.db.First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *ResultStore) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []RunRecord
	err := s.db.Order("created_at DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

// LoadResult reassembles a full Result from storage.
func (s *ResultStore) LoadResult(id string) (*Result, error) {
	rec, err := s.GetRun(id)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	if err := json.Unmarshal([]byte(rec.ConfigJSON), &res.Config); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rec.StatsJSON), &res.Stats); err != nil {
		return nil, err
	}

	var trades []TradeRecord
	if err := s.db.Where("run_id = ?", id).Order("exit_time ASC").Find(&trades).Error; err != nil {
		return nil, err
	}
	for _, t := range trades {
		res.Trades = append(res.Trades, Trade{
			Symbol:      t.Symbol,
			Side:        strategy.Side(t.Side),
			EntryTime:   t.EntryTime,
			ExitTime:    t.ExitTime,
			EntryPrice:  t.EntryPrice,
			ExitPrice:   t.ExitPrice,
			Quantity:    t.Quantity,
			Fee:         t.Fee,
			PnL:         t.PnL,
			PnLPct:      t.PnLPct,
			EntryReason: t.EntryReason,
			ExitReason:  t.ExitReason,
		})
	}

	var snaps []SnapshotRecord
	if err := s.db.Where("run_id = ?", id).Order("timestamp ASC").Find(&snaps).Error; err != nil {
		return nil, err
	}
	for _, e := range snaps {
		res.Equity = append(res.Equity, EquitySnapshot{
			Timestamp: e.Timestamp,
			Balance:   e.Balance,
			Equity:    e.Equity,
			Drawdown:  e.Drawdown,
		})
	}
	return res, nil
}
