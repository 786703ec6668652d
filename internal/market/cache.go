package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"quantra/internal/logger"
)

// ErrUntrackedTimeframe is returned when the cache is asked for a timeframe it
// was not configured to track.
var ErrUntrackedTimeframe = fmt.Errorf("timeframe not tracked by cache")

// CacheConfig configures the live multi-timeframe cache.
type CacheConfig struct {
	Symbol     string
	Timeframes []string
	// Limits holds the fetch depth per timeframe; DefaultLimit applies when a
	// timeframe has no entry.
	Limits       map[string]int
	DefaultLimit int
	MaxAge       time.Duration
}

type cachedFrame struct {
	candles   []Candle
	fetchedAt time.Time
}

// Cache is the live-mode fetch-through wrapper around a Source: reads return
// the cached frame while it is younger than MaxAge, otherwise a single fetch
// replaces it. Refreshes of independent timeframes fan out concurrently.
type Cache struct {
	source Source
	cfg    CacheConfig
	now    func() time.Time

	mu     sync.Mutex
	frames map[string]*cachedFrame
}

func NewCache(source Source, cfg CacheConfig) (*Cache, error) {
	if source == nil {
		return nil, fmt.Errorf("cache requires a candle source")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("cache requires a symbol")
	}
	if len(cfg.Timeframes) == 0 {
		return nil, fmt.Errorf("cache requires at least one timeframe")
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 300
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * time.Second
	}
	frames := make(map[string]*cachedFrame, len(cfg.Timeframes))
	keys := make([]string, 0, len(cfg.Timeframes))
	for _, raw := range cfg.Timeframes {
		tf, err := ParseTimeframe(raw)
		if err != nil {
			return nil, err
		}
		if _, ok := frames[tf.Key]; ok {
			continue
		}
		frames[tf.Key] = &cachedFrame{}
		keys = append(keys, tf.Key)
	}
	cfg.Timeframes = keys
	return &Cache{
		source: source,
		cfg:    cfg,
		now:    time.Now,
		frames: frames,
	}, nil
}

func (c *Cache) limitFor(tf string) int {
	if v, ok := c.cfg.Limits[tf]; ok && v > 0 {
		return v
	}
	return c.cfg.DefaultLimit
}

// Candles returns the series for a tracked timeframe, fetching through when
// the cached frame is stale or empty.
func (c *Cache) Candles(ctx context.Context, timeframe string) ([]Candle, error) {
	key := normalizeKey(timeframe)
	c.mu.Lock()
	frame, ok := c.frames[key]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUntrackedTimeframe, timeframe)
	}
	if len(frame.candles) > 0 && c.now().Sub(frame.fetchedAt) < c.cfg.MaxAge {
		out := make([]Candle, len(frame.candles))
		copy(out, frame.candles)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	return c.refresh(ctx, key)
}

func (c *Cache) refresh(ctx context.Context, key string) ([]Candle, error) {
	candles, err := c.source.FetchOHLCV(ctx, c.cfg.Symbol, key, c.limitFor(key), 0)
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s failed: %w", c.cfg.Symbol, key, err)
	}
	c.mu.Lock()
	frame, ok := c.frames[key]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUntrackedTimeframe, key)
	}
	frame.candles = candles
	frame.fetchedAt = c.now()
	out := make([]Candle, len(candles))
	copy(out, candles)
	c.mu.Unlock()
	logger.Debugf("[cache] refreshed %s %s (%d candles)", c.cfg.Symbol, key, len(candles))
	return out, nil
}

// RefreshAll forces a refresh of every tracked timeframe in parallel and joins
// before returning. The first fetch error aborts the group.
func (c *Cache) RefreshAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, tf := range c.cfg.Timeframes {
		tf := tf
		g.Go(func() error {
			_, err := c.refresh(gctx, tf)
			return err
		})
	}
	return g.Wait()
}

// Timeframes lists the tracked timeframe keys.
func (c *Cache) Timeframes() []string {
	return append([]string(nil), c.cfg.Timeframes...)
}
