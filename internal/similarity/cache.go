package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/jengzang/landuse-tree/internal/metrics"
)

// DefaultCacheSize bounds the number of memoized tag pairs.
const DefaultCacheSize = 100000

// ErrTooManyFallbacks is returned once the share of failed oracle lookups
// exceeds the configured FallbackPolicy.
var ErrTooManyFallbacks = errors.New("similarity: too many failed oracle lookups")

// FallbackPolicy limits how many oracle failures are scored as 0 before
// lookups start failing. The limit applies once at least MinSamples oracle
// calls were made. A MaxFraction of 1 or more never aborts.
type FallbackPolicy struct {
	MaxFraction float64
	MinSamples  int
}

// Stats counts cache activity.
type Stats struct {
	Lookups   int64 // calls to Similarity
	Hits      int64
	Absent    int64 // oracle had no score
	Fallbacks int64 // oracle failed
}

// Cache memoizes an Oracle per unordered tag pair. Absent scores are
// memoized as 0. Failed lookups are scored 0 but not memoized.
type Cache struct {
	oracle Oracle
	pairs  *lru.Cache[string, float64]
	policy FallbackPolicy
	logger *zap.Logger

	mu    sync.Mutex
	stats Stats
	calls int64
}

// NewCache wraps oracle. size <= 0 uses DefaultCacheSize.
func NewCache(oracle Oracle, size int, policy FallbackPolicy, logger *zap.Logger) (*Cache, error) {
	if oracle == nil {
		return nil, errors.New("similarity: nil oracle")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pairs, err := lru.New[string, float64](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create similarity cache: %w", err)
	}
	return &Cache{
		oracle: oracle,
		pairs:  pairs,
		policy: policy,
		logger: logger.Named("similarity"),
	}, nil
}

// Similarity returns the score of a and b, asking the oracle at most once
// per unordered pair while the pair stays cached.
func (c *Cache) Similarity(ctx context.Context, a, b string) (float64, error) {
	c.mu.Lock()
	c.stats.Lookups++
	c.mu.Unlock()

	key := pairKey(a, b)
	if v, ok := c.pairs.Get(key); ok {
		c.record(func(s *Stats) { s.Hits++ })
		metrics.OracleLookupsTotal.WithLabelValues("hit").Inc()
		return v, nil
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	x, y := a, b
	if y < x {
		x, y = y, x
	}
	score, ok, err := c.oracle.TagSimilarity(ctx, x, y)
	if err != nil {
		return 0, c.fallback(x, y, err)
	}

	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if !ok || math.IsNaN(score) {
		c.record(func(s *Stats) { s.Absent++ })
		metrics.OracleLookupsTotal.WithLabelValues("absent").Inc()
		score = 0
	} else {
		metrics.OracleLookupsTotal.WithLabelValues("miss").Inc()
		score = math.Max(0, math.Min(1, score))
	}
	c.pairs.Add(key, score)
	return score, nil
}

func (c *Cache) fallback(a, b string, cause error) error {
	metrics.OracleLookupsTotal.WithLabelValues("fallback").Inc()

	c.mu.Lock()
	c.calls++
	c.stats.Fallbacks++
	fallbacks, calls := c.stats.Fallbacks, c.calls
	c.mu.Unlock()

	c.logger.Warn("Tag similarity lookup failed, scoring 0",
		zap.String("a", a), zap.String("b", b), zap.Error(cause))

	if c.policy.MaxFraction < 1 && calls >= int64(c.policy.MinSamples) &&
		float64(fallbacks)/float64(calls) > c.policy.MaxFraction {
		return fmt.Errorf("%w: %d of %d lookups failed, last: %v", ErrTooManyFallbacks, fallbacks, calls, cause)
	}
	return nil
}

func (c *Cache) record(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Len returns the number of memoized pairs.
func (c *Cache) Len() int {
	return c.pairs.Len()
}
