package propensity

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/logger"
	pkgredis "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/redis"
)

const keyPrefix = "xmc:propensity:"

// KV is the subset of the Redis client the cache needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Cache memoises propensity vectors keyed by everything they depend on.
// Redis failures are logged and fall back to computing.
type Cache struct {
	kv      KV
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	observe func(result string)
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewCache creates a cache. observe, if non-nil, is called with "hit",
// "miss" or "error" for every lookup.
func NewCache(kv KV, ttl time.Duration, observe func(result string)) *Cache {
	if observe == nil {
		observe = func(string) {}
	}
	return &Cache{
		kv:      kv,
		ttl:     ttl,
		logger:  logger.WithComponent("propensity-cache"),
		observe: observe,
	}
}

func (c *Cache) get(ctx context.Context, key string) ([]Vector, bool) {
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if pkgredis.IsNilError(err) {
			c.misses.Add(1)
			c.observe("miss")
			return nil, false
		}
		c.logger.Error("cache get failed", "key", key, "error", err)
		c.misses.Add(1)
		c.observe("error")
		return nil, false
	}
	var vectors []Vector
	if err := json.Unmarshal(data, &vectors); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		c.observe("error")
		return nil, false
	}
	c.hits.Add(1)
	c.observe("hit")
	c.logger.Debug("cache hit", "key", key)
	return vectors, true
}

func (c *Cache) set(ctx context.Context, key string, vectors []Vector) {
	data, err := json.Marshal(vectors)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.kv.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// Estimate returns cached vectors when present and otherwise computes them
// once, even under concurrent identical requests. The bool reports a hit.
func (c *Cache) Estimate(ctx context.Context, mode string, p Params, splits []Split) ([]Vector, bool, error) {
	key := Key(mode, p, splits)
	if v, ok := c.get(ctx, key); ok {
		return v, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		v, err := Estimate(mode, p, splits)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]Vector), false, nil
}

func (c *Cache) Invalidate(ctx context.Context) error {
	deleted, err := c.kv.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating propensity cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Key hashes the mode, model parameters and every split's counts.
func Key(mode string, p Params, splits []Split) string {
	h := sha256.New()
	var buf [8]byte
	putInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	putFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	h.Write([]byte(strings.ToLower(mode)))
	putFloat(p.A)
	putFloat(p.B)
	for _, s := range splits {
		putInt(len(s.Name))
		h.Write([]byte(s.Name))
		putInt(s.Counts.Instances)
		putInt(len(s.Counts.Counts))
		for _, c := range s.Counts.Counts {
			putInt(c)
		}
	}
	return fmt.Sprintf("%s%x", keyPrefix, h.Sum(nil)[:16])
}
