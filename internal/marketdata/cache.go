package marketdata

import (
	"fmt"
	"strings"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/yourusername/stocktester/internal/metrics"
	"github.com/yourusername/stocktester/internal/models"
)

const cacheMetricName = "market_data"

// CacheKey identifies one cached bar series
type CacheKey struct {
	Symbol    string
	Source    string
	Timeframe models.Timeframe
	Start     time.Time
	End       time.Time
}

// String returns the key as symbol_source_timeframe_start_end
func (k CacheKey) String() string {
	return fmt.Sprintf("%s_%s_%s_%s_%s", k.Symbol, k.Source, k.Timeframe,
		k.Start.Format(models.DateLayout), k.End.Format(models.DateLayout))
}

// BarCache is a size-bounded TTL cache of bar series
type BarCache struct {
	cache   *cache.Cache
	ttl     time.Duration
	maxSize int

	mu        sync.Mutex
	hitCount  uint64
	missCount uint64
}

// NewBarCache creates a cache holding at most maxSize series for ttl each
func NewBarCache(ttl time.Duration, maxSize int) *BarCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &BarCache{
		cache:   cache.New(ttl, ttl*2),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get returns the cached bars for key
func (c *BarCache) Get(key CacheKey) ([]models.Bar, bool) {
	value, found := c.cache.Get(key.String())
	bars, ok := value.([]models.Bar)
	hit := found && ok

	c.mu.Lock()
	if hit {
		c.hitCount++
	} else {
		c.missCount++
	}
	c.mu.Unlock()

	metrics.RecordCacheLookup(cacheMetricName, hit)
	return bars, hit
}

// Set stores bars under key, evicting the entry closest to expiry when full
func (c *BarCache) Set(key CacheKey, bars []models.Bar) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key.String()
	if _, exists := c.cache.Get(k); !exists && c.cache.ItemCount() >= c.maxSize {
		c.cache.DeleteExpired()
		if c.cache.ItemCount() >= c.maxSize {
			c.evictOldest()
		}
	}
	c.cache.Set(k, bars, c.ttl)
}

func (c *BarCache) evictOldest() {
	var (
		oldestKey string
		oldestExp int64
	)
	for k, item := range c.cache.Items() {
		if oldestKey == "" || item.Expiration < oldestExp {
			oldestKey = k
			oldestExp = item.Expiration
		}
	}
	if oldestKey != "" {
		c.cache.Delete(oldestKey)
	}
}

// InvalidateSource removes every entry loaded from source
func (c *BarCache) InvalidateSource(source string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.cache.Items() {
		if keySource(k) == source {
			c.cache.Delete(k)
			removed++
		}
	}
	return removed
}

// keySource extracts the source from a key string. Symbols never contain
// underscores, so the second field is always the start of the source name;
// source names may contain underscores and are followed by three more fields.
func keySource(k string) string {
	parts := strings.Split(k, "_")
	if len(parts) < 5 {
		return ""
	}
	return strings.Join(parts[1:len(parts)-3], "_")
}

// DeleteExpired removes expired entries and returns how many remain
func (c *BarCache) DeleteExpired() int {
	c.cache.DeleteExpired()
	return c.cache.ItemCount()
}

// Stats returns cache statistics
func (c *BarCache) Stats() (hits, misses uint64, ratio float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hits = c.hitCount
	misses = c.missCount
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return
}

// ItemCount returns the number of items in cache
func (c *BarCache) ItemCount() int {
	return c.cache.ItemCount()
}
