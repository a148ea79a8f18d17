// Package cache provides a Redis-backed cache for detection results.
// Detection is deterministic, so a cached result is always as good as
// a fresh scan; the cache only trades memory for regex work.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dataveil/privacy-sentinel/internal/logger"
	"github.com/dataveil/privacy-sentinel/internal/pii"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Config contains detection cache settings.
type Config struct {
	RedisURL  string        `yaml:"redis_url" mapstructure:"redis_url"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	KeyPrefix string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// Stats reports cache performance counters.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	TotalKeys int64   `json:"total_keys"`
}

// cachedEntry is the stored representation of one detection result.
// Raw matched values are never cached; only kinds, scores and spans.
type cachedEntry struct {
	Matches  []pii.Match `json:"matches"`
	CachedAt time.Time   `json:"cached_at"`
}

// DetectionCache caches detector output keyed by a hash of the input
// text. The text itself never reaches Redis.
type DetectionCache struct {
	client *redis.Client
	config Config
	logger *logger.Logger
	hits   int64
	misses int64
}

// NewDetectionCache connects to Redis and verifies the connection.
func NewDetectionCache(config Config, log *logger.Logger) (*DetectionCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Detection cache initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Duration("ttl", config.TTL),
	)

	return &DetectionCache{
		client: client,
		config: config,
		logger: log,
	}, nil
}

// Get returns the cached matches for text, if present. Lookup errors
// degrade to a miss; the caller re-runs detection.
func (c *DetectionCache) Get(ctx context.Context, text string) ([]pii.Match, bool) {
	key := c.keyFor(text)

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	} else if err != nil {
		c.logger.Error("Cache lookup failed", zap.Error(err))
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	var entry cachedEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.logger.Error("Failed to unmarshal cached entry", zap.Error(err))
		// Delete corrupted cache entry
		c.client.Del(ctx, key)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	return entry.Matches, true
}

// Set caches a detection result. Failures are logged, never surfaced:
// the cache is an optimization, not a dependency.
func (c *DetectionCache) Set(ctx context.Context, text string, matches []pii.Match) {
	entry := cachedEntry{
		Matches:  scrub(matches),
		CachedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Error("Failed to marshal entry for caching", zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, c.keyFor(text), data, c.config.TTL).Err(); err != nil {
		c.logger.Error("Failed to cache detection result", zap.Error(err))
	}
}

// GetStats returns cache performance statistics.
func (c *DetectionCache) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
	}

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	keys, err := c.client.DBSize(ctx).Result()
	if err == nil {
		stats.TotalKeys = keys
	}

	return stats, nil
}

// Clear removes every cached detection result.
func (c *DetectionCache) Clear(ctx context.Context) error {
	pattern := c.config.KeyPrefix + "*"

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	// Delete keys in batches
	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection.
func (c *DetectionCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// keyFor hashes the input text so raw content never becomes a key.
func (c *DetectionCache) keyFor(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.config.KeyPrefix + hex.EncodeToString(sum[:])[:16]
}

// scrub drops raw matched values before caching. Match already omits
// Value from JSON, but the copy keeps the invariant independent of
// struct tags.
func scrub(matches []pii.Match) []pii.Match {
	out := make([]pii.Match, len(matches))
	for i, m := range matches {
		out[i] = m
		out[i].Value = ""
	}
	return out
}

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
