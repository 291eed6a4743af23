package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chatmimic/retrieval/pkg/observability"
)

// CacheConfig configures the embedding cache layers
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	LocalSize int           `mapstructure:"local_size"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// CachedProvider puts an in-process LRU and an optional Redis layer in
// front of a provider. Cache content is keyed by model and content
// hash, so tenant identity never leaks through the cache. Cache
// failures degrade to the inner provider; they are never surfaced.
type CachedProvider struct {
	inner   Provider
	local   *lru.Cache[string, []float32]
	redis   *redis.Client
	ttl     time.Duration
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewCachedProvider wraps a provider with caching. The redis client may
// be nil, in which case only the local LRU is used.
func NewCachedProvider(inner Provider, redisClient *redis.Client, cfg CacheConfig, logger observability.Logger, metrics observability.MetricsClient) (*CachedProvider, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	size := cfg.LocalSize
	if size <= 0 {
		size = 1024
	}

	local, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}

	return &CachedProvider{
		inner:   inner,
		local:   local,
		redis:   redisClient,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Embed implements Provider.Embed
func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := p.cacheKey(text)

	if vector, ok := p.local.Get(key); ok {
		p.metrics.IncrementCounter("embedding.cache.local_hit", 1.0)
		return cloneVector(vector), nil
	}

	if p.redis != nil {
		data, err := p.redis.Get(ctx, key).Bytes()
		if err == nil {
			var vector []float32
			if err := json.Unmarshal(data, &vector); err == nil && len(vector) == p.inner.Dimensions() {
				p.metrics.IncrementCounter("embedding.cache.redis_hit", 1.0)
				p.local.Add(key, vector)
				return cloneVector(vector), nil
			}
		} else if err != redis.Nil {
			p.logger.Warn("Embedding cache read failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	p.metrics.IncrementCounter("embedding.cache.miss", 1.0)

	vector, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	p.local.Add(key, cloneVector(vector))

	if p.redis != nil {
		if data, err := json.Marshal(vector); err == nil {
			if err := p.redis.Set(ctx, key, data, p.ttl).Err(); err != nil {
				p.logger.Warn("Embedding cache write failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}

	return vector, nil
}

// Dimensions implements Provider.Dimensions
func (p *CachedProvider) Dimensions() int {
	return p.inner.Dimensions()
}

// Model implements Provider.Model
func (p *CachedProvider) Model() string {
	return p.inner.Model()
}

func (p *CachedProvider) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + p.inner.Model() + ":" + hex.EncodeToString(sum[:])
}

func cloneVector(vector []float32) []float32 {
	out := make([]float32, len(vector))
	copy(out, vector)
	return out
}
