package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/chatmimic/retrieval/pkg/observability"
)

// BreakerConfig configures the provider circuit breaker and the
// client-side rate limit applied before each provider call.
type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
	HalfOpenMax uint32        `mapstructure:"half_open_max"`
	RatePerSec  float64       `mapstructure:"rate_per_sec"`
	RateBurst   int           `mapstructure:"rate_burst"`
}

// DefaultBreakerConfig returns the breaker settings used when the
// config file leaves them unset
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
		HalfOpenMax: 2,
		RatePerSec:  50,
		RateBurst:   100,
	}
}

// GuardedProvider wraps a live provider with a circuit breaker and a
// rate limiter. It fails fast when the provider is unhealthy; it never
// retries a failed call.
type GuardedProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  observability.Logger
}

// NewGuardedProvider wraps the given provider
func NewGuardedProvider(inner Provider, cfg BreakerConfig, logger observability.Logger) *GuardedProvider {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	settings := gobreaker.Settings{
		Name:        "embedding-provider-" + inner.Model(),
		MaxRequests: cfg.HalfOpenMax,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Embedding provider circuit breaker state change", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	}

	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RateBurst)
	}

	return &GuardedProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: limiter,
		logger:  logger,
	}
}

// Embed implements Provider.Embed
func (p *GuardedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("provider rate limit wait: %w", err)
		}
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}

	return result.([]float32), nil
}

// Dimensions implements Provider.Dimensions
func (p *GuardedProvider) Dimensions() int {
	return p.inner.Dimensions()
}

// Model implements Provider.Model
func (p *GuardedProvider) Model() string {
	return p.inner.Model()
}
