package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/chatmimic/retrieval/pkg/observability"
)

const (
	ctxKeyOwnerID   = "owner_id"
	ctxKeyAdmin     = "is_admin"
	ctxKeyRequestID = "request_id"
)

// RequestID assigns a request id to every request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// RequestLogger logs HTTP requests
func RequestLogger(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("Request handled", map[string]interface{}{
			"client_ip":  c.ClientIP(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"method":     c.Request.Method,
			"path":       path,
			"request_id": c.GetString(ctxKeyRequestID),
		})

		if len(c.Errors) > 0 {
			logger.Error("Request errors", map[string]interface{}{
				"errors":     c.Errors.String(),
				"request_id": c.GetString(ctxKeyRequestID),
			})
		}
	}
}

// jwtClaims are the bearer token claims accepted by AuthRequired
type jwtClaims struct {
	OwnerID string `json:"owner_id"`
	jwt.RegisteredClaims
}

// AuthRequired resolves the caller's credential to the owner it may
// act as. API keys map one-to-one to owners; the admin key marks the
// request administrative without binding an owner. Bearer tokens are
// verified against the configured HMAC secret and carry the owner in
// their owner_id claim.
func AuthRequired(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey != "" {
			if cfg.AdminAPIKey != "" && apiKey == cfg.AdminAPIKey {
				c.Set(ctxKeyAdmin, true)
				c.Next()
				return
			}
			if owner, ok := cfg.APIKeys[apiKey]; ok {
				c.Set(ctxKeyOwnerID, owner)
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		authHeader := c.GetHeader("Authorization")
		if cfg.JWTSecret != "" && strings.HasPrefix(authHeader, "Bearer ") {
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
			claims := &jwtClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(cfg.JWTSecret), nil
			})
			if err == nil && token.Valid && claims.OwnerID != "" {
				c.Set(ctxKeyOwnerID, claims.OwnerID)
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid credentials"})
	}
}

// AdminRequired allows only requests authenticated with the admin key
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ctxKeyAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "administrative credentials required"})
			return
		}
		c.Next()
	}
}

// rateLimiterStorage keeps one limiter per credential
type rateLimiterStorage struct {
	limiters map[string]*rate.Limiter
	config   RateLimitConfig
	mu       sync.Mutex
}

func newRateLimiterStorage(cfg RateLimitConfig) *rateLimiterStorage {
	return &rateLimiterStorage{
		limiters: make(map[string]*rate.Limiter),
		config:   cfg,
	}
}

func (s *rateLimiterStorage) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.config.PerSecond), s.config.Burst)
		s.limiters[key] = limiter
	}
	return limiter
}

// RateLimiter limits requests per caller credential, falling back to
// the client IP for unauthenticated requests
func RateLimiter(cfg RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	storage := newRateLimiterStorage(cfg)

	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			key = c.ClientIP()
		}

		if !storage.getLimiter(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}
