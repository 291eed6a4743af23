// Package retrieval implements the per-tenant embedding store core:
// ingest, similarity query, and the tenant isolation policy that scopes
// every storage access to exactly one owner. The explicit unscoped
// administrative query is a distinct operation, never reachable from
// the scoped path.
package retrieval

import (
	"context"
	"errors"
	"time"

	"github.com/chatmimic/retrieval/pkg/database"
	"github.com/chatmimic/retrieval/pkg/embedding"
	"github.com/chatmimic/retrieval/pkg/models"
	"github.com/chatmimic/retrieval/pkg/observability"
)

// Store is the storage contract the service depends on
type Store interface {
	Insert(ctx context.Context, ownerID, content string, vector []float32, metadata map[string]interface{}) (*models.EmbeddingRecord, error)
	Update(ctx context.Context, id int64, ownerID, content string, vector []float32, metadata map[string]interface{}) (*models.EmbeddingRecord, error)
	Get(ctx context.Context, ownerID string, id int64) (*models.EmbeddingRecord, error)
	Delete(ctx context.Context, ownerID string, id int64) error
	DeleteOwner(ctx context.Context, ownerID string) (int64, error)
	Search(ctx context.Context, ownerID string, vector []float32, filter map[string]interface{}, threshold float64, limit int) ([]models.SearchResult, error)
	SearchUnscoped(ctx context.Context, vector []float32, filter map[string]interface{}, threshold float64, limit int) ([]models.SearchResult, error)
}

// Config holds the service-level policy knobs
type Config struct {
	// MaxContentLength bounds ingested content, in bytes. Requests
	// above the bound are rejected before the provider is called.
	MaxContentLength int `mapstructure:"max_content_length"`
	// DefaultThreshold applies when a search request carries none.
	// 0.7 is the documented service default.
	DefaultThreshold float64 `mapstructure:"default_threshold"`
	DefaultLimit     int     `mapstructure:"default_limit"`
	MaxLimit         int     `mapstructure:"max_limit"`
	// OperationTimeout is the per-call budget covering both the
	// provider call and the storage access
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// DefaultConfig returns the policy defaults
func DefaultConfig() Config {
	return Config{
		MaxContentLength: 8192,
		DefaultThreshold: 0.7,
		DefaultLimit:     10,
		MaxLimit:         100,
		OperationTimeout: 30 * time.Second,
	}
}

// Service is the retrieval core. It holds no mutable state between
// calls; all state lives in the storage engine.
type Service struct {
	store      Store
	provider   embedding.Provider
	dimensions int
	config     Config
	logger     observability.Logger
	metrics    observability.MetricsClient
}

// NewService creates the retrieval core. The provider's output
// dimension must match the store's fixed dimension; the mismatch is
// caught here rather than on the first ingest.
func NewService(store Store, provider embedding.Provider, dimensions int, cfg Config, logger observability.Logger, metrics observability.MetricsClient) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if provider == nil {
		return nil, errors.New("embedding provider is required")
	}
	if dimensions <= 0 {
		return nil, errors.New("dimensions must be positive")
	}
	if provider.Dimensions() != dimensions {
		return nil, NewDimensionMismatchError(dimensions, provider.Dimensions())
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = 8192
	}
	if cfg.DefaultThreshold <= 0 || cfg.DefaultThreshold >= 1 {
		cfg.DefaultThreshold = 0.7
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 30 * time.Second
	}

	return &Service{
		store:      store,
		provider:   provider,
		dimensions: dimensions,
		config:     cfg,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// Ingest embeds and persists one piece of content for an owner. The
// write is atomic: on any failure no row is persisted. Each call
// produces a new record; callers wanting upsert semantics use Update.
func (s *Service) Ingest(ctx context.Context, req models.IngestRequest) (*models.EmbeddingRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "retrieval.ingest")
	defer span.End()
	span.SetAttribute("owner_id", req.OwnerID)
	span.SetAttribute("content_size", len(req.Content))

	if err := s.validateOwner(req.OwnerID); err != nil {
		return nil, err
	}
	if err := s.validateContent(req.Content); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		s.metrics.RecordHistogram("retrieval.ingest.duration", time.Since(start).Seconds(), nil)
	}()

	vector, err := s.embed(ctx, req.Content)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	record, err := s.store.Insert(ctx, req.OwnerID, req.Content, vector, req.Metadata)
	if err != nil {
		span.RecordError(err)
		s.metrics.IncrementCounter("retrieval.ingest.error", 1.0)
		return nil, s.wrapStorageError("ingest", err)
	}

	s.logger.Debug("Ingested embedding", map[string]interface{}{
		"id":       record.ID,
		"owner_id": record.OwnerID,
	})
	s.metrics.IncrementCounter("retrieval.ingest.total", 1.0)

	return record, nil
}

// Update re-embeds an existing owned record, replacing its content,
// metadata, and vector, and advancing updated_at
func (s *Service) Update(ctx context.Context, id int64, req models.UpdateRequest) (*models.EmbeddingRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "retrieval.update")
	defer span.End()
	span.SetAttribute("id", id)
	span.SetAttribute("owner_id", req.OwnerID)

	if err := s.validateOwner(req.OwnerID); err != nil {
		return nil, err
	}
	if err := s.validateContent(req.Content); err != nil {
		return nil, err
	}

	vector, err := s.embed(ctx, req.Content)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	record, err := s.store.Update(ctx, id, req.OwnerID, req.Content, vector, req.Metadata)
	if errors.Is(err, database.ErrNotFound) {
		return nil, NewNotFoundError(id)
	}
	if err != nil {
		span.RecordError(err)
		return nil, s.wrapStorageError("update", err)
	}

	return record, nil
}

// Get fetches one owned record
func (s *Service) Get(ctx context.Context, ownerID string, id int64) (*models.EmbeddingRecord, error) {
	if err := s.validateOwner(ownerID); err != nil {
		return nil, err
	}

	record, err := s.store.Get(ctx, ownerID, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, NewNotFoundError(id)
	}
	if err != nil {
		return nil, s.wrapStorageError("get", err)
	}

	return record, nil
}

// Delete removes one owned record
func (s *Service) Delete(ctx context.Context, ownerID string, id int64) error {
	if err := s.validateOwner(ownerID); err != nil {
		return err
	}

	err := s.store.Delete(ctx, ownerID, id)
	if errors.Is(err, database.ErrNotFound) {
		return NewNotFoundError(id)
	}
	if err != nil {
		return s.wrapStorageError("delete", err)
	}

	return nil
}

// DeleteOwner removes every record belonging to the owner and reports
// how many rows were deleted
func (s *Service) DeleteOwner(ctx context.Context, ownerID string) (int64, error) {
	if err := s.validateOwner(ownerID); err != nil {
		return 0, err
	}

	deleted, err := s.store.DeleteOwner(ctx, ownerID)
	if err != nil {
		return 0, s.wrapStorageError("delete_owner", err)
	}

	s.logger.Info("Deleted owner embeddings", map[string]interface{}{
		"owner_id": ownerID,
		"deleted":  deleted,
	})

	return deleted, nil
}

// Query runs an owner-scoped similarity search. An empty result list
// is success, not an error.
func (s *Service) Query(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error) {
	if err := s.validateOwner(req.OwnerID); err != nil {
		return nil, err
	}

	return s.query(ctx, &req.OwnerID, req)
}

// QueryAll runs a similarity search across all owners. This is the
// explicit administrative operation; the scoped path cannot reach it.
func (s *Service) QueryAll(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error) {
	return s.query(ctx, nil, req)
}

func (s *Service) query(ctx context.Context, ownerID *string, req models.SearchRequest) ([]models.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "retrieval.query")
	defer span.End()
	span.SetAttribute("scoped", ownerID != nil)

	hasText := req.QueryText != ""
	hasVector := len(req.QueryVector) > 0
	if hasText == hasVector {
		return nil, NewValidationError("exactly one of query_text or query_vector must be supplied")
	}

	vector := req.QueryVector
	if hasText {
		var err error
		if vector, err = s.embed(ctx, req.QueryText); err != nil {
			span.RecordError(err)
			return nil, err
		}
	} else if len(vector) != s.dimensions {
		return nil, NewDimensionMismatchError(s.dimensions, len(vector))
	}

	threshold := s.config.DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
		if threshold < -1 || threshold >= 1 {
			return nil, NewValidationError("threshold must be in [-1, 1), got %v", threshold)
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}

	start := time.Now()
	defer func() {
		s.metrics.RecordHistogram("retrieval.query.duration", time.Since(start).Seconds(), nil)
	}()

	var results []models.SearchResult
	var err error
	if ownerID != nil {
		results, err = s.store.Search(ctx, *ownerID, vector, req.Filter, threshold, limit)
	} else {
		results, err = s.store.SearchUnscoped(ctx, vector, req.Filter, threshold, limit)
	}
	if err != nil {
		span.RecordError(err)
		s.metrics.IncrementCounter("retrieval.query.error", 1.0)
		return nil, s.wrapStorageError("query", err)
	}

	s.metrics.IncrementCounter("retrieval.query.total", 1.0)
	span.SetAttribute("result_count", len(results))

	if results == nil {
		results = []models.SearchResult{}
	}

	return results, nil
}

// embed calls the provider and maps its failures into the taxonomy
func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	vector, err := s.provider.Embed(ctx, text)
	if err != nil {
		s.metrics.IncrementCounter("retrieval.provider.error", 1.0)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewTimeoutError("embedding generation", err)
		}
		return nil, NewProviderError(err)
	}

	if len(vector) != s.dimensions {
		return nil, NewDimensionMismatchError(s.dimensions, len(vector))
	}

	return vector, nil
}

func (s *Service) validateOwner(ownerID string) error {
	if ownerID == "" {
		return NewValidationError("owner ID cannot be empty")
	}
	return nil
}

func (s *Service) validateContent(content string) error {
	if content == "" {
		return NewValidationError("content cannot be empty")
	}
	if len(content) > s.config.MaxContentLength {
		return NewValidationError("content length %d exceeds maximum of %d bytes", len(content), s.config.MaxContentLength)
	}
	return nil
}

func (s *Service) wrapStorageError(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(operation, err)
	}
	return NewStorageError(err)
}
