package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/chatmimic/retrieval/pkg/models"
	"github.com/chatmimic/retrieval/pkg/observability"
)

// ErrNotFound is returned when a record does not exist within the
// caller's owner scope
var ErrNotFound = errors.New("embedding record not found")

// EmbeddingStore issues the owner-scoped SQL for embedding rows. Every
// scoped method requires a non-empty owner and includes the owner
// predicate in its statement; the Unscoped variants exist only for the
// explicit administrative path.
type EmbeddingStore struct {
	db      *sqlx.DB
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewEmbeddingStore creates a new embedding store
func NewEmbeddingStore(db *sqlx.DB, logger observability.Logger, metrics observability.MetricsClient) *EmbeddingStore {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	return &EmbeddingStore{
		db:      db,
		logger:  logger,
		metrics: metrics,
	}
}

// Insert persists a new embedding row in a single statement. Either the
// whole row commits or nothing is written.
func (s *EmbeddingStore) Insert(ctx context.Context, ownerID, content string, vector []float32, metadata map[string]interface{}) (*models.EmbeddingRecord, error) {
	if ownerID == "" {
		return nil, errors.New("owner ID cannot be empty")
	}

	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}

	record := &models.EmbeddingRecord{
		OwnerID:   ownerID,
		Content:   content,
		Embedding: vector,
		Metadata:  normalizeMetadata(metadata),
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO embeddings (owner_id, content, embedding, metadata)
		VALUES ($1, $2, $3::vector, $4::jsonb)
		RETURNING id, created_at, updated_at
	`, ownerID, content, formatVectorForPg(vector), metadataJSON).
		Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		s.metrics.IncrementCounter("store.insert.error", 1.0)
		return nil, fmt.Errorf("failed to insert embedding: %w", err)
	}

	s.metrics.IncrementCounter("store.insert.total", 1.0)

	return record, nil
}

// Update replaces content, embedding, and metadata of an owned record
// and advances updated_at. Returns ErrNotFound when the id does not
// exist within the owner's scope.
func (s *EmbeddingStore) Update(ctx context.Context, id int64, ownerID, content string, vector []float32, metadata map[string]interface{}) (*models.EmbeddingRecord, error) {
	if ownerID == "" {
		return nil, errors.New("owner ID cannot be empty")
	}

	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}

	record := &models.EmbeddingRecord{
		ID:        id,
		OwnerID:   ownerID,
		Content:   content,
		Embedding: vector,
		Metadata:  normalizeMetadata(metadata),
	}

	err = s.db.QueryRowContext(ctx, `
		UPDATE embeddings
		SET content = $3, embedding = $4::vector, metadata = $5::jsonb, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND owner_id = $2
		RETURNING created_at, updated_at
	`, id, ownerID, content, formatVectorForPg(vector), metadataJSON).
		Scan(&record.CreatedAt, &record.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		s.metrics.IncrementCounter("store.update.error", 1.0)
		return nil, fmt.Errorf("failed to update embedding: %w", err)
	}

	s.metrics.IncrementCounter("store.update.total", 1.0)

	return record, nil
}

// Get fetches a single owned record
func (s *EmbeddingStore) Get(ctx context.Context, ownerID string, id int64) (*models.EmbeddingRecord, error) {
	if ownerID == "" {
		return nil, errors.New("owner ID cannot be empty")
	}

	var (
		record       models.EmbeddingRecord
		embeddingStr string
		metadataJSON []byte
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, content, embedding::text, metadata, created_at, updated_at
		FROM embeddings
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID).Scan(
		&record.ID,
		&record.OwnerID,
		&record.Content,
		&embeddingStr,
		&metadataJSON,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}

	if record.Embedding, err = parseVectorFromPg(embeddingStr); err != nil {
		return nil, fmt.Errorf("failed to parse vector: %w", err)
	}
	if record.Metadata, err = unmarshalMetadata(metadataJSON); err != nil {
		return nil, err
	}

	return &record, nil
}

// Delete removes a single owned record. Returns ErrNotFound when no
// row matched.
func (s *EmbeddingStore) Delete(ctx context.Context, ownerID string, id int64) error {
	if ownerID == "" {
		return errors.New("owner ID cannot be empty")
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM embeddings WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteOwner removes every record belonging to the owner and reports
// the number of rows deleted
func (s *EmbeddingStore) DeleteOwner(ctx context.Context, ownerID string) (int64, error) {
	if ownerID == "" {
		return 0, errors.New("owner ID cannot be empty")
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM embeddings WHERE owner_id = $1
	`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete owner embeddings: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected, nil
}

// Search runs an owner-scoped similarity query
func (s *EmbeddingStore) Search(ctx context.Context, ownerID string, vector []float32, filter map[string]interface{}, threshold float64, limit int) ([]models.SearchResult, error) {
	if ownerID == "" {
		return nil, errors.New("owner ID cannot be empty")
	}

	return s.search(ctx, &ownerID, vector, filter, threshold, limit)
}

// SearchUnscoped runs a similarity query across all owners. Reachable
// only from the explicit administrative operation.
func (s *EmbeddingStore) SearchUnscoped(ctx context.Context, vector []float32, filter map[string]interface{}, threshold float64, limit int) ([]models.SearchResult, error) {
	return s.search(ctx, nil, vector, filter, threshold, limit)
}

func (s *EmbeddingStore) search(ctx context.Context, ownerID *string, vector []float32, filter map[string]interface{}, threshold float64, limit int) ([]models.SearchResult, error) {
	if len(vector) == 0 {
		return nil, errors.New("query vector cannot be empty")
	}

	args := []interface{}{formatVectorForPg(vector)}
	conditions := []string{}

	if ownerID != nil {
		args = append(args, *ownerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}

	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata filter: %w", err)
		}
		args = append(args, string(filterJSON))
		// containment: every filter key/value must be present and equal
		conditions = append(conditions, fmt.Sprintf("metadata @> $%d::jsonb", len(args)))
	}

	args = append(args, threshold)
	conditions = append(conditions, fmt.Sprintf("(1 - (embedding <=> $1::vector)) > $%d", len(args)))

	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, owner_id, content, metadata, created_at, updated_at,
		       (1 - (embedding <=> $1::vector))::float8 AS similarity
		FROM embeddings
		WHERE %s
		ORDER BY similarity DESC, created_at DESC
		LIMIT $%d
	`, strings.Join(conditions, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.metrics.IncrementCounter("store.search.error", 1.0)
		return nil, fmt.Errorf("failed to execute search query: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warn("Failed to close rows", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	var results []models.SearchResult
	for rows.Next() {
		var (
			result       models.SearchResult
			metadataJSON []byte
		)

		if err := rows.Scan(
			&result.Record.ID,
			&result.Record.OwnerID,
			&result.Record.Content,
			&metadataJSON,
			&result.Record.CreatedAt,
			&result.Record.UpdatedAt,
			&result.Similarity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}

		if result.Record.Metadata, err = unmarshalMetadata(metadataJSON); err != nil {
			return nil, err
		}

		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	s.metrics.IncrementCounter("store.search.total", 1.0)

	return results, nil
}

// CountOwner returns the number of rows belonging to an owner
func (s *EmbeddingStore) CountOwner(ctx context.Context, ownerID string) (int64, error) {
	if ownerID == "" {
		return 0, errors.New("owner ID cannot be empty")
	}

	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM embeddings WHERE owner_id = $1
	`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count owner embeddings: %w", err)
	}

	return count, nil
}

// Helper functions

// formatVectorForPg formats a vector in the pgvector text format [a,b,c]
func formatVectorForPg(vector []float32) string {
	elements := make([]string, len(vector))
	for i, v := range vector {
		elements[i] = fmt.Sprintf("%f", v)
	}
	return "[" + strings.Join(elements, ",") + "]"
}

// parseVectorFromPg parses a vector from the pgvector text format
func parseVectorFromPg(vectorStr string) ([]float32, error) {
	vectorStr = strings.Trim(vectorStr, "[]")
	if vectorStr == "" {
		return nil, nil
	}
	elements := strings.Split(vectorStr, ",")

	vector := make([]float32, len(elements))
	for i, elem := range elements {
		var val float64
		if _, err := fmt.Sscanf(strings.TrimSpace(elem), "%f", &val); err != nil {
			return nil, fmt.Errorf("failed to parse vector element %d: %w", i, err)
		}
		vector[i] = float32(val)
	}

	return vector, nil
}

func marshalMetadata(metadata map[string]interface{}) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMetadata(data []byte) (map[string]interface{}, error) {
	metadata := make(map[string]interface{})
	if len(data) == 0 {
		return metadata, nil
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata JSON: %w", err)
	}
	return metadata, nil
}

func normalizeMetadata(metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		return map[string]interface{}{}
	}
	return metadata
}
