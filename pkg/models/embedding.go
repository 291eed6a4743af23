// Package models defines the data types shared between the retrieval
// core, the storage layer, and the HTTP API.
package models

import (
	"time"
)

// EmbeddingRecord is a stored embedding row. IDs are assigned
// monotonically by the storage engine; OwnerID is immutable after
// creation and scopes every read and write.
type EmbeddingRecord struct {
	ID        int64                  `json:"id" db:"id"`
	OwnerID   string                 `json:"owner_id" db:"owner_id"`
	Content   string                 `json:"content" db:"content"`
	Embedding []float32              `json:"embedding,omitempty" db:"-"`
	Metadata  map[string]interface{} `json:"metadata" db:"-"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`
}

// IngestRequest is a request to embed and store one piece of content.
// Each call produces a new record; there is no dedup key.
type IngestRequest struct {
	OwnerID  string                 `json:"owner_id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// UpdateRequest re-embeds an existing record. The embedding is replaced
// and updated_at advances; the owner never changes.
type UpdateRequest struct {
	OwnerID  string                 `json:"owner_id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SearchRequest is a similarity query. Exactly one of QueryText or
// QueryVector must be set. Threshold defaults to 0.7 when nil (the
// commonly used pgvector cosine cutoff, configurable service-wide);
// Limit defaults to 10 and is clamped to 100.
type SearchRequest struct {
	OwnerID     string                 `json:"owner_id"`
	QueryText   string                 `json:"query_text,omitempty"`
	QueryVector []float32              `json:"query_vector,omitempty"`
	Filter      map[string]interface{} `json:"filter,omitempty"`
	Threshold   *float64               `json:"threshold,omitempty"`
	Limit       int                    `json:"limit,omitempty"`
}

// SearchResult pairs a matched record with its cosine similarity,
// computed as 1 - cosine_distance(query, candidate).
type SearchResult struct {
	Record     EmbeddingRecord `json:"record"`
	Similarity float64         `json:"similarity"`
}
