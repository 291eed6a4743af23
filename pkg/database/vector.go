package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/chatmimic/retrieval/pkg/observability"
)

const (
	embeddingsTable = "embeddings"
	cosineIndexName = "embeddings_embedding_cosine_idx"
)

// VectorConfig contains vector-specific database configuration. The
// dimension is fixed at store creation; every stored and queried
// vector must match it exactly.
type VectorConfig struct {
	Dimensions int `mapstructure:"dimensions"`
	IndexLists int `mapstructure:"index_lists"`
}

// VectorDatabase verifies and, if needed, bootstraps the pgvector
// schema, and owns the offline reindex maintenance operation.
type VectorDatabase struct {
	db          *sqlx.DB
	logger      observability.Logger
	config      VectorConfig
	initialized bool
	lock        sync.Mutex
}

// NewVectorDatabase creates a new vector database wrapper
func NewVectorDatabase(db *sqlx.DB, cfg VectorConfig, logger observability.Logger) (*VectorDatabase, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 1536
	}
	if cfg.IndexLists <= 0 {
		cfg.IndexLists = 100
	}

	return &VectorDatabase{
		db:     db,
		logger: logger,
		config: cfg,
	}, nil
}

// Dimensions returns the fixed vector dimension of the store
func (vdb *VectorDatabase) Dimensions() int {
	return vdb.config.Dimensions
}

// Initialize ensures the pgvector extension, the embeddings table, and
// the cosine index exist. Normally the table comes from migrations;
// the bootstrap path covers fresh development databases.
func (vdb *VectorDatabase) Initialize(ctx context.Context) error {
	vdb.lock.Lock()
	defer vdb.lock.Unlock()

	if vdb.initialized {
		return nil
	}

	var extExists bool
	err := vdb.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_extension WHERE extname = 'vector'
		)
	`).Scan(&extExists)
	if err != nil {
		return fmt.Errorf("failed to check if pgvector extension exists: %w", err)
	}
	if !extExists {
		return fmt.Errorf("pgvector extension is not installed")
	}

	var tableExists bool
	err = vdb.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)
	`, embeddingsTable).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("failed to check if embeddings table exists: %w", err)
	}

	if !tableExists {
		vdb.logger.Warn("Embeddings table does not exist; migrations may need to be run", nil)

		tx, err := vdb.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		createTableSQL := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS embeddings (
				id BIGSERIAL PRIMARY KEY,
				owner_id TEXT NOT NULL,
				content TEXT NOT NULL,
				embedding vector(%d) NOT NULL,
				metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX IF NOT EXISTS idx_embeddings_owner_id
			ON embeddings(owner_id);

			CREATE INDEX IF NOT EXISTS idx_embeddings_metadata
			ON embeddings USING gin (metadata jsonb_path_ops);
		`, vdb.config.Dimensions)

		if _, err := tx.ExecContext(ctx, createTableSQL); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				vdb.logger.Error("Failed to roll back transaction", map[string]interface{}{
					"error": rbErr.Error(),
				})
			}
			return fmt.Errorf("failed to create embeddings table: %w", err)
		}

		createIndexSQL := fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s
			ON embeddings USING ivfflat (embedding vector_cosine_ops)
			WITH (lists = %d)
		`, cosineIndexName, vdb.config.IndexLists)

		if _, err := tx.ExecContext(ctx, createIndexSQL); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				vdb.logger.Error("Failed to roll back transaction", map[string]interface{}{
					"error": rbErr.Error(),
				})
			}
			return fmt.Errorf("failed to create cosine index: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		vdb.logger.Info("Created embeddings table and indices", map[string]interface{}{
			"dimensions": vdb.config.Dimensions,
		})
	}

	vdb.initialized = true
	vdb.logger.Info("Vector database initialized", nil)

	return nil
}

// Reindex rebuilds the approximate-nearest-neighbor index without
// blocking concurrent reads. Offline maintenance only; queries served
// during the rebuild may see slightly stale index contents.
func (vdb *VectorDatabase) Reindex(ctx context.Context) error {
	// REINDEX CONCURRENTLY cannot run inside a transaction
	_, err := vdb.db.ExecContext(ctx, fmt.Sprintf("REINDEX INDEX CONCURRENTLY %s", cosineIndexName))
	if err != nil {
		return fmt.Errorf("failed to reindex %s: %w", cosineIndexName, err)
	}

	vdb.logger.Info("Rebuilt cosine index", map[string]interface{}{
		"index": cosineIndexName,
	})

	return nil
}
