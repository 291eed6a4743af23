package database

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockVectorDB(t *testing.T, cfg VectorConfig) (*VectorDatabase, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	vdb, err := NewVectorDatabase(db, cfg, nil)
	require.NoError(t, err)
	return vdb, mock
}

func TestNewVectorDatabase(t *testing.T) {
	t.Run("requires connection", func(t *testing.T) {
		_, err := NewVectorDatabase(nil, VectorConfig{}, nil)
		assert.Error(t, err)
	})

	t.Run("applies dimension defaults", func(t *testing.T) {
		vdb, _ := newMockVectorDB(t, VectorConfig{})
		assert.Equal(t, 1536, vdb.Dimensions())
	})

	t.Run("keeps explicit dimension", func(t *testing.T) {
		vdb, _ := newMockVectorDB(t, VectorConfig{Dimensions: 768})
		assert.Equal(t, 768, vdb.Dimensions())
	})
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()

	extensionQuery := regexp.QuoteMeta("SELECT 1 FROM pg_extension WHERE extname = 'vector'")
	tableQuery := regexp.QuoteMeta("FROM information_schema.tables")

	t.Run("existing schema is left alone", func(t *testing.T) {
		vdb, mock := newMockVectorDB(t, VectorConfig{})

		mock.ExpectQuery(extensionQuery).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(tableQuery).
			WithArgs("embeddings").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		require.NoError(t, vdb.Initialize(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing extension fails", func(t *testing.T) {
		vdb, mock := newMockVectorDB(t, VectorConfig{})

		mock.ExpectQuery(extensionQuery).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := vdb.Initialize(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pgvector extension")
	})

	t.Run("missing table is bootstrapped in a transaction", func(t *testing.T) {
		vdb, mock := newMockVectorDB(t, VectorConfig{Dimensions: 768, IndexLists: 50})

		mock.ExpectQuery(extensionQuery).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(tableQuery).
			WithArgs("embeddings").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("embedding vector(768)")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("WITH (lists = 50)")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		require.NoError(t, vdb.Initialize(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second call is a no-op", func(t *testing.T) {
		vdb, mock := newMockVectorDB(t, VectorConfig{})

		mock.ExpectQuery(extensionQuery).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(tableQuery).
			WithArgs("embeddings").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		require.NoError(t, vdb.Initialize(ctx))
		require.NoError(t, vdb.Initialize(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReindex(t *testing.T) {
	ctx := context.Background()
	vdb, mock := newMockVectorDB(t, VectorConfig{})

	mock.ExpectExec(regexp.QuoteMeta("REINDEX INDEX CONCURRENTLY embeddings_embedding_cosine_idx")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, vdb.Reindex(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}
