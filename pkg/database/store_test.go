package database

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*EmbeddingStore, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	return NewEmbeddingStore(db, nil, nil), mock
}

func TestInsert(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("returns assigned id and timestamps", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO embeddings")).
			WithArgs("tenant-a", "hello", "[1.000000,0.000000]", `{"source":"faq"}`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow(int64(7), now, now))

		record, err := store.Insert(ctx, "tenant-a", "hello", []float32{1, 0}, map[string]interface{}{"source": "faq"})
		require.NoError(t, err)
		assert.Equal(t, int64(7), record.ID)
		assert.Equal(t, "tenant-a", record.OwnerID)
		assert.Equal(t, now, record.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil metadata stored as empty object", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO embeddings")).
			WithArgs("tenant-a", "hello", "[1.000000]", "{}").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow(int64(1), now, now))

		record, err := store.Insert(ctx, "tenant-a", "hello", []float32{1}, nil)
		require.NoError(t, err)
		assert.NotNil(t, record.Metadata)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects empty owner without touching the database", func(t *testing.T) {
		store, mock := newMockStore(t)

		_, err := store.Insert(ctx, "", "hello", []float32{1}, nil)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("propagates database errors", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO embeddings")).
			WillReturnError(errors.New("pq: connection refused"))

		_, err := store.Insert(ctx, "tenant-a", "hello", []float32{1}, nil)
		assert.Error(t, err)
	})
}

func TestUpdateStore(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("updates owned row", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE embeddings")).
			WithArgs(int64(7), "tenant-a", "new", "[0.500000]", "{}").
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
				AddRow(now.Add(-time.Hour), now))

		record, err := store.Update(ctx, 7, "tenant-a", "new", []float32{0.5}, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(7), record.ID)
		assert.Equal(t, now, record.UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row maps to ErrNotFound", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE embeddings")).
			WillReturnError(sql.ErrNoRows)

		_, err := store.Update(ctx, 404, "tenant-a", "new", []float32{0.5}, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestGetStore(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("parses vector and metadata", func(t *testing.T) {
		store, mock := newMockStore(t)

		rows := sqlmock.NewRows([]string{"id", "owner_id", "content", "embedding", "metadata", "created_at", "updated_at"}).
			AddRow(int64(3), "tenant-a", "hello", "[0.1,0.2,0.3]", []byte(`{"source":"faq"}`), now, now)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner_id, content, embedding::text, metadata, created_at, updated_at")).
			WithArgs(int64(3), "tenant-a").
			WillReturnRows(rows)

		record, err := store.Get(ctx, "tenant-a", 3)
		require.NoError(t, err)
		assert.Equal(t, int64(3), record.ID)
		require.Len(t, record.Embedding, 3)
		assert.InDelta(t, 0.2, record.Embedding[1], 1e-6)
		assert.Equal(t, "faq", record.Metadata["source"])
	})

	t.Run("missing row maps to ErrNotFound", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner_id, content")).
			WillReturnError(sql.ErrNoRows)

		_, err := store.Get(ctx, "tenant-a", 404)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteStore(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes owned row", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM embeddings WHERE id = $1 AND owner_id = $2")).
			WithArgs(int64(7), "tenant-a").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.Delete(ctx, "tenant-a", 7))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows affected maps to ErrNotFound", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM embeddings WHERE id = $1 AND owner_id = $2")).
			WithArgs(int64(7), "tenant-b").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.Delete(ctx, "tenant-b", 7), ErrNotFound)
	})
}

func TestDeleteOwnerStore(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM embeddings WHERE owner_id = $1")).
		WithArgs("tenant-a").
		WillReturnResult(sqlmock.NewResult(0, 5))

	deleted, err := store.DeleteOwner(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)
}

func TestSearchStore(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	searchRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "owner_id", "content", "metadata", "created_at", "updated_at", "similarity"}).
			AddRow(int64(1), "tenant-a", "best match", []byte(`{}`), now, now, 0.98).
			AddRow(int64(2), "tenant-a", "runner up", []byte(`{"source":"faq"}`), now, now, 0.81)
	}

	t.Run("scoped search includes owner predicate", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(regexp.QuoteMeta("owner_id = $2")).
			WithArgs("[1.000000,0.000000]", "tenant-a", 0.7, 10).
			WillReturnRows(searchRows())

		results, err := store.Search(ctx, "tenant-a", []float32{1, 0}, nil, 0.7, 10)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "best match", results[0].Record.Content)
		assert.InDelta(t, 0.98, results[0].Similarity, 1e-9)
		assert.Equal(t, "faq", results[1].Record.Metadata["source"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("metadata filter uses jsonb containment", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(regexp.QuoteMeta("metadata @> $3::jsonb")).
			WithArgs("[1.000000]", "tenant-a", `{"source":"faq"}`, 0.7, 10).
			WillReturnRows(searchRows())

		_, err := store.Search(ctx, "tenant-a", []float32{1}, map[string]interface{}{"source": "faq"}, 0.7, 10)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unscoped search has no owner predicate", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(regexp.QuoteMeta("(1 - (embedding <=> $1::vector)) > $2")).
			WithArgs("[1.000000]", 0.7, 10).
			WillReturnRows(searchRows())

		_, err := store.SearchUnscoped(ctx, []float32{1}, nil, 0.7, 10)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("scoped search rejects empty owner", func(t *testing.T) {
		store, mock := newMockStore(t)

		_, err := store.Search(ctx, "", []float32{1}, nil, 0.7, 10)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects empty vector", func(t *testing.T) {
		store, _ := newMockStore(t)

		_, err := store.Search(ctx, "tenant-a", nil, nil, 0.7, 10)
		assert.Error(t, err)
	})

	t.Run("no rows yields empty result", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(regexp.QuoteMeta("FROM embeddings")).
			WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "content", "metadata", "created_at", "updated_at", "similarity"}))

		results, err := store.Search(ctx, "tenant-a", []float32{1}, nil, 0.7, 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestCountOwner(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM embeddings WHERE owner_id = $1")).
		WithArgs("tenant-a").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))

	count, err := store.CountOwner(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(12), count)
}

func TestVectorFormat(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		in := []float32{0.25, -1, 0.000125}
		out, err := parseVectorFromPg(formatVectorForPg(in))
		require.NoError(t, err)
		require.Len(t, out, len(in))
		for i := range in {
			assert.InDelta(t, in[i], out[i], 1e-5)
		}
	})

	t.Run("empty vector", func(t *testing.T) {
		assert.Equal(t, "[]", formatVectorForPg(nil))
		out, err := parseVectorFromPg("[]")
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("malformed element", func(t *testing.T) {
		_, err := parseVectorFromPg("[0.1,abc]")
		assert.Error(t, err)
	})
}
