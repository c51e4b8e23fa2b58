package persistence

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntry() *shared.SyncQueueEntry {
	id := uuid.New()
	return shared.NewSyncQueueEntry(shared.EntityOrder, id, shared.OperationCreate,
		json.RawMessage(`{"id":"`+id.String()+`"}`), "")
}

func TestSyncQueueRepository_FIFO(t *testing.T) {
	repo := NewGormSyncQueueRepository(setupTestDB(t))
	ctx := t.Context()

	entries := []*shared.SyncQueueEntry{newEntry(), newEntry(), newEntry()}
	for _, e := range entries {
		require.NoError(t, repo.Append(ctx, e))
	}
	assert.Less(t, entries[0].Seq, entries[1].Seq)
	assert.Less(t, entries[1].Seq, entries[2].Seq)

	pending, err := repo.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, e := range pending {
		assert.Equal(t, entries[i].ID, e.ID)
		assert.JSONEq(t, string(entries[i].Payload), string(e.Payload))
	}

	first, err := repo.ListPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, entries[0].ID, first[0].ID)

	require.NoError(t, repo.Delete(ctx, entries[0].ID))
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.FindByID(ctx, entries[0].ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSyncQueueRepository_RecordAttempt(t *testing.T) {
	repo := NewGormSyncQueueRepository(setupTestDB(t))
	ctx := t.Context()

	e := newEntry()
	require.NoError(t, repo.Append(ctx, e))
	e.RecordAttempt("connection refused")
	require.NoError(t, repo.RecordAttempt(ctx, e))

	got, err := repo.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "connection refused", got.LastError)
	assert.Equal(t, e.Seq, got.Seq)
}

func TestSyncQueueRepository_RebaseVersion(t *testing.T) {
	repo := NewGormSyncQueueRepository(setupTestDB(t))
	ctx := t.Context()

	entityID := uuid.New()
	oldToken, newToken := "2026-01-01T10:00:00Z", "2026-01-01T10:05:00Z"
	for _, base := range []string{oldToken, oldToken, "2025-12-31T00:00:00Z"} {
		require.NoError(t, repo.Append(ctx, shared.NewSyncQueueEntry(shared.EntityOrderStatus, entityID, shared.OperationUpdate, json.RawMessage(`{}`), base)))
	}
	require.NoError(t, repo.Append(ctx, newEntry()))

	moved, err := repo.RebaseVersion(ctx, entityID, oldToken, newToken)
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)

	n, err := repo.CountForEntity(ctx, entityID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	tableID := uuid.New()
	payload := json.RawMessage(`{"order_id":"` + entityID.String() + `","to_table_id":"` + tableID.String() + `"}`)
	require.NoError(t, repo.Append(ctx, shared.NewSyncQueueEntry(shared.EntityTableTransfer, uuid.New(), shared.OperationUpdate, payload, "")))
	n, err = repo.CountForEntity(ctx, tableID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "entries naming the entity in their payload count")

	pending, err := repo.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, newToken, pending[0].BaseVersion)
	assert.Equal(t, newToken, pending[1].BaseVersion)
	assert.Equal(t, "2025-12-31T00:00:00Z", pending[2].BaseVersion)
}

func TestSyncQueueRepository_Postgres(t *testing.T) {
	t.Run("append reads back the assigned seq", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "sync_queue"`)).
			WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(42))

		e := newEntry()
		require.NoError(t, NewGormSyncQueueRepository(db).Append(t.Context(), e))
		assert.Equal(t, int64(42), e.Seq)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rebase only touches entries on the old token", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		entityID := uuid.New()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "sync_queue" SET "base_version"=$1 WHERE entity_id = $2 AND base_version = $3`)).
			WithArgs("new", entityID.String(), "old").
			WillReturnResult(sqlmock.NewResult(0, 2))

		n, err := NewGormSyncQueueRepository(db).RebaseVersion(t.Context(), entityID, "old", "new")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("pending entries are read in seq order", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		rows := sqlmock.NewRows([]string{"seq", "id", "entity_type", "entity_id", "operation", "payload", "base_version", "attempts", "last_error"}).
			AddRow(1, uuid.NewString(), "ORDER", uuid.NewString(), "CREATE", `{}`, "", 0, "").
			AddRow(2, uuid.NewString(), "ORDER_STATUS", uuid.NewString(), "UPDATE", `{}`, "t", 1, "timeout")
		mock.ExpectQuery(`SELECT \* FROM "sync_queue" ORDER BY seq ASC`).WillReturnRows(rows)

		entries, err := NewGormSyncQueueRepository(db).ListPending(t.Context(), 0)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, int64(1), entries[0].Seq)
		assert.Equal(t, shared.EntityOrderStatus, entries[1].EntityType)
		assert.Equal(t, 1, entries[1].Attempts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeadLetterRepository(t *testing.T) {
	repo := NewGormDeadLetterRepository(setupTestDB(t))
	ctx := t.Context()

	e := newEntry()
	e.Seq = 7
	letter := shared.NewSyncDeadLetter(e, shared.FailureVersionConflict, "VERSION_CONFLICT", "modified elsewhere")
	require.NoError(t, repo.Save(ctx, letter))

	got, err := repo.FindByID(ctx, letter.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.Entry.ID)
	assert.Equal(t, int64(7), got.Entry.Seq)
	assert.Equal(t, shared.FailureVersionConflict, got.Kind)
	assert.Equal(t, "modified elsewhere", got.RemoteMessage)

	list, err := repo.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, letter.ID))
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
