package syncqueue

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockQueueRepo struct {
	mock.Mock
	shared.SyncQueueRepository
}

func (m *mockQueueRepo) Append(ctx context.Context, e *shared.SyncQueueEntry) error {
	return m.Called(ctx, e).Error(0)
}

func TestQueue_EnqueuePersistsBeforeReturning(t *testing.T) {
	f := newFixture(t, false)
	id := uuid.New()

	e, err := f.queue.Enqueue(context.Background(), shared.EntityOrder, id, shared.OperationCreate, notePayload{ID: id, Note: "table 5"}, "")

	require.NoError(t, err)
	assert.Positive(t, e.Seq)
	stored, err := f.repo.FindByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OperationCreate, stored.Operation)
	assert.JSONEq(t, `{"id":"`+id.String()+`","note":"table 5"}`, string(stored.Payload))

	has, err := f.queue.HasPending(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, has)
	has, err = f.queue.HasPending(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, has)
}

func TestQueue_EnqueueRejectsInvalidPayload(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		name    string
		op      shared.Operation
		payload any
	}{
		{"missing required id", shared.OperationUpdate, notePayload{Note: "x"}},
		{"unknown operation", shared.Operation("PATCH"), notePayload{ID: uuid.New()}},
		{"unencodable payload", shared.OperationUpdate, map[string]any{"f": func() {}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.queue.Enqueue(context.Background(), shared.EntityOrder, uuid.New(), tt.op, tt.payload, "")
			assert.ErrorIs(t, err, shared.ErrInvalidInput)
		})
	}
	assert.Zero(t, f.pending(t))
}

func TestQueue_EnqueueFailsWhenAppendFails(t *testing.T) {
	repo := &mockQueueRepo{}
	repo.On("Append", mock.Anything, mock.Anything).Return(errors.New("database is locked"))
	q := NewQueue(repo, zap.NewNop())

	_, err := q.Enqueue(context.Background(), shared.EntityOrder, uuid.New(), shared.OperationCreate, notePayload{ID: uuid.New()}, "")

	assert.ErrorIs(t, err, shared.ErrPersistFailed)
	assert.Contains(t, err.Error(), "database is locked")
	repo.AssertExpectations(t)
}

func TestQueue_Decode(t *testing.T) {
	q := NewQueue(&mockQueueRepo{}, nil)
	id := uuid.New()

	var p notePayload
	err := q.Decode(&shared.SyncQueueEntry{Payload: []byte(`{"id":"` + id.String() + `"}`)}, &p)
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)

	err = q.Decode(&shared.SyncQueueEntry{Payload: []byte(`{"id":`)}, &p)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	err = q.Decode(&shared.SyncQueueEntry{Payload: []byte(`{"note":"no id"}`)}, &notePayload{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	assert.Equal(t, shared.FailureValidation, shared.ClassifyFailure(err))
}
