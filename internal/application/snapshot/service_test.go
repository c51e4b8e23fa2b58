package snapshot

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/domain/snapshot"
	"github.com/erp/pos/internal/infrastructure/persistence"
	"github.com/erp/pos/tests/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) FetchSnapshot(ctx context.Context, branchID uuid.UUID, kind snapshot.Kind) (*snapshot.Snapshot, error) {
	args := m.Called(ctx, branchID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*snapshot.Snapshot), args.Error(1)
}

type staticOnline bool

func (o staticOnline) IsOnline() bool { return bool(o) }

func doc(kind snapshot.Kind, body string, minute int) *snapshot.Snapshot {
	return snapshot.New(testutil.TestBranchID(), kind, json.RawMessage(body), testutil.Version(minute))
}

func TestService_RefreshAndGet(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewSnapshotStore(testutil.NewTestDB(t), zap.NewNop())
	client := new(mockRemote)
	svc := NewService(store, client, staticOnline(true), testutil.TestBranchID(), zap.NewNop())

	branch := testutil.TestBranchID()
	client.On("FetchSnapshot", mock.Anything, branch, snapshot.KindMenu).Return(doc(snapshot.KindMenu, `{"items":[{"name":"Pasta"}]}`, 1), nil).Once()
	client.On("FetchSnapshot", mock.Anything, branch, snapshot.KindInventory).Return(doc(snapshot.KindInventory, `{"stock":{}}`, 1), nil).Once()
	client.On("FetchSnapshot", mock.Anything, branch, snapshot.KindSettings).Return(doc(snapshot.KindSettings, `{"currency":"EUR"}`, 1), nil).Once()

	require.NoError(t, svc.Refresh(ctx))

	menu, err := svc.Get(ctx, snapshot.KindMenu)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[{"name":"Pasta"}]}`, string(menu.Document))

	// a second refresh overwrites the cached copy
	client.On("FetchSnapshot", mock.Anything, branch, snapshot.KindMenu).Return(doc(snapshot.KindMenu, `{"items":[]}`, 2), nil).Once()
	client.On("FetchSnapshot", mock.Anything, branch, snapshot.KindInventory).Return(nil, &shared.RemoteError{Kind: shared.FailureTransient, StatusCode: 502}).Once()
	client.On("FetchSnapshot", mock.Anything, branch, snapshot.KindSettings).Return(doc(snapshot.KindSettings, `{"currency":"EUR"}`, 2), nil).Once()

	assert.Error(t, svc.Refresh(ctx))

	menu, err = svc.Get(ctx, snapshot.KindMenu)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(menu.Document))

	inventory, err := svc.Get(ctx, snapshot.KindInventory)
	require.NoError(t, err)
	assert.JSONEq(t, `{"stock":{}}`, string(inventory.Document), "failed fetch keeps the previous copy")
	client.AssertExpectations(t)
}

func TestService_RefreshOffline(t *testing.T) {
	store := persistence.NewSnapshotStore(testutil.NewTestDB(t), zap.NewNop())
	client := new(mockRemote)
	svc := NewService(store, client, staticOnline(false), testutil.TestBranchID(), zap.NewNop())

	assert.ErrorIs(t, svc.Refresh(context.Background()), shared.ErrOffline)
	client.AssertNotCalled(t, "FetchSnapshot", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Get(t *testing.T) {
	store := persistence.NewSnapshotStore(testutil.NewTestDB(t), zap.NewNop())
	svc := NewService(store, new(mockRemote), staticOnline(true), testutil.TestBranchID(), zap.NewNop())

	_, err := svc.Get(context.Background(), "recipes")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.Get(context.Background(), snapshot.KindSettings)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
