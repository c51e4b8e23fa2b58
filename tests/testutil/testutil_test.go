package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/erp/pos/internal/domain/order"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/domain/table"
	"github.com/erp/pos/internal/infrastructure/persistence"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewTestDB(t *testing.T) {
	db := NewTestDB(t)
	store := persistence.NewTableStore(db, zap.NewNop())
	ctx := context.Background()

	tbl := NewSyncedTable("T1", Version(1))
	require.NoError(t, store.Put(ctx, tbl))

	got, err := store.Get(ctx, tbl.ID)
	require.NoError(t, err)
	assert.Equal(t, "T1", got.Name)
	assert.Equal(t, table.StatusAvailable, got.Status)
	assert.Equal(t, shared.SyncStatusSynced, got.SyncStatus)
}

func TestNewTestDB_Isolated(t *testing.T) {
	ctx := context.Background()
	first := persistence.NewTableStore(NewTestDB(t), zap.NewNop())
	require.NoError(t, first.Put(ctx, NewSyncedTable("T1", Version(1))))

	second := persistence.NewTableStore(NewTestDB(t), zap.NewNop())
	all, err := second.Query(ctx, shared.All[*table.Table])
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestNewMockDB(t *testing.T) {
	mockDB := NewMockDB(t)
	defer mockDB.Close()

	assert.NotNil(t, mockDB.DB)
	assert.NotNil(t, mockDB.Mock)
	assert.NotNil(t, mockDB.SqlDB)
}

func TestMockDB_ExpectationsWereMet(t *testing.T) {
	mockDB := NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectationsWereMet(t)
}

func TestNewTestContext(t *testing.T) {
	tc := NewTestContext(t)

	assert.NotNil(t, tc.Context)
	assert.NotNil(t, tc.Recorder)
	assert.NotNil(t, tc.Engine)
	assert.NotNil(t, tc.Context.Request)
}

func TestTestContext_SetHeader(t *testing.T) {
	tc := NewTestContext(t)

	tc.SetHeader("X-Terminal-ID", "till-1")

	assert.Equal(t, "till-1", tc.Context.Request.Header.Get("X-Terminal-ID"))
}

func TestTestContext_ResponseCode(t *testing.T) {
	tc := NewTestContext(t)
	tc.Context.JSON(http.StatusCreated, gin.H{"ok": true})

	assert.Equal(t, http.StatusCreated, tc.ResponseCode())
	assert.JSONEq(t, `{"ok":true}`, string(tc.ResponseBody()))
}

func TestNewTestUUID(t *testing.T) {
	id1 := NewTestUUID("seed1")
	id2 := NewTestUUID("seed1")
	id3 := NewTestUUID("seed2")

	assert.Equal(t, id1, id2, "Same seed should produce same UUID")
	assert.NotEqual(t, id1, id3, "Different seeds should produce different UUIDs")
	assert.NotEqual(t, uuid.Nil, TestBranchID())
}

func TestVersion(t *testing.T) {
	assert.True(t, Version(2).After(Version(1)))
	assert.Equal(t, time.UTC, Version(0).Location())
}

func TestItems(t *testing.T) {
	items := Items("burger", 2, 50, "cola", 1, 40)

	require.Len(t, items, 2)
	assert.Equal(t, "cart-burger", items[0].CartID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.True(t, decimal.NewFromInt(100).Equal(items[0].Amount()))

	o, err := order.NewOrder(order.TypeTakeaway, TestBranchID(), nil, items)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(140).Equal(o.Total))
}

func TestAssertEventually(t *testing.T) {
	done := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(done)
	}()

	AssertEventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestAssertNever(t *testing.T) {
	AssertNever(t, func() bool { return false }, 30*time.Millisecond, 10*time.Millisecond)
}

func TestDoJSON(t *testing.T) {
	engine := gin.New()
	engine.POST("/echo", func(c *gin.Context) {
		var body map[string]any
		_ = c.ShouldBindJSON(&body)
		c.JSON(http.StatusOK, gin.H{"success": true, "data": body})
	})
	engine.GET("/fail", func(c *gin.Context) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": gin.H{"code": "VERSION_CONFLICT", "message": "x"}})
	})

	w := DoJSON(t, engine, http.MethodPost, "/echo", map[string]any{"name": "T5"})
	data := DataAs[map[string]any](t, w)
	assert.Equal(t, "T5", data["name"])

	w = DoJSON(t, engine, http.MethodGet, "/fail", nil)
	AssertErrorResponse(t, w, http.StatusConflict, "VERSION_CONFLICT")
}
