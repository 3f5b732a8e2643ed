package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/papshop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/papshop-backend/pkg/db/models"
	"github.com/angelmondragon/papshop-backend/pkg/enums"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
)

func orderEvent(id uuid.UUID, data any) DomainEvent {
	return DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   id,
		Data:          data,
	}
}

func TestEmitStagesEnvelopeInCallerTx(t *testing.T) {
	conn := dbtest.Open(t)
	w := NewWriter(NewStore(conn), logger.Nop())
	orderID, adminID := uuid.New(), uuid.New()

	event := orderEvent(orderID, map[string]string{"order_id": orderID.String()})
	event.Actor = &ActorRef{UserID: adminID, Role: enums.RoleAdmin}
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return w.Emit(context.Background(), tx, event)
	}))

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, orderID, row.AggregateID)
	assert.Nil(t, row.PublishedAt)
	assert.Zero(t, row.AttemptCount)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, EnvelopeVersion, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, enums.RoleAdmin, envelope.Actor.Role)
	assert.JSONEq(t, `{"order_id":"`+orderID.String()+`"}`, string(envelope.Data))
	assert.Contains(t, string(row.Payload), `"event_id"`)
}

func TestEmitDisappearsWhenTxRollsBack(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewStore(conn)
	w := NewWriter(store, nil)

	stockFailed := errors.New("insufficient stock")
	err := conn.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, w.Emit(context.Background(), tx, orderEvent(uuid.New(), map[string]int{"lines": 2})))
		return stockFailed
	})
	require.ErrorIs(t, err, stockFailed)

	backlog, err := store.Backlog(nil)
	require.NoError(t, err)
	assert.Zero(t, backlog)
}

func TestEmitRejectsMalformedEvents(t *testing.T) {
	conn := dbtest.Open(t)
	w := NewWriter(NewStore(conn), nil)
	ctx := context.Background()

	assert.Error(t, w.Emit(ctx, nil, orderEvent(uuid.New(), nil)))
	assert.Error(t, w.Emit(ctx, conn, orderEvent(uuid.Nil, nil)))
	bad := orderEvent(uuid.New(), nil)
	bad.EventType = "order_refunded"
	assert.Error(t, w.Emit(ctx, conn, bad))
	bad = orderEvent(uuid.New(), nil)
	bad.AggregateType = "customer"
	assert.Error(t, w.Emit(ctx, conn, bad))
}

func TestStoreDeliveryBookkeeping(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewStore(conn)
	w := NewWriter(store, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Emit(ctx, conn, orderEvent(uuid.New(), map[string]int{"n": i})))
	}

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		rows, err := store.Claim(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		require.NoError(t, store.MarkDelivered(tx, rows[0].ID))
		require.NoError(t, store.RecordFailure(tx, rows[1].ID, errors.New("deadline exceeded")))
		return store.Park(tx, rows[2].ID, errors.New("unroutable"), 3)
	}))

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		rows, err := store.Claim(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 1, "delivered and parked rows are not claimed again")
		assert.Equal(t, 1, rows[0].AttemptCount)
		require.NotNil(t, rows[0].LastError)
		assert.Equal(t, "deadline exceeded", *rows[0].LastError)
		return nil
	}))

	backlog, err := store.Backlog(nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, backlog)
}

func TestPruneOnlyDropsOldDeliveredRows(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewStore(conn)
	old := time.Now().UTC().Add(-72 * time.Hour)
	fresh := time.Now().UTC()
	for _, delivered := range []*time.Time{&old, &fresh, nil} {
		row := models.OutboxEvent{
			EventType:     enums.EventStockImported,
			AggregateType: enums.AggregateProduct,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			PublishedAt:   delivered,
		}
		require.NoError(t, conn.Create(&row).Error)
	}

	n, err := store.Prune(context.Background(), nil, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var left int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&left).Error)
	assert.EqualValues(t, 2, left)
}

func TestClipBoundsStoredErrors(t *testing.T) {
	long := make([]byte, lastErrorLimit+50)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, clip(errors.New(string(long))), lastErrorLimit)
	assert.Empty(t, clip(nil))
}
