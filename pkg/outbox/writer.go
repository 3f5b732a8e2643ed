package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/papshop-backend/pkg/db/models"
	"github.com/angelmondragon/papshop-backend/pkg/enums"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
)

// DomainEvent is a state change to announce once its transaction commits.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
}

func (e DomainEvent) check() error {
	switch {
	case !e.EventType.IsValid():
		return fmt.Errorf("outbox: unknown event type %q", e.EventType)
	case !e.AggregateType.IsValid():
		return fmt.Errorf("outbox: unknown aggregate type %q", e.AggregateType)
	case e.AggregateID == uuid.Nil:
		return errors.New("outbox: aggregate id required")
	}
	return nil
}

// Emitter is what the ledger, order engine and checkout write events through.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

// Writer is the Emitter backed by outbox_events.
type Writer struct {
	store *Store
	logg  *logger.Logger
}

func NewWriter(store *Store, logg *logger.Logger) *Writer {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Writer{store: store, logg: logg}
}

// Emit appends the event to tx, so it commits or rolls back with the stock
// or order change it describes.
func (w *Writer) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTx
	}
	if err := event.check(); err != nil {
		return err
	}
	body, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("outbox: encode %s: %w", event.EventType, err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	envelope := PayloadEnvelope{
		Version:    EnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: occurred,
		Actor:      event.Actor,
		Data:       body,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("outbox: encode envelope: %w", err)
	}

	row := &models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       raw,
	}
	if err := w.store.Append(tx, row); err != nil {
		return err
	}
	w.logg.Debug(w.logg.WithFields(ctx, map[string]any{
		"event_id":     envelope.EventID,
		"event_type":   string(event.EventType),
		"aggregate_id": event.AggregateID.String(),
	}), "outbox event staged")
	return nil
}
