// Package routes decides where each outbox row is published. Order events go
// to the orders topic and stock events to the inventory topic; the aggregate
// id becomes the Pub/Sub ordering key so consumers see one order's (or one
// product's) history in sequence.
package routes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/papshop-backend/pkg/config"
	"github.com/angelmondragon/papshop-backend/pkg/db/models"
	"github.com/angelmondragon/papshop-backend/pkg/enums"
	"github.com/angelmondragon/papshop-backend/pkg/outbox"
	"github.com/angelmondragon/papshop-backend/pkg/outbox/payloads"
)

// ErrUnroutable marks rows that can never be delivered, whatever the retry.
var ErrUnroutable = errors.New("outbox row is unroutable")

func unroutable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnroutable, fmt.Sprintf(format, args...))
}

// Delivery is a decoded row ready for Pub/Sub.
type Delivery struct {
	Topic       string
	OrderingKey string
	Envelope    outbox.PayloadEnvelope
	Body        any
}

type decoder func(json.RawMessage) (any, error)

func decodeInto[T any](raw json.RawMessage) (any, error) {
	var body T
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// Table holds the aggregate to topic map and the body decoder per event.
type Table struct {
	topics   map[enums.OutboxAggregateType]string
	owners   map[enums.OutboxEventType]enums.OutboxAggregateType
	decoders map[enums.OutboxEventType]decoder
}

// NewTable wires the papshop events to the configured topics.
func NewTable(cfg config.PubSubConfig) (*Table, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	if cfg.InventoryTopic == "" {
		return nil, errors.New("inventory topic is required")
	}
	t := &Table{
		topics: map[enums.OutboxAggregateType]string{
			enums.AggregateOrder:   cfg.OrdersTopic,
			enums.AggregateProduct: cfg.InventoryTopic,
		},
		owners:   map[enums.OutboxEventType]enums.OutboxAggregateType{},
		decoders: map[enums.OutboxEventType]decoder{},
	}
	t.add(enums.EventOrderCreated, enums.AggregateOrder, decodeInto[payloads.OrderCreatedEvent])
	t.add(enums.EventOrderCanceled, enums.AggregateOrder, decodeInto[payloads.OrderCanceledEvent])
	t.add(enums.EventOrderStatusChanged, enums.AggregateOrder, decodeInto[payloads.OrderStatusChangedEvent])
	t.add(enums.EventStockImported, enums.AggregateProduct, decodeInto[payloads.StockImportedEvent])
	t.add(enums.EventStockExported, enums.AggregateProduct, decodeInto[payloads.StockExportedEvent])
	return t, nil
}

func (t *Table) add(event enums.OutboxEventType, owner enums.OutboxAggregateType, decode decoder) {
	t.owners[event] = owner
	t.decoders[event] = decode
}

// Topics returns every destination topic, sorted.
func (t *Table) Topics() []string {
	out := make([]string, 0, len(t.topics))
	for _, topic := range t.topics {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// Route checks a row against the table and decodes its body.
func (t *Table) Route(row models.OutboxEvent) (*Delivery, error) {
	owner, ok := t.owners[row.EventType]
	if !ok {
		return nil, unroutable("no route for event %q", row.EventType)
	}
	if row.AggregateType != owner {
		return nil, unroutable("%s belongs to %s aggregates, row says %s", row.EventType, owner, row.AggregateType)
	}
	if row.AggregateID == uuid.Nil {
		return nil, unroutable("%s row has no aggregate id", row.EventType)
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, unroutable("envelope: %v", err)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, unroutable("%s row carries no body", row.EventType)
	}
	body, err := t.decoders[row.EventType](envelope.Data)
	if err != nil {
		return nil, unroutable("%s body: %v", row.EventType, err)
	}

	return &Delivery{
		Topic:       t.topics[owner],
		OrderingKey: string(owner) + ":" + row.AggregateID.String(),
		Envelope:    envelope,
		Body:        body,
	}, nil
}
