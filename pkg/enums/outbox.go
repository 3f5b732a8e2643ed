package enums

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregateProduct OutboxAggregateType = "product"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateProduct,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType names a domain event relayed through the outbox.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderCanceled      OutboxEventType = "order_canceled"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventStockImported      OutboxEventType = "stock_imported"
	EventStockExported      OutboxEventType = "stock_exported"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderCanceled,
	EventOrderStatusChanged,
	EventStockImported,
	EventStockExported,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}
