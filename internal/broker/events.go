package broker

import (
	"context"
	"time"

	"ingest-service/internal/models"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeOrderAccepted  = "order.accepted"
	EventTypeProductCreated = "product.created"
)

// BaseEvent contains common event fields
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderAcceptedEvent is emitted for every order committed by the ingest
// path, after its chunk transaction commits.
type OrderAcceptedEvent struct {
	BaseEvent
	TenantID       uuid.UUID `json:"tenant_id"`
	OrderID        uuid.UUID `json:"order_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	TotalCents     int64     `json:"total_cents"`
	ItemCount      int       `json:"item_count"`
}

// ProductCreatedEvent is emitted by the provisioning path so catalog
// consumers (the product cache warmer) learn about new products.
type ProductCreatedEvent struct {
	BaseEvent
	TenantID  uuid.UUID `json:"tenant_id"`
	ProductID uuid.UUID `json:"product_id"`
}

// EventPublisher publishes typed domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrdersAccepted publishes one event per committed order as a
// single batched write.
func (ep *EventPublisher) PublishOrdersAccepted(ctx context.Context, tenantID uuid.UUID, orders []*models.OrderDraft) error {
	events := make([]interface{}, 0, len(orders))
	for _, o := range orders {
		events = append(events, &OrderAcceptedEvent{
			BaseEvent: BaseEvent{
				EventID:   uuid.New().String(),
				EventType: EventTypeOrderAccepted,
				Timestamp: time.Now(),
			},
			TenantID:       tenantID,
			OrderID:        o.OrderID,
			IdempotencyKey: o.IdempotencyKey,
			TotalCents:     o.TotalCents(),
			ItemCount:      len(o.Items),
		})
	}
	return ep.producer.PublishEvents(ctx, tenantID.String(), events)
}

// PublishProductsCreated announces new catalog rows.
func (ep *EventPublisher) PublishProductsCreated(ctx context.Context, tenantID uuid.UUID, productIDs []uuid.UUID) error {
	events := make([]interface{}, 0, len(productIDs))
	for _, id := range productIDs {
		events = append(events, &ProductCreatedEvent{
			BaseEvent: BaseEvent{
				EventID:   uuid.New().String(),
				EventType: EventTypeProductCreated,
				Timestamp: time.Now(),
			},
			TenantID:  tenantID,
			ProductID: id,
		})
	}
	return ep.producer.PublishEvents(ctx, tenantID.String(), events)
}
