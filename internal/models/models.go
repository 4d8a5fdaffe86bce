package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the isolation boundary. Every transactional row carries a
// tenant reference; no cross-tenant reference is ever valid.
type Tenant struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Product is a catalog item belonging to exactly one tenant.
type Product struct {
	ID         uuid.UUID `db:"id" json:"id"`
	TenantID   uuid.UUID `db:"tenant_id" json:"tenant_id"`
	Title      string    `db:"title" json:"title"`
	Category   string    `db:"category" json:"category,omitempty"`
	PriceCents int64     `db:"price_cents" json:"price_cents"`
	Stock      int       `db:"stock" json:"stock"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Order is a purchase event. (tenant_id, idempotency_key) is unique across
// all time; a retried submission with the same key never creates a second
// order. Orders are never updated after creation.
type Order struct {
	ID             uuid.UUID `db:"id" json:"id"`
	TenantID       uuid.UUID `db:"tenant_id" json:"tenant_id"`
	CustomerName   string    `db:"customer_name" json:"customer_name,omitempty"`
	Status         string    `db:"status" json:"status"`
	TotalCents     int64     `db:"total_cents" json:"total_cents"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	OrderID        uuid.UUID `db:"order_id" json:"order_id"`
	TenantID       uuid.UUID `db:"tenant_id" json:"tenant_id"`
	ProductID      uuid.UUID `db:"product_id" json:"product_id"`
	Quantity       int       `db:"quantity" json:"quantity"`
	UnitPriceCents int64     `db:"unit_price_cents" json:"unit_price_cents"`
}

// IdempotencyRecord is the reservation ledger row. It is inserted in the
// same transaction as the order it guards, so the unique constraint on
// (tenant_id, idempotency_key) is the sole arbiter of first-writer-wins.
type IdempotencyRecord struct {
	TenantID       uuid.UUID `db:"tenant_id"`
	IdempotencyKey string    `db:"idempotency_key"`
	CreatedAt      time.Time `db:"created_at"`
}

// StockEvent tracks a stock change caused by an accepted order item.
type StockEvent struct {
	ID        int64     `db:"id"`
	TenantID  uuid.UUID `db:"tenant_id"`
	ProductID uuid.UUID `db:"product_id"`
	Delta     int       `db:"delta"`
	CreatedAt time.Time `db:"created_at"`
}

// Order statuses
const (
	OrderStatusCreated   = "created"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
)

// OrderDraft is a validated order ready for persistence, still tagged with
// the physical input line it came from.
type OrderDraft struct {
	Line           int
	OrderID        uuid.UUID
	TenantID       uuid.UUID
	CustomerName   string
	Status         string
	IdempotencyKey string
	Items          []ItemDraft
	ClientTime     time.Time
}

// ItemDraft is one validated line item of an OrderDraft.
type ItemDraft struct {
	ProductID      uuid.UUID
	Quantity       int
	UnitPriceCents int64
}

// TotalCents sums the draft's items.
func (d *OrderDraft) TotalCents() int64 {
	var total int64
	for _, it := range d.Items {
		total += it.UnitPriceCents * int64(it.Quantity)
	}
	return total
}
