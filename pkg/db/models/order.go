package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/seatswap/seatswap-backend/pkg/enums"
)

// Order is the purchase aggregate. Status only ever advances along the
// directed transition graph enforced by internal/orders; monetary fields are
// snapshots taken at creation time and never recomputed.
//
// IdempotencyKey is globally unique and is the sole de-duplication handle for
// retried checkout requests. TicketID is set only on the single-ticket
// purchase path; its unique index is partial over non-terminal statuses, so a
// ticket carries at most one live single-ticket order but can be purchased
// again once the previous order is cancelled, failed, or refunded.
type Order struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID        uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID       uuid.UUID         `gorm:"column:seller_id;type:uuid;not null"`
	IdempotencyKey string            `gorm:"column:idempotency_key;type:text;not null;uniqueIndex:ux_orders_idempotency_key"`
	TicketID       *uuid.UUID        `gorm:"column:ticket_id;type:uuid;uniqueIndex:ux_orders_ticket_id,where:ticket_id IS NOT NULL AND status <> 'cancelled' AND status <> 'failed' AND status <> 'refunded'"`
	AmountCents    int               `gorm:"column:amount_cents;not null"`
	FeeCents       int               `gorm:"column:fee_cents;not null"`
	TotalCents     int               `gorm:"column:total_cents;not null"`
	Status         enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	ReservedUntil  *time.Time        `gorm:"column:reserved_until"`
	PaidAt         *time.Time        `gorm:"column:paid_at"`
	DeliveredAt    *time.Time        `gorm:"column:delivered_at"`
	CompletedAt    *time.Time        `gorm:"column:completed_at"`
	CancelledAt    *time.Time        `gorm:"column:cancelled_at"`
	Items          []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payment        *Payment          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
