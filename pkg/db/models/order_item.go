package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem snapshots a ticket's price and face value at order-creation time.
// The snapshot stays authoritative for billing even if the listing changes.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_order_items_order_ticket,priority:1"`
	TicketID       uuid.UUID `gorm:"column:ticket_id;type:uuid;not null;uniqueIndex:ux_order_items_order_ticket,priority:2"`
	PriceCents     int       `gorm:"column:price_cents;not null"`
	FaceValueCents int       `gorm:"column:face_value_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
