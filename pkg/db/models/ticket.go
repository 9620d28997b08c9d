package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/seatswap/seatswap-backend/pkg/enums"
)

// Ticket is a single non-fungible resale listing. A ticket can be held by at
// most one order at a time; the hold is expressed by ReservedOrderID plus
// ReservedUntil and is reclaimable once ReservedUntil has passed.
type Ticket struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	SellerID        uuid.UUID          `gorm:"column:seller_id;type:uuid;not null"`
	EventID         uuid.UUID          `gorm:"column:event_id;type:uuid;not null"`
	PriceCents      int                `gorm:"column:price_cents;not null"`
	FaceValueCents  int                `gorm:"column:face_value_cents;not null"`
	Status          enums.TicketStatus `gorm:"column:status;type:ticket_status;not null;default:'available'"`
	ReservedOrderID *uuid.UUID         `gorm:"column:reserved_order_id;type:uuid"`
	ReservedUntil   *time.Time         `gorm:"column:reserved_until"`
	SoldAt          *time.Time         `gorm:"column:sold_at"`
	WithdrawnAt     *time.Time         `gorm:"column:withdrawn_at"`
	Event           *Event             `gorm:"foreignKey:EventID"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
