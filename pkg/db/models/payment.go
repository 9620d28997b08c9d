package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/seatswap/seatswap-backend/pkg/enums"
)

// Payment tracks the payment processor state for an order, one-to-one. Only
// the payment-webhook boundary writes to it.
type Payment struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_payments_order_id"`
	Status      enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	ProviderRef *string             `gorm:"column:provider_ref;type:text"`
	AmountCents int                 `gorm:"column:amount_cents;not null"`
	FailedAt    *time.Time          `gorm:"column:failed_at"`
	SucceededAt *time.Time          `gorm:"column:succeeded_at"`
	RefundedAt  *time.Time          `gorm:"column:refunded_at"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
