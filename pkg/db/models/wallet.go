package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is the per-actor credit account plus lifetime seller metrics. The
// cached CreditBalance must always equal the sum of the actor's
// CreditTransaction amounts; it is only ever written in the same transaction
// as the ledger rows that justify the change.
type Wallet struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	DisplayName        string    `gorm:"column:display_name;type:text;not null"`
	CreditBalance      int       `gorm:"column:credit_balance;not null;default:0"`
	LifetimeSalesCount int       `gorm:"column:lifetime_sales_count;not null;default:0"`
	LifetimeSalesCents int       `gorm:"column:lifetime_sales_cents;not null;default:0"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
