package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/seatswap/seatswap-backend/pkg/enums"
)

// CreditTransaction is an immutable access-credit ledger row. The unique
// (wallet, order, ticket, type) index is the idempotency mechanism that makes
// re-applying the same logical entry a no-op. BalanceAfter records the
// wallet's running balance as of this row.
type CreditTransaction struct {
	ID           uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	WalletID     uuid.UUID                   `gorm:"column:wallet_id;type:uuid;not null;uniqueIndex:ux_credit_txns_wallet_order_ticket_type,priority:1"`
	OrderID      uuid.UUID                   `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_credit_txns_wallet_order_ticket_type,priority:2"`
	TicketID     uuid.UUID                   `gorm:"column:ticket_id;type:uuid;not null;uniqueIndex:ux_credit_txns_wallet_order_ticket_type,priority:3"`
	Type         enums.CreditTransactionType `gorm:"column:type;type:credit_transaction_type;not null;uniqueIndex:ux_credit_txns_wallet_order_ticket_type,priority:4"`
	Amount       int                         `gorm:"column:amount;not null"`
	BalanceAfter int                         `gorm:"column:balance_after;not null"`
	CreatedAt    time.Time                   `gorm:"column:created_at;autoCreateTime"`
}
