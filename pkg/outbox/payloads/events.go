package payloads

import (
	"github.com/google/uuid"

	"github.com/seatswap/seatswap-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when checkout persists a pending order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID   `json:"order_id"`
	BuyerID       uuid.UUID   `json:"buyer_id"`
	SellerID      uuid.UUID   `json:"seller_id"`
	TicketIDs     []uuid.UUID `json:"ticket_ids"`
	AmountCents   int         `json:"amount_cents"`
	FeeCents      int         `json:"fee_cents"`
	TotalCents    int         `json:"total_cents"`
	ReservedUntil string      `json:"reserved_until"`
}

// OrderStatusEvent covers the paid/delivered/completed/cancelled/failed
// lifecycle notifications, which share a shape.
type OrderStatusEvent struct {
	OrderID  uuid.UUID         `json:"order_id"`
	BuyerID  uuid.UUID         `json:"buyer_id"`
	SellerID uuid.UUID         `json:"seller_id"`
	Status   enums.OrderStatus `json:"status"`
	Reason   string            `json:"reason,omitempty"`
}

// TicketListedEvent is emitted when a seller lists a ticket.
type TicketListedEvent struct {
	TicketID   uuid.UUID `json:"ticket_id"`
	SellerID   uuid.UUID `json:"seller_id"`
	EventID    uuid.UUID `json:"event_id"`
	PriceCents int       `json:"price_cents"`
}

// TicketWithdrawnEvent is emitted when a seller withdraws a listing.
type TicketWithdrawnEvent struct {
	TicketID uuid.UUID `json:"ticket_id"`
	SellerID uuid.UUID `json:"seller_id"`
}

// ReservationReleasedEvent is emitted when a hold is returned to the market,
// either by cancellation or by the expiry sweeper.
type ReservationReleasedEvent struct {
	TicketID uuid.UUID  `json:"ticket_id"`
	OrderID  *uuid.UUID `json:"order_id,omitempty"`
	Reason   string     `json:"reason"`
}

// CreditsAppliedEvent is emitted once per wallet that completion touched.
// Amount is the net credit delta, not a monetary value.
type CreditsAppliedEvent struct {
	WalletID     uuid.UUID `json:"wallet_id"`
	OrderID      uuid.UUID `json:"order_id"`
	Amount       int       `json:"amount"`
	BalanceAfter int       `json:"balance_after"`
	EntryCount   int       `json:"entry_count"`
}
