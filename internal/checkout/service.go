package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/seatswap/seatswap-backend/internal/checkout/reservation"
	"github.com/seatswap/seatswap-backend/internal/orders"
	"github.com/seatswap/seatswap-backend/internal/tickets"
	"github.com/seatswap/seatswap-backend/pkg/config"
	"github.com/seatswap/seatswap-backend/pkg/db"
	"github.com/seatswap/seatswap-backend/pkg/db/models"
	"github.com/seatswap/seatswap-backend/pkg/enums"
	pkgerrors "github.com/seatswap/seatswap-backend/pkg/errors"
	"github.com/seatswap/seatswap-backend/pkg/outbox"
	"github.com/seatswap/seatswap-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type walletReader interface {
	FindWallet(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
}

// Service creates orders and places ticket holds.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*Result, error)
	Purchase(ctx context.Context, input PurchaseInput) (*Result, error)
}

// CheckoutInput is a multi-ticket cart purchase request.
type CheckoutInput struct {
	BuyerID        uuid.UUID
	TicketIDs      []uuid.UUID
	IdempotencyKey string
}

// PurchaseInput is the single-ticket fast path.
type PurchaseInput struct {
	BuyerID        uuid.UUID
	TicketID       uuid.UUID
	IdempotencyKey string
}

// Result carries the created (or replayed) order.
type Result struct {
	Order    *models.Order
	Replayed bool
}

type service struct {
	orders  orders.Repository
	tickets tickets.Repository
	wallets walletReader
	tx      txRunner
	outbox  outboxPublisher
	cfg     config.CheckoutConfig
}

// NewService builds a checkout service with the required dependencies.
func NewService(
	ordersRepo orders.Repository,
	ticketsRepo tickets.Repository,
	wallets walletReader,
	tx txRunner,
	outbox outboxPublisher,
	cfg config.CheckoutConfig,
) (Service, error) {
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ticketsRepo == nil {
		return nil, fmt.Errorf("tickets repository required")
	}
	if wallets == nil {
		return nil, fmt.Errorf("wallet reader required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if cfg.FeeBps < 0 || cfg.ReservationTTL <= 0 || cfg.MaxTickets <= 0 {
		return nil, fmt.Errorf("invalid checkout config")
	}
	return &service{
		orders:  ordersRepo,
		tickets: ticketsRepo,
		wallets: wallets,
		tx:      tx,
		outbox:  outbox,
		cfg:     cfg,
	}, nil
}

func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*Result, error) {
	if err := validateCheckout(input, s.cfg.MaxTickets); err != nil {
		return nil, err
	}
	return s.createOrder(ctx, input.BuyerID, input.TicketIDs, input.IdempotencyKey, nil)
}

func (s *service) Purchase(ctx context.Context, input PurchaseInput) (*Result, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if input.TicketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket id required")
	}
	if input.IdempotencyKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required")
	}
	return s.createOrder(ctx, input.BuyerID, []uuid.UUID{input.TicketID}, input.IdempotencyKey, &input.TicketID)
}

// createOrder drives both purchase paths. singleTicket is non-nil only on the
// single-ticket route, where the order additionally claims the unique
// per-ticket slot.
func (s *service) createOrder(
	ctx context.Context,
	buyerID uuid.UUID,
	ticketIDs []uuid.UUID,
	idempotencyKey string,
	singleTicket *uuid.UUID,
) (*Result, error) {
	if existing, err := s.orders.FindByIdempotencyKey(ctx, idempotencyKey); err == nil {
		return s.replay(existing, ticketIDs)
	} else if err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up idempotency key")
	}

	found, err := s.tickets.FindByIDs(ctx, ticketIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tickets")
	}
	if len(found) != len(ticketIDs) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "one or more tickets not found")
	}

	sellerID := found[0].SellerID
	amountCents := 0
	for _, ticket := range found {
		if ticket.SellerID != sellerID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "tickets must belong to a single seller")
		}
		if ticket.SellerID == buyerID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot purchase your own ticket")
		}
		amountCents += ticket.PriceCents
	}

	if singleTicket != nil {
		if err := s.checkSoldOutCredits(ctx, buyerID, found[0].EventID); err != nil {
			return nil, err
		}
	}

	feeCents := FeeCents(amountCents, s.cfg.FeeBps)
	// one expiry for the order row and every ticket hold
	reservedUntil := time.Now().UTC().Add(s.cfg.ReservationTTL)

	order := &models.Order{
		ID:             uuid.New(),
		BuyerID:        buyerID,
		SellerID:       sellerID,
		IdempotencyKey: idempotencyKey,
		TicketID:       singleTicket,
		AmountCents:    amountCents,
		FeeCents:       feeCents,
		TotalCents:     amountCents + feeCents,
		Status:         enums.OrderStatusPending,
		ReservedUntil:  &reservedUntil,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		if _, err := repo.CreateOrder(ctx, order); err != nil {
			return err
		}

		if err := reservation.Reserve(ctx, tx, ticketIDs, order.ID, reservedUntil); err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(found))
		for _, ticket := range found {
			items = append(items, models.OrderItem{
				ID:             uuid.New(),
				OrderID:        order.ID,
				TicketID:       ticket.ID,
				PriceCents:     ticket.PriceCents,
				FaceValueCents: ticket.FaceValueCents,
			})
		}
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: buyerID, Role: "buyer"},
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				BuyerID:       buyerID,
				SellerID:      sellerID,
				TicketIDs:     ticketIDs,
				AmountCents:   amountCents,
				FeeCents:      feeCents,
				TotalCents:    amountCents + feeCents,
				ReservedUntil: reservedUntil.UTC().Format(time.RFC3339),
			},
			Version: 1,
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, "ux_orders_idempotency_key", "orders.idempotency_key") {
			// a concurrent retry with the same key won the insert
			winner, readErr := s.orders.FindByIdempotencyKey(ctx, idempotencyKey)
			if readErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, readErr, "load replayed order")
			}
			return s.replay(winner, ticketIDs)
		}
		if singleTicket != nil && db.IsUniqueViolation(err, "ux_orders_ticket_id", "orders.ticket_id") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "ticket already has an active order").
				WithDetails(map[string]any{"ticket_id": *singleTicket})
		}
		return nil, err
	}

	full, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load created order")
	}
	return &Result{Order: full}, nil
}

// replay returns the already-created order for a repeated idempotency key,
// rejecting reuse of the key for a different ticket set.
func (s *service) replay(existing *models.Order, ticketIDs []uuid.UUID) (*Result, error) {
	requested := make(map[uuid.UUID]struct{}, len(ticketIDs))
	for _, id := range ticketIDs {
		requested[id] = struct{}{}
	}
	if len(existing.Items) != len(requested) {
		return nil, keyReuseError(existing.ID)
	}
	for _, item := range existing.Items {
		if _, ok := requested[item.TicketID]; !ok {
			return nil, keyReuseError(existing.ID)
		}
	}
	return &Result{Order: existing, Replayed: true}, nil
}

func keyReuseError(orderID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "idempotency key already used for a different request").
		WithDetails(map[string]any{"order_id": orderID})
}

// checkSoldOutCredits enforces the access-credit gate on sold-out events: a
// buyer needs at least one credit before the fast path will take their order.
func (s *service) checkSoldOutCredits(ctx context.Context, buyerID, eventID uuid.UUID) error {
	event, err := s.tickets.FindEvent(ctx, eventID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event")
	}
	if event.SelloutStatus != enums.EventSoldOut {
		return nil
	}
	wallet, err := s.wallets.FindWallet(ctx, buyerID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeValidation, "insufficient credits for sold-out event")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	if wallet.CreditBalance < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "insufficient credits for sold-out event").
			WithDetails(map[string]any{"wallet_id": buyerID, "balance": wallet.CreditBalance})
	}
	return nil
}

// FeeCents computes the marketplace fee in cents, rounding half away from
// zero.
func FeeCents(amountCents, feeBps int) int {
	fee := decimal.NewFromInt(int64(amountCents)).
		Mul(decimal.NewFromInt(int64(feeBps))).
		Div(decimal.NewFromInt(10000))
	return int(fee.Round(0).IntPart())
}

func validateCheckout(input CheckoutInput, maxTickets int) error {
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if input.IdempotencyKey == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required")
	}
	if len(input.TicketIDs) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one ticket required")
	}
	if len(input.TicketIDs) > maxTickets {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("at most %d tickets per order", maxTickets))
	}
	seen := make(map[uuid.UUID]struct{}, len(input.TicketIDs))
	for _, id := range input.TicketIDs {
		if id == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "ticket id required")
		}
		if _, dup := seen[id]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate ticket in request")
		}
		seen[id] = struct{}{}
	}
	return nil
}
