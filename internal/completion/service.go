package completion

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seatswap/seatswap-backend/internal/credits"
	"github.com/seatswap/seatswap-backend/internal/orders"
	"github.com/seatswap/seatswap-backend/internal/tickets"
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

// Service finalizes delivered orders: it flips the order to completed, writes
// access-credit ledger entries for sold-out events, and records the seller's
// lifetime sales.
type Service interface {
	Complete(ctx context.Context, input CompleteInput) (*Result, error)
}

// CompleteInput identifies the order and the confirming actor.
type CompleteInput struct {
	OrderID     uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   string
}

// Result reports what finalization wrote. On a replay the credit counts
// reflect the rows the earlier run already created.
type Result struct {
	Order          *models.Order
	Replayed       bool
	CreditsApplied int
	CreditsSkipped int
}

type service struct {
	orders  orders.Repository
	tickets tickets.Repository
	credits credits.Repository
	tx      txRunner
	outbox  outboxPublisher
}

// NewService builds a completion service with the required dependencies.
func NewService(
	ordersRepo orders.Repository,
	ticketsRepo tickets.Repository,
	creditsRepo credits.Repository,
	tx txRunner,
	outbox outboxPublisher,
) (Service, error) {
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ticketsRepo == nil {
		return nil, fmt.Errorf("tickets repository required")
	}
	if creditsRepo == nil {
		return nil, fmt.Errorf("credits repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		orders:  ordersRepo,
		tickets: ticketsRepo,
		credits: creditsRepo,
		tx:      tx,
		outbox:  outbox,
	}, nil
}

func (s *service) Complete(ctx context.Context, input CompleteInput) (*Result, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		creditsRepo := s.credits.WithTx(tx)

		order, err := ordersRepo.FindByID(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		if order.Status == enums.OrderStatusCompleted {
			return s.replay(ctx, creditsRepo, order, &result)
		}

		orderTickets, err := loadOrderTickets(ctx, s.tickets.WithTx(tx), order)
		if err != nil {
			return err
		}
		if err := checkPreconditions(order, orderTickets); err != nil {
			return err
		}

		replayed, err := orders.Advance(ctx, ordersRepo, order.ID, enums.OrderStatusDelivered, enums.OrderStatusCompleted)
		if err != nil {
			return err
		}
		if replayed {
			// a concurrent finalizer won the gate inside our window
			return s.replay(ctx, creditsRepo, order, &result)
		}

		entries := creditEntries(order, soldOutTickets(orderTickets))
		var applied *credits.Result
		if len(entries) > 0 {
			applied, err = credits.Apply(ctx, creditsRepo, order.ID, entries)
			if err != nil {
				return err
			}
			result.CreditsApplied = applied.Applied
			result.CreditsSkipped = applied.Skipped
		}

		if err := creditsRepo.BumpSellerLifetime(ctx, order.SellerID, 1, order.AmountCents); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record seller lifetime sales")
		}

		if err := s.emitCompleted(ctx, tx, order, input); err != nil {
			return err
		}
		if applied != nil {
			if err := s.emitCreditsApplied(ctx, tx, order, input, applied); err != nil {
				return err
			}
		}

		completed, err := ordersRepo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		result.Order = completed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// replay reports an already-completed order without writing anything.
func (s *service) replay(ctx context.Context, creditsRepo credits.Repository, order *models.Order, result *Result) error {
	existing, err := creditsRepo.ListByOrder(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credit transactions")
	}
	result.Order = order
	result.Replayed = true
	result.CreditsApplied = len(existing)
	return nil
}

func loadOrderTickets(ctx context.Context, ticketsRepo tickets.Repository, order *models.Order) ([]models.Ticket, error) {
	ticketIDs := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		ticketIDs = append(ticketIDs, item.TicketID)
	}
	found, err := ticketsRepo.FindByIDs(ctx, ticketIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order tickets")
	}
	if len(found) != len(ticketIDs) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "order references missing tickets")
	}
	return found, nil
}

func checkPreconditions(order *models.Order, orderTickets []models.Ticket) error {
	if order.Status != enums.OrderStatusDelivered {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order not delivered").
			WithDetails(map[string]any{"order_id": order.ID.String(), "actual": order.Status})
	}
	if order.Payment == nil || order.Payment.Status != enums.PaymentStatusSucceeded {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment not settled").
			WithDetails(map[string]any{"order_id": order.ID.String()})
	}
	for _, ticket := range orderTickets {
		if ticket.Status != enums.TicketStatusSold {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "ticket not sold").
				WithDetails(map[string]any{"ticket_id": ticket.ID.String(), "actual": ticket.Status})
		}
	}
	return nil
}

// soldOutTickets filters the order's tickets down to the ones whose event is
// sold out; only those earn and spend access credits.
func soldOutTickets(orderTickets []models.Ticket) []models.Ticket {
	eligible := make([]models.Ticket, 0, len(orderTickets))
	for _, ticket := range orderTickets {
		if ticket.Event.SelloutStatus == enums.EventSoldOut {
			eligible = append(eligible, ticket)
		}
	}
	return eligible
}

func creditEntries(order *models.Order, eligible []models.Ticket) []credits.Entry {
	entries := make([]credits.Entry, 0, len(eligible)*2)
	for _, ticket := range eligible {
		entries = append(entries,
			credits.Entry{
				WalletID: order.BuyerID,
				TicketID: ticket.ID,
				Type:     enums.CreditTransactionTypeSpent,
				Amount:   -1,
			},
			credits.Entry{
				WalletID: order.SellerID,
				TicketID: ticket.ID,
				Type:     enums.CreditTransactionTypeEarned,
				Amount:   1,
			},
		)
	}
	return entries
}

func (s *service) emitCompleted(ctx context.Context, tx *gorm.DB, order *models.Order, input CompleteInput) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCompleted,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(input.ActorUserID, input.ActorRole),
		Data: payloads.OrderStatusEvent{
			OrderID:  order.ID,
			BuyerID:  order.BuyerID,
			SellerID: order.SellerID,
			Status:   enums.OrderStatusCompleted,
		},
		Version: 1,
	})
}

func (s *service) emitCreditsApplied(ctx context.Context, tx *gorm.DB, order *models.Order, input CompleteInput, applied *credits.Result) error {
	for walletID, balance := range applied.Balances {
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCreditsApplied,
			AggregateType: enums.AggregateWallet,
			AggregateID:   walletID,
			Actor:         actorRef(input.ActorUserID, input.ActorRole),
			Data: payloads.CreditsAppliedEvent{
				WalletID:     walletID,
				OrderID:      order.ID,
				Amount:       walletDelta(applied, walletID, order),
				BalanceAfter: balance,
				EntryCount:   applied.AppliedByWallet[walletID],
			},
			Version: 1,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// walletDelta recovers the net credit change for one wallet from the batch
// result: negative for the buyer side, positive for the seller side.
func walletDelta(applied *credits.Result, walletID uuid.UUID, order *models.Order) int {
	count := applied.AppliedByWallet[walletID]
	if walletID == order.BuyerID {
		return -count
	}
	return count
}

func actorRef(userID uuid.UUID, role string) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: role}
}
