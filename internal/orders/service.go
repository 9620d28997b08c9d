package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seatswap/seatswap-backend/internal/checkout/reservation"
	"github.com/seatswap/seatswap-backend/internal/escrow"
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

// Service defines order lifecycle operations beyond checkout and completion.
type Service interface {
	Deliver(ctx context.Context, input DeliverInput) (*TransitionResult, error)
	Cancel(ctx context.Context, input CancelInput) (*TransitionResult, error)
	Get(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error)
}

// DeliverInput confirms physical or digital handover of an order's tickets.
type DeliverInput struct {
	OrderID     uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   string
}

// CancelInput releases a pending order and its reserved tickets.
type CancelInput struct {
	OrderID     uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   string
	Reason      string
}

// TransitionResult reports a lifecycle write. Replayed is true when the order
// was already in the target state and nothing was written.
type TransitionResult struct {
	Order    *models.Order
	Replayed bool
}

// OrderDetail is an order plus its derived escrow state.
type OrderDetail struct {
	Order       *models.Order
	EscrowState enums.EscrowState
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
}

// NewService builds an orders service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outbox}, nil
}

// Advance runs the conditional-write-then-inspect pattern shared by every
// status change in the system. A zero row count forces a re-read: the target
// status already in place is a safe replay, anything else is a genuine
// conflict reported with expected versus actual status.
func Advance(ctx context.Context, repo Repository, orderID uuid.UUID, from, to enums.OrderStatus) (bool, error) {
	rows, err := repo.TransitionStatus(ctx, orderID, from, to)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition order status")
	}
	if rows == 1 {
		return false, nil
	}

	current, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	if current.Status == to {
		return true, nil
	}
	return false, pkgerrors.New(pkgerrors.CodeStateConflict, "order not in expected state").
		WithDetails(map[string]any{
			"order_id": orderID.String(),
			"expected": from,
			"actual":   current.Status,
			"target":   to,
		})
}

func (s *service) Deliver(ctx context.Context, input DeliverInput) (*TransitionResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var result TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		if order.Status == enums.OrderStatusDelivered {
			result = TransitionResult{Order: order, Replayed: true}
			return nil
		}
		if order.Status != enums.OrderStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order must be paid before delivery").
				WithDetails(map[string]any{"order_id": order.ID.String(), "status": order.Status})
		}

		// the gate runs first so a racing deliver that loses the
		// conditional write re-reads and replays instead of tripping over
		// tickets the winner already marked sold
		replayed, err := Advance(ctx, repo, order.ID, enums.OrderStatusPaid, enums.OrderStatusDelivered)
		if err != nil {
			return err
		}
		order.Status = enums.OrderStatusDelivered
		result = TransitionResult{Order: order, Replayed: replayed}
		if replayed {
			return nil
		}

		for _, item := range order.Items {
			if err := reservation.MarkSold(ctx, tx, item.TicketID, order.ID); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         actorRef(input.ActorUserID, input.ActorRole),
			Data: payloads.OrderStatusEvent{
				OrderID:  order.ID,
				BuyerID:  order.BuyerID,
				SellerID: order.SellerID,
				Status:   enums.OrderStatusDelivered,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Cancel frees a pending order. The ticket reservation fields are cleared
// unconditionally in the same transaction, so a cancelled single-ticket order
// never leaves a stale hold blocking the next purchase of that ticket.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*TransitionResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var result TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		if order.Status == enums.OrderStatusCancelled {
			result = TransitionResult{Order: order, Replayed: true}
			return nil
		}

		replayed, err := Advance(ctx, repo, order.ID, enums.OrderStatusPending, enums.OrderStatusCancelled)
		if err != nil {
			return err
		}
		order.Status = enums.OrderStatusCancelled
		result = TransitionResult{Order: order, Replayed: replayed}
		if replayed {
			return nil
		}

		for _, item := range order.Items {
			if err := reservation.Release(ctx, tx, item.TicketID, order.ID); err != nil {
				return err
			}
			orderID := order.ID
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventReservationReleased,
				AggregateType: enums.AggregateTicket,
				AggregateID:   item.TicketID,
				Version:       1,
				Actor:         actorRef(input.ActorUserID, input.ActorRole),
				Data: payloads.ReservationReleasedEvent{
					TicketID: item.TicketID,
					OrderID:  &orderID,
					Reason:   "order_cancelled",
				},
			}); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         actorRef(input.ActorUserID, input.ActorRole),
			Data: payloads.OrderStatusEvent{
				OrderID:  order.ID,
				BuyerID:  order.BuyerID,
				SellerID: order.SellerID,
				Status:   enums.OrderStatusCancelled,
				Reason:   input.Reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	paymentStatus := enums.PaymentStatusPending
	if order.Payment != nil {
		paymentStatus = order.Payment.Status
	}

	return &OrderDetail{
		Order:       order,
		EscrowState: escrow.Derive(order.Status, paymentStatus),
	}, nil
}

func actorRef(userID uuid.UUID, role string) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: role}
}
