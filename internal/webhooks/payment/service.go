package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seatswap/seatswap-backend/internal/checkout/reservation"
	"github.com/seatswap/seatswap-backend/internal/orders"
	"github.com/seatswap/seatswap-backend/pkg/db"
	"github.com/seatswap/seatswap-backend/pkg/db/models"
	"github.com/seatswap/seatswap-backend/pkg/enums"
	pkgerrors "github.com/seatswap/seatswap-backend/pkg/errors"
	"github.com/seatswap/seatswap-backend/pkg/outbox"
	"github.com/seatswap/seatswap-backend/pkg/outbox/payloads"
)

// guardTTL bounds how long the fast-path replay key lives. The database
// unique index on provider event ids is the authoritative guard; redis only
// short-circuits the common duplicate delivery.
const guardTTL = 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type replayGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookEventKey(provider, eventID string) string
}

// EventType is the normalized payment event kind, mapped from the provider's
// own event names at the HTTP boundary.
type EventType string

const (
	EventPaymentSucceeded EventType = "payment_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
	EventPaymentRefunded  EventType = "payment_refunded"
)

// EventInput is one normalized provider notification.
type EventInput struct {
	Provider        string
	ProviderEventID string
	Type            EventType
	OrderID         uuid.UUID
	ProviderRef     string
	AmountCents     int
	Payload         json.RawMessage
}

// Result reports the processing outcome. Replayed means the event was seen
// before and nothing was written.
type Result struct {
	Replayed    bool
	OrderStatus enums.OrderStatus
}

// Service applies payment provider events to orders exactly once.
type Service interface {
	HandleEvent(ctx context.Context, input EventInput) (*Result, error)
}

type service struct {
	orders orders.Repository
	repo   Repository
	guard  replayGuard
	tx     txRunner
	outbox outboxPublisher
}

// NewService builds a payment webhook service with the required dependencies.
func NewService(
	ordersRepo orders.Repository,
	repo Repository,
	guard replayGuard,
	tx txRunner,
	outbox outboxPublisher,
) (Service, error) {
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if repo == nil {
		return nil, fmt.Errorf("webhook repository required")
	}
	if guard == nil {
		return nil, fmt.Errorf("replay guard required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		orders: ordersRepo,
		repo:   repo,
		guard:  guard,
		tx:     tx,
		outbox: outbox,
	}, nil
}

func (s *service) HandleEvent(ctx context.Context, input EventInput) (*Result, error) {
	if err := validateEvent(input); err != nil {
		return nil, err
	}

	guardKey := s.guard.WebhookEventKey(input.Provider, input.ProviderEventID)
	// a redis failure falls through to the database guard
	if claimed, err := s.guard.SetNX(ctx, guardKey, "1", guardTTL); err == nil && !claimed {
		// acknowledge the duplicate only once the first delivery has
		// committed its ledger row; before that the provider must keep
		// retrying, because the in-flight delivery may still fail
		_, lookupErr := s.repo.FindEventByProviderID(ctx, input.ProviderEventID)
		switch {
		case lookupErr == nil:
			result := Result{Replayed: true}
			if order, err := s.orders.FindByID(ctx, input.OrderID); err == nil {
				result.OrderStatus = order.Status
			}
			return &result, nil
		case lookupErr == gorm.ErrRecordNotFound:
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "duplicate delivery while the first is in flight").
				WithDetails(map[string]any{"provider_event_id": input.ProviderEventID})
		}
		// ledger lookup failed, fall through to the database guard
	}

	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)

		err := repo.InsertEvent(ctx, &models.WebhookEvent{
			ID:              uuid.New(),
			ProviderEventID: input.ProviderEventID,
			EventType:       string(input.Type),
			Payload:         input.Payload,
		})
		if err != nil {
			// provider_event_id carries the only unique index on this table,
			// so any unique violation here is a duplicate delivery.
			if db.IsUniqueViolation(err) {
				result.Replayed = true
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
		}

		order, err := ordersRepo.FindByID(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		if err := s.upsertPayment(ctx, repo, order, input); err != nil {
			return err
		}

		status, err := s.applyTransition(ctx, tx, ordersRepo, order, input)
		if err != nil {
			return err
		}
		result.OrderStatus = status
		return nil
	})
	if err != nil {
		// free the fast-path key so the provider's retry can get through
		_ = s.guard.Del(ctx, guardKey)
		return nil, err
	}
	if result.Replayed && result.OrderStatus == "" {
		if order, err := s.orders.FindByID(ctx, input.OrderID); err == nil {
			result.OrderStatus = order.Status
		}
	}
	return &result, nil
}

func (s *service) upsertPayment(ctx context.Context, repo Repository, order *models.Order, input EventInput) error {
	now := time.Now()
	payment, err := repo.FindPayment(ctx, order.ID)
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		payment = &models.Payment{
			ID:          uuid.New(),
			OrderID:     order.ID,
			Status:      enums.PaymentStatusPending,
			AmountCents: input.AmountCents,
		}
		if payment.AmountCents == 0 {
			payment.AmountCents = order.TotalCents
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
		}
	}

	if input.ProviderRef != "" {
		payment.ProviderRef = &input.ProviderRef
	}
	switch input.Type {
	case EventPaymentSucceeded:
		payment.Status = enums.PaymentStatusSucceeded
		payment.SucceededAt = &now
	case EventPaymentFailed:
		payment.Status = enums.PaymentStatusFailed
		payment.FailedAt = &now
	case EventPaymentRefunded:
		payment.Status = enums.PaymentStatusRefunded
		payment.RefundedAt = &now
	}
	if err := repo.SavePayment(ctx, payment); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save payment")
	}
	return nil
}

func (s *service) applyTransition(
	ctx context.Context,
	tx *gorm.DB,
	ordersRepo orders.Repository,
	order *models.Order,
	input EventInput,
) (enums.OrderStatus, error) {
	switch input.Type {
	case EventPaymentSucceeded:
		// success arriving after the order moved on is already applied
		if order.Status == enums.OrderStatusDelivered || order.Status == enums.OrderStatusCompleted {
			return order.Status, nil
		}
		replayed, err := orders.Advance(ctx, ordersRepo, order.ID, enums.OrderStatusPending, enums.OrderStatusPaid)
		if err != nil {
			return "", err
		}
		if !replayed {
			if err := s.emitStatus(ctx, tx, order, enums.EventOrderPaid, enums.OrderStatusPaid, ""); err != nil {
				return "", err
			}
		}
		return enums.OrderStatusPaid, nil

	case EventPaymentFailed:
		if isTerminal(order.Status) {
			return order.Status, nil
		}
		replayed, err := orders.Advance(ctx, ordersRepo, order.ID, order.Status, enums.OrderStatusFailed)
		if err != nil {
			return "", err
		}
		if !replayed {
			if err := s.releaseTickets(ctx, tx, order); err != nil {
				return "", err
			}
			if err := s.emitStatus(ctx, tx, order, enums.EventOrderFailed, enums.OrderStatusFailed, "payment failed"); err != nil {
				return "", err
			}
		}
		return enums.OrderStatusFailed, nil

	case EventPaymentRefunded:
		if order.Status == enums.OrderStatusRefunded {
			return order.Status, nil
		}
		if order.Status != enums.OrderStatusPaid && order.Status != enums.OrderStatusDelivered {
			return "", pkgerrors.New(pkgerrors.CodeStateConflict, "order not refundable").
				WithDetails(map[string]any{"order_id": order.ID.String(), "actual": order.Status})
		}
		if _, err := orders.Advance(ctx, ordersRepo, order.ID, order.Status, enums.OrderStatusRefunded); err != nil {
			return "", err
		}
		if err := s.emitStatus(ctx, tx, order, enums.EventOrderRefunded, enums.OrderStatusRefunded, "payment refunded"); err != nil {
			return "", err
		}
		return enums.OrderStatusRefunded, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported event type")
}

// releaseTickets returns any holds the failed order still carries. Tickets
// already sold or re-reserved elsewhere are untouched.
func (s *service) releaseTickets(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	for _, item := range order.Items {
		if err := reservation.Release(ctx, tx, item.TicketID, order.ID); err != nil {
			return err
		}
		orderID := order.ID
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReservationReleased,
			AggregateType: enums.AggregateTicket,
			AggregateID:   item.TicketID,
			Data: payloads.ReservationReleasedEvent{
				TicketID: item.TicketID,
				OrderID:  &orderID,
				Reason:   "payment_failed",
			},
			Version: 1,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *service) emitStatus(
	ctx context.Context,
	tx *gorm.DB,
	order *models.Order,
	eventType enums.OutboxEventType,
	status enums.OrderStatus,
	reason string,
) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderStatusEvent{
			OrderID:  order.ID,
			BuyerID:  order.BuyerID,
			SellerID: order.SellerID,
			Status:   status,
			Reason:   reason,
		},
		Version: 1,
	})
}

func isTerminal(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusCompleted, enums.OrderStatusCancelled,
		enums.OrderStatusRefunded, enums.OrderStatusFailed:
		return true
	}
	return false
}

func validateEvent(input EventInput) error {
	if input.Provider == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider required")
	}
	if input.ProviderEventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider event id required")
	}
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	switch input.Type {
	case EventPaymentSucceeded, EventPaymentFailed, EventPaymentRefunded:
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "unsupported event type")
}
