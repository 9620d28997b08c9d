package tickets

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

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

// Service defines seller-facing listing operations.
type Service interface {
	List(ctx context.Context, input ListInput) (*models.Ticket, error)
	Withdraw(ctx context.Context, input WithdrawInput) error
	Get(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Ticket, error)
}

// ListInput carries the data required to create a listing.
type ListInput struct {
	SellerID       uuid.UUID
	EventID        uuid.UUID
	PriceCents     int
	FaceValueCents int
}

// WithdrawInput identifies a listing and the seller withdrawing it.
type WithdrawInput struct {
	TicketID uuid.UUID
	SellerID uuid.UUID
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
}

// NewService builds a tickets service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("tickets repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outbox}, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*models.Ticket, error) {
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if input.EventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if input.PriceCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	if input.FaceValueCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "face value must be positive")
	}

	var created *models.Ticket
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindEvent(ctx, input.EventID); err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event")
		}

		ticket := &models.Ticket{
			ID:             uuid.New(),
			SellerID:       input.SellerID,
			EventID:        input.EventID,
			PriceCents:     input.PriceCents,
			FaceValueCents: input.FaceValueCents,
			Status:         enums.TicketStatusAvailable,
		}
		saved, err := repo.Create(ctx, ticket)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create ticket")
		}
		created = saved

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTicketListed,
			AggregateType: enums.AggregateTicket,
			AggregateID:   saved.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.SellerID, Role: "seller"},
			Data: payloads.TicketListedEvent{
				TicketID:   saved.ID,
				SellerID:   saved.SellerID,
				EventID:    saved.EventID,
				PriceCents: saved.PriceCents,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Withdraw removes a listing from the market. The conditional update accepts
// an available ticket or a reserved ticket whose hold has expired, so a ticket
// held by an active order can never be withdrawn no matter how the withdraw
// call races a checkout.
func (s *service) Withdraw(ctx context.Context, input WithdrawInput) error {
	if input.TicketID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "ticket id required")
	}
	if input.SellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ticket, err := s.repo.WithTx(tx).FindByID(ctx, input.TicketID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket")
		}
		if ticket.SellerID != input.SellerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "ticket does not belong to seller")
		}
		if ticket.Status == enums.TicketStatusWithdrawn {
			return nil
		}

		res := tx.WithContext(ctx).Exec(`
			UPDATE tickets
			SET status = 'withdrawn',
				withdrawn_at = CURRENT_TIMESTAMP,
				reserved_order_id = NULL,
				reserved_until = NULL,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
			  AND (status = 'available'
			   OR (status = 'reserved' AND reserved_until < ?))
		`, input.TicketID, time.Now().UTC())
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "withdraw ticket")
		}
		if res.RowsAffected != 1 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "ticket cannot be withdrawn in current state").
				WithDetails(map[string]any{"ticket_id": input.TicketID.String(), "status": ticket.Status})
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTicketWithdrawn,
			AggregateType: enums.AggregateTicket,
			AggregateID:   input.TicketID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.SellerID, Role: "seller"},
			Data: payloads.TicketWithdrawnEvent{
				TicketID: input.TicketID,
				SellerID: input.SellerID,
			},
		})
	})
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket id required")
	}
	ticket, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket")
	}
	return ticket, nil
}

func (s *service) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Ticket, error) {
	if eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	rows, err := s.repo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tickets")
	}
	return rows, nil
}
