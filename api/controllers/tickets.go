package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/seatswap/seatswap-backend/api/middleware"
	"github.com/seatswap/seatswap-backend/api/responses"
	"github.com/seatswap/seatswap-backend/api/validators"
	ticketsvc "github.com/seatswap/seatswap-backend/internal/tickets"
	"github.com/seatswap/seatswap-backend/pkg/db/models"
	pkgerrors "github.com/seatswap/seatswap-backend/pkg/errors"
	"github.com/seatswap/seatswap-backend/pkg/logger"
)

// ListTicket handles seller listing submissions.
func ListTicket(svc ticketsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tickets service unavailable"))
			return
		}

		sellerID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload listTicketRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ticket, err := svc.List(r.Context(), ticketsvc.ListInput{
			SellerID:       sellerID,
			EventID:        payload.EventID,
			PriceCents:     payload.PriceCents,
			FaceValueCents: payload.FaceValueCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newTicketResponse(ticket))
	}
}

// WithdrawTicket handles a seller pulling an available listing.
func WithdrawTicket(svc ticketsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tickets service unavailable"))
			return
		}

		sellerID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ticketID, err := pathUUID(r, "ticketID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Withdraw(r.Context(), ticketsvc.WithdrawInput{TicketID: ticketID, SellerID: sellerID}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "withdrawn"})
	}
}

// GetTicket returns one listing.
func GetTicket(svc ticketsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tickets service unavailable"))
			return
		}

		ticketID, err := pathUUID(r, "ticketID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ticket, err := svc.Get(r.Context(), ticketID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTicketResponse(ticket))
	}
}

// ListEventTickets returns every listing for one event.
func ListEventTickets(svc ticketsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tickets service unavailable"))
			return
		}

		eventID, err := pathUUID(r, "eventID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tickets, err := svc.ListByEvent(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]ticketResponse, 0, len(tickets))
		for i := range tickets {
			items = append(items, newTicketResponse(&tickets[i]))
		}
		responses.WriteSuccess(w, items)
	}
}

type listTicketRequest struct {
	EventID        uuid.UUID `json:"event_id" validate:"required"`
	PriceCents     int       `json:"price_cents" validate:"required,min=1"`
	FaceValueCents int       `json:"face_value_cents" validate:"required,min=1"`
}

type ticketResponse struct {
	TicketID       uuid.UUID  `json:"ticket_id"`
	SellerID       uuid.UUID  `json:"seller_id"`
	EventID        uuid.UUID  `json:"event_id"`
	PriceCents     int        `json:"price_cents"`
	FaceValueCents int        `json:"face_value_cents"`
	Status         string     `json:"status"`
	ReservedUntil  *time.Time `json:"reserved_until,omitempty"`
	SoldAt         *time.Time `json:"sold_at,omitempty"`
	WithdrawnAt    *time.Time `json:"withdrawn_at,omitempty"`
}

func newTicketResponse(ticket *models.Ticket) ticketResponse {
	return ticketResponse{
		TicketID:       ticket.ID,
		SellerID:       ticket.SellerID,
		EventID:        ticket.EventID,
		PriceCents:     ticket.PriceCents,
		FaceValueCents: ticket.FaceValueCents,
		Status:         string(ticket.Status),
		ReservedUntil:  ticket.ReservedUntil,
		SoldAt:         ticket.SoldAt,
		WithdrawnAt:    ticket.WithdrawnAt,
	}
}

// actorID reads the authenticated user from the request context.
func actorID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+param)
	}
	return id, nil
}
