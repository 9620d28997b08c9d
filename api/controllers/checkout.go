package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/seatswap/seatswap-backend/api/responses"
	"github.com/seatswap/seatswap-backend/api/validators"
	checkoutsvc "github.com/seatswap/seatswap-backend/internal/checkout"
	"github.com/seatswap/seatswap-backend/pkg/db/models"
	pkgerrors "github.com/seatswap/seatswap-backend/pkg/errors"
	"github.com/seatswap/seatswap-backend/pkg/logger"
	"github.com/seatswap/seatswap-backend/pkg/metrics"
)

// Checkout handles multi-ticket cart purchases. A replayed order responds
// 200, a freshly created one 201.
func Checkout(svc checkoutsvc.Service, mm *metrics.MarketplaceMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		buyerID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		started := time.Now()
		result, err := svc.Checkout(r.Context(), checkoutsvc.CheckoutInput{
			BuyerID:        buyerID,
			TicketIDs:      payload.TicketIDs,
			IdempotencyKey: idempotencyKey(r, payload.IdempotencyKey),
		})
		mm.ObserveCheckoutDuration("checkout", time.Since(started))
		if err != nil {
			if pkgerrors.As(err).Code() == pkgerrors.CodeConflict {
				mm.IncReservationConflict()
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeOrderResult(w, mm, "checkout", result.Order, result.Replayed)
	}
}

// Purchase handles the single-ticket fast path.
func Purchase(svc checkoutsvc.Service, mm *metrics.MarketplaceMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		buyerID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ticketID, err := pathUUID(r, "ticketID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload purchaseRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		started := time.Now()
		result, err := svc.Purchase(r.Context(), checkoutsvc.PurchaseInput{
			BuyerID:        buyerID,
			TicketID:       ticketID,
			IdempotencyKey: idempotencyKey(r, payload.IdempotencyKey),
		})
		mm.ObserveCheckoutDuration("purchase", time.Since(started))
		if err != nil {
			if pkgerrors.As(err).Code() == pkgerrors.CodeConflict {
				mm.IncReservationConflict()
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeOrderResult(w, mm, "purchase", result.Order, result.Replayed)
	}
}

type checkoutRequest struct {
	TicketIDs      []uuid.UUID `json:"ticket_ids" validate:"required,min=1,dive,required"`
	IdempotencyKey string      `json:"idempotency_key" validate:"omitempty,min=8,max=128"`
}

type purchaseRequest struct {
	IdempotencyKey string `json:"idempotency_key" validate:"omitempty,min=8,max=128"`
}

// idempotencyKey prefers the Idempotency-Key header and falls back to the
// body field so non-browser clients can use either.
func idempotencyKey(r *http.Request, bodyKey string) string {
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		return key
	}
	return bodyKey
}

// orderResultResponse is an order plus the replay marker idempotent
// operations carry so callers can tell a fresh write from a repeat.
type orderResultResponse struct {
	orderResponse
	Replayed bool `json:"replayed"`
}

func writeOrderResult(w http.ResponseWriter, mm *metrics.MarketplaceMetrics, path string, order *models.Order, replayed bool) {
	payload := orderResultResponse{orderResponse: newOrderResponse(order, ""), Replayed: replayed}
	if replayed {
		responses.WriteSuccess(w, payload)
		return
	}
	mm.IncOrderCreated(path)
	responses.WriteSuccessStatus(w, http.StatusCreated, payload)
}
