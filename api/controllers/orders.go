package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/seatswap/seatswap-backend/api/middleware"
	"github.com/seatswap/seatswap-backend/api/responses"
	"github.com/seatswap/seatswap-backend/api/validators"
	completionsvc "github.com/seatswap/seatswap-backend/internal/completion"
	ordersvc "github.com/seatswap/seatswap-backend/internal/orders"
	"github.com/seatswap/seatswap-backend/pkg/db/models"
	pkgerrors "github.com/seatswap/seatswap-backend/pkg/errors"
	"github.com/seatswap/seatswap-backend/pkg/logger"
	"github.com/seatswap/seatswap-backend/pkg/metrics"
)

// DeliverOrder marks a paid order's tickets as handed over.
func DeliverOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actorUID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Deliver(r.Context(), ordersvc.DeliverInput{
			OrderID:     orderID,
			ActorUserID: actorUID,
			ActorRole:   middleware.RoleFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderResultResponse{
			orderResponse: newOrderResponse(result.Order, ""),
			Replayed:      result.Replayed,
		})
	}
}

// CancelOrder voids a pending order and releases its ticket holds.
func CancelOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actorUID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelOrderRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.Cancel(r.Context(), ordersvc.CancelInput{
			OrderID:     orderID,
			ActorUserID: actorUID,
			ActorRole:   middleware.RoleFromContext(r.Context()),
			Reason:      payload.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderResultResponse{
			orderResponse: newOrderResponse(result.Order, ""),
			Replayed:      result.Replayed,
		})
	}
}

// CompleteOrder finalizes a delivered order, releasing escrow and applying
// sold-out credits.
func CompleteOrder(svc completionsvc.Service, mm *metrics.MarketplaceMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "completion service unavailable"))
			return
		}

		actorUID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Complete(r.Context(), completionsvc.CompleteInput{
			OrderID:     orderID,
			ActorUserID: actorUID,
			ActorRole:   middleware.RoleFromContext(r.Context()),
		})
		if err != nil {
			mm.IncCompletion("error")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome := "completed"
		if result.Replayed {
			outcome = "replayed"
		}
		mm.IncCompletion(outcome)

		responses.WriteSuccess(w, completeOrderResponse{
			orderResponse:  newOrderResponse(result.Order, ""),
			Replayed:       result.Replayed,
			CreditsApplied: result.CreditsApplied,
			CreditsSkipped: result.CreditsSkipped,
		})
	}
}

// GetOrder returns one order with its derived escrow state.
func GetOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(detail.Order, string(detail.EscrowState)))
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=255"`
}

type orderResponse struct {
	OrderID       uuid.UUID           `json:"order_id"`
	BuyerID       uuid.UUID           `json:"buyer_id"`
	SellerID      uuid.UUID           `json:"seller_id"`
	TicketID      *uuid.UUID          `json:"ticket_id,omitempty"`
	Status        string              `json:"status"`
	AmountCents   int                 `json:"amount_cents"`
	FeeCents      int                 `json:"fee_cents"`
	TotalCents    int                 `json:"total_cents"`
	EscrowState   string              `json:"escrow_state,omitempty"`
	ReservedUntil *time.Time          `json:"reserved_until,omitempty"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	DeliveredAt   *time.Time          `json:"delivered_at,omitempty"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
	CancelledAt   *time.Time          `json:"cancelled_at,omitempty"`
	Items         []orderItemResponse `json:"items,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

type orderItemResponse struct {
	TicketID       uuid.UUID `json:"ticket_id"`
	PriceCents     int       `json:"price_cents"`
	FaceValueCents int       `json:"face_value_cents"`
}

type completeOrderResponse struct {
	orderResponse
	Replayed       bool `json:"replayed"`
	CreditsApplied int  `json:"credits_applied"`
	CreditsSkipped int  `json:"credits_skipped"`
}

func newOrderResponse(order *models.Order, escrowState string) orderResponse {
	resp := orderResponse{
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		SellerID:      order.SellerID,
		TicketID:      order.TicketID,
		Status:        string(order.Status),
		AmountCents:   order.AmountCents,
		FeeCents:      order.FeeCents,
		TotalCents:    order.TotalCents,
		EscrowState:   escrowState,
		ReservedUntil: order.ReservedUntil,
		PaidAt:        order.PaidAt,
		DeliveredAt:   order.DeliveredAt,
		CompletedAt:   order.CompletedAt,
		CancelledAt:   order.CancelledAt,
		CreatedAt:     order.CreatedAt,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			TicketID:       item.TicketID,
			PriceCents:     item.PriceCents,
			FaceValueCents: item.FaceValueCents,
		})
	}
	return resp
}
