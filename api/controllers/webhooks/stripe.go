package webhooks

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/seatswap/seatswap-backend/api/responses"
	paymentsvc "github.com/seatswap/seatswap-backend/internal/webhooks/payment"
	pkgerrors "github.com/seatswap/seatswap-backend/pkg/errors"
	"github.com/seatswap/seatswap-backend/pkg/logger"
	"github.com/seatswap/seatswap-backend/pkg/metrics"
)

const providerStripe = "stripe"

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhook verifies Stripe payment notifications and forwards them to
// the payment event service.
func StripeWebhook(svc paymentsvc.Service, client stripeClient, mm *metrics.MarketplaceMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			mm.IncWebhookEvent("unknown", "signature_rejected")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature"))
			return
		}

		input, err := normalizeStripeEvent(&event)
		if err != nil {
			mm.IncWebhookEvent(string(event.Type), "rejected")
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if input == nil {
			// event types we do not subscribe to are acknowledged and dropped
			mm.IncWebhookEvent(string(event.Type), "ignored")
			responses.WriteSuccess(w, nil)
			return
		}

		result, err := svc.HandleEvent(ctx, *input)
		if err != nil {
			mm.IncWebhookEvent(string(input.Type), "error")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		outcome := "applied"
		if result.Replayed {
			outcome = "replayed"
		}
		mm.IncWebhookEvent(string(input.Type), outcome)

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("stripe event %s %s", event.ID, outcome))
		}
		responses.WriteSuccess(w, map[string]string{
			"order_status": string(result.OrderStatus),
			"outcome":      outcome,
		})
	}
}

// normalizeStripeEvent maps a verified Stripe event onto the provider-neutral
// input the payment service consumes. A nil return with no error means the
// event type is not one we act on.
func normalizeStripeEvent(event *stripe.Event) (*paymentsvc.EventInput, error) {
	var kind paymentsvc.EventType
	switch event.Type {
	case "payment_intent.succeeded":
		kind = paymentsvc.EventPaymentSucceeded
	case "payment_intent.payment_failed":
		kind = paymentsvc.EventPaymentFailed
	case "charge.refunded":
		kind = paymentsvc.EventPaymentRefunded
	default:
		return nil, nil
	}

	var object struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Metadata struct {
			OrderID string `json:"order_id"`
		} `json:"metadata"`
		PaymentIntent string `json:"payment_intent"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event object")
	}

	orderID, err := uuid.Parse(object.Metadata.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "event missing order_id metadata").
			WithDetails(map[string]any{"event_id": event.ID, "event_type": string(event.Type)})
	}

	providerRef := object.ID
	if object.PaymentIntent != "" {
		// refunds arrive on the charge; key the payment row by its intent
		providerRef = object.PaymentIntent
	}

	return &paymentsvc.EventInput{
		Provider:        providerStripe,
		ProviderEventID: event.ID,
		Type:            kind,
		OrderID:         orderID,
		ProviderRef:     providerRef,
		AmountCents:     int(object.Amount),
		Payload:         json.RawMessage(event.Data.Raw),
	}, nil
}
