package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seatswap/seatswap-backend/api/controllers"
	webhookcontrollers "github.com/seatswap/seatswap-backend/api/controllers/webhooks"
	"github.com/seatswap/seatswap-backend/api/middleware"
	checkoutsvc "github.com/seatswap/seatswap-backend/internal/checkout"
	completionsvc "github.com/seatswap/seatswap-backend/internal/completion"
	ordersvc "github.com/seatswap/seatswap-backend/internal/orders"
	ticketsvc "github.com/seatswap/seatswap-backend/internal/tickets"
	paymentsvc "github.com/seatswap/seatswap-backend/internal/webhooks/payment"
	"github.com/seatswap/seatswap-backend/pkg/auth"
	"github.com/seatswap/seatswap-backend/pkg/config"
	"github.com/seatswap/seatswap-backend/pkg/db"
	"github.com/seatswap/seatswap-backend/pkg/logger"
	"github.com/seatswap/seatswap-backend/pkg/metrics"
	"github.com/seatswap/seatswap-backend/pkg/redis"
	"github.com/seatswap/seatswap-backend/pkg/stripe"
)

// Deps carries everything the HTTP surface needs. Nil optional entries
// degrade the matching route rather than the whole router.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         *redis.Client
	StripeClient  *stripe.Client
	Tickets       ticketsvc.Service
	Checkout      checkoutsvc.Service
	Orders        ordersvc.Service
	Completion    completionsvc.Service
	PaymentEvents paymentsvc.Service
	Metrics       *metrics.MarketplaceMetrics
	Registry      *prometheus.Registry
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger
	mm := deps.Metrics

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	// provider-signed, never behind user auth
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payment", webhookcontrollers.StripeWebhook(deps.PaymentEvents, deps.StripeClient, mm, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/tickets", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, auth.RoleSeller, auth.RoleAdmin)).
				Post("/", controllers.ListTicket(deps.Tickets, logg))
			r.Get("/{ticketID}", controllers.GetTicket(deps.Tickets, logg))
			r.With(middleware.RequireRole(logg, auth.RoleSeller, auth.RoleAdmin)).
				Post("/{ticketID}/withdraw", controllers.WithdrawTicket(deps.Tickets, logg))
			r.With(middleware.RequireRole(logg, auth.RoleBuyer, auth.RoleAdmin)).
				Post("/{ticketID}/purchase", controllers.Purchase(deps.Checkout, mm, logg))
		})

		r.Get("/events/{eventID}/tickets", controllers.ListEventTickets(deps.Tickets, logg))

		r.With(middleware.RequireRole(logg, auth.RoleBuyer, auth.RoleAdmin)).
			Post("/checkout", controllers.Checkout(deps.Checkout, mm, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/{orderID}", controllers.GetOrder(deps.Orders, logg))
			r.With(middleware.RequireRole(logg, auth.RoleSeller, auth.RoleAdmin)).
				Post("/{orderID}/deliver", controllers.DeliverOrder(deps.Orders, logg))
			r.Post("/{orderID}/cancel", controllers.CancelOrder(deps.Orders, logg))
			r.With(middleware.RequireRole(logg, auth.RoleBuyer, auth.RoleAdmin)).
				Post("/{orderID}/complete", controllers.CompleteOrder(deps.Completion, mm, logg))
		})
	})

	return r
}
