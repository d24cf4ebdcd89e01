package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"course-platform-payments/internal/infra/api"
	"course-platform-payments/internal/usecase"
)

// Server exposes the buyer-facing checkout route and the provider webhook
// routes. Webhooks are unauthenticated at the HTTP layer; the reconcile use
// case verifies each notification itself and ignores the ones that fail.
type Server struct {
	checkoutUC  usecase.CheckoutUseCase
	reconcileUC usecase.ReconcileUseCase
	jwtSecret   string
	log         *zerolog.Logger
}

func NewServer(
	checkoutUC usecase.CheckoutUseCase,
	reconcileUC usecase.ReconcileUseCase,
	jwtSecret string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		checkoutUC:  checkoutUC,
		reconcileUC: reconcileUC,
		jwtSecret:   jwtSecret,
		log:         logger,
	}
}

// Router assembles the full route tree with the shared middleware stack.
func (s *Server) Router(requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(api.Recover(s.log))
	r.Use(api.TraceID(s.log))
	r.Use(api.RequestLog(s.log))
	r.Use(api.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(api.BuyerAuth(s.jwtSecret, s.log)).Post("/checkout", s.handleCheckout)
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/paypal", s.handlePayPalWebhook)
		r.Post("/mercadopago", s.handleMercadoPagoWebhook)
	})

	return r
}
