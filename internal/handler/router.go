package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/infra/observability"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/infra/terminal"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(reg *service.Register, signer *terminal.Signer, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(reg))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. Pagamentos
		// =============================================
		r.Post("/payments", payHandler(reg, logger))

		// =============================================
		// 2. Transações aprovadas
		// =============================================
		r.Get("/transactions", listTransactionsHandler(reg))
		r.Get("/transactions/{nsu}", getTransactionHandler(reg, logger))
		r.Post("/transactions/{nsu}/cancel", cancelHandler(reg, logger))

		// =============================================
		// 3. Terminal
		// =============================================
		r.Get("/terminal/status", terminalStatusHandler(reg))
		r.Group(func(r chi.Router) {
			r.Use(TerminalAuthMiddleware(signer, logger))
			r.Post("/terminal/returns", terminalReturnHandler(reg, logger))
		})

		// =============================================
		// 4. Métricas
		// =============================================
		r.Get("/metrics/payments", paymentMetricsHandler(metrics))
	})

	return r
}

// ============================================================
// Operational
// ============================================================

// healthzHandler reports the terminal link as degraded when the last attempt
// failed before the terminal could answer it.
func healthzHandler(reg *service.Register) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)
		st := reg.Status()

		terminalHealth := domain.ServiceHealth{
			Name:        "terminal",
			Status:      domain.HealthHealthy,
			Detail:      string(st.State),
			LastChecked: now,
		}
		if st.State == domain.StateFailed && strings.HasPrefix(st.LastErr, domain.MsgTransactionFailed) {
			terminalHealth.Status = domain.HealthDegraded
			terminalHealth.Detail = st.LastErr
		}

		services := []domain.ServiceHealth{
			{Name: "sitef-adapter", Status: domain.HealthHealthy, LastChecked: now},
			terminalHealth,
		}

		overallStatus := domain.HealthHealthy
		for _, s := range services {
			if s.Status == domain.HealthDegraded {
				overallStatus = domain.HealthDegraded
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: overallStatus, Services: services})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func paymentMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetPaymentsSnapshot())
	}
}

// attemptResponse is returned when a message was handed to the terminal.
type attemptResponse struct {
	Status  string          `json:"status"`
	Attempt *domain.Attempt `json:"attempt"`
}
