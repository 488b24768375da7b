package handler

import (
	"encoding/json"
	"net/http"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type payRequest struct {
	AmountCents   int64  `json:"amount_cents"`
	Method        string `json:"method"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	Installments  int    `json:"installments,omitempty"`
}

// POST /v1/payments
func payHandler(reg *service.Register, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/payments")
		defer span.End()

		var body payRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Method == "" {
			handleServiceError(w, &domain.ErrValidation{Field: "method", Message: "required"}, logger)
			return
		}

		method, ok := domain.ParsePaymentMethod(body.Method)
		if !ok {
			method = domain.PaymentMethod(body.Method)
		}
		span.SetAttributes(attribute.String("payment.method", string(method)))

		attempt, err := reg.Pay(ctx, domain.PaymentRequest{
			AmountCents:   body.AmountCents,
			Method:        method,
			InvoiceNumber: body.InvoiceNumber,
			Installments:  body.Installments,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusAccepted, attemptResponse{Status: string(domain.StateAwaitingTerminal), Attempt: attempt})
	}
}

// POST /v1/transactions/{nsu}/cancel
func cancelHandler(reg *service.Register, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions/{nsu}/cancel")
		defer span.End()

		nsu := chi.URLParam(r, "nsu")
		span.SetAttributes(attribute.String("sitef.nsu", nsu))

		attempt, err := reg.Cancel(ctx, nsu)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusAccepted, attemptResponse{Status: string(domain.StateAwaitingTerminal), Attempt: attempt})
	}
}

// GET /v1/transactions?page=&page_size=
func listTransactionsHandler(reg *service.Register) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, pageSize := parsePagination(r)
		writeJSON(w, http.StatusOK, domain.Paginate(reg.Transactions(), page, pageSize))
	}
}

// GET /v1/transactions/{nsu}
//
// ?format=summary renders the receipt text instead of JSON.
func getTransactionHandler(reg *service.Register, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := reg.Transaction(chi.URLParam(r, "nsu"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if r.URL.Query().Get("format") == "summary" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(entry.Result.Summary()))
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}
