package handler

import (
	"encoding/json"
	"net/http"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// GET /v1/terminal/status
func terminalStatusHandler(reg *service.Register) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, reg.Status())
	}
}

// POST /v1/terminal/returns
func terminalReturnHandler(reg *service.Register, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/terminal/returns")
		defer span.End()

		var ret domain.TerminalReturn
		if err := json.NewDecoder(r.Body).Decode(&ret); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		span.SetAttributes(attribute.Int("terminal.result_code", int(ret.ResultCode)))

		attemptID, bound := ret.AttemptID, AttemptIDFromContext(ctx)
		if attemptID == "" {
			attemptID = bound
		}
		if bound != "" && bound != attemptID {
			handleServiceError(w, &domain.ErrUnauthorized{Message: "token emitido para outra tentativa"}, logger)
			return
		}
		if attemptID == "" {
			writeError(w, http.StatusBadRequest, "attempt_id is required")
			return
		}
		span.SetAttributes(attribute.String("attempt.id", attemptID))

		if err := reg.Deliver(ctx, attemptID, ret.ResultCode, ret.Extras); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, reg.Status())
	}
}
