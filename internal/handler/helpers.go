package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func parsePagination(r *http.Request) (page, pageSize int) {
	page = 1
	pageSize = 20
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil && ps > 0 && ps <= 100 {
			pageSize = ps
		}
	}
	return
}

// handleServiceError maps domain errors to HTTP responses.
// Transport errors are matched before ErrTransactionFailed, which wraps them.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var invalidAmount *domain.ErrInvalidAmount
	var unsupported *domain.ErrUnsupportedMethod
	var insufficient *domain.ErrInsufficientCancelData
	var busy *domain.ErrTerminalBusy
	var mismatch *domain.ErrAttemptMismatch
	var circuitOpen *domain.ErrCircuitOpen
	var external *domain.ErrExternalService
	var failed *domain.ErrTransactionFailed
	var unauthorized *domain.ErrUnauthorized

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalidAmount):
		logger.Debug("invalid amount", zap.Int64("amount_cents", invalidAmount.AmountCents))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &unsupported):
		logger.Debug("unsupported method",
			zap.String("method", string(unsupported.Method)),
			zap.String("operation", string(unsupported.Operation)),
		)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &insufficient):
		logger.Debug("insufficient cancel data")
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &busy):
		logger.Warn("terminal busy", zap.String("pending_id", busy.PendingID))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &mismatch):
		logger.Warn("terminal return for another attempt",
			zap.String("attempt_id", mismatch.AttemptID),
			zap.String("pending_id", mismatch.PendingID),
		)
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &external):
		logger.Error("terminal transport error", zap.Error(err))
		writeError(w, http.StatusBadGateway, domain.MsgTransactionFailed)
	case errors.As(err, &failed):
		logger.Error("transaction failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, domain.MsgTransactionFailed)
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
