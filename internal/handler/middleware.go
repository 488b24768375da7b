package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/infra/terminal"

	"go.uber.org/zap"
)

type contextKey string

const attemptIDKey contextKey = "attemptID"

// TerminalAuthMiddleware validates the bridge's Bearer token on the returns
// webhook and injects the attempt id it carries into context.
func TerminalAuthMiddleware(signer *terminal.Signer, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Token de autenticação não fornecido")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Formato de token inválido")
				return
			}

			claims, err := signer.Verify(parts[1], terminal.AudienceAdapter)
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), attemptIDKey, claims.AttemptID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AttemptIDFromContext extracts the attempt id the bridge token was bound to.
func AttemptIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(attemptIDKey).(string)
	return v
}
