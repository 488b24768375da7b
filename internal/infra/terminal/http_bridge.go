// Package terminal holds the transports that carry outbound messages to the
// SiTef terminal process.
package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("terminal")

const bridgeService = "terminal-bridge"

// Intent is the body posted to the bridge.
type Intent struct {
	AttemptID string         `json:"attempt_id"`
	Extras    domain.Message `json:"extras"`
}

// HTTPBridge hands messages to a companion app on the terminal over HTTP.
// The terminal's answer comes back later on the adapter's returns webhook.
type HTTPBridge struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	signer     *Signer
	logger     *zap.Logger
}

// NewHTTPBridge creates a bridge transport.
func NewHTTPBridge(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, signer *Signer, logger *zap.Logger) *HTTPBridge {
	return &HTTPBridge{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		signer:     signer,
		logger:     logger,
	}
}

// Dispatch posts msg to {baseURL}/v1/intents exactly once; it never retries.
func (b *HTTPBridge) Dispatch(ctx context.Context, attemptID string, msg domain.Message) error {
	ctx, span := tracer.Start(ctx, "HTTPBridge.Dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("attempt.id", attemptID),
		attribute.String("sitef.function_id", msg.Get(domain.KeyFunctionID)),
	)

	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.post(ctx, attemptID, msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.logger.Warn("terminal bridge circuit open", zap.String("attempt_id", attemptID))
			return &domain.ErrCircuitOpen{Service: bridgeService}
		}
		b.logger.Error("terminal bridge dispatch failed",
			zap.String("attempt_id", attemptID),
			zap.Error(err),
		)
		return &domain.ErrExternalService{Service: bridgeService, Err: err}
	}

	b.logger.Debug("intent delivered to terminal bridge", zap.String("attempt_id", attemptID))
	return nil
}

func (b *HTTPBridge) post(ctx context.Context, attemptID string, msg domain.Message) error {
	body, err := json.Marshal(Intent{AttemptID: attemptID, Extras: msg})
	if err != nil {
		return err
	}

	token, err := b.signer.Sign(AudienceBridge, attemptID)
	if err != nil {
		return fmt.Errorf("signing intent: %w", err)
	}

	url := fmt.Sprintf("%s/v1/intents", b.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("terminal bridge returned status %d", resp.StatusCode)
	}
	return nil
}
