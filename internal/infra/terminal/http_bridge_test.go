package terminal_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/infra/terminal"

	"go.uber.org/zap"
)

const testSecret = "bridge-secret"

func newBridge(t *testing.T, url string) *terminal.HTTPBridge {
	t.Helper()
	cb := resilience.NewCircuitBreaker("terminal-bridge", resilience.Config{
		ConsecutiveFailures: 2,
		OpenTimeout:         time.Minute,
	})
	return terminal.NewHTTPBridge(
		&http.Client{Timeout: 2 * time.Second},
		url+"/",
		cb,
		terminal.NewSigner(testSecret, time.Minute),
		zap.NewNop(),
	)
}

func TestHTTPBridge_PostsSignedIntent(t *testing.T) {
	var (
		gotPath   string
		gotIntent terminal.Intent
		gotClaims *terminal.Claims
	)
	verifier := terminal.NewSigner(testSecret, time.Minute)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims, err := verifier.Verify(token, terminal.AudienceBridge)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		gotClaims = claims
		_ = json.NewDecoder(r.Body).Decode(&gotIntent)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	msg := domain.Message{domain.KeyFunctionID: "122", domain.KeyAmount: "1000"}
	if err := newBridge(t, srv.URL).Dispatch(context.Background(), "att-1", msg); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotPath != "/v1/intents" {
		t.Errorf("expected /v1/intents, got %s", gotPath)
	}
	if gotClaims == nil || gotClaims.AttemptID != "att-1" {
		t.Fatalf("expected token bound to att-1, got %+v", gotClaims)
	}
	if gotIntent.AttemptID != "att-1" || gotIntent.Extras.Get(domain.KeyFunctionID) != "122" {
		t.Errorf("unexpected intent: %+v", gotIntent)
	}
}

func TestHTTPBridge_Non2xxIsExternalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := newBridge(t, srv.URL).Dispatch(context.Background(), "att-1", domain.Message{})

	var extErr *domain.ErrExternalService
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ErrExternalService, got %T: %v", err, err)
	}
}

func TestHTTPBridge_CircuitOpensAfterFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	bridge := newBridge(t, srv.URL)
	for i := 0; i < 2; i++ {
		_ = bridge.Dispatch(context.Background(), "att", domain.Message{})
	}

	err := bridge.Dispatch(context.Background(), "att", domain.Message{})
	var openErr *domain.ErrCircuitOpen
	if !errors.As(err, &openErr) {
		t.Fatalf("expected ErrCircuitOpen, got %T: %v", err, err)
	}
	if calls != 2 {
		t.Errorf("expected the open circuit to short-circuit, server saw %d calls", calls)
	}
}
