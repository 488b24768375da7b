package observability_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/infra/observability"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter(logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(observability.TracingMiddleware)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/v1/transactions/{nsu}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	return r
}

func TestZapLoggerMiddleware_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := newTestRouter(zap.New(core))

	tests := []struct {
		path  string
		level zapcore.Level
		route string
	}{
		{"/healthz", zapcore.DebugLevel, "/healthz"},
		{"/v1/transactions/123", zapcore.WarnLevel, "/v1/transactions/{nsu}"},
		{"/boom", zapcore.ErrorLevel, "/boom"},
	}

	for _, tt := range tests {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

		entries := logs.TakeAll()
		if len(entries) != 1 {
			t.Fatalf("%s: expected 1 log entry, got %d", tt.path, len(entries))
		}
		if entries[0].Level != tt.level {
			t.Errorf("%s: expected level %s, got %s", tt.path, tt.level, entries[0].Level)
		}
		if got := entries[0].ContextMap()["route"]; got != tt.route {
			t.Errorf("%s: expected route %q, got %v", tt.path, tt.route, got)
		}
	}
}

func TestTracingMiddleware_NamesSpanAfterRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	core, logs := observer.New(zapcore.DebugLevel)
	router := newTestRouter(zap.New(core))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/transactions/654321", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got := spans[0].Name(); got != "GET /v1/transactions/{nsu}" {
		t.Errorf("unexpected span name %q", got)
	}

	entries := logs.TakeAll()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["trace_id"]; got != spans[0].SpanContext().TraceID().String() {
		t.Errorf("expected access log to carry the span trace id, got %v", got)
	}
}

func TestNewLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	logger := observability.NewLogger("loud")
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected debug to be disabled")
	}
	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("expected info to be enabled")
	}
}
