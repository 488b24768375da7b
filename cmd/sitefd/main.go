package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/config"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/handler"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/infra/cache"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/infra/observability"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/infra/terminal"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/port"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/service"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/sitef"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("terminal_mode", cfg.TerminalMode),
		zap.String("terminal_bridge_url", cfg.TerminalBridgeURL),
		zap.Duration("terminal_http_timeout", cfg.TerminalHTTPTimeout),
		zap.Int("user_input_timeout", cfg.Merchant().UserInputTimeout),
		zap.Duration("ledger_ttl", cfg.LedgerTTL),
		zap.Duration("pending_timeout", cfg.PendingTimeout()),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)
	if cfg.MerchantTaxID == "" || cfg.ISVTaxID == "" {
		logger.Warn("merchant or ISV tax id not configured; the terminal will reject messages")
	}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.TracingEndpoint(), "sitef-terminal-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Terminal transport ---
	signer := terminal.NewSigner(cfg.TerminalSecret, cfg.TerminalJWTTTL)

	var transport port.TerminalTransport
	var simulator *terminal.Simulator

	switch cfg.TerminalMode {
	case config.TerminalModeHTTP:
		cb := resilience.NewCircuitBreaker("terminal-bridge", resilience.Config{
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state change",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
		httpClient := &http.Client{Timeout: cfg.TerminalHTTPTimeout}
		transport = terminal.NewHTTPBridge(httpClient, cfg.TerminalBridgeURL, cb, signer, logger)
		logger.Info("using HTTP terminal bridge", zap.String("url", cfg.TerminalBridgeURL))
	default:
		simulator = terminal.NewSimulator(cfg.SimulatorDelay, logger)
		transport = simulator
		logger.Warn("using terminal simulator: every payment is approved",
			zap.Duration("delay", cfg.SimulatorDelay),
		)
	}

	// --- Services ---
	codec := sitef.NewCodec(logger, metrics.IncrParseError)
	orchestrator := service.NewOrchestrator(transport, cfg.Merchant(), codec, metrics, logger)
	ledger := cache.New[domain.LedgerEntry](cfg.LedgerTTL)
	register := service.NewRegister(orchestrator, ledger, logger,
		service.WithPendingTimeout(cfg.PendingTimeout()),
	)
	if simulator != nil {
		simulator.SetSink(register)
	}

	// --- Router ---
	router := handler.NewRouter(register, signer, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Run until signalled ---
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return ledger.Run(gCtx, time.Minute)
	})

	g.Go(func() error {
		return register.Run(gCtx, time.Second)
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if pending := register.Status().Pending; pending != nil {
			logger.Warn("shutting down with an attempt awaiting the terminal",
				zap.String("attempt_id", pending.ID),
				zap.String("operation", string(pending.Operation)),
			)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}

	logger.Info("server stopped")
}
