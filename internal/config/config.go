package config

import (
	"os"
	"strconv"
	"time"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"
)

// Terminal transport modes.
const (
	TerminalModeHTTP      = "http"
	TerminalModeSimulator = "simulator"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Merchant identification sent with every terminal message
	MerchantTaxID    string
	ISVTaxID         string
	UserInputTimeout int // seconds

	// Terminal transport
	TerminalMode        string
	TerminalBridgeURL   string
	TerminalHTTPTimeout time.Duration
	TerminalSecret      string
	TerminalJWTTTL      time.Duration
	SimulatorDelay      time.Duration

	// Register
	LedgerTTL time.Duration
	// PendingMargin is added to UserInputTimeout to bound how long an
	// attempt may await the terminal.
	PendingMargin time.Duration

	// Observability
	OTLPEndpoint string
	OTELEnabled  bool
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		MerchantTaxID:    getEnv("MERCHANT_TAX_ID", ""),
		ISVTaxID:         getEnv("ISV_TAX_ID", ""),
		UserInputTimeout: getEnvInt("USER_INPUT_TIMEOUT", domain.DefaultUserInputTimeout),

		TerminalMode:        getEnv("TERMINAL_MODE", TerminalModeSimulator),
		TerminalBridgeURL:   getEnv("TERMINAL_BRIDGE_URL", "http://localhost:8085"),
		TerminalHTTPTimeout: getEnvDuration("TERMINAL_HTTP_TIMEOUT", 5*time.Second),
		TerminalSecret:      getEnv("TERMINAL_SHARED_SECRET", "sitef-dev-secret-change-me"),
		TerminalJWTTTL:      getEnvDuration("TERMINAL_JWT_TTL", time.Minute),
		SimulatorDelay:      getEnvDuration("SIMULATOR_DELAY", 2*time.Second),

		LedgerTTL:     getEnvDuration("LEDGER_TTL", 24*time.Hour),
		PendingMargin: getEnvDuration("TERMINAL_PENDING_MARGIN", 30*time.Second),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),
	}
}

// Merchant returns the identification the request builders stamp on messages.
func (c *Config) Merchant() domain.MerchantConfig {
	return domain.MerchantConfig{
		MerchantTaxID:    c.MerchantTaxID,
		ISVTaxID:         c.ISVTaxID,
		UserInputTimeout: domain.MerchantConfig{UserInputTimeout: c.UserInputTimeout}.Timeout(),
	}
}

// PendingTimeout is how long an attempt may await the terminal before the
// register fails it.
func (c *Config) PendingTimeout() time.Duration {
	return time.Duration(c.Merchant().UserInputTimeout)*time.Second + c.PendingMargin
}

// TracingEndpoint is the OTLP endpoint, or "" when tracing is disabled.
func (c *Config) TracingEndpoint() string {
	if !c.OTELEnabled {
		return ""
	}
	return c.OTLPEndpoint
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
