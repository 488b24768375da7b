package observability

import (
	"time"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Outcome labels used by the payment counters.
const (
	OutcomeDispatched = "dispatched"
	OutcomeRejected   = "rejected"
	OutcomeFailed     = "failed"
	OutcomeApproved   = "approved"
	OutcomeCancelled  = "cancelled"
	OutcomeNoData     = "no_data"
)

// Metrics holds all Prometheus metrics for the terminal adapter.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	returns         *prometheus.CounterVec
	parseErrors     *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
	terminalLatency *prometheus.HistogramVec
	transportErrors *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitef_attempts_total",
				Help: "Payment and cancellation attempts by operation, method and outcome.",
			},
			[]string{"operation", "method", "outcome"},
		),
		returns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitef_terminal_returns_total",
				Help: "Terminal returns by outcome.",
			},
			[]string{"outcome"},
		),
		parseErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitef_json_parse_errors_total",
				Help: "Malformed returnedFields/autoFields documents.",
			},
			[]string{"field"},
		),
		dispatchLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitef_dispatch_duration_seconds",
				Help:    "Time to build and hand off an outbound message.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		terminalLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitef_terminal_roundtrip_seconds",
				Help:    "Time between hand-off and terminal return.",
				Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 90, 120},
			},
			[]string{"operation"},
		),
		transportErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitef_transport_errors_total",
				Help: "Failed hand-offs to the terminal transport.",
			},
			[]string{"transport"},
		),
	}
}

// IncrAttempt counts a Pay/Cancel call by how it ended on the core side.
func (m *Metrics) IncrAttempt(op domain.Operation, method domain.PaymentMethod, outcome string) {
	m.attempts.WithLabelValues(string(op), string(method), outcome).Inc()
}

// IncrReturn counts a terminal return by outcome.
func (m *Metrics) IncrReturn(outcome string) {
	m.returns.WithLabelValues(outcome).Inc()
}

// IncrParseError counts a malformed JSON document.
func (m *Metrics) IncrParseError(err *domain.ErrJSONParsing) {
	m.parseErrors.WithLabelValues(err.Field).Inc()
}

// IncrTransportError increments the transport error counter.
func (m *Metrics) IncrTransportError(transport string) {
	m.transportErrors.WithLabelValues(transport).Inc()
}

// RecordDispatch records how long composing and handing off a message took.
func (m *Metrics) RecordDispatch(op domain.Operation, d time.Duration) {
	m.dispatchLatency.WithLabelValues(string(op)).Observe(d.Seconds())
}

// RecordRoundTrip records the terminal round-trip of an attempt.
func (m *Metrics) RecordRoundTrip(op domain.Operation, d time.Duration) {
	m.terminalLatency.WithLabelValues(string(op)).Observe(d.Seconds())
}

// PaymentsSnapshot is the JSON body of GET /v1/metrics/payments.
type PaymentsSnapshot struct {
	Dispatched   float64 `json:"dispatched"`
	Rejected     float64 `json:"rejected"`
	Failed       float64 `json:"failed"`
	Approved     float64 `json:"approved"`
	Cancelled    float64 `json:"cancelled"`
	NoData       float64 `json:"no_data"`
	ParseErrors  float64 `json:"parse_errors"`
	ApprovalRate float64 `json:"approval_rate"`
}

// GetPaymentsSnapshot reads the current counter values across all label sets.
func (m *Metrics) GetPaymentsSnapshot() *PaymentsSnapshot {
	attempts := sumByLabel(m.attempts, "outcome")
	returns := sumByLabel(m.returns, "outcome")
	parse := sumByLabel(m.parseErrors, "field")

	snap := &PaymentsSnapshot{
		Dispatched: attempts[OutcomeDispatched],
		Rejected:   attempts[OutcomeRejected],
		Failed:     attempts[OutcomeFailed],
		Approved:   returns[OutcomeApproved],
		Cancelled:  returns[OutcomeCancelled],
		NoData:     returns[OutcomeNoData],
	}
	for _, v := range parse {
		snap.ParseErrors += v
	}

	answered := snap.Approved + snap.Cancelled + snap.NoData
	if answered > 0 {
		snap.ApprovalRate = snap.Approved / answered
	}
	return snap
}

// sumByLabel collects a CounterVec and sums its values grouped by one label.
func sumByLabel(cv *prometheus.CounterVec, label string) map[string]float64 {
	out := make(map[string]float64)
	ch := make(chan prometheus.Metric)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	for metric := range ch {
		pb := &dto.Metric{}
		if err := metric.Write(pb); err != nil || pb.Counter == nil {
			continue
		}
		for _, lp := range pb.GetLabel() {
			if lp.GetName() == label {
				out[lp.GetValue()] += pb.Counter.GetValue()
			}
		}
	}
	return out
}
