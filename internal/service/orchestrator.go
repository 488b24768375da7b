package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/infra/observability"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/port"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/sitef"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service/orchestrator")

// Orchestrator drives one payment or cancellation attempt at a time:
// validate, build, hand off to the terminal, then interpret the return.
//
// Only one attempt may await the terminal at once. That is the caller's
// responsibility; the orchestrator records the pending attempt and logs
// violations but never blocks or queues.
type Orchestrator struct {
	transport port.TerminalTransport
	requests  *sitef.RequestBuilder
	cancels   *sitef.CancelBuilder
	codec     *sitef.Codec
	metrics   *observability.Metrics
	logger    *zap.Logger

	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	state   domain.AttemptState
	pending *domain.Attempt
	lastErr string
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator overrides the attempt id generator.
func WithIDGenerator(gen func() string) OrchestratorOption {
	return func(o *Orchestrator) { o.newID = gen }
}

// NewOrchestrator creates the orchestrator with all dependencies injected.
func NewOrchestrator(
	transport port.TerminalTransport,
	merchant domain.MerchantConfig,
	codec *sitef.Codec,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		transport: transport,
		codec:     codec,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
		state:     domain.StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.requests = sitef.NewRequestBuilder(merchant)
	o.cancels = sitef.NewCancelBuilder(merchant, codec, o.now)
	return o
}

// Pay validates req, builds the outbound payment message and hands it to
// the transport. It returns the pending attempt, or nil after reporting the
// failure through cb.
func (o *Orchestrator) Pay(ctx context.Context, req domain.PaymentRequest, cb port.PaymentCallback) *domain.Attempt {
	ctx, span := tracer.Start(ctx, "Orchestrator.Pay")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.method", string(req.Method)),
		attribute.Int64("payment.amount_cents", req.AmountCents),
	)

	cb = callbackOrNop(cb)
	o.begin(domain.OperationPay)

	if req.AmountCents <= 0 {
		o.fail(span, domain.OperationPay, req.Method, &domain.ErrInvalidAmount{AmountCents: req.AmountCents}, cb)
		return nil
	}
	if !req.Method.IsForward() {
		o.fail(span, domain.OperationPay, req.Method, &domain.ErrUnsupportedMethod{Method: req.Method, Operation: domain.OperationPay}, cb)
		return nil
	}

	start := o.now()
	var msg domain.Message
	err := safely(func() (err error) {
		msg, err = o.requests.Build(req, start)
		return err
	})
	if err != nil {
		o.fail(span, domain.OperationPay, req.Method, &domain.ErrTransactionFailed{Operation: domain.OperationPay, Err: err}, cb)
		return nil
	}

	attempt := &domain.Attempt{
		ID:        o.newID(),
		Operation: domain.OperationPay,
		Method:    req.Method,
		StartedAt: start,
	}
	if err := o.dispatch(ctx, attempt, msg); err != nil {
		o.fail(span, domain.OperationPay, req.Method, &domain.ErrTransactionFailed{Operation: domain.OperationPay, Err: err}, cb)
		return nil
	}

	o.metrics.RecordDispatch(domain.OperationPay, o.now().Sub(start))
	o.logger.Info("payment dispatched",
		zap.String("attempt_id", attempt.ID),
		zap.String("method", string(req.Method)),
		zap.Int64("amount_cents", req.AmountCents),
		zap.String("invoice_number", msg.Get(domain.KeyInvoiceNumber)),
	)
	span.SetAttributes(attribute.String("attempt.id", attempt.ID))
	return attempt
}

// Cancel builds the cancellation for a previously approved result and hands
// it to the transport. It returns the pending attempt, or nil after
// reporting the failure through cb.
func (o *Orchestrator) Cancel(ctx context.Context, result domain.PaymentResult, cb port.PaymentCallback) *domain.Attempt {
	ctx, span := tracer.Start(ctx, "Orchestrator.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("sitef.nsu", result.SitefTransactionID))

	cb = callbackOrNop(cb)
	o.begin(domain.OperationCancel)

	if !sitef.CanCancel(result) {
		o.fail(span, domain.OperationCancel, "", &domain.ErrInsufficientCancelData{}, cb)
		return nil
	}

	start := o.now()
	var (
		af  domain.AutoFields
		msg domain.Message
	)
	err := safely(func() (err error) {
		if af, err = o.cancels.Build(result); err != nil {
			return err
		}
		msg, err = o.cancels.Message(af)
		return err
	})
	if err != nil {
		o.fail(span, domain.OperationCancel, af.Method, &domain.ErrTransactionFailed{Operation: domain.OperationCancel, Err: err}, cb)
		return nil
	}

	o.logger.Info("cancellation dispatched",
		zap.String("nsu", af.NSU),
		zap.Int64("amount_cents", af.AmountCents),
		zap.String("date", af.Date),
		zap.String("method", string(af.Method)),
		zap.String("function_id", msg.Get(domain.KeyFunctionID)),
		zap.String("auto_fields", msg.Get(domain.KeyAutoFields)),
	)

	attempt := &domain.Attempt{
		ID:        o.newID(),
		Operation: domain.OperationCancel,
		Method:    af.Method,
		NSU:       af.NSU,
		StartedAt: start,
	}
	if err := o.dispatch(ctx, attempt, msg); err != nil {
		o.fail(span, domain.OperationCancel, af.Method, &domain.ErrTransactionFailed{Operation: domain.OperationCancel, Err: err}, cb)
		return nil
	}

	o.metrics.RecordDispatch(domain.OperationCancel, o.now().Sub(start))
	span.SetAttributes(attribute.String("attempt.id", attempt.ID))
	return attempt
}

// HandleReturn interprets the terminal's answer to the pending attempt and
// invokes exactly one of cb's methods.
func (o *Orchestrator) HandleReturn(ctx context.Context, code domain.ResultCode, msg domain.Message, cb port.PaymentCallback) {
	_, span := tracer.Start(ctx, "Orchestrator.HandleReturn")
	defer span.End()
	span.SetAttributes(attribute.Int("terminal.result_code", int(code)))

	cb = callbackOrNop(cb)
	attempt := o.takePending()

	op, method := domain.OperationPay, domain.PaymentMethod("")
	if attempt != nil {
		op, method = attempt.Operation, attempt.Method
		o.metrics.RecordRoundTrip(op, o.now().Sub(attempt.StartedAt))
		span.SetAttributes(attribute.String("attempt.id", attempt.ID))
	} else {
		o.logger.Warn("terminal return without a pending attempt",
			zap.Int("result_code", int(code)),
		)
	}

	if code != domain.ResultOK {
		var err error
		if text := msg.Get(domain.KeyErrorMessage); text != "" {
			err = &domain.ErrTerminalRejected{ResultCode: code, Message: text}
		} else {
			err = &domain.ErrTransactionCancelled{ResultCode: code}
		}
		o.metrics.IncrReturn(observability.OutcomeCancelled)
		o.complete(span, op, method, err, cb)
		return
	}

	if len(msg) == 0 {
		o.metrics.IncrReturn(observability.OutcomeNoData)
		o.complete(span, op, method, &domain.ErrTransactionNoData{}, cb)
		return
	}

	var result domain.PaymentResult
	if err := safely(func() error {
		result = sitef.Normalize(msg, o.codec.Decode(msg.Get(domain.KeyReturnedFields)))
		return nil
	}); err != nil {
		o.metrics.IncrReturn(observability.OutcomeNoData)
		o.complete(span, op, method, &domain.ErrTransactionFailed{Operation: op, Err: err}, cb)
		return
	}

	o.logger.Info("transaction approved",
		zap.String("operation", string(op)),
		zap.String("nsu", result.SitefTransactionID),
		zap.String("host_nsu", result.HostTransactionID),
		zap.String("authorization_code", result.AuthorizationCode),
		zap.String("response_code", result.ResponseCode),
		zap.String("amount_cents", result.TransactionAmount),
		zap.String("invoice_number", result.InvoiceNumber),
		zap.String("invoice_date", result.InvoiceDate),
		zap.String("card_brand", result.CardBrand),
		zap.String("description", result.PaymentMethodDescription),
	)

	o.metrics.IncrReturn(observability.OutcomeApproved)
	o.mu.Lock()
	o.state = domain.StateSucceeded
	o.lastErr = ""
	o.mu.Unlock()
	cb.OnSuccess(result)
}

// Status returns a snapshot of the orchestrator state.
func (o *Orchestrator) Status() domain.TerminalStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := domain.TerminalStatus{State: o.state, LastErr: o.lastErr}
	if o.pending != nil {
		p := *o.pending
		st.Pending = &p
	}
	return st
}

// ============================================================
// internals
// ============================================================

func (o *Orchestrator) begin(op domain.Operation) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pending != nil {
		o.logger.Warn("attempt started while another awaits the terminal",
			zap.String("operation", string(op)),
			zap.String("pending_id", o.pending.ID),
			zap.String("pending_operation", string(o.pending.Operation)),
		)
	}
	o.state = domain.StateValidating
}

func (o *Orchestrator) dispatch(ctx context.Context, attempt *domain.Attempt, msg domain.Message) error {
	o.mu.Lock()
	o.pending = attempt
	o.state = domain.StateAwaitingTerminal
	o.mu.Unlock()

	if err := o.transport.Dispatch(ctx, attempt.ID, msg); err != nil {
		o.mu.Lock()
		if o.pending == attempt {
			o.pending = nil
		}
		o.mu.Unlock()
		o.metrics.IncrTransportError(transportName(err))
		return err
	}

	o.metrics.IncrAttempt(attempt.Operation, attempt.Method, observability.OutcomeDispatched)
	return nil
}

// transportName labels a dispatch error by the service that produced it.
func transportName(err error) string {
	var circuitErr *domain.ErrCircuitOpen
	if errors.As(err, &circuitErr) {
		return circuitErr.Service
	}
	var extErr *domain.ErrExternalService
	if errors.As(err, &extErr) {
		return extErr.Service
	}
	return "unknown"
}

func (o *Orchestrator) takePending() *domain.Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()

	p := o.pending
	o.pending = nil
	return p
}

// fail reports a failure that happened before the terminal was involved.
func (o *Orchestrator) fail(span trace.Span, op domain.Operation, method domain.PaymentMethod, err error, cb port.PaymentCallback) {
	outcome := observability.OutcomeFailed
	if _, ok := err.(*domain.ErrTransactionFailed); !ok {
		outcome = observability.OutcomeRejected
	}
	o.metrics.IncrAttempt(op, method, outcome)
	o.complete(span, op, method, err, cb)
}

// complete records a failed outcome and reports it.
func (o *Orchestrator) complete(span trace.Span, op domain.Operation, method domain.PaymentMethod, err error, cb port.PaymentCallback) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	o.mu.Lock()
	o.state = domain.StateFailed
	o.lastErr = err.Error()
	o.mu.Unlock()

	o.logger.Warn("attempt failed",
		zap.String("operation", string(op)),
		zap.String("method", string(method)),
		zap.Error(err),
	)
	cb.OnFailure(err)
}

// safely runs fn and turns a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered: %v", r)
		}
	}()
	return fn()
}

func callbackOrNop(cb port.PaymentCallback) port.PaymentCallback {
	if cb == nil {
		return port.CallbackFuncs{}
	}
	return cb
}
