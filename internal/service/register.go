package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/port"

	"go.uber.org/zap"
)

// Register is the caller side of the orchestrator: it owns the single
// in-flight slot, keeps approved transactions for listing and cancellation,
// and records how the last attempt ended.
type Register struct {
	orch   *Orchestrator
	ledger port.Cache[domain.LedgerEntry]
	slot   *resilience.Bulkhead
	logger *zap.Logger
	now    func() time.Time
	// pendingTimeout bounds how long an attempt may await the terminal.
	pendingTimeout time.Duration

	// handoff is held while a message is handed to the transport, so a
	// return that races the hand-off waits until the attempt is recorded.
	handoff sync.Mutex

	mu      sync.Mutex
	pending *domain.Attempt
	// cancelTarget is the ledger key of the transaction being cancelled.
	cancelTarget string
	last         *domain.Outcome
}

// RegisterStatus is the body of GET /v1/terminal/status.
type RegisterStatus struct {
	domain.TerminalStatus
	// Busy is true from the moment a request takes the slot until its
	// outcome is recorded, including the hand-off itself.
	Busy         bool            `json:"busy"`
	LastOutcome  *domain.Outcome `json:"last_outcome,omitempty"`
	Transactions int             `json:"transactions"`
}

// DefaultPendingTimeout is the default user-input timeout plus a margin for
// the terminal to report back.
const DefaultPendingTimeout = time.Duration(domain.DefaultUserInputTimeout)*time.Second + 30*time.Second

// RegisterOption customizes a Register.
type RegisterOption func(*Register)

// WithRegisterClock overrides time.Now.
func WithRegisterClock(now func() time.Time) RegisterOption {
	return func(r *Register) { r.now = now }
}

// WithPendingTimeout sets how long an attempt may await the terminal before
// it is failed. d <= 0 disables expiry.
func WithPendingTimeout(d time.Duration) RegisterOption {
	return func(r *Register) { r.pendingTimeout = d }
}

// NewRegister wires a register around orch.
func NewRegister(orch *Orchestrator, ledger port.Cache[domain.LedgerEntry], logger *zap.Logger, opts ...RegisterOption) *Register {
	r := &Register{
		orch:           orch,
		ledger:         ledger,
		slot:           resilience.NewBulkhead(1),
		logger:         logger,
		now:            time.Now,
		pendingTimeout: DefaultPendingTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Pay starts a payment. It fails fast with *domain.ErrTerminalBusy while
// another attempt awaits the terminal; validation and dispatch failures are
// returned directly.
func (r *Register) Pay(ctx context.Context, req domain.PaymentRequest) (*domain.Attempt, error) {
	r.ExpireStale(ctx)
	if !r.slot.TryAcquire() {
		return nil, r.busy()
	}

	var syncErr error
	r.handoff.Lock()
	attempt := r.orch.Pay(ctx, req, port.CallbackFuncs{
		Failure: func(err error) { syncErr = err },
	})
	if attempt != nil {
		r.track(attempt, "")
	}
	r.handoff.Unlock()

	if attempt == nil {
		r.finish(domain.OperationPay, "", nil, syncErr)
		return nil, syncErr
	}
	return attempt, nil
}

// Cancel starts the cancellation of a ledger transaction.
func (r *Register) Cancel(ctx context.Context, nsu string) (*domain.Attempt, error) {
	entry, ok := r.ledger.Get(nsu)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: nsu}
	}
	if fromDesc := domain.CancelMethodForDescription(entry.Result.PaymentMethodDescription); fromDesc != entry.Method.Cancellation() {
		r.logger.Warn("terminal description disagrees with the paid method",
			zap.String("nsu", nsu),
			zap.String("method", string(entry.Method)),
			zap.String("description", entry.Result.PaymentMethodDescription),
			zap.String("cancel_method", string(fromDesc)),
		)
	}
	r.ExpireStale(ctx)
	if !r.slot.TryAcquire() {
		return nil, r.busy()
	}

	var syncErr error
	r.handoff.Lock()
	attempt := r.orch.Cancel(ctx, entry.Result, port.CallbackFuncs{
		Failure: func(err error) { syncErr = err },
	})
	if attempt != nil {
		r.track(attempt, nsu)
	}
	r.handoff.Unlock()

	if attempt == nil {
		r.finish(domain.OperationCancel, "", nil, syncErr)
		return nil, syncErr
	}
	return attempt, nil
}

// Deliver implements port.ReturnSink. A return completes the pending attempt
// only when attemptID names it; anything else is rejected with
// *domain.ErrAttemptMismatch and changes nothing.
func (r *Register) Deliver(ctx context.Context, attemptID string, code domain.ResultCode, msg domain.Message) error {
	r.handoff.Lock()
	r.mu.Lock()
	attempt, target := r.pending, r.cancelTarget
	if attempt == nil || attempt.ID != attemptID {
		r.mu.Unlock()
		r.handoff.Unlock()

		err := &domain.ErrAttemptMismatch{AttemptID: attemptID}
		if attempt != nil {
			err.PendingID = attempt.ID
		}
		r.logger.Warn("terminal return rejected",
			zap.String("attempt_id", attemptID),
			zap.String("pending_id", err.PendingID),
			zap.Int("result_code", int(code)),
		)
		return err
	}
	r.pending, r.cancelTarget = nil, ""
	r.mu.Unlock()
	r.handoff.Unlock()

	r.settle(ctx, attempt, target, code, msg)
	return nil
}

// ExpireStale fails the pending attempt once it has awaited the terminal for
// longer than the pending timeout. It reports whether an attempt was expired.
func (r *Register) ExpireStale(ctx context.Context) bool {
	if r.pendingTimeout <= 0 {
		return false
	}

	r.handoff.Lock()
	r.mu.Lock()
	attempt, target := r.pending, r.cancelTarget
	if attempt == nil || r.now().Before(attempt.StartedAt.Add(r.pendingTimeout)) {
		r.mu.Unlock()
		r.handoff.Unlock()
		return false
	}
	r.pending, r.cancelTarget = nil, ""
	r.mu.Unlock()
	r.handoff.Unlock()

	r.logger.Warn("attempt expired awaiting the terminal",
		zap.String("attempt_id", attempt.ID),
		zap.String("operation", string(attempt.Operation)),
		zap.Duration("timeout", r.pendingTimeout),
	)
	r.settle(ctx, attempt, target, domain.ResultCanceled, domain.Message{
		domain.KeyErrorMessage: domain.MsgTerminalTimeout,
	})
	return true
}

// Run expires stale attempts every interval until ctx is done.
func (r *Register) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.ExpireStale(ctx)
		}
	}
}

// settle hands a return for attempt to the orchestrator and applies the
// outcome to the ledger.
func (r *Register) settle(ctx context.Context, attempt *domain.Attempt, target string, code domain.ResultCode, msg domain.Message) {
	r.orch.HandleReturn(ctx, code, msg, port.CallbackFuncs{
		Success: func(result domain.PaymentResult) {
			if attempt.Operation == domain.OperationCancel {
				r.forget(target)
			} else {
				r.remember(attempt.Method, result)
			}
			r.finish(attempt.Operation, attempt.ID, &result, nil)
		},
		Failure: func(err error) {
			r.finish(attempt.Operation, attempt.ID, nil, err)
		},
	})
}

// Transactions lists the ledger, newest first.
func (r *Register) Transactions() []domain.LedgerEntry {
	entries := r.ledger.Values()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ApprovedAt.After(entries[j].ApprovedAt)
	})
	return entries
}

// Transaction returns one ledger entry by NSU.
func (r *Register) Transaction(nsu string) (domain.LedgerEntry, error) {
	entry, ok := r.ledger.Get(nsu)
	if !ok {
		return domain.LedgerEntry{}, &domain.ErrNotFound{Resource: "transaction", ID: nsu}
	}
	return entry, nil
}

// Status combines the orchestrator snapshot with the last outcome.
func (r *Register) Status() RegisterStatus {
	r.mu.Lock()
	var last *domain.Outcome
	if r.last != nil {
		o := *r.last
		last = &o
	}
	r.mu.Unlock()

	return RegisterStatus{
		TerminalStatus: r.orch.Status(),
		Busy:           r.slot.InUse() > 0,
		LastOutcome:    last,
		Transactions:   len(r.ledger.Values()),
	}
}

func (r *Register) busy() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := ""
	if r.pending != nil {
		id = r.pending.ID
	}
	return &domain.ErrTerminalBusy{PendingID: id}
}

func (r *Register) track(attempt *domain.Attempt, cancelTarget string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = attempt
	r.cancelTarget = cancelTarget
}

func (r *Register) remember(method domain.PaymentMethod, result domain.PaymentResult) {
	key := strings.TrimSpace(result.SitefTransactionID)
	if key == "" {
		key = result.InvoiceNumber
	}
	r.ledger.Set(key, domain.LedgerEntry{
		NSU:        key,
		Method:     method,
		Result:     result,
		ApprovedAt: r.now(),
	})
	r.logger.Debug("transaction stored", zap.String("nsu", key))
}

func (r *Register) forget(nsu string) {
	if nsu == "" {
		return
	}
	r.ledger.Delete(nsu)
	r.logger.Info("transaction removed after cancellation", zap.String("nsu", nsu))
}

// finish records the outcome and frees the slot.
func (r *Register) finish(op domain.Operation, attemptID string, result *domain.PaymentResult, err error) {
	outcome := &domain.Outcome{
		AttemptID:  attemptID,
		Operation:  op,
		Approved:   err == nil,
		Result:     result,
		FinishedAt: r.now(),
	}
	if err != nil {
		outcome.Error = err.Error()
	}

	r.mu.Lock()
	r.last = outcome
	r.mu.Unlock()
	r.slot.Release()
}
