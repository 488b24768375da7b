package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/infra/observability"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/service"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/sitef"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// --- Mocks ---

type mockTransport struct {
	mu       sync.Mutex
	messages []domain.Message
	ids      []string
	err      error
}

func (m *mockTransport) Dispatch(_ context.Context, attemptID string, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.ids = append(m.ids, attemptID)
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockTransport) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func (m *mockTransport) last() domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil
	}
	return m.messages[len(m.messages)-1]
}

type recordingCallback struct {
	results []domain.PaymentResult
	errs    []error
}

func (c *recordingCallback) OnSuccess(r domain.PaymentResult) { c.results = append(c.results, r) }
func (c *recordingCallback) OnFailure(err error)              { c.errs = append(c.errs, err) }

func (c *recordingCallback) calls() int { return len(c.results) + len(c.errs) }

var (
	testMerchant = domain.MerchantConfig{
		MerchantTaxID:    "12345678000199",
		ISVTaxID:         "98765432000188",
		UserInputTimeout: 60,
	}
	fixedNow = time.Date(2025, 8, 21, 12, 30, 45, 0, time.UTC)
)

const sampleReturnedFields = `{"105":["20250821123045"],"37":["NSU123"],"38":["AUTH123"],"1330":["1000"],"101":["PIX"]}`

func newOrchestrator(tr *mockTransport, logger *zap.Logger) *service.Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := 0
	return service.NewOrchestrator(
		tr,
		testMerchant,
		sitef.NewCodec(logger, nil),
		observability.NewMetrics(),
		logger,
		service.WithClock(func() time.Time { return fixedNow }),
		service.WithIDGenerator(func() string {
			n++
			return "att-" + string(rune('0'+n))
		}),
	)
}

// --- Pay ---

func TestPay_DispatchesEachForwardMethod(t *testing.T) {
	tests := []struct {
		method     domain.PaymentMethod
		functionID string
	}{
		{domain.MethodCredit, "3"},
		{domain.MethodCreditInstallments, "3"},
		{domain.MethodDebit, "2"},
		{domain.MethodPix, "122"},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			tr := &mockTransport{}
			o := newOrchestrator(tr, nil)
			cb := &recordingCallback{}

			attempt := o.Pay(context.Background(), domain.PaymentRequest{AmountCents: 1000, Method: tt.method}, cb)

			if attempt == nil {
				t.Fatalf("expected attempt, got failure %v", cb.errs)
			}
			if cb.calls() != 0 {
				t.Errorf("expected no callback before the terminal returns, got %d", cb.calls())
			}
			if got := tr.last().Get(domain.KeyFunctionID); got != tt.functionID {
				t.Errorf("expected functionId %s, got %s", tt.functionID, got)
			}
			if st := o.Status(); st.State != domain.StateAwaitingTerminal || st.Pending == nil {
				t.Errorf("expected awaiting terminal with pending attempt, got %+v", st)
			}
		})
	}
}

func TestPay_InvalidAmountNeverReachesTransport(t *testing.T) {
	for _, amount := range []int64{0, -1, -1000} {
		tr := &mockTransport{}
		o := newOrchestrator(tr, nil)
		cb := &recordingCallback{}

		if attempt := o.Pay(context.Background(), domain.PaymentRequest{AmountCents: amount, Method: domain.MethodPix}, cb); attempt != nil {
			t.Fatalf("amount %d: expected no attempt", amount)
		}

		var invalid *domain.ErrInvalidAmount
		if len(cb.errs) != 1 || !errors.As(cb.errs[0], &invalid) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, cb.errs)
		}
		if tr.count() != 0 {
			t.Errorf("amount %d: transport should not be called", amount)
		}
		if o.Status().State != domain.StateFailed {
			t.Errorf("expected failed state, got %s", o.Status().State)
		}
	}
}

func TestPay_CancellationMethodIsUnsupported(t *testing.T) {
	tr := &mockTransport{}
	o := newOrchestrator(tr, nil)
	cb := &recordingCallback{}

	o.Pay(context.Background(), domain.PaymentRequest{AmountCents: 1000, Method: domain.MethodPixCancellation}, cb)

	var unsupported *domain.ErrUnsupportedMethod
	if len(cb.errs) != 1 || !errors.As(cb.errs[0], &unsupported) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", cb.errs)
	}
	if tr.count() != 0 {
		t.Error("transport should not be called")
	}
}

func TestPay_TransportErrorIsTransactionFailed(t *testing.T) {
	cause := errors.New("bridge unreachable")
	tr := &mockTransport{err: cause}
	o := newOrchestrator(tr, nil)
	cb := &recordingCallback{}

	o.Pay(context.Background(), domain.PaymentRequest{AmountCents: 1000, Method: domain.MethodDebit}, cb)

	var failed *domain.ErrTransactionFailed
	if len(cb.errs) != 1 || !errors.As(cb.errs[0], &failed) {
		t.Fatalf("expected ErrTransactionFailed, got %v", cb.errs)
	}
	if !errors.Is(cb.errs[0], cause) {
		t.Error("expected the transport error to be wrapped")
	}
	if o.Status().Pending != nil {
		t.Error("pending marker should be cleared after a failed hand-off")
	}
}

func TestPay_TransportErrorCountedByService(t *testing.T) {
	metrics := observability.NewMetrics()
	tr := &mockTransport{err: &domain.ErrCircuitOpen{Service: "terminal-bridge"}}
	o := service.NewOrchestrator(tr, testMerchant, sitef.NewCodec(zap.NewNop(), nil), metrics, zap.NewNop())

	o.Pay(context.Background(), domain.PaymentRequest{AmountCents: 1000, Method: domain.MethodPix}, nil)

	families, err := metrics.Registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != "sitef_transport_errors_total" {
			continue
		}
		m := mf.GetMetric()[0]
		if got := m.GetLabel()[0].GetValue(); got != "terminal-bridge" {
			t.Errorf("expected transport label terminal-bridge, got %s", got)
		}
		if got := m.GetCounter().GetValue(); got != 1 {
			t.Errorf("expected 1 transport error, got %v", got)
		}
		return
	}
	t.Fatal("transport error counter not found")
}

func TestPay_LogsWhenAnotherAttemptIsPending(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	tr := &mockTransport{}
	o := newOrchestrator(tr, zap.New(core))

	req := domain.PaymentRequest{AmountCents: 1000, Method: domain.MethodPix}
	o.Pay(context.Background(), req, nil)
	second := o.Pay(context.Background(), req, nil)

	if second == nil {
		t.Fatal("the orchestrator must not block a second attempt")
	}
	if logs.FilterMessage("attempt started while another awaits the terminal").Len() != 1 {
		t.Errorf("expected a warning about the pending attempt, got %v", logs.All())
	}
}

// --- HandleReturn ---

func TestHandleReturn_ApprovedIsNormalized(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tr := &mockTransport{}
	o := newOrchestrator(tr, zap.New(core))
	o.Pay(context.Background(), domain.PaymentRequest{AmountCents: 1000, Method: domain.MethodPix}, nil)

	cb := &recordingCallback{}
	o.HandleReturn(context.Background(), domain.ResultOK, domain.Message{
		domain.KeyResponseCode:       "00",
		domain.KeySitefTransactionID: "SITEF1",
		domain.KeyAuthCode:           "AUTH123",
		domain.KeyReturnedFields:     sampleReturnedFields,
	}, cb)

	if len(cb.results) != 1 || len(cb.errs) != 0 {
		t.Fatalf("expected one success, got results=%d errs=%v", len(cb.results), cb.errs)
	}
	res := cb.results[0]
	if res.TransactionAmount != "1000" {
		t.Errorf("expected amount 1000, got %s", res.TransactionAmount)
	}
	if res.InvoiceNumber != "NSU123" {
		t.Errorf("expected invoice number NSU123, got %s", res.InvoiceNumber)
	}
	if res.InvoiceDate != "21082025" {
		t.Errorf("expected 21082025, got %s", res.InvoiceDate)
	}
	if res.AuthorizationCode != "AUTH123" {
		t.Errorf("expected AUTH123, got %s", res.AuthorizationCode)
	}
	if o.Status().State != domain.StateSucceeded || o.Status().Pending != nil {
		t.Errorf("unexpected status after approval: %+v", o.Status())
	}
	if logs.FilterMessage("transaction approved").Len() != 1 {
		t.Error("expected a transaction approved audit log")
	}
}

func TestHandleReturn_NonOKWithoutMessageIsCancelled(t *testing.T) {
	o := newOrchestrator(&mockTransport{}, nil)
	cb := &recordingCallback{}

	o.HandleReturn(context.Background(), domain.ResultCanceled, domain.Message{}, cb)

	var cancelled *domain.ErrTransactionCancelled
	if len(cb.errs) != 1 || !errors.As(cb.errs[0], &cancelled) {
		t.Fatalf("expected ErrTransactionCancelled, got %v", cb.errs)
	}
}

func TestHandleReturn_NonOKWithMessageIsRejected(t *testing.T) {
	o := newOrchestrator(&mockTransport{}, nil)
	cb := &recordingCallback{}

	o.HandleReturn(context.Background(), 5, domain.Message{domain.KeyErrorMessage: "Cartão recusado"}, cb)

	var rejected *domain.ErrTerminalRejected
	if len(cb.errs) != 1 || !errors.As(cb.errs[0], &rejected) {
		t.Fatalf("expected ErrTerminalRejected, got %v", cb.errs)
	}
	if rejected.Error() != "Cartão recusado" || rejected.ResultCode != 5 {
		t.Errorf("unexpected rejection: %+v", rejected)
	}
}

func TestHandleReturn_OKWithoutDataIsNoData(t *testing.T) {
	o := newOrchestrator(&mockTransport{}, nil)

	for _, msg := range []domain.Message{nil, {}} {
		cb := &recordingCallback{}
		o.HandleReturn(context.Background(), domain.ResultOK, msg, cb)

		var noData *domain.ErrTransactionNoData
		if len(cb.errs) != 1 || !errors.As(cb.errs[0], &noData) {
			t.Fatalf("expected ErrTransactionNoData, got %v", cb.errs)
		}
	}
}

func TestHandleReturn_MalformedFieldsStillSucceed(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	o := newOrchestrator(&mockTransport{}, zap.New(core))
	cb := &recordingCallback{}

	o.HandleReturn(context.Background(), domain.ResultOK, domain.Message{
		domain.KeyResponseCode:   "00",
		domain.KeyReturnedFields: "{not json",
	}, cb)

	if len(cb.results) != 1 {
		t.Fatalf("expected success with lenient decoding, got %v", cb.errs)
	}
	res := cb.results[0]
	if res.TransactionAmount != "0" || res.InvoiceDate != sitef.UnknownDate {
		t.Errorf("expected zero-value decode, got %+v", res)
	}
	if len(res.InvoiceNumber) != 4 {
		t.Errorf("expected 4-digit fallback invoice number, got %q", res.InvoiceNumber)
	}
	if logs.FilterMessage("returned fields decode failed").Len() != 1 {
		t.Error("expected the decode failure to be logged")
	}
}

// --- Cancel ---

func TestCancel_InsufficientDataNeverReachesTransport(t *testing.T) {
	tr := &mockTransport{}
	o := newOrchestrator(tr, nil)
	cb := &recordingCallback{}

	if attempt := o.Cancel(context.Background(), domain.PaymentResult{TransactionAmount: "1000"}, cb); attempt != nil {
		t.Fatal("expected no attempt")
	}

	var insufficient *domain.ErrInsufficientCancelData
	if len(cb.errs) != 1 || !errors.As(cb.errs[0], &insufficient) {
		t.Fatalf("expected ErrInsufficientCancelData, got %v", cb.errs)
	}
	if tr.count() != 0 {
		t.Error("transport should not be called")
	}
}

func TestCancel_DispatchesAutoFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tr := &mockTransport{}
	o := newOrchestrator(tr, zap.New(core))

	attempt := o.Cancel(context.Background(), domain.PaymentResult{
		SitefTransactionID:       "SITEF1",
		TransactionAmount:        "1000",
		ReturnedFields:           sampleReturnedFields,
		PaymentMethodDescription: domain.DescPix,
	}, nil)
	if attempt == nil {
		t.Fatal("expected attempt")
	}
	if attempt.NSU != "SITEF1" || attempt.Method != domain.MethodPixCancellation {
		t.Errorf("unexpected attempt: %+v", attempt)
	}

	msg := tr.last()
	if msg.Get(domain.KeyFunctionID) != "123" {
		t.Errorf("expected functionId 123, got %s", msg.Get(domain.KeyFunctionID))
	}
	af, err := sitef.DecodeAutoFields(msg.Get(domain.KeyAutoFields))
	if err != nil {
		t.Fatalf("autoFields: %v", err)
	}
	if af.NSU != "SITEF1" || af.AmountCents != 1000 || af.Date != "21082025" {
		t.Errorf("unexpected autoFields: %+v", af)
	}
	if logs.FilterMessage("cancellation dispatched").Len() != 1 {
		t.Error("expected a cancellation dispatched audit log")
	}
}

func TestCancel_TransportErrorIsTransactionFailed(t *testing.T) {
	o := newOrchestrator(&mockTransport{err: errors.New("down")}, nil)
	cb := &recordingCallback{}

	o.Cancel(context.Background(), domain.PaymentResult{SitefTransactionID: "SITEF1"}, cb)

	var failed *domain.ErrTransactionFailed
	if len(cb.errs) != 1 || !errors.As(cb.errs[0], &failed) {
		t.Fatalf("expected ErrTransactionFailed, got %v", cb.errs)
	}
	if failed.Operation != domain.OperationCancel {
		t.Errorf("expected cancel operation, got %s", failed.Operation)
	}
}

func TestStatus_IdleInitially(t *testing.T) {
	st := newOrchestrator(&mockTransport{}, nil).Status()
	if st.State != domain.StateIdle || st.Pending != nil || st.LastErr != "" {
		t.Errorf("unexpected initial status: %+v", st)
	}
}
