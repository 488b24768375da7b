package terminal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/port"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/sitef"

	"go.uber.org/zap"
)

const (
	simulatorTerminal = "SIM00001"
	simulatedCard     = "************0001"
	firstSimulatedNSU = 100000
)

var errNoSink = errors.New("simulator: no return sink registered")

// Simulator stands in for the terminal during development. Every message is
// approved and answered after a fixed delay.
type Simulator struct {
	delay  time.Duration
	logger *zap.Logger
	now    func() time.Time
	seq    atomic.Int64

	mu   sync.RWMutex
	sink port.ReturnSink
}

// NewSimulator creates a simulator answering after delay.
func NewSimulator(delay time.Duration, logger *zap.Logger) *Simulator {
	s := &Simulator{delay: delay, logger: logger, now: time.Now}
	s.seq.Store(firstSimulatedNSU)
	return s
}

// SetSink registers the receiver of simulated returns.
func (s *Simulator) SetSink(sink port.ReturnSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Dispatch schedules the approved answer to msg.
func (s *Simulator) Dispatch(ctx context.Context, attemptID string, msg domain.Message) error {
	s.mu.RLock()
	sink := s.sink
	s.mu.RUnlock()
	if sink == nil {
		return errNoSink
	}

	reply, err := s.Reply(msg)
	if err != nil {
		return err
	}

	s.logger.Info("simulator accepted intent",
		zap.String("attempt_id", attemptID),
		zap.String("function_id", msg.Get(domain.KeyFunctionID)),
		zap.Duration("delay", s.delay),
	)
	time.AfterFunc(s.delay, func() {
		if err := sink.Deliver(context.Background(), attemptID, domain.ResultOK, reply); err != nil {
			s.logger.Warn("simulated return not accepted",
				zap.String("attempt_id", attemptID),
				zap.Error(err),
			)
		}
	})
	return nil
}

// Reply returns the approved return the simulator sends for msg.
func (s *Simulator) Reply(msg domain.Message) (domain.Message, error) {
	functionID := msg.Get(domain.KeyFunctionID)
	if method, ok := domain.CancelMethodByCode(functionID); ok {
		return s.cancelReply(method, msg)
	}
	return s.paymentReply(functionID, msg)
}

func (s *Simulator) paymentReply(functionID string, msg domain.Message) (domain.Message, error) {
	amount, err := strconv.ParseInt(msg.Get(domain.KeyAmount), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("simulator: bad amount %q: %w", msg.Get(domain.KeyAmount), err)
	}

	installments := msg.Get(domain.KeyInstallments)
	var description, card string
	switch functionID {
	case domain.MethodCredit.ForwardCode():
		description, card = domain.MethodCredit.Description(), simulatedCard
		if n, _ := strconv.Atoi(installments); n > 1 {
			description = domain.MethodCreditInstallments.Description()
		}
	case domain.MethodDebit.ForwardCode():
		description, card = domain.MethodDebit.Description(), simulatedCard
	case domain.MethodPix.ForwardCode():
		description = domain.MethodPix.Description()
	default:
		return nil, fmt.Errorf("simulator: unknown functionId %q", functionID)
	}

	now := s.now()
	nsu := s.nextNSU()
	auth := "A" + nsu

	fields := domain.ReturnedFields{
		FunctionID:  functionID,
		Terminal:    simulatorTerminal,
		MaskedCard:  card,
		AmountCents: amount,
		Date:        sitef.InvoiceDate(now),
		Time:        sitef.InvoiceTime(now),
		Description: description,
		NSU:         nsu,
		AuthCode:    auth,
	}

	return domain.Message{
		domain.KeyResponseCode:       "00",
		domain.KeyTransactionType:    functionID,
		domain.KeyInstallmentType:    "0",
		domain.KeyAcquirerID:         "125",
		domain.KeyCardBrand:          "99999",
		domain.KeySitefTransactionID: nsu,
		domain.KeyHostTransactionID:  "H" + nsu,
		domain.KeyAuthCode:           auth,
		domain.KeyInstallments:       installments,
		domain.KeyMerchantReceipt:    "VIA ESTABELECIMENTO\n" + description,
		domain.KeyCustomerReceipt:    "VIA CLIENTE\n" + description,
		domain.KeyReturnedFields:     sitef.EncodeReturnedFields(fields),
	}, nil
}

func (s *Simulator) cancelReply(method domain.PaymentMethod, msg domain.Message) (domain.Message, error) {
	af, err := sitef.DecodeAutoFields(msg.Get(domain.KeyAutoFields))
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}

	now := s.now()
	fields := domain.ReturnedFields{
		FunctionID:  method.CancelCode(),
		Terminal:    simulatorTerminal,
		AmountCents: af.AmountCents,
		Date:        sitef.InvoiceDate(now),
		Time:        sitef.InvoiceTime(now),
		NSU:         af.NSU,
	}

	return domain.Message{
		domain.KeyResponseCode:       "00",
		domain.KeyTransactionType:    method.CancelCode(),
		domain.KeySitefTransactionID: af.NSU,
		domain.KeyReturnedFields:     sitef.EncodeReturnedFields(fields),
	}, nil
}

func (s *Simulator) nextNSU() string {
	return strconv.FormatInt(s.seq.Add(1), 10)
}
