// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"
)

// TerminalTransport hands an outbound message to the terminal process.
// Dispatch returns once the message is accepted; the terminal's answer comes
// back later through the orchestrator's HandleReturn.
type TerminalTransport interface {
	Dispatch(ctx context.Context, attemptID string, msg domain.Message) error
}

// ReturnSink receives terminal returns for a dispatched attempt. Implemented
// by whatever owns the orchestrator (the register, in this service).
type ReturnSink interface {
	Deliver(ctx context.Context, attemptID string, code domain.ResultCode, msg domain.Message) error
}

// PaymentCallback reports the outcome of a payment or cancellation attempt.
type PaymentCallback interface {
	OnSuccess(result domain.PaymentResult)
	OnFailure(err error)
}

// CallbackFuncs adapts two functions to PaymentCallback. Nil funcs are skipped.
type CallbackFuncs struct {
	Success func(domain.PaymentResult)
	Failure func(error)
}

func (c CallbackFuncs) OnSuccess(result domain.PaymentResult) {
	if c.Success != nil {
		c.Success(result)
	}
}

func (c CallbackFuncs) OnFailure(err error) {
	if c.Failure != nil {
		c.Failure(err)
	}
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	Values() []T
}
