package domain

import "fmt"

// Error types for the terminal adapter. Messages are the texts shown to the
// operator at the register.

const (
	MsgInvalidAmount          = "Valor inválido para transação"
	MsgUnsupportedMethod      = "Método de pagamento não suportado"
	MsgInsufficientCancelData = "Transação não pode ser cancelada - dados insuficientes"
	MsgTransactionCancelled   = "Transação cancelada pelo usuário"
	MsgTransactionNoData      = "Transação finalizada sem dados de retorno"
	MsgTransactionFailed      = "Falha na transação SiTef"
	MsgJSONParsing            = "Erro ao processar dados da transação"
	MsgTerminalTimeout        = "Tempo esgotado aguardando resposta do terminal"
)

// ErrInvalidAmount indicates a payment amount of zero or less.
type ErrInvalidAmount struct {
	AmountCents int64
}

func (e *ErrInvalidAmount) Error() string {
	return MsgInvalidAmount
}

// ErrUnsupportedMethod indicates a method without a code for the requested
// operation, e.g. a cancellation variant passed to Pay.
type ErrUnsupportedMethod struct {
	Method    PaymentMethod
	Operation Operation
}

func (e *ErrUnsupportedMethod) Error() string {
	if e.Method == "" {
		return MsgUnsupportedMethod
	}
	return fmt.Sprintf("%s: %s (%s)", MsgUnsupportedMethod, e.Method, e.Operation)
}

// ErrInsufficientCancelData indicates a result with neither an NSU nor a
// returned-fields payload to cancel against.
type ErrInsufficientCancelData struct{}

func (e *ErrInsufficientCancelData) Error() string {
	return MsgInsufficientCancelData
}

// ErrTransactionCancelled indicates the terminal did not approve and gave no reason.
type ErrTransactionCancelled struct {
	ResultCode ResultCode
}

func (e *ErrTransactionCancelled) Error() string {
	return MsgTransactionCancelled
}

// ErrTerminalRejected indicates non-approval with a terminal-supplied message.
type ErrTerminalRejected struct {
	ResultCode ResultCode
	Message    string
}

func (e *ErrTerminalRejected) Error() string {
	return e.Message
}

// ErrTransactionNoData indicates approval without a returned payload.
type ErrTransactionNoData struct{}

func (e *ErrTransactionNoData) Error() string {
	return MsgTransactionNoData
}

// ErrTransactionFailed indicates a defect while composing or handing off a message.
type ErrTransactionFailed struct {
	Operation Operation
	Err       error
}

func (e *ErrTransactionFailed) Error() string {
	if e.Err == nil {
		return MsgTransactionFailed
	}
	return fmt.Sprintf("%s: %v", MsgTransactionFailed, e.Err)
}

func (e *ErrTransactionFailed) Unwrap() error {
	return e.Err
}

// ErrJSONParsing indicates a malformed returned-fields or autoFields document.
// It is logged, never reported to the caller as a failure of the attempt.
type ErrJSONParsing struct {
	Field string
	Err   error
}

func (e *ErrJSONParsing) Error() string {
	return fmt.Sprintf("%s [%s]: %v", MsgJSONParsing, e.Field, e.Err)
}

func (e *ErrJSONParsing) Unwrap() error {
	return e.Err
}

// ============================================================
// Host-side errors
// ============================================================

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrTerminalBusy indicates a message is already waiting on the terminal.
type ErrTerminalBusy struct {
	PendingID string
}

func (e *ErrTerminalBusy) Error() string {
	return fmt.Sprintf("terminal busy: attempt %s still awaiting return", e.PendingID)
}

// ErrAttemptMismatch indicates a terminal return that does not belong to the
// attempt awaiting the terminal. PendingID is empty when nothing is pending.
type ErrAttemptMismatch struct {
	AttemptID string
	PendingID string
}

func (e *ErrAttemptMismatch) Error() string {
	if e.PendingID == "" {
		return fmt.Sprintf("no attempt awaiting the terminal (return for %q)", e.AttemptID)
	}
	return fmt.Sprintf("return for attempt %q does not match pending attempt %s", e.AttemptID, e.PendingID)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}
