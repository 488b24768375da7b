package domain

import (
	"fmt"
	"strings"
	"time"
)

// Message is the flat key/value payload exchanged with the terminal process.
type Message map[string]string

// Get returns the value for key, or "" when absent.
func (m Message) Get(key string) string {
	if m == nil {
		return ""
	}
	return m[key]
}

// ResultCode is the host activity-result code delivered with a terminal return.
type ResultCode int

const (
	// ResultOK is the approval sentinel. Any other value means non-approval.
	ResultOK       ResultCode = -1
	ResultCanceled ResultCode = 0
)

// DefaultUserInputTimeout is used when the merchant config leaves it unset.
const DefaultUserInputTimeout = 60

// Outbound message keys.
const (
	KeyFunctionID           = "functionId"
	KeyAmount               = "transactionAmount"
	KeyMerchantTaxID        = "merchantTaxId"
	KeyISVTaxID             = "isvTaxId"
	KeyInvoiceNumber        = "invoiceNumber"
	KeyInvoiceDate          = "invoiceDate"
	KeyInvoiceTime          = "invoiceTime"
	KeyUserInputTimeout     = "userInputTimeout"
	KeyTactilePinEntry      = "enableTactilePinEntry"
	KeyInstallments         = "transactionInstallments"
	KeyAdditionalParameters = "functionAdditionalParameters"
	KeyEnabledTransactions  = "enabledTransactions"
	KeyAutoFields           = "autoFields"
)

// Inbound message keys.
const (
	KeyResponseCode       = "responseCode"
	KeyTransactionType    = "transactionType"
	KeyInstallmentType    = "installmentType"
	KeyCashbackAmount     = "cashbackAmount"
	KeyAcquirerID         = "acquirerId"
	KeyCardBrand          = "cardBrand"
	KeySitefTransactionID = "sitefTransactionId"
	KeyHostTransactionID  = "hostTransactionId"
	KeyAuthCode           = "authCode"
	KeyMerchantReceipt    = "merchantReceipt"
	KeyCustomerReceipt    = "customerReceipt"
	KeyReturnedFields     = "returnedFields"
	KeyErrorMessage       = "errorMessage"
)

// ============================================================
// Configuration & requests
// ============================================================

// MerchantConfig identifies the merchant and ISV to the terminal.
type MerchantConfig struct {
	MerchantTaxID    string `json:"merchant_tax_id"`
	ISVTaxID         string `json:"isv_tax_id"`
	UserInputTimeout int    `json:"user_input_timeout"` // seconds
}

// Timeout returns the user-input timeout, falling back to the default.
func (c MerchantConfig) Timeout() int {
	if c.UserInputTimeout <= 0 {
		return DefaultUserInputTimeout
	}
	return c.UserInputTimeout
}

// PaymentRequest is the input of a single Pay call.
type PaymentRequest struct {
	AmountCents   int64         `json:"amount_cents"`
	Method        PaymentMethod `json:"method"`
	InvoiceNumber string        `json:"invoice_number,omitempty"` // defaults to "1"
	Installments  int           `json:"installments,omitempty"`   // defaults to 1
}

// WithDefaults fills the optional fields.
func (r PaymentRequest) WithDefaults() PaymentRequest {
	if strings.TrimSpace(r.InvoiceNumber) == "" {
		r.InvoiceNumber = "1"
	}
	if r.Installments <= 0 {
		r.Installments = 1
	}
	return r
}

// ============================================================
// Terminal data
// ============================================================

// ReturnedFields is the decoded numeric-coded returnedFields sub-map.
type ReturnedFields struct {
	FunctionID  string `json:"function_id"`
	Terminal    string `json:"terminal"`    // 1002
	MaskedCard  string `json:"masked_card"` // 1003
	AmountCents int64  `json:"amount_cents"`
	Date        string `json:"date"`        // YYYYMMDD, from 105
	Time        string `json:"time"`        // HHMMSS, from 105
	Description string `json:"description"` // 101
	NSU         string `json:"nsu"`         // 37
	AuthCode    string `json:"auth_code"`   // 38
}

// PaymentResult is the normalized outcome of an approved terminal return.
type PaymentResult struct {
	ResponseCode             string `json:"response_code"`
	TransactionType          string `json:"transaction_type"`
	InstallmentType          string `json:"installment_type"`
	CashbackAmount           string `json:"cashback_amount"`
	AcquirerID               string `json:"acquirer_id"`
	CardBrand                string `json:"card_brand"`
	SitefTransactionID       string `json:"sitef_transaction_id"`
	HostTransactionID        string `json:"host_transaction_id"`
	AuthorizationCode        string `json:"authorization_code"`
	TransactionInstallments  string `json:"transaction_installments"`
	MerchantReceipt          string `json:"merchant_receipt"`
	CustomerReceipt          string `json:"customer_receipt"`
	ReturnedFields           string `json:"returned_fields"`
	TransactionAmount        string `json:"transaction_amount"` // cents
	InvoiceNumber            string `json:"invoice_number"`
	InvoiceDate              string `json:"invoice_date"` // DDMMYYYY
	PaymentMethodDescription string `json:"payment_method_description"`
}

// Summary renders the result the way the register screen prints it.
func (r PaymentResult) Summary() string {
	na := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "N/A"
		}
		return s
	}
	amount := r.TransactionAmount
	if strings.TrimSpace(amount) == "" {
		amount = "0"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Código de resposta: %s\n", na(r.ResponseCode))
	fmt.Fprintf(&b, "Tipo de transação: %s\n", na(r.TransactionType))
	fmt.Fprintf(&b, "Tipo de parcelamento: %s\n", na(r.InstallmentType))
	fmt.Fprintf(&b, "Cashback: %s\n", na(r.CashbackAmount))
	fmt.Fprintf(&b, "Adquirente: %s\n", na(r.AcquirerID))
	fmt.Fprintf(&b, "Bandeira do cartão: %s\n", na(r.CardBrand))
	fmt.Fprintf(&b, "NSU Sitef: %s\n", na(r.SitefTransactionID))
	fmt.Fprintf(&b, "NSU Host: %s\n", na(r.HostTransactionID))
	fmt.Fprintf(&b, "Código de autorização: %s\n", na(r.AuthorizationCode))
	fmt.Fprintf(&b, "Parcelas da transação: %s\n", na(r.TransactionInstallments))
	fmt.Fprintf(&b, "Valor da transação (centavos): %s\n", amount)
	fmt.Fprintf(&b, "Número do documento: %s\n", na(r.InvoiceNumber))
	fmt.Fprintf(&b, "Data da transação: %s\n", na(r.InvoiceDate))
	fmt.Fprintf(&b, "Campos retornados: %s", na(r.ReturnedFields))
	return b.String()
}

// AutoFields is the cancellation payload derived from a stored PaymentResult.
type AutoFields struct {
	AmountCents int64         `json:"amount_cents"`
	NSU         string        `json:"nsu"`
	Date        string        `json:"date"` // DDMMYYYY, "00000000" when unknown
	Method      PaymentMethod `json:"method"`
}

// ============================================================
// Attempt lifecycle
// ============================================================

// AttemptState is the orchestrator state for the current payment attempt.
type AttemptState string

const (
	StateIdle             AttemptState = "idle"
	StateValidating       AttemptState = "validating"
	StateAwaitingTerminal AttemptState = "awaiting_terminal"
	StateSucceeded        AttemptState = "completed_success"
	StateFailed           AttemptState = "completed_failure"
)

// Operation distinguishes payments from cancellations.
type Operation string

const (
	OperationPay    Operation = "pay"
	OperationCancel Operation = "cancel"
)

// Attempt describes the message handed to the terminal and not yet answered.
type Attempt struct {
	ID        string        `json:"id"`
	Operation Operation     `json:"operation"`
	Method    PaymentMethod `json:"method"`
	NSU       string        `json:"nsu,omitempty"` // cancellations only
	StartedAt time.Time     `json:"started_at"`
}

// TerminalStatus is a point-in-time view of the orchestrator.
type TerminalStatus struct {
	State   AttemptState `json:"state"`
	Pending *Attempt     `json:"pending,omitempty"`
	LastErr string       `json:"last_error,omitempty"`
}

// Outcome records how the most recent attempt ended.
type Outcome struct {
	AttemptID  string         `json:"attempt_id"`
	Operation  Operation      `json:"operation"`
	Approved   bool           `json:"approved"`
	Result     *PaymentResult `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	FinishedAt time.Time      `json:"finished_at"`
}

// LedgerEntry is an approved payment kept for listing and cancellation.
type LedgerEntry struct {
	NSU        string        `json:"nsu"`
	Method     PaymentMethod `json:"method"`
	Result     PaymentResult `json:"result"`
	ApprovedAt time.Time     `json:"approved_at"`
}

// TerminalReturn is the terminal's answer as posted back by the bridge.
type TerminalReturn struct {
	AttemptID  string     `json:"attempt_id,omitempty"`
	ResultCode ResultCode `json:"result_code"`
	Extras     Message    `json:"extras"`
}
