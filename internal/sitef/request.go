package sitef

import (
	"strconv"
	"time"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"
)

// Method-specific extension values understood by the terminal.
const (
	tactilePinEnabled = "true"

	pixEnabledTransactions   = "7;8;"
	pixWalletParameters      = "CarteirasDigitaisHabilitadas=027160110024"
	creditBrandParameters    = "[27;28]"
	installmentBrandParams   = "[26;27]"
	debitTransactionsEnabled = "TransacoesHabilitadas=16"
)

// RequestBuilder composes outbound payment messages for one merchant.
type RequestBuilder struct {
	cfg domain.MerchantConfig
}

// NewRequestBuilder creates a builder bound to cfg.
func NewRequestBuilder(cfg domain.MerchantConfig) *RequestBuilder {
	return &RequestBuilder{cfg: cfg}
}

// Build returns the outbound message for req, stamped with now.
// Methods that cannot start a payment yield *domain.ErrUnsupportedMethod.
func (b *RequestBuilder) Build(req domain.PaymentRequest, now time.Time) (domain.Message, error) {
	req = req.WithDefaults()

	msg := domain.Message{
		domain.KeyAmount:           strconv.FormatInt(req.AmountCents, 10),
		domain.KeyMerchantTaxID:    b.cfg.MerchantTaxID,
		domain.KeyISVTaxID:         b.cfg.ISVTaxID,
		domain.KeyInvoiceNumber:    req.InvoiceNumber,
		domain.KeyInvoiceDate:      InvoiceDate(now),
		domain.KeyInvoiceTime:      InvoiceTime(now),
		domain.KeyUserInputTimeout: strconv.Itoa(b.cfg.Timeout()),
		domain.KeyTactilePinEntry:  tactilePinEnabled,
	}

	if err := applyMethod(msg, req.Method, req.Installments); err != nil {
		return nil, err
	}
	return msg, nil
}

// applyMethod sets functionId and the per-method extension fields.
func applyMethod(msg domain.Message, method domain.PaymentMethod, installments int) error {
	switch method {
	case domain.MethodPix:
		msg[domain.KeyEnabledTransactions] = pixEnabledTransactions
		msg[domain.KeyAdditionalParameters] = pixWalletParameters
	case domain.MethodCredit:
		msg[domain.KeyInstallments] = "1"
		msg[domain.KeyAdditionalParameters] = creditBrandParameters
	case domain.MethodCreditInstallments:
		msg[domain.KeyInstallments] = strconv.Itoa(installments)
		msg[domain.KeyAdditionalParameters] = installmentBrandParams
	case domain.MethodDebit:
		msg[domain.KeyAdditionalParameters] = debitTransactionsEnabled
	default:
		return &domain.ErrUnsupportedMethod{Method: method, Operation: domain.OperationPay}
	}

	msg[domain.KeyFunctionID] = method.ForwardCode()
	return nil
}
