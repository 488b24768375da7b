package domain

import "strings"

// PaymentMethod identifies a SiTef transaction type. Forward variants start a
// payment; cancellation variants reverse a previously approved one.
type PaymentMethod string

const (
	MethodCredit             PaymentMethod = "CREDIT"
	MethodCreditInstallments PaymentMethod = "CREDIT_INSTALLMENTS"
	MethodDebit              PaymentMethod = "DEBIT"
	MethodPix                PaymentMethod = "PIX"

	MethodCreditCancel      PaymentMethod = "CREDIT_CANCEL"
	MethodDebitCancellation PaymentMethod = "DEBIT_CANCELLATION"
	MethodPixCancellation   PaymentMethod = "PIX_CANCELLATION"
)

// Payment-method descriptions echoed back by the terminal in field 101.
const (
	DescCreditSingle       = "Cartão de Crédito à Vista"
	DescCreditInstallments = "Cartão de Crédito Parcelado Administradora"
	DescDebit              = "Cartão de Débito"
	DescDigitalWallet      = "Carteira Digital"
	DescPix                = "PIX"
)

// AllPaymentMethods lists every known variant, forward ones first.
var AllPaymentMethods = []PaymentMethod{
	MethodCredit,
	MethodCreditInstallments,
	MethodDebit,
	MethodPix,
	MethodCreditCancel,
	MethodDebitCancellation,
	MethodPixCancellation,
}

// ForwardCode returns the functionId used to start a payment with m.
// Cancellation variants and unknown values return "".
func (m PaymentMethod) ForwardCode() string {
	switch m {
	case MethodCredit, MethodCreditInstallments:
		return "3"
	case MethodDebit:
		return "2"
	case MethodPix:
		return "122"
	default:
		return ""
	}
}

// CancelCode returns the functionId used to cancel with m.
// Forward variants and unknown values return "".
func (m PaymentMethod) CancelCode() string {
	switch m {
	case MethodCreditCancel:
		return "210"
	case MethodDebitCancellation:
		return "211"
	case MethodPixCancellation:
		return "123"
	default:
		return ""
	}
}

// IsForward reports whether m can start a payment.
func (m PaymentMethod) IsForward() bool { return m.ForwardCode() != "" }

// IsCancellation reports whether m is a cancellation variant.
func (m PaymentMethod) IsCancellation() bool { return m.CancelCode() != "" }

// Cancellation returns the cancellation variant paired with a forward method.
// Cancellation variants map to themselves; anything else falls back to
// MethodCreditCancel, same as CancelMethodForDescription.
func (m PaymentMethod) Cancellation() PaymentMethod {
	switch m {
	case MethodDebit, MethodDebitCancellation:
		return MethodDebitCancellation
	case MethodPix, MethodPixCancellation:
		return MethodPixCancellation
	default:
		return MethodCreditCancel
	}
}

// Description returns the label the terminal uses for a forward method.
func (m PaymentMethod) Description() string {
	switch m {
	case MethodCredit:
		return DescCreditSingle
	case MethodCreditInstallments:
		return DescCreditInstallments
	case MethodDebit:
		return DescDebit
	case MethodPix:
		return DescPix
	default:
		return ""
	}
}

// CancelMethodForDescription maps the free-text description stored in a
// PaymentResult to the cancellation variant. Unknown descriptions fall back
// to MethodCreditCancel.
func CancelMethodForDescription(desc string) PaymentMethod {
	switch desc {
	case DescCreditSingle, DescCreditInstallments:
		return MethodCreditCancel
	case DescDebit:
		return MethodDebitCancellation
	case DescDigitalWallet, DescPix:
		return MethodPixCancellation
	default:
		return MethodCreditCancel
	}
}

// CancelMethodByCode resolves a cancellation functionId back to its variant.
func CancelMethodByCode(code string) (PaymentMethod, bool) {
	for _, m := range AllPaymentMethods {
		if m.IsCancellation() && m.CancelCode() == code {
			return m, true
		}
	}
	return "", false
}

// ParsePaymentMethod accepts a variant name in any case ("pix", "Credit_Installments").
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	name := PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
	for _, m := range AllPaymentMethods {
		if m == name {
			return m, true
		}
	}
	return "", false
}
