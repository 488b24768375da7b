package sitef

import (
	"strconv"
	"strings"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"
)

// Normalize builds the caller-visible result from the raw returned message
// and its decoded returnedFields.
func Normalize(raw domain.Message, fields domain.ReturnedFields) domain.PaymentResult {
	invoiceNumber := fields.NSU
	if strings.TrimSpace(invoiceNumber) == "" {
		invoiceNumber = FallbackInvoiceNumber()
	}

	return domain.PaymentResult{
		ResponseCode:             raw.Get(domain.KeyResponseCode),
		TransactionType:          raw.Get(domain.KeyTransactionType),
		InstallmentType:          raw.Get(domain.KeyInstallmentType),
		CashbackAmount:           raw.Get(domain.KeyCashbackAmount),
		AcquirerID:               raw.Get(domain.KeyAcquirerID),
		CardBrand:                raw.Get(domain.KeyCardBrand),
		SitefTransactionID:       raw.Get(domain.KeySitefTransactionID),
		HostTransactionID:        raw.Get(domain.KeyHostTransactionID),
		AuthorizationCode:        raw.Get(domain.KeyAuthCode),
		TransactionInstallments:  raw.Get(domain.KeyInstallments),
		MerchantReceipt:          raw.Get(domain.KeyMerchantReceipt),
		CustomerReceipt:          raw.Get(domain.KeyCustomerReceipt),
		ReturnedFields:           raw.Get(domain.KeyReturnedFields),
		TransactionAmount:        strconv.FormatInt(fields.AmountCents, 10),
		InvoiceNumber:            invoiceNumber,
		InvoiceDate:              ToDDMMYYYY(fields.Date),
		PaymentMethodDescription: fields.Description,
	}
}
