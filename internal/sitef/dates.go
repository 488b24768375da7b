package sitef

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const (
	invoiceDateLayout = "20060102"
	invoiceTimeLayout = "150405"

	// UnknownDate tells the terminal the original transaction date is unknown.
	UnknownDate = "00000000"

	fallbackNSULen = 6
)

// InvoiceDate formats t as YYYYMMDD.
func InvoiceDate(t time.Time) string {
	return t.Format(invoiceDateLayout)
}

// InvoiceTime formats t as HHMMSS.
func InvoiceTime(t time.Time) string {
	return t.Format(invoiceTimeLayout)
}

// ToDDMMYYYY reorders a YYYYMMDD date. Anything that is not exactly eight
// characters long becomes UnknownDate.
func ToDDMMYYYY(yyyymmdd string) string {
	if len(yyyymmdd) != 8 {
		return UnknownDate
	}
	return yyyymmdd[6:8] + yyyymmdd[4:6] + yyyymmdd[0:4]
}

// FallbackNSU derives a six-digit NSU from the trailing digits of now in
// Unix milliseconds. Not unique across transactions.
func FallbackNSU(now time.Time) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > fallbackNSULen {
		ms = ms[len(ms)-fallbackNSULen:]
	}
	return strings.Repeat("0", fallbackNSULen-len(ms)) + ms
}

// FallbackInvoiceNumber returns a random number in [1000, 9999] for display
// when the terminal returned no NSU.
func FallbackInvoiceNumber() string {
	return strconv.Itoa(1000 + rand.IntN(9000))
}
