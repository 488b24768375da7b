package sitef_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/sitef"

	"github.com/stretchr/testify/assert"
)

func TestInvoiceDateTime(t *testing.T) {
	ts := time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)

	assert.Equal(t, "20240305", sitef.InvoiceDate(ts))
	assert.Equal(t, "070809", sitef.InvoiceTime(ts))
}

func TestToDDMMYYYY(t *testing.T) {
	tests := map[string]string{
		"20240315":   "15032024",
		"20251231":   "31122025",
		"":           sitef.UnknownDate,
		"2024031":    sitef.UnknownDate,
		"202403151":  sitef.UnknownDate,
		"2024-03-15": sitef.UnknownDate,
	}
	for in, want := range tests {
		assert.Equal(t, want, sitef.ToDDMMYYYY(in), "input %q", in)
	}
}

func TestFallbackNSU(t *testing.T) {
	assert.Equal(t, "456789", sitef.FallbackNSU(time.UnixMilli(1723456789)))
	assert.Equal(t, "000042", sitef.FallbackNSU(time.UnixMilli(42)))
	assert.Len(t, sitef.FallbackNSU(time.Now()), 6)
}

func TestFallbackInvoiceNumber(t *testing.T) {
	for i := 0; i < 200; i++ {
		n, err := strconv.Atoi(sitef.FallbackInvoiceNumber())
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1000)
		assert.LessOrEqual(t, n, 9999)
	}
}
