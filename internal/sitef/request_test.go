package sitef_test

import (
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"
	"github.com/boddenberg/sitef-terminal-bfa-go/internal/sitef"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	merchant = domain.MerchantConfig{MerchantTaxID: "12345678000199", ISVTaxID: "98765432000188"}
	buildAt  = time.Date(2025, 8, 21, 12, 30, 45, 0, time.UTC)
)

func TestRequestBuilder_CommonFields(t *testing.T) {
	msg, err := sitef.NewRequestBuilder(merchant).Build(domain.PaymentRequest{
		AmountCents: 1000,
		Method:      domain.MethodDebit,
	}, buildAt)
	require.NoError(t, err)

	assert.Equal(t, "1000", msg[domain.KeyAmount])
	assert.Equal(t, "12345678000199", msg[domain.KeyMerchantTaxID])
	assert.Equal(t, "98765432000188", msg[domain.KeyISVTaxID])
	assert.Equal(t, "1", msg[domain.KeyInvoiceNumber], "invoice number defaults to 1")
	assert.Equal(t, "20250821", msg[domain.KeyInvoiceDate])
	assert.Equal(t, "123045", msg[domain.KeyInvoiceTime])
	assert.Equal(t, "60", msg[domain.KeyUserInputTimeout], "timeout falls back to 60")
	assert.Equal(t, "true", msg[domain.KeyTactilePinEntry])
}

func TestRequestBuilder_PerMethod(t *testing.T) {
	tests := []struct {
		req  domain.PaymentRequest
		want domain.Message
	}{
		{
			domain.PaymentRequest{AmountCents: 1, Method: domain.MethodPix},
			domain.Message{
				domain.KeyFunctionID:           "122",
				domain.KeyEnabledTransactions:  "7;8;",
				domain.KeyAdditionalParameters: "CarteirasDigitaisHabilitadas=027160110024",
			},
		},
		{
			domain.PaymentRequest{AmountCents: 1, Method: domain.MethodCredit, Installments: 6},
			domain.Message{
				domain.KeyFunctionID:           "3",
				domain.KeyInstallments:         "1",
				domain.KeyAdditionalParameters: "[27;28]",
			},
		},
		{
			domain.PaymentRequest{AmountCents: 1, Method: domain.MethodCreditInstallments, Installments: 6},
			domain.Message{
				domain.KeyFunctionID:           "3",
				domain.KeyInstallments:         "6",
				domain.KeyAdditionalParameters: "[26;27]",
			},
		},
		{
			domain.PaymentRequest{AmountCents: 1, Method: domain.MethodDebit},
			domain.Message{
				domain.KeyFunctionID:           "2",
				domain.KeyAdditionalParameters: "TransacoesHabilitadas=16",
			},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.req.Method), func(t *testing.T) {
			msg, err := sitef.NewRequestBuilder(merchant).Build(tt.req, buildAt)
			require.NoError(t, err)
			for k, v := range tt.want {
				assert.Equal(t, v, msg[k], k)
			}
		})
	}
}

func TestRequestBuilder_PixHasNoInstallments(t *testing.T) {
	msg, err := sitef.NewRequestBuilder(merchant).Build(domain.PaymentRequest{AmountCents: 1, Method: domain.MethodPix}, buildAt)
	require.NoError(t, err)

	_, ok := msg[domain.KeyInstallments]
	assert.False(t, ok)
}

func TestRequestBuilder_RejectsCancellationVariants(t *testing.T) {
	for _, m := range []domain.PaymentMethod{
		domain.MethodCreditCancel,
		domain.MethodDebitCancellation,
		domain.MethodPixCancellation,
		domain.PaymentMethod("BOLETO"),
	} {
		_, err := sitef.NewRequestBuilder(merchant).Build(domain.PaymentRequest{AmountCents: 1, Method: m}, buildAt)

		var unsupported *domain.ErrUnsupportedMethod
		assert.True(t, errors.As(err, &unsupported), m)
	}
}
