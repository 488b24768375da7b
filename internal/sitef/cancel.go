package sitef

import (
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"
)

// CancelBuilder derives cancellation payloads from stored results.
type CancelBuilder struct {
	cfg   domain.MerchantConfig
	codec *Codec
	now   func() time.Time
}

// NewCancelBuilder creates a builder. now defaults to time.Now.
func NewCancelBuilder(cfg domain.MerchantConfig, codec *Codec, now func() time.Time) *CancelBuilder {
	if now == nil {
		now = time.Now
	}
	return &CancelBuilder{cfg: cfg, codec: codec, now: now}
}

// CanCancel reports whether result carries anything to cancel against.
func CanCancel(result domain.PaymentResult) bool {
	return strings.TrimSpace(result.SitefTransactionID) != "" ||
		strings.TrimSpace(result.ReturnedFields) != ""
}

// Build derives AutoFields from result.
func (b *CancelBuilder) Build(result domain.PaymentResult) (domain.AutoFields, error) {
	if !CanCancel(result) {
		return domain.AutoFields{}, &domain.ErrInsufficientCancelData{}
	}

	fields := b.codec.Decode(result.ReturnedFields)

	amount, err := strconv.ParseInt(strings.TrimSpace(result.TransactionAmount), 10, 64)
	if err != nil {
		amount = 0
	}

	nsu := strings.TrimSpace(result.SitefTransactionID)
	if nsu == "" {
		nsu = strings.TrimSpace(fields.NSU)
	}
	if nsu == "" {
		nsu = FallbackNSU(b.now())
	}

	return domain.AutoFields{
		AmountCents: amount,
		NSU:         nsu,
		Date:        ToDDMMYYYY(fields.Date),
		Method:      domain.CancelMethodForDescription(result.PaymentMethodDescription),
	}, nil
}

// Message wraps af in the outbound cancellation message.
func (b *CancelBuilder) Message(af domain.AutoFields) (domain.Message, error) {
	code := af.Method.CancelCode()
	if code == "" {
		return nil, &domain.ErrUnsupportedMethod{Method: af.Method, Operation: domain.OperationCancel}
	}

	return domain.Message{
		domain.KeyFunctionID:    code,
		domain.KeyMerchantTaxID: b.cfg.MerchantTaxID,
		domain.KeyISVTaxID:      b.cfg.ISVTaxID,
		domain.KeyAutoFields:    EncodeAutoFields(af),
	}, nil
}
