// Package sitef encodes outbound terminal messages and decodes the terminal's
// returns. Everything here is pure: no I/O, no goroutines, no shared state.
package sitef

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// Protocol field codes of the returnedFields sub-map.
const (
	FieldNSU         = "37"
	FieldAuthCode    = "38"
	FieldDescription = "101"
	FieldTimestamp   = "105"
	FieldTerminal    = "1002"
	FieldMaskedCard  = "1003"
	FieldAmount      = "1330"

	fieldFunctionID = "functionId"
)

// Protocol field codes of the cancellation autoFields document.
const (
	AutoFieldAmount = "146"
	AutoFieldDate   = "515"
	AutoFieldNSU    = "516"
	AutoFieldMethod = "formaDePagamento"
)

// timestampLen is the length of field 105 (YYYYMMDDHHMMSS).
const timestampLen = 14

var errNullDocument = errors.New("document is null")

// Codec decodes returned-fields documents. Decode failures are logged and
// handed to onError; callers always get a usable value.
type Codec struct {
	logger  *zap.Logger
	onError func(*domain.ErrJSONParsing)
}

// NewCodec creates a codec. onError may be nil.
func NewCodec(logger *zap.Logger, onError func(*domain.ErrJSONParsing)) *Codec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Codec{logger: logger, onError: onError}
}

// Decode turns the returnedFields JSON into ReturnedFields. It never fails:
// empty input and malformed documents both yield the zero value.
func (c *Codec) Decode(raw string) domain.ReturnedFields {
	if raw == "" {
		return domain.ReturnedFields{}
	}

	fields, err := ParseReturnedFields(raw)
	if err != nil {
		perr := &domain.ErrJSONParsing{Field: domain.KeyReturnedFields, Err: err}
		c.logger.Error("returned fields decode failed",
			zap.Error(perr),
			zap.Int("raw_length", len(raw)),
		)
		if c.onError != nil {
			c.onError(perr)
		}
		return domain.ReturnedFields{}
	}
	return fields
}

// ParseReturnedFields is the strict form of Decode: it reports why a document
// could not be read. On error the returned value is the zero value.
func ParseReturnedFields(raw string) (domain.ReturnedFields, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return domain.ReturnedFields{}, err
	}
	if doc == nil {
		return domain.ReturnedFields{}, errNullDocument
	}

	var date, tm string
	if stamp := []rune(firstValue(doc, FieldTimestamp)); len(stamp) >= timestampLen {
		date, tm = string(stamp[:8]), string(stamp[8:timestampLen])
	}

	amount, err := strconv.ParseInt(firstValue(doc, FieldAmount), 10, 64)
	if err != nil {
		amount = 0
	}

	return domain.ReturnedFields{
		FunctionID:  scalarText(doc[fieldFunctionID]),
		Terminal:    firstValue(doc, FieldTerminal),
		MaskedCard:  firstValue(doc, FieldMaskedCard),
		AmountCents: amount,
		Date:        date,
		Time:        tm,
		Description: firstValue(doc, FieldDescription),
		NSU:         firstValue(doc, FieldNSU),
		AuthCode:    firstValue(doc, FieldAuthCode),
	}, nil
}

// firstValue unwraps the terminal's one-element array convention.
func firstValue(doc map[string]json.RawMessage, code string) string {
	raw, ok := doc[code]
	if !ok {
		return ""
	}
	var values []json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil || len(values) == 0 {
		return ""
	}
	return scalarText(values[0])
}

// scalarText returns a JSON string's content, or the literal text of any other
// non-null value.
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	return string(raw)
}

// EncodeReturnedFields renders f in the terminal's returnedFields shape, each
// field code mapping to a one-element array. Blank fields are omitted.
func EncodeReturnedFields(f domain.ReturnedFields) string {
	doc := map[string]any{}
	put := func(code, value string) {
		if value != "" {
			doc[code] = []string{value}
		}
	}
	if f.FunctionID != "" {
		doc[fieldFunctionID] = f.FunctionID
	}
	put(FieldTerminal, f.Terminal)
	put(FieldMaskedCard, f.MaskedCard)
	put(FieldAmount, strconv.FormatInt(f.AmountCents, 10))
	if f.Date != "" {
		put(FieldTimestamp, f.Date+f.Time)
	}
	put(FieldDescription, f.Description)
	put(FieldNSU, f.NSU)
	put(FieldAuthCode, f.AuthCode)

	b, _ := json.Marshal(doc)
	return string(b)
}

// ============================================================
// autoFields
// ============================================================

// EncodeAutoFields renders the cancellation payload carried in the autoFields key.
func EncodeAutoFields(a domain.AutoFields) string {
	doc := map[string]string{
		AutoFieldAmount: strconv.FormatInt(a.AmountCents, 10),
		AutoFieldNSU:    a.NSU,
		AutoFieldDate:   a.Date,
		AutoFieldMethod: a.Method.CancelCode(),
	}
	// map[string]string always marshals
	b, _ := json.Marshal(doc)
	return string(b)
}

// DecodeAutoFields parses an autoFields document back into AutoFields.
func DecodeAutoFields(raw string) (domain.AutoFields, error) {
	var doc map[string]string
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return domain.AutoFields{}, &domain.ErrJSONParsing{Field: domain.KeyAutoFields, Err: err}
	}

	amount, err := strconv.ParseInt(doc[AutoFieldAmount], 10, 64)
	if err != nil {
		return domain.AutoFields{}, &domain.ErrJSONParsing{
			Field: domain.KeyAutoFields,
			Err:   fmt.Errorf("field %s: %w", AutoFieldAmount, err),
		}
	}

	method, ok := domain.CancelMethodByCode(doc[AutoFieldMethod])
	if !ok {
		return domain.AutoFields{}, &domain.ErrUnsupportedMethod{
			Method:    domain.PaymentMethod(doc[AutoFieldMethod]),
			Operation: domain.OperationCancel,
		}
	}

	return domain.AutoFields{
		AmountCents: amount,
		NSU:         doc[AutoFieldNSU],
		Date:        doc[AutoFieldDate],
		Method:      method,
	}, nil
}
