package receipt

import (
	"github.com/pkg/errors"
)

var (
	// ErrMissingField indicates a required attribute is absent from the receipt.
	ErrMissingField = errors.New("required field missing")

	// ErrMalformedAttribute indicates an attribute that is not a
	// SEQUENCE{INTEGER, INTEGER, OCTET STRING}.
	ErrMalformedAttribute = errors.New("malformed receipt attribute")

	// ErrDataObjectIdentifierMissing indicates the envelope holds no PKCS#7
	// data content.
	ErrDataObjectIdentifierMissing = errors.New("pkcs7 data object identifier missing")
)

// FieldError reports the attribute a receipt could not be built from.
// Err is ErrMissingField when the attribute is absent, otherwise the
// decoding failure.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
