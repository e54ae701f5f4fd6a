package ber

import (
	"encoding/asn1"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/takimoto3/iap-receipt/isodate"
)

var (
	// ErrUnexpectedType indicates a container was read as a type its
	// identifier does not hold.
	ErrUnexpectedType = errors.New("ber: unexpected type")

	// ErrIntegerOverflow indicates an INTEGER too wide for the requested Go type.
	ErrIntegerOverflow = errors.New("ber: integer overflow")

	// ErrInvalidString indicates a string payload that is not valid UTF-8.
	ErrInvalidString = errors.New("ber: invalid string")
)

func (c *Container) expect(ids ...Identifier) error {
	got := c.Identifier()
	for _, id := range ids {
		if got == id && c.Encoding == Primitive {
			return nil
		}
	}
	return fmt.Errorf("%w: want %v, got %s %s", ErrUnexpectedType, ids, c.Encoding, got)
}

// Int64 reads an INTEGER as big-endian two's complement.
func (c *Container) Int64() (int64, error) {
	if err := c.expect(Integer); err != nil {
		return 0, err
	}
	return twosComplement(c.Payload)
}

// Int reads an INTEGER that fits an int.
func (c *Container) Int() (int, error) {
	v, err := c.Int64()
	if err != nil {
		return 0, err
	}
	if v < math.MinInt || v > math.MaxInt {
		return 0, fmt.Errorf("%w: %d does not fit int", ErrIntegerOverflow, v)
	}
	return int(v), nil
}

func twosComplement(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("%w: empty integer", ErrInsufficientData)
	}
	if len(b) > 8 {
		return 0, fmt.Errorf("%w: %d byte integer", ErrIntegerOverflow, len(b))
	}
	var v int64
	if b[0]&0x80 != 0 {
		v = -1
	}
	for _, x := range b {
		v = v<<8 | int64(x)
	}
	return v, nil
}

// Text reads a UTF8String, IA5String or PrintableString.
func (c *Container) Text() (string, error) {
	if err := c.expect(UTF8String, IA5String, PrintableString); err != nil {
		return "", err
	}
	if !utf8.Valid(c.Payload) {
		return "", fmt.Errorf("%w: %s payload is not UTF-8", ErrInvalidString, c.Identifier())
	}
	return string(c.Payload), nil
}

// Bool reads a single byte BOOLEAN: zero is false, anything else true.
// App Store receipts encode their flags as one byte INTEGERs, which are
// read the same way.
func (c *Container) Bool() (bool, error) {
	if err := c.expect(Boolean, Integer); err != nil {
		return false, err
	}
	if len(c.Payload) != 1 {
		return false, fmt.Errorf("%w: boolean of %d bytes", ErrUnexpectedType, len(c.Payload))
	}
	return c.Payload[0] != 0, nil
}

// Bytes returns the payload of an OCTET STRING unchanged.
func (c *Container) Bytes() ([]byte, error) {
	if err := c.expect(OctetString); err != nil {
		return nil, err
	}
	return c.Payload, nil
}

// Time reads a string-typed container holding an isodate timestamp.
func (c *Container) Time() (time.Time, error) {
	if err := c.expect(UTF8String, IA5String, PrintableString); err != nil {
		return time.Time{}, err
	}
	t, err := isodate.ParseBytes(c.Payload)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", err, c.Payload)
	}
	return t, nil
}

// ObjectIdentifier reads an OBJECT IDENTIFIER. An empty payload yields nil.
func (c *Container) ObjectIdentifier() (asn1.ObjectIdentifier, error) {
	if err := c.expect(ObjectIdentifier); err != nil {
		return nil, err
	}
	return ParseObjectIdentifier(c.Payload), nil
}

// ContentType resolves c as a PKCS#7 content type. Containers that are not
// object identifiers resolve to ContentTypeUnknown.
func (c *Container) ContentType() ContentType {
	oid, err := c.ObjectIdentifier()
	if err != nil {
		return ContentTypeUnknown
	}
	return ResolveContentType(oid)
}
