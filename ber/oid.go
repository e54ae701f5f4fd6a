package ber

import (
	"encoding/asn1"
	"fmt"
	"math"
)

// ContentType is a PKCS#7 content type known to the receipt parser.
type ContentType int

const (
	ContentTypeUnknown ContentType = iota
	ContentTypeData
	ContentTypeSignedData
	ContentTypeEnvelopedData
	ContentTypeSignedAndEnvelopedData
	ContentTypeDigestedData
	ContentTypeEncryptedData
)

// PKCS#7 content type identifiers (RFC 2315, section 14).
var (
	OIDData                   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	OIDSignedData             = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	OIDEnvelopedData          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 3}
	OIDSignedAndEnvelopedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 4}
	OIDDigestedData           = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 5}
	OIDEncryptedData          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 6}
)

var contentTypes = []struct {
	oid asn1.ObjectIdentifier
	ct  ContentType
}{
	{OIDData, ContentTypeData},
	{OIDSignedData, ContentTypeSignedData},
	{OIDEnvelopedData, ContentTypeEnvelopedData},
	{OIDSignedAndEnvelopedData, ContentTypeSignedAndEnvelopedData},
	{OIDDigestedData, ContentTypeDigestedData},
	{OIDEncryptedData, ContentTypeEncryptedData},
}

func (ct ContentType) String() string {
	switch ct {
	case ContentTypeUnknown:
		return "unknown"
	case ContentTypeData:
		return "data"
	case ContentTypeSignedData:
		return "signed-data"
	case ContentTypeEnvelopedData:
		return "enveloped-data"
	case ContentTypeSignedAndEnvelopedData:
		return "signed-and-enveloped-data"
	case ContentTypeDigestedData:
		return "digested-data"
	case ContentTypeEncryptedData:
		return "encrypted-data"
	}
	return fmt.Sprintf("ContentType(%d)", int(ct))
}

// ParseObjectIdentifier decodes the payload of an OBJECT IDENTIFIER.
//
// The first byte holds the first two components (b/40, b%40); the remaining
// bytes are base-128 components, high bit set on every byte but the last.
// An empty payload, a truncated final component or a component that
// overflows an int yields nil.
func ParseObjectIdentifier(payload []byte) asn1.ObjectIdentifier {
	if len(payload) == 0 {
		return nil
	}
	oid := asn1.ObjectIdentifier{int(payload[0] / 40), int(payload[0] % 40)}

	var (
		v       uint64
		pending bool
	)
	for _, b := range payload[1:] {
		if v > math.MaxInt64>>7 {
			return nil
		}
		v = v<<7 | uint64(b&0x7f)
		pending = true
		if b&0x80 == 0 {
			if v > math.MaxInt {
				return nil
			}
			oid = append(oid, int(v))
			v, pending = 0, false
		}
	}
	if pending {
		return nil
	}
	return oid
}

// ResolveContentType maps oid onto the PKCS#7 content types. Any other
// identifier, including nil, resolves to ContentTypeUnknown.
func ResolveContentType(oid asn1.ObjectIdentifier) ContentType {
	for _, known := range contentTypes {
		if oid.Equal(known.oid) {
			return known.ct
		}
	}
	return ContentTypeUnknown
}
