// Package ber decodes the subset of ASN.1 BER/DER used by App Store receipts.
//
// A receipt is a PKCS#7 envelope. Decode walks the raw bytes into a tree of
// Containers without interpreting them; scalar values are read on demand with
// the Container accessor methods (Int64, Text, Bool, Bytes, Time,
// ObjectIdentifier).
//
// Only single-byte tags are understood. Lengths may use the short, long or
// indefinite form.
package ber

import "fmt"

// Class represents the top two bits of a tag byte.
type Class byte

const (
	Universal       Class = 0
	Application     Class = 1
	ContextSpecific Class = 2
	Private         Class = 3
)

func (c Class) String() string {
	switch c {
	case Universal:
		return "universal"
	case Application:
		return "application"
	case ContextSpecific:
		return "context-specific"
	case Private:
		return "private"
	}
	return fmt.Sprintf("Class(%d)", byte(c))
}

// Encoding represents bit 6 of a tag byte.
type Encoding byte

const (
	Primitive   Encoding = 0
	Constructed Encoding = 1
)

func (e Encoding) String() string {
	if e == Constructed {
		return "constructed"
	}
	return "primitive"
}

// Identifier is the semantic meaning of the low five tag bits.
type Identifier byte

// Universal identifiers as assigned by X.680. Tag numbers 14 and 15 are
// reserved and map to Unsupported.
const (
	EndOfContents    Identifier = 0
	Boolean          Identifier = 1
	Integer          Identifier = 2
	BitString        Identifier = 3
	OctetString      Identifier = 4
	Null             Identifier = 5
	ObjectIdentifier Identifier = 6
	ObjectDescriptor Identifier = 7
	External         Identifier = 8
	Real             Identifier = 9
	Enumerated       Identifier = 10
	EmbeddedPDV      Identifier = 11
	UTF8String       Identifier = 12
	RelativeOID      Identifier = 13
	Sequence         Identifier = 16
	Set              Identifier = 17
	NumericString    Identifier = 18
	PrintableString  Identifier = 19
	T61String        Identifier = 20
	VideotexString   Identifier = 21
	IA5String        Identifier = 22
	UTCTime          Identifier = 23
	GeneralizedTime  Identifier = 24
	GraphicString    Identifier = 25
	VisibleString    Identifier = 26
	GeneralString    Identifier = 27
	UniversalString  Identifier = 28
	CharacterString  Identifier = 29
	BMPString        Identifier = 30

	Unsupported Identifier = 0xff
)

var identifierNames = map[Identifier]string{
	EndOfContents:    "end-of-contents",
	Boolean:          "boolean",
	Integer:          "integer",
	BitString:        "bit-string",
	OctetString:      "octet-string",
	Null:             "null",
	ObjectIdentifier: "object-identifier",
	ObjectDescriptor: "object-descriptor",
	External:         "external",
	Real:             "real",
	Enumerated:       "enumerated",
	EmbeddedPDV:      "embedded-pdv",
	UTF8String:       "utf8-string",
	RelativeOID:      "relative-oid",
	Sequence:         "sequence",
	Set:              "set",
	NumericString:    "numeric-string",
	PrintableString:  "printable-string",
	T61String:        "t61-string",
	VideotexString:   "videotex-string",
	IA5String:        "ia5-string",
	UTCTime:          "utc-time",
	GeneralizedTime:  "generalized-time",
	GraphicString:    "graphic-string",
	VisibleString:    "visible-string",
	GeneralString:    "general-string",
	UniversalString:  "universal-string",
	CharacterString:  "character-string",
	BMPString:        "bmp-string",
	Unsupported:      "unsupported",
}

func identifierFromTag(tag byte) Identifier {
	id := Identifier(tag)
	if _, ok := identifierNames[id]; !ok {
		return Unsupported
	}
	return id
}

func (id Identifier) String() string {
	if name, ok := identifierNames[id]; ok {
		return name
	}
	return fmt.Sprintf("Identifier(%d)", byte(id))
}

// LengthForm is the encoding used for a length field.
type LengthForm byte

const (
	ShortForm      LengthForm = iota // single byte, value <= 127
	LongForm                         // 0x80|N followed by N big-endian bytes
	IndefiniteForm                   // 0x80, constructed only
)

func (f LengthForm) String() string {
	switch f {
	case ShortForm:
		return "short"
	case LongForm:
		return "long"
	case IndefiniteForm:
		return "indefinite"
	}
	return fmt.Sprintf("LengthForm(%d)", byte(f))
}

// Length is a decoded length field.
//
// For IndefiniteForm, Value is the sum of the bytes used by every child,
// including the end-of-contents marker when one was present.
type Length struct {
	Value     int
	BytesUsed int // bytes taken by the length field itself
	Form      LengthForm
}

// Container is one decoded tag-length-value node.
type Container struct {
	Class    Class
	Encoding Encoding
	Tag      byte // low five bits of the tag byte
	Length   Length
	// Payload holds exactly Length.Value bytes following the header. It
	// aliases the decoded input.
	Payload []byte
	// Children is only populated for constructed containers.
	Children []*Container
}

// Identifier returns the meaning of the container's tag number.
func (c *Container) Identifier() Identifier {
	return identifierFromTag(c.Tag)
}

// IsConstructed reports whether the container holds child containers.
func (c *Container) IsConstructed() bool {
	return c.Encoding == Constructed
}

// IsEndOfContents reports whether c is the 00 00 marker that terminates an
// indefinite-length container.
func (c *Container) IsEndOfContents() bool {
	return c.Class == Universal && c.Encoding == Primitive && c.Tag == byte(EndOfContents) && c.Length.Value == 0
}

// TotalBytesUsed returns the size of the encoded container: one tag byte, the
// length field and the payload.
func (c *Container) TotalBytesUsed() int {
	return 1 + c.Length.BytesUsed + c.Length.Value
}

func (c *Container) String() string {
	name := c.Identifier().String()
	if c.Class != Universal {
		name = fmt.Sprintf("[%d]", c.Tag)
	}
	return fmt.Sprintf("%s %s %s (tag %d, %s length %d, %d children)",
		c.Class, c.Encoding, name, c.Tag, c.Length.Form, c.Length.Value, len(c.Children))
}
