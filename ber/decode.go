package ber

import (
	"errors"
	"fmt"
	"math"
)

// DefaultMaxDepth bounds container nesting. Real receipts nest a handful of
// levels (envelope, signed data, receipt set, attribute, in-app set).
const DefaultMaxDepth = 32

const (
	tagClassShift     = 6
	tagEncodingShift  = 5
	tagNumberMask     = 0x1f
	lengthLongFormBit = 0x80
	lengthValueMask   = 0x7f
	maxLengthBytes    = 8
)

var (
	// ErrInsufficientData indicates fewer bytes remain than a header or a
	// declared length requires.
	ErrInsufficientData = errors.New("ber: insufficient data")

	// ErrUnsupportedLength indicates a length field outside the supported
	// forms: a long form claiming more length bytes than remain or than fit
	// an int, or an indefinite length on a primitive container.
	ErrUnsupportedLength = errors.New("ber: unsupported length")

	// ErrUnsupportedTag indicates a multi-byte (high tag number) tag.
	ErrUnsupportedTag = errors.New("ber: unsupported tag")

	// ErrMaxDepth indicates containers nested deeper than the decoder allows.
	ErrMaxDepth = errors.New("ber: maximum nesting depth exceeded")
)

// Decoder decodes consecutive containers from a byte slice.
// The provided byte slice is not copied: container payloads alias it, so it
// must not be modified while decoded containers are in use.
type Decoder struct {
	data     []byte
	pos      int
	maxDepth int
}

// NewDecoder creates a Decoder reading from data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data, maxDepth: DefaultMaxDepth}
}

// SetMaxDepth changes the nesting limit. Values below 1 restore
// DefaultMaxDepth.
func (d *Decoder) SetMaxDepth(n int) {
	if n < 1 {
		n = DefaultMaxDepth
	}
	d.maxDepth = n
}

// More reports whether unread bytes remain.
func (d *Decoder) More() bool {
	return d.pos < len(d.data)
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.pos
}

// Decode decodes the container starting at the current offset, including all
// of its descendants, and advances past it. On error the offset is left
// unchanged.
func (d *Decoder) Decode() (*Container, error) {
	start := d.pos
	c, err := d.decode(0)
	if err != nil {
		d.pos = start
		return nil, err
	}
	return c, nil
}

// Decode decodes the first container in data. Bytes following it are ignored.
func Decode(data []byte) (*Container, error) {
	return NewDecoder(data).Decode()
}

func (d *Decoder) decode(depth int) (*Container, error) {
	if depth > d.maxDepth {
		return nil, fmt.Errorf("%w: limit %d", ErrMaxDepth, d.maxDepth)
	}
	if len(d.data)-d.pos < 2 {
		return nil, fmt.Errorf("%w: container needs at least 2 bytes, %d remain", ErrInsufficientData, len(d.data)-d.pos)
	}

	tag := d.data[d.pos]
	if tag&tagNumberMask == tagNumberMask {
		return nil, fmt.Errorf("%w: high tag number form at offset %d", ErrUnsupportedTag, d.pos)
	}
	d.pos++

	c := &Container{
		Class:    Class(tag >> tagClassShift),
		Encoding: Encoding((tag >> tagEncodingShift) & 1),
		Tag:      tag & tagNumberMask,
	}

	length, err := d.readLength()
	if err != nil {
		return nil, err
	}

	payloadStart := d.pos
	if length.Form == IndefiniteForm {
		if !c.IsConstructed() {
			return nil, fmt.Errorf("%w: indefinite length on primitive container at offset %d", ErrUnsupportedLength, payloadStart-2)
		}
		c.Children, err = d.decodeUntilEnd(depth + 1)
		if err != nil {
			return nil, err
		}
		length.Value = d.pos - payloadStart
	} else {
		if _, err := d.readN(length.Value); err != nil {
			return nil, fmt.Errorf("%w: declared length %d exceeds %d remaining bytes", ErrInsufficientData, length.Value, len(d.data)-payloadStart)
		}
		if c.IsConstructed() {
			c.Children, err = d.decodeChildren(d.data[payloadStart:d.pos], depth+1)
			if err != nil {
				return nil, err
			}
		}
	}

	end := payloadStart + length.Value
	c.Payload = d.data[payloadStart:end:end]
	c.Length = length
	return c, nil
}

// decodeChildren decodes payload as a series of containers which must
// consume it exactly.
func (d *Decoder) decodeChildren(payload []byte, depth int) ([]*Container, error) {
	sub := &Decoder{data: payload, maxDepth: d.maxDepth}
	var children []*Container
	for sub.More() {
		child, err := sub.decode(depth)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// decodeUntilEnd decodes containers from the remaining input until it is
// exhausted or an end-of-contents marker has been read.
func (d *Decoder) decodeUntilEnd(depth int) ([]*Container, error) {
	var children []*Container
	for d.More() {
		child, err := d.decode(depth)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
		if child.IsEndOfContents() {
			break
		}
	}
	return children, nil
}

// readLength reads a length field. For the indefinite form the returned
// Value is zero and is filled in once the children are decoded.
func (d *Decoder) readLength() (Length, error) {
	b, err := d.readN(1)
	if err != nil {
		return Length{}, fmt.Errorf("%w: missing length", ErrInsufficientData)
	}
	first := b[0]
	if first&lengthLongFormBit == 0 {
		return Length{Value: int(first), BytesUsed: 1, Form: ShortForm}, nil
	}

	n := int(first & lengthValueMask)
	if n == 0 {
		return Length{BytesUsed: 1, Form: IndefiniteForm}, nil
	}
	if n > maxLengthBytes {
		return Length{}, fmt.Errorf("%w: %d length bytes", ErrUnsupportedLength, n)
	}
	lengthBytes, err := d.readN(n)
	if err != nil {
		return Length{}, fmt.Errorf("%w: %d length bytes declared, %d remain", ErrUnsupportedLength, n, len(d.data)-d.pos)
	}

	var v uint64
	for _, lb := range lengthBytes {
		v = v<<8 | uint64(lb)
	}
	if v > math.MaxInt {
		return Length{}, fmt.Errorf("%w: length %d overflows int", ErrUnsupportedLength, v)
	}
	return Length{Value: int(v), BytesUsed: 1 + n, Form: LongForm}, nil
}

// readN returns the next n bytes from the input buffer.
// If insufficient data remains, ErrInsufficientData is returned and the offset
// is not advanced.
func (d *Decoder) readN(n int) ([]byte, error) {
	if n < 0 || n > len(d.data)-d.pos {
		return nil, ErrInsufficientData
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}
