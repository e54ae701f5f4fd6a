// Package receipt decodes App Store receipts locally, without contacting
// Apple.
//
// A receipt is a PKCS#7 signed-data envelope whose content is an ASN.1 SET
// of attributes. Parser unwraps the envelope with the ber package and builds
// an AppleReceipt. The signature is not verified.
package receipt

import (
	"encoding/base64"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/takimoto3/iap-receipt/ber"
)

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used by Parser. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMaxDepth bounds container nesting while decoding. The default is
// ber.DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxDepth = n
		}
	}
}

// Parser decodes receipts. It is immutable once created and safe for
// concurrent use.
type Parser struct {
	logger   *slog.Logger
	maxDepth int
}

// NewParser creates a Parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		logger:   slog.Default(),
		maxDepth: ber.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse builds an AppleReceipt from the binary (base64 decoded) receipt.
func (p *Parser) Parse(data []byte) (*AppleReceipt, error) {
	set, err := p.ReceiptContainer(data)
	if err != nil {
		return nil, err
	}
	r, err := buildReceipt(set, p.maxDepth)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build receipt")
	}
	return r, nil
}

// ParseBase64 parses a receipt encoded with standard base64, the form
// StoreKit hands receipts to applications in.
func (p *Parser) ParseBase64(s string) (*AppleReceipt, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode base64 receipt")
	}
	return p.Parse(data)
}

// ReceiptHasTransactions reports whether the receipt lists in-app purchases.
// A receipt that cannot be parsed is assumed to have some, so callers fall
// back to the server side validation.
func (p *Parser) ReceiptHasTransactions(data []byte) bool {
	r, err := p.Parse(data)
	if err != nil {
		p.logger.Warn("could not parse receipt, assuming it has transactions", "error", err)
		return true
	}
	p.logger.Debug("receipt parsed", "bundle_id", r.BundleID, "transactions", len(r.InAppPurchases))
	return r.HasTransactions()
}

// Decode decodes the outer envelope without interpreting it.
func (p *Parser) Decode(data []byte) (*ber.Container, error) {
	d := ber.NewDecoder(data)
	d.SetMaxDepth(p.maxDepth)
	c, err := d.Decode()
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode receipt envelope")
	}
	return c, nil
}

// Content returns the bytes of the PKCS#7 data content: the encoded receipt
// attribute SET.
func (p *Parser) Content(data []byte) ([]byte, error) {
	envelope, err := p.Decode(data)
	if err != nil {
		return nil, err
	}
	content := findDataContent(envelope)
	if content == nil {
		return nil, ErrDataObjectIdentifierMissing
	}
	payload, ok := octets(content)
	if !ok {
		return nil, errors.Wrap(ErrDataObjectIdentifierMissing, "data content is not an octet string")
	}
	return payload, nil
}

// ReceiptContainer returns the decoded receipt attribute SET.
func (p *Parser) ReceiptContainer(data []byte) (*ber.Container, error) {
	payload, err := p.Content(data)
	if err != nil {
		return nil, err
	}
	d := ber.NewDecoder(payload)
	d.SetMaxDepth(p.maxDepth)
	set, err := d.Decode()
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode receipt content")
	}
	return set, nil
}

// findDataContent searches depth first for the first object identifier
// naming PKCS#7 data that is followed by a sibling, and returns the first
// child of that sibling (the explicit [0] content wrapper).
func findDataContent(c *ber.Container) *ber.Container {
	for i, child := range c.Children {
		if child.ContentType() == ber.ContentTypeData && i+1 < len(c.Children) {
			if wrapper := c.Children[i+1]; len(wrapper.Children) > 0 {
				return wrapper.Children[0]
			}
		}
		if found := findDataContent(child); found != nil {
			return found
		}
	}
	return nil
}

// octets returns the value of an OCTET STRING. Constructed strings, as
// produced by BER encoders, are concatenated.
func octets(c *ber.Container) ([]byte, bool) {
	if c.Identifier() != ber.OctetString {
		return nil, false
	}
	if !c.IsConstructed() {
		return c.Payload, true
	}
	var out []byte
	for _, child := range c.Children {
		if child.IsEndOfContents() {
			continue
		}
		b, ok := octets(child)
		if !ok {
			return nil, false
		}
		out = append(out, b...)
	}
	return out, true
}
