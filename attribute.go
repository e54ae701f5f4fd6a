package receipt

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/takimoto3/iap-receipt/ber"
)

// AttributeType is the numeric type of a receipt or in-app purchase attribute.
type AttributeType int

// Receipt attributes.
const (
	BundleID                   AttributeType = 2
	ApplicationVersion         AttributeType = 3
	OpaqueValue                AttributeType = 4
	SHA1Hash                   AttributeType = 5
	CreationDate               AttributeType = 12
	InApp                      AttributeType = 17
	OriginalApplicationVersion AttributeType = 19
	ExpirationDate             AttributeType = 21
)

// In-app purchase attributes.
const (
	Quantity                   AttributeType = 1701
	ProductID                  AttributeType = 1702
	TransactionID              AttributeType = 1703
	PurchaseDate               AttributeType = 1704
	OriginalTransactionID      AttributeType = 1705
	OriginalPurchaseDate       AttributeType = 1706
	ProductTypeCode            AttributeType = 1707
	ExpiresDate                AttributeType = 1708
	WebOrderLineItemID         AttributeType = 1711
	CancellationDate           AttributeType = 1712
	IsInTrialPeriod            AttributeType = 1713
	IsInIntroOfferPeriod       AttributeType = 1719
	PromotionalOfferIdentifier AttributeType = 1721
)

var attributeNames = map[AttributeType]string{
	BundleID:                   "bundle_id",
	ApplicationVersion:         "application_version",
	OpaqueValue:                "opaque_value",
	SHA1Hash:                   "sha1_hash",
	CreationDate:               "creation_date",
	InApp:                      "in_app",
	OriginalApplicationVersion: "original_application_version",
	ExpirationDate:             "expiration_date",
	Quantity:                   "quantity",
	ProductID:                  "product_id",
	TransactionID:              "transaction_id",
	PurchaseDate:               "purchase_date",
	OriginalTransactionID:      "original_transaction_id",
	OriginalPurchaseDate:       "original_purchase_date",
	ProductTypeCode:            "product_type",
	ExpiresDate:                "expires_date",
	WebOrderLineItemID:         "web_order_line_item_id",
	CancellationDate:           "cancellation_date",
	IsInTrialPeriod:            "is_trial_period",
	IsInIntroOfferPeriod:       "is_in_intro_offer_period",
	PromotionalOfferIdentifier: "promotional_offer_id",
}

func (t AttributeType) String() string {
	if name, ok := attributeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("attribute(%d)", int(t))
}

// Attribute represents a single SEQUENCE{type, version, value} entry of a
// receipt or in-app purchase set. Value is the OCTET STRING holding the
// DER encoded attribute value.
type Attribute struct {
	Type    AttributeType
	Version int
	Value   *ber.Container
}

// parseAttributes reads every child of set as an attribute, in order.
// End-of-contents markers left by indefinite-length encodings are skipped.
func parseAttributes(set *ber.Container) ([]Attribute, error) {
	if !set.IsConstructed() {
		return nil, errors.Wrapf(ErrMalformedAttribute, "attribute set is %s", set.Encoding)
	}
	attrs := make([]Attribute, 0, len(set.Children))
	for i, c := range set.Children {
		if c.IsEndOfContents() {
			continue
		}
		attr, err := parseAttribute(c)
		if err != nil {
			return nil, errors.Wrapf(err, "attribute %d", i)
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

func parseAttribute(c *ber.Container) (Attribute, error) {
	if c.Identifier() != ber.Sequence || len(c.Children) != 3 {
		return Attribute{}, errors.Wrapf(ErrMalformedAttribute, "want sequence of 3 fields, got %s with %d", c.Identifier(), len(c.Children))
	}
	typ, err := c.Children[0].Int()
	if err != nil {
		return Attribute{}, errors.Wrapf(ErrMalformedAttribute, "type: %v", err)
	}
	version, err := c.Children[1].Int()
	if err != nil {
		return Attribute{}, errors.Wrapf(ErrMalformedAttribute, "version: %v", err)
	}
	value := c.Children[2]
	if value.Identifier() != ber.OctetString || value.IsConstructed() {
		return Attribute{}, errors.Wrapf(ErrMalformedAttribute, "value of %s is %s %s", AttributeType(typ), value.Encoding, value.Identifier())
	}
	return Attribute{Type: AttributeType(typ), Version: version, Value: value}, nil
}

// fields gives keyed access to a parsed attribute set. The first attribute
// of each type wins.
type fields struct {
	byType   map[AttributeType]*Attribute
	maxDepth int
}

func newFields(attrs []Attribute, maxDepth int) *fields {
	f := &fields{byType: make(map[AttributeType]*Attribute, len(attrs)), maxDepth: maxDepth}
	for i := range attrs {
		if _, ok := f.byType[attrs[i].Type]; !ok {
			f.byType[attrs[i].Type] = &attrs[i]
		}
	}
	return f
}

// value decodes the container held by the attribute's OCTET STRING.
func (f *fields) value(a *Attribute) (*ber.Container, error) {
	d := ber.NewDecoder(a.Value.Payload)
	d.SetMaxDepth(f.maxDepth)
	return d.Decode()
}

func (f *fields) raw(t AttributeType) ([]byte, error) {
	a, ok := f.byType[t]
	if !ok {
		return nil, &FieldError{Field: t.String(), Err: ErrMissingField}
	}
	return a.Value.Payload, nil
}

func required[T any](f *fields, t AttributeType, read func(*ber.Container) (T, error)) (T, error) {
	var zero T
	a, ok := f.byType[t]
	if !ok {
		return zero, &FieldError{Field: t.String(), Err: ErrMissingField}
	}
	c, err := f.value(a)
	if err != nil {
		return zero, &FieldError{Field: t.String(), Err: err}
	}
	v, err := read(c)
	if err != nil {
		return zero, &FieldError{Field: t.String(), Err: err}
	}
	return v, nil
}

func optional[T any](f *fields, t AttributeType, read func(*ber.Container) (T, error)) (*T, error) {
	if _, ok := f.byType[t]; !ok {
		return nil, nil
	}
	v, err := required(f, t, read)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// optionalTime is optional for dates. Apple leaves unset dates as empty
// strings, which are treated as absent.
func optionalTime(f *fields, t AttributeType) (*time.Time, error) {
	a, ok := f.byType[t]
	if !ok || len(a.Value.Payload) == 0 {
		return nil, nil
	}
	c, err := f.value(a)
	if err == nil && !c.IsConstructed() && len(c.Payload) == 0 {
		switch c.Identifier() {
		case ber.IA5String, ber.UTF8String, ber.PrintableString:
			return nil, nil
		}
	}
	return optional(f, t, (*ber.Container).Time)
}
