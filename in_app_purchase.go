package receipt

import (
	"time"

	"github.com/pkg/errors"
	"github.com/takimoto3/iap-receipt/ber"
)

// ProductType is the kind of product an in-app purchase is for.
type ProductType int

const (
	ProductTypeUnknown                   ProductType = -1
	ProductTypeNonConsumable             ProductType = 0
	ProductTypeConsumable                ProductType = 1
	ProductTypeNonRenewingSubscription   ProductType = 2
	ProductTypeAutoRenewableSubscription ProductType = 3
)

// ProductTypeFromCode maps a receipt product type code. Codes Apple may add
// later resolve to ProductTypeUnknown.
func ProductTypeFromCode(code int) ProductType {
	switch p := ProductType(code); p {
	case ProductTypeNonConsumable, ProductTypeConsumable,
		ProductTypeNonRenewingSubscription, ProductTypeAutoRenewableSubscription:
		return p
	}
	return ProductTypeUnknown
}

func (p ProductType) String() string {
	switch p {
	case ProductTypeNonConsumable:
		return "non_consumable"
	case ProductTypeConsumable:
		return "consumable"
	case ProductTypeNonRenewingSubscription:
		return "non_renewing_subscription"
	case ProductTypeAutoRenewableSubscription:
		return "auto_renewable_subscription"
	}
	return "unknown"
}

// purchaseExpirationTolerance is how far apart purchase and expiration may
// be and still be considered equal.
const purchaseExpirationTolerance = 5 * time.Second

// InAppPurchase is one entry of the receipt's in-app purchase list.
type InAppPurchase struct {
	Quantity                   int         // ASN.1 Field:1701
	ProductID                  string      // ASN.1 Field:1702
	TransactionID              string      // ASN.1 Field:1703
	OriginalTransactionID      *string     // ASN.1 Field:1705
	ProductType                ProductType // ASN.1 Field:1707
	PurchaseDate               time.Time   // ASN.1 Field:1704
	OriginalPurchaseDate       *time.Time  // ASN.1 Field:1706
	ExpiresDate                *time.Time  // ASN.1 Field:1708
	CancellationDate           *time.Time  // ASN.1 Field:1712
	IsInTrialPeriod            bool        // ASN.1 Field:1713
	IsInIntroOfferPeriod       *bool       // ASN.1 Field:1719
	WebOrderLineItemID         *int64      // ASN.1 Field:1711
	PromotionalOfferIdentifier *string     // ASN.1 Field:1721
}

// IsSubscription reports whether the purchase is for a subscription. Receipts
// created before product types were recorded are treated as subscriptions
// when they carry an expiration date.
func (p *InAppPurchase) IsSubscription() bool {
	switch p.ProductType {
	case ProductTypeNonRenewingSubscription, ProductTypeAutoRenewableSubscription:
		return true
	case ProductTypeUnknown:
		return p.ExpiresDate != nil
	}
	return false
}

// IsActiveSubscription reports whether p is a subscription expiring after now.
func (p *InAppPurchase) IsActiveSubscription() bool {
	return p.IsActiveSubscriptionAt(time.Now())
}

// IsActiveSubscriptionAt reports whether p is a subscription expiring after t.
func (p *InAppPurchase) IsActiveSubscriptionAt(t time.Time) bool {
	return p.IsSubscription() && p.ExpiresDate != nil && p.ExpiresDate.After(t)
}

// PurchaseDateEqualsExpiration reports whether the subscription expires within
// a few seconds of its purchase, which the StoreKit test environment produces
// for expired sandbox subscriptions.
func (p *InAppPurchase) PurchaseDateEqualsExpiration() bool {
	if !p.IsSubscription() || p.ExpiresDate == nil {
		return false
	}
	d := p.ExpiresDate.Sub(p.PurchaseDate)
	if d < 0 {
		d = -d
	}
	return d <= purchaseExpirationTolerance
}

func (p *InAppPurchase) Dump() map[string]any {
	out := map[string]any{
		"Quantity":        p.Quantity,
		"ProductID":       p.ProductID,
		"TransactionID":   p.TransactionID,
		"ProductType":     p.ProductType.String(),
		"PurchaseDate":    p.PurchaseDate,
		"IsInTrialPeriod": p.IsInTrialPeriod,
	}
	if p.OriginalTransactionID != nil {
		out["OriginalTransactionID"] = *p.OriginalTransactionID
	}
	if p.OriginalPurchaseDate != nil {
		out["OriginalPurchaseDate"] = *p.OriginalPurchaseDate
	}
	if p.ExpiresDate != nil {
		out["ExpiresDate"] = *p.ExpiresDate
	}
	if p.CancellationDate != nil {
		out["CancellationDate"] = *p.CancellationDate
	}
	if p.IsInIntroOfferPeriod != nil {
		out["IsInIntroOfferPeriod"] = *p.IsInIntroOfferPeriod
	}
	if p.WebOrderLineItemID != nil {
		out["WebOrderLineItemID"] = *p.WebOrderLineItemID
	}
	if p.PromotionalOfferIdentifier != nil {
		out["PromotionalOfferIdentifier"] = *p.PromotionalOfferIdentifier
	}
	return out
}

// BuildInAppPurchase builds an InAppPurchase from the SET held by an in-app
// purchase attribute.
func BuildInAppPurchase(c *ber.Container) (*InAppPurchase, error) {
	return buildInAppPurchase(c, ber.DefaultMaxDepth)
}

func buildInAppPurchase(c *ber.Container, maxDepth int) (*InAppPurchase, error) {
	attrs, err := parseAttributes(c)
	if err != nil {
		return nil, err
	}
	f := newFields(attrs, maxDepth)

	var p InAppPurchase
	if p.Quantity, err = required(f, Quantity, (*ber.Container).Int); err != nil {
		return nil, err
	}
	if p.ProductID, err = required(f, ProductID, (*ber.Container).Text); err != nil {
		return nil, err
	}
	if p.TransactionID, err = required(f, TransactionID, (*ber.Container).Text); err != nil {
		return nil, err
	}
	if p.PurchaseDate, err = required(f, PurchaseDate, (*ber.Container).Time); err != nil {
		return nil, err
	}
	if p.OriginalTransactionID, err = optional(f, OriginalTransactionID, (*ber.Container).Text); err != nil {
		return nil, err
	}
	if p.OriginalPurchaseDate, err = optionalTime(f, OriginalPurchaseDate); err != nil {
		return nil, err
	}
	if p.ExpiresDate, err = optionalTime(f, ExpiresDate); err != nil {
		return nil, err
	}
	if p.CancellationDate, err = optionalTime(f, CancellationDate); err != nil {
		return nil, err
	}

	p.ProductType = ProductTypeUnknown
	code, err := optional(f, ProductTypeCode, (*ber.Container).Int)
	if err != nil {
		return nil, err
	}
	if code != nil {
		p.ProductType = ProductTypeFromCode(*code)
	}

	trial, err := optional(f, IsInTrialPeriod, (*ber.Container).Bool)
	if err != nil {
		return nil, err
	}
	p.IsInTrialPeriod = trial != nil && *trial

	if p.IsInIntroOfferPeriod, err = optional(f, IsInIntroOfferPeriod, (*ber.Container).Bool); err != nil {
		return nil, err
	}
	if p.WebOrderLineItemID, err = optional(f, WebOrderLineItemID, (*ber.Container).Int64); err != nil {
		return nil, err
	}
	if p.PromotionalOfferIdentifier, err = optional(f, PromotionalOfferIdentifier, (*ber.Container).Text); err != nil {
		return nil, err
	}
	return &p, nil
}

// buildInAppPurchases builds every in-app purchase attribute, in receipt order.
func buildInAppPurchases(attrs []Attribute, f *fields) ([]InAppPurchase, error) {
	var purchases []InAppPurchase
	for _, a := range attrs {
		if a.Type != InApp {
			continue
		}
		set, err := f.value(&a)
		if err != nil {
			return nil, errors.Wrapf(&FieldError{Field: InApp.String(), Err: err}, "in-app purchase %d", len(purchases))
		}
		p, err := buildInAppPurchase(set, f.maxDepth)
		if err != nil {
			return nil, errors.Wrapf(err, "in-app purchase %d", len(purchases))
		}
		purchases = append(purchases, *p)
	}
	return purchases, nil
}
