package receipt

import (
	"fmt"
	"sort"
	"time"

	"github.com/takimoto3/iap-receipt/ber"
)

// AppleReceipt holds the fields extracted from an App Store receipt.
type AppleReceipt struct {
	BundleID                   string          // ASN.1 Field:2
	ApplicationVersion         string          // ASN.1 Field:3
	OriginalApplicationVersion *string         // ASN.1 Field:19
	OpaqueValue                []byte          // ASN.1 Field:4
	SHA1Hash                   []byte          // ASN.1 Field:5
	CreationDate               time.Time       // ASN.1 Field:12
	ExpirationDate             *time.Time      // ASN.1 Field:21
	InAppPurchases             []InAppPurchase // ASN.1 Field:17
	Unknown                    []Attribute     // ASN.1 Unknown Fields
}

var knownReceiptAttributes = map[AttributeType]bool{
	BundleID:                   true,
	ApplicationVersion:         true,
	OpaqueValue:                true,
	SHA1Hash:                   true,
	CreationDate:               true,
	InApp:                      true,
	OriginalApplicationVersion: true,
	ExpirationDate:             true,
}

// BuildReceipt builds an AppleReceipt from the receipt attribute SET.
// Every in-app purchase attribute is built with BuildInAppPurchase, in
// receipt order. Nothing is returned unless all required fields are present.
func BuildReceipt(c *ber.Container) (*AppleReceipt, error) {
	return buildReceipt(c, ber.DefaultMaxDepth)
}

func buildReceipt(c *ber.Container, maxDepth int) (*AppleReceipt, error) {
	attrs, err := parseAttributes(c)
	if err != nil {
		return nil, err
	}
	f := newFields(attrs, maxDepth)

	var r AppleReceipt
	if r.BundleID, err = required(f, BundleID, (*ber.Container).Text); err != nil {
		return nil, err
	}
	if r.ApplicationVersion, err = required(f, ApplicationVersion, (*ber.Container).Text); err != nil {
		return nil, err
	}
	if r.OpaqueValue, err = f.raw(OpaqueValue); err != nil {
		return nil, err
	}
	if r.SHA1Hash, err = f.raw(SHA1Hash); err != nil {
		return nil, err
	}
	if r.CreationDate, err = required(f, CreationDate, (*ber.Container).Time); err != nil {
		return nil, err
	}
	if r.OriginalApplicationVersion, err = optional(f, OriginalApplicationVersion, (*ber.Container).Text); err != nil {
		return nil, err
	}
	if r.ExpirationDate, err = optionalTime(f, ExpirationDate); err != nil {
		return nil, err
	}
	if r.InAppPurchases, err = buildInAppPurchases(attrs, f); err != nil {
		return nil, err
	}
	for _, a := range attrs {
		if !knownReceiptAttributes[a.Type] {
			r.Unknown = append(r.Unknown, a)
		}
	}
	return &r, nil
}

// HasTransactions reports whether the receipt lists any in-app purchase.
func (r *AppleReceipt) HasTransactions() bool {
	return len(r.InAppPurchases) > 0
}

// ContainsActivePurchase reports whether the receipt unlocks productID: any
// subscription is still active, or productID was bought as a
// non-subscription product.
func (r *AppleReceipt) ContainsActivePurchase(productID string) bool {
	return r.ContainsActivePurchaseAt(productID, time.Now())
}

// ContainsActivePurchaseAt is ContainsActivePurchase evaluated at t.
func (r *AppleReceipt) ContainsActivePurchaseAt(productID string, t time.Time) bool {
	for i := range r.InAppPurchases {
		p := &r.InAppPurchases[i]
		if p.IsActiveSubscriptionAt(t) {
			return true
		}
		if !p.IsSubscription() && p.ProductID == productID {
			return true
		}
	}
	return false
}

// ActiveSubscriptions returns the product identifiers of subscriptions that
// have not expired, sorted.
func (r *AppleReceipt) ActiveSubscriptions() []string {
	return r.ActiveSubscriptionsAt(time.Now())
}

// ActiveSubscriptionsAt is ActiveSubscriptions evaluated at t.
func (r *AppleReceipt) ActiveSubscriptionsAt(t time.Time) []string {
	set := make(map[string]struct{})
	for i := range r.InAppPurchases {
		if p := &r.InAppPurchases[i]; p.IsActiveSubscriptionAt(t) {
			set[p.ProductID] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// MostRecentActiveSubscription returns the active subscription purchased
// last, or nil.
func (r *AppleReceipt) MostRecentActiveSubscription() *InAppPurchase {
	return r.MostRecentActiveSubscriptionAt(time.Now())
}

// MostRecentActiveSubscriptionAt is MostRecentActiveSubscription evaluated at t.
func (r *AppleReceipt) MostRecentActiveSubscriptionAt(t time.Time) *InAppPurchase {
	var latest *InAppPurchase
	for i := range r.InAppPurchases {
		p := &r.InAppPurchases[i]
		if !p.IsActiveSubscriptionAt(t) {
			continue
		}
		if latest == nil || p.PurchaseDate.After(latest.PurchaseDate) {
			latest = p
		}
	}
	return latest
}

// PurchasedIntroOfferOrFreeTrialProductIdentifiers returns, sorted, the
// products bought during a free trial or introductory offer. Such products
// are no longer eligible for one.
func (r *AppleReceipt) PurchasedIntroOfferOrFreeTrialProductIdentifiers() []string {
	set := make(map[string]struct{})
	for _, p := range r.InAppPurchases {
		if p.IsInTrialPeriod || (p.IsInIntroOfferPeriod != nil && *p.IsInIntroOfferPeriod) {
			set[p.ProductID] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dump returns a printable view of the receipt. With unknownOnly set only
// the unrecognized attributes are included.
func (r *AppleReceipt) Dump(opts ...bool) map[string]any {
	unknownOnly := false
	if len(opts) > 0 {
		unknownOnly = opts[0]
	}

	out := make(map[string]any)

	if !unknownOnly {
		out["BundleID"] = r.BundleID
		out["ApplicationVersion"] = r.ApplicationVersion
		out["OpaqueValue"] = fmt.Sprintf("%X", r.OpaqueValue)
		out["SHA1Hash"] = fmt.Sprintf("%X", r.SHA1Hash)
		out["CreationDate"] = r.CreationDate
		if r.OriginalApplicationVersion != nil {
			out["OriginalApplicationVersion"] = *r.OriginalApplicationVersion
		}
		if r.ExpirationDate != nil {
			out["ExpirationDate"] = *r.ExpirationDate
		}
		purchases := make([]map[string]any, len(r.InAppPurchases))
		for i := range r.InAppPurchases {
			purchases[i] = r.InAppPurchases[i].Dump()
		}
		out["InAppPurchases"] = purchases
	}

	if len(r.Unknown) > 0 {
		unknown := make([]map[string]string, len(r.Unknown))
		for i, attr := range r.Unknown {
			unknown[i] = map[string]string{
				"Type":    fmt.Sprintf("%d", attr.Type),
				"Version": fmt.Sprintf("%d", attr.Version),
				"Raw":     fmt.Sprintf("%X", attr.Value.Payload),
			}
		}
		out["Unknown"] = unknown
	}

	return out
}
