package receipt_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/smallstep/pkcs7"
	"github.com/takimoto3/iap-receipt/ber"
	"github.com/takimoto3/iap-receipt/isodate"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// field is one receipt attribute fixture: type code and the DER encoded value
// stored in its OCTET STRING.
type field struct {
	typ   int
	value []byte
}

func derString(tag cbasn1.Tag, s string) []byte {
	var b cryptobyte.Builder
	b.AddASN1(tag, func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(s))
	})
	return b.BytesOrPanic()
}

func utf8Field(typ int, s string) field {
	return field{typ, derString(cbasn1.UTF8String, s)}
}

func ia5Field(typ int, s string) field {
	return field{typ, derString(cbasn1.IA5String, s)}
}

func dateField(typ int, t time.Time) field {
	return ia5Field(typ, t.UTC().Format(isodate.Layout))
}

func intField(typ int, v int64) field {
	var b cryptobyte.Builder
	b.AddASN1Int64(v)
	return field{typ, b.BytesOrPanic()}
}

func rawField(typ int, raw []byte) field {
	return field{typ, raw}
}

// setBytes encodes fields as a SET of SEQUENCE{type, version, OCTET STRING}.
func setBytes(fields ...field) []byte {
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SET, func(b *cryptobyte.Builder) {
		for _, f := range fields {
			b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1Int64(int64(f.typ))
				b.AddASN1Int64(1)
				b.AddASN1OctetString(f.value)
			})
		}
	})
	return b.BytesOrPanic()
}

func inAppField(fields ...field) field {
	return field{17, setBytes(fields...)}
}

func mustDecode(t testing.TB, data []byte) *ber.Container {
	t.Helper()
	c, err := ber.Decode(data)
	if err != nil {
		t.Fatalf("failed to decode fixture: %v", err)
	}
	return c
}

var (
	creationDate = time.Date(2020, 3, 23, 15, 5, 3, 0, time.UTC)
	opaqueValue  = []byte{0x69, 0x2f, 0x0e, 0x4e, 0x8f, 0x4a, 0x8c, 0x55, 0x1d, 0x77, 0xe0, 0x3a, 0x42, 0x9b, 0xc6, 0x13}
	sha1Hash     = []byte{0xd0, 0x1a, 0x4f, 0x2b, 0x61, 0x5a, 0x5e, 0x7b, 0x33, 0x84, 0x6c, 0x2e, 0x9a, 0x7f, 0x08, 0x27, 0x3b, 0xc0, 0x5e, 0x11}
)

// minimalReceipt returns the required receipt attributes plus the original
// application version.
func minimalReceipt() []field {
	return []field{
		utf8Field(2, "com.revenuecat.test"),
		utf8Field(3, "3.2.1"),
		utf8Field(19, "1.2.2"),
		rawField(4, opaqueValue),
		rawField(5, sha1Hash),
		ia5Field(12, "2020-03-23T15:05:03Z"),
	}
}

// purchase returns the attributes of an in-app purchase.
func purchase(productID string, productType int64, purchased time.Time, expires *time.Time, extra ...field) field {
	fields := []field{
		intField(1701, 1),
		utf8Field(1702, productID),
		utf8Field(1703, "1000000"+productID),
		dateField(1704, purchased),
		intField(1707, productType),
	}
	if expires != nil {
		fields = append(fields, dateField(1708, *expires))
	}
	return inAppField(append(fields, extra...)...)
}

// envelope wraps content in a signed PKCS#7 structure, the way the App Store
// delivers receipts.
func envelope(t testing.TB, content []byte) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Mac App Store and iTunes Store Receipt Signing"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}

	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		t.Fatal(err)
	}
	if err := sd.AddSigner(cert, key, pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatal(err)
	}
	signed, err := sd.Finish()
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func ptr[T any](v T) *T {
	return &v
}
