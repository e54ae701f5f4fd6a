package ber

import (
	"encoding/asn1"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func marshalOID(t testing.TB, oid asn1.ObjectIdentifier) []byte {
	t.Helper()
	der, err := asn1.Marshal(oid)
	if err != nil {
		t.Fatal(err)
	}
	return der
}

func TestResolveContentType(t *testing.T) {
	tests := map[string]struct {
		oid  asn1.ObjectIdentifier
		want ContentType
	}{
		"data":                     {OIDData, ContentTypeData},
		"signed data":              {OIDSignedData, ContentTypeSignedData},
		"enveloped data":           {OIDEnvelopedData, ContentTypeEnvelopedData},
		"signed and enveloped":     {OIDSignedAndEnvelopedData, ContentTypeSignedAndEnvelopedData},
		"digested data":            {OIDDigestedData, ContentTypeDigestedData},
		"encrypted data":           {OIDEncryptedData, ContentTypeEncryptedData},
		"unknown":                  {asn1.ObjectIdentifier{1, 3, 23, 534643, 7454, 1, 7, 2}, ContentTypeUnknown},
		"prefix of data":           {asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7}, ContentTypeUnknown},
		"sha256 with rsa":          {asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}, ContentTypeUnknown},
		"data with extra arc":      {asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1, 0}, ContentTypeUnknown},
		"apple receipt attributes": {asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 11, 1}, ContentTypeUnknown},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c := mustDecode(t, marshalOID(t, tt.oid))
			if c.Identifier() != ObjectIdentifier {
				t.Fatalf("identifier = %s", c.Identifier())
			}
			oid, err := c.ObjectIdentifier()
			if err != nil {
				t.Fatal(err)
			}
			if !oid.Equal(tt.oid) {
				t.Errorf("decoded %v, want %v", oid, tt.oid)
			}
			if got := c.ContentType(); got != tt.want {
				t.Errorf("ContentType() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseObjectIdentifier(t *testing.T) {
	tests := map[string]struct {
		payload []byte
		want    asn1.ObjectIdentifier
	}{
		"empty":              {nil, nil},
		"first byte only":    {[]byte{0x2a}, asn1.ObjectIdentifier{1, 2}},
		"multi byte arc":     {[]byte{0x2a, 0x86, 0x48}, asn1.ObjectIdentifier{1, 2, 840}},
		"truncated arc":      {[]byte{0x2a, 0x86}, nil},
		"joint iso itu":      {[]byte{0x51, 0x01}, asn1.ObjectIdentifier{2, 1, 1}},
		"overflowing arc":    {[]byte{0x2a, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f}, nil},
		"zero padded arc":    {[]byte{0x2a, 0x80, 0x01}, asn1.ObjectIdentifier{1, 2, 1}},
		"all pkcs7 prefixes": {[]byte{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x07}, asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := ParseObjectIdentifier(tt.payload)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseObjectIdentifier(%x) mismatch (-want +got):\n%s", tt.payload, diff)
			}
		})
	}
}

func TestResolveContentType_Nil(t *testing.T) {
	if got := ResolveContentType(nil); got != ContentTypeUnknown {
		t.Errorf("got %s, want unknown", got)
	}
	c := mustDecode(t, []byte{0x06, 0x00})
	if got := c.ContentType(); got != ContentTypeUnknown {
		t.Errorf("empty identifier resolved to %s", got)
	}
}

func TestContainer_ContentTypeNotOID(t *testing.T) {
	c := mustDecode(t, []byte{0x04, 0x01, 0x2a})
	if got := c.ContentType(); got != ContentTypeUnknown {
		t.Errorf("octet string resolved to %s", got)
	}
}

func BenchmarkResolveContentType(b *testing.B) {
	der, _ := asn1.Marshal(OIDData)
	c, err := Decode(der)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.ContentType()
	}
}
