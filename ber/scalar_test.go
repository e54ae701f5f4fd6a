package ber

import (
	"errors"
	"testing"
	"time"

	"github.com/takimoto3/iap-receipt/isodate"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

func TestContainer_Int64(t *testing.T) {
	tests := map[string]struct {
		data    []byte
		want    int64
		wantErr error
	}{
		"zero":            {[]byte{0x02, 0x01, 0x00}, 0, nil},
		"one byte":        {[]byte{0x02, 0x01, 0x11}, 17, nil},
		"minus one":       {[]byte{0x02, 0x01, 0xff}, -1, nil},
		"leading zero":    {[]byte{0x02, 0x02, 0x00, 0x80}, 128, nil},
		"negative":        {[]byte{0x02, 0x02, 0xff, 0x7f}, -129, nil},
		"in-app type":     {[]byte{0x02, 0x02, 0x06, 0xa5}, 1701, nil},
		"max":             {[]byte{0x02, 0x08, 0x7f, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, 1<<63 - 1, nil},
		"min":             {[]byte{0x02, 0x08, 0x80, 0, 0, 0, 0, 0, 0, 0}, -1 << 63, nil},
		"nine bytes":      {[]byte{0x02, 0x09, 0x00, 0x80, 0, 0, 0, 0, 0, 0, 0}, 0, ErrIntegerOverflow},
		"empty":           {[]byte{0x02, 0x00}, 0, ErrInsufficientData},
		"octet string":    {[]byte{0x04, 0x01, 0x01}, 0, ErrUnexpectedType},
		"constructed int": {[]byte{0x22, 0x03, 0x02, 0x01, 0x01}, 0, ErrUnexpectedType},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c := mustDecode(t, tt.data)
			got, err := c.Int64()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestContainer_IntMatchesCryptobyte(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 127, 128, -128, -129, 255, 256, 1708, 65535, -65536, 1 << 40, -(1 << 40)} {
		var b cryptobyte.Builder
		b.AddASN1Int64(v)
		c := mustDecode(t, b.BytesOrPanic())
		got, err := c.Int()
		if err != nil {
			t.Fatalf("%d: %v", v, err)
		}
		if int64(got) != v {
			t.Errorf("got %d, want %d", got, v)
		}
	}
}

func TestContainer_Text(t *testing.T) {
	tests := map[string]struct {
		tag     cbasn1.Tag
		value   string
		wantErr error
	}{
		"utf8":      {cbasn1.UTF8String, "com.example.app ✓", nil},
		"ia5":       {cbasn1.IA5String, "1.0.1", nil},
		"printable": {cbasn1.PrintableString, "Example App", nil},
		"empty":     {cbasn1.UTF8String, "", nil},
		"octets":    {cbasn1.OCTET_STRING, "abc", ErrUnexpectedType},
		"invalid":   {cbasn1.UTF8String, "\xff\xfe", ErrInvalidString},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var b cryptobyte.Builder
			b.AddASN1(tt.tag, func(b *cryptobyte.Builder) {
				b.AddBytes([]byte(tt.value))
			})
			c := mustDecode(t, b.BytesOrPanic())
			got, err := c.Text()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && got != tt.value {
				t.Errorf("got %q, want %q", got, tt.value)
			}
		})
	}
}

func TestContainer_Bool(t *testing.T) {
	tests := map[string]struct {
		data    []byte
		want    bool
		wantErr error
	}{
		"boolean true":    {[]byte{0x01, 0x01, 0xff}, true, nil},
		"boolean false":   {[]byte{0x01, 0x01, 0x00}, false, nil},
		"integer one":     {[]byte{0x02, 0x01, 0x01}, true, nil},
		"integer zero":    {[]byte{0x02, 0x01, 0x00}, false, nil},
		"two byte int":    {[]byte{0x02, 0x02, 0x00, 0x01}, false, ErrUnexpectedType},
		"empty boolean":   {[]byte{0x01, 0x00}, false, ErrUnexpectedType},
		"string":          {[]byte{0x0c, 0x01, 0x31}, false, ErrUnexpectedType},
		"null":            {[]byte{0x05, 0x00}, false, ErrUnexpectedType},
		"non-zero is yes": {[]byte{0x01, 0x01, 0x02}, true, nil},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c := mustDecode(t, tt.data)
			got, err := c.Bool()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %t, want %t", got, tt.want)
			}
		})
	}
}

func TestContainer_Bytes(t *testing.T) {
	c := mustDecode(t, []byte{0x04, 0x03, 0x0a, 0x0b, 0x0c})
	got, err := c.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "\x0a\x0b\x0c" {
		t.Errorf("got %x", got)
	}

	c = mustDecode(t, []byte{0x24, 0x03, 0x04, 0x01, 0x0a})
	if _, err := c.Bytes(); !errors.Is(err, ErrUnexpectedType) {
		t.Errorf("constructed octet string: error = %v, want ErrUnexpectedType", err)
	}
}

func TestContainer_Time(t *testing.T) {
	tests := map[string]struct {
		tag     cbasn1.Tag
		value   string
		want    time.Time
		wantErr error
	}{
		"ia5":         {cbasn1.IA5String, "2020-03-23T15:05:03Z", time.Date(2020, 3, 23, 15, 5, 3, 0, time.UTC), nil},
		"utf8":        {cbasn1.UTF8String, "2019-12-31T23:59:59Z", time.Date(2019, 12, 31, 23, 59, 59, 0, time.UTC), nil},
		"empty":       {cbasn1.IA5String, "", time.Time{}, isodate.ErrMalformed},
		"with millis": {cbasn1.IA5String, "2020-03-23T15:05:03.123Z", time.Time{}, isodate.ErrMalformed},
		"octets":      {cbasn1.OCTET_STRING, "2020-03-23T15:05:03Z", time.Time{}, ErrUnexpectedType},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var b cryptobyte.Builder
			b.AddASN1(tt.tag, func(b *cryptobyte.Builder) {
				b.AddBytes([]byte(tt.value))
			})
			c := mustDecode(t, b.BytesOrPanic())
			got, err := c.Time()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func BenchmarkContainer_Int64(b *testing.B) {
	c, err := Decode([]byte{0x02, 0x04, 0x12, 0x34, 0x56, 0x78})
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < b.N; i++ {
		_, _ = c.Int64()
	}
}
