// Package isodate parses the fixed-width UTC timestamps found in App Store
// receipts ("2020-03-23T15:05:03Z").
//
// Only the exact 20 byte layout YYYY-MM-DDTHH:MM:SSZ is accepted. Fields are
// range checked but not validated against the calendar: "2022-02-30T00:00:00Z"
// yields the same instant as "2022-03-02T00:00:00Z", and hour 24 rolls over
// into the next day. Receipt dates are compared using this arithmetic, so the
// leniency must be kept.
package isodate

import (
	"errors"
	"time"
)

// Layout is the only layout understood by this package, in time.Parse notation.
const Layout = "2006-01-02T15:04:05Z"

const size = len(Layout)

// ErrMalformed is returned for any input that does not match Layout or whose
// fields are out of range.
var ErrMalformed = errors.New("isodate: malformed date")

// field describes one numeric field of the layout.
type field struct {
	off, width int
	min, max   int
}

var (
	year   = field{off: 0, width: 4, min: 0, max: 9999}
	month  = field{off: 5, width: 2, min: 1, max: 12}
	day    = field{off: 8, width: 2, min: 1, max: 31}
	hour   = field{off: 11, width: 2, min: 0, max: 24}
	minute = field{off: 14, width: 2, min: 0, max: 59}
	second = field{off: 17, width: 2, min: 0, max: 59}
)

// separators maps byte offsets to the literal expected there.
var separators = [...]struct {
	off int
	b   byte
}{{4, '-'}, {7, '-'}, {10, 'T'}, {13, ':'}, {16, ':'}, {19, 'Z'}}

// Parse parses s. It is equivalent to ParseBytes([]byte(s)).
func Parse(s string) (time.Time, error) {
	if len(s) != size {
		return time.Time{}, ErrMalformed
	}
	var buf [size]byte
	copy(buf[:], s)
	return parse(buf[:])
}

// ParseBytes parses the ASCII bytes in b.
func ParseBytes(b []byte) (time.Time, error) {
	if len(b) != size {
		return time.Time{}, ErrMalformed
	}
	return parse(b)
}

func parse(b []byte) (time.Time, error) {
	for _, sep := range separators {
		if b[sep.off] != sep.b {
			return time.Time{}, ErrMalformed
		}
	}

	var v [6]int
	for i, f := range [...]field{year, month, day, hour, minute, second} {
		n, ok := f.read(b)
		if !ok {
			return time.Time{}, ErrMalformed
		}
		v[i] = n
	}

	days := daysFromCivil(int64(v[0]), int64(v[1]), int64(v[2]))
	secs := days*86400 + int64(v[3])*3600 + int64(v[4])*60 + int64(v[5])
	return time.Unix(secs, 0).UTC(), nil
}

func (f field) read(b []byte) (int, bool) {
	n := 0
	for _, c := range b[f.off : f.off+f.width] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if n < f.min || n > f.max {
		return 0, false
	}
	return n, true
}

// daysFromCivil returns the number of days since 1970-01-01 for the proleptic
// Gregorian date y-m-d. It is the closed form of Howard Hinnant's
// days_from_civil and accepts days past the end of the month.
func daysFromCivil(y, m, d int64) int64 {
	if m <= 2 {
		y--
	}
	era := y
	if era < 0 {
		era -= 399
	}
	era /= 400
	yoe := y - era*400
	mp := m + 9
	if m > 2 {
		mp = m - 3
	}
	doy := (153*mp+2)/5 + d - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe - 719468
}
