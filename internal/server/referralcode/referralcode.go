// Package referralcode generates and parses 15 character referral codes:
// five upper-case letters, five digits and five lower-case letters, where no
// letter appears in both letter segments.
package referralcode

import (
	"crypto/rand"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	segment  = 5
	Length   = 3 * segment
	alphabet = "abcdefghijklmnopqrstuvwxyz"
	digits   = "0123456789"
)

// intn is a seam for tests.
var intn = func(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(err)
	}
	return int(v.Int64())
}

// Generate returns a code with random digits.
func Generate() string {
	upper, lower := letterSegments()
	var b strings.Builder
	b.Grow(Length)
	b.WriteString(upper)
	for range segment {
		b.WriteByte(digits[intn(len(digits))])
	}
	b.WriteString(lower)
	return b.String()
}

// Fallback returns a code whose digit segment is the last five digits of the
// unix time. It is used once Generate keeps hitting taken codes.
func Fallback(now time.Time) string {
	upper, lower := letterSegments()
	ts := strconv.FormatInt(now.Unix(), 10)
	for len(ts) < segment {
		ts = "0" + ts
	}
	return upper + ts[len(ts)-segment:] + lower
}

// letterSegments draws ten distinct letters; the first five become the
// lower-case segment and the rest the upper-case one.
func letterSegments() (upper, lower string) {
	letters := []byte(alphabet)
	for i := 0; i < 2*segment; i++ {
		j := i + intn(len(letters)-i)
		letters[i], letters[j] = letters[j], letters[i]
	}
	return strings.ToUpper(string(letters[segment : 2*segment])), string(letters[:segment])
}

// ValidFormat checks the segment shape of a code. Letter disjointness is not
// checked so codes from older generators stay redeemable.
func ValidFormat(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < Length; i++ {
		c := code[i]
		switch {
		case i < segment:
			if c < 'A' || c > 'Z' {
				return false
			}
		case i < 2*segment:
			if c < '0' || c > '9' {
				return false
			}
		default:
			if c < 'a' || c > 'z' {
				return false
			}
		}
	}
	return true
}

// Disjoint reports whether the two letter segments of a well-formed code
// share no letter, compared case-insensitively.
func Disjoint(code string) bool {
	if !ValidFormat(code) {
		return false
	}
	return !strings.ContainsAny(strings.ToLower(code[:segment]), code[2*segment:])
}

// Link builds the shareable link for code under base.
func Link(base, code string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "ref=" + url.QueryEscape(code)
}

// ExtractFromURL returns the ref query parameter of raw, or "" when there is
// none.
func ExtractFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil {
		if ref := u.Query().Get("ref"); ref != "" {
			return ref
		}
	}
	for _, marker := range []string{"?ref=", "&ref="} {
		if _, rest, ok := strings.Cut(raw, marker); ok {
			ref, _, _ := strings.Cut(rest, "&")
			return ref
		}
	}
	return ""
}
