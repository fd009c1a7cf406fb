package common

import (
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
)

// ---------- MakeRandHexString ----------

func TestMakeRandHexString_LengthAndHex(t *testing.T) {
	const n = 16
	s, err := MakeRandHexString(n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s) != n*2 {
		t.Fatalf("expected hex length %d, got %d", n*2, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		t.Fatalf("string is not valid hex: %v", err)
	}
}

func TestMakeRandHexString_ZeroSize(t *testing.T) {
	s, err := MakeRandHexString(0)
	if err != nil {
		t.Fatalf("unexpected error for size=0: %v", err)
	}
	if s != "" {
		t.Fatalf("expected empty string for size=0, got %q", s)
	}
}

func TestMakeRandHexString_EntropyHint(t *testing.T) {
	const n = 32
	a, err := MakeRandHexString(n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := MakeRandHexString(n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a == b {
		t.Logf("warning: two MakeRandHexString(%d) results are identical; extremely unlikely", n)
	}
}

// ---------- WipeByteArray ----------

func TestWipeByteArray_ZerosBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	WipeByteArray(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("expected buf[%d]==0, got %d", i, v)
		}
	}
}

func TestWipeByteArray_NilSafe(t *testing.T) {
	WipeByteArray(nil)
}

// ---------- MakeRandURLToken ----------

func TestMakeRandURLToken_Length(t *testing.T) {
	s, err := MakeRandURLToken(32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 32 bytes -> 43 chars of unpadded base64url
	if len(s) != 43 {
		t.Fatalf("expected 43 chars, got %d (%q)", len(s), s)
	}
	if strings.ContainsAny(s, "+/=") {
		t.Fatalf("token is not url-safe: %q", s)
	}
}

// ---------- email helpers ----------

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("got %q", got)
	}
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"alice@example.com": "a***@example.com",
		"B@x.io":            "b***@x.io",
		"no-at-sign":        "***",
		"@example.com":      "***",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsCredentialRejection(t *testing.T) {
	for _, err := range []error{ErrorNotFound, ErrorInvalidLicense, ErrorPaymentIncomplete, ErrorNameMismatch} {
		if !IsCredentialRejection(fmt.Errorf("wrapped: %w", err)) {
			t.Fatalf("expected %v to be a credential rejection", err)
		}
	}
	if IsCredentialRejection(ErrorInternal) {
		t.Fatal("internal error must not collapse into a rejection")
	}
}
