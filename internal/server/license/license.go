// Package license issues PP-XXXX-XXXX-XXXX license identifiers and holds the
// configuration-sourced administrator credential.
package license

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/common"
)

const defaultMaxAttempts = 10

var licensePattern = regexp.MustCompile(`^PP-[0-9A-Z]{4}-[0-9A-Z]{4}-[0-9A-Z]{4}$`)

// Lookup reports whether a license is already taken.
type Lookup interface {
	LicenseExists(ctx context.Context, license string) (bool, error)
}

// Admin is the administrator credential taken from configuration. A zero
// Email or License disables the bypass.
type Admin struct {
	Email   string
	License string
	Name    string
}

// IsAdminEmail compares the normalized email with the configured one.
func (a Admin) IsAdminEmail(email string) bool {
	admin := common.NormalizeEmail(a.Email)
	return admin != "" && common.NormalizeEmail(email) == admin
}

// Matches reports whether the claimed pair is the administrator credential.
// Licenses are compared upper-cased with spaces removed, with or without
// hyphens.
func (a Admin) Matches(email, license string) bool {
	if !a.IsAdminEmail(email) {
		return false
	}
	want := compact(a.License)
	if want == "" {
		return false
	}
	got := compact(license)
	if got == want {
		return true
	}
	return strings.ReplaceAll(got, "-", "") == strings.ReplaceAll(want, "-", "")
}

func compact(license string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(license)), " ", "")
}

// Normalize trims and upper-cases a claimed license for comparison with the
// stored value.
func Normalize(license string) string {
	return strings.ToUpper(strings.TrimSpace(license))
}

type Issuer struct {
	admin       Admin
	licenses    Lookup
	now         func() time.Time
	nonce       func() (string, error)
	maxAttempts int
}

func NewIssuer(admin Admin, licenses Lookup) *Issuer {
	return &Issuer{
		admin:       admin,
		licenses:    licenses,
		now:         time.Now,
		nonce:       func() (string, error) { return common.MakeRandHexString(16) },
		maxAttempts: defaultMaxAttempts,
	}
}

// Issue returns the admin license verbatim for the admin email, otherwise a
// freshly derived license not yet present in the store.
func (i *Issuer) Issue(ctx context.Context, email, displayName string) (string, error) {
	if i.admin.IsAdminEmail(email) && i.admin.License != "" {
		return i.admin.License, nil
	}

	for attempt := 0; attempt < i.maxAttempts; attempt++ {
		candidate, err := i.derive(email, displayName)
		if err != nil {
			return "", err
		}
		taken, err := i.licenses.LicenseExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", common.ErrorLicenseExhausted
}

func (i *Issuer) derive(email, displayName string) (string, error) {
	nonce, err := i.nonce()
	if err != nil {
		return "", fmt.Errorf("license nonce: %w", err)
	}
	seed := strings.Join([]string{
		common.NormalizeEmail(email),
		strings.ToUpper(strings.TrimSpace(displayName)),
		i.now().UTC().Format(time.RFC3339Nano),
		nonce,
	}, "_")
	sum := sha256.Sum256([]byte(seed))
	h := strings.ToUpper(hex.EncodeToString(sum[:]))[:12]
	return "PP-" + h[0:4] + "-" + h[4:8] + "-" + h[8:12], nil
}

// ValidFormat reports whether a claimed license has an acceptable shape: the
// issued PP-XXXX-XXXX-XXXX form or the configured admin value.
func (i *Issuer) ValidFormat(license string) bool {
	l := Normalize(license)
	if l == "" {
		return false
	}
	if licensePattern.MatchString(l) {
		return true
	}
	admin := compact(i.admin.License)
	return admin != "" && (compact(l) == admin ||
		strings.ReplaceAll(compact(l), "-", "") == strings.ReplaceAll(admin, "-", ""))
}
