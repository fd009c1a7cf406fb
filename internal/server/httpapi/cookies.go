package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/common"
	"github.com/dmitrijs2005/profitpal/internal/server/services"
)

const (
	sessionCookie = common.SessionCookieName
	csrfCookie    = common.CSRFCookieName
	csrfHeader    = common.CSRFHeaderName
)

// Secure cookie modes.
const (
	SecureAuto   = "auto"
	SecureAlways = "always"
	SecureNever  = "never"
)

// CookiePolicy scopes session cookies. Requests to Domain or any of its
// subdomains get a cookie for the parent domain, everything else (localhost,
// preview hosts) gets a host-only cookie.
type CookiePolicy struct {
	Domain string
	Secure string
}

func (p CookiePolicy) domainFor(r *http.Request) string {
	parent := strings.ToLower(strings.Trim(p.Domain, ". "))
	if parent == "" {
		return ""
	}
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	if host == parent || strings.HasSuffix(host, "."+parent) {
		return parent
	}
	return ""
}

func (p CookiePolicy) secure(r *http.Request) bool {
	switch p.Secure {
	case SecureAlways:
		return true
	case SecureNever:
		return false
	}
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (p CookiePolicy) cookie(r *http.Request, name, value string, maxAge int, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   p.domainFor(r),
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   p.secure(r),
		SameSite: http.SameSiteLaxMode,
	}
}

// setSession writes the HttpOnly session cookie and the script-readable
// CSRF cookie.
func (p CookiePolicy) setSession(w http.ResponseWriter, r *http.Request, issued *services.IssuedSession, now time.Time) {
	maxAge := int(issued.ExpiresAt.Sub(now).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, p.cookie(r, sessionCookie, issued.Token, maxAge, true))
	http.SetCookie(w, p.cookie(r, csrfCookie, issued.CSRFToken, maxAge, false))
}

func (p CookiePolicy) clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, p.cookie(r, sessionCookie, "", -1, true))
	http.SetCookie(w, p.cookie(r, csrfCookie, "", -1, false))
}
