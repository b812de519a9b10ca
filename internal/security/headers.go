package security

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
)

// HeaderPolicy describes the response headers set on every request.
type HeaderPolicy struct {
	CSPReportURI string
	HSTS         bool
}

func (p HeaderPolicy) ContentSecurityPolicy(nonce string) string {
	directives := []string{
		"default-src 'self'",
		"script-src 'self' 'nonce-" + nonce + "'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data: https:",
		"font-src 'self' data:",
		"connect-src 'self'",
		"frame-ancestors 'none'",
		"object-src 'none'",
		"base-uri 'self'",
		"form-action 'self'",
	}
	if p.CSPReportURI != "" {
		directives = append(directives, "report-uri "+p.CSPReportURI)
	}
	return strings.Join(directives, "; ")
}

func (p HeaderPolicy) Apply(h http.Header, nonce string) {
	h.Set("Content-Security-Policy", p.ContentSecurityPolicy(nonce))
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(self)")
	h.Set("Cross-Origin-Opener-Policy", "same-origin")
	h.Set("X-XSS-Protection", "0")
	if p.HSTS {
		h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
	}
}

func NewNonce() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawStdEncoding.EncodeToString(b)
}
