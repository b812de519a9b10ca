package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("short", 8)
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	hash, err := HashPassword("correct horse", 8)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "correct horse"))
	assert.Error(t, ComparePassword(hash, "wrong horse"))
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", "adjusterhub")
	token, err := issuer.Issue(42, "adjuster", "sess-1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	uid, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint(42), uid)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "adjuster", claims.Role)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	issuer := NewTokenIssuer("secret", "adjusterhub")

	expired, err := issuer.Issue(1, "adjuster", "s", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = issuer.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokenIssuer("secret", "someone-else")
	foreign, err := other.Issue(1, "adjuster", "s", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = issuer.Parse(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongKey := NewTokenIssuer("different", "adjusterhub")
	forged, err := wrongKey.Issue(1, "admin", "s", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = issuer.Parse(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTOTP_VerifyWithSkewAndReplay(t *testing.T) {
	otp := NewTOTP("AdjusterHub")
	secret, err := otp.GenerateSecret("jane@example.com")
	require.NoError(t, err)
	assert.Contains(t, secret.URL, "otpauth://totp/")

	now := time.Unix(1_700_000_010, 0)
	code, err := otp.Code(secret.Secret, now)
	require.NoError(t, err)
	want := now.Unix() / 30

	step, ok := otp.Verify(code, secret.Secret, now, 0)
	require.True(t, ok)
	assert.Equal(t, want, step)

	step, ok = otp.Verify(code, secret.Secret, now.Add(30*time.Second), 0)
	require.True(t, ok)
	assert.Equal(t, want, step)

	_, ok = otp.Verify(code, secret.Secret, now, want)
	assert.False(t, ok, "a used step must not verify again")
	_, ok = otp.Verify(code, secret.Secret, now.Add(5*time.Minute), 0)
	assert.False(t, ok)
	_, ok = otp.Verify("", secret.Secret, now, 0)
	assert.False(t, ok)
}

func TestPatternDetector(t *testing.T) {
	d := NewPatternDetector()
	tests := []struct {
		name     string
		path     string
		query    string
		ua       string
		category string
	}{
		{"tautology", "/api/v1/claims", "q=1%27%20OR%201%3D1--", "", CategorySQLInjection},
		{"union", "/api/v1/claims", "q=1+UNION+SELECT+password+FROM+users", "", CategorySQLInjection},
		{"script tag", "/api/v1/claims", "q=%3Cscript%3Ealert(1)%3C/script%3E", "", CategoryXSS},
		{"double encoded traversal", "/files/%252e%252e%252fetc%252fpasswd", "", "", CategoryPathTraversal},
		{"traversal", "/static/../../etc/passwd", "", "", CategoryPathTraversal},
		{"command", "/api/v1/claims", "name=x;cat%20/etc/hosts", "", CategoryCommandInjection},
		{"scanner", "/", "", "sqlmap/1.7.2#stable", CategoryScanner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := d.Inspect(tt.path, tt.query, tt.ua)
			require.True(t, ok)
			assert.Equal(t, tt.category, f.Category)
		})
	}
}

func TestPatternDetector_AllowsOrdinaryTraffic(t *testing.T) {
	d := NewPatternDetector()
	clean := []struct{ path, query, ua string }{
		{"/api/v1/claims", "state=TX&loss_type=wind&min_fee=15000&page=2", "Mozilla/5.0"},
		{"/api/v1/claims", "q=O%27Brien+roof+damage", "Mozilla/5.0"},
		{"/api/v1/documents", "category=license&cat=1", "curl/8.4.0"},
	}
	for _, c := range clean {
		_, ok := d.Inspect(c.path, c.query, c.ua)
		assert.False(t, ok, "%s?%s", c.path, c.query)
	}
}

func TestHoneypot(t *testing.T) {
	h := NewHoneypot([]string{"/backup/"})
	assert.True(t, h.Match("/wp-admin"))
	assert.True(t, h.Match("/WP-Admin/setup.php"))
	assert.True(t, h.Match("/.env"))
	assert.True(t, h.Match("/backup/db.sql"))
	assert.False(t, h.Match("/wp-administrators"))
	assert.False(t, h.Match("/api/v1/auth/login"))
}

func TestHeaderPolicy_Apply(t *testing.T) {
	h := http.Header{}
	HeaderPolicy{CSPReportURI: "/csp-report", HSTS: true}.Apply(h, "abc123")

	csp := h.Get("Content-Security-Policy")
	assert.Contains(t, csp, "'nonce-abc123'")
	assert.Contains(t, csp, "frame-ancestors 'none'")
	assert.True(t, strings.HasSuffix(csp, "report-uri /csp-report"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, h.Get("Strict-Transport-Security"))

	plain := http.Header{}
	HeaderPolicy{}.Apply(plain, "n")
	assert.Empty(t, plain.Get("Strict-Transport-Security"))
}

func TestNewNonceIsRandom(t *testing.T) {
	a, b := NewNonce(), NewNonce()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestHeaderValidator(t *testing.T) {
	v := HeaderValidator{MaxHeaderCount: 5, MaxUserAgentLength: 20, MaxBodyBytes: 100}

	ok := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, v.Validate(ok))

	longUA := httptest.NewRequest(http.MethodGet, "/", nil)
	longUA.Header.Set("User-Agent", strings.Repeat("a", 21))
	assert.Equal(t, "user agent too long", v.Validate(longUA).Reason)

	big := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 101)))
	viol := v.Validate(big)
	require.NotNil(t, viol)
	assert.Equal(t, http.StatusRequestEntityTooLarge, viol.Status)

	injected := httptest.NewRequest(http.MethodGet, "/", nil)
	injected.Header["X-Forwarded-Host"] = []string{"evil\r\nSet-Cookie: a=b"}
	assert.Equal(t, "malformed header value", v.Validate(injected).Reason)

	noHost := httptest.NewRequest(http.MethodGet, "/", nil)
	noHost.Host = ""
	assert.Equal(t, "missing host header", v.Validate(noHost).Reason)
}
