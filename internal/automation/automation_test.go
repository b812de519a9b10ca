package automation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const portalConnector = `
name = "acme-portal"
version = 2
firm_code = "ACME"
base_url = "%s"
reference_var = "reference"

[credentials]
api_key = "ACME_PORTAL_KEY"

[retry]
max_attempts = 3
initial_backoff_ms = 100
max_backoff_ms = 1000
multiplier = 2

[[steps]]
name = "login"
method = "POST"
path = "/api/session"
body = '{"key": {{ json .credentials.api_key }}}'
extract = { token = "data.token" }

[[steps]]
name = "submit"
method = "POST"
path = "/api/claims/{{ pathescape .claim.Number }}/report"
body = '{"title": {{ json .claim.Title }}, "fee": "{{ cents .claim.FeeCents }}"}'
headers = { Authorization = "Bearer {{ .token }}" }
success_path = "ok"
extract = { reference = "result.reference" }
`

func newTestRunner(env map[string]string) (*Runner, *[]time.Duration) {
	r := NewRunner(http.DefaultClient, zap.NewNop())
	r.lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return r, &slept
}

func parseFor(t *testing.T, baseURL string) *Connector {
	t.Helper()
	c, err := Parse([]byte(sprintf(portalConnector, baseURL)))
	require.NoError(t, err)
	return c
}

func TestRunner_RetriesThenSucceeds(t *testing.T) {
	var submitCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/session":
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"key":"secret"}`, string(body))
			_, _ = w.Write([]byte(`{"data":{"token":"tok-1"}}`))
		case "/api/claims/CLM-9/report":
			if atomic.AddInt32(&submitCalls, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"title":"Hail \"roof\"","fee":"250.00"}`, string(body))
			_, _ = w.Write([]byte(`{"ok":true,"result":{"reference":"ACME-77"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	runner, slept := newTestRunner(map[string]string{"ACME_PORTAL_KEY": "secret"})
	res := runner.Run(context.Background(), parseFor(t, srv.URL), ClaimData{Number: "CLM-9", Title: `Hail "roof"`, FeeCents: 25000})

	require.NoError(t, res.Err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "ACME-77", res.ExternalRef)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, *slept)
}

func TestRunner_EscapesClaimNumberInPath(t *testing.T) {
	var submitted string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/session" {
			_, _ = w.Write([]byte(`{"data":{"token":"tok-1"}}`))
			return
		}
		submitted = r.URL.EscapedPath()
		assert.Empty(t, r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"reference":"ACME-78"}}`))
	}))
	defer srv.Close()

	runner, _ := newTestRunner(map[string]string{"ACME_PORTAL_KEY": "secret"})
	res := runner.Run(context.Background(), parseFor(t, srv.URL), ClaimData{Number: "A/1?x#2"})

	require.NoError(t, res.Err)
	assert.Equal(t, "/api/claims/A%2F1%3Fx%232/report", submitted)
}

func TestRunner_StopsOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":"bad key"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	runner, slept := newTestRunner(map[string]string{"ACME_PORTAL_KEY": "secret"})
	res := runner.Run(context.Background(), parseFor(t, srv.URL), ClaimData{Number: "CLM-9"})

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "login", res.FailedStep)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, *slept)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	var stepErr *StepError
	require.ErrorAs(t, res.Err, &stepErr)
	assert.Equal(t, http.StatusBadRequest, stepErr.Status)
}

func TestRunner_GivesUpAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	runner, slept := newTestRunner(map[string]string{"ACME_PORTAL_KEY": "secret"})
	res := runner.Run(context.Background(), parseFor(t, srv.URL), ClaimData{})

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *slept)
}

func TestRunner_SuccessPathFalseAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/session" {
			_, _ = w.Write([]byte(`{"data":{"token":"t"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":false}`))
	}))
	defer srv.Close()

	runner, _ := newTestRunner(map[string]string{"ACME_PORTAL_KEY": "secret"})
	res := runner.Run(context.Background(), parseFor(t, srv.URL), ClaimData{Number: "X"})
	assert.Equal(t, "submit", res.FailedStep)
	assert.Contains(t, res.Err.Error(), "success check")
}

func TestRunner_MissingCredentials(t *testing.T) {
	runner, _ := newTestRunner(nil)
	res := runner.Run(context.Background(), parseFor(t, "http://127.0.0.1:1"), ClaimData{})
	assert.Equal(t, "credentials", res.FailedStep)
	assert.Zero(t, res.Attempts)
}

func TestBackoff_Capped(t *testing.T) {
	runner, _ := newTestRunner(nil)
	p := RetryPolicy{InitialBackoffMS: 100, MaxBackoffMS: 300, Multiplier: 2}.withDefaults()
	assert.Equal(t, 100*time.Millisecond, runner.backoff(p, 1))
	assert.Equal(t, 200*time.Millisecond, runner.backoff(p, 2))
	assert.Equal(t, 300*time.Millisecond, runner.backoff(p, 3))
}

func TestParse_RejectsInvalid(t *testing.T) {
	_, err := Parse([]byte(`name = "x"
version = 1
base_url = "https://portal.example.com"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one step")

	_, err = Parse([]byte(`name = "x"
version = 1
base_url = "https://portal.example.com"
[[steps]]
method = "TRACE"
path = "/{{ .claim.Number"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
	assert.Contains(t, err.Error(), "parse template")
}

func TestLoadDir_KeepsHighestVersion(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, version int) {
		body := sprintf(`name = "acme"
version = %d
base_url = "https://portal.example.com"
[[steps]]
path = "/v%d"
`, version, version)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	write("acme-v3.toml", 3)
	write("acme-v1.toml", 1)

	reg, err := LoadDir(dir)
	require.NoError(t, err)
	c, ok := reg.Get("acme")
	require.True(t, ok)
	assert.Equal(t, 3, c.Version)
	assert.Len(t, reg.List(), 1)

	empty, err := LoadDir(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, empty.List())
}

func sprintf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}
