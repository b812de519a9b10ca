package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adjusterhub/internal/apperr"
)

type waitErr struct{ wait time.Duration }

func (e waitErr) Error() string             { return "slow down" }
func (e waitErr) RetryAfter() time.Duration { return e.wait }
func (e waitErr) Unwrap() error             { return errLimited }

var errLimited = apperr.WithCode(apperr.KindRateLimit, 42901, "Too many login attempts")

func serve(t *testing.T, err error) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)
	Fail(c, err)
	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestFail_RateLimitSetsRetryAfter(t *testing.T) {
	rec, body := serve(t, waitErr{wait: 1500 * time.Millisecond})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, 42901, body.Code)
}

func TestFail_InternalErrorsStayGeneric(t *testing.T) {
	rec, body := serve(t, errors.New("dial tcp 10.0.0.5:3306: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", body.Message)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestFail_ValidationDetails(t *testing.T) {
	err := apperr.New(apperr.KindValidation, "invalid input").WithDetails(map[string]string{"email": "required"})
	rec, body := serve(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "required", body.Details["email"])
}
