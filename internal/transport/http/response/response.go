package response

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"adjusterhub/internal/apperr"
	"adjusterhub/internal/logging"
)

const CodeOK = 0

// LoggerKey is where the request-scoped logger lives in the gin context.
const LoggerKey = "logger"

type APIResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    interface{}       `json:"data,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type retryAfter interface {
	RetryAfter() time.Duration
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

// Abort writes an error envelope and stops the handler chain.
func Abort(c *gin.Context, httpStatus, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// Fail classifies err, logs it at its severity and writes the envelope. Internal
// causes never reach the client.
func Fail(c *gin.Context, err error) {
	classified := apperr.Classify(err)
	if classified == nil {
		return
	}
	logging.LogError(Logger(c), err,
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
	)

	var ra retryAfter
	if errors.As(err, &ra) {
		if wait := ra.RetryAfter(); wait > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}
	}
	c.AbortWithStatusJSON(classified.Status(), APIResponse{
		Code:    classified.Code,
		Message: classified.Message,
		Details: classified.Details,
	})
}

// Logger returns the request-scoped logger, or a no-op logger outside a request.
func Logger(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(LoggerKey); ok {
		if log, ok := v.(*zap.Logger); ok {
			return log
		}
	}
	return zap.NewNop()
}
