package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"adjusterhub/internal/app"
	"adjusterhub/internal/apperr"
	"adjusterhub/internal/transport/http/middleware"
	"adjusterhub/internal/transport/http/response"
)

var errInvalidID = apperr.WithCode(apperr.KindValidation, 40010, "invalid id")

// bindJSON decodes the body into req and answers 400 on any decode or validation failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if !apperr.IsKind(err, apperr.KindValidation) {
			err = apperr.Wrap(apperr.KindValidation, "invalid request payload", err)
		}
		response.Fail(c, err)
		return false
	}
	return true
}

func principal(c *gin.Context) (app.Principal, bool) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		response.Fail(c, app.ErrSessionInvalid)
	}
	return p, ok
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.Fail(c, errInvalidID)
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryBool(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.Query(key))
	return v
}
