package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"adjusterhub/internal/app"
	"adjusterhub/internal/transport/http/response"
)

const ContextPrincipalKey = "principal"

type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*app.Principal, error)
}

// AuthSession resolves the bearer token, or the session cookie, to a live session.
func AuthSession(auth Authenticator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && cookieName != "" {
			token, _ = c.Cookie(cookieName)
		}
		if token == "" {
			response.Fail(c, app.ErrSessionInvalid)
			return
		}
		p, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.Fail(c, err)
			return
		}
		c.Set(ContextPrincipalKey, *p)
		c.Set(response.LoggerKey, response.Logger(c).With(zap.Uint("user_id", p.UserID)))
		c.Next()
	}
}

func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok {
			response.Fail(c, app.ErrSessionInvalid)
			return
		}
		if !p.HasRole(roles...) {
			response.Fail(c, app.ErrForbidden)
			return
		}
		c.Next()
	}
}

func CurrentPrincipal(c *gin.Context) (app.Principal, bool) {
	v, ok := c.Get(ContextPrincipalKey)
	if !ok {
		return app.Principal{}, false
	}
	p, ok := v.(app.Principal)
	return p, ok
}

// Client describes the caller's connection for audit records.
func Client(c *gin.Context) app.ClientInfo {
	return app.ClientInfo{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	header = strings.TrimSpace(header)
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
