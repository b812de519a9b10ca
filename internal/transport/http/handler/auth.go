package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"adjusterhub/internal/app"
	"adjusterhub/internal/transport/http/middleware"
	"adjusterhub/internal/transport/http/response"
)

type CookieSettings struct {
	Name   string
	Secure bool
}

type AuthHandler struct {
	authService *app.AuthService
	cookie      CookieSettings
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=128"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,max=128"`
	Role     string `json:"role" binding:"omitempty,oneof=adjuster firm"`
	FirmCode string `json:"firm_code" binding:"max=32"`
	FirmName string `json:"firm_name" binding:"max=128"`
}

type LoginRequest struct {
	Email         string `json:"email" binding:"required,email,max=255"`
	Password      string `json:"password" binding:"required,max=128"`
	TwoFactorCode string `json:"two_factor_code" binding:"omitempty,len=6,numeric"`
}

type TwoFactorCodeRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

type DisableTwoFactorRequest struct {
	Password string `json:"password" binding:"required"`
	Code     string `json:"code" binding:"required,len=6,numeric"`
}

func NewAuthHandler(authService *app.AuthService, cookie CookieSettings) *AuthHandler {
	return &AuthHandler{authService: authService, cookie: cookie}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Register(c.Request.Context(), app.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		FirmCode: req.FirmCode,
		FirmName: req.FirmName,
		Client:   middleware.Client(c),
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	h.setCookie(c, result)
	response.Created(c, result)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Login(c.Request.Context(), app.LoginInput{
		Email:         req.Email,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
		Client:        middleware.Client(c),
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	h.setCookie(c, result)
	response.OK(c, result)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := h.authService.Logout(c.Request.Context(), p, middleware.Client(c)); err != nil {
		response.Fail(c, err)
		return
	}
	h.clearCookie(c)
	response.OK(c, gin.H{"logged_out": true})
}

func (h *AuthHandler) Me(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	user, err := h.authService.Me(p.UserID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, user)
}

func (h *AuthHandler) ListSessions(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	sessions, err := h.authService.ListSessions(p.UserID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	type sessionView struct {
		ID        string    `json:"id"`
		IPAddress string    `json:"ip_address"`
		UserAgent string    `json:"user_agent"`
		CreatedAt time.Time `json:"created_at"`
		ExpiresAt time.Time `json:"expires_at"`
		Current   bool      `json:"current"`
	}
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView{
			ID:        s.ID,
			IPAddress: s.IPAddress,
			UserAgent: s.UserAgent,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			Current:   s.ID == p.SessionID,
		})
	}
	response.OK(c, out)
}

func (h *AuthHandler) RevokeSession(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.authService.RevokeSession(c.Request.Context(), p.UserID, id, middleware.Client(c)); err != nil {
		response.Fail(c, err)
		return
	}
	if id == p.SessionID {
		h.clearCookie(c)
	}
	response.OK(c, gin.H{"revoked_session_id": id})
}

func (h *AuthHandler) SetupTwoFactor(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	secret, err := h.authService.SetupTwoFactor(p.UserID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, secret)
}

func (h *AuthHandler) EnableTwoFactor(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req TwoFactorCodeRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.authService.EnableTwoFactor(c.Request.Context(), p.UserID, req.Code, middleware.Client(c)); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, gin.H{"two_factor_enabled": true})
}

func (h *AuthHandler) DisableTwoFactor(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req DisableTwoFactorRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.authService.DisableTwoFactor(c.Request.Context(), p.UserID, req.Password, req.Code, middleware.Client(c)); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, gin.H{"two_factor_enabled": false})
}

func (h *AuthHandler) setCookie(c *gin.Context, result *app.LoginResult) {
	if h.cookie.Name == "" || result.Token == "" || result.ExpiresAt == nil {
		return
	}
	maxAge := int(time.Until(*result.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.cookie.Name, result.Token, maxAge, "/", "", h.cookie.Secure, true)
}

func (h *AuthHandler) clearCookie(c *gin.Context) {
	if h.cookie.Name == "" {
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
}
