package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"adjusterhub/internal/app"
	"adjusterhub/internal/repository"
	"adjusterhub/internal/transport/http/response"
)

type AdminHandler struct {
	auditor *app.Auditor
}

func NewAdminHandler(auditor *app.Auditor) *AdminHandler {
	return &AdminHandler{auditor: auditor}
}

// SecurityEvents lists recent events. since takes an RFC 3339 timestamp.
func (h *AdminHandler) SecurityEvents(c *gin.Context) {
	filter := repository.SecurityEventFilter{
		Type:      c.Query("type"),
		IPAddress: c.Query("ip"),
		UserID:    uint(queryInt(c, "user_id", 0)),
		Limit:     queryInt(c, "limit", 100),
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Fail(c, app.ErrInvalidInput.WithDetails(map[string]string{"since": "rfc3339"}))
			return
		}
		filter.Since = since
	}
	events, err := h.auditor.ListEvents(filter)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, events)
}
