package handler

import (
	"github.com/gin-gonic/gin"

	"adjusterhub/internal/app"
	"adjusterhub/internal/transport/http/response"
)

type AnalyticsHandler struct {
	analyticsService *app.AnalyticsService
}

func NewAnalyticsHandler(analyticsService *app.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService}
}

func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	dashboard, err := h.analyticsService.Dashboard(p)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, dashboard)
}
