package handler

import (
	"github.com/gin-gonic/gin"

	"adjusterhub/internal/app"
	"adjusterhub/internal/transport/http/response"
)

type AutomationHandler struct {
	automationService *app.AutomationService
}

type connectorView struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	FirmCode    string `json:"firm_code"`
	Description string `json:"description,omitempty"`
	Steps       int    `json:"steps"`
}

func NewAutomationHandler(automationService *app.AutomationService) *AutomationHandler {
	return &AutomationHandler{automationService: automationService}
}

// Submit runs the firm's portal connector for a claim. A failed run still answers 200;
// the log's status tells the outcome.
func (h *AutomationHandler) Submit(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	entry, err := h.automationService.SubmitClaim(c.Request.Context(), p, id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, entry)
}

func (h *AutomationHandler) ListLogs(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	logs, err := h.automationService.ListLogs(p, id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, logs)
}

func (h *AutomationHandler) ListConnectors(c *gin.Context) {
	connectors := h.automationService.ListConnectors()
	out := make([]connectorView, 0, len(connectors))
	for _, conn := range connectors {
		out = append(out, connectorView{
			Name:        conn.Name,
			Version:     conn.Version,
			FirmCode:    conn.FirmCode,
			Description: conn.Description,
			Steps:       len(conn.Steps),
		})
	}
	response.OK(c, out)
}
