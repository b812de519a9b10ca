package handler

import (
	"github.com/gin-gonic/gin"

	"adjusterhub/internal/app"
	"adjusterhub/internal/transport/http/response"
)

type EarningHandler struct {
	earningService *app.EarningService
}

type CompletePayoutRequest struct {
	Reference string `json:"reference" binding:"required,max=128"`
}

type FailPayoutRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

func NewEarningHandler(earningService *app.EarningService) *EarningHandler {
	return &EarningHandler{earningService: earningService}
}

func (h *EarningHandler) Summary(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	summary, err := h.earningService.Summary(p.UserID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, summary)
}

func (h *EarningHandler) ListEarnings(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	earnings, err := h.earningService.ListEarnings(p.UserID, c.Query("status"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, earnings)
}

func (h *EarningHandler) ListPayouts(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	payouts, err := h.earningService.ListPayouts(p.UserID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, payouts)
}

func (h *EarningHandler) RequestPayout(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	payout, err := h.earningService.RequestPayout(p.UserID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, payout)
}

func (h *EarningHandler) CompletePayout(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req CompletePayoutRequest
	if !bindJSON(c, &req) {
		return
	}
	payout, err := h.earningService.CompletePayout(id, req.Reference)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, payout)
}

func (h *EarningHandler) FailPayout(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req FailPayoutRequest
	if !bindJSON(c, &req) {
		return
	}
	payout, err := h.earningService.FailPayout(id, req.Reason)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, payout)
}
