package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"adjusterhub/internal/app"
	"adjusterhub/internal/model"
	"adjusterhub/internal/transport/http/response"
)

type ClaimHandler struct {
	claimService *app.ClaimService
}

type CreateClaimRequest struct {
	FirmID      uint       `json:"firm_id"`
	ClaimNumber string     `json:"claim_number" binding:"required,max=64"`
	Title       string     `json:"title" binding:"required,max=200"`
	Description string     `json:"description" binding:"max=10000"`
	LossType    string     `json:"loss_type" binding:"max=32"`
	Address     string     `json:"address" binding:"max=255"`
	City        string     `json:"city" binding:"max=128"`
	State       string     `json:"state" binding:"omitempty,len=2,alpha"`
	FeeCents    int64      `json:"fee_cents" binding:"gte=0"`
	DueAt       *time.Time `json:"due_at"`
}

type UpdateClaimRequest struct {
	Title       *string    `json:"title" binding:"omitempty,max=200"`
	Description *string    `json:"description" binding:"omitempty,max=10000"`
	LossType    *string    `json:"loss_type" binding:"omitempty,max=32"`
	Address     *string    `json:"address" binding:"omitempty,max=255"`
	City        *string    `json:"city" binding:"omitempty,max=128"`
	State       *string    `json:"state" binding:"omitempty,len=2,alpha"`
	FeeCents    *int64     `json:"fee_cents" binding:"omitempty,gte=0"`
	DueAt       *time.Time `json:"due_at"`
}

func NewClaimHandler(claimService *app.ClaimService) *ClaimHandler {
	return &ClaimHandler{claimService: claimService}
}

func (h *ClaimHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req CreateClaimRequest
	if !bindJSON(c, &req) {
		return
	}
	claim, err := h.claimService.Create(p, app.CreateClaimInput{
		FirmID:      req.FirmID,
		ClaimNumber: req.ClaimNumber,
		Title:       req.Title,
		Description: req.Description,
		LossType:    req.LossType,
		Address:     req.Address,
		City:        req.City,
		State:       req.State,
		FeeCents:    req.FeeCents,
		DueAt:       req.DueAt,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, claim)
}

func (h *ClaimHandler) Update(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req UpdateClaimRequest
	if !bindJSON(c, &req) {
		return
	}
	claim, err := h.claimService.Update(p, id, app.UpdateClaimInput(req))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, claim)
}

func (h *ClaimHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	claim, err := h.claimService.Get(p, id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, claim)
}

// List accepts status as a comma separated list.
func (h *ClaimHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	filter := app.ClaimListFilter{
		Mine:     queryBool(c, "mine"),
		State:    c.Query("state"),
		LossType: c.Query("loss_type"),
		Query:    c.Query("q"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "size", 20),
	}
	filter.MinFeeCents = int64(queryInt(c, "min_fee_cents", 0))
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.Statuses = append(filter.Statuses, model.ClaimStatus(s))
			}
		}
	}
	page, err := h.claimService.List(p, filter)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, page)
}

func (h *ClaimHandler) Accept(c *gin.Context)   { h.act(c, h.claimService.Accept) }
func (h *ClaimHandler) Start(c *gin.Context)    { h.act(c, h.claimService.Start) }
func (h *ClaimHandler) Submit(c *gin.Context)   { h.act(c, h.claimService.Submit) }
func (h *ClaimHandler) Release(c *gin.Context)  { h.act(c, h.claimService.Release) }
func (h *ClaimHandler) Complete(c *gin.Context) { h.act(c, h.claimService.Complete) }
func (h *ClaimHandler) Cancel(c *gin.Context)   { h.act(c, h.claimService.Cancel) }

func (h *ClaimHandler) act(c *gin.Context, fn func(app.Principal, uint) (*model.Claim, error)) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	claim, err := fn(p, id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, claim)
}
