package app

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"adjusterhub/internal/apperr"
	"adjusterhub/internal/model"
	"adjusterhub/internal/repository"
)

var (
	ErrClaimNotFound       = apperr.New(apperr.KindNotFound, "claim not found")
	ErrIllegalTransition   = apperr.WithCode(apperr.KindConflict, 40910, "claim cannot move to that status")
	ErrClaimNumberConflict = apperr.WithCode(apperr.KindConflict, 40911, "claim number already exists")
	ErrClaimNotEditable    = apperr.WithCode(apperr.KindConflict, 40912, "claim can only be edited while available")
)

type ClaimAction string

const (
	ActionAccept   ClaimAction = "accept"
	ActionStart    ClaimAction = "start"
	ActionSubmit   ClaimAction = "submit"
	ActionRelease  ClaimAction = "release"
	ActionComplete ClaimAction = "complete"
	ActionCancel   ClaimAction = "cancel"
)

type claimTransition struct {
	from []model.ClaimStatus
	to   model.ClaimStatus
}

var claimTransitions = map[ClaimAction]claimTransition{
	ActionAccept:   {from: []model.ClaimStatus{model.ClaimAvailable}, to: model.ClaimAssigned},
	ActionStart:    {from: []model.ClaimStatus{model.ClaimAssigned}, to: model.ClaimInProgress},
	ActionSubmit:   {from: []model.ClaimStatus{model.ClaimInProgress}, to: model.ClaimSubmitted},
	ActionRelease:  {from: []model.ClaimStatus{model.ClaimAssigned}, to: model.ClaimAvailable},
	ActionComplete: {from: []model.ClaimStatus{model.ClaimSubmitted}, to: model.ClaimCompleted},
	ActionCancel:   {from: []model.ClaimStatus{model.ClaimAvailable, model.ClaimAssigned, model.ClaimInProgress}, to: model.ClaimCancelled},
}

// CanTransition reports whether action is legal from status.
func CanTransition(action ClaimAction, status model.ClaimStatus) bool {
	t, ok := claimTransitions[action]
	if !ok {
		return false
	}
	for _, from := range t.from {
		if from == status {
			return true
		}
	}
	return false
}

type ClaimService struct {
	claimRepo *repository.ClaimRepository
	userRepo  *repository.UserRepository
	notifier  *NotificationService
	log       *zap.Logger
	now       func() time.Time
}

type CreateClaimInput struct {
	FirmID      uint
	ClaimNumber string
	Title       string
	Description string
	LossType    string
	Address     string
	City        string
	State       string
	FeeCents    int64
	DueAt       *time.Time
}

type UpdateClaimInput struct {
	Title       *string
	Description *string
	LossType    *string
	Address     *string
	City        *string
	State       *string
	FeeCents    *int64
	DueAt       *time.Time
}

type ClaimListFilter struct {
	Mine        bool
	Statuses    []model.ClaimStatus
	State       string
	LossType    string
	MinFeeCents int64
	Query       string
	Page        int
	PageSize    int
}

type ClaimPage struct {
	Items []model.Claim `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
}

func NewClaimService(
	claimRepo *repository.ClaimRepository,
	userRepo *repository.UserRepository,
	notifier *NotificationService,
	log *zap.Logger,
) *ClaimService {
	return &ClaimService{
		claimRepo: claimRepo,
		userRepo:  userRepo,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
	}
}

func (s *ClaimService) Create(p Principal, input CreateClaimInput) (*model.Claim, error) {
	firmID := p.FirmID
	switch {
	case p.Role == model.RoleAdmin:
		firmID = input.FirmID
	case p.Role != model.RoleFirm:
		return nil, ErrForbidden
	}
	number := strings.TrimSpace(input.ClaimNumber)
	title := strings.TrimSpace(input.Title)
	if firmID == 0 || number == "" || title == "" || input.FeeCents < 0 {
		return nil, ErrInvalidInput
	}

	claim := &model.Claim{
		FirmID:      firmID,
		ClaimNumber: number,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		LossType:    strings.ToLower(strings.TrimSpace(input.LossType)),
		Address:     strings.TrimSpace(input.Address),
		City:        strings.TrimSpace(input.City),
		State:       strings.ToUpper(strings.TrimSpace(input.State)),
		FeeCents:    input.FeeCents,
		Status:      model.ClaimAvailable,
		DueAt:       input.DueAt,
	}
	if err := s.claimRepo.Create(claim); err != nil {
		if apperr.IsKind(err, apperr.KindConflict) {
			return nil, ErrClaimNumberConflict
		}
		return nil, err
	}
	return claim, nil
}

func (s *ClaimService) Update(p Principal, id uint, input UpdateClaimInput) (*model.Claim, error) {
	claim, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if !ownsAsFirm(p, claim) {
		return nil, ErrForbidden
	}
	if claim.Status != model.ClaimAvailable {
		return nil, ErrClaimNotEditable
	}
	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, ErrInvalidInput
		}
		claim.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		claim.Description = strings.TrimSpace(*input.Description)
	}
	if input.LossType != nil {
		claim.LossType = strings.ToLower(strings.TrimSpace(*input.LossType))
	}
	if input.Address != nil {
		claim.Address = strings.TrimSpace(*input.Address)
	}
	if input.City != nil {
		claim.City = strings.TrimSpace(*input.City)
	}
	if input.State != nil {
		claim.State = strings.ToUpper(strings.TrimSpace(*input.State))
	}
	if input.FeeCents != nil {
		if *input.FeeCents < 0 {
			return nil, ErrInvalidInput
		}
		claim.FeeCents = *input.FeeCents
	}
	if input.DueAt != nil {
		claim.DueAt = input.DueAt
	}
	if err := s.claimRepo.Update(claim); err != nil {
		return nil, err
	}
	return claim, nil
}

func (s *ClaimService) Get(p Principal, id uint) (*model.Claim, error) {
	claim, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if !canView(p, claim) {
		return nil, ErrClaimNotFound
	}
	return claim, nil
}

// List scopes the query to what the caller may see. Adjusters browse the open market
// unless Mine is set.
func (s *ClaimService) List(p Principal, filter ClaimListFilter) (*ClaimPage, error) {
	q := repository.ClaimFilter{
		Statuses:    filter.Statuses,
		State:       strings.ToUpper(strings.TrimSpace(filter.State)),
		LossType:    strings.ToLower(strings.TrimSpace(filter.LossType)),
		MinFeeCents: filter.MinFeeCents,
		Query:       strings.TrimSpace(filter.Query),
		Page:        filter.Page,
		PageSize:    filter.PageSize,
	}
	switch p.Role {
	case model.RoleAdjuster:
		if filter.Mine {
			q.AdjusterID = p.UserID
		} else {
			q.Statuses = []model.ClaimStatus{model.ClaimAvailable}
		}
	case model.RoleFirm:
		if p.FirmID == 0 {
			return nil, ErrForbidden
		}
		q.FirmID = p.FirmID
	case model.RoleAdmin:
	default:
		return nil, ErrForbidden
	}

	items, total, err := s.claimRepo.List(q)
	if err != nil {
		return nil, err
	}
	page, size := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &ClaimPage{Items: items, Total: total, Page: page, Size: size}, nil
}

func (s *ClaimService) Accept(p Principal, id uint) (*model.Claim, error) {
	if p.Role != model.RoleAdjuster {
		return nil, ErrForbidden
	}
	now := s.now()
	claim, err := s.transition(id, ActionAccept, func(*model.Claim) bool { return true }, map[string]interface{}{
		"adjuster_id": p.UserID,
		"assigned_at": now,
	})
	if err != nil {
		return nil, err
	}
	s.notifyFirm(claim, NotifyClaimAssigned, fmt.Sprintf("Claim %s accepted", claim.ClaimNumber))
	return claim, nil
}

func (s *ClaimService) Start(p Principal, id uint) (*model.Claim, error) {
	claim, err := s.transition(id, ActionStart, assignedTo(p), nil)
	if err != nil {
		return nil, err
	}
	s.notifyFirm(claim, NotifyClaimStarted, fmt.Sprintf("Work started on claim %s", claim.ClaimNumber))
	return claim, nil
}

func (s *ClaimService) Submit(p Principal, id uint) (*model.Claim, error) {
	claim, err := s.transition(id, ActionSubmit, assignedTo(p), map[string]interface{}{
		"submitted_at": s.now(),
	})
	if err != nil {
		return nil, err
	}
	s.notifyFirm(claim, NotifyClaimSubmitted, fmt.Sprintf("Claim %s submitted for review", claim.ClaimNumber))
	return claim, nil
}

func (s *ClaimService) Release(p Principal, id uint) (*model.Claim, error) {
	claim, err := s.transition(id, ActionRelease, assignedTo(p), map[string]interface{}{
		"adjuster_id": nil,
		"assigned_at": nil,
	})
	if err != nil {
		return nil, err
	}
	s.notifyFirm(claim, NotifyClaimReleased, fmt.Sprintf("Claim %s released back to the market", claim.ClaimNumber))
	return claim, nil
}

// Complete closes a submitted claim and books the fee as an earning for its adjuster.
// The status change and the earning commit together.
func (s *ClaimService) Complete(p Principal, id uint) (*model.Claim, error) {
	before, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if !firmOrAdmin(p)(before) {
		return nil, ErrForbidden
	}
	if !CanTransition(ActionComplete, before.Status) {
		return nil, ErrIllegalTransition
	}
	var earning *model.Earning
	if before.AdjusterID != nil {
		earning = &model.Earning{
			UserID:      *before.AdjusterID,
			ClaimID:     before.ID,
			AmountCents: before.FeeCents,
			Status:      model.EarningAvailable,
		}
	}
	t := claimTransitions[ActionComplete]
	ok, err := s.claimRepo.Complete(id, t.from, map[string]interface{}{
		"status":       t.to,
		"completed_at": s.now(),
	}, earning)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrIllegalTransition
	}
	claim, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if earning != nil {
		s.notifier.NotifyQuietly(earning.UserID, NotifyClaimCompleted,
			fmt.Sprintf("Claim %s completed", claim.ClaimNumber),
			fmt.Sprintf("%s added to your available earnings", formatCents(claim.FeeCents)),
			map[string]interface{}{"claim_id": claim.ID, "earning_id": earning.ID},
		)
	}
	return claim, nil
}

func (s *ClaimService) Cancel(p Principal, id uint) (*model.Claim, error) {
	before, err := s.load(id)
	if err != nil {
		return nil, err
	}
	claim, err := s.transition(id, ActionCancel, firmOrAdmin(p), nil)
	if err != nil {
		return nil, err
	}
	if before.AdjusterID != nil {
		s.notifier.NotifyQuietly(*before.AdjusterID, NotifyClaimCancelled,
			fmt.Sprintf("Claim %s cancelled", claim.ClaimNumber), "",
			map[string]interface{}{"claim_id": claim.ID},
		)
	}
	return claim, nil
}

// transition applies action with a conditional update, so two racing callers cannot
// both move the claim.
func (s *ClaimService) transition(id uint, action ClaimAction, allowed func(*model.Claim) bool, extra map[string]interface{}) (*model.Claim, error) {
	claim, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if !allowed(claim) {
		return nil, ErrForbidden
	}
	t := claimTransitions[action]
	if !CanTransition(action, claim.Status) {
		return nil, ErrIllegalTransition
	}
	updates := map[string]interface{}{"status": t.to}
	for k, v := range extra {
		updates[k] = v
	}
	ok, err := s.claimRepo.Transition(id, t.from, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrIllegalTransition
	}
	return s.load(id)
}

func (s *ClaimService) load(id uint) (*model.Claim, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	claim, err := s.claimRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, ErrClaimNotFound
	}
	return claim, nil
}

func (s *ClaimService) notifyFirm(claim *model.Claim, kind, title string) {
	users, err := s.userRepo.ListByFirmID(claim.FirmID)
	if err != nil {
		s.log.Warn("list firm users failed", zap.Uint("firm_id", claim.FirmID), zap.Error(err))
		return
	}
	for _, u := range users {
		s.notifier.NotifyQuietly(u.ID, kind, title, claim.Title, map[string]interface{}{"claim_id": claim.ID})
	}
}

func isAssignee(p Principal, claim *model.Claim) bool {
	return claim.AdjusterID != nil && *claim.AdjusterID == p.UserID
}

func ownsAsFirm(p Principal, claim *model.Claim) bool {
	return p.Role == model.RoleAdmin || (p.Role == model.RoleFirm && p.FirmID != 0 && p.FirmID == claim.FirmID)
}

func canView(p Principal, claim *model.Claim) bool {
	switch p.Role {
	case model.RoleAdmin:
		return true
	case model.RoleFirm:
		return ownsAsFirm(p, claim)
	case model.RoleAdjuster:
		return claim.Status == model.ClaimAvailable || isAssignee(p, claim)
	}
	return false
}

func assignedTo(p Principal) func(*model.Claim) bool {
	return func(c *model.Claim) bool { return p.Role == model.RoleAdjuster && isAssignee(p, c) }
}

func firmOrAdmin(p Principal) func(*model.Claim) bool {
	return func(c *model.Claim) bool { return ownsAsFirm(p, c) }
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
