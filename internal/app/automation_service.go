package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"adjusterhub/internal/apperr"
	"adjusterhub/internal/automation"
	"adjusterhub/internal/metrics"
	"adjusterhub/internal/model"
	"adjusterhub/internal/pkg/textutil"
	"adjusterhub/internal/repository"
)

var (
	ErrClaimNotSubmitted  = apperr.WithCode(apperr.KindConflict, 40913, "claim must be submitted before portal delivery")
	ErrNoPortalConnector  = apperr.WithCode(apperr.KindValidation, 40004, "firm has no portal connector")
	ErrConnectorNotLoaded = apperr.New(apperr.KindNotFound, "portal connector not loaded")
)

type AutomationService struct {
	claimRepo *repository.ClaimRepository
	firmRepo  *repository.FirmRepository
	userRepo  *repository.UserRepository
	logRepo   *repository.AutomationLogRepository
	registry  *automation.Registry
	runner    *automation.Runner
	notifier  *NotificationService
	log       *zap.Logger
}

func NewAutomationService(
	claimRepo *repository.ClaimRepository,
	firmRepo *repository.FirmRepository,
	userRepo *repository.UserRepository,
	logRepo *repository.AutomationLogRepository,
	registry *automation.Registry,
	runner *automation.Runner,
	notifier *NotificationService,
	log *zap.Logger,
) *AutomationService {
	return &AutomationService{
		claimRepo: claimRepo,
		firmRepo:  firmRepo,
		userRepo:  userRepo,
		logRepo:   logRepo,
		registry:  registry,
		runner:    runner,
		notifier:  notifier,
		log:       log,
	}
}

// SubmitClaim delivers a submitted claim to its firm's portal. A failed run is not an
// error: the returned log carries the outcome.
func (s *AutomationService) SubmitClaim(ctx context.Context, p Principal, claimID uint) (*model.AutomationLog, error) {
	claim, err := s.claimRepo.GetByID(claimID)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, ErrClaimNotFound
	}
	if p.Role != model.RoleAdmin && !(p.Role == model.RoleAdjuster && isAssignee(p, claim)) {
		return nil, ErrForbidden
	}
	if claim.Status != model.ClaimSubmitted {
		return nil, ErrClaimNotSubmitted
	}

	firm, err := s.firmRepo.GetByID(claim.FirmID)
	if err != nil {
		return nil, err
	}
	if firm == nil || firm.PortalConnector == "" {
		return nil, ErrNoPortalConnector
	}
	connector, ok := s.registry.Get(firm.PortalConnector)
	if !ok {
		return nil, ErrConnectorNotLoaded
	}

	data := automation.ClaimData{
		ID:          claim.ID,
		Number:      claim.ClaimNumber,
		Title:       claim.Title,
		Description: claim.Description,
		LossType:    claim.LossType,
		Address:     claim.Address,
		City:        claim.City,
		State:       claim.State,
		FeeCents:    claim.FeeCents,
	}
	if claim.AdjusterID != nil {
		adjuster, err := s.userRepo.GetByID(*claim.AdjusterID)
		if err != nil {
			return nil, err
		}
		if adjuster != nil {
			data.AdjusterName = adjuster.Name
			data.AdjusterEmail = adjuster.Email
		}
	}

	res := s.runner.Run(ctx, connector, data)
	metrics.RecordAutomationRun(res.Connector, res.Status, res.Duration)

	entry := &model.AutomationLog{
		ClaimID:     claim.ID,
		FirmID:      claim.FirmID,
		TriggeredBy: p.UserID,
		Connector:   res.Connector,
		Version:     res.Version,
		Status:      res.Status,
		Attempts:    res.Attempts,
		FailedStep:  res.FailedStep,
		ExternalRef: res.ExternalRef,
		DurationMS:  res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		entry.Error = textutil.Truncate(res.Err.Error(), 2000)
	}
	if err := s.logRepo.Create(entry); err != nil {
		return nil, err
	}

	if res.Status != automation.StatusSuccess {
		s.log.Warn("portal submission failed",
			zap.Uint("claim_id", claim.ID),
			zap.String("connector", res.Connector),
			zap.String("step", res.FailedStep),
			zap.Error(res.Err),
		)
		s.notifier.NotifyQuietly(p.UserID, NotifyAutomationError,
			fmt.Sprintf("Portal submission failed for claim %s", claim.ClaimNumber),
			entry.Error,
			map[string]interface{}{"claim_id": claim.ID, "automation_log_id": entry.ID},
		)
		return entry, nil
	}

	if res.ExternalRef != "" {
		if _, err := s.claimRepo.Transition(claim.ID, []model.ClaimStatus{model.ClaimSubmitted}, map[string]interface{}{
			"external_ref": res.ExternalRef,
		}); err != nil {
			return nil, err
		}
	}
	s.log.Info("portal submission succeeded",
		zap.Uint("claim_id", claim.ID),
		zap.String("connector", res.Connector),
		zap.String("external_ref", res.ExternalRef),
		zap.Int("attempts", res.Attempts),
	)
	return entry, nil
}

func (s *AutomationService) ListLogs(p Principal, claimID uint) ([]model.AutomationLog, error) {
	claim, err := s.claimRepo.GetByID(claimID)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, ErrClaimNotFound
	}
	if !ownsAsFirm(p, claim) && !isAssignee(p, claim) {
		return nil, ErrForbidden
	}
	return s.logRepo.ListByClaimID(claimID)
}

func (s *AutomationService) ListConnectors() []*automation.Connector {
	return s.registry.List()
}
