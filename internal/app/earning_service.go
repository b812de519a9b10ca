package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"adjusterhub/internal/apperr"
	"adjusterhub/internal/model"
	"adjusterhub/internal/repository"
)

var (
	ErrPayoutBelowMinimum = apperr.WithCode(apperr.KindPayment, 40201, "available balance below payout minimum")
	ErrPayoutNotFound     = apperr.New(apperr.KindNotFound, "payout not found")
	ErrPayoutSettled      = apperr.WithCode(apperr.KindConflict, 40920, "payout already settled")
)

type EarningSummary struct {
	TotalCents      int64 `json:"total_cents"`
	AvailableCents  int64 `json:"available_cents"`
	ProcessingCents int64 `json:"processing_cents"`
	PaidCents       int64 `json:"paid_cents"`
	MinPayoutCents  int64 `json:"min_payout_cents"`
}

type EarningService struct {
	earningRepo *repository.EarningRepository
	payoutRepo  *repository.PayoutRepository
	notifier    *NotificationService
	minCents    int64
	now         func() time.Time
}

func NewEarningService(
	earningRepo *repository.EarningRepository,
	payoutRepo *repository.PayoutRepository,
	notifier *NotificationService,
	minCents int64,
) *EarningService {
	return &EarningService{
		earningRepo: earningRepo,
		payoutRepo:  payoutRepo,
		notifier:    notifier,
		minCents:    minCents,
		now:         time.Now,
	}
}

func (s *EarningService) Summary(userID uint) (*EarningSummary, error) {
	sums, err := s.earningRepo.SumByStatus(userID)
	if err != nil {
		return nil, err
	}
	summary := &EarningSummary{
		AvailableCents:  sums[model.EarningAvailable],
		ProcessingCents: sums[model.EarningProcessing],
		PaidCents:       sums[model.EarningPaid],
		MinPayoutCents:  s.minCents,
	}
	summary.TotalCents = summary.AvailableCents + summary.ProcessingCents + summary.PaidCents
	return summary, nil
}

func (s *EarningService) ListEarnings(userID uint, status string) ([]model.Earning, error) {
	switch status {
	case "", model.EarningAvailable, model.EarningProcessing, model.EarningPaid:
	default:
		return nil, ErrInvalidInput
	}
	return s.earningRepo.ListByUserID(userID, status)
}

func (s *EarningService) ListPayouts(userID uint) ([]model.Payout, error) {
	return s.payoutRepo.ListByUserID(userID)
}

func (s *EarningService) RequestPayout(userID uint) (*model.Payout, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	payout, err := s.payoutRepo.Request(userID, s.minCents)
	if err != nil {
		if errors.Is(err, repository.ErrPayoutBelowMinimum) {
			return nil, ErrPayoutBelowMinimum.WithDetails(map[string]string{
				"min_cents": fmt.Sprintf("%d", s.minCents),
			})
		}
		return nil, err
	}
	return payout, nil
}

func (s *EarningService) CompletePayout(id uint, reference string) (*model.Payout, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrInvalidInput
	}
	payout, err := s.settle(id, true, reference, "")
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyQuietly(payout.UserID, NotifyPayoutPaid,
		fmt.Sprintf("Payout of %s sent", formatCents(payout.AmountCents)),
		"Reference "+reference,
		map[string]interface{}{"payout_id": payout.ID},
	)
	return payout, nil
}

// FailPayout releases the reserved earnings back to available.
func (s *EarningService) FailPayout(id uint, reason string) (*model.Payout, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "payout failed"
	}
	payout, err := s.settle(id, false, "", reason)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyQuietly(payout.UserID, NotifyPayoutFailed,
		fmt.Sprintf("Payout of %s failed", formatCents(payout.AmountCents)),
		reason,
		map[string]interface{}{"payout_id": payout.ID},
	)
	return payout, nil
}

func (s *EarningService) settle(id uint, paid bool, reference, reason string) (*model.Payout, error) {
	existing, err := s.payoutRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrPayoutNotFound
	}
	if existing.Status != model.PayoutRequested {
		return nil, ErrPayoutSettled
	}
	payout, err := s.payoutRepo.Settle(id, paid, reference, reason, s.now())
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, ErrPayoutSettled
		}
		return nil, err
	}
	return payout, nil
}
