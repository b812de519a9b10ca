package app

import (
	"strconv"
	"time"

	"adjusterhub/internal/cache"
	"adjusterhub/internal/model"
	"adjusterhub/internal/repository"
)

type AdjusterDashboard struct {
	ClaimsByStatus     map[model.ClaimStatus]int64 `json:"claims_by_status"`
	ActiveClaims       int64                       `json:"active_claims"`
	CompletedThisMonth int                         `json:"completed_this_month"`
	Earnings           EarningSummary              `json:"earnings"`
	AvgDaysToComplete  float64                     `json:"avg_days_to_complete"`
	GeneratedAt        time.Time                   `json:"generated_at"`
}

type FirmDashboard struct {
	ClaimsByStatus   map[model.ClaimStatus]int64 `json:"claims_by_status"`
	OpenClaims       int64                       `json:"open_claims"`
	AvgHoursToAssign float64                     `json:"avg_hours_to_assign"`
	GeneratedAt      time.Time                   `json:"generated_at"`
}

// AnalyticsService computes dashboards in Go so the queries stay portable, and keeps
// each result for a short TTL per user or firm.
type AnalyticsService struct {
	claimRepo  *repository.ClaimRepository
	earnings   *EarningService
	adjusters  *cache.TTLCache[AdjusterDashboard]
	firms      *cache.TTLCache[FirmDashboard]
	assignSpan time.Duration
	now        func() time.Time
}

func NewAnalyticsService(claimRepo *repository.ClaimRepository, earnings *EarningService, ttl time.Duration) *AnalyticsService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &AnalyticsService{
		claimRepo:  claimRepo,
		earnings:   earnings,
		adjusters:  cache.NewTTLCache[AdjusterDashboard](ttl),
		firms:      cache.NewTTLCache[FirmDashboard](ttl),
		assignSpan: 90 * 24 * time.Hour,
		now:        time.Now,
	}
}

func (s *AnalyticsService) Dashboard(p Principal) (interface{}, error) {
	switch p.Role {
	case model.RoleAdjuster:
		return s.AdjusterDashboard(p.UserID)
	case model.RoleFirm:
		if p.FirmID == 0 {
			return nil, ErrForbidden
		}
		return s.FirmDashboard(p.FirmID)
	default:
		return nil, ErrForbidden
	}
}

func (s *AnalyticsService) AdjusterDashboard(userID uint) (*AdjusterDashboard, error) {
	key := strconv.FormatUint(uint64(userID), 10)
	if cached, ok := s.adjusters.Get(key); ok {
		return &cached, nil
	}

	now := s.now()
	counts, err := s.claimRepo.CountByStatus(0, userID)
	if err != nil {
		return nil, err
	}
	completed, err := s.claimRepo.ListCompletedSince(userID, time.Time{})
	if err != nil {
		return nil, err
	}
	summary, err := s.earnings.Summary(userID)
	if err != nil {
		return nil, err
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	dash := AdjusterDashboard{
		ClaimsByStatus: counts,
		ActiveClaims:   counts[model.ClaimAssigned] + counts[model.ClaimInProgress] + counts[model.ClaimSubmitted],
		Earnings:       *summary,
		GeneratedAt:    now,
	}
	var totalDays float64
	var measured int
	for _, c := range completed {
		if c.CompletedAt == nil {
			continue
		}
		if !c.CompletedAt.Before(monthStart) {
			dash.CompletedThisMonth++
		}
		if c.AssignedAt != nil {
			totalDays += c.CompletedAt.Sub(*c.AssignedAt).Hours() / 24
			measured++
		}
	}
	if measured > 0 {
		dash.AvgDaysToComplete = round2(totalDays / float64(measured))
	}
	s.adjusters.Set(key, dash)
	return &dash, nil
}

func (s *AnalyticsService) FirmDashboard(firmID uint) (*FirmDashboard, error) {
	key := strconv.FormatUint(uint64(firmID), 10)
	if cached, ok := s.firms.Get(key); ok {
		return &cached, nil
	}

	now := s.now()
	counts, err := s.claimRepo.CountByStatus(firmID, 0)
	if err != nil {
		return nil, err
	}
	assigned, err := s.claimRepo.ListAssignedByFirm(firmID, now.Add(-s.assignSpan))
	if err != nil {
		return nil, err
	}

	dash := FirmDashboard{
		ClaimsByStatus: counts,
		OpenClaims:     counts[model.ClaimAvailable] + counts[model.ClaimAssigned] + counts[model.ClaimInProgress] + counts[model.ClaimSubmitted],
		GeneratedAt:    now,
	}
	var totalHours float64
	for _, c := range assigned {
		totalHours += c.AssignedAt.Sub(c.CreatedAt).Hours()
	}
	if len(assigned) > 0 {
		dash.AvgHoursToAssign = round2(totalHours / float64(len(assigned)))
	}
	s.firms.Set(key, dash)
	return &dash, nil
}

func (s *AnalyticsService) SweepCache() int {
	return s.adjusters.Sweep() + s.firms.Sweep()
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
