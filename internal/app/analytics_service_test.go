package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adjusterhub/internal/model"
)

func TestDashboards(t *testing.T) {
	f := newClaimFixture(t)
	svc := f.env.claimSvc
	analytics := NewAnalyticsService(f.env.claims, f.env.earnings, time.Minute)

	_, err := svc.Accept(f.adjuster, f.claim.ID)
	require.NoError(t, err)
	_, err = svc.Start(f.adjuster, f.claim.ID)
	require.NoError(t, err)
	_, err = svc.Submit(f.adjuster, f.claim.ID)
	require.NoError(t, err)
	_, err = svc.Complete(f.firmUser, f.claim.ID)
	require.NoError(t, err)
	_, err = svc.Create(f.firmUser, CreateClaimInput{ClaimNumber: "CLM-200", Title: "Wind", FeeCents: 10000})
	require.NoError(t, err)

	out, err := analytics.Dashboard(f.adjuster)
	require.NoError(t, err)
	adj := out.(*AdjusterDashboard)
	assert.Equal(t, int64(1), adj.ClaimsByStatus[model.ClaimCompleted])
	assert.Equal(t, 1, adj.CompletedThisMonth)
	assert.Equal(t, int64(45000), adj.Earnings.AvailableCents)
	assert.Zero(t, adj.ActiveClaims)

	out, err = analytics.Dashboard(f.firmUser)
	require.NoError(t, err)
	firm := out.(*FirmDashboard)
	assert.Equal(t, int64(1), firm.OpenClaims)
	assert.Equal(t, int64(1), firm.ClaimsByStatus[model.ClaimAvailable])

	_, err = svc.Create(f.firmUser, CreateClaimInput{ClaimNumber: "CLM-201", Title: "Fire", FeeCents: 10000})
	require.NoError(t, err)
	cached, err := analytics.FirmDashboard(f.firm.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached.OpenClaims)

	_, err = analytics.Dashboard(Principal{UserID: 99, Role: model.RoleAdmin})
	assert.ErrorIs(t, err, ErrForbidden)
}
