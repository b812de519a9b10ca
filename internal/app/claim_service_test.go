package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adjusterhub/internal/model"
)

type claimFixture struct {
	env      *testEnv
	firm     *model.Firm
	firmUser Principal
	adjuster Principal
	other    Principal
	claim    *model.Claim
}

func newClaimFixture(t *testing.T) *claimFixture {
	t.Helper()
	env := newTestEnv(t)
	firm := env.createFirm(t, "ACME")
	f := &claimFixture{
		env:      env,
		firm:     firm,
		firmUser: principalFor(env.createUser(t, "desk@acme.com", model.RoleFirm, &firm.ID)),
		adjuster: principalFor(env.createUser(t, "ada@example.com", model.RoleAdjuster, nil)),
		other:    principalFor(env.createUser(t, "bob@example.com", model.RoleAdjuster, nil)),
	}
	claim, err := env.claimSvc.Create(f.firmUser, CreateClaimInput{
		ClaimNumber: "CLM-100",
		Title:       "Hail damage",
		LossType:    "Hail",
		State:       "tx",
		FeeCents:    45000,
	})
	require.NoError(t, err)
	f.claim = claim
	return f
}

func TestClaimLifecycle_CompletionBooksOneEarning(t *testing.T) {
	f := newClaimFixture(t)
	svc := f.env.claimSvc
	assert.Equal(t, "TX", f.claim.State)
	assert.Equal(t, "hail", f.claim.LossType)

	claim, err := svc.Accept(f.adjuster, f.claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimAssigned, claim.Status)
	require.NotNil(t, claim.AdjusterID)
	assert.Equal(t, f.adjuster.UserID, *claim.AdjusterID)

	_, err = svc.Start(f.other, f.claim.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Start(f.adjuster, f.claim.ID)
	require.NoError(t, err)
	_, err = svc.Submit(f.adjuster, f.claim.ID)
	require.NoError(t, err)

	_, err = svc.Complete(f.adjuster, f.claim.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	claim, err = svc.Complete(f.firmUser, f.claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimCompleted, claim.Status)
	assert.NotNil(t, claim.CompletedAt)

	_, err = svc.Complete(f.firmUser, f.claim.ID)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	earnings, err := f.env.earnings.ListEarnings(f.adjuster.UserID, "")
	require.NoError(t, err)
	require.Len(t, earnings, 1)
	assert.Equal(t, int64(45000), earnings[0].AmountCents)
	assert.Equal(t, model.EarningAvailable, earnings[0].Status)

	page, err := f.env.notifier.List(f.adjuster.UserID, true, 1, 20)
	require.NoError(t, err)
	require.NotEmpty(t, page.Items)
	assert.Equal(t, NotifyClaimCompleted, page.Items[0].Type)

	firmPage, err := f.env.notifier.List(f.firmUser.UserID, false, 1, 50)
	require.NoError(t, err)
	assert.Len(t, firmPage.Items, 3)
}

func TestClaimComplete_RollsBackWhenEarningInsertFails(t *testing.T) {
	f := newClaimFixture(t)
	svc := f.env.claimSvc
	_, err := svc.Accept(f.adjuster, f.claim.ID)
	require.NoError(t, err)
	_, err = svc.Start(f.adjuster, f.claim.ID)
	require.NoError(t, err)
	_, err = svc.Submit(f.adjuster, f.claim.ID)
	require.NoError(t, err)

	require.NoError(t, f.env.db.Exec(`CREATE TRIGGER earnings_reject BEFORE INSERT ON earnings
		BEGIN SELECT RAISE(ABORT, 'earnings table is read-only'); END`).Error)

	_, err = svc.Complete(f.firmUser, f.claim.ID)
	require.Error(t, err)

	claim, err := f.env.claims.GetByID(f.claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimSubmitted, claim.Status)
	assert.Nil(t, claim.CompletedAt)

	require.NoError(t, f.env.db.Exec("DROP TRIGGER earnings_reject").Error)

	claim, err = svc.Complete(f.firmUser, f.claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimCompleted, claim.Status)

	earnings, err := f.env.earnings.ListEarnings(f.adjuster.UserID, "")
	require.NoError(t, err)
	require.Len(t, earnings, 1)
	assert.Equal(t, f.claim.ID, earnings[0].ClaimID)
}

func TestClaimTransitions_RejectIllegalMoves(t *testing.T) {
	f := newClaimFixture(t)
	svc := f.env.claimSvc

	_, err := svc.Start(f.adjuster, f.claim.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Submit(f.adjuster, f.claim.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Accept(f.firmUser, f.claim.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Accept(f.adjuster, f.claim.ID)
	require.NoError(t, err)
	_, err = svc.Accept(f.other, f.claim.ID)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = svc.Submit(f.adjuster, f.claim.ID)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	claim, err := svc.Release(f.adjuster, f.claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimAvailable, claim.Status)
	assert.Nil(t, claim.AdjusterID)

	claim, err = svc.Cancel(f.firmUser, f.claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimCancelled, claim.Status)

	_, err = svc.Accept(f.adjuster, f.claim.ID)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(ActionAccept, model.ClaimAvailable))
	assert.True(t, CanTransition(ActionCancel, model.ClaimInProgress))
	assert.False(t, CanTransition(ActionCancel, model.ClaimSubmitted))
	assert.False(t, CanTransition(ActionComplete, model.ClaimInProgress))
	assert.False(t, CanTransition(ClaimAction("reopen"), model.ClaimCompleted))
}

func TestClaimList_ScopesByRole(t *testing.T) {
	f := newClaimFixture(t)
	svc := f.env.claimSvc
	_, err := svc.Create(f.firmUser, CreateClaimInput{ClaimNumber: "CLM-101", Title: "Flooded basement", LossType: "flood", State: "LA", FeeCents: 30000})
	require.NoError(t, err)
	_, err = svc.Accept(f.adjuster, f.claim.ID)
	require.NoError(t, err)

	market, err := svc.List(f.other, ClaimListFilter{})
	require.NoError(t, err)
	require.Len(t, market.Items, 1)
	assert.Equal(t, "CLM-101", market.Items[0].ClaimNumber)

	mine, err := svc.List(f.adjuster, ClaimListFilter{Mine: true})
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, f.claim.ID, mine.Items[0].ID)

	firmView, err := svc.List(f.firmUser, ClaimListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), firmView.Total)

	_, err = svc.Get(f.other, f.claim.ID)
	assert.ErrorIs(t, err, ErrClaimNotFound)

	_, err = svc.Create(f.firmUser, CreateClaimInput{ClaimNumber: "CLM-101", Title: "Dup", FeeCents: 1})
	assert.ErrorIs(t, err, ErrClaimNumberConflict)

	_, err = svc.Create(f.adjuster, CreateClaimInput{ClaimNumber: "CLM-102", Title: "Nope"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestClaimUpdate_OnlyWhileAvailable(t *testing.T) {
	f := newClaimFixture(t)
	svc := f.env.claimSvc
	title := "Hail and wind damage"

	claim, err := svc.Update(f.firmUser, f.claim.ID, UpdateClaimInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, claim.Title)

	_, err = svc.Accept(f.adjuster, f.claim.ID)
	require.NoError(t, err)
	_, err = svc.Update(f.firmUser, f.claim.ID, UpdateClaimInput{Title: &title})
	assert.ErrorIs(t, err, ErrClaimNotEditable)
}
