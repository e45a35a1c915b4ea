package services

import (
	"testing"

	"bounty-board-system/models"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreviewProfitShareSplit(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPayoutService(db, nil, nil)

	project := seedProject(t, db, "founder-1")
	seedProfitSharePool(t, db, project.ID, 10, 1000)
	bounty := seedOpenBounty(t, db, project.ID, models.ClaimModeMultiple, 500)
	seedApprovedWork(t, db, bounty.ID, "alice", 450)
	seedApprovedWork(t, db, bounty.ID, "bob", 550)

	preview, err := svc.PreviewPayout(project.ID, &PayoutInput{
		ReportedProfitCents: lo.ToPtr(int64(1_000_000)),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(100_000), preview.PoolAmountCents)
	assert.Equal(t, int64(2_000), preview.PlatformFeeCents)
	assert.Equal(t, int64(1000), preview.TotalEarnedPoints)
	require.Len(t, preview.Breakdown, 2)

	// Ordered by points, largest first.
	assert.Equal(t, "bob", preview.Breakdown[0].UserID)
	assert.Equal(t, int64(53_900), preview.Breakdown[0].AmountCents)
	assert.Equal(t, 55.0, preview.Breakdown[0].SharePercent)
	assert.Equal(t, "alice", preview.Breakdown[1].UserID)
	assert.Equal(t, int64(44_100), preview.Breakdown[1].AmountCents)
	assert.Equal(t, 45.0, preview.Breakdown[1].SharePercent)

	// 44100 + 53900 = 98000: no rounding loss in this exact case.
	assert.Equal(t, int64(98_000), preview.DistributedAmountCents)
}

func TestPreviewRoundingLossBound(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPayoutService(db, nil, nil)

	project := seedProject(t, db, "founder-1")
	pool := seedProfitSharePool(t, db, project.ID, 10, 1000)
	pool.PlatformFeePercentage = 0
	require.NoError(t, db.Save(pool).Error)

	bounty := seedOpenBounty(t, db, project.ID, models.ClaimModeMultiple, 100)
	seedApprovedWork(t, db, bounty.ID, "u1", 1)
	seedApprovedWork(t, db, bounty.ID, "u2", 1)
	seedApprovedWork(t, db, bounty.ID, "u3", 1)

	// Pool amount 100¢ over 3 equal shares: 33¢ each, 1¢ undistributed.
	preview, err := svc.PreviewPayout(project.ID, &PayoutInput{
		ReportedProfitCents: lo.ToPtr(int64(1000)),
	})
	require.NoError(t, err)

	distributable := preview.PoolAmountCents - preview.PlatformFeeCents
	sum := lo.SumBy(preview.Breakdown, func(r RecipientShare) int64 { return r.AmountCents })
	assert.Equal(t, preview.DistributedAmountCents, sum)
	assert.LessOrEqual(t, sum, distributable)
	assert.Less(t, distributable-sum, int64(len(preview.Breakdown)))
	assert.Equal(t, int64(99), sum)
}

func TestPreviewWithNoContributorsIsValid(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPayoutService(db, nil, nil)

	project := seedProject(t, db, "founder-1")
	seedProfitSharePool(t, db, project.ID, 10, 1000)

	preview, err := svc.PreviewPayout(project.ID, &PayoutInput{
		ReportedProfitCents: lo.ToPtr(int64(50_000)),
	})
	require.NoError(t, err)
	assert.Empty(t, preview.Breakdown)
	assert.Equal(t, int64(0), preview.DistributedAmountCents)
}

func TestPreviewFixedBudgetClampsToRemaining(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPayoutService(db, nil, nil)

	project := seedProject(t, db, "founder-1")
	seedFixedBudgetPool(t, db, project.ID, 500_000, 480_000)
	bounty := seedOpenBounty(t, db, project.ID, models.ClaimModeSingle, 100)
	seedApprovedWork(t, db, bounty.ID, "alice", 100)

	preview, err := svc.PreviewPayout(project.ID, &PayoutInput{
		DistributionCents: lo.ToPtr(int64(50_000)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20_000), preview.PoolAmountCents)
	require.NotNil(t, preview.BudgetInfo)
	assert.Equal(t, int64(20_000), preview.BudgetInfo.RemainingCents)
}

func TestCreateFixedBudgetPayoutRejectsOverdraft(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPayoutService(db, nil, nil)

	project := seedProject(t, db, "founder-1")
	seedFixedBudgetPool(t, db, project.ID, 500_000, 480_000)
	bounty := seedOpenBounty(t, db, project.ID, models.ClaimModeSingle, 100)
	seedApprovedWork(t, db, bounty.ID, "alice", 100)

	_, err := svc.CreatePayout(project.ID, "founder-1", &PayoutInput{
		DistributionCents: lo.ToPtr(int64(50_000)),
	})
	require.Error(t, err)

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInsufficientBudget, se.Code)

	// Nothing persisted, nothing spent.
	var payouts int64
	require.NoError(t, db.Model(&models.Payout{}).Count(&payouts).Error)
	assert.Zero(t, payouts)
	var pool models.RewardPool
	require.NoError(t, db.First(&pool, "project_id = ?", project.ID).Error)
	assert.Equal(t, int64(480_000), pool.SpentCents)
}

func TestCreateFixedBudgetPayoutSpendsBudget(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPayoutService(db, nil, nil)

	project := seedProject(t, db, "founder-1")
	seedFixedBudgetPool(t, db, project.ID, 500_000, 0)
	bounty := seedOpenBounty(t, db, project.ID, models.ClaimModeSingle, 100)
	seedApprovedWork(t, db, bounty.ID, "alice", 100)

	payout, err := svc.CreatePayout(project.ID, "founder-1", &PayoutInput{
		PeriodLabel:       "Q1",
		DistributionCents: lo.ToPtr(int64(50_000)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), payout.PoolAmountCents)

	var pool models.RewardPool
	require.NoError(t, db.First(&pool, "project_id = ?", project.ID).Error)
	assert.Equal(t, int64(50_000), pool.SpentCents)
}

func TestCreatePayoutFreezesSnapshotAndPreventsDoublePay(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPayoutService(db, nil, nil)

	project := seedProject(t, db, "founder-1")
	seedProfitSharePool(t, db, project.ID, 10, 1000)
	bounty := seedOpenBounty(t, db, project.ID, models.ClaimModeMultiple, 500)
	paid := seedApprovedWork(t, db, bounty.ID, "alice", 450)
	seedApprovedWork(t, db, bounty.ID, "bob", 550)

	payout, err := svc.CreatePayout(project.ID, "founder-1", &PayoutInput{
		PeriodLabel:         "January",
		ReportedProfitCents: lo.ToPtr(int64(1_000_000)),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusAnnounced, payout.Status)
	require.Len(t, payout.Recipients, 2)
	assert.Equal(t, models.RecipientStatusPending, payout.Recipients[0].Status)

	// Consumed submissions carry the payout linkage.
	var sub models.Submission
	require.NoError(t, db.First(&sub, "id = ?", paid.ID).Error)
	require.NotNil(t, sub.PayoutID)
	assert.Equal(t, payout.ID, *sub.PayoutID)

	// The same points can never fund a second payout.
	_, err = svc.CreatePayout(project.ID, "founder-1", &PayoutInput{
		ReportedProfitCents: lo.ToPtr(int64(1_000_000)),
	})
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeNoContributors, se.Code)

	// Fresh work after the payout is distributable again — and only the
	// fresh points count.
	seedApprovedWork(t, db, bounty.ID, "carol", 200)
	second, err := svc.CreatePayout(project.ID, "founder-1", &PayoutInput{
		ReportedProfitCents: lo.ToPtr(int64(1_000_000)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(200), second.TotalEarnedPoints)
	require.Len(t, second.Recipients, 1)
	assert.Equal(t, "carol", second.Recipients[0].UserID)
}

func TestCreatePayoutRequiresFounder(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPayoutService(db, nil, nil)

	project := seedProject(t, db, "founder-1")
	seedProfitSharePool(t, db, project.ID, 10, 1000)

	_, err := svc.CreatePayout(project.ID, "mallory", &PayoutInput{
		ReportedProfitCents: lo.ToPtr(int64(1_000_000)),
	})
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeForbidden, se.Code)
}

func TestPayoutStatusIsMonotonic(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPayoutService(db, nil, nil)

	project := seedProject(t, db, "founder-1")
	seedProfitSharePool(t, db, project.ID, 10, 1000)
	bounty := seedOpenBounty(t, db, project.ID, models.ClaimModeSingle, 100)
	seedApprovedWork(t, db, bounty.ID, "alice", 100)

	payout, err := svc.CreatePayout(project.ID, "founder-1", &PayoutInput{
		ReportedProfitCents: lo.ToPtr(int64(100_000)),
	})
	require.NoError(t, err)

	// Recipients cannot confirm before the payout is sent.
	_, err = svc.ConfirmReceipt(payout.ID, "alice", false)
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidStateTransition, se.Code)

	// Only the founder can mark it sent.
	_, err = svc.MarkSent(payout.ID, "mallory", "")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeForbidden, se.Code)

	sent, err := svc.MarkSent(payout.ID, "founder-1", "wired via bank")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusSent, sent.Status)
	assert.NotNil(t, sent.SentAt)
	assert.Equal(t, "wired via bank", sent.SentNote)

	// No backward transitions.
	_, err = svc.MarkSent(payout.ID, "founder-1", "")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidStateTransition, se.Code)
}

func TestConfirmReceipt(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPayoutService(db, nil, nil)

	project := seedProject(t, db, "founder-1")
	seedProfitSharePool(t, db, project.ID, 10, 1000)
	bounty := seedOpenBounty(t, db, project.ID, models.ClaimModeMultiple, 100)
	seedApprovedWork(t, db, bounty.ID, "alice", 60)
	seedApprovedWork(t, db, bounty.ID, "bob", 40)

	payout, err := svc.CreatePayout(project.ID, "founder-1", &PayoutInput{
		ReportedProfitCents: lo.ToPtr(int64(100_000)),
	})
	require.NoError(t, err)
	_, err = svc.MarkSent(payout.ID, "founder-1", "")
	require.NoError(t, err)

	confirmed, err := svc.ConfirmReceipt(payout.ID, "alice", false)
	require.NoError(t, err)
	assert.Equal(t, models.RecipientStatusConfirmed, confirmed.Status)
	assert.NotNil(t, confirmed.ConfirmedAt)

	disputed, err := svc.ConfirmReceipt(payout.ID, "bob", true)
	require.NoError(t, err)
	assert.Equal(t, models.RecipientStatusDisputed, disputed.Status)

	// One confirmation per recipient.
	_, err = svc.ConfirmReceipt(payout.ID, "alice", false)
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidStateTransition, se.Code)

	// Confirming a payout's status never changes the payout itself.
	var reloaded models.Payout
	require.NoError(t, db.First(&reloaded, "id = ?", payout.ID).Error)
	assert.Equal(t, models.PayoutStatusSent, reloaded.Status)

	// Outsiders are not recipients.
	_, err = svc.ConfirmReceipt(payout.ID, "mallory", false)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeNotFound, se.Code)
}

func TestPreviewSnapshotsMirroredProfiles(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPayoutService(db, nil, nil)

	project := seedProject(t, db, "founder-1")
	seedProfitSharePool(t, db, project.ID, 10, 1000)
	bounty := seedOpenBounty(t, db, project.ID, models.ClaimModeSingle, 100)
	seedApprovedWork(t, db, bounty.ID, "alice", 100)

	require.NoError(t, db.Create(&models.UserMirror{
		ID:          "alice",
		Username:    "alice",
		DisplayName: "Alice Zhang",
		AvatarURL:   "https://cdn.example.com/a.png",
	}).Error)

	preview, err := svc.PreviewPayout(project.ID, &PayoutInput{
		ReportedProfitCents: lo.ToPtr(int64(100_000)),
	})
	require.NoError(t, err)
	require.Len(t, preview.Breakdown, 1)
	assert.Equal(t, "Alice Zhang", preview.Breakdown[0].UserName)
	assert.Equal(t, "https://cdn.example.com/a.png", preview.Breakdown[0].UserImage)
}
