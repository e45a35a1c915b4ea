package services

import (
	"fmt"
	"testing"
	"time"

	"bounty-board-system/models"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBountyAssignsSequentialKeys(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBountyService(db, nil)

	project := seedProject(t, db, "founder-1")

	first, err := svc.CreateBounty(project.ID, "founder-1", "Fix login", "", "", lo.ToPtr(int64(100)), nil, 0, nil)
	require.NoError(t, err)
	second, err := svc.CreateBounty(project.ID, "founder-1", "Dark mode", "", "", nil, nil, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("%s-1", project.ProjectKey), first.Key)
	assert.Equal(t, fmt.Sprintf("%s-2", project.ProjectKey), second.Key)

	// Priced bounties open immediately; unpriced ones wait in the backlog.
	assert.Equal(t, models.BountyStatusOpen, first.Status)
	assert.Equal(t, models.BountyStatusBacklog, second.Status)
	assert.Equal(t, 14, first.ClaimExpiryDays)
}

func TestCreateBountyValidation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBountyService(db, nil)

	project := seedProject(t, db, "founder-1")
	var se *ServiceError

	_, err := svc.CreateBounty(project.ID, "mallory", "Fix login", "", "", nil, nil, 0, nil)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeForbidden, se.Code)

	_, err = svc.CreateBounty(project.ID, "founder-1", "Fix login", "", "FIRST_COME", nil, nil, 0, nil)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidAmount, se.Code)

	_, err = svc.CreateBounty(project.ID, "founder-1", "Fix login", "", models.ClaimModeSingle, nil, nil, 0, lo.ToPtr(3))
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidAmount, se.Code)

	_, err = svc.CreateBounty(project.ID, "founder-1", "Fix login", "", "", lo.ToPtr(int64(0)), nil, 0, nil)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidAmount, se.Code)

	_, err = svc.CreateBounty(project.ID, "founder-1", "Fix login", "", "", nil, lo.ToPtr("no-such-pool"), 0, nil)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeNotFound, se.Code)
}

func TestPriceBountyOpensBacklogItem(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBountyService(db, nil)

	project := seedProject(t, db, "founder-1")
	bounty, err := svc.CreateBounty(project.ID, "founder-1", "Spike: caching", "", "", nil, nil, 0, nil)
	require.NoError(t, err)

	priced, err := svc.PriceBounty(bounty.ID, "founder-1", 250)
	require.NoError(t, err)
	assert.Equal(t, models.BountyStatusOpen, priced.Status)
	require.NotNil(t, priced.Points)
	assert.Equal(t, int64(250), *priced.Points)

	// Pricing is a one-way door out of the backlog.
	var se *ServiceError
	_, err = svc.PriceBounty(bounty.ID, "founder-1", 300)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidStateTransition, se.Code)
}

func TestClaimSingleModeIsExclusive(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBountyService(db, nil)

	project := seedProject(t, db, "founder-1")
	bounty := seedOpenBounty(t, db, project.ID, models.ClaimModeSingle, 100)

	claim, err := svc.Claim(bounty.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.ClaimStatusActive, claim.Status)
	require.NotNil(t, claim.ExpiresAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 14), *claim.ExpiresAt, time.Minute)

	var reloaded models.Bounty
	require.NoError(t, db.First(&reloaded, "id = ?", bounty.ID).Error)
	assert.Equal(t, models.BountyStatusClaimed, reloaded.Status)

	var se *ServiceError
	_, err = svc.Claim(bounty.ID, "bob")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidStateTransition, se.Code)

	// The holder cannot stack a second claim either.
	_, err = svc.Claim(bounty.ID, "alice")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidStateTransition, se.Code)
}

func TestClaimMultipleModeHonorsMaxClaims(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBountyService(db, nil)

	project := seedProject(t, db, "founder-1")
	bounty := seedOpenBounty(t, db, project.ID, models.ClaimModeMultiple, 100)
	require.NoError(t, db.Model(bounty).Update("max_claims", 2).Error)

	_, err := svc.Claim(bounty.ID, "alice")
	require.NoError(t, err)
	_, err = svc.Claim(bounty.ID, "bob")
	require.NoError(t, err)

	var se *ServiceError
	_, err = svc.Claim(bounty.ID, "carol")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidStateTransition, se.Code)
}

func TestClaimCompetitiveModeIsUnbounded(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBountyService(db, nil)

	project := seedProject(t, db, "founder-1")
	bounty := seedOpenBounty(t, db, project.ID, models.ClaimModeCompetitive, 100)

	for _, user := range []string{"alice", "bob", "carol", "dave"} {
		_, err := svc.Claim(bounty.ID, user)
		require.NoError(t, err)
	}
}

func TestClaimRejectsUnclaimableStatuses(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBountyService(db, nil)

	project := seedProject(t, db, "founder-1")

	backlog, err := svc.CreateBounty(project.ID, "founder-1", "Unpriced", "", "", nil, nil, 0, nil)
	require.NoError(t, err)
	closed := seedOpenBounty(t, db, project.ID, models.ClaimModeSingle, 100)
	_, err = svc.CloseBounty(closed.ID, "founder-1")
	require.NoError(t, err)

	var se *ServiceError
	_, err = svc.Claim(backlog.ID, "alice")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidStateTransition, se.Code)

	_, err = svc.Claim(closed.ID, "alice")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidStateTransition, se.Code)
}

func TestReleaseClaimReopensBounty(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBountyService(db, nil)

	project := seedProject(t, db, "founder-1")
	bounty := seedOpenBounty(t, db, project.ID, models.ClaimModeSingle, 100)

	claim, err := svc.Claim(bounty.ID, "alice")
	require.NoError(t, err)

	var se *ServiceError
	_, err = svc.ReleaseClaim(claim.ID, "bob")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeForbidden, se.Code)

	released, err := svc.ReleaseClaim(claim.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.ClaimStatusReleased, released.Status)

	var reloaded models.Bounty
	require.NoError(t, db.First(&reloaded, "id = ?", bounty.ID).Error)
	assert.Equal(t, models.BountyStatusOpen, reloaded.Status)

	// Released claims stay released.
	_, err = svc.ReleaseClaim(claim.ID, "alice")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidStateTransition, se.Code)
}

func TestReleaseKeepsBountyClaimedWhileOthersWork(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBountyService(db, nil)

	project := seedProject(t, db, "founder-1")
	bounty := seedOpenBounty(t, db, project.ID, models.ClaimModeCompetitive, 100)

	aliceClaim, err := svc.Claim(bounty.ID, "alice")
	require.NoError(t, err)
	_, err = svc.Claim(bounty.ID, "bob")
	require.NoError(t, err)

	_, err = svc.ReleaseClaim(aliceClaim.ID, "alice")
	require.NoError(t, err)

	var reloaded models.Bounty
	require.NoError(t, db.First(&reloaded, "id = ?", bounty.ID).Error)
	assert.Equal(t, models.BountyStatusClaimed, reloaded.Status)
}

func TestExpireOverdueClaims(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBountyService(db, nil)

	project := seedProject(t, db, "founder-1")
	overdueBounty := seedOpenBounty(t, db, project.ID, models.ClaimModeSingle, 100)
	freshBounty := seedOpenBounty(t, db, project.ID, models.ClaimModeSingle, 100)

	overdue, err := svc.Claim(overdueBounty.ID, "alice")
	require.NoError(t, err)
	fresh, err := svc.Claim(freshBounty.ID, "bob")
	require.NoError(t, err)

	past := time.Now().AddDate(0, 0, -1)
	require.NoError(t, db.Model(&models.BountyClaim{}).
		Where("id = ?", overdue.ID).
		Update("expires_at", past).Error)

	count, err := svc.ExpireOverdueClaims()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	var reloaded models.BountyClaim
	require.NoError(t, db.First(&reloaded, "id = ?", overdue.ID).Error)
	assert.Equal(t, models.ClaimStatusExpired, reloaded.Status)

	reloaded = models.BountyClaim{}
	require.NoError(t, db.First(&reloaded, "id = ?", fresh.ID).Error)
	assert.Equal(t, models.ClaimStatusActive, reloaded.Status)

	// The abandoned bounty goes back on the board.
	var bounty models.Bounty
	require.NoError(t, db.First(&bounty, "id = ?", overdueBounty.ID).Error)
	assert.Equal(t, models.BountyStatusOpen, bounty.Status)
	bounty = models.Bounty{}
	require.NoError(t, db.First(&bounty, "id = ?", freshBounty.ID).Error)
	assert.Equal(t, models.BountyStatusClaimed, bounty.Status)

	// Idempotent: a second sweep finds nothing.
	count, err = svc.ExpireOverdueClaims()
	require.NoError(t, err)
	assert.Zero(t, count)
}
