package services

import (
	"testing"
	"time"

	"bounty-board-system/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupTestDB opens an in-memory database with the full schema. One open
// connection so every query sees the same memory database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Project{},
		&models.RewardPool{},
		&models.PoolExpansionEvent{},
		&models.Bounty{},
		&models.BountyClaim{},
		&models.Submission{},
		&models.SubmissionEvent{},
		&models.Payout{},
		&models.PayoutRecipient{},
		&models.UserMirror{},
	))
	return db
}

func seedProject(t *testing.T, db *gorm.DB, founderID string) *models.Project {
	t.Helper()
	project := &models.Project{
		ID:         uuid.NewString(),
		Slug:       "acme-tools-" + uuid.NewString()[:8],
		ProjectKey: randomProjectKey(),
		Name:       "Acme Tools",
		FounderID:  founderID,
		IsPublic:   true,
	}
	require.NoError(t, db.Create(project).Error)
	return project
}

var keyCounter int

func randomProjectKey() string {
	keyCounter++
	return string([]byte{
		byte('A' + keyCounter%26),
		byte('A' + (keyCounter/26)%26),
		byte('A' + (keyCounter/676)%26),
	})
}

func seedProfitSharePool(t *testing.T, db *gorm.DB, projectID string, percentage int, capacity int64) *models.RewardPool {
	t.Helper()
	pool := &models.RewardPool{
		ID:                    uuid.NewString(),
		ProjectID:             projectID,
		Name:                  "Core pool",
		Type:                  models.PoolTypeProfitShare,
		IsDefault:             true,
		Status:                models.PoolStatusActive,
		PoolPercentage:        percentage,
		PoolCapacity:          capacity,
		PlatformFeePercentage: 2,
	}
	require.NoError(t, db.Create(pool).Error)
	return pool
}

func seedFixedBudgetPool(t *testing.T, db *gorm.DB, projectID string, budgetCents, spentCents int64) *models.RewardPool {
	t.Helper()
	pool := &models.RewardPool{
		ID:                    uuid.NewString(),
		ProjectID:             projectID,
		Name:                  "Launch budget",
		Type:                  models.PoolTypeFixedBudget,
		IsDefault:             true,
		Status:                models.PoolStatusActive,
		BudgetCents:           budgetCents,
		SpentCents:            spentCents,
		PlatformFeePercentage: 2,
	}
	require.NoError(t, db.Create(pool).Error)
	return pool
}

func seedOpenBounty(t *testing.T, db *gorm.DB, projectID, claimMode string, points int64) *models.Bounty {
	t.Helper()
	bounty := &models.Bounty{
		ID:              uuid.NewString(),
		ProjectID:       projectID,
		Key:             "B-" + uuid.NewString()[:8],
		Title:           "Implement the thing",
		Points:          &points,
		Status:          models.BountyStatusOpen,
		ClaimMode:       claimMode,
		ClaimExpiryDays: 14,
	}
	require.NoError(t, db.Create(bounty).Error)
	return bounty
}

// seedApprovedWork plants a completed claim plus an approved, unpaid
// submission worth the given points.
func seedApprovedWork(t *testing.T, db *gorm.DB, bountyID, userID string, points int64) *models.Submission {
	t.Helper()
	claim := &models.BountyClaim{
		ID:       uuid.NewString(),
		BountyID: bountyID,
		UserID:   userID,
		Status:   models.ClaimStatusCompleted,
	}
	require.NoError(t, db.Create(claim).Error)

	now := time.Now()
	submission := &models.Submission{
		ID:            uuid.NewString(),
		BountyID:      bountyID,
		ClaimID:       claim.ID,
		UserID:        userID,
		Title:         "Done",
		Status:        models.SubmissionStatusApproved,
		PointsAwarded: &points,
		ApprovedAt:    &now,
	}
	require.NoError(t, db.Create(submission).Error)
	return submission
}

// seedPendingSubmission plants an active claim with a PENDING submission
// awaiting review.
func seedPendingSubmission(t *testing.T, db *gorm.DB, bountyID, userID string) *models.Submission {
	t.Helper()
	expires := time.Now().AddDate(0, 0, 14)
	claim := &models.BountyClaim{
		ID:        uuid.NewString(),
		BountyID:  bountyID,
		UserID:    userID,
		Status:    models.ClaimStatusSubmitted,
		ExpiresAt: &expires,
	}
	require.NoError(t, db.Create(claim).Error)

	submission := &models.Submission{
		ID:       uuid.NewString(),
		BountyID: bountyID,
		ClaimID:  claim.ID,
		UserID:   userID,
		Title:    "Please review",
		Status:   models.SubmissionStatusPending,
	}
	require.NoError(t, db.Create(submission).Error)
	return submission
}
