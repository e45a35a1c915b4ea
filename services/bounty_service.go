// services/bounty_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"bounty-board-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

var validClaimModes = []string{
	models.ClaimModeSingle,
	models.ClaimModeCompetitive,
	models.ClaimModeMultiple,
	models.ClaimModePerformance,
}

type BountyService struct {
	DB       *gorm.DB
	Notifier *Notifier // nil in tests
}

func NewBountyService(db *gorm.DB, notifier *Notifier) *BountyService {
	return &BountyService{DB: db, Notifier: notifier}
}

// CreateBounty posts a unit of work. Without a point value the bounty
// sits in the backlog; priced bounties open immediately.
func (s *BountyService) CreateBounty(projectID, actorID string, title, description, claimMode string, points *int64, poolID *string, claimExpiryDays int, maxClaims *int) (*models.Bounty, error) {
	if claimMode == "" {
		claimMode = models.ClaimModeSingle
	}
	if !lo.Contains(validClaimModes, claimMode) {
		return nil, ErrInvalidAmount(fmt.Sprintf("unknown claim mode %q", claimMode))
	}
	if maxClaims != nil && claimMode != models.ClaimModeMultiple {
		return nil, ErrInvalidAmount("max_claims only applies to MULTIPLE claim mode")
	}
	if points != nil && *points <= 0 {
		return nil, ErrInvalidAmount("points must be positive")
	}
	if claimExpiryDays <= 0 {
		claimExpiryDays = 14
	}

	var bounty *models.Bounty
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// Lock the project row so concurrent creates cannot mint the
		// same bounty key.
		var project models.Project
		if err := forUpdate(tx).First(&project, "id = ?", projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("project not found")
			}
			return err
		}
		if project.FounderID != actorID {
			return ErrForbidden("only the project founder can post bounties")
		}
		if poolID != nil {
			if _, err := resolvePool(tx, projectID, *poolID); err != nil {
				return err
			}
		}

		// Bounty keys count up per project: "ACM-1", "ACM-2", ...
		var existing int64
		if err := tx.Model(&models.Bounty{}).
			Where("project_id = ?", projectID).
			Count(&existing).Error; err != nil {
			return err
		}

		status := models.BountyStatusBacklog
		if points != nil {
			status = models.BountyStatusOpen
		}
		bounty = &models.Bounty{
			ID:              uuid.NewString(),
			ProjectID:       projectID,
			PoolID:          poolID,
			Key:             fmt.Sprintf("%s-%d", project.ProjectKey, existing+1),
			Title:           title,
			Description:     description,
			Points:          points,
			Status:          status,
			ClaimMode:       claimMode,
			ClaimExpiryDays: claimExpiryDays,
			MaxClaims:       maxClaims,
		}
		return tx.Create(bounty).Error
	})
	if err != nil {
		return nil, err
	}
	return bounty, nil
}

// PriceBounty moves a backlog bounty to OPEN by giving it a point value.
func (s *BountyService) PriceBounty(bountyID, actorID string, points int64) (*models.Bounty, error) {
	if points <= 0 {
		return nil, ErrInvalidAmount("points must be positive")
	}

	var bounty models.Bounty
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&bounty, "id = ?", bountyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("bounty not found")
			}
			return err
		}
		if err := s.requireProjectFounder(tx, bounty.ProjectID, actorID); err != nil {
			return err
		}
		if bounty.Status != models.BountyStatusBacklog {
			return ErrInvalidTransition("only backlog bounties can be priced")
		}
		bounty.Points = &points
		bounty.Status = models.BountyStatusOpen
		return tx.Model(&bounty).Updates(map[string]interface{}{
			"points": points,
			"status": models.BountyStatusOpen,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &bounty, nil
}

// CloseBounty retires a bounty that will not be worked on.
func (s *BountyService) CloseBounty(bountyID, actorID string) (*models.Bounty, error) {
	var bounty models.Bounty
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&bounty, "id = ?", bountyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("bounty not found")
			}
			return err
		}
		if err := s.requireProjectFounder(tx, bounty.ProjectID, actorID); err != nil {
			return err
		}
		if bounty.Status == models.BountyStatusCompleted || bounty.Status == models.BountyStatusClosed {
			return ErrInvalidTransition(fmt.Sprintf("bounty is already %s", bounty.Status))
		}
		bounty.Status = models.BountyStatusClosed
		return tx.Model(&bounty).Update("status", models.BountyStatusClosed).Error
	})
	if err != nil {
		return nil, err
	}
	return &bounty, nil
}

func (s *BountyService) requireProjectFounder(tx *gorm.DB, projectID, actorID string) error {
	var project models.Project
	if err := tx.First(&project, "id = ?", projectID).Error; err != nil {
		return err
	}
	if project.FounderID != actorID {
		return ErrForbidden("only the project founder can do that")
	}
	return nil
}

// Claim reserves a bounty for a contributor. The whole check-and-insert
// runs under a lock on the bounty row, and the partial unique index on
// (bounty_id, user_id) WHERE status='ACTIVE' backstops the one-active-
// claim-per-user invariant against anything that slips past the lock.
func (s *BountyService) Claim(bountyID, userID string) (*models.BountyClaim, error) {
	var claim *models.BountyClaim

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var bounty models.Bounty
		if err := forUpdate(tx).First(&bounty, "id = ?", bountyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("bounty not found")
			}
			return err
		}

		switch bounty.Status {
		case models.BountyStatusOpen, models.BountyStatusClaimed:
			// claimable
		default:
			return ErrInvalidTransition(fmt.Sprintf("a %s bounty cannot be claimed", bounty.Status))
		}

		var mine int64
		if err := tx.Model(&models.BountyClaim{}).
			Where("bounty_id = ? AND user_id = ? AND status = ?", bountyID, userID, models.ClaimStatusActive).
			Count(&mine).Error; err != nil {
			return err
		}
		if mine > 0 {
			return ErrInvalidTransition("you already have an active claim on this bounty")
		}

		var active int64
		if err := tx.Model(&models.BountyClaim{}).
			Where("bounty_id = ? AND status = ?", bountyID, models.ClaimStatusActive).
			Count(&active).Error; err != nil {
			return err
		}
		switch bounty.ClaimMode {
		case models.ClaimModeSingle:
			if active > 0 {
				return ErrInvalidTransition("bounty is already claimed")
			}
		case models.ClaimModeMultiple:
			if bounty.MaxClaims != nil && active >= int64(*bounty.MaxClaims) {
				return ErrInvalidTransition("bounty has reached its claim limit")
			}
		}
		// COMPETITIVE and PERFORMANCE accept unbounded concurrent claims.

		expiresAt := time.Now().AddDate(0, 0, bounty.ClaimExpiryDays)
		claim = &models.BountyClaim{
			ID:        uuid.NewString(),
			BountyID:  bountyID,
			UserID:    userID,
			Status:    models.ClaimStatusActive,
			ExpiresAt: &expiresAt,
		}
		if err := tx.Create(claim).Error; err != nil {
			return err
		}

		if bounty.Status == models.BountyStatusOpen {
			return tx.Model(&bounty).Update("status", models.BountyStatusClaimed).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// ReleaseClaim lets a contributor give a bounty back. The bounty reopens
// once no live claims remain.
func (s *BountyService) ReleaseClaim(claimID, userID string) (*models.BountyClaim, error) {
	var claim models.BountyClaim

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&claim, "id = ?", claimID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("claim not found")
			}
			return err
		}
		if claim.UserID != userID {
			return ErrForbidden("not your claim")
		}
		if claim.Status != models.ClaimStatusActive {
			return ErrInvalidTransition(fmt.Sprintf("cannot release a %s claim", claim.Status))
		}

		claim.Status = models.ClaimStatusReleased
		if err := tx.Model(&claim).Update("status", models.ClaimStatusReleased).Error; err != nil {
			return err
		}
		return reopenIfUnclaimed(tx, claim.BountyID)
	})
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// reopenIfUnclaimed flips a CLAIMED bounty back to OPEN when its last
// live claim goes away.
func reopenIfUnclaimed(tx *gorm.DB, bountyID string) error {
	var live int64
	if err := tx.Model(&models.BountyClaim{}).
		Where("bounty_id = ? AND status IN ?", bountyID,
			[]string{models.ClaimStatusActive, models.ClaimStatusSubmitted}).
		Count(&live).Error; err != nil {
		return err
	}
	if live > 0 {
		return nil
	}
	return tx.Model(&models.Bounty{}).
		Where("id = ? AND status = ?", bountyID, models.BountyStatusClaimed).
		Update("status", models.BountyStatusOpen).Error
}

// ExpireOverdueClaims is the sweep behind the claim-expiry scheduler.
// Returns how many claims it expired.
func (s *BountyService) ExpireOverdueClaims() (int, error) {
	var expired []models.BountyClaim

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := forUpdate(tx).
			Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.ClaimStatusActive, now).
			Find(&expired).Error; err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}

		ids := lo.Map(expired, func(c models.BountyClaim, _ int) string { return c.ID })
		if err := tx.Model(&models.BountyClaim{}).
			Where("id IN ?", ids).
			Update("status", models.ClaimStatusExpired).Error; err != nil {
			return err
		}

		bountyIDs := lo.Uniq(lo.Map(expired, func(c models.BountyClaim, _ int) string { return c.BountyID }))
		for _, bountyID := range bountyIDs {
			if err := reopenIfUnclaimed(tx, bountyID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(expired) > 0 && s.Notifier != nil {
		for _, c := range expired {
			go s.Notifier.Notify("CLAIM_EXPIRED", "claim", c.ID, "", []string{c.UserID})
		}
	}
	return len(expired), nil
}

// --- HTTP handlers ---

func (s *BountyService) CreateBountyEndpoint(c *fiber.Ctx) error {
	actorID := c.Locals("user_id").(string)
	var req struct {
		Title           string  `json:"title"`
		Description     string  `json:"description"`
		ClaimMode       string  `json:"claim_mode"`
		Points          *int64  `json:"points"`
		PoolID          *string `json:"pool_id"`
		ClaimExpiryDays int     `json:"claim_expiry_days"`
		MaxClaims       *int    `json:"max_claims"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title is required"})
	}
	bounty, err := s.CreateBounty(c.Params("project_id"), actorID, req.Title, req.Description, req.ClaimMode, req.Points, req.PoolID, req.ClaimExpiryDays, req.MaxClaims)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(bounty)
}

func (s *BountyService) PriceBountyEndpoint(c *fiber.Ctx) error {
	actorID := c.Locals("user_id").(string)
	var req struct {
		Points int64 `json:"points"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	bounty, err := s.PriceBounty(c.Params("id"), actorID, req.Points)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(bounty)
}

func (s *BountyService) CloseBountyEndpoint(c *fiber.Ctx) error {
	actorID := c.Locals("user_id").(string)
	bounty, err := s.CloseBounty(c.Params("id"), actorID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(bounty)
}

func (s *BountyService) ClaimEndpoint(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	claim, err := s.Claim(c.Params("id"), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(claim)
}

func (s *BountyService) ReleaseClaimEndpoint(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	claim, err := s.ReleaseClaim(c.Params("claim_id"), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(claim)
}

func (s *BountyService) GetBounty(c *fiber.Ctx) error {
	var bounty models.Bounty
	if err := s.DB.Preload("Claims").First(&bounty, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, ErrNotFound("bounty not found"))
		}
		return respondError(c, err)
	}
	return c.JSON(bounty)
}

func (s *BountyService) ListProjectBounties(c *fiber.Ctx) error {
	query := s.DB.Where("project_id = ?", c.Params("project_id"))
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	var bounties []models.Bounty
	if err := query.Order("created_at DESC").Find(&bounties).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(bounties)
}

func (s *BountyService) ListMyClaims(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	var claims []models.BountyClaim
	if err := s.DB.Where("user_id = ?", userID).Order("claimed_at DESC").Find(&claims).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(claims)
}
