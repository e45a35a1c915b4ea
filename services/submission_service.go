// services/submission_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"bounty-board-system/models"
	"bounty-board-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// submissionTransitions is the review state machine. APPROVED, REJECTED
// and WITHDRAWN are terminal for a submission instance; rejection frees
// the claim for a fresh submission instead.
var submissionTransitions = map[string][]string{
	models.SubmissionStatusDraft:     {models.SubmissionStatusPending},
	models.SubmissionStatusPending:   {models.SubmissionStatusApproved, models.SubmissionStatusRejected, models.SubmissionStatusNeedsInfo, models.SubmissionStatusWithdrawn},
	models.SubmissionStatusNeedsInfo: {models.SubmissionStatusPending, models.SubmissionStatusWithdrawn},
}

func canTransitionSubmission(from, to string) bool {
	return lo.Contains(submissionTransitions[from], to)
}

type SubmissionService struct {
	DB       *gorm.DB
	Notifier *Notifier // nil in tests
}

func NewSubmissionService(db *gorm.DB, notifier *Notifier) *SubmissionService {
	return &SubmissionService{DB: db, Notifier: notifier}
}

// appendEvent writes one append-only audit row for a status transition.
func appendEvent(tx *gorm.DB, submissionID, from, to, actorID, note string) error {
	return tx.Create(&models.SubmissionEvent{
		ID:           uuid.NewString(),
		SubmissionID: submissionID,
		FromStatus:   from,
		ToStatus:     to,
		ActorID:      actorID,
		Note:         note,
	}).Error
}

// CreateSubmission attaches proof-of-work to the contributor's active
// claim. Drafts stay private; submitting flips the claim to SUBMITTED.
func (s *SubmissionService) CreateSubmission(bountyID, userID, title, body, evidenceURL, prURL string, draft bool) (*models.Submission, error) {
	var submission *models.Submission

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var bounty models.Bounty
		if err := tx.First(&bounty, "id = ?", bountyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("bounty not found")
			}
			return err
		}

		var claim models.BountyClaim
		if err := forUpdate(tx).
			Where("bounty_id = ? AND user_id = ? AND status = ?", bountyID, userID, models.ClaimStatusActive).
			First(&claim).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidTransition("you need an active claim on this bounty to submit work")
			}
			return err
		}

		status := models.SubmissionStatusPending
		if draft {
			status = models.SubmissionStatusDraft
		}
		submission = &models.Submission{
			ID:          uuid.NewString(),
			BountyID:    bountyID,
			ClaimID:     claim.ID,
			UserID:      userID,
			Title:       title,
			Body:        body,
			EvidenceURL: evidenceURL,
			PRURL:       prURL,
			Status:      status,
		}
		if err := tx.Create(submission).Error; err != nil {
			return err
		}

		if status == models.SubmissionStatusPending {
			if err := tx.Model(&claim).Update("status", models.ClaimStatusSubmitted).Error; err != nil {
				return err
			}
			return appendEvent(tx, submission.ID, models.SubmissionStatusDraft, status, userID, "")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return submission, nil
}

// transition moves a submission between non-terminal review states and
// keeps the claim in step. Used for submit, resubmit, request-info and
// withdraw; approve/reject have their own paths.
func (s *SubmissionService) transition(submissionID, actorID, to, note string) (*models.Submission, error) {
	var submission models.Submission

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&submission, "id = ?", submissionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("submission not found")
			}
			return err
		}
		from := submission.Status
		if !canTransitionSubmission(from, to) {
			return ErrInvalidTransition(fmt.Sprintf("cannot move a %s submission to %s", from, to))
		}

		if err := tx.Model(&submission).Update("status", to).Error; err != nil {
			return err
		}
		submission.Status = to

		// Keep the claim in step with the review state.
		var claimStatus string
		switch to {
		case models.SubmissionStatusPending:
			claimStatus = models.ClaimStatusSubmitted
		case models.SubmissionStatusWithdrawn, models.SubmissionStatusNeedsInfo:
			claimStatus = models.ClaimStatusActive
		}
		if claimStatus != "" {
			if err := tx.Model(&models.BountyClaim{}).
				Where("id = ? AND status IN ?", submission.ClaimID,
					[]string{models.ClaimStatusActive, models.ClaimStatusSubmitted}).
				Update("status", claimStatus).Error; err != nil {
				return err
			}
		}
		return appendEvent(tx, submission.ID, from, to, actorID, note)
	})
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

// Submit moves a DRAFT into review.
func (s *SubmissionService) Submit(submissionID, userID string) (*models.Submission, error) {
	if err := s.requireOwner(submissionID, userID); err != nil {
		return nil, err
	}
	return s.transition(submissionID, userID, models.SubmissionStatusPending, "")
}

// Withdraw is contributor-initiated and terminal for this submission.
func (s *SubmissionService) Withdraw(submissionID, userID string) (*models.Submission, error) {
	if err := s.requireOwner(submissionID, userID); err != nil {
		return nil, err
	}
	return s.transition(submissionID, userID, models.SubmissionStatusWithdrawn, "")
}

// RequestInfo sends a PENDING submission back to the contributor.
func (s *SubmissionService) RequestInfo(submissionID, actorID, note string) (*models.Submission, error) {
	if err := s.requireFounder(submissionID, actorID); err != nil {
		return nil, err
	}
	sub, err := s.transition(submissionID, actorID, models.SubmissionStatusNeedsInfo, note)
	if err != nil {
		return nil, err
	}
	if s.Notifier != nil {
		go s.Notifier.Notify("SUBMISSION_NEEDS_INFO", "submission", sub.ID, actorID, []string{sub.UserID})
	}
	return sub, nil
}

func (s *SubmissionService) requireOwner(submissionID, userID string) error {
	var sub models.Submission
	if err := s.DB.First(&sub, "id = ?", submissionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound("submission not found")
		}
		return err
	}
	if sub.UserID != userID {
		return ErrForbidden("not your submission")
	}
	return nil
}

func (s *SubmissionService) requireFounder(submissionID, actorID string) error {
	var sub models.Submission
	if err := s.DB.First(&sub, "id = ?", submissionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound("submission not found")
		}
		return err
	}
	var project models.Project
	err := s.DB.
		Joins("JOIN bounties ON bounties.project_id = projects.id").
		Where("bounties.id = ?", sub.BountyID).
		First(&project).Error
	if err != nil {
		return err
	}
	if project.FounderID != actorID {
		return ErrForbidden("only the project founder can review submissions")
	}
	return nil
}

// expandPoolIfNeeded raises a PROFIT_SHARE pool's capacity to newTotal
// and records the dilution event. Must run with the pool row locked;
// capacity only ever grows.
func expandPoolIfNeeded(tx *gorm.DB, pool *models.RewardPool, newTotal int64, reason string) error {
	if pool.Type != models.PoolTypeProfitShare || newTotal <= pool.PoolCapacity {
		return nil
	}

	dilution := round1(float64(newTotal-pool.PoolCapacity) / float64(newTotal) * 100)
	event := &models.PoolExpansionEvent{
		ID:               uuid.NewString(),
		PoolID:           pool.ID,
		PreviousCapacity: pool.PoolCapacity,
		NewCapacity:      newTotal,
		Reason:           reason,
		DilutionPercent:  dilution,
	}
	if err := tx.Create(event).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.RewardPool{}).
		Where("id = ?", pool.ID).
		Update("pool_capacity", newTotal).Error; err != nil {
		return err
	}
	log.Printf("📈 [POOL] capacity %d → %d on pool %s (dilution %.1f%%)",
		pool.PoolCapacity, newTotal, pool.ID, dilution)
	pool.PoolCapacity = newTotal
	return nil
}

// lifetimeEarnedPoints is the project-wide sum of all approved points on
// the pool's bounties — paid and unpaid both count against capacity.
func lifetimeEarnedPoints(tx *gorm.DB, projectID string, pool *models.RewardPool) (int64, error) {
	q := tx.Model(&models.Submission{}).
		Joins("JOIN bounties ON bounties.id = submissions.bounty_id").
		Where("submissions.status = ?", models.SubmissionStatusApproved).
		Where("bounties.project_id = ?", projectID)
	if pool.IsDefault {
		q = q.Where("(bounties.pool_id = ? OR bounties.pool_id IS NULL)", pool.ID)
	} else {
		q = q.Where("bounties.pool_id = ?", pool.ID)
	}

	var total *int64
	if err := q.Select("SUM(submissions.points_awarded)").Scan(&total).Error; err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// Approve finalizes a submission: points are awarded, the pool expands
// if the award overshoots capacity, the claim completes, the audit trail
// gets its row, and the bounty completes once no live claims remain.
// Steps run in one transaction; notifications fire after commit and are
// never allowed to fail the approval.
func (s *SubmissionService) Approve(submissionID string, pointsAwarded int64, actorID, note string) (*models.Submission, error) {
	if pointsAwarded <= 0 {
		return nil, ErrInvalidAmount("points awarded must be positive")
	}
	if err := s.requireFounder(submissionID, actorID); err != nil {
		return nil, err
	}

	var submission models.Submission
	var bounty models.Bounty

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&submission, "id = ?", submissionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("submission not found")
			}
			return err
		}
		from := submission.Status
		if !canTransitionSubmission(from, models.SubmissionStatusApproved) {
			return ErrInvalidTransition(fmt.Sprintf("cannot approve a %s submission", from))
		}

		if err := tx.First(&bounty, "id = ?", submission.BountyID).Error; err != nil {
			return err
		}

		// Pool capacity check against the whole project's earned points,
		// under a lock on the pool row.
		pool, err := resolvePool(forUpdate(tx), bounty.ProjectID, lo.FromPtr(bounty.PoolID))
		if err != nil {
			var se *ServiceError
			if !errors.As(err, &se) || se.Code != CodeNotFound {
				return err
			}
			// Bounty without any reward pool: points are honorific.
			pool = nil
		}
		if pool != nil {
			current, err := lifetimeEarnedPoints(tx, bounty.ProjectID, pool)
			if err != nil {
				return err
			}
			reason := fmt.Sprintf("approval of submission %s (+%d points)", submission.ID, pointsAwarded)
			if err := expandPoolIfNeeded(tx, pool, current+pointsAwarded, reason); err != nil {
				return err
			}
		}

		now := time.Now()
		if err := tx.Model(&submission).Updates(map[string]interface{}{
			"status":         models.SubmissionStatusApproved,
			"points_awarded": pointsAwarded,
			"approved_at":    now,
			"rejected_at":    nil,
			"rejection_note": "",
		}).Error; err != nil {
			return err
		}
		submission.Status = models.SubmissionStatusApproved
		submission.PointsAwarded = &pointsAwarded
		submission.ApprovedAt = &now
		submission.RejectedAt = nil
		submission.RejectionNote = ""

		if err := tx.Model(&models.BountyClaim{}).
			Where("bounty_id = ? AND user_id = ? AND status IN ?", bounty.ID, submission.UserID,
				[]string{models.ClaimStatusActive, models.ClaimStatusSubmitted}).
			Update("status", models.ClaimStatusCompleted).Error; err != nil {
			return err
		}

		if err := appendEvent(tx, submission.ID, from, models.SubmissionStatusApproved, actorID, note); err != nil {
			return err
		}

		var liveClaims int64
		if err := tx.Model(&models.BountyClaim{}).
			Where("bounty_id = ? AND status IN ?", bounty.ID,
				[]string{models.ClaimStatusActive, models.ClaimStatusSubmitted}).
			Count(&liveClaims).Error; err != nil {
			return err
		}
		if liveClaims == 0 {
			if err := tx.Model(&bounty).Update("status", models.BountyStatusCompleted).Error; err != nil {
				return err
			}
			bounty.Status = models.BountyStatusCompleted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Fire-and-forget side effects, outside the transaction boundary.
	if s.Notifier != nil {
		go s.Notifier.Notify("SUBMISSION_APPROVED", "submission", submission.ID, actorID, []string{submission.UserID})
		if submission.PRURL != "" {
			go s.Notifier.PostPRComment(submission.PRURL, bounty.Key, bounty.Title, pointsAwarded, models.SubmissionStatusApproved)
		}
	}

	return &submission, nil
}

// Reject mirrors Approve without touching points or pool capacity. The
// claim returns to ACTIVE for resubmission unless it has expired.
func (s *SubmissionService) Reject(submissionID, actorID, note string) (*models.Submission, error) {
	if err := s.requireFounder(submissionID, actorID); err != nil {
		return nil, err
	}

	var submission models.Submission

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&submission, "id = ?", submissionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("submission not found")
			}
			return err
		}
		from := submission.Status
		if !canTransitionSubmission(from, models.SubmissionStatusRejected) {
			return ErrInvalidTransition(fmt.Sprintf("cannot reject a %s submission", from))
		}

		now := time.Now()
		if err := tx.Model(&submission).Updates(map[string]interface{}{
			"status":         models.SubmissionStatusRejected,
			"rejected_at":    now,
			"rejection_note": note,
		}).Error; err != nil {
			return err
		}
		submission.Status = models.SubmissionStatusRejected
		submission.RejectedAt = &now
		submission.RejectionNote = note

		var claim models.BountyClaim
		if err := tx.First(&claim, "id = ?", submission.ClaimID).Error; err != nil {
			return err
		}
		if claim.Status == models.ClaimStatusSubmitted {
			next := models.ClaimStatusActive
			if claim.ExpiresAt != nil && claim.ExpiresAt.Before(now) {
				next = models.ClaimStatusExpired
			}
			if err := tx.Model(&claim).Update("status", next).Error; err != nil {
				return err
			}
		}
		return appendEvent(tx, submission.ID, from, models.SubmissionStatusRejected, actorID, note)
	})
	if err != nil {
		return nil, err
	}

	if s.Notifier != nil {
		go s.Notifier.Notify("SUBMISSION_REJECTED", "submission", submission.ID, actorID, []string{submission.UserID})
	}
	return &submission, nil
}

// --- HTTP handlers ---

func (s *SubmissionService) CreateSubmissionEndpoint(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	var req struct {
		Title       string `json:"title"`
		Body        string `json:"body"`
		EvidenceURL string `json:"evidence_url"`
		PRURL       string `json:"pr_url"`
		Draft       bool   `json:"draft"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	sub, err := s.CreateSubmission(c.Params("bounty_id"), userID, req.Title, req.Body, req.EvidenceURL, req.PRURL, req.Draft)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

func (s *SubmissionService) SubmitEndpoint(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	sub, err := s.Submit(c.Params("id"), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sub)
}

func (s *SubmissionService) WithdrawEndpoint(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	sub, err := s.Withdraw(c.Params("id"), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sub)
}

func (s *SubmissionService) RequestInfoEndpoint(c *fiber.Ctx) error {
	actorID := c.Locals("user_id").(string)
	var req struct {
		Note string `json:"note"`
	}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	sub, err := s.RequestInfo(c.Params("id"), actorID, req.Note)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sub)
}

func (s *SubmissionService) ApproveEndpoint(c *fiber.Ctx) error {
	actorID := c.Locals("user_id").(string)
	var req struct {
		PointsAwarded int64  `json:"points_awarded"`
		Note          string `json:"note"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	sub, err := s.Approve(c.Params("id"), req.PointsAwarded, actorID, req.Note)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sub)
}

func (s *SubmissionService) RejectEndpoint(c *fiber.Ctx) error {
	actorID := c.Locals("user_id").(string)
	var req struct {
		Note string `json:"note"`
	}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	sub, err := s.Reject(c.Params("id"), actorID, req.Note)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sub)
}

// ListForReview returns a bounty's submissions newest-first, with their
// audit trail, for the founder's review screen.
func (s *SubmissionService) ListForReview(c *fiber.Ctx) error {
	var submissions []models.Submission
	if err := s.DB.Where("bounty_id = ? AND status <> ?", c.Params("bounty_id"), models.SubmissionStatusDraft).
		Order("created_at DESC").
		Find(&submissions).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(submissions)
}

// UploadEvidenceEndpoint stores an evidence file for the contributor's
// submission and stamps its URL. Remote storage when configured, local
// uploads directory otherwise.
func (s *SubmissionService) UploadEvidenceEndpoint(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	submissionID := c.Params("id")
	if err := s.requireOwner(submissionID, userID); err != nil {
		return respondError(c, err)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
	}

	key := fmt.Sprintf("evidence/%s/%s", submissionID, fileHeader.Filename)
	var evidenceURL string
	if utils.StorageConfigured() {
		evidenceURL, err = utils.UploadAttachment(fileHeader, key)
		if err != nil {
			log.Printf("⚠️ [EVIDENCE] upload failed for submission %s: %v", submissionID, err)
			return respondError(c, err)
		}
	} else {
		destPath := utils.GetUploadPath(key)
		if err := utils.SaveFile(fileHeader, destPath); err != nil {
			return respondError(c, err)
		}
		evidenceURL = "/" + destPath
	}

	if err := s.DB.Model(&models.Submission{}).
		Where("id = ?", submissionID).
		Update("evidence_url", evidenceURL).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"evidence_url": evidenceURL})
}

// GetSubmissionEvents returns the append-only transition history.
func (s *SubmissionService) GetSubmissionEvents(c *fiber.Ctx) error {
	var events []models.SubmissionEvent
	if err := s.DB.Where("submission_id = ?", c.Params("id")).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(events)
}
