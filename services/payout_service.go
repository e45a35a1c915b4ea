// services/payout_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"bounty-board-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// PayoutService computes, previews and persists the split of a profit or
// budget amount across contributors proportional to unpaid earned points.
type PayoutService struct {
	DB       *gorm.DB
	Payments *PaymentService // nil when Stripe is not configured
	Notifier *Notifier       // nil in tests
}

func NewPayoutService(db *gorm.DB, payments *PaymentService, notifier *Notifier) *PayoutService {
	return &PayoutService{DB: db, Payments: payments, Notifier: notifier}
}

// PayoutInput carries the founder's distribution request. Exactly one of
// ReportedProfitCents (PROFIT_SHARE) or DistributionCents (FIXED_BUDGET)
// applies, depending on the pool type.
type PayoutInput struct {
	PoolID              string     `json:"pool_id"` // empty = project default pool
	PeriodLabel         string     `json:"period_label"`
	PeriodStart         *time.Time `json:"period_start"`
	PeriodEnd           *time.Time `json:"period_end"`
	ReportedProfitCents *int64     `json:"reported_profit_cents"`
	DistributionCents   *int64     `json:"distribution_cents"`
}

// RecipientShare is one contributor's line in a payout breakdown.
type RecipientShare struct {
	UserID       string  `json:"user_id"`
	UserName     string  `json:"user_name"`
	UserImage    string  `json:"user_image"`
	Points       int64   `json:"points"`
	SharePercent float64 `json:"share_percent"`
	AmountCents  int64   `json:"amount_cents"`
}

// BudgetInfo reports FIXED_BUDGET pool state alongside a preview.
type BudgetInfo struct {
	BudgetCents    int64 `json:"budget_cents"`
	SpentCents     int64 `json:"spent_cents"`
	RemainingCents int64 `json:"remaining_cents"`
}

// PayoutPreview is the side-effect-free dry run of a distribution.
// DistributedAmountCents may fall short of the distributable amount by up
// to recipientCount−1 cents (per-recipient floor); the remainder stays
// undistributed and is visible as the gap against PoolAmountCents.
type PayoutPreview struct {
	PoolID                 string                `json:"pool_id"`
	PoolType               string                `json:"pool_type"`
	PoolAmountCents        int64                 `json:"pool_amount_cents"`
	PoolPercentage         int                   `json:"pool_percentage"`
	PoolCapacity           int64                 `json:"pool_capacity"`
	PlatformFeeCents       int64                 `json:"platform_fee_cents"`
	PlatformFeePercentage  int                   `json:"platform_fee_percentage"`
	DistributedAmountCents int64                 `json:"distributed_amount_cents"`
	TotalEarnedPoints      int64                 `json:"total_earned_points"`
	Breakdown              []RecipientShare      `json:"breakdown"`
	BudgetInfo             *BudgetInfo           `json:"budget_info,omitempty"`
	FounderCharge          *PayoutTotalBreakdown `json:"founder_charge,omitempty"`
}

// poolAmountForInput dispatches the type-specific pool amount computation
// once, at the top of each operation. In strict mode (payout creation) a
// FIXED_BUDGET request larger than the remaining budget is rejected
// instead of clamped.
func poolAmountForInput(pool *models.RewardPool, in *PayoutInput, strict bool) (int64, *BudgetInfo, error) {
	switch pool.Type {
	case models.PoolTypeProfitShare:
		if in.ReportedProfitCents == nil || *in.ReportedProfitCents <= 0 {
			return 0, nil, ErrInvalidAmount("reported_profit_cents must be a positive amount")
		}
		return *in.ReportedProfitCents * int64(pool.PoolPercentage) / 100, nil, nil

	case models.PoolTypeFixedBudget:
		if in.DistributionCents == nil || *in.DistributionCents <= 0 {
			return 0, nil, ErrInvalidAmount("distribution_cents must be a positive amount")
		}
		remaining := pool.RemainingBudgetCents()
		if remaining <= 0 {
			return 0, nil, ErrInsufficientBudget("reward pool budget is exhausted")
		}
		if strict && *in.DistributionCents > remaining {
			return 0, nil, ErrInsufficientBudget(fmt.Sprintf(
				"requested %d¢ but only %d¢ remains in the pool budget", *in.DistributionCents, remaining))
		}
		amount := *in.DistributionCents
		if amount > remaining {
			amount = remaining
		}
		return amount, &BudgetInfo{
			BudgetCents:    pool.BudgetCents,
			SpentCents:     pool.SpentCents,
			RemainingCents: remaining,
		}, nil

	default:
		return 0, nil, fmt.Errorf("unknown pool type %q", pool.Type)
	}
}

type contributorPoints struct {
	UserID string
	Points int64
}

// unpaidEarnedPoints sums approved, not-yet-paid points per contributor on
// bounties linked to this pool. Bounties without an explicit pool belong
// to the project's default pool.
func unpaidEarnedPoints(tx *gorm.DB, projectID string, pool *models.RewardPool) ([]contributorPoints, error) {
	q := tx.Model(&models.Submission{}).
		Select("submissions.user_id AS user_id, SUM(submissions.points_awarded) AS points").
		Joins("JOIN bounties ON bounties.id = submissions.bounty_id").
		Where("submissions.status = ? AND submissions.payout_id IS NULL", models.SubmissionStatusApproved).
		Where("bounties.project_id = ?", projectID)
	if pool.IsDefault {
		q = q.Where("(bounties.pool_id = ? OR bounties.pool_id IS NULL)", pool.ID)
	} else {
		q = q.Where("bounties.pool_id = ?", pool.ID)
	}

	var rows []contributorPoints
	err := q.Group("submissions.user_id").
		Having("SUM(submissions.points_awarded) > 0").
		Order("points DESC").
		Scan(&rows).Error
	return rows, err
}

// computePreview runs the full distribution math against the given
// transaction handle. Callers that persist the result must pass a
// transaction holding a lock on the pool row.
func (s *PayoutService) computePreview(tx *gorm.DB, project *models.Project, pool *models.RewardPool, in *PayoutInput, strict bool) (*PayoutPreview, error) {
	poolAmount, budgetInfo, err := poolAmountForInput(pool, in, strict)
	if err != nil {
		return nil, err
	}

	platformFee := poolAmount * int64(pool.PlatformFeePercentage) / 100
	distributable := poolAmount - platformFee

	rows, err := unpaidEarnedPoints(tx, project.ID, pool)
	if err != nil {
		return nil, err
	}

	totalPoints := lo.SumBy(rows, func(r contributorPoints) int64 { return r.Points })

	// Snapshot display names/avatars from the mirrored profiles.
	userIDs := lo.Map(rows, func(r contributorPoints, _ int) string { return r.UserID })
	var mirrors []models.UserMirror
	if len(userIDs) > 0 {
		if err := tx.Where("id IN ?", userIDs).Find(&mirrors).Error; err != nil {
			return nil, err
		}
	}
	mirrorByID := lo.KeyBy(mirrors, func(u models.UserMirror) string { return u.ID })

	breakdown := make([]RecipientShare, 0, len(rows))
	for _, r := range rows {
		share := RecipientShare{
			UserID:       r.UserID,
			Points:       r.Points,
			SharePercent: round1(float64(r.Points) / float64(totalPoints) * 100),
			AmountCents:  distributable * r.Points / totalPoints,
		}
		if m, ok := mirrorByID[r.UserID]; ok {
			share.UserName = m.BestName()
			share.UserImage = m.AvatarURL
		}
		breakdown = append(breakdown, share)
	}

	distributed := lo.SumBy(breakdown, func(r RecipientShare) int64 { return r.AmountCents })

	preview := &PayoutPreview{
		PoolID:                 pool.ID,
		PoolType:               pool.Type,
		PoolAmountCents:        poolAmount,
		PoolPercentage:         pool.PoolPercentage,
		PoolCapacity:           pool.PoolCapacity,
		PlatformFeeCents:       platformFee,
		PlatformFeePercentage:  pool.PlatformFeePercentage,
		DistributedAmountCents: distributed,
		TotalEarnedPoints:      totalPoints,
		Breakdown:              breakdown,
		BudgetInfo:             budgetInfo,
	}

	if charge, err := FounderPayoutTotal(poolAmount, platformFee); err == nil {
		preview.FounderCharge = charge
	}
	return preview, nil
}

// resolvePool loads the requested pool, or the project's default pool
// when no pool ID was given.
func resolvePool(tx *gorm.DB, projectID, poolID string) (*models.RewardPool, error) {
	var pool models.RewardPool
	q := tx.Where("project_id = ?", projectID)
	if poolID != "" {
		q = q.Where("id = ?", poolID)
	} else {
		q = q.Where("is_default = ?", true)
	}
	if err := q.First(&pool).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound("reward pool not found")
		}
		return nil, err
	}
	return &pool, nil
}

// PreviewPayout is side-effect-free. An empty breakdown (nobody has
// unpaid points) is a valid result, not an error.
func (s *PayoutService) PreviewPayout(projectID string, in *PayoutInput) (*PayoutPreview, error) {
	var project models.Project
	if err := s.DB.First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound("project not found")
		}
		return nil, err
	}

	pool, err := resolvePool(s.DB, projectID, in.PoolID)
	if err != nil {
		return nil, err
	}
	return s.computePreview(s.DB, &project, pool, in, false)
}

// CreatePayout re-runs the preview inside one transaction (with the pool
// row locked) so a concurrent approval cannot make the persisted split
// stale, then freezes the result as a Payout plus one PayoutRecipient per
// contributor. Stamping payout_id on the consumed submissions is what
// guarantees a point is counted in exactly one payout, ever.
func (s *PayoutService) CreatePayout(projectID, actorID string, in *PayoutInput) (*models.Payout, error) {
	var payout *models.Payout
	var breakdown []RecipientShare

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.First(&project, "id = ?", projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("project not found")
			}
			return err
		}
		if project.FounderID != actorID {
			return ErrForbidden("only the project founder can create payouts")
		}

		pool, err := resolvePool(forUpdate(tx), projectID, in.PoolID)
		if err != nil {
			return err
		}

		preview, err := s.computePreview(tx, &project, pool, in, true)
		if err != nil {
			return err
		}
		if len(preview.Breakdown) == 0 {
			return ErrNoContributors("no contributors with unpaid earned points")
		}
		breakdown = preview.Breakdown

		if pool.Type == models.PoolTypeFixedBudget {
			newSpent := pool.SpentCents + preview.PoolAmountCents
			if newSpent > pool.BudgetCents {
				return ErrInsufficientBudget("distribution would exceed the pool budget")
			}
			if err := tx.Model(&models.RewardPool{}).
				Where("id = ?", pool.ID).
				Update("spent_cents", gorm.Expr("spent_cents + ?", preview.PoolAmountCents)).Error; err != nil {
				return err
			}
		}

		payout = &models.Payout{
			ID:          uuid.NewString(),
			ProjectID:   project.ID,
			PoolID:      pool.ID,
			PeriodLabel: in.PeriodLabel,
			PeriodStart: in.PeriodStart,
			PeriodEnd:   in.PeriodEnd,

			PoolAmountCents:        preview.PoolAmountCents,
			PlatformFeeCents:       preview.PlatformFeeCents,
			DistributedAmountCents: preview.DistributedAmountCents,
			TotalEarnedPoints:      preview.TotalEarnedPoints,
			Status:                 models.PayoutStatusAnnounced,
		}
		if in.ReportedProfitCents != nil {
			payout.ReportedProfitCents = *in.ReportedProfitCents
		}
		if in.DistributionCents != nil {
			payout.DistributionCents = *in.DistributionCents
		}
		if err := tx.Create(payout).Error; err != nil {
			return err
		}

		recipients := lo.Map(preview.Breakdown, func(r RecipientShare, _ int) models.PayoutRecipient {
			return models.PayoutRecipient{
				ID:             uuid.NewString(),
				PayoutID:       payout.ID,
				UserID:         r.UserID,
				UserName:       r.UserName,
				UserImage:      r.UserImage,
				PointsAtPayout: r.Points,
				SharePercent:   r.SharePercent,
				AmountCents:    r.AmountCents,
				Status:         models.RecipientStatusPending,
			}
		})
		if err := tx.Create(&recipients).Error; err != nil {
			return err
		}
		payout.Recipients = recipients

		// Mark the consumed points as paid.
		bountyScope := tx.Session(&gorm.Session{NewDB: true}).
			Model(&models.Bounty{}).
			Select("id").
			Where("project_id = ?", project.ID)
		if pool.IsDefault {
			bountyScope = bountyScope.Where("(pool_id = ? OR pool_id IS NULL)", pool.ID)
		} else {
			bountyScope = bountyScope.Where("pool_id = ?", pool.ID)
		}
		return tx.Model(&models.Submission{}).
			Where("status = ? AND payout_id IS NULL", models.SubmissionStatusApproved).
			Where("bounty_id IN (?)", bountyScope).
			Update("payout_id", payout.ID).Error
	})
	if err != nil {
		return nil, err
	}

	// Post-commit, best effort: founder checkout + recipient notifications.
	// Neither can affect the persisted payout.
	if s.Payments != nil {
		go func(p models.Payout) {
			url, err := s.Payments.CreateFounderCheckout(&p)
			if err != nil {
				log.Printf("⚠️ [PAYOUT] checkout creation failed for payout %s: %v", p.ID, err)
				return
			}
			log.Printf("💳 [PAYOUT] checkout session ready for payout %s: %s", p.ID, url)
		}(*payout)
	}
	if s.Notifier != nil {
		recipientIDs := lo.Map(breakdown, func(r RecipientShare, _ int) string { return r.UserID })
		go s.Notifier.Notify("PAYOUT_ANNOUNCED", "payout", payout.ID, actorID, recipientIDs)
	}

	return payout, nil
}

// MarkSent transitions ANNOUNCED → SENT. Monotonic; founder only.
func (s *PayoutService) MarkSent(payoutID, actorID, note string) (*models.Payout, error) {
	var payout models.Payout

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&payout, "id = ?", payoutID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("payout not found")
			}
			return err
		}

		var project models.Project
		if err := tx.First(&project, "id = ?", payout.ProjectID).Error; err != nil {
			return err
		}
		if project.FounderID != actorID {
			return ErrForbidden("only the project founder can mark a payout sent")
		}
		if payout.Status != models.PayoutStatusAnnounced {
			return ErrInvalidTransition(fmt.Sprintf("cannot mark a %s payout as sent", payout.Status))
		}

		now := time.Now()
		payout.Status = models.PayoutStatusSent
		payout.SentAt = &now
		payout.SentNote = note
		return tx.Model(&payout).Updates(map[string]interface{}{
			"status":    payout.Status,
			"sent_at":   payout.SentAt,
			"sent_note": payout.SentNote,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	// Best-effort transfers to contributors with connected accounts.
	if s.Payments != nil {
		go s.transferToRecipients(payout.ID)
	}
	if s.Notifier != nil {
		var recipients []models.PayoutRecipient
		if err := s.DB.Where("payout_id = ?", payout.ID).Find(&recipients).Error; err == nil {
			ids := lo.Map(recipients, func(r models.PayoutRecipient, _ int) string { return r.UserID })
			go s.Notifier.Notify("PAYOUT_SENT", "payout", payout.ID, actorID, ids)
		}
	}

	return &payout, nil
}

func (s *PayoutService) transferToRecipients(payoutID string) {
	var recipients []models.PayoutRecipient
	if err := s.DB.Where("payout_id = ?", payoutID).Find(&recipients).Error; err != nil {
		log.Printf("⚠️ [PAYOUT] failed to load recipients for transfers: %v", err)
		return
	}
	for _, r := range recipients {
		var mirror models.UserMirror
		if err := s.DB.First(&mirror, "id = ?", r.UserID).Error; err != nil || mirror.StripeAccountID == "" {
			log.Printf("⚠️ [PAYOUT] no connected account for user %s, skipping transfer", r.UserID)
			continue
		}
		if err := s.Payments.TransferToContributor(mirror.StripeAccountID, r.AmountCents, payoutID); err != nil {
			log.Printf("⚠️ [PAYOUT] transfer to %s failed: %v", r.UserID, err)
		}
	}
}

// ConfirmReceipt lets a recipient confirm or dispute their share of a
// SENT payout. It never advances the payout status itself.
func (s *PayoutService) ConfirmReceipt(payoutID, userID string, dispute bool) (*models.PayoutRecipient, error) {
	var recipient models.PayoutRecipient

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var payout models.Payout
		if err := tx.First(&payout, "id = ?", payoutID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("payout not found")
			}
			return err
		}
		if payout.Status != models.PayoutStatusSent {
			return ErrInvalidTransition("receipt can only be confirmed on a SENT payout")
		}

		if err := forUpdate(tx).
			Where("payout_id = ? AND user_id = ?", payoutID, userID).
			First(&recipient).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("you are not a recipient of this payout")
			}
			return err
		}
		if recipient.Status != models.RecipientStatusPending {
			return ErrInvalidTransition(fmt.Sprintf("share already %s", recipient.Status))
		}

		now := time.Now()
		recipient.Status = models.RecipientStatusConfirmed
		if dispute {
			recipient.Status = models.RecipientStatusDisputed
		}
		recipient.ConfirmedAt = &now
		return tx.Model(&recipient).Updates(map[string]interface{}{
			"status":       recipient.Status,
			"confirmed_at": recipient.ConfirmedAt,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &recipient, nil
}

// --- HTTP handlers ---

// PreviewPayoutEndpoint returns the dry-run split for the founder's
// payout form.
func (s *PayoutService) PreviewPayoutEndpoint(c *fiber.Ctx) error {
	var in PayoutInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	preview, err := s.PreviewPayout(c.Params("project_id"), &in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(preview)
}

func (s *PayoutService) CreatePayoutEndpoint(c *fiber.Ctx) error {
	actorID := c.Locals("user_id").(string)
	var in PayoutInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	payout, err := s.CreatePayout(c.Params("project_id"), actorID, &in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(payout)
}

func (s *PayoutService) ListProjectPayouts(c *fiber.Ctx) error {
	var payouts []models.Payout
	if err := s.DB.Preload("Recipients").
		Where("project_id = ?", c.Params("project_id")).
		Order("created_at DESC").
		Find(&payouts).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(payouts)
}

func (s *PayoutService) GetPayout(c *fiber.Ctx) error {
	var payout models.Payout
	if err := s.DB.Preload("Recipients").First(&payout, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, ErrNotFound("payout not found"))
		}
		return respondError(c, err)
	}
	return c.JSON(payout)
}

func (s *PayoutService) MarkSentEndpoint(c *fiber.Ctx) error {
	actorID := c.Locals("user_id").(string)
	var req struct {
		Note string `json:"note"`
	}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	payout, err := s.MarkSent(c.Params("id"), actorID, req.Note)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(payout)
}

func (s *PayoutService) ConfirmReceiptEndpoint(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	var req struct {
		Dispute bool `json:"dispute"`
	}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	recipient, err := s.ConfirmReceipt(c.Params("id"), userID, req.Dispute)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(recipient)
}
