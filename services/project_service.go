// services/project_service.go
package services

import (
	"errors"
	"fmt"
	"strings"

	"bounty-board-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type ProjectService struct {
	DB *gorm.DB
}

func NewProjectService(db *gorm.DB) *ProjectService {
	return &ProjectService{DB: db}
}

// projectKeyFromName derives the 3-letter uppercase bounty prefix, e.g.
// "Acme Tools" → "ACM".
func projectKeyFromName(name string) string {
	letters := make([]rune, 0, 3)
	for _, r := range strings.ToUpper(slug.Make(name)) {
		if r >= 'A' && r <= 'Z' {
			letters = append(letters, r)
		}
		if len(letters) == 3 {
			break
		}
	}
	for len(letters) < 3 {
		letters = append(letters, 'X')
	}
	return string(letters)
}

// CreateProject registers a venture with a unique slug and project key.
// Slug/key collisions get a numeric suffix rather than an error.
func (s *ProjectService) CreateProject(founderID, name, description, projectKey string, isPublic bool) (*models.Project, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidAmount("project name is required")
	}
	if projectKey == "" {
		projectKey = projectKeyFromName(name)
	}
	projectKey = strings.ToUpper(projectKey)
	if len(projectKey) != 3 {
		return nil, ErrInvalidAmount("project key must be exactly 3 letters")
	}

	var project *models.Project
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		base := slug.Make(name)
		candidate := base
		for i := 2; ; i++ {
			var count int64
			if err := tx.Model(&models.Project{}).Where("slug = ?", candidate).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				break
			}
			candidate = fmt.Sprintf("%s-%d", base, i)
		}

		key := projectKey
		for i := 0; ; i++ {
			var count int64
			if err := tx.Model(&models.Project{}).Where("project_key = ?", key).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				break
			}
			// Rotate the last letter until a free key turns up.
			key = key[:2] + string(rune('A'+(int(key[2]-'A')+i+1)%26))
		}

		project = &models.Project{
			ID:          uuid.NewString(),
			Slug:        candidate,
			ProjectKey:  key,
			Name:        name,
			Description: description,
			FounderID:   founderID,
			IsPublic:    isPublic,
		}
		return tx.Create(project).Error
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// UpdateProject edits project metadata. Slug and project key are frozen
// at creation: bounty keys and public URLs must never change under
// contributors.
func (s *ProjectService) UpdateProject(projectID, actorID string, name, description *string, isPublic *bool) (*models.Project, error) {
	var project models.Project

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&project, "id = ?", projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("project not found")
			}
			return err
		}
		if project.FounderID != actorID {
			return ErrForbidden("only the project founder can edit the project")
		}

		updates := map[string]interface{}{}
		if name != nil {
			if strings.TrimSpace(*name) == "" {
				return ErrInvalidAmount("project name is required")
			}
			updates["name"] = *name
		}
		if description != nil {
			updates["description"] = *description
		}
		if isPublic != nil {
			updates["is_public"] = *isPublic
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&project).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&project, "id = ?", projectID).Error
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// poolIsLocked reports whether any bounty in the pool has ever been
// claimed. Locked pools keep their economic fields immutable.
func poolIsLocked(tx *gorm.DB, pool *models.RewardPool) (bool, error) {
	q := tx.Model(&models.BountyClaim{}).
		Joins("JOIN bounties ON bounties.id = bounty_claims.bounty_id")
	if pool.IsDefault {
		q = q.Where("bounties.project_id = ? AND (bounties.pool_id = ? OR bounties.pool_id IS NULL)", pool.ProjectID, pool.ID)
	} else {
		q = q.Where("bounties.pool_id = ?", pool.ID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreatePool adds a reward pool. The project's first pool becomes the
// default automatically; marking a later pool default moves the flag.
func (s *ProjectService) CreatePool(projectID, actorID string, in *models.RewardPool) (*models.RewardPool, error) {
	switch in.Type {
	case models.PoolTypeProfitShare:
		if in.PoolPercentage < 1 || in.PoolPercentage > 100 {
			return nil, ErrInvalidAmount("pool_percentage must be between 1 and 100")
		}
		if in.PoolCapacity <= 0 {
			return nil, ErrInvalidAmount("pool_capacity must be positive")
		}
	case models.PoolTypeFixedBudget:
		if in.BudgetCents <= 0 {
			return nil, ErrInvalidAmount("budget_cents must be positive")
		}
	default:
		return nil, ErrInvalidAmount(fmt.Sprintf("unknown pool type %q", in.Type))
	}
	if in.PlatformFeePercentage < 0 || in.PlatformFeePercentage > 100 {
		return nil, ErrInvalidAmount("platform_fee_percentage must be between 0 and 100")
	}

	var pool *models.RewardPool
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.First(&project, "id = ?", projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("project not found")
			}
			return err
		}
		if project.FounderID != actorID {
			return ErrForbidden("only the project founder can manage pools")
		}

		var existing int64
		if err := tx.Model(&models.RewardPool{}).Where("project_id = ?", projectID).Count(&existing).Error; err != nil {
			return err
		}
		isDefault := existing == 0 || in.IsDefault
		if isDefault && existing > 0 {
			// Exactly one default pool per project.
			if err := tx.Model(&models.RewardPool{}).
				Where("project_id = ?", projectID).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}

		pool = &models.RewardPool{
			ID:                    uuid.NewString(),
			ProjectID:             projectID,
			Name:                  in.Name,
			Type:                  in.Type,
			IsDefault:             isDefault,
			Status:                models.PoolStatusActive,
			PoolPercentage:        in.PoolPercentage,
			PoolCapacity:          in.PoolCapacity,
			BudgetCents:           in.BudgetCents,
			PlatformFeePercentage: in.PlatformFeePercentage,
		}
		return tx.Create(pool).Error
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// UpdatePool edits pool metadata. Once any of the pool's bounties has a
// claim, the economic fields (type, percentage, budget) are frozen and
// attempts to change them fail with POOL_LOCKED. Capacity is managed by
// auto-expansion only and is never user-editable.
func (s *ProjectService) UpdatePool(poolID, actorID string, updates map[string]interface{}) (*models.RewardPool, error) {
	var pool models.RewardPool

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&pool, "id = ?", poolID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("reward pool not found")
			}
			return err
		}

		var project models.Project
		if err := tx.First(&project, "id = ?", pool.ProjectID).Error; err != nil {
			return err
		}
		if project.FounderID != actorID {
			return ErrForbidden("only the project founder can manage pools")
		}

		if _, changesCapacity := updates["pool_capacity"]; changesCapacity {
			return ErrPoolLocked("pool capacity is managed by auto-expansion and cannot be set directly")
		}

		lockedFields := []string{"type", "pool_percentage", "budget_cents", "platform_fee_percentage"}
		touchesLocked := false
		for _, f := range lockedFields {
			if _, ok := updates[f]; ok {
				touchesLocked = true
				break
			}
		}
		if touchesLocked {
			locked, err := poolIsLocked(tx, &pool)
			if err != nil {
				return err
			}
			if locked {
				return ErrPoolLocked("pool terms are locked once its bounties have claims")
			}
		}

		if makeDefault, ok := updates["is_default"].(bool); ok && makeDefault && !pool.IsDefault {
			if err := tx.Model(&models.RewardPool{}).
				Where("project_id = ?", pool.ProjectID).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&pool).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&pool, "id = ?", poolID).Error
	})
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

// --- HTTP handlers ---

func (s *ProjectService) CreateProjectEndpoint(c *fiber.Ctx) error {
	founderID := c.Locals("user_id").(string)
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		ProjectKey  string `json:"project_key"`
		IsPublic    *bool  `json:"is_public"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}
	project, err := s.CreateProject(founderID, req.Name, req.Description, req.ProjectKey, isPublic)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(project)
}

func (s *ProjectService) UpdateProjectEndpoint(c *fiber.Ctx) error {
	actorID := c.Locals("user_id").(string)
	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		IsPublic    *bool   `json:"is_public"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	project, err := s.UpdateProject(c.Params("id"), actorID, req.Name, req.Description, req.IsPublic)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(project)
}

func (s *ProjectService) GetProjectBySlug(c *fiber.Ctx) error {
	var project models.Project
	if err := s.DB.Preload("Pools").
		Where("slug = ? AND is_public = ?", c.Params("slug"), true).
		First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, ErrNotFound("project not found"))
		}
		return respondError(c, err)
	}
	return c.JSON(project)
}

func (s *ProjectService) GetProject(c *fiber.Ctx) error {
	var project models.Project
	if err := s.DB.Preload("Pools").First(&project, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, ErrNotFound("project not found"))
		}
		return respondError(c, err)
	}

	// Annotate pools with their lock state for the founder's settings UI.
	for i := range project.Pools {
		locked, err := poolIsLocked(s.DB, &project.Pools[i])
		if err == nil {
			project.Pools[i].IsLocked = locked
		}
	}
	return c.JSON(project)
}

func (s *ProjectService) CreatePoolEndpoint(c *fiber.Ctx) error {
	actorID := c.Locals("user_id").(string)
	var req models.RewardPool
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	pool, err := s.CreatePool(c.Params("project_id"), actorID, &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(pool)
}

func (s *ProjectService) UpdatePoolEndpoint(c *fiber.Ctx) error {
	actorID := c.Locals("user_id").(string)
	var req struct {
		Name                  *string `json:"name"`
		IsDefault             *bool   `json:"is_default"`
		Status                *string `json:"status"`
		Type                  *string `json:"type"`
		PoolPercentage        *int    `json:"pool_percentage"`
		PoolCapacity          *int64  `json:"pool_capacity"`
		BudgetCents           *int64  `json:"budget_cents"`
		PlatformFeePercentage *int    `json:"platform_fee_percentage"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.IsDefault != nil {
		updates["is_default"] = *req.IsDefault
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.Type != nil {
		updates["type"] = *req.Type
	}
	if req.PoolPercentage != nil {
		updates["pool_percentage"] = *req.PoolPercentage
	}
	if req.PoolCapacity != nil {
		updates["pool_capacity"] = *req.PoolCapacity
	}
	if req.BudgetCents != nil {
		updates["budget_cents"] = *req.BudgetCents
	}
	if req.PlatformFeePercentage != nil {
		updates["platform_fee_percentage"] = *req.PlatformFeePercentage
	}

	pool, err := s.UpdatePool(c.Params("pool_id"), actorID, updates)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(pool)
}

// GetPoolExpansionHistory returns the immutable dilution audit trail.
func (s *ProjectService) GetPoolExpansionHistory(c *fiber.Ctx) error {
	var events []models.PoolExpansionEvent
	if err := s.DB.Where("pool_id = ?", c.Params("pool_id")).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(events)
}
