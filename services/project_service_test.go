package services

import (
	"testing"

	"bounty-board-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectKeyFromName(t *testing.T) {
	assert.Equal(t, "ACM", projectKeyFromName("Acme Tools"))
	assert.Equal(t, "GOT", projectKeyFromName("go toolkit"))
	assert.Equal(t, "AXX", projectKeyFromName("a"))
	assert.Equal(t, "XXX", projectKeyFromName("42"))
}

func TestCreateProjectDeduplicatesSlugAndKey(t *testing.T) {
	db := setupTestDB(t)
	svc := NewProjectService(db)

	first, err := svc.CreateProject("founder-1", "Acme Tools", "", "", true)
	require.NoError(t, err)
	assert.Equal(t, "acme-tools", first.Slug)
	assert.Equal(t, "ACM", first.ProjectKey)

	second, err := svc.CreateProject("founder-2", "Acme Tools", "", "", true)
	require.NoError(t, err)
	assert.Equal(t, "acme-tools-2", second.Slug)
	assert.NotEqual(t, first.ProjectKey, second.ProjectKey)
	assert.Len(t, second.ProjectKey, 3)
}

func TestCreateProjectValidation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewProjectService(db)

	var se *ServiceError
	_, err := svc.CreateProject("founder-1", "   ", "", "", true)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidAmount, se.Code)

	_, err = svc.CreateProject("founder-1", "Acme", "", "ACME", true)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidAmount, se.Code)
}

func TestUpdateProjectKeepsSlugAndKeyFrozen(t *testing.T) {
	db := setupTestDB(t)
	svc := NewProjectService(db)

	project := seedProject(t, db, "founder-1")

	name := "Acme Tools v2"
	hidden := false
	updated, err := svc.UpdateProject(project.ID, "founder-1", &name, nil, &hidden)
	require.NoError(t, err)
	assert.Equal(t, "Acme Tools v2", updated.Name)
	assert.False(t, updated.IsPublic)
	assert.Equal(t, project.Slug, updated.Slug)
	assert.Equal(t, project.ProjectKey, updated.ProjectKey)

	var se *ServiceError
	_, err = svc.UpdateProject(project.ID, "mallory", &name, nil, nil)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeForbidden, se.Code)
}

func TestFirstPoolBecomesDefault(t *testing.T) {
	db := setupTestDB(t)
	svc := NewProjectService(db)

	project := seedProject(t, db, "founder-1")

	first, err := svc.CreatePool(project.ID, "founder-1", &models.RewardPool{
		Name:           "Core",
		Type:           models.PoolTypeProfitShare,
		PoolPercentage: 10,
		PoolCapacity:   1000,
	})
	require.NoError(t, err)
	assert.True(t, first.IsDefault)

	second, err := svc.CreatePool(project.ID, "founder-1", &models.RewardPool{
		Name:        "Launch",
		Type:        models.PoolTypeFixedBudget,
		BudgetCents: 500_000,
		IsDefault:   true,
	})
	require.NoError(t, err)
	assert.True(t, second.IsDefault)

	// The default flag moved: exactly one default pool per project.
	var defaults int64
	require.NoError(t, db.Model(&models.RewardPool{}).
		Where("project_id = ? AND is_default = ?", project.ID, true).
		Count(&defaults).Error)
	assert.Equal(t, int64(1), defaults)
}

func TestCreatePoolValidation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewProjectService(db)

	project := seedProject(t, db, "founder-1")
	var se *ServiceError

	_, err := svc.CreatePool(project.ID, "mallory", &models.RewardPool{
		Type: models.PoolTypeProfitShare, PoolPercentage: 10, PoolCapacity: 1000,
	})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeForbidden, se.Code)

	_, err = svc.CreatePool(project.ID, "founder-1", &models.RewardPool{
		Type: models.PoolTypeProfitShare, PoolPercentage: 0, PoolCapacity: 1000,
	})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidAmount, se.Code)

	_, err = svc.CreatePool(project.ID, "founder-1", &models.RewardPool{
		Type: models.PoolTypeFixedBudget, BudgetCents: 0,
	})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidAmount, se.Code)

	_, err = svc.CreatePool(project.ID, "founder-1", &models.RewardPool{Type: "VESTING"})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidAmount, se.Code)
}

func TestPoolTermsLockOnFirstClaim(t *testing.T) {
	db := setupTestDB(t)
	svc := NewProjectService(db)

	project := seedProject(t, db, "founder-1")
	pool := seedProfitSharePool(t, db, project.ID, 10, 1000)

	// Terms are editable while nobody has committed work.
	updated, err := svc.UpdatePool(pool.ID, "founder-1", map[string]interface{}{
		"pool_percentage": 15,
	})
	require.NoError(t, err)
	assert.Equal(t, 15, updated.PoolPercentage)

	bounty := seedOpenBounty(t, db, project.ID, models.ClaimModeSingle, 100)
	seedActiveClaim(t, db, bounty.ID, "alice")

	var se *ServiceError
	_, err = svc.UpdatePool(pool.ID, "founder-1", map[string]interface{}{
		"pool_percentage": 5,
	})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodePoolLocked, se.Code)

	// Cosmetic fields stay editable.
	updated, err = svc.UpdatePool(pool.ID, "founder-1", map[string]interface{}{
		"name": "Core contributors",
	})
	require.NoError(t, err)
	assert.Equal(t, "Core contributors", updated.Name)
}

func TestPoolCapacityIsNeverUserEditable(t *testing.T) {
	db := setupTestDB(t)
	svc := NewProjectService(db)

	project := seedProject(t, db, "founder-1")
	pool := seedProfitSharePool(t, db, project.ID, 10, 1000)

	var se *ServiceError
	_, err := svc.UpdatePool(pool.ID, "founder-1", map[string]interface{}{
		"pool_capacity": int64(5000),
	})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodePoolLocked, se.Code)
}
