// models/project.go
package models

import "time"

// Pool types
const (
	PoolTypeProfitShare = "PROFIT_SHARE"
	PoolTypeFixedBudget = "FIXED_BUDGET"
)

// Pool lifecycle states
const (
	PoolStatusActive    = "ACTIVE"
	PoolStatusExhausted = "EXHAUSTED"
	PoolStatusSunset    = "SUNSET"
	PoolStatusClosed    = "CLOSED"
)

// Project is a venture accepting contributions. Bounty IDs are prefixed
// with the 3-letter ProjectKey (e.g., "ACM-42").
type Project struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	Slug        string `json:"slug" gorm:"uniqueIndex;not null"`
	ProjectKey  string `json:"project_key" gorm:"uniqueIndex;size:3;not null"`
	Name        string `json:"name" gorm:"not null"`
	Description string `json:"description" gorm:"type:text"`
	FounderID   string `json:"founder_id" gorm:"index;not null"` // ExternalUserID
	IsPublic    bool   `json:"is_public" gorm:"default:true"`

	Timestamps

	// Relationships
	Pools    []RewardPool `json:"pools,omitempty" gorm:"foreignKey:ProjectID"`
	Bounties []Bounty     `json:"bounties,omitempty" gorm:"foreignKey:ProjectID"`
}

// RewardPool funds contributor compensation for a project. PROFIT_SHARE
// pools pay a percentage of reported profit each period; FIXED_BUDGET
// pools spend down a fixed cents budget.
type RewardPool struct {
	ID        string `json:"id" gorm:"primaryKey;type:uuid"`
	ProjectID string `json:"project_id" gorm:"index;not null"`
	Name      string `json:"name" gorm:"not null"`
	Type      string `json:"type" gorm:"not null"` // PROFIT_SHARE | FIXED_BUDGET
	IsDefault bool   `json:"is_default" gorm:"default:false"`
	Status    string `json:"status" gorm:"default:'ACTIVE'"`

	// PROFIT_SHARE fields. PoolCapacity is the point total at which the
	// pool is fully subscribed; it auto-expands, never shrinks.
	PoolPercentage int   `json:"pool_percentage" gorm:"default:0"` // 1..100
	PoolCapacity   int64 `json:"pool_capacity" gorm:"default:0"`

	// FIXED_BUDGET fields
	BudgetCents int64 `json:"budget_cents" gorm:"default:0"`
	SpentCents  int64 `json:"spent_cents" gorm:"default:0"`

	PlatformFeePercentage int `json:"platform_fee_percentage" gorm:"default:2"`

	Timestamps

	// Calculated (not stored)
	IsLocked bool `json:"is_locked,omitempty" gorm:"-"`
}

// RemainingBudgetCents is only meaningful for FIXED_BUDGET pools.
func (p *RewardPool) RemainingBudgetCents() int64 {
	return p.BudgetCents - p.SpentCents
}

// PoolExpansionEvent is the immutable audit record written every time a
// PROFIT_SHARE pool's capacity grows. Never updated or deleted.
type PoolExpansionEvent struct {
	ID               string    `json:"id" gorm:"primaryKey;type:uuid"`
	PoolID           string    `json:"pool_id" gorm:"index;not null"`
	PreviousCapacity int64     `json:"previous_capacity" gorm:"not null"`
	NewCapacity      int64     `json:"new_capacity" gorm:"not null"`
	Reason           string    `json:"reason"`
	DilutionPercent  float64   `json:"dilution_percent"` // one decimal place
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
}
