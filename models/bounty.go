// models/bounty.go
package models

import "time"

// Bounty lifecycle
const (
	BountyStatusBacklog   = "BACKLOG" // not yet priced
	BountyStatusOpen      = "OPEN"
	BountyStatusClaimed   = "CLAIMED"
	BountyStatusCompleted = "COMPLETED"
	BountyStatusClosed    = "CLOSED"
)

// Claim modes
const (
	ClaimModeSingle      = "SINGLE"      // one active claim across all users
	ClaimModeCompetitive = "COMPETITIVE" // many active claims, first approval wins
	ClaimModeMultiple    = "MULTIPLE"    // many active claims, bounded by MaxClaims
	ClaimModePerformance = "PERFORMANCE" // results-based, every verified result earns
)

// Claim lifecycle
const (
	ClaimStatusActive    = "ACTIVE"
	ClaimStatusSubmitted = "SUBMITTED"
	ClaimStatusCompleted = "COMPLETED"
	ClaimStatusExpired   = "EXPIRED"
	ClaimStatusReleased  = "RELEASED"
)

// Bounty is a unit of work inside a project. Points is nil while the
// bounty sits in the backlog unpriced.
type Bounty struct {
	ID          string  `json:"id" gorm:"primaryKey;type:uuid"`
	ProjectID   string  `json:"project_id" gorm:"index;not null"`
	PoolID      *string `json:"pool_id,omitempty" gorm:"index"` // nil = project default pool
	Key         string  `json:"key" gorm:"uniqueIndex"`         // e.g. "ACM-42"
	Title       string  `json:"title" gorm:"not null"`
	Description string  `json:"description" gorm:"type:text"`

	Points          *int64 `json:"points,omitempty"`
	Status          string `json:"status" gorm:"default:'BACKLOG'"`
	ClaimMode       string `json:"claim_mode" gorm:"default:'SINGLE'"`
	ClaimExpiryDays int    `json:"claim_expiry_days" gorm:"default:14"`
	MaxClaims       *int   `json:"max_claims,omitempty"` // MULTIPLE mode only

	Timestamps

	Claims []BountyClaim `json:"claims,omitempty" gorm:"foreignKey:BountyID"`
}

// BountyClaim is one contributor's reservation of a bounty. The partial
// unique index enforces at most one ACTIVE claim per user per bounty.
type BountyClaim struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	BountyID string `json:"bounty_id" gorm:"not null;index;uniqueIndex:idx_one_active_claim,where:status = 'ACTIVE'"`
	UserID   string `json:"user_id" gorm:"not null;index;uniqueIndex:idx_one_active_claim,where:status = 'ACTIVE'"` // ExternalUserID
	Status   string `json:"status" gorm:"default:'ACTIVE';index"`

	ClaimedAt time.Time  `json:"claimed_at" gorm:"autoCreateTime"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" gorm:"index"`

	Timestamps
}
