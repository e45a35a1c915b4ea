// models/payout.go
package models

import "time"

// Payout lifecycle — monotonic, no backward transitions
const (
	PayoutStatusAnnounced = "ANNOUNCED"
	PayoutStatusSent      = "SENT"
	PayoutStatusCompleted = "COMPLETED"
)

// Recipient confirmation states
const (
	RecipientStatusPending     = "PENDING"
	RecipientStatusConfirmed   = "CONFIRMED"
	RecipientStatusDisputed    = "DISPUTED"
	RecipientStatusUnconfirmed = "UNCONFIRMED"
)

// Payout is one distribution event for a project's reward pool over a
// period. Amounts are frozen at creation; DistributedAmountCents may be
// less than PoolAmountCents − PlatformFeeCents by up to one cent per
// recipient (floor rounding, remainder undistributed).
type Payout struct {
	ID        string `json:"id" gorm:"primaryKey;type:uuid"`
	ProjectID string `json:"project_id" gorm:"index;not null"`
	PoolID    string `json:"pool_id" gorm:"index;not null"`

	PeriodLabel string     `json:"period_label"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`

	ReportedProfitCents    int64 `json:"reported_profit_cents"` // PROFIT_SHARE input
	DistributionCents      int64 `json:"distribution_cents"`    // FIXED_BUDGET input
	PoolAmountCents        int64 `json:"pool_amount_cents"`
	PlatformFeeCents       int64 `json:"platform_fee_cents"`
	DistributedAmountCents int64 `json:"distributed_amount_cents"`
	TotalEarnedPoints      int64 `json:"total_earned_points"`

	Status   string     `json:"status" gorm:"default:'ANNOUNCED'"`
	SentNote string     `json:"sent_note,omitempty"`
	SentAt   *time.Time `json:"sent_at,omitempty"`

	Timestamps

	Recipients []PayoutRecipient `json:"recipients,omitempty" gorm:"foreignKey:PayoutID"`
}

// PayoutRecipient is one contributor's frozen share within a Payout.
// Created atomically with its parent and never re-derived.
type PayoutRecipient struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	PayoutID string `json:"payout_id" gorm:"index;not null"`
	UserID   string `json:"user_id" gorm:"index;not null"` // ExternalUserID

	// Snapshots taken at payout creation
	UserName       string  `json:"user_name"`
	UserImage      string  `json:"user_image"`
	PointsAtPayout int64   `json:"points_at_payout"`
	SharePercent   float64 `json:"share_percent"` // one decimal place
	AmountCents    int64   `json:"amount_cents"`

	Status      string     `json:"status" gorm:"default:'PENDING'"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`

	Timestamps
}
