// models/submission.go
package models

import "time"

// Submission review states
const (
	SubmissionStatusDraft     = "DRAFT"
	SubmissionStatusPending   = "PENDING"
	SubmissionStatusNeedsInfo = "NEEDS_INFO"
	SubmissionStatusApproved  = "APPROVED"
	SubmissionStatusRejected  = "REJECTED"
	SubmissionStatusWithdrawn = "WITHDRAWN"
)

// Submission is a contributor's proof-of-work for a claimed bounty.
// PointsAwarded is set only on approval. PayoutID is stamped when the
// awarded points are consumed by a payout — a non-nil PayoutID means
// these points can never be distributed again.
type Submission struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	BountyID string `json:"bounty_id" gorm:"index;not null"`
	ClaimID  string `json:"claim_id" gorm:"index;not null"`
	UserID   string `json:"user_id" gorm:"index;not null"` // ExternalUserID

	Title       string `json:"title"`
	Body        string `json:"body" gorm:"type:text"`
	EvidenceURL string `json:"evidence_url"` // uploaded attachment, if any
	PRURL       string `json:"pr_url"`       // external pull request, if any

	Status        string     `json:"status" gorm:"default:'DRAFT';index"`
	PointsAwarded *int64     `json:"points_awarded,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	RejectedAt    *time.Time `json:"rejected_at,omitempty"`
	RejectionNote string     `json:"rejection_note,omitempty"`
	PayoutID      *string    `json:"payout_id,omitempty" gorm:"index"`

	Timestamps
}

// SubmissionEvent is the append-only audit trail of submission status
// transitions. Rows are created, never mutated.
type SubmissionEvent struct {
	ID           string    `json:"id" gorm:"primaryKey;type:uuid"`
	SubmissionID string    `json:"submission_id" gorm:"index;not null"`
	FromStatus   string    `json:"from_status" gorm:"not null"`
	ToStatus     string    `json:"to_status" gorm:"not null"`
	ActorID      string    `json:"actor_id" gorm:"not null"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}
