// models/user_mirror.go
package models

import "time"

// UserMirror is a local read-only copy of contributor profiles synced
// from the auth service (see workers/user_sync_worker.go). Payout
// previews join against it for display names and avatars; the Stripe
// account ID comes along from payment onboarding.
type UserMirror struct {
	ID              string `json:"id" gorm:"primaryKey"` // ExternalUserID
	Username        string `json:"username" gorm:"index"`
	DisplayName     string `json:"display_name"`
	AvatarURL       string `json:"avatar_url"`
	AccountStatus   string `json:"account_status" gorm:"default:'active'"`
	StripeAccountID string `json:"stripe_account_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index"`
}

// BestName prefers the human-readable display name.
func (u *UserMirror) BestName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
