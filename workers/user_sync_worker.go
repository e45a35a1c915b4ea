// workers/user_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"bounty-board-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// profilePayload matches the JSON returned by the auth service's public
// profile feed.
type profilePayload struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	DisplayName     string    `json:"display_name"`
	AvatarURL       string    `json:"avatar_url,omitempty"`
	AccountStatus   string    `json:"account_status"`
	StripeAccountID string    `json:"stripe_account_id,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Users []profilePayload `json:"users"`
}

// UserSyncWorker incrementally mirrors contributor profiles into the
// user_mirrors table so payout breakdowns can show names and avatars
// without a cross-service call on the hot path.
type UserSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string // e.g. "http://localhost:8500"
	endpointPath string // e.g. "/api/v1/public/profiles"
	serviceToken string
	httpClient   *http.Client
}

func NewUserSyncWorker(db *gorm.DB, authServiceBaseURL, endpointPath, serviceToken string) *UserSyncWorker {
	return &UserSyncWorker{
		db:           db,
		interval:     1 * time.Minute,
		baseURL:      authServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *UserSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting User Sync Worker (auth-service → user_mirrors)…")
	go w.run(ctx)
}

func (w *UserSyncWorker) run(ctx context.Context) {
	// Initial backfill from the beginning of time.
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial profile sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.syncBatch(ctx, w.lastSyncTime()); err != nil {
				log.Printf("❌ Profile sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ User Sync Worker stopped")
			return
		}
	}
}

// lastSyncTime is the most recent UpdatedAt in the local mirror table;
// incremental syncs only ask for profiles changed since then.
func (w *UserSyncWorker) lastSyncTime() time.Time {
	var lastTime time.Time
	w.db.Model(&models.UserMirror{}).
		Select("COALESCE(MAX(updated_at), '0001-01-01')").
		Scan(&lastTime)
	return lastTime
}

func (w *UserSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	endpoint := fmt.Sprintf("%s%s?updated_since=%s",
		w.baseURL, w.endpointPath, url.QueryEscape(since.UTC().Format(time.RFC3339)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("profile feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("profile feed answered %d: %s", resp.StatusCode, string(body))
	}

	var payload profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("profile feed decode failed: %w", err)
	}
	if len(payload.Users) == 0 {
		return nil
	}

	mirrors := make([]models.UserMirror, 0, len(payload.Users))
	for _, u := range payload.Users {
		mirrors = append(mirrors, models.UserMirror{
			ID:              u.ID,
			Username:        u.Username,
			DisplayName:     u.DisplayName,
			AvatarURL:       u.AvatarURL,
			AccountStatus:   u.AccountStatus,
			StripeAccountID: u.StripeAccountID,
			UpdatedAt:       u.UpdatedAt,
		})
	}

	err = w.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "display_name", "avatar_url", "account_status", "stripe_account_id", "updated_at",
		}),
	}).Create(&mirrors).Error
	if err != nil {
		return fmt.Errorf("mirror upsert failed: %w", err)
	}

	log.Printf("✅ Synced %d contributor profiles", len(mirrors))
	return nil
}
