// services/notifier.go
package services

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Notifier pushes one-way calls to the notification service and the PR
// comment bot. Everything here is fire-and-forget: failures are logged
// and never reach the caller — approval and payout state must stay
// correct even when these deliveries drop.
type Notifier struct {
	notifyURL    string
	prCommentURL string
	serviceToken string
	client       *http.Client
	printer      *message.Printer
}

func NewNotifierFromEnv() *Notifier {
	return &Notifier{
		notifyURL:    os.Getenv("NOTIFICATION_SERVICE_URL"),
		prCommentURL: os.Getenv("PR_COMMENT_SERVICE_URL"),
		serviceToken: os.Getenv("BOUNTY_SERVICE_TOKEN"),
		client:       &http.Client{Timeout: 10 * time.Second},
		printer:      message.NewPrinter(language.English),
	}
}

func (n *Notifier) post(url string, payload interface{}) {
	if url == "" {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️ [NOTIFY] marshal failed: %v", err)
		return
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Printf("⚠️ [NOTIFY] request build failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", n.serviceToken)

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("⚠️ [NOTIFY] delivery to %s failed: %v", url, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("⚠️ [NOTIFY] %s answered %d", url, resp.StatusCode)
	}
}

// Notify is the one-way notification call. Safe to run in a goroutine.
func (n *Notifier) Notify(notifType, referenceType, referenceID, actorID string, recipientIDs []string) {
	if len(recipientIDs) == 0 {
		return
	}
	n.post(n.notifyURL, map[string]interface{}{
		"type":           notifType,
		"reference_type": referenceType,
		"reference_id":   referenceID,
		"actor_id":       actorID,
		"recipient_ids":  recipientIDs,
	})
}

// PostPRComment asks the comment bot to annotate the linked pull request
// with the review outcome.
func (n *Notifier) PostPRComment(prURL, bountyKey, bountyTitle string, points int64, status string) {
	n.post(n.prCommentURL, map[string]interface{}{
		"pr_url":  prURL,
		"key":     bountyKey,
		"title":   bountyTitle,
		"points":  points,
		"status":  status,
		"message": n.printer.Sprintf("%s %s: %s — %d points", bountyKey, status, bountyTitle, points),
	})
}

// FormatCents renders integer cents as a user-facing dollar string with
// locale-aware grouping, e.g. 123456789 → "$1,234,567.89".
func (n *Notifier) FormatCents(cents int64) string {
	return n.printer.Sprintf("$%.2f", float64(cents)/100)
}
