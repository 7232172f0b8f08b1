// Package notify delivers best-effort match notifications to counterpart
// contact endpoints. Delivery is fire-and-forget: it runs strictly after a
// successful match commit and failures are logged, never escalated.
package notify

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// MatchDetails carries the fields included in a match notification.
type MatchDetails struct {
	MatchID       string `json:"match_id"`
	AuctionID     string `json:"auction_id"`
	BidID         string `json:"bid_id"`
	MatchedVolume int64  `json:"matched_volume"`
	MatchedPrice  int64  `json:"matched_price"`
}

// Dispatcher sends match notifications to the buyer and seller contacts.
type Dispatcher interface {
	SendMatchNotification(buyerContact, sellerContact string, details MatchDetails)
}

// matchNotificationPayload is the JSON body delivered to a contact URL.
type matchNotificationPayload struct {
	Event     string       `json:"event"`
	Role      string       `json:"role"` // "buyer" or "seller"
	Timestamp string       `json:"timestamp"`
	Data      MatchDetails `json:"data"`
}

// WebhookDispatcher delivers notifications via HTTP POST to each party's
// registered contact URL.
type WebhookDispatcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewWebhookDispatcher creates a WebhookDispatcher with the given delivery
// timeout.
func NewWebhookDispatcher(timeout time.Duration, logger *slog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// SendMatchNotification dispatches one delivery per non-empty contact.
// Each delivery runs in its own goroutine and never blocks the caller.
func (d *WebhookDispatcher) SendMatchNotification(buyerContact, sellerContact string, details MatchDetails) {
	if buyerContact != "" {
		go d.deliver(buyerContact, "buyer", details)
	}
	if sellerContact != "" {
		go d.deliver(sellerContact, "seller", details)
	}
}

func (d *WebhookDispatcher) deliver(contact, role string, details MatchDetails) {
	payload := matchNotificationPayload{
		Event:     "match.formed",
		Role:      role,
		Timestamp: time.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
		Data:      details,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Warn("match notification payload not encodable",
			slog.String("match_id", details.MatchID),
			slog.String("role", role),
			slog.String("error", err.Error()))
		return
	}

	req, err := http.NewRequest(http.MethodPost, contact, bytes.NewReader(body))
	if err != nil {
		d.logger.Warn("match notification not deliverable",
			slog.String("match_id", details.MatchID),
			slog.String("role", role),
			slog.String("error", err.Error()))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.New().String())
	req.Header.Set("X-Event-Type", "match.formed")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("match notification delivery failed",
			slog.String("match_id", details.MatchID),
			slog.String("role", role),
			slog.String("error", err.Error()))
		return
	}
	resp.Body.Close()
}
