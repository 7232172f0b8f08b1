// Package settlement enforces the auction settlement lifecycle. Settlement
// is gated on external registry confirmation: an auction settles only once
// it has been matched and the credit transfer has been confirmed in the
// authoritative registry.
package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/carbonx/marketplace/internal/events"
	"github.com/carbonx/marketplace/internal/store"
)

// Gate is the settlement state machine per auction:
// open → matched → settled, with an orthogonal registry-confirmed flag
// settable only while the auction is matched or later. settled is
// terminal. All precondition checks are delegated to conditional store
// operations so they hold against current state at commit time, even when
// confirmation and settlement race on the same auction.
type Gate struct {
	store     store.Store
	publisher events.Publisher
	logger    *slog.Logger
}

// NewGate creates a settlement Gate.
func NewGate(st store.Store, publisher events.Publisher, logger *slog.Logger) *Gate {
	return &Gate{
		store:     st,
		publisher: publisher,
		logger:    logger,
	}
}

// ConfirmRegistryTransfer records that the credit serials were transferred
// in the external registry. Idempotent: repeated confirmations succeed
// without effect and only the first flip emits an event. Returns
// domain.ErrAuctionNotFound for an unknown auction and an invalid-state
// error while the auction is still open.
func (g *Gate) ConfirmRegistryTransfer(ctx context.Context, auctionID string) error {
	flipped, err := g.store.SetAuctionConfirmed(ctx, auctionID)
	if err != nil {
		return err
	}
	if !flipped {
		return nil
	}

	g.logger.Info("registry transfer confirmed", slog.String("auction_id", auctionID))
	g.publish(events.TopicRegistryConfirmed, map[string]any{
		"event":      "registry_transfer_confirmed",
		"auction_id": auctionID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

// Settle transitions a matched, registry-confirmed auction to settled and
// emits a settlement event. Fails with "must be matched before settlement"
// when the auction is not in the matched state, and with "registry
// confirmation required before settlement" when confirmation is missing.
func (g *Gate) Settle(ctx context.Context, auctionID string) error {
	if err := g.store.SettleAuction(ctx, auctionID); err != nil {
		return err
	}

	g.logger.Info("auction settled", slog.String("auction_id", auctionID))
	g.publish(events.TopicSettled, map[string]any{
		"event":      "auction_settled",
		"auction_id": auctionID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

// publish emits a post-commit event without blocking the caller. Failures
// are logged only; the committed transition stands regardless.
func (g *Gate) publish(topic string, payload map[string]any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.publisher.Publish(ctx, topic, payload); err != nil {
			g.logger.Warn("event publish failed",
				slog.String("topic", topic),
				slog.String("error", err.Error()))
		}
	}()
}
