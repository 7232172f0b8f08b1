package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/carbonx/marketplace/internal/compliance"
	"github.com/carbonx/marketplace/internal/domain"
	"github.com/carbonx/marketplace/internal/events"
	"github.com/carbonx/marketplace/internal/notify"
	"github.com/carbonx/marketplace/internal/store"
)

// MatchEffects runs the post-commit side effects for every committed
// match: compliance threshold evaluation, the match-formed event, and the
// counterpart notifications. It implements engine.MatchObserver.
//
// Effects run on their own goroutine with a detached context so they can
// neither block nor fail a committed match.
type MatchEffects struct {
	store      store.Store
	reporter   *compliance.Reporter
	publisher  events.Publisher
	dispatcher notify.Dispatcher
	logger     *slog.Logger
	timeout    time.Duration
}

// NewMatchEffects creates a MatchEffects fan-out.
func NewMatchEffects(
	st store.Store,
	reporter *compliance.Reporter,
	publisher events.Publisher,
	dispatcher notify.Dispatcher,
	logger *slog.Logger,
) *MatchEffects {
	return &MatchEffects{
		store:      st,
		reporter:   reporter,
		publisher:  publisher,
		dispatcher: dispatcher,
		logger:     logger,
		timeout:    10 * time.Second,
	}
}

// MatchCommitted dispatches the side effects for one committed match.
func (e *MatchEffects) MatchCommitted(_ context.Context, m *domain.Match) {
	match := m.Clone()
	go e.run(match)
}

func (e *MatchEffects) run(m *domain.Match) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	e.reporter.Evaluate(ctx, m)

	payload := map[string]any{
		"event":          "auction_match",
		"match_id":       m.MatchID,
		"auction_id":     m.AuctionID,
		"bid_id":         m.BidID,
		"matched_volume": m.MatchedVolume,
		"matched_price":  m.MatchedPrice,
		"timestamp":      m.MatchedAt.Format(time.RFC3339),
	}
	if err := e.publisher.Publish(ctx, events.TopicMatchFormed, payload); err != nil {
		e.logger.Warn("match event publish failed",
			slog.String("match_id", m.MatchID),
			slog.String("error", err.Error()))
	}

	e.notifyCounterparts(ctx, m)
}

// notifyCounterparts resolves buyer and seller contacts and dispatches the
// match notification. Missing parties or contacts degrade to a log line.
func (e *MatchEffects) notifyCounterparts(ctx context.Context, m *domain.Match) {
	var buyerContact, sellerContact string

	auction, err := e.store.GetAuction(ctx, m.AuctionID)
	if err == nil {
		if buyer, err := e.store.GetParty(ctx, auction.BuyerID); err == nil {
			buyerContact = buyer.Contact
		}
	}
	bid, err := e.store.GetBid(ctx, m.BidID)
	if err == nil {
		if seller, err := e.store.GetParty(ctx, bid.SellerID); err == nil {
			sellerContact = seller.Contact
		}
	}

	if buyerContact == "" && sellerContact == "" {
		e.logger.Debug("no counterpart contacts for match notification",
			slog.String("match_id", m.MatchID))
		return
	}

	e.dispatcher.SendMatchNotification(buyerContact, sellerContact, notify.MatchDetails{
		MatchID:       m.MatchID,
		AuctionID:     m.AuctionID,
		BidID:         m.BidID,
		MatchedVolume: m.MatchedVolume,
		MatchedPrice:  m.MatchedPrice,
	})
}
