package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/carbonx/marketplace/internal/domain"
	"github.com/carbonx/marketplace/internal/store"
)

// MatchObserver receives committed matches for post-commit side effects
// (compliance evaluation, event publishing, notifications). Observers run
// after the commit and their outcome never affects the committed match.
type MatchObserver interface {
	MatchCommitted(ctx context.Context, m *domain.Match)
}

// Matcher implements the two selection policies of the matching engine.
//
// Policy A (MatchBid) is bid-driven: a newly arrived untargeted bid is
// matched against the first compatible open auction, cheapest first.
//
// Policy B (FillAuction) is auction-driven: an auction is filled from the
// pending bid queue in price/time priority, allowing partial fills across
// multiple bids.
//
// Both policies commit through the store's conditional match commit. The
// engine holds no locks of its own; a lost race surfaces as
// domain.ErrConflict and aborts per-policy as specified below.
type Matcher struct {
	store    store.Store
	observer MatchObserver
	logger   *slog.Logger
}

// NewMatcher creates a Matcher. observer may be nil.
func NewMatcher(st store.Store, observer MatchObserver, logger *slog.Logger) *Matcher {
	return &Matcher{
		store:    st,
		observer: observer,
		logger:   logger,
	}
}

// MatchBid runs Policy A for a newly arrived bid. It scans open auctions
// compatible with the bid's vintage in ascending max-price order (ties by
// creation time) and commits against the first auction whose max price
// covers the bid's price. The allocation takes the auction's full
// remaining volume, or the full bid volume if smaller. A bid matches at
// most one auction; after the first successful commit the scan stops.
//
// Returns (nil, nil) when no qualifying auction exists — the bid stays
// pending and the store is untouched. A commit that loses a race returns
// domain.ErrConflict and the whole attempt aborts; the bid is not retried
// against the next candidate automatically.
func (m *Matcher) MatchBid(ctx context.Context, bid *domain.Bid) (*domain.Match, error) {
	auctions, err := m.store.GetOpenAuctions(ctx, &bid.Vintage)
	if err != nil {
		return nil, err
	}

	for _, auction := range auctions {
		if auction.MaxPrice < bid.Price {
			continue
		}

		remaining, err := m.remainingVolume(ctx, auction)
		if err != nil {
			return nil, err
		}
		if remaining <= 0 {
			continue
		}

		volume := remaining
		if bid.Volume < volume {
			volume = bid.Volume
		}

		match := &domain.Match{
			MatchID:       uuid.New().String(),
			BidID:         bid.BidID,
			AuctionID:     auction.AuctionID,
			MatchedVolume: volume,
			MatchedPrice:  bid.Price,
			MatchedAt:     time.Now().UTC(),
		}

		if err := m.store.CommitMatch(ctx, match); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				m.logger.Debug("match commit lost race",
					slog.String("bid_id", bid.BidID),
					slog.String("auction_id", auction.AuctionID),
				)
			}
			return nil, err
		}

		m.logger.Info("bid matched",
			slog.String("match_id", match.MatchID),
			slog.String("bid_id", bid.BidID),
			slog.String("auction_id", auction.AuctionID),
			slog.Int64("volume", volume),
			slog.Int64("price", bid.Price),
		)
		m.notifyCommitted(ctx, match)
		return match, nil
	}

	return nil, nil
}

// FillAuction runs Policy B for an auction needing (re-)allocation. It
// walks the pending bid queue in price/time priority and allocates until
// the auction's remaining volume reaches zero or bids are exhausted. The
// auction transitions to matched on the commit that exhausts its volume;
// otherwise it stays open with the remainder available for future bids.
//
// The first commit that loses a race stops the pass; allocations already
// committed in the same pass stand, and the conflict is returned alongside
// them so the caller can decide whether to retry.
func (m *Matcher) FillAuction(ctx context.Context, auctionID string) ([]*domain.Match, error) {
	auction, err := m.store.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction.Status != domain.AuctionStatusOpen {
		return nil, nil
	}

	remaining, err := m.remainingVolume(ctx, auction)
	if err != nil {
		return nil, err
	}

	bids, err := m.store.GetPendingBids(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	var matches []*domain.Match
	for _, bid := range bids {
		if remaining <= 0 {
			break
		}
		if bid.Price > auction.MaxPrice {
			continue
		}
		if !auction.AcceptsVintage(bid.Vintage) {
			continue
		}

		volume := remaining
		if bid.Volume < volume {
			volume = bid.Volume
		}

		match := &domain.Match{
			MatchID:       uuid.New().String(),
			BidID:         bid.BidID,
			AuctionID:     auction.AuctionID,
			MatchedVolume: volume,
			MatchedPrice:  bid.Price,
			MatchedAt:     time.Now().UTC(),
		}

		if err := m.store.CommitMatch(ctx, match); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				m.logger.Debug("fill pass stopped on conflict",
					slog.String("auction_id", auctionID),
					slog.String("bid_id", bid.BidID),
				)
				return matches, domain.ErrConflict
			}
			return matches, err
		}

		remaining -= volume
		matches = append(matches, match)

		m.logger.Info("auction allocation committed",
			slog.String("match_id", match.MatchID),
			slog.String("auction_id", auctionID),
			slog.String("bid_id", bid.BidID),
			slog.Int64("volume", volume),
			slog.Int64("remaining", remaining),
		)
		m.notifyCommitted(ctx, match)
	}

	return matches, nil
}

// remainingVolume computes the auction's unallocated volume from its
// committed match records.
func (m *Matcher) remainingVolume(ctx context.Context, a *domain.Auction) (int64, error) {
	allocated, err := m.store.MatchedVolume(ctx, a.AuctionID)
	if err != nil {
		return 0, err
	}
	return a.Volume - allocated, nil
}

func (m *Matcher) notifyCommitted(ctx context.Context, match *domain.Match) {
	if m.observer != nil {
		m.observer.MatchCommitted(ctx, match)
	}
}
