package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/carbonx/marketplace/internal/domain"
	"github.com/carbonx/marketplace/internal/store"
)

// ReallocationManager periodically re-runs Policy B over every open
// auction. It picks up pending bids whose original matching attempt lost a
// conflict race, and targeted bids that arrived while their auction was
// busy. Conflicts during a sweep are expected and left for the next tick.
type ReallocationManager struct {
	interval time.Duration
	matcher  *Matcher
	store    store.Store
	logger   *slog.Logger
}

// NewReallocationManager creates a ReallocationManager.
func NewReallocationManager(
	interval time.Duration,
	matcher *Matcher,
	st store.Store,
	logger *slog.Logger,
) *ReallocationManager {
	return &ReallocationManager{
		interval: interval,
		matcher:  matcher,
		store:    st,
		logger:   logger,
	}
}

// Start launches a background goroutine that ticks at the configured
// interval. It stops when ctx is cancelled.
func (r *ReallocationManager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
}

// tick runs one reallocation pass over all open auctions.
func (r *ReallocationManager) tick(ctx context.Context) {
	auctions, err := r.store.GetOpenAuctions(ctx, nil)
	if err != nil {
		r.logger.Error("reallocation sweep failed to list auctions",
			slog.String("error", err.Error()))
		return
	}

	for _, auction := range auctions {
		matches, err := r.matcher.FillAuction(ctx, auction.AuctionID)
		switch {
		case errors.Is(err, domain.ErrConflict):
			// Another matching attempt won the race; retry next tick.
			r.logger.Debug("sweep pass conflicted",
				slog.String("auction_id", auction.AuctionID))
		case err != nil:
			r.logger.Error("sweep pass failed",
				slog.String("auction_id", auction.AuctionID),
				slog.String("error", err.Error()))
		case len(matches) > 0:
			r.logger.Info("sweep allocated volume",
				slog.String("auction_id", auction.AuctionID),
				slog.Int("matches", len(matches)))
		}
	}
}
