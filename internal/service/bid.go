package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/carbonx/marketplace/internal/domain"
	"github.com/carbonx/marketplace/internal/engine"
	"github.com/carbonx/marketplace/internal/store"
)

var serialRangeRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{0,63}$`)

// SubmitBidRequest represents the input for bid submission.
type SubmitBidRequest struct {
	SellerID    string
	AuctionID   string  // optional: target a specific auction
	Price       float64 // dollars per tonne
	Volume      int64   // tonnes
	SerialRange string
	Vintage     int
}

// SubmitBidResult carries the persisted bid and any matches committed by
// the matching pass that the submission triggered.
type SubmitBidResult struct {
	Bid     *domain.Bid
	Matches []*domain.Match
}

// BidService handles bid submission and retrieval. Submission triggers the
// matching engine: an untargeted bid runs the bid-driven policy against
// all open auctions, a targeted bid triggers a fill pass on its auction.
type BidService struct {
	store   store.Store
	matcher *engine.Matcher
	logger  *slog.Logger
}

// NewBidService creates a BidService.
func NewBidService(st store.Store, matcher *engine.Matcher, logger *slog.Logger) *BidService {
	return &BidService{
		store:   st,
		matcher: matcher,
		logger:  logger,
	}
}

// Submit validates the request, persists the bid as pending, and runs the
// matching engine. A conflict during matching leaves the bid pending with
// no partial writes; the bid remains eligible for the reallocation sweep,
// so submission itself still succeeds.
func (s *BidService) Submit(ctx context.Context, req SubmitBidRequest) (*SubmitBidResult, error) {
	if req.Volume <= 0 {
		return nil, &domain.ValidationError{Message: "volume must be a positive integer"}
	}
	if req.Volume > maxVolume {
		return nil, &domain.ValidationError{Message: "volume must not exceed 100000000 tonnes"}
	}
	if req.Price <= 0 {
		return nil, &domain.ValidationError{Message: "price must be greater than 0"}
	}
	priceCents, err := domain.DollarsToCents(req.Price)
	if err != nil {
		return nil, &domain.ValidationError{Message: "price must have at most 2 decimal places"}
	}
	if priceCents > maxPriceCents {
		return nil, &domain.ValidationError{Message: "price must not exceed 1000000.00"}
	}
	if !serialRangeRegex.MatchString(req.SerialRange) {
		return nil, &domain.ValidationError{Message: "serial_range must match ^[A-Z0-9][A-Z0-9-]{0,63}$"}
	}
	if req.Vintage < minVintage || req.Vintage > maxVintage {
		return nil, &domain.ValidationError{Message: "vintage must be a plausible issuance year"}
	}
	if _, err := s.store.GetParty(ctx, req.SellerID); err != nil {
		return nil, err
	}
	if req.AuctionID != "" {
		if _, err := s.store.GetAuction(ctx, req.AuctionID); err != nil {
			return nil, err
		}
	}

	bid := &domain.Bid{
		BidID:       uuid.New().String(),
		AuctionID:   req.AuctionID,
		SellerID:    req.SellerID,
		Price:       priceCents,
		Volume:      req.Volume,
		SerialRange: req.SerialRange,
		Vintage:     req.Vintage,
		Status:      domain.BidStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateBid(ctx, bid); err != nil {
		return nil, err
	}

	matches, err := s.runMatching(ctx, bid)
	if err != nil {
		return nil, err
	}

	// Re-read the bid so the caller sees the post-matching state.
	persisted, err := s.store.GetBid(ctx, bid.BidID)
	if err != nil {
		return nil, err
	}
	return &SubmitBidResult{Bid: persisted, Matches: matches}, nil
}

// runMatching selects the policy for the submitted bid and runs it.
// Conflicts are absorbed here: the losing attempt made no writes, the bid
// stays pending, and the next sweep retries.
func (s *BidService) runMatching(ctx context.Context, bid *domain.Bid) ([]*domain.Match, error) {
	if bid.Targeted() {
		matches, err := s.matcher.FillAuction(ctx, bid.AuctionID)
		if errors.Is(err, domain.ErrConflict) {
			s.logger.Info("fill pass conflicted, deferring to sweep",
				slog.String("auction_id", bid.AuctionID),
				slog.String("bid_id", bid.BidID))
			return matches, nil
		}
		return matches, err
	}

	match, err := s.matcher.MatchBid(ctx, bid)
	if errors.Is(err, domain.ErrConflict) {
		s.logger.Info("match attempt conflicted, bid stays pending",
			slog.String("bid_id", bid.BidID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, nil
	}
	return []*domain.Match{match}, nil
}

// Get retrieves a bid by ID.
func (s *BidService) Get(ctx context.Context, id string) (*domain.Bid, error) {
	return s.store.GetBid(ctx, id)
}
