package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/carbonx/marketplace/internal/domain"
	"github.com/carbonx/marketplace/internal/settlement"
	"github.com/carbonx/marketplace/internal/store"
)

// Earliest and latest credit issuance years accepted by validation.
const (
	minVintage = 1990
	maxVintage = 2100
)

// Upper bounds on volume (tonnes) and price (cents per tonne). Their
// product stays well inside int64, so transaction values never overflow
// downstream in the compliance reporter.
const (
	maxVolume     int64 = 100_000_000
	maxPriceCents int64 = 100_000_000 // $1,000,000.00 per tonne
)

// CreateAuctionRequest represents the input for auction creation.
type CreateAuctionRequest struct {
	BuyerID     string
	Volume      int64   // tonnes
	MaxPrice    float64 // dollars per tonne
	VintagePref *int
}

// AuctionService handles auction creation, retrieval, and the settlement
// operations exposed on an auction.
type AuctionService struct {
	store store.Store
	gate  *settlement.Gate
}

// NewAuctionService creates an AuctionService.
func NewAuctionService(st store.Store, gate *settlement.Gate) *AuctionService {
	return &AuctionService{store: st, gate: gate}
}

// Create validates the request and creates an open auction. The matching
// engine never runs here: an auction waits for bids (or for a
// reallocation sweep) to receive volume.
func (s *AuctionService) Create(ctx context.Context, req CreateAuctionRequest) (*domain.Auction, error) {
	if req.Volume <= 0 {
		return nil, &domain.ValidationError{Message: "volume must be a positive integer"}
	}
	if req.Volume > maxVolume {
		return nil, &domain.ValidationError{Message: "volume must not exceed 100000000 tonnes"}
	}
	if req.MaxPrice <= 0 {
		return nil, &domain.ValidationError{Message: "max_price must be greater than 0"}
	}
	priceCents, err := domain.DollarsToCents(req.MaxPrice)
	if err != nil {
		return nil, &domain.ValidationError{Message: "max_price must have at most 2 decimal places"}
	}
	if priceCents > maxPriceCents {
		return nil, &domain.ValidationError{Message: "max_price must not exceed 1000000.00"}
	}
	if req.VintagePref != nil && (*req.VintagePref < minVintage || *req.VintagePref > maxVintage) {
		return nil, &domain.ValidationError{Message: "vintage_pref must be a plausible issuance year"}
	}
	if _, err := s.store.GetParty(ctx, req.BuyerID); err != nil {
		return nil, err
	}

	a := &domain.Auction{
		AuctionID:   uuid.New().String(),
		BuyerID:     req.BuyerID,
		Volume:      req.Volume,
		MaxPrice:    priceCents,
		VintagePref: req.VintagePref,
		Status:      domain.AuctionStatusOpen,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateAuction(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Get retrieves an auction by ID.
func (s *AuctionService) Get(ctx context.Context, id string) (*domain.Auction, error) {
	return s.store.GetAuction(ctx, id)
}

// ListMatches returns the committed match records for an auction.
func (s *AuctionService) ListMatches(ctx context.Context, auctionID string) ([]*domain.Match, error) {
	if _, err := s.store.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return s.store.ListMatches(ctx, auctionID)
}

// ConfirmRegistryTransfer records external registry confirmation.
func (s *AuctionService) ConfirmRegistryTransfer(ctx context.Context, auctionID string) error {
	return s.gate.ConfirmRegistryTransfer(ctx, auctionID)
}

// Settle settles a matched, registry-confirmed auction.
func (s *AuctionService) Settle(ctx context.Context, auctionID string) error {
	return s.gate.Settle(ctx, auctionID)
}
