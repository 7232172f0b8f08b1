package store

import (
	"context"

	"github.com/carbonx/marketplace/internal/domain"
)

// Store is the durable persistence layer for parties, auctions, bids, and
// match records. Every status-changing write is conditional on the record's
// last-known state and is rejected atomically with domain.ErrConflict if
// that state no longer holds. No engine-side locks exist; correctness of
// concurrent matching rests entirely on the store honoring these
// conditional writes per record.
//
// Read methods return clones. A caller can only affect persisted state
// through a conditional write, never by mutating a returned record.
type Store interface {
	CreateParty(ctx context.Context, p *domain.Party) error
	GetParty(ctx context.Context, id string) (*domain.Party, error)

	CreateAuction(ctx context.Context, a *domain.Auction) error
	GetAuction(ctx context.Context, id string) (*domain.Auction, error)

	// GetOpenAuctions returns auctions with status open, ordered by
	// max price ascending, then creation time ascending. When vintage is
	// non-nil, auctions whose preference is set and differs are excluded.
	GetOpenAuctions(ctx context.Context, vintage *int) ([]*domain.Auction, error)

	CreateBid(ctx context.Context, b *domain.Bid) error
	GetBid(ctx context.Context, id string) (*domain.Bid, error)

	// GetPendingBids returns bids with status pending that are untargeted
	// or explicitly targeted at the given auction, ordered by price
	// descending, then creation time ascending (price/time priority).
	GetPendingBids(ctx context.Context, auctionID string) ([]*domain.Bid, error)

	// UpdateAuctionStatus transitions an auction from expected to next.
	// Returns domain.ErrConflict if the auction's status is not expected.
	UpdateAuctionStatus(ctx context.Context, id string, expected, next domain.AuctionStatus) error

	// SetAuctionConfirmed flips the registry-confirmed flag. It is
	// idempotent and reports whether this call performed the flip. The
	// flag is only settable once the auction has been matched.
	SetAuctionConfirmed(ctx context.Context, id string) (bool, error)

	// SettleAuction atomically transitions a matched, registry-confirmed
	// auction to settled. Preconditions are checked against the current
	// state at commit time, never a stale read.
	SettleAuction(ctx context.Context, id string) error

	// UpdateBidStatus transitions a bid from expected to next.
	// Returns domain.ErrConflict if the bid's status is not expected.
	UpdateBidStatus(ctx context.Context, id string, expected, next domain.BidStatus) error

	// CommitMatch applies a match commit as one logical unit: the auction
	// must still be open, the bid still pending, and the allocation must
	// fit the auction's unallocated volume as recomputed inside the atomic
	// section (never from a caller-side read). The bid transitions to
	// matched (and is linked to the auction if untargeted), the match
	// record is inserted, and the auction transitions to matched when the
	// commit exhausts its volume. If any expectation fails the whole
	// commit aborts with domain.ErrConflict and nothing is observably
	// applied.
	CommitMatch(ctx context.Context, m *domain.Match) error

	// ListMatches returns the match records for an auction in match order.
	ListMatches(ctx context.Context, auctionID string) ([]*domain.Match, error)

	// MatchedVolume returns the sum of matched volume across an auction's
	// match records.
	MatchedVolume(ctx context.Context, auctionID string) (int64, error)
}
