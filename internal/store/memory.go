package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/carbonx/marketplace/internal/domain"
)

// auctionEntry is an open-auction index entry ordered for Policy A
// candidate selection: max price ascending, then creation time ascending.
type auctionEntry struct {
	MaxPrice  int64
	CreatedAt time.Time
	AuctionID string
}

func auctionLess(a, b auctionEntry) bool {
	if a.MaxPrice != b.MaxPrice {
		return a.MaxPrice < b.MaxPrice
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.AuctionID < b.AuctionID
}

// bidEntry is a pending-bid index entry ordered for Policy B price/time
// priority: price descending, then creation time ascending.
type bidEntry struct {
	Price     int64
	CreatedAt time.Time
	BidID     string
}

func bidLess(a, b bidEntry) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.BidID < b.BidID
}

// MemoryStore is a thread-safe in-memory Store. A single mutex guards all
// state, which makes each conditional write and the match commit sequence
// atomic by construction. B-trees keep the open-auction and pending-bid
// candidate sets in selection order.
type MemoryStore struct {
	mu           sync.RWMutex
	parties      map[string]*domain.Party
	auctions     map[string]*domain.Auction
	bids         map[string]*domain.Bid
	matches      map[string][]*domain.Match // auction_id → matches (append-only)
	openAuctions *btree.BTreeG[auctionEntry]
	pendingBids  *btree.BTreeG[bidEntry]
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	const degree = 32
	return &MemoryStore{
		parties:      make(map[string]*domain.Party),
		auctions:     make(map[string]*domain.Auction),
		bids:         make(map[string]*domain.Bid),
		matches:      make(map[string][]*domain.Match),
		openAuctions: btree.NewG[auctionEntry](degree, auctionLess),
		pendingBids:  btree.NewG[bidEntry](degree, bidLess),
	}
}

// CreateParty adds a party. Returns domain.ErrPartyAlreadyExists if the
// ID is taken.
func (s *MemoryStore) CreateParty(_ context.Context, p *domain.Party) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.parties[p.PartyID]; ok {
		return domain.ErrPartyAlreadyExists
	}
	s.parties[p.PartyID] = p.Clone()
	return nil
}

// GetParty retrieves a party by ID.
func (s *MemoryStore) GetParty(_ context.Context, id string) (*domain.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.parties[id]
	if !ok {
		return nil, domain.ErrPartyNotFound
	}
	return p.Clone(), nil
}

// CreateAuction adds an auction and indexes it as an open candidate.
func (s *MemoryStore) CreateAuction(_ context.Context, a *domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := a.Clone()
	s.auctions[c.AuctionID] = c
	if c.Status == domain.AuctionStatusOpen {
		s.openAuctions.ReplaceOrInsert(auctionEntry{
			MaxPrice:  c.MaxPrice,
			CreatedAt: c.CreatedAt,
			AuctionID: c.AuctionID,
		})
	}
	return nil
}

// GetAuction retrieves an auction by ID.
func (s *MemoryStore) GetAuction(_ context.Context, id string) (*domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[id]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	return a.Clone(), nil
}

// GetOpenAuctions returns open auctions in selection order, optionally
// filtered to those compatible with the given vintage.
func (s *MemoryStore) GetOpenAuctions(_ context.Context, vintage *int) ([]*domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Auction, 0)
	s.openAuctions.Ascend(func(e auctionEntry) bool {
		a := s.auctions[e.AuctionID]
		if vintage != nil && !a.AcceptsVintage(*vintage) {
			return true
		}
		result = append(result, a.Clone())
		return true
	})
	return result, nil
}

// CreateBid adds a bid and indexes it as a pending candidate.
func (s *MemoryStore) CreateBid(_ context.Context, b *domain.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := b.Clone()
	s.bids[c.BidID] = c
	if c.Status == domain.BidStatusPending {
		s.pendingBids.ReplaceOrInsert(bidEntry{
			Price:     c.Price,
			CreatedAt: c.CreatedAt,
			BidID:     c.BidID,
		})
	}
	return nil
}

// GetBid retrieves a bid by ID.
func (s *MemoryStore) GetBid(_ context.Context, id string) (*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bids[id]
	if !ok {
		return nil, domain.ErrBidNotFound
	}
	return b.Clone(), nil
}

// GetPendingBids returns pending bids eligible for the given auction in
// price/time priority order.
func (s *MemoryStore) GetPendingBids(_ context.Context, auctionID string) ([]*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Bid, 0)
	s.pendingBids.Ascend(func(e bidEntry) bool {
		b := s.bids[e.BidID]
		if b.AuctionID != "" && b.AuctionID != auctionID {
			return true
		}
		result = append(result, b.Clone())
		return true
	})
	return result, nil
}

// UpdateAuctionStatus transitions an auction's status conditionally.
func (s *MemoryStore) UpdateAuctionStatus(_ context.Context, id string, expected, next domain.AuctionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[id]
	if !ok {
		return domain.ErrAuctionNotFound
	}
	if a.Status != expected {
		return domain.ErrConflict
	}
	s.setAuctionStatus(a, next)
	return nil
}

// setAuctionStatus applies a status change and maintains the open index.
// Caller holds the write lock.
func (s *MemoryStore) setAuctionStatus(a *domain.Auction, next domain.AuctionStatus) {
	if a.Status == next {
		return
	}
	if a.Status == domain.AuctionStatusOpen {
		s.openAuctions.Delete(auctionEntry{
			MaxPrice:  a.MaxPrice,
			CreatedAt: a.CreatedAt,
			AuctionID: a.AuctionID,
		})
	}
	a.Status = next
}

// SetAuctionConfirmed flips the registry-confirmed flag. Idempotent.
func (s *MemoryStore) SetAuctionConfirmed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[id]
	if !ok {
		return false, domain.ErrAuctionNotFound
	}
	if a.Status == domain.AuctionStatusOpen {
		return false, &domain.InvalidStateError{Message: "auction not yet matched"}
	}
	if a.RegistryConfirmed {
		return false, nil
	}
	a.RegistryConfirmed = true
	return true, nil
}

// SettleAuction transitions a matched, confirmed auction to settled,
// checking both preconditions atomically under the store lock.
func (s *MemoryStore) SettleAuction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[id]
	if !ok {
		return domain.ErrAuctionNotFound
	}
	if a.Status != domain.AuctionStatusMatched {
		return &domain.InvalidStateError{Message: "must be matched before settlement"}
	}
	if !a.RegistryConfirmed {
		return &domain.PreconditionFailedError{Message: "registry confirmation required before settlement"}
	}
	a.Status = domain.AuctionStatusSettled
	return nil
}

// UpdateBidStatus transitions a bid's status conditionally.
func (s *MemoryStore) UpdateBidStatus(_ context.Context, id string, expected, next domain.BidStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bids[id]
	if !ok {
		return domain.ErrBidNotFound
	}
	if b.Status != expected {
		return domain.ErrConflict
	}
	s.setBidStatus(b, next)
	return nil
}

// setBidStatus applies a status change and maintains the pending index.
// Caller holds the write lock.
func (s *MemoryStore) setBidStatus(b *domain.Bid, next domain.BidStatus) {
	if b.Status == next {
		return
	}
	if b.Status == domain.BidStatusPending {
		s.pendingBids.Delete(bidEntry{
			Price:     b.Price,
			CreatedAt: b.CreatedAt,
			BidID:     b.BidID,
		})
	}
	b.Status = next
}

// CommitMatch applies the full match commit under the store lock. All
// expectations are verified before anything is written, so a failed
// commit leaves no observable change. The unallocated volume is
// recomputed here rather than trusted from the caller: an engine pass
// sizes its allocation from a read taken before the lock, and a
// concurrent commit may have consumed that volume in between.
func (s *MemoryStore) CommitMatch(_ context.Context, m *domain.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[m.AuctionID]
	if !ok {
		return domain.ErrAuctionNotFound
	}
	b, ok := s.bids[m.BidID]
	if !ok {
		return domain.ErrBidNotFound
	}
	if a.Status != domain.AuctionStatusOpen || b.Status != domain.BidStatusPending {
		return domain.ErrConflict
	}
	if b.AuctionID != "" && b.AuctionID != m.AuctionID {
		return domain.ErrConflict
	}

	var allocated int64
	for _, prev := range s.matches[m.AuctionID] {
		allocated += prev.MatchedVolume
	}
	if m.MatchedVolume <= 0 || allocated+m.MatchedVolume > a.Volume {
		return domain.ErrConflict
	}

	s.setBidStatus(b, domain.BidStatusMatched)
	b.AuctionID = m.AuctionID
	if allocated+m.MatchedVolume == a.Volume {
		s.setAuctionStatus(a, domain.AuctionStatusMatched)
	}
	s.matches[m.AuctionID] = append(s.matches[m.AuctionID], m.Clone())
	return nil
}

// ListMatches returns an auction's match records in commit order.
func (s *MemoryStore) ListMatches(_ context.Context, auctionID string) ([]*domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := s.matches[auctionID]
	result := make([]*domain.Match, 0, len(matches))
	for _, m := range matches {
		result = append(result, m.Clone())
	}
	return result, nil
}

// MatchedVolume returns the total allocated volume for an auction.
func (s *MemoryStore) MatchedVolume(_ context.Context, auctionID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, m := range s.matches[auctionID] {
		total += m.MatchedVolume
	}
	return total, nil
}
