package domain

import "time"

// BidStatus represents the lifecycle state of a bid.
// Status only ever advances: pending → matched.
type BidStatus string

const (
	BidStatusPending BidStatus = "pending"
	BidStatusMatched BidStatus = "matched"
)

// Bid is a sell-side offer of carbon credits.
type Bid struct {
	BidID       string
	AuctionID   string // optional target; immutable once set
	SellerID    string
	Price       int64  // cents per tonne
	Volume      int64  // tonnes offered
	SerialRange string // ACCU serial range, e.g. "ACCU-0001-1000"
	Vintage     int    // issuance year of the credits
	Status      BidStatus
	CreatedAt   time.Time
}

// Targeted reports whether the bid was submitted against a specific auction.
func (b *Bid) Targeted() bool {
	return b.AuctionID != ""
}

// Clone returns a copy of the bid.
func (b *Bid) Clone() *Bid {
	c := *b
	return &c
}
