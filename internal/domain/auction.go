package domain

import "time"

// AuctionStatus represents the lifecycle state of an auction.
// Status only ever advances: open → matched → settled.
type AuctionStatus string

const (
	AuctionStatusOpen    AuctionStatus = "open"
	AuctionStatusMatched AuctionStatus = "matched"
	AuctionStatusSettled AuctionStatus = "settled"
)

// Auction is a standing buy-side request for carbon credits.
type Auction struct {
	AuctionID         string
	BuyerID           string
	Volume            int64  // tonnes requested
	MaxPrice          int64  // cents per tonne, highest acceptable
	VintagePref       *int   // issuance year preference, nil = any
	Status            AuctionStatus
	RegistryConfirmed bool // flips false → true once, never back
	CreatedAt         time.Time
}

// AcceptsVintage reports whether a bid with the given vintage satisfies
// the auction's vintage preference.
func (a *Auction) AcceptsVintage(vintage int) bool {
	return a.VintagePref == nil || *a.VintagePref == vintage
}

// Clone returns a copy of the auction. Stores hand out clones so that
// callers cannot mutate persisted state outside a conditional write.
func (a *Auction) Clone() *Auction {
	c := *a
	if a.VintagePref != nil {
		v := *a.VintagePref
		c.VintagePref = &v
	}
	return &c
}
