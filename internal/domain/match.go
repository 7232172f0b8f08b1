package domain

import "time"

// Match is an immutable record linking a bid (or a volume portion of it)
// to an auction at an agreed price. Matches are created exclusively by the
// matching engine and never mutated or deleted. For any auction, the sum
// of MatchedVolume over its matches never exceeds the auction's volume.
type Match struct {
	MatchID       string
	BidID         string
	AuctionID     string
	MatchedVolume int64 // tonnes
	MatchedPrice  int64 // cents per tonne
	MatchedAt     time.Time
}

// TransactionValue returns the total value of the match in cents.
// Validation caps volume and price at 1e8 each, so the product fits
// int64 with room to spare.
func (m *Match) TransactionValue() int64 {
	return m.MatchedVolume * m.MatchedPrice
}

// Clone returns a copy of the match.
func (m *Match) Clone() *Match {
	c := *m
	return &c
}
