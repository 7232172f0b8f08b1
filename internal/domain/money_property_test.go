package domain

import (
	"testing"

	"pgregory.net/rapid"
)

func TestProperty_MonetaryRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// Generate a cent value in a reasonable monetary range so the
		// float64 representation has at most 2 decimal places.
		cents := rapid.Int64Range(0, 99_999_999_99).Draw(t, "cents")

		// Convert cents → dollars → cents. This must round-trip exactly.
		dollars := CentsToDollars(cents)
		gotCents, err := DollarsToCents(dollars)
		if err != nil {
			t.Fatalf("DollarsToCents(%v) returned error for value derived from %d cents: %v", dollars, cents, err)
		}
		if gotCents != cents {
			t.Fatalf("round-trip failed: cents=%d → dollars=%v → cents=%d", cents, dollars, gotCents)
		}
	})
}

func TestProperty_TransactionValueIsVolumeTimesPrice(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		volume := rapid.Int64Range(1, 1_000_000).Draw(t, "volume")
		price := rapid.Int64Range(1, 1_000_00).Draw(t, "price")

		m := &Match{MatchedVolume: volume, MatchedPrice: price}
		if got := m.TransactionValue(); got != volume*price {
			t.Fatalf("TransactionValue() = %d, want %d", got, volume*price)
		}
	})
}
