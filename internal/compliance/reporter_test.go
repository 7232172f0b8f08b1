package compliance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/carbonx/marketplace/internal/domain"
	"github.com/carbonx/marketplace/internal/store"
)

type captureSink struct {
	reports []Report
	err     error
}

func (s *captureSink) Record(_ context.Context, r Report) error {
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, r)
	return nil
}

func newTestReporter(t *testing.T, sink Sink) (*Reporter, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewReporter(st, sink, logger), st
}

func seedCounterparts(t *testing.T, st *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	err := st.CreateAuction(ctx, &domain.Auction{
		AuctionID: "a1",
		BuyerID:   "buyer-1",
		Volume:    1000,
		MaxPrice:  1500,
		Status:    domain.AuctionStatusOpen,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed auction: %v", err)
	}
	err = st.CreateBid(ctx, &domain.Bid{
		BidID:       "b1",
		SellerID:    "seller-1",
		Price:       1200,
		Volume:      1000,
		SerialRange: "ACCU-0001-1000",
		Vintage:     2020,
		Status:      domain.BidStatusPending,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("seed bid: %v", err)
	}
}

func TestReporter_AboveThreshold(t *testing.T) {
	sink := &captureSink{}
	reporter, st := newTestReporter(t, sink)
	seedCounterparts(t, st)

	// 1000 tonnes at $12.00 = $12,000, above the $10,000 threshold.
	m := &domain.Match{
		MatchID:       "m1",
		BidID:         "b1",
		AuctionID:     "a1",
		MatchedVolume: 1000,
		MatchedPrice:  1200,
		MatchedAt:     time.Now(),
	}
	reporter.Evaluate(context.Background(), m)

	if len(sink.reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(sink.reports))
	}
	r := sink.reports[0]
	if r.Value != 1_200_000 {
		t.Errorf("value = %d, want 1200000", r.Value)
	}
	if r.Currency != "AUD" {
		t.Errorf("currency = %s, want AUD", r.Currency)
	}
	if r.BuyerID != "buyer-1" || r.SellerID != "seller-1" {
		t.Errorf("counterparts = %s/%s, want buyer-1/seller-1", r.BuyerID, r.SellerID)
	}
	if r.ReportID == "" {
		t.Error("report id not assigned")
	}
}

func TestReporter_AtThresholdNotReported(t *testing.T) {
	sink := &captureSink{}
	reporter, st := newTestReporter(t, sink)
	seedCounterparts(t, st)

	// Exactly $10,000: the threshold is strictly greater.
	m := &domain.Match{
		MatchID:       "m1",
		BidID:         "b1",
		AuctionID:     "a1",
		MatchedVolume: 1000,
		MatchedPrice:  1000,
		MatchedAt:     time.Now(),
	}
	reporter.Evaluate(context.Background(), m)

	if len(sink.reports) != 0 {
		t.Fatalf("reports = %d, want 0 at the exact threshold", len(sink.reports))
	}
}

func TestReporter_BelowThresholdNotReported(t *testing.T) {
	sink := &captureSink{}
	reporter, st := newTestReporter(t, sink)
	seedCounterparts(t, st)

	m := &domain.Match{
		MatchID:       "m1",
		BidID:         "b1",
		AuctionID:     "a1",
		MatchedVolume: 10,
		MatchedPrice:  1200,
		MatchedAt:     time.Now(),
	}
	reporter.Evaluate(context.Background(), m)

	if len(sink.reports) != 0 {
		t.Fatalf("reports = %d, want 0", len(sink.reports))
	}
}

func TestReporter_DegradesOnMissingCounterparts(t *testing.T) {
	sink := &captureSink{}
	reporter, _ := newTestReporter(t, sink)

	// No auction or bid in the store; the report goes out anyway.
	m := &domain.Match{
		MatchID:       "m1",
		BidID:         "missing-bid",
		AuctionID:     "missing-auction",
		MatchedVolume: 1000,
		MatchedPrice:  1200,
		MatchedAt:     time.Now(),
	}
	reporter.Evaluate(context.Background(), m)

	if len(sink.reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(sink.reports))
	}
	if sink.reports[0].BuyerID != "" || sink.reports[0].SellerID != "" {
		t.Errorf("expected empty counterpart identities, got %s/%s",
			sink.reports[0].BuyerID, sink.reports[0].SellerID)
	}
}

func TestReporter_SinkFailureDoesNotPanic(t *testing.T) {
	sink := &captureSink{err: errors.New("sink unavailable")}
	reporter, st := newTestReporter(t, sink)
	seedCounterparts(t, st)

	m := &domain.Match{
		MatchID:       "m1",
		BidID:         "b1",
		AuctionID:     "a1",
		MatchedVolume: 1000,
		MatchedPrice:  1200,
		MatchedAt:     time.Now(),
	}
	// Must return normally; the failure is logged, never propagated.
	reporter.Evaluate(context.Background(), m)
}
