package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/carbonx/marketplace/internal/domain"
	"github.com/carbonx/marketplace/internal/engine"
	"github.com/carbonx/marketplace/internal/settlement"
	"github.com/carbonx/marketplace/internal/store"
)

// testEnv wires the services over a shared in-memory store, with events
// discarded and no observers.
type testEnv struct {
	store      *store.MemoryStore
	partySvc   *PartyService
	auctionSvc *AuctionService
	bidSvc     *BidService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	matcher := engine.NewMatcher(st, nil, logger)
	gate := settlement.NewGate(st, nopPublisher{}, logger)
	return &testEnv{
		store:      st,
		partySvc:   NewPartyService(st),
		auctionSvc: NewAuctionService(st, gate),
		bidSvc:     NewBidService(st, matcher, logger),
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }

func (e *testEnv) registerParty(t *testing.T, name string) *domain.Party {
	t.Helper()
	p, err := e.partySvc.Register(context.Background(), RegisterPartyRequest{Name: name})
	if err != nil {
		t.Fatalf("register party: %v", err)
	}
	return p
}

func (e *testEnv) createAuction(t *testing.T, buyerID string, volume int64, maxPrice float64) *domain.Auction {
	t.Helper()
	a, err := e.auctionSvc.Create(context.Background(), CreateAuctionRequest{
		BuyerID:  buyerID,
		Volume:   volume,
		MaxPrice: maxPrice,
	})
	if err != nil {
		t.Fatalf("create auction: %v", err)
	}
	return a
}

func TestPartyService_Register(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.partySvc.Register(ctx, RegisterPartyRequest{
		Name:    "Acme Carbon Pty Ltd",
		Contact: "https://acme.example.com/webhooks",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.PartyID == "" {
		t.Error("party id not assigned")
	}

	got, err := env.partySvc.Get(ctx, p.PartyID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Acme Carbon Pty Ltd" {
		t.Errorf("name = %q", got.Name)
	}
}

func TestPartyService_Register_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegisterPartyRequest
	}{
		{"empty name", RegisterPartyRequest{Name: ""}},
		{"relative contact url", RegisterPartyRequest{Name: "Acme", Contact: "/hooks"}},
		{"unsupported scheme", RegisterPartyRequest{Name: "Acme", Contact: "ftp://acme.example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.partySvc.Register(ctx, tt.req)
			var validation *domain.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAuctionService_Create_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.registerParty(t, "Buyer Co")
	badVintage := 1901

	tests := []struct {
		name string
		req  CreateAuctionRequest
	}{
		{"zero volume", CreateAuctionRequest{BuyerID: buyer.PartyID, Volume: 0, MaxPrice: 25}},
		{"negative volume", CreateAuctionRequest{BuyerID: buyer.PartyID, Volume: -5, MaxPrice: 25}},
		{"excessive volume", CreateAuctionRequest{BuyerID: buyer.PartyID, Volume: 100_000_001, MaxPrice: 25}},
		{"zero max price", CreateAuctionRequest{BuyerID: buyer.PartyID, Volume: 100, MaxPrice: 0}},
		{"sub-cent max price", CreateAuctionRequest{BuyerID: buyer.PartyID, Volume: 100, MaxPrice: 25.005}},
		{"excessive max price", CreateAuctionRequest{BuyerID: buyer.PartyID, Volume: 100, MaxPrice: 2_000_000}},
		{"implausible vintage", CreateAuctionRequest{BuyerID: buyer.PartyID, Volume: 100, MaxPrice: 25, VintagePref: &badVintage}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auctionSvc.Create(ctx, tt.req)
			var validation *domain.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAuctionService_Create_UnknownBuyer(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.auctionSvc.Create(context.Background(), CreateAuctionRequest{
		BuyerID:  "missing",
		Volume:   100,
		MaxPrice: 25,
	})
	if !errors.Is(err, domain.ErrPartyNotFound) {
		t.Fatalf("expected party not found, got %v", err)
	}
}

func TestBidService_Submit_MatchesOpenAuction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.registerParty(t, "Buyer Co")
	seller := env.registerParty(t, "Seller Co")
	auction := env.createAuction(t, buyer.PartyID, 100, 25.00)

	result, err := env.bidSvc.Submit(ctx, SubmitBidRequest{
		SellerID:    seller.PartyID,
		Price:       20.00,
		Volume:      100,
		SerialRange: "ACCU-0001-1000",
		Vintage:     2022,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(result.Matches))
	}
	m := result.Matches[0]
	if m.AuctionID != auction.AuctionID {
		t.Errorf("matched auction = %s, want %s", m.AuctionID, auction.AuctionID)
	}
	if m.MatchedPrice != 2000 {
		t.Errorf("matched price = %d cents, want bid price 2000", m.MatchedPrice)
	}
	if result.Bid.Status != domain.BidStatusMatched {
		t.Errorf("bid status = %s, want matched", result.Bid.Status)
	}

	a, _ := env.auctionSvc.Get(ctx, auction.AuctionID)
	if a.Status != domain.AuctionStatusMatched {
		t.Errorf("auction status = %s, want matched", a.Status)
	}
}

func TestBidService_Submit_NoQualifyingAuction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.registerParty(t, "Buyer Co")
	seller := env.registerParty(t, "Seller Co")
	env.createAuction(t, buyer.PartyID, 100, 15.00) // below the bid price

	result, err := env.bidSvc.Submit(ctx, SubmitBidRequest{
		SellerID:    seller.PartyID,
		Price:       20.00,
		Volume:      100,
		SerialRange: "ACCU-0001-1000",
		Vintage:     2022,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 0 {
		t.Fatalf("matches = %d, want 0", len(result.Matches))
	}
	if result.Bid.Status != domain.BidStatusPending {
		t.Errorf("bid status = %s, want pending", result.Bid.Status)
	}
}

func TestBidService_Submit_TargetedBidFillsAuction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.registerParty(t, "Buyer Co")
	seller := env.registerParty(t, "Seller Co")
	auction := env.createAuction(t, buyer.PartyID, 100, 25.00)

	// Partial fill: 60 of 100, auction stays open.
	result, err := env.bidSvc.Submit(ctx, SubmitBidRequest{
		SellerID:    seller.PartyID,
		AuctionID:   auction.AuctionID,
		Price:       20.00,
		Volume:      60,
		SerialRange: "ACCU-0001-0060",
		Vintage:     2022,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 1 || result.Matches[0].MatchedVolume != 60 {
		t.Fatalf("expected one 60-tonne allocation, got %+v", result.Matches)
	}

	a, _ := env.auctionSvc.Get(ctx, auction.AuctionID)
	if a.Status != domain.AuctionStatusOpen {
		t.Errorf("auction status = %s, want open after partial fill", a.Status)
	}

	// Second targeted bid takes the remainder.
	result, err = env.bidSvc.Submit(ctx, SubmitBidRequest{
		SellerID:    seller.PartyID,
		AuctionID:   auction.AuctionID,
		Price:       22.00,
		Volume:      50,
		SerialRange: "ACCU-0061-0110",
		Vintage:     2022,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 1 || result.Matches[0].MatchedVolume != 40 {
		t.Fatalf("expected one 40-tonne allocation, got %+v", result.Matches)
	}

	a, _ = env.auctionSvc.Get(ctx, auction.AuctionID)
	if a.Status != domain.AuctionStatusMatched {
		t.Errorf("auction status = %s, want matched", a.Status)
	}

	matches, err := env.auctionSvc.ListMatches(ctx, auction.AuctionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("match records = %d, want 2", len(matches))
	}
}

func TestBidService_Submit_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seller := env.registerParty(t, "Seller Co")

	tests := []struct {
		name string
		req  SubmitBidRequest
	}{
		{"zero volume", SubmitBidRequest{SellerID: seller.PartyID, Price: 20, Volume: 0, SerialRange: "ACCU-1", Vintage: 2022}},
		{"excessive volume", SubmitBidRequest{SellerID: seller.PartyID, Price: 20, Volume: 100_000_001, SerialRange: "ACCU-1", Vintage: 2022}},
		{"zero price", SubmitBidRequest{SellerID: seller.PartyID, Price: 0, Volume: 10, SerialRange: "ACCU-1", Vintage: 2022}},
		{"sub-cent price", SubmitBidRequest{SellerID: seller.PartyID, Price: 19.999, Volume: 10, SerialRange: "ACCU-1", Vintage: 2022}},
		{"excessive price", SubmitBidRequest{SellerID: seller.PartyID, Price: 2_000_000, Volume: 10, SerialRange: "ACCU-1", Vintage: 2022}},
		{"lowercase serial range", SubmitBidRequest{SellerID: seller.PartyID, Price: 20, Volume: 10, SerialRange: "accu-1", Vintage: 2022}},
		{"empty serial range", SubmitBidRequest{SellerID: seller.PartyID, Price: 20, Volume: 10, SerialRange: "", Vintage: 2022}},
		{"implausible vintage", SubmitBidRequest{SellerID: seller.PartyID, Price: 20, Volume: 10, SerialRange: "ACCU-1", Vintage: 1901}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.bidSvc.Submit(ctx, tt.req)
			var validation *domain.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestBidService_Submit_UnknownSellerAndAuction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seller := env.registerParty(t, "Seller Co")

	_, err := env.bidSvc.Submit(ctx, SubmitBidRequest{
		SellerID:    "missing",
		Price:       20,
		Volume:      10,
		SerialRange: "ACCU-1",
		Vintage:     2022,
	})
	if !errors.Is(err, domain.ErrPartyNotFound) {
		t.Fatalf("expected party not found, got %v", err)
	}

	_, err = env.bidSvc.Submit(ctx, SubmitBidRequest{
		SellerID:    seller.PartyID,
		AuctionID:   "missing",
		Price:       20,
		Volume:      10,
		SerialRange: "ACCU-1",
		Vintage:     2022,
	})
	if !errors.Is(err, domain.ErrAuctionNotFound) {
		t.Fatalf("expected auction not found, got %v", err)
	}
}

func TestAuctionService_SettlementFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.registerParty(t, "Buyer Co")
	seller := env.registerParty(t, "Seller Co")
	auction := env.createAuction(t, buyer.PartyID, 100, 25.00)

	if _, err := env.bidSvc.Submit(ctx, SubmitBidRequest{
		SellerID:    seller.PartyID,
		Price:       20.00,
		Volume:      100,
		SerialRange: "ACCU-0001-1000",
		Vintage:     2022,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Settlement requires registry confirmation first.
	err := env.auctionSvc.Settle(ctx, auction.AuctionID)
	var precondition *domain.PreconditionFailedError
	if !errors.As(err, &precondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}

	if err := env.auctionSvc.ConfirmRegistryTransfer(ctx, auction.AuctionID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := env.auctionSvc.Settle(ctx, auction.AuctionID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, _ := env.auctionSvc.Get(ctx, auction.AuctionID)
	if a.Status != domain.AuctionStatusSettled {
		t.Errorf("status = %s, want settled", a.Status)
	}
	if !a.RegistryConfirmed {
		t.Error("registry_confirmed flag lost across settlement")
	}
}
