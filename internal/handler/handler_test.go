package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/carbonx/marketplace/internal/engine"
	"github.com/carbonx/marketplace/internal/service"
	"github.com/carbonx/marketplace/internal/settlement"
	"github.com/carbonx/marketplace/internal/store"
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }

// testEnv holds a full router over an in-memory store.
type testEnv struct {
	router chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	matcher := engine.NewMatcher(st, nil, logger)
	gate := settlement.NewGate(st, nopPublisher{}, logger)

	partySvc := service.NewPartyService(st)
	auctionSvc := service.NewAuctionService(st, gate)
	bidSvc := service.NewBidService(st, matcher, logger)

	return &testEnv{router: NewRouter(partySvc, auctionSvc, bidSvc, logger)}
}

// do executes a request against the router and decodes the JSON response
// into a generic map.
func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, decoded
}

func (e *testEnv) registerParty(t *testing.T, name string) string {
	t.Helper()
	status, resp := e.do(t, http.MethodPost, "/parties", map[string]any{"name": name})
	if status != http.StatusCreated {
		t.Fatalf("register party: status %d, body %v", status, resp)
	}
	return resp["party_id"].(string)
}

func (e *testEnv) createAuction(t *testing.T, buyerID string, volume int64, maxPrice float64) string {
	t.Helper()
	status, resp := e.do(t, http.MethodPost, "/auctions", map[string]any{
		"buyer_id":  buyerID,
		"volume":    volume,
		"max_price": maxPrice,
	})
	if status != http.StatusCreated {
		t.Fatalf("create auction: status %d, body %v", status, resp)
	}
	return resp["auction_id"].(string)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.do(t, http.MethodGet, "/healthz", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if resp["status"] != "ok" {
		t.Errorf("body = %v", resp)
	}
}

func TestRegisterParty(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.do(t, http.MethodPost, "/parties", map[string]any{
		"name":    "Acme Carbon Pty Ltd",
		"contact": "https://acme.example.com/webhooks",
	})
	if status != http.StatusCreated {
		t.Fatalf("status = %d, body %v", status, resp)
	}
	if resp["party_id"] == "" {
		t.Error("no party_id in response")
	}

	status, got := env.do(t, http.MethodGet, "/parties/"+resp["party_id"].(string), nil)
	if status != http.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	if got["name"] != "Acme Carbon Pty Ltd" {
		t.Errorf("name = %v", got["name"])
	}
}

func TestRegisterParty_ValidationError(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.do(t, http.MethodPost, "/parties", map[string]any{"name": ""})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	if resp["error"] != "validation_error" {
		t.Errorf("error code = %v", resp["error"])
	}
}

func TestRegisterParty_UnknownField(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.do(t, http.MethodPost, "/parties", map[string]any{
		"name": "Acme",
		"abn":  "12 345 678 901",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, body %v", status, resp)
	}
	if resp["error"] != "invalid_request" {
		t.Errorf("error code = %v", resp["error"])
	}
}

func TestGetParty_NotFound(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.do(t, http.MethodGet, "/parties/missing", nil)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d", status)
	}
	if resp["error"] != "party_not_found" {
		t.Errorf("error code = %v", resp["error"])
	}
}

func TestCreateAuction(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.registerParty(t, "Buyer Co")

	status, resp := env.do(t, http.MethodPost, "/auctions", map[string]any{
		"buyer_id":     buyer,
		"volume":       100,
		"max_price":    25.50,
		"vintage_pref": 2022,
	})
	if status != http.StatusCreated {
		t.Fatalf("status = %d, body %v", status, resp)
	}
	if resp["status"] != "open" {
		t.Errorf("status = %v, want open", resp["status"])
	}
	if resp["max_price"] != 25.50 {
		t.Errorf("max_price = %v, want 25.5", resp["max_price"])
	}
	if resp["registry_confirmed"] != false {
		t.Errorf("registry_confirmed = %v, want false", resp["registry_confirmed"])
	}
}

func TestCreateAuction_UnknownBuyer(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.do(t, http.MethodPost, "/auctions", map[string]any{
		"buyer_id":  "missing",
		"volume":    100,
		"max_price": 25.50,
	})
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, body %v", status, resp)
	}
}

func TestSubmitBid_MatchesAndReportsMatches(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.registerParty(t, "Buyer Co")
	seller := env.registerParty(t, "Seller Co")
	auctionID := env.createAuction(t, buyer, 100, 25.00)

	status, resp := env.do(t, http.MethodPost, "/bids", map[string]any{
		"seller_id":    seller,
		"price":        20.00,
		"volume":       100,
		"serial_range": "ACCU-0001-1000",
		"vintage":      2022,
	})
	if status != http.StatusCreated {
		t.Fatalf("status = %d, body %v", status, resp)
	}
	if resp["status"] != "matched" {
		t.Errorf("bid status = %v, want matched", resp["status"])
	}
	matches := resp["matches"].([]any)
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	m := matches[0].(map[string]any)
	if m["auction_id"] != auctionID {
		t.Errorf("matched auction = %v, want %s", m["auction_id"], auctionID)
	}
	if m["matched_price"] != 20.00 {
		t.Errorf("matched_price = %v, want 20 (the bid price)", m["matched_price"])
	}

	// The auction side reflects the match too.
	status, auction := env.do(t, http.MethodGet, "/auctions/"+auctionID, nil)
	if status != http.StatusOK {
		t.Fatalf("get auction status = %d", status)
	}
	if auction["status"] != "matched" {
		t.Errorf("auction status = %v, want matched", auction["status"])
	}

	status, list := env.do(t, http.MethodGet, "/auctions/"+auctionID+"/matches", nil)
	if status != http.StatusOK {
		t.Fatalf("list matches status = %d", status)
	}
	if len(list["matches"].([]any)) != 1 {
		t.Errorf("match records = %d, want 1", len(list["matches"].([]any)))
	}
}

func TestSettlementEndpoints(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.registerParty(t, "Buyer Co")
	seller := env.registerParty(t, "Seller Co")
	auctionID := env.createAuction(t, buyer, 100, 25.00)

	if status, resp := env.do(t, http.MethodPost, "/bids", map[string]any{
		"seller_id":    seller,
		"price":        20.00,
		"volume":       100,
		"serial_range": "ACCU-0001-1000",
		"vintage":      2022,
	}); status != http.StatusCreated {
		t.Fatalf("submit bid: status %d, body %v", status, resp)
	}

	// Settle before confirmation: 412.
	status, resp := env.do(t, http.MethodPost, "/auctions/"+auctionID+"/settle", nil)
	if status != http.StatusPreconditionFailed {
		t.Fatalf("status = %d, body %v", status, resp)
	}
	if resp["error"] != "precondition_failed" {
		t.Errorf("error code = %v", resp["error"])
	}

	// Confirm, then settle.
	status, resp = env.do(t, http.MethodPost, "/auctions/"+auctionID+"/confirm", nil)
	if status != http.StatusOK {
		t.Fatalf("confirm status = %d, body %v", status, resp)
	}
	if resp["registry_confirmed"] != true {
		t.Errorf("registry_confirmed = %v, want true", resp["registry_confirmed"])
	}

	status, resp = env.do(t, http.MethodPost, "/auctions/"+auctionID+"/settle", nil)
	if status != http.StatusOK {
		t.Fatalf("settle status = %d, body %v", status, resp)
	}
	if resp["status"] != "settled" {
		t.Errorf("status = %v, want settled", resp["status"])
	}

	// Settled is terminal: another settle attempt is an invalid state.
	status, resp = env.do(t, http.MethodPost, "/auctions/"+auctionID+"/settle", nil)
	if status != http.StatusConflict {
		t.Fatalf("repeat settle status = %d, body %v", status, resp)
	}
	if resp["error"] != "invalid_state" {
		t.Errorf("error code = %v", resp["error"])
	}
}

func TestConfirm_OpenAuctionRejected(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.registerParty(t, "Buyer Co")
	auctionID := env.createAuction(t, buyer, 100, 25.00)

	status, resp := env.do(t, http.MethodPost, "/auctions/"+auctionID+"/confirm", nil)
	if status != http.StatusConflict {
		t.Fatalf("status = %d, body %v", status, resp)
	}
	if resp["error"] != "invalid_state" {
		t.Errorf("error code = %v", resp["error"])
	}
}

func TestContentTypeRequired(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/parties", bytes.NewReader([]byte(`{"name":"Acme"}`)))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
