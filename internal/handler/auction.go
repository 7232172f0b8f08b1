package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carbonx/marketplace/internal/domain"
	"github.com/carbonx/marketplace/internal/service"
)

// AuctionHandler handles HTTP requests for auction endpoints, including
// the settlement operations.
type AuctionHandler struct {
	auctionSvc *service.AuctionService
}

// NewAuctionHandler creates a new AuctionHandler.
func NewAuctionHandler(auctionSvc *service.AuctionService) *AuctionHandler {
	return &AuctionHandler{auctionSvc: auctionSvc}
}

// createAuctionRequest is the JSON request body for POST /auctions.
type createAuctionRequest struct {
	BuyerID     string  `json:"buyer_id"`
	Volume      int64   `json:"volume"`
	MaxPrice    float64 `json:"max_price"`
	VintagePref *int    `json:"vintage_pref"`
}

// auctionResponse is the JSON representation of an auction.
type auctionResponse struct {
	AuctionID         string  `json:"auction_id"`
	BuyerID           string  `json:"buyer_id"`
	Volume            int64   `json:"volume"`
	MaxPrice          float64 `json:"max_price"`
	VintagePref       *int    `json:"vintage_pref"`
	Status            string  `json:"status"`
	RegistryConfirmed bool    `json:"registry_confirmed"`
	CreatedAt         string  `json:"created_at"`
}

func buildAuctionResponse(a *domain.Auction) auctionResponse {
	return auctionResponse{
		AuctionID:         a.AuctionID,
		BuyerID:           a.BuyerID,
		Volume:            a.Volume,
		MaxPrice:          domain.CentsToDollars(a.MaxPrice),
		VintagePref:       a.VintagePref,
		Status:            string(a.Status),
		RegistryConfirmed: a.RegistryConfirmed,
		CreatedAt:         a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// matchResponse is the JSON representation of a match record.
type matchResponse struct {
	MatchID       string  `json:"match_id"`
	BidID         string  `json:"bid_id"`
	AuctionID     string  `json:"auction_id"`
	MatchedVolume int64   `json:"matched_volume"`
	MatchedPrice  float64 `json:"matched_price"`
	MatchedAt     string  `json:"matched_at"`
}

func buildMatchResponse(m *domain.Match) matchResponse {
	return matchResponse{
		MatchID:       m.MatchID,
		BidID:         m.BidID,
		AuctionID:     m.AuctionID,
		MatchedVolume: m.MatchedVolume,
		MatchedPrice:  domain.CentsToDollars(m.MatchedPrice),
		MatchedAt:     m.MatchedAt.UTC().Format(time.RFC3339),
	}
}

// Create handles POST /auctions.
func (h *AuctionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	a, err := h.auctionSvc.Create(r.Context(), service.CreateAuctionRequest{
		BuyerID:     req.BuyerID,
		Volume:      req.Volume,
		MaxPrice:    req.MaxPrice,
		VintagePref: req.VintagePref,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildAuctionResponse(a))
}

// Get handles GET /auctions/{auction_id}.
func (h *AuctionHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.auctionSvc.Get(r.Context(), chi.URLParam(r, "auction_id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAuctionResponse(a))
}

// ListMatches handles GET /auctions/{auction_id}/matches.
func (h *AuctionHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.auctionSvc.ListMatches(r.Context(), chi.URLParam(r, "auction_id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	result := make([]matchResponse, 0, len(matches))
	for _, m := range matches {
		result = append(result, buildMatchResponse(m))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"matches": result})
}

// ConfirmRegistryTransfer handles POST /auctions/{auction_id}/confirm.
func (h *AuctionHandler) ConfirmRegistryTransfer(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auction_id")
	if err := h.auctionSvc.ConfirmRegistryTransfer(r.Context(), auctionID); err != nil {
		WriteDomainError(w, err)
		return
	}

	a, err := h.auctionSvc.Get(r.Context(), auctionID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAuctionResponse(a))
}

// Settle handles POST /auctions/{auction_id}/settle.
func (h *AuctionHandler) Settle(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auction_id")
	if err := h.auctionSvc.Settle(r.Context(), auctionID); err != nil {
		WriteDomainError(w, err)
		return
	}

	a, err := h.auctionSvc.Get(r.Context(), auctionID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAuctionResponse(a))
}
