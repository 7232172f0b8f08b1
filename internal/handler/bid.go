package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carbonx/marketplace/internal/domain"
	"github.com/carbonx/marketplace/internal/service"
)

// BidHandler handles HTTP requests for bid endpoints.
type BidHandler struct {
	bidSvc *service.BidService
}

// NewBidHandler creates a new BidHandler.
func NewBidHandler(bidSvc *service.BidService) *BidHandler {
	return &BidHandler{bidSvc: bidSvc}
}

// submitBidRequest is the JSON request body for POST /bids.
type submitBidRequest struct {
	SellerID    string  `json:"seller_id"`
	AuctionID   string  `json:"auction_id"`
	Price       float64 `json:"price"`
	Volume      int64   `json:"volume"`
	SerialRange string  `json:"serial_range"`
	Vintage     int     `json:"vintage"`
}

// bidResponse is the JSON representation of a bid, including any matches
// committed by the matching pass the submission triggered.
type bidResponse struct {
	BidID       string          `json:"bid_id"`
	AuctionID   *string         `json:"auction_id"`
	SellerID    string          `json:"seller_id"`
	Price       float64         `json:"price"`
	Volume      int64           `json:"volume"`
	SerialRange string          `json:"serial_range"`
	Vintage     int             `json:"vintage"`
	Status      string          `json:"status"`
	CreatedAt   string          `json:"created_at"`
	Matches     []matchResponse `json:"matches"`
}

func buildBidResponse(b *domain.Bid, matches []*domain.Match) bidResponse {
	var auctionID *string
	if b.AuctionID != "" {
		id := b.AuctionID
		auctionID = &id
	}

	matchResponses := make([]matchResponse, 0, len(matches))
	for _, m := range matches {
		matchResponses = append(matchResponses, buildMatchResponse(m))
	}

	return bidResponse{
		BidID:       b.BidID,
		AuctionID:   auctionID,
		SellerID:    b.SellerID,
		Price:       domain.CentsToDollars(b.Price),
		Volume:      b.Volume,
		SerialRange: b.SerialRange,
		Vintage:     b.Vintage,
		Status:      string(b.Status),
		CreatedAt:   b.CreatedAt.UTC().Format(time.RFC3339),
		Matches:     matchResponses,
	}
}

// Submit handles POST /bids.
func (h *BidHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitBidRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.bidSvc.Submit(r.Context(), service.SubmitBidRequest{
		SellerID:    req.SellerID,
		AuctionID:   req.AuctionID,
		Price:       req.Price,
		Volume:      req.Volume,
		SerialRange: req.SerialRange,
		Vintage:     req.Vintage,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildBidResponse(result.Bid, result.Matches))
}

// Get handles GET /bids/{bid_id}.
func (h *BidHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.bidSvc.Get(r.Context(), chi.URLParam(r, "bid_id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildBidResponse(b, nil))
}
