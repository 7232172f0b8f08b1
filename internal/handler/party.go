package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carbonx/marketplace/internal/domain"
	"github.com/carbonx/marketplace/internal/service"
)

// PartyHandler handles HTTP requests for party endpoints.
type PartyHandler struct {
	partySvc *service.PartyService
}

// NewPartyHandler creates a new PartyHandler.
func NewPartyHandler(partySvc *service.PartyService) *PartyHandler {
	return &PartyHandler{partySvc: partySvc}
}

// registerPartyRequest is the JSON request body for POST /parties.
type registerPartyRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// partyResponse is the JSON representation of a party.
type partyResponse struct {
	PartyID   string `json:"party_id"`
	Name      string `json:"name"`
	Contact   string `json:"contact"`
	CreatedAt string `json:"created_at"`
}

func buildPartyResponse(p *domain.Party) partyResponse {
	return partyResponse{
		PartyID:   p.PartyID,
		Name:      p.Name,
		Contact:   p.Contact,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Register handles POST /parties.
func (h *PartyHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerPartyRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	p, err := h.partySvc.Register(r.Context(), service.RegisterPartyRequest{
		Name:    req.Name,
		Contact: req.Contact,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildPartyResponse(p))
}

// Get handles GET /parties/{party_id}.
func (h *PartyHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.partySvc.Get(r.Context(), chi.URLParam(r, "party_id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildPartyResponse(p))
}
