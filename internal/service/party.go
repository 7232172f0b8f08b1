package service

import (
	"context"
	"net/url"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/carbonx/marketplace/internal/domain"
	"github.com/carbonx/marketplace/internal/store"
)

var partyNameRegex = regexp.MustCompile(`^.{1,128}$`)

// RegisterPartyRequest represents the input for party registration.
// Parties arrive here already cleared by the external compliance gate.
type RegisterPartyRequest struct {
	Name    string
	Contact string // optional webhook URL for match notifications
}

// PartyService handles party registration and lookup.
type PartyService struct {
	store store.Store
}

// NewPartyService creates a PartyService.
func NewPartyService(st store.Store) *PartyService {
	return &PartyService{store: st}
}

// Register validates the request and creates the party.
func (s *PartyService) Register(ctx context.Context, req RegisterPartyRequest) (*domain.Party, error) {
	if !partyNameRegex.MatchString(req.Name) {
		return nil, &domain.ValidationError{Message: "name must be between 1 and 128 characters"}
	}
	if req.Contact != "" {
		parsed, err := url.ParseRequestURI(req.Contact)
		if err != nil || !parsed.IsAbs() {
			return nil, &domain.ValidationError{Message: "contact must be a valid absolute URL"}
		}
		if parsed.Scheme != "https" && parsed.Scheme != "http" {
			return nil, &domain.ValidationError{Message: "contact must use http or https scheme"}
		}
	}

	p := &domain.Party{
		PartyID:   uuid.New().String(),
		Name:      req.Name,
		Contact:   req.Contact,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateParty(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get retrieves a party by ID.
func (s *PartyService) Get(ctx context.Context, id string) (*domain.Party, error) {
	return s.store.GetParty(ctx, id)
}
