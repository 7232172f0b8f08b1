package domain

import "time"

// Party is a registered marketplace participant. Parties are created by
// the registration flow after external KYC clearance; the core treats
// them as read-only counterpart references.
type Party struct {
	PartyID   string
	Name      string
	Contact   string // webhook URL for match notifications, may be empty
	CreatedAt time.Time
}

// Clone returns a copy of the party.
func (p *Party) Clone() *Party {
	c := *p
	return &c
}
