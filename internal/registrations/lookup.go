package registrations

import (
	"context"

	"famrun/internal/models"
	"famrun/internal/ticket"
)

// Fields compared between a scanned ticket and the stored record.
const (
	FieldParticipantName = "participant_name"
	FieldCategory        = "category"
	FieldPrice           = "price"
	FieldShirtSize       = "shirt_size"
)

type LookupResult struct {
	Registration models.Registration
	Ticket       ticket.Ticket
	// Mismatches lists ticket fields that disagree with the record.
	Mismatches []string
}

func (r LookupResult) Consistent() bool { return len(r.Mismatches) == 0 }

// Lookup decodes a scanned payload and loads its registration. It never writes.
func (s *Service) Lookup(ctx context.Context, payload string) (LookupResult, error) {
	t, err := s.codec.Decode(payload)
	if err != nil {
		return LookupResult{}, err
	}
	reg, err := s.Get(ctx, t.RegistrationID)
	if err != nil {
		return LookupResult{}, err
	}
	return LookupResult{
		Registration: reg,
		Ticket:       t,
		Mismatches:   Compare(t, reg),
	}, nil
}

func Compare(t ticket.Ticket, reg models.Registration) []string {
	var out []string
	if t.ParticipantName != reg.ParticipantName() {
		out = append(out, FieldParticipantName)
	}
	if t.Category != reg.Category {
		out = append(out, FieldCategory)
	}
	// Both sides go through the same decimal rendering as the payload.
	if ticket.FormatPrice(t.Price) != ticket.FormatPrice(reg.Price) {
		out = append(out, FieldPrice)
	}
	if t.ShirtSize != reg.ShirtSize {
		out = append(out, FieldShirtSize)
	}
	return out
}
