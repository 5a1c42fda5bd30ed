package server

import (
	"famrun/internal/models"
	"famrun/internal/registrations"
	"famrun/internal/ticket"
	"famrun/internal/util"
)

type registrationView struct {
	RegistrationID     string  `json:"registration_id"`
	FirstName          string  `json:"first_name"`
	LastName           string  `json:"last_name"`
	Email              string  `json:"email,omitempty"`
	Phone              string  `json:"phone,omitempty"`
	Department         string  `json:"department,omitempty"`
	Category           string  `json:"category"`
	ShirtSize          string  `json:"shirt_size"`
	Price              float64 `json:"price"`
	Status             string  `json:"status"`
	PaymentStatus      string  `json:"payment_status"`
	PaymentNotes       string  `json:"payment_notes,omitempty"`
	PaymentConfirmedBy string  `json:"payment_confirmed_by,omitempty"`
	PaymentDate        string  `json:"payment_date,omitempty"`
	KitClaimed         bool    `json:"kit_claimed"`
	ClaimedAt          string  `json:"claimed_at,omitempty"`
	ProcessedBy        string  `json:"processed_by,omitempty"`
	ActualClaimer      string  `json:"actual_claimer,omitempty"`
	ClaimLocationID    string  `json:"claim_location_id,omitempty"`
	ClaimNotes         string  `json:"claim_notes,omitempty"`
	Version            int64   `json:"version"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

func viewRegistration(r models.Registration) registrationView {
	return registrationView{
		RegistrationID:     r.RegistrationID,
		FirstName:          r.FirstName,
		LastName:           r.LastName,
		Email:              r.Email,
		Phone:              r.Phone,
		Department:         r.Department,
		Category:           r.Category,
		ShirtSize:          r.ShirtSize,
		Price:              r.Price,
		Status:             r.Status,
		PaymentStatus:      string(r.PaymentStatus),
		PaymentNotes:       r.PaymentNotes,
		PaymentConfirmedBy: r.PaymentConfirmedBy,
		PaymentDate:        util.FormatTime(r.PaymentDate),
		KitClaimed:         r.KitClaimed,
		ClaimedAt:          util.FormatTime(r.ClaimedAt),
		ProcessedBy:        r.ProcessedBy,
		ActualClaimer:      r.ActualClaimer,
		ClaimLocationID:    r.ClaimLocationID,
		ClaimNotes:         r.ClaimNotes,
		Version:            r.Version,
		CreatedAt:          util.FormatTime(&r.CreatedAt),
		UpdatedAt:          util.FormatTime(&r.UpdatedAt),
	}
}

func viewRegistrations(regs []models.Registration) []registrationView {
	out := make([]registrationView, 0, len(regs))
	for _, r := range regs {
		out = append(out, viewRegistration(r))
	}
	return out
}

type historyView struct {
	ID             int64  `json:"id"`
	PaymentStatus  string `json:"payment_status"`
	PreviousStatus string `json:"previous_status"`
	ChangedBy      string `json:"changed_by"`
	Notes          string `json:"notes,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func viewHistory(h models.PaymentHistory) historyView {
	return historyView{
		ID:             h.ID,
		PaymentStatus:  string(h.PaymentStatus),
		PreviousStatus: string(h.PreviousStatus),
		ChangedBy:      h.ChangedBy,
		Notes:          h.Notes,
		CreatedAt:      util.FormatTime(&h.CreatedAt),
	}
}

type receiptView struct {
	RegistrationID string `json:"registration_id"`
	ReceiptNumber  string `json:"receipt_number"`
	ReceiptURL     string `json:"receipt_url"`
	GeneratedAt    string `json:"generated_at"`
	GeneratedBy    string `json:"generated_by,omitempty"`
}

func viewReceipt(r models.PaymentReceipt) receiptView {
	return receiptView{
		RegistrationID: r.RegistrationID,
		ReceiptNumber:  r.ReceiptNumber,
		ReceiptURL:     r.ReceiptURL,
		GeneratedAt:    util.FormatTime(&r.GeneratedAt),
		GeneratedBy:    r.GeneratedBy,
	}
}

type ticketView struct {
	RegistrationID  string  `json:"registration_id"`
	ParticipantName string  `json:"participant_name"`
	Category        string  `json:"category"`
	Price           float64 `json:"price"`
	ShirtSize       string  `json:"shirt_size"`
}

type lookupView struct {
	Registration registrationView `json:"registration"`
	Ticket       ticketView       `json:"ticket"`
	Mismatches   []string         `json:"mismatches"`
}

func viewLookup(res registrations.LookupResult) lookupView {
	t := res.Ticket
	mismatches := res.Mismatches
	if mismatches == nil {
		mismatches = []string{}
	}
	return lookupView{
		Registration: viewRegistration(res.Registration),
		Ticket:       viewTicket(t),
		Mismatches:   mismatches,
	}
}

func viewTicket(t ticket.Ticket) ticketView {
	return ticketView{
		RegistrationID:  t.RegistrationID,
		ParticipantName: t.ParticipantName,
		Category:        t.Category,
		Price:           t.Price,
		ShirtSize:       t.ShirtSize,
	}
}

type locationView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

func viewLocation(l models.ClaimLocation) locationView {
	return locationView{ID: l.ID, Name: l.Name, Address: l.Address, Active: l.Active, CreatedAt: util.FormatTime(&l.CreatedAt)}
}

type categoryView struct {
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Active bool    `json:"active"`
}

func viewCategory(c models.Category) categoryView {
	return categoryView{Name: c.Name, Price: c.Price, Active: c.Active}
}
