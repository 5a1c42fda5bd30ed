package models

import (
	"strings"
	"time"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentRejected  PaymentStatus = "rejected"
)

// ParsePaymentStatus accepts the three known statuses, case-insensitively.
func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	switch PaymentStatus(strings.ToLower(strings.TrimSpace(s))) {
	case PaymentPending:
		return PaymentPending, true
	case PaymentConfirmed:
		return PaymentConfirmed, true
	case PaymentRejected:
		return PaymentRejected, true
	default:
		return "", false
	}
}

// Coarse registration status shown on the participant side.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
)

type Registration struct {
	RegistrationID string
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	Department     string
	Category       string
	ShirtSize      string
	Price          float64

	Status             string
	PaymentStatus      PaymentStatus
	PaymentNotes       string
	PaymentConfirmedBy string
	PaymentDate        *time.Time

	KitClaimed      bool
	ClaimedAt       *time.Time
	ProcessedBy     string
	ActualClaimer   string
	ClaimLocationID string
	ClaimNotes      string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Registration) ParticipantName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

type PaymentHistory struct {
	ID             int64
	RegistrationID string
	PaymentStatus  PaymentStatus
	PreviousStatus PaymentStatus
	ChangedBy      string
	Notes          string
	CreatedAt      time.Time
}

type PaymentReceipt struct {
	RegistrationID string
	ReceiptNumber  string
	ReceiptURL     string
	GeneratedAt    time.Time
	GeneratedBy    string
}

type ClaimLocation struct {
	ID        string
	Name      string
	Address   string
	Active    bool
	CreatedAt time.Time
}

type Category struct {
	Name      string
	Price     float64
	Active    bool
	CreatedAt time.Time
}
