// Package store defines persistence contracts for registrations, payment
// history, receipts and the admin-owned reference data.
package store

import (
	"context"
	"errors"
	"time"

	"famrun/internal/models"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrConflict indicates the registration changed since it was read.
	ErrConflict = errors.New("registration was modified concurrently")
	// ErrDuplicateReceiptNumber indicates a generated receipt number is taken.
	ErrDuplicateReceiptNumber = errors.New("receipt number already issued")
)

type RegistrationFilter struct {
	PaymentStatus models.PaymentStatus
	KitClaimed    *bool
	Category      string
	Limit         int
}

// PaymentUpdate is the single write path for a payment status change.
// ExpectedVersion must match the stored version or ErrConflict is returned.
type PaymentUpdate struct {
	RegistrationID     string
	ExpectedVersion    int64
	PaymentStatus      models.PaymentStatus
	Status             string
	PaymentNotes       string
	PaymentConfirmedBy string
	PaymentDate        *time.Time
	UpdatedAt          time.Time
}

type KitClaimUpdate struct {
	RegistrationID  string
	ExpectedVersion int64
	KitClaimed      bool
	ClaimedAt       *time.Time
	ProcessedBy     string
	ActualClaimer   string
	ClaimLocationID string
	ClaimNotes      string
	UpdatedAt       time.Time
}

type RegistrationStore interface {
	CreateRegistration(ctx context.Context, reg models.Registration) error
	GetRegistration(ctx context.Context, registrationID string) (models.Registration, error)
	ListRegistrations(ctx context.Context, filter RegistrationFilter) ([]models.Registration, error)
	// ApplyPaymentTransition updates the registration and appends the history
	// row atomically; on error neither is written.
	ApplyPaymentTransition(ctx context.Context, update PaymentUpdate, entry models.PaymentHistory) (models.PaymentHistory, error)
	UpdateKitClaim(ctx context.Context, update KitClaimUpdate) error
	ListPaymentHistory(ctx context.Context, registrationID string) ([]models.PaymentHistory, error)
}

type ReceiptStore interface {
	GetReceipt(ctx context.Context, registrationID string) (models.PaymentReceipt, error)
	GetReceiptByNumber(ctx context.Context, receiptNumber string) (models.PaymentReceipt, error)
	// CreateReceipt returns ErrAlreadyExists when the registration already has
	// a receipt and ErrDuplicateReceiptNumber when the number is taken.
	CreateReceipt(ctx context.Context, receipt models.PaymentReceipt) error
}

type ReferenceStore interface {
	PutClaimLocation(ctx context.Context, loc models.ClaimLocation) error
	GetClaimLocation(ctx context.Context, id string) (models.ClaimLocation, error)
	ListClaimLocations(ctx context.Context, activeOnly bool) ([]models.ClaimLocation, error)
	SetClaimLocationActive(ctx context.Context, id string, active bool) error

	PutCategory(ctx context.Context, cat models.Category) error
	GetCategory(ctx context.Context, name string) (models.Category, error)
	ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error)
}

type Store interface {
	RegistrationStore
	ReceiptStore
	ReferenceStore
}
