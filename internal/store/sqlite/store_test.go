package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famrun/internal/models"
	"famrun/internal/store"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "famrun.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedRegistration(t *testing.T, s *Store, id string) models.Registration {
	t.Helper()
	reg := models.Registration{
		RegistrationID: id,
		FirstName:      "Ana",
		LastName:       "Cruz",
		Email:          "ana@example.com",
		Category:       "5K",
		ShirtSize:      "M",
		Price:          500,
		CreatedAt:      time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.CreateRegistration(context.Background(), reg))
	got, err := s.GetRegistration(context.Background(), id)
	require.NoError(t, err)
	return got
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestCreateGetRegistrationRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	got := seedRegistration(t, s, "REG-001")

	assert.Equal(t, "Ana Cruz", got.ParticipantName())
	assert.Equal(t, models.PaymentPending, got.PaymentStatus)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, 500.0, got.Price)
	assert.False(t, got.KitClaimed)
	assert.Nil(t, got.PaymentDate)
	assert.Equal(t, time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC), got.CreatedAt)

	err := s.CreateRegistration(context.Background(), models.Registration{RegistrationID: "REG-001", FirstName: "X", Category: "5K"})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	_, err = s.GetRegistration(context.Background(), "REG-404")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApplyPaymentTransitionWritesHistoryAtomically(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTempStore(t)
	reg := seedRegistration(t, s, "REG-001")
	paidAt := time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)

	entry, err := s.ApplyPaymentTransition(ctx, store.PaymentUpdate{
		RegistrationID:     reg.RegistrationID,
		ExpectedVersion:    reg.Version,
		PaymentStatus:      models.PaymentConfirmed,
		Status:             models.StatusConfirmed,
		PaymentConfirmedBy: "admin",
		PaymentDate:        &paidAt,
		UpdatedAt:          paidAt,
	}, models.PaymentHistory{
		PaymentStatus:  models.PaymentConfirmed,
		PreviousStatus: models.PaymentPending,
		ChangedBy:      "admin",
	})
	require.NoError(t, err)
	assert.NotZero(t, entry.ID)

	got, err := s.GetRegistration(ctx, reg.RegistrationID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentConfirmed, got.PaymentStatus)
	assert.Equal(t, int64(2), got.Version)
	require.NotNil(t, got.PaymentDate)
	assert.Equal(t, paidAt, *got.PaymentDate)

	// Stale version: nothing is written.
	_, err = s.ApplyPaymentTransition(ctx, store.PaymentUpdate{
		RegistrationID:  reg.RegistrationID,
		ExpectedVersion: reg.Version,
		PaymentStatus:   models.PaymentRejected,
		Status:          models.StatusPending,
	}, models.PaymentHistory{PaymentStatus: models.PaymentRejected, PreviousStatus: models.PaymentPending, ChangedBy: "other"})
	assert.ErrorIs(t, err, store.ErrConflict)

	// Rejection without a payment date keeps the earlier one.
	_, err = s.ApplyPaymentTransition(ctx, store.PaymentUpdate{
		RegistrationID:  reg.RegistrationID,
		ExpectedVersion: got.Version,
		PaymentStatus:   models.PaymentRejected,
		Status:          models.StatusPending,
		PaymentNotes:    "proof unreadable",
	}, models.PaymentHistory{PaymentStatus: models.PaymentRejected, PreviousStatus: models.PaymentConfirmed, ChangedBy: "admin", Notes: "proof unreadable"})
	require.NoError(t, err)

	got, err = s.GetRegistration(ctx, reg.RegistrationID)
	require.NoError(t, err)
	require.NotNil(t, got.PaymentDate)
	assert.Equal(t, paidAt, *got.PaymentDate)

	history, err := s.ListPaymentHistory(ctx, reg.RegistrationID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.PaymentPending, history[0].PreviousStatus)
	assert.Equal(t, models.PaymentConfirmed, history[1].PreviousStatus)
	assert.Equal(t, "proof unreadable", history[1].Notes)
}

func TestApplyPaymentTransitionMissingRegistration(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	_, err := s.ApplyPaymentTransition(context.Background(), store.PaymentUpdate{
		RegistrationID:  "REG-404",
		ExpectedVersion: 1,
		PaymentStatus:   models.PaymentConfirmed,
	}, models.PaymentHistory{PaymentStatus: models.PaymentConfirmed, PreviousStatus: models.PaymentPending, ChangedBy: "admin"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	history, err := s.ListPaymentHistory(context.Background(), "REG-404")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestReceiptUniqueness(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTempStore(t)
	seedRegistration(t, s, "REG-001")
	seedRegistration(t, s, "REG-002")

	require.NoError(t, s.CreateReceipt(ctx, models.PaymentReceipt{
		RegistrationID: "REG-001", ReceiptNumber: "FR-2026-AAAAAAAA", GeneratedBy: "admin",
	}))

	err := s.CreateReceipt(ctx, models.PaymentReceipt{RegistrationID: "REG-001", ReceiptNumber: "FR-2026-BBBBBBBB", GeneratedBy: "admin"})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	err = s.CreateReceipt(ctx, models.PaymentReceipt{RegistrationID: "REG-002", ReceiptNumber: "FR-2026-AAAAAAAA", GeneratedBy: "admin"})
	assert.ErrorIs(t, err, store.ErrDuplicateReceiptNumber)

	got, err := s.GetReceiptByNumber(ctx, "FR-2026-AAAAAAAA")
	require.NoError(t, err)
	assert.Equal(t, "REG-001", got.RegistrationID)

	_, err = s.GetReceipt(ctx, "REG-002")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateKitClaimAndFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTempStore(t)
	reg := seedRegistration(t, s, "REG-001")
	seedRegistration(t, s, "REG-002")
	at := time.Date(2026, time.April, 5, 7, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpdateKitClaim(ctx, store.KitClaimUpdate{
		RegistrationID:  reg.RegistrationID,
		ExpectedVersion: reg.Version,
		KitClaimed:      true,
		ClaimedAt:       &at,
		ProcessedBy:     "staff-1",
		ActualClaimer:   "Ben Cruz",
		ClaimNotes:      "picked up by sibling",
	}))

	err := s.UpdateKitClaim(ctx, store.KitClaimUpdate{RegistrationID: reg.RegistrationID, ExpectedVersion: reg.Version})
	assert.ErrorIs(t, err, store.ErrConflict)

	claimed := true
	list, err := s.ListRegistrations(ctx, store.RegistrationFilter{KitClaimed: &claimed})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ben Cruz", list[0].ActualClaimer)
	require.NotNil(t, list[0].ClaimedAt)
	assert.Equal(t, at, *list[0].ClaimedAt)

	list, err = s.ListRegistrations(ctx, store.RegistrationFilter{Category: "5K", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReferenceData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTempStore(t)

	require.NoError(t, s.PutCategory(ctx, models.Category{Name: "5K", Price: 500, Active: true}))
	require.NoError(t, s.PutCategory(ctx, models.Category{Name: "21K", Price: 1200, Active: false}))
	require.NoError(t, s.PutCategory(ctx, models.Category{Name: "5K", Price: 550, Active: true}))
	assert.Error(t, s.PutCategory(ctx, models.Category{Name: "bad", Price: -1}))

	cats, err := s.ListCategories(ctx, true)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, 550.0, cats[0].Price)

	require.NoError(t, s.PutClaimLocation(ctx, models.ClaimLocation{ID: "main", Name: "Main Hall", Active: true}))
	require.NoError(t, s.SetClaimLocationActive(ctx, "main", false))
	assert.ErrorIs(t, s.SetClaimLocationActive(ctx, "nope", true), store.ErrNotFound)

	loc, err := s.GetClaimLocation(ctx, "main")
	require.NoError(t, err)
	assert.False(t, loc.Active)

	active, err := s.ListClaimLocations(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = s.GetCategory(ctx, "42K")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
