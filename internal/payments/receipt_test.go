package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"famrun/internal/apperr"
	"famrun/internal/models"
	"famrun/internal/store"
)

// memReceipts is an in-memory ReceiptStore with the same uniqueness rules as SQLite.
type memReceipts struct {
	byReg    map[string]models.PaymentReceipt
	byNumber map[string]bool
	// raceWith, when set, is inserted just before the next CreateReceipt.
	raceWith *models.PaymentReceipt
}

func newMemReceipts() *memReceipts {
	return &memReceipts{byReg: map[string]models.PaymentReceipt{}, byNumber: map[string]bool{}}
}

func (m *memReceipts) GetReceipt(_ context.Context, id string) (models.PaymentReceipt, error) {
	r, ok := m.byReg[id]
	if !ok {
		return r, store.ErrNotFound
	}
	return r, nil
}

func (m *memReceipts) GetReceiptByNumber(_ context.Context, number string) (models.PaymentReceipt, error) {
	for _, r := range m.byReg {
		if r.ReceiptNumber == number {
			return r, nil
		}
	}
	return models.PaymentReceipt{}, store.ErrNotFound
}

func (m *memReceipts) CreateReceipt(_ context.Context, r models.PaymentReceipt) error {
	if m.raceWith != nil {
		m.put(*m.raceWith)
		m.raceWith = nil
	}
	if _, ok := m.byReg[r.RegistrationID]; ok {
		return store.ErrAlreadyExists
	}
	if m.byNumber[r.ReceiptNumber] {
		return store.ErrDuplicateReceiptNumber
	}
	m.put(r)
	return nil
}

func (m *memReceipts) put(r models.PaymentReceipt) {
	m.byReg[r.RegistrationID] = r
	m.byNumber[r.ReceiptNumber] = true
}

func fixedSuffixes(s ...string) func() string {
	return func() string {
		v := s[0]
		if len(s) > 1 {
			s = s[1:]
		}
		return v
	}
}

func TestIssuerIsIdempotent(t *testing.T) {
	mem := newMemReceipts()
	iss := NewIssuer(mem, "", "http://localhost:8080", zap.NewNop())
	iss.now = func() time.Time { return time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC) }
	iss.suffix = fixedSuffixes("0A1B2C3D", "FFFFFFFF")

	first, err := iss.Issue(context.Background(), "REG-1", "admin")
	require.NoError(t, err)
	assert.Equal(t, "FR-2027-0A1B2C3D", first.ReceiptNumber)
	assert.Equal(t, "http://localhost:8080/receipts/FR-2027-0A1B2C3D", first.ReceiptURL)

	second, err := iss.Issue(context.Background(), "REG-1", "someone-else")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, mem.byReg, 1)
}

func TestIssuerRetriesNumberCollision(t *testing.T) {
	mem := newMemReceipts()
	mem.put(models.PaymentReceipt{RegistrationID: "REG-OLD", ReceiptNumber: "FR-2026-AAAAAAAA"})
	iss := NewIssuer(mem, "FR", "", zap.NewNop())
	iss.now = func() time.Time { return clock }
	iss.suffix = fixedSuffixes("AAAAAAAA", "BBBBBBBB")

	r, err := iss.Issue(context.Background(), "REG-1", "admin")
	require.NoError(t, err)
	assert.Equal(t, "FR-2026-BBBBBBBB", r.ReceiptNumber)
}

func TestIssuerGivesUpAfterRepeatedCollisions(t *testing.T) {
	mem := newMemReceipts()
	mem.put(models.PaymentReceipt{RegistrationID: "REG-OLD", ReceiptNumber: "FR-2026-AAAAAAAA"})
	iss := NewIssuer(mem, "FR", "", zap.NewNop())
	iss.now = func() time.Time { return clock }
	iss.suffix = fixedSuffixes("AAAAAAAA")

	_, err := iss.Issue(context.Background(), "REG-1", "admin")
	assert.True(t, apperr.Has(err, apperr.CodeReceiptIssuanceFailed))
	assert.ErrorIs(t, err, store.ErrDuplicateReceiptNumber)
}

func TestIssuerResolvesConcurrentInsert(t *testing.T) {
	mem := newMemReceipts()
	winner := models.PaymentReceipt{RegistrationID: "REG-1", ReceiptNumber: "FR-2026-WINNER00", GeneratedBy: "other"}
	mem.raceWith = &winner
	iss := NewIssuer(mem, "FR", "", zap.NewNop())

	r, err := iss.Issue(context.Background(), "REG-1", "admin")
	require.NoError(t, err)
	assert.Equal(t, winner, r)
}
