package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"famrun/internal/models"
	"famrun/internal/store"
)

const registrationColumns = `registration_id, first_name, last_name, email, phone, department,
       category, shirt_size, price, status, payment_status, payment_notes,
       payment_confirmed_by, payment_date, kit_claimed, claimed_at, processed_by,
       actual_claimer, claim_location_id, claim_notes, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (models.Registration, error) {
	var (
		r                    models.Registration
		paymentStatus        string
		paymentDate, claimed sql.NullInt64
		kitClaimed           int
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&r.RegistrationID, &r.FirstName, &r.LastName, &r.Email, &r.Phone, &r.Department,
		&r.Category, &r.ShirtSize, &r.Price, &r.Status, &paymentStatus, &r.PaymentNotes,
		&r.PaymentConfirmedBy, &paymentDate, &kitClaimed, &claimed, &r.ProcessedBy,
		&r.ActualClaimer, &r.ClaimLocationID, &r.ClaimNotes, &r.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return models.Registration{}, err
	}
	r.PaymentStatus = models.PaymentStatus(paymentStatus)
	r.PaymentDate = timePtr(paymentDate)
	r.KitClaimed = kitClaimed != 0
	r.ClaimedAt = timePtr(claimed)
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return r, nil
}

func (s *Store) CreateRegistration(ctx context.Context, reg models.Registration) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(reg.RegistrationID) == "" {
		return fmt.Errorf("registration id is required")
	}
	created := reg.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	updated := reg.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	if reg.PaymentStatus == "" {
		reg.PaymentStatus = models.PaymentPending
	}
	if reg.Status == "" {
		reg.Status = models.StatusPending
	}
	if reg.Version == 0 {
		reg.Version = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reg.RegistrationID, reg.FirstName, reg.LastName, reg.Email, reg.Phone, reg.Department,
		reg.Category, reg.ShirtSize, reg.Price, reg.Status, string(reg.PaymentStatus), reg.PaymentNotes,
		reg.PaymentConfirmedBy, nullMillis(reg.PaymentDate), boolInt(reg.KitClaimed), nullMillis(reg.ClaimedAt), reg.ProcessedBy,
		reg.ActualClaimer, reg.ClaimLocationID, reg.ClaimNotes, reg.Version, toMillis(created), toMillis(updated),
	)
	if err != nil {
		if uniqueViolation(err, "registrations.registration_id") {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

func (s *Store) GetRegistration(ctx context.Context, registrationID string) (models.Registration, error) {
	if err := s.ready(ctx); err != nil {
		return models.Registration{}, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE registration_id = ?`,
		strings.TrimSpace(registrationID),
	)
	reg, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Registration{}, store.ErrNotFound
		}
		return models.Registration{}, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

func (s *Store) ListRegistrations(ctx context.Context, filter store.RegistrationFilter) ([]models.Registration, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	if filter.PaymentStatus != "" {
		where = append(where, "payment_status = ?")
		args = append(args, string(filter.PaymentStatus))
	}
	if filter.KitClaimed != nil {
		where = append(where, "kit_claimed = ?")
		args = append(args, boolInt(*filter.KitClaimed))
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	query := `SELECT ` + registrationColumns + ` FROM registrations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, registration_id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	out := []models.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("list registrations: %w", err)
		}
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return out, nil
}

func (s *Store) ApplyPaymentTransition(ctx context.Context, update store.PaymentUpdate, entry models.PaymentHistory) (models.PaymentHistory, error) {
	if err := s.ready(ctx); err != nil {
		return models.PaymentHistory{}, err
	}
	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = updatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.PaymentHistory{}, fmt.Errorf("begin payment transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE registrations
		    SET payment_status = ?,
		        status = ?,
		        payment_notes = ?,
		        payment_confirmed_by = ?,
		        payment_date = COALESCE(?, payment_date),
		        version = version + 1,
		        updated_at = ?
		  WHERE registration_id = ? AND version = ?`,
		string(update.PaymentStatus),
		update.Status,
		update.PaymentNotes,
		update.PaymentConfirmedBy,
		nullMillis(update.PaymentDate),
		toMillis(updatedAt),
		update.RegistrationID,
		update.ExpectedVersion,
	)
	if err != nil {
		return models.PaymentHistory{}, fmt.Errorf("update payment status: %w", err)
	}
	if err := s.checkVersioned(ctx, tx, res, update.RegistrationID); err != nil {
		return models.PaymentHistory{}, err
	}

	res, err = tx.ExecContext(ctx,
		`INSERT INTO payment_history (registration_id, payment_status, previous_status, changed_by, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		update.RegistrationID,
		string(entry.PaymentStatus),
		string(entry.PreviousStatus),
		entry.ChangedBy,
		entry.Notes,
		toMillis(createdAt),
	)
	if err != nil {
		return models.PaymentHistory{}, fmt.Errorf("append payment history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.PaymentHistory{}, fmt.Errorf("append payment history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.PaymentHistory{}, fmt.Errorf("commit payment transition: %w", err)
	}

	entry.ID = id
	entry.RegistrationID = update.RegistrationID
	entry.CreatedAt = fromMillis(toMillis(createdAt))
	return entry, nil
}

func (s *Store) UpdateKitClaim(ctx context.Context, update store.KitClaimUpdate) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE registrations
		    SET kit_claimed = ?,
		        claimed_at = ?,
		        processed_by = ?,
		        actual_claimer = ?,
		        claim_location_id = ?,
		        claim_notes = ?,
		        version = version + 1,
		        updated_at = ?
		  WHERE registration_id = ? AND version = ?`,
		boolInt(update.KitClaimed),
		nullMillis(update.ClaimedAt),
		update.ProcessedBy,
		update.ActualClaimer,
		update.ClaimLocationID,
		update.ClaimNotes,
		toMillis(updatedAt),
		update.RegistrationID,
		update.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update kit claim: %w", err)
	}
	return s.checkVersioned(ctx, s.db, res, update.RegistrationID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkVersioned turns a zero-row versioned update into ErrNotFound or ErrConflict.
func (s *Store) checkVersioned(ctx context.Context, q queryer, res sql.Result, registrationID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	var one int
	err = q.QueryRowContext(ctx, `SELECT 1 FROM registrations WHERE registration_id = ?`, registrationID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check registration: %w", err)
	}
	return store.ErrConflict
}

func (s *Store) ListPaymentHistory(ctx context.Context, registrationID string) ([]models.PaymentHistory, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, registration_id, payment_status, previous_status, changed_by, notes, created_at
		   FROM payment_history
		  WHERE registration_id = ?
		  ORDER BY created_at ASC, id ASC`,
		registrationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list payment history: %w", err)
	}
	defer rows.Close()

	out := []models.PaymentHistory{}
	for rows.Next() {
		var (
			h            models.PaymentHistory
			status, prev string
			createdAt    int64
		)
		if err := rows.Scan(&h.ID, &h.RegistrationID, &status, &prev, &h.ChangedBy, &h.Notes, &createdAt); err != nil {
			return nil, fmt.Errorf("list payment history: %w", err)
		}
		h.PaymentStatus = models.PaymentStatus(status)
		h.PreviousStatus = models.PaymentStatus(prev)
		h.CreatedAt = fromMillis(createdAt)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payment history: %w", err)
	}
	return out, nil
}
