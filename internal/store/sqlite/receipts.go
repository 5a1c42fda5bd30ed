package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"famrun/internal/models"
	"famrun/internal/store"
)

func (s *Store) GetReceipt(ctx context.Context, registrationID string) (models.PaymentReceipt, error) {
	return s.getReceipt(ctx, "registration_id", registrationID)
}

func (s *Store) GetReceiptByNumber(ctx context.Context, receiptNumber string) (models.PaymentReceipt, error) {
	return s.getReceipt(ctx, "receipt_number", receiptNumber)
}

func (s *Store) getReceipt(ctx context.Context, column, value string) (models.PaymentReceipt, error) {
	if err := s.ready(ctx); err != nil {
		return models.PaymentReceipt{}, err
	}
	var (
		r           models.PaymentReceipt
		generatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT registration_id, receipt_number, receipt_url, generated_at, generated_by
		   FROM payment_receipts
		  WHERE `+column+` = ?`,
		value,
	).Scan(&r.RegistrationID, &r.ReceiptNumber, &r.ReceiptURL, &generatedAt, &r.GeneratedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PaymentReceipt{}, store.ErrNotFound
		}
		return models.PaymentReceipt{}, fmt.Errorf("get receipt: %w", err)
	}
	r.GeneratedAt = fromMillis(generatedAt)
	return r, nil
}

func (s *Store) CreateReceipt(ctx context.Context, receipt models.PaymentReceipt) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	generatedAt := receipt.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payment_receipts (registration_id, receipt_number, receipt_url, generated_at, generated_by)
		 VALUES (?, ?, ?, ?, ?)`,
		receipt.RegistrationID,
		receipt.ReceiptNumber,
		receipt.ReceiptURL,
		toMillis(generatedAt),
		receipt.GeneratedBy,
	)
	switch {
	case err == nil:
		return nil
	case uniqueViolation(err, "payment_receipts.receipt_number"):
		return store.ErrDuplicateReceiptNumber
	case uniqueViolation(err, "payment_receipts.registration_id"):
		return store.ErrAlreadyExists
	default:
		return fmt.Errorf("create receipt: %w", err)
	}
}
