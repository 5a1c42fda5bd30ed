package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"famrun/internal/apperr"
	"famrun/internal/models"
	"famrun/internal/store"
)

const (
	DefaultReceiptPrefix = "FR"
	maxReceiptAttempts   = 3
)

type ReceiptStore interface {
	GetReceipt(ctx context.Context, registrationID string) (models.PaymentReceipt, error)
	GetReceiptByNumber(ctx context.Context, receiptNumber string) (models.PaymentReceipt, error)
	CreateReceipt(ctx context.Context, receipt models.PaymentReceipt) error
}

// Issuer creates at most one receipt per registration.
type Issuer struct {
	store   ReceiptStore
	prefix  string
	baseURL string
	log     *zap.Logger
	now     func() time.Time
	suffix  func() string
}

// NewIssuer builds receipt URLs as <baseURL>/receipts/<number>.
func NewIssuer(s ReceiptStore, prefix, baseURL string, log *zap.Logger) *Issuer {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultReceiptPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Issuer{
		store:   s,
		prefix:  prefix,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
		now:     time.Now,
		suffix:  randomSuffix,
	}
}

func randomSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Number formats a receipt number for the given year.
func (i *Issuer) Number(year int, suffix string) string {
	return fmt.Sprintf("%s-%04d-%s", i.prefix, year, suffix)
}

func (i *Issuer) URL(number string) string {
	return i.baseURL + "/receipts/" + number
}

// Issue returns the registration's receipt, creating it on first call.
func (i *Issuer) Issue(ctx context.Context, registrationID, actorID string) (models.PaymentReceipt, error) {
	existing, err := i.store.GetReceipt(ctx, registrationID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.PaymentReceipt{}, apperr.Wrap(apperr.CodeReceiptIssuanceFailed, "load receipt", err)
	}

	now := i.now().UTC()
	for attempt := 1; attempt <= maxReceiptAttempts; attempt++ {
		number := i.Number(now.Year(), i.suffix())
		receipt := models.PaymentReceipt{
			RegistrationID: registrationID,
			ReceiptNumber:  number,
			ReceiptURL:     i.URL(number),
			GeneratedAt:    now,
			GeneratedBy:    actorID,
		}
		err := i.store.CreateReceipt(ctx, receipt)
		switch {
		case err == nil:
			i.log.Info("receipt issued",
				zap.String("registration_id", registrationID),
				zap.String("receipt_number", number),
			)
			return receipt, nil
		case errors.Is(err, store.ErrDuplicateReceiptNumber):
			i.log.Warn("receipt number collision, retrying",
				zap.String("receipt_number", number),
				zap.Int("attempt", attempt),
			)
			continue
		case errors.Is(err, store.ErrAlreadyExists):
			// Another request issued the receipt first.
			won, gerr := i.store.GetReceipt(ctx, registrationID)
			if gerr != nil {
				return models.PaymentReceipt{}, apperr.Wrap(apperr.CodeReceiptIssuanceFailed, "load concurrent receipt", gerr)
			}
			return won, nil
		default:
			return models.PaymentReceipt{}, apperr.Wrap(apperr.CodeReceiptIssuanceFailed, "create receipt", err)
		}
	}
	return models.PaymentReceipt{}, apperr.Wrap(apperr.CodeReceiptIssuanceFailed,
		fmt.Sprintf("no free receipt number after %d attempts", maxReceiptAttempts), store.ErrDuplicateReceiptNumber)
}
