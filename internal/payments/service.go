// Package payments applies payment status changes, issues receipts and
// talks to the payment gateway.
package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"famrun/internal/apperr"
	"famrun/internal/lock"
	"famrun/internal/models"
	"famrun/internal/notify"
	"famrun/internal/store"
)

type Store interface {
	ReceiptStore
	GetRegistration(ctx context.Context, registrationID string) (models.Registration, error)
	ApplyPaymentTransition(ctx context.Context, update store.PaymentUpdate, entry models.PaymentHistory) (models.PaymentHistory, error)
	ListPaymentHistory(ctx context.Context, registrationID string) ([]models.PaymentHistory, error)
}

type Service struct {
	store    Store
	issuer   *Issuer
	notifier notify.Notifier
	locker   lock.Locker
	log      *zap.Logger
	now      func() time.Time
}

type Option func(*Service)

// WithNotifier enables status-change notifications.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

func NewService(st Store, issuer *Issuer, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:  st,
		issuer: issuer,
		locker: lock.NewLocal(),
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result describes what a transition did. ReceiptErr and NotifyErr report
// follow-up failures that did not undo the status change.
type Result struct {
	Registration models.Registration
	History      *models.PaymentHistory
	Receipt      *models.PaymentReceipt
	NoOp         bool
	ReceiptErr   error
	NotifyErr    error
}

// Transition moves a registration to newStatus on behalf of actorID.
//
// An unchanged status with blank notes is a no-op that writes nothing and only
// reports an existing receipt. Otherwise the registration row and one history
// entry are written together; if that fails nothing else runs. Receipt
// issuance (for confirmed) and notification follow and never undo the status
// change. Notification runs after the registration lock is released.
func (s *Service) Transition(ctx context.Context, registrationID string, newStatus string, notes, actorID string) (Result, error) {
	status, ok := models.ParsePaymentStatus(newStatus)
	if !ok {
		return Result{}, apperr.New(apperr.CodeInvalidStatus, "unknown payment status "+strings.TrimSpace(newStatus))
	}
	registrationID = strings.TrimSpace(registrationID)
	if registrationID == "" {
		return Result{}, apperr.New(apperr.CodeInvalidInput, "registration id is required")
	}
	notes = strings.TrimSpace(notes)

	res, err := s.transitionLocked(ctx, registrationID, status, notes, actorID)
	if err != nil || res.NoOp {
		return res, err
	}
	s.notify(ctx, &res)
	return res, nil
}

func (s *Service) transitionLocked(ctx context.Context, registrationID string, status models.PaymentStatus, notes, actorID string) (Result, error) {
	release, err := s.locker.Acquire(ctx, lock.RegistrationKey(registrationID))
	if err != nil {
		return Result{}, apperr.Wrap(apperr.CodeConflict, "registration is being updated by someone else", err)
	}
	defer release()

	reg, err := s.store.GetRegistration(ctx, registrationID)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, apperr.Wrap(apperr.CodeNotFound, "registration "+registrationID+" not found", err)
	}
	if err != nil {
		return Result{}, apperr.Wrap(apperr.CodeUpdateFailed, "load registration", err)
	}

	previous := reg.PaymentStatus
	if status == previous && notes == "" {
		res := Result{Registration: reg, NoOp: true}
		if status == models.PaymentConfirmed {
			s.existingReceipt(ctx, &res)
		}
		return res, nil
	}

	now := s.now().UTC()
	update := store.PaymentUpdate{
		RegistrationID:     reg.RegistrationID,
		ExpectedVersion:    reg.Version,
		PaymentStatus:      status,
		Status:             coarseStatus(status),
		PaymentNotes:       notes,
		PaymentConfirmedBy: actorID,
		UpdatedAt:          now,
	}
	if status == models.PaymentConfirmed && previous != models.PaymentConfirmed {
		update.PaymentDate = &now
	}

	entry, err := s.store.ApplyPaymentTransition(ctx, update, models.PaymentHistory{
		RegistrationID: reg.RegistrationID,
		PaymentStatus:  status,
		PreviousStatus: previous,
		ChangedBy:      actorID,
		Notes:          notes,
		CreatedAt:      now,
	})
	if err != nil {
		s.log.Error("payment transition failed",
			zap.String("registration_id", reg.RegistrationID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		switch {
		case errors.Is(err, store.ErrConflict):
			return Result{}, apperr.Wrap(apperr.CodeConflict, "registration changed since it was read", err)
		case errors.Is(err, store.ErrNotFound):
			return Result{}, apperr.Wrap(apperr.CodeNotFound, "registration "+registrationID+" not found", err)
		default:
			return Result{}, apperr.Wrap(apperr.CodeUpdateFailed, "update payment status", err)
		}
	}

	reg.PaymentStatus = status
	reg.Status = update.Status
	reg.PaymentNotes = notes
	reg.PaymentConfirmedBy = actorID
	if update.PaymentDate != nil {
		reg.PaymentDate = update.PaymentDate
	}
	reg.Version++
	reg.UpdatedAt = now

	res := Result{Registration: reg, History: &entry}
	s.log.Info("payment status changed",
		zap.String("registration_id", reg.RegistrationID),
		zap.String("previous_status", string(previous)),
		zap.String("status", string(status)),
		zap.String("actor", actorID),
	)

	if status == models.PaymentConfirmed {
		s.attachReceipt(ctx, &res, actorID)
	}
	return res, nil
}

func (s *Service) existingReceipt(ctx context.Context, res *Result) {
	receipt, err := s.store.GetReceipt(ctx, res.Registration.RegistrationID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		res.ReceiptErr = apperr.Wrap(apperr.CodeReceiptIssuanceFailed, "load receipt", err)
		s.log.Warn("receipt lookup failed",
			zap.String("registration_id", res.Registration.RegistrationID),
			zap.Error(err),
		)
		return
	}
	res.Receipt = &receipt
}

func (s *Service) attachReceipt(ctx context.Context, res *Result, actorID string) {
	if s.issuer == nil {
		return
	}
	receipt, err := s.issuer.Issue(ctx, res.Registration.RegistrationID, actorID)
	if err != nil {
		res.ReceiptErr = err
		s.log.Warn("receipt issuance failed",
			zap.String("registration_id", res.Registration.RegistrationID),
			zap.Error(err),
		)
		return
	}
	res.Receipt = &receipt
}

func (s *Service) notify(ctx context.Context, res *Result) {
	if s.notifier == nil {
		return
	}
	reg := res.Registration
	n := notify.Notification{
		Email:           reg.Email,
		ParticipantName: reg.ParticipantName(),
		RegistrationID:  reg.RegistrationID,
		Status:          reg.PaymentStatus,
		Notes:           reg.PaymentNotes,
	}
	if res.Receipt != nil {
		n.ReceiptNumber = res.Receipt.ReceiptNumber
		n.ReceiptURL = res.Receipt.ReceiptURL
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		res.NotifyErr = apperr.Wrap(apperr.CodeNotificationFailed, "notify status change", err)
		s.log.Warn("status notification failed",
			zap.String("registration_id", reg.RegistrationID),
			zap.Error(err),
		)
	}
}

func coarseStatus(s models.PaymentStatus) string {
	if s == models.PaymentConfirmed {
		return models.StatusConfirmed
	}
	return models.StatusPending
}

// History returns the registration's payment history, oldest first.
func (s *Service) History(ctx context.Context, registrationID string) ([]models.PaymentHistory, error) {
	if _, err := s.registration(ctx, registrationID); err != nil {
		return nil, err
	}
	hist, err := s.store.ListPaymentHistory(ctx, registrationID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUnknown, "list payment history", err)
	}
	return hist, nil
}

// Receipt returns the existing receipt for a registration.
func (s *Service) Receipt(ctx context.Context, registrationID string) (models.PaymentReceipt, error) {
	r, err := s.store.GetReceipt(ctx, strings.TrimSpace(registrationID))
	if errors.Is(err, store.ErrNotFound) {
		return r, apperr.Wrap(apperr.CodeNotFound, "no receipt for "+registrationID, err)
	}
	if err != nil {
		return r, apperr.Wrap(apperr.CodeUnknown, "load receipt", err)
	}
	return r, nil
}

func (s *Service) ReceiptByNumber(ctx context.Context, number string) (models.PaymentReceipt, error) {
	r, err := s.store.GetReceiptByNumber(ctx, strings.TrimSpace(number))
	if errors.Is(err, store.ErrNotFound) {
		return r, apperr.Wrap(apperr.CodeNotFound, "receipt "+number+" not found", err)
	}
	if err != nil {
		return r, apperr.Wrap(apperr.CodeUnknown, "load receipt", err)
	}
	return r, nil
}

// IssueReceipt issues (or returns) the receipt for a confirmed registration.
// It is the staff retry path after a failed issuance.
func (s *Service) IssueReceipt(ctx context.Context, registrationID, actorID string) (models.PaymentReceipt, error) {
	reg, err := s.registration(ctx, registrationID)
	if err != nil {
		return models.PaymentReceipt{}, err
	}
	if reg.PaymentStatus != models.PaymentConfirmed {
		return models.PaymentReceipt{}, apperr.New(apperr.CodeNotPaid, "payment for "+reg.RegistrationID+" is "+string(reg.PaymentStatus))
	}
	if s.issuer == nil {
		return models.PaymentReceipt{}, apperr.New(apperr.CodeReceiptIssuanceFailed, "receipts are not configured")
	}
	return s.issuer.Issue(ctx, reg.RegistrationID, actorID)
}

func (s *Service) registration(ctx context.Context, registrationID string) (models.Registration, error) {
	reg, err := s.store.GetRegistration(ctx, strings.TrimSpace(registrationID))
	if errors.Is(err, store.ErrNotFound) {
		return reg, apperr.Wrap(apperr.CodeNotFound, "registration "+registrationID+" not found", err)
	}
	if err != nil {
		return reg, apperr.Wrap(apperr.CodeUnknown, "load registration", err)
	}
	return reg, nil
}

// HandleWebhook verifies a gateway callback and applies the status it carries.
func (s *Service) HandleWebhook(ctx context.Context, p PaymentProvider, body []byte, headers map[string]string) (Event, Result, error) {
	ev, err := p.HandleWebhook(ctx, body, headers)
	if err != nil {
		return Event{}, Result{}, apperr.Wrap(apperr.CodeInvalidInput, "webhook rejected", err)
	}
	res, err := s.Transition(ctx, ev.RegistrationID, string(ev.Status), "", GatewayActor(p))
	return ev, res, err
}
