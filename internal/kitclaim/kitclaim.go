// Package kitclaim records race-kit pickups against paid registrations.
package kitclaim

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"famrun/internal/apperr"
	"famrun/internal/lock"
	"famrun/internal/models"
	"famrun/internal/registrations"
	"famrun/internal/store"
	"famrun/internal/ticket"
)

type Registrations interface {
	Lookup(ctx context.Context, payload string) (registrations.LookupResult, error)
	Get(ctx context.Context, registrationID string) (models.Registration, error)
}

type Store interface {
	UpdateKitClaim(ctx context.Context, update store.KitClaimUpdate) error
	GetClaimLocation(ctx context.Context, id string) (models.ClaimLocation, error)
}

// ClaimLog mirrors completed claims somewhere staff can see them.
type ClaimLog interface {
	AppendClaim(ctx context.Context, reg models.Registration, location models.ClaimLocation) error
	ReverseClaim(ctx context.Context, registrationID, notes string) error
}

type ClaimInput struct {
	ActualClaimer string
	LocationID    string
	Notes         string
}

type Service struct {
	regs   Registrations
	store  Store
	locker lock.Locker
	claims ClaimLog
	log    *zap.Logger
	now    func() time.Time
}

func NewService(regs Registrations, st Store, locker lock.Locker, claims ClaimLog, log *zap.Logger) *Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{regs: regs, store: st, locker: locker, claims: claims, log: log, now: time.Now}
}

// Claim hands out the kit for a scanned ticket. The ticket must match the
// stored record and the payment must be confirmed.
func (s *Service) Claim(ctx context.Context, payload string, in ClaimInput, actorID string) (models.Registration, error) {
	found, err := s.regs.Lookup(ctx, payload)
	if err != nil {
		return models.Registration{}, err
	}
	return s.claim(ctx, found.Registration.RegistrationID, &found.Ticket, in, actorID)
}

// ClaimByID claims without a ticket, for staff working from the roster.
func (s *Service) ClaimByID(ctx context.Context, registrationID string, in ClaimInput, actorID string) (models.Registration, error) {
	return s.claim(ctx, registrationID, nil, in, actorID)
}

// BulkClaim claims each registration in order and stops at the first failure.
// It returns how many were claimed before that failure; earlier claims stand.
func (s *Service) BulkClaim(ctx context.Context, registrationIDs []string, in ClaimInput, actorID string) (int, error) {
	done := 0
	for _, id := range registrationIDs {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if _, err := s.claim(ctx, id, nil, in, actorID); err != nil {
			return done, fmt.Errorf("claim %s: %w", id, err)
		}
		done++
	}
	return done, nil
}

func (s *Service) claim(ctx context.Context, registrationID string, scanned *ticket.Ticket, in ClaimInput, actorID string) (models.Registration, error) {
	registrationID = strings.TrimSpace(registrationID)
	release, err := s.locker.Acquire(ctx, lock.RegistrationKey(registrationID))
	if err != nil {
		return models.Registration{}, apperr.Wrap(apperr.CodeConflict, "registration is being updated by someone else", err)
	}
	defer release()

	reg, err := s.regs.Get(ctx, registrationID)
	if err != nil {
		return models.Registration{}, err
	}
	if scanned != nil {
		if diff := registrations.Compare(*scanned, reg); len(diff) > 0 {
			return models.Registration{}, apperr.New(apperr.CodeMismatch,
				"ticket does not match registration "+reg.RegistrationID+": "+strings.Join(diff, ", "))
		}
	}
	if reg.PaymentStatus != models.PaymentConfirmed {
		return models.Registration{}, apperr.New(apperr.CodeNotPaid,
			"payment for "+reg.RegistrationID+" is "+string(reg.PaymentStatus))
	}
	if reg.KitClaimed {
		return models.Registration{}, apperr.New(apperr.CodeAlreadyClaimed,
			"kit for "+reg.RegistrationID+" was already claimed")
	}

	var loc models.ClaimLocation
	in.LocationID = strings.TrimSpace(in.LocationID)
	if in.LocationID != "" {
		loc, err = s.location(ctx, in.LocationID)
		if err != nil {
			return models.Registration{}, err
		}
	}

	now := s.now().UTC()
	claimer := strings.TrimSpace(in.ActualClaimer)
	if claimer == "" {
		claimer = reg.ParticipantName()
	}
	update := store.KitClaimUpdate{
		RegistrationID:  reg.RegistrationID,
		ExpectedVersion: reg.Version,
		KitClaimed:      true,
		ClaimedAt:       &now,
		ProcessedBy:     actorID,
		ActualClaimer:   claimer,
		ClaimLocationID: in.LocationID,
		ClaimNotes:      strings.TrimSpace(in.Notes),
		UpdatedAt:       now,
	}
	if err := s.write(ctx, update); err != nil {
		return models.Registration{}, err
	}

	reg.KitClaimed = true
	reg.ClaimedAt = &now
	reg.ProcessedBy = actorID
	reg.ActualClaimer = claimer
	reg.ClaimLocationID = update.ClaimLocationID
	reg.ClaimNotes = update.ClaimNotes
	reg.Version++
	reg.UpdatedAt = now

	s.log.Info("kit claimed",
		zap.String("registration_id", reg.RegistrationID),
		zap.String("processed_by", actorID),
		zap.String("claim_location_id", reg.ClaimLocationID),
	)
	if s.claims != nil {
		if err := s.claims.AppendClaim(ctx, reg, loc); err != nil {
			s.log.Warn("claim log append failed", zap.String("registration_id", reg.RegistrationID), zap.Error(err))
		}
	}
	return reg, nil
}

// Unclaim reverses a claim recorded by mistake.
func (s *Service) Unclaim(ctx context.Context, registrationID, notes, actorID string) (models.Registration, error) {
	registrationID = strings.TrimSpace(registrationID)
	release, err := s.locker.Acquire(ctx, lock.RegistrationKey(registrationID))
	if err != nil {
		return models.Registration{}, apperr.Wrap(apperr.CodeConflict, "registration is being updated by someone else", err)
	}
	defer release()

	reg, err := s.regs.Get(ctx, registrationID)
	if err != nil {
		return models.Registration{}, err
	}
	if !reg.KitClaimed {
		return models.Registration{}, apperr.New(apperr.CodeInvalidInput, "kit for "+reg.RegistrationID+" is not claimed")
	}

	now := s.now().UTC()
	update := store.KitClaimUpdate{
		RegistrationID:  reg.RegistrationID,
		ExpectedVersion: reg.Version,
		ProcessedBy:     actorID,
		ClaimNotes:      strings.TrimSpace(notes),
		UpdatedAt:       now,
	}
	if err := s.write(ctx, update); err != nil {
		return models.Registration{}, err
	}

	reg.KitClaimed = false
	reg.ClaimedAt = nil
	reg.ProcessedBy = actorID
	reg.ActualClaimer = ""
	reg.ClaimLocationID = ""
	reg.ClaimNotes = update.ClaimNotes
	reg.Version++
	reg.UpdatedAt = now

	s.log.Info("kit claim reversed",
		zap.String("registration_id", reg.RegistrationID),
		zap.String("processed_by", actorID),
	)
	if s.claims != nil {
		if err := s.claims.ReverseClaim(ctx, reg.RegistrationID, reg.ClaimNotes); err != nil {
			s.log.Warn("claim log reversal failed", zap.String("registration_id", reg.RegistrationID), zap.Error(err))
		}
	}
	return reg, nil
}

func (s *Service) write(ctx context.Context, update store.KitClaimUpdate) error {
	err := s.store.UpdateKitClaim(ctx, update)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrConflict):
		return apperr.Wrap(apperr.CodeConflict, "registration changed since it was read", err)
	case errors.Is(err, store.ErrNotFound):
		return apperr.Wrap(apperr.CodeNotFound, "registration "+update.RegistrationID+" not found", err)
	default:
		return apperr.Wrap(apperr.CodeUpdateFailed, "update kit claim", err)
	}
}

func (s *Service) location(ctx context.Context, id string) (models.ClaimLocation, error) {
	loc, err := s.store.GetClaimLocation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return loc, apperr.Wrap(apperr.CodeNotFound, "claim location "+id+" not found", err)
	}
	if err != nil {
		return loc, apperr.Wrap(apperr.CodeUnknown, "load claim location", err)
	}
	if !loc.Active {
		return loc, apperr.New(apperr.CodeInvalidInput, "claim location "+loc.Name+" is closed")
	}
	return loc, nil
}
