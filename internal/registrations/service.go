// Package registrations handles public sign-up and resolves scanned tickets
// back to stored registrations.
package registrations

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"famrun/internal/apperr"
	"famrun/internal/models"
	"famrun/internal/store"
	"famrun/internal/ticket"
)

type Store interface {
	CreateRegistration(ctx context.Context, reg models.Registration) error
	GetRegistration(ctx context.Context, registrationID string) (models.Registration, error)
	ListRegistrations(ctx context.Context, filter store.RegistrationFilter) ([]models.Registration, error)
	GetCategory(ctx context.Context, name string) (models.Category, error)
}

type Service struct {
	store Store
	codec ticket.Codec
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

func NewService(s Store, codec ticket.Codec, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: s, codec: codec, log: log, now: time.Now, newID: NewRegistrationID}
}

// NewRegistrationID returns REG- followed by 8 uppercase hex characters.
func NewRegistrationID() string {
	id := uuid.New()
	return "REG-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}

type RegisterInput struct {
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Department string
	Category   string
	ShirtSize  string
}

type Registered struct {
	Registration models.Registration
	Payload      string
}

const maxIDAttempts = 3

func (s *Service) Register(ctx context.Context, in RegisterInput) (Registered, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return Registered{}, err
	}

	cat, err := s.store.GetCategory(ctx, in.Category)
	if errors.Is(err, store.ErrNotFound) {
		return Registered{}, apperr.New(apperr.CodeInvalidInput, fmt.Sprintf("unknown category %q", in.Category))
	}
	if err != nil {
		return Registered{}, apperr.Wrap(apperr.CodeUnknown, "load category", err)
	}
	if !cat.Active {
		return Registered{}, apperr.New(apperr.CodeInvalidInput, fmt.Sprintf("category %q is closed", in.Category))
	}

	now := s.now().UTC()
	reg := models.Registration{
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Email:         in.Email,
		Phone:         in.Phone,
		Department:    in.Department,
		Category:      cat.Name,
		ShirtSize:     in.ShirtSize,
		Price:         cat.Price,
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentPending,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Encode before inserting so names the codec cannot carry are rejected up front.
	reg.RegistrationID = s.newID()
	payload, err := s.codec.Encode(TicketFor(reg))
	if err != nil {
		return Registered{}, apperr.Wrap(apperr.CodeInvalidInput, "registration cannot be printed on a ticket", err)
	}

	for attempt := 1; ; attempt++ {
		err = s.store.CreateRegistration(ctx, reg)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrAlreadyExists) || attempt >= maxIDAttempts {
			return Registered{}, apperr.Wrap(apperr.CodeUpdateFailed, "create registration", err)
		}
		reg.RegistrationID = s.newID()
		if payload, err = s.codec.Encode(TicketFor(reg)); err != nil {
			return Registered{}, apperr.Wrap(apperr.CodeInvalidInput, "registration cannot be printed on a ticket", err)
		}
	}

	s.log.Info("registration created",
		zap.String("registration_id", reg.RegistrationID),
		zap.String("category", reg.Category),
	)
	return Registered{Registration: reg, Payload: payload}, nil
}

func (s *Service) Get(ctx context.Context, registrationID string) (models.Registration, error) {
	id := strings.TrimSpace(registrationID)
	if id == "" {
		return models.Registration{}, apperr.New(apperr.CodeInvalidInput, "registration id is required")
	}
	reg, err := s.store.GetRegistration(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Registration{}, apperr.Wrap(apperr.CodeNotFound, "registration "+id+" not found", err)
	}
	if err != nil {
		return models.Registration{}, apperr.Wrap(apperr.CodeUnknown, "load registration", err)
	}
	return reg, nil
}

func (s *Service) List(ctx context.Context, filter store.RegistrationFilter) ([]models.Registration, error) {
	regs, err := s.store.ListRegistrations(ctx, filter)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUnknown, "list registrations", err)
	}
	return regs, nil
}

// Ticket returns the QR payload for a stored registration.
func (s *Service) Ticket(ctx context.Context, registrationID string) (string, error) {
	reg, err := s.Get(ctx, registrationID)
	if err != nil {
		return "", err
	}
	return s.codec.Encode(TicketFor(reg))
}

// TicketFor projects the fields printed on a ticket.
func TicketFor(reg models.Registration) ticket.Ticket {
	return ticket.Ticket{
		RegistrationID:  reg.RegistrationID,
		ParticipantName: reg.ParticipantName(),
		Category:        reg.Category,
		Price:           reg.Price,
		ShirtSize:       reg.ShirtSize,
	}
}

func normalize(in RegisterInput) RegisterInput {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Department = strings.TrimSpace(in.Department)
	in.Category = strings.TrimSpace(in.Category)
	in.ShirtSize = strings.ToUpper(strings.TrimSpace(in.ShirtSize))
	return in
}

func validate(in RegisterInput) error {
	var missing []string
	if in.FirstName == "" {
		missing = append(missing, "first_name")
	}
	if in.LastName == "" {
		missing = append(missing, "last_name")
	}
	if in.Category == "" {
		missing = append(missing, "category")
	}
	if in.ShirtSize == "" {
		missing = append(missing, "shirt_size")
	}
	if len(missing) > 0 {
		return apperr.New(apperr.CodeInvalidInput, "missing fields: "+strings.Join(missing, ", "))
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return apperr.Wrap(apperr.CodeInvalidInput, "invalid email", err)
		}
	}
	return nil
}
