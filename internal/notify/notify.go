// Package notify delivers payment status changes to participants and staff.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"famrun/internal/models"
)

// Notification is one status-change event.
type Notification struct {
	Email           string
	ParticipantName string
	RegistrationID  string
	Status          models.PaymentStatus
	Notes           string
	ReceiptNumber   string
	ReceiptURL      string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, n Notification) error

func (f Func) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, nt := range m {
		if nt == nil {
			continue
		}
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes notifications to the logger. Used when no outbound channel is configured.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log}
}

func (l *Log) Notify(_ context.Context, n Notification) error {
	l.log.Info("payment status notification",
		zap.String("registration_id", n.RegistrationID),
		zap.String("status", string(n.Status)),
		zap.String("email", n.Email),
		zap.String("receipt_number", n.ReceiptNumber),
	)
	return nil
}

// Subject returns the participant-facing headline for n.
func Subject(n Notification) string {
	switch n.Status {
	case models.PaymentConfirmed:
		return "FamRun payment confirmed (" + n.RegistrationID + ")"
	case models.PaymentRejected:
		return "FamRun payment needs attention (" + n.RegistrationID + ")"
	default:
		return "FamRun registration received (" + n.RegistrationID + ")"
	}
}

// Body renders the plain-text message shared by the e-mail and chat channels.
func Body(n Notification) string {
	var b strings.Builder
	name := n.ParticipantName
	if name == "" {
		name = "runner"
	}
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	switch n.Status {
	case models.PaymentConfirmed:
		fmt.Fprintf(&b, "Your payment for registration %s is confirmed.\n", n.RegistrationID)
		if n.ReceiptNumber != "" {
			fmt.Fprintf(&b, "Receipt: %s\n", n.ReceiptNumber)
		}
		if n.ReceiptURL != "" {
			fmt.Fprintf(&b, "%s\n", n.ReceiptURL)
		}
		b.WriteString("Bring your QR ticket to claim your race kit.\n")
	case models.PaymentRejected:
		fmt.Fprintf(&b, "We could not verify the payment for registration %s.\n", n.RegistrationID)
		if n.Notes != "" {
			fmt.Fprintf(&b, "Reason: %s\n", n.Notes)
		}
		b.WriteString("Please reply with a new proof of payment.\n")
	default:
		fmt.Fprintf(&b, "Registration %s is waiting for payment verification.\n", n.RegistrationID)
		if n.Notes != "" {
			fmt.Fprintf(&b, "Note: %s\n", n.Notes)
		}
	}
	return b.String()
}
