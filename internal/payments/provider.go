package payments

import (
	"context"

	"famrun/internal/models"
)

// Event is a verified gateway callback.
type Event struct {
	RegistrationID string
	Status         models.PaymentStatus
	Invoice        string
}

type PaymentProvider interface {
	Name() string

	// CreatePayment returns the checkout link and invoice id for a registration.
	CreatePayment(ctx context.Context, reg models.Registration, returnURL string) (payURL string, invoice string, err error)

	// HandleWebhook verifies the callback and maps it onto a payment status.
	HandleWebhook(ctx context.Context, body []byte, headers map[string]string) (Event, error)
}

// GatewayActor is the changed_by value recorded for gateway-driven transitions.
func GatewayActor(p PaymentProvider) string {
	return "gateway:" + p.Name()
}
