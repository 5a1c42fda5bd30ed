package payments

import (
	"context"

	"famrun/internal/payments/stub"
)

type stubAdapter struct {
	*stub.Provider
}

func (a stubAdapter) HandleWebhook(ctx context.Context, body []byte, headers map[string]string) (Event, error) {
	id, status, invoice, err := a.Provider.HandleWebhook(ctx, body, headers)
	if err != nil {
		return Event{}, err
	}
	return Event{RegistrationID: id, Status: status, Invoice: invoice}, nil
}
