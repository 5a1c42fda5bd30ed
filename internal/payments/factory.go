package payments

import (
	"fmt"

	"famrun/internal/config"
	"famrun/internal/payments/stub"
)

// NewProvider returns nil with no error when payments are handled offline.
func NewProvider(cfg config.Config) (PaymentProvider, error) {
	switch cfg.PaymentProvider {
	case "stub":
		return stubAdapter{stub.New(cfg.PaymentWebhookSecret, cfg.BasePublicURL)}, nil
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown payment provider: %s", cfg.PaymentProvider)
	}
}
