package payments

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famrun/internal/apperr"
	"famrun/internal/config"
	"famrun/internal/models"
	"famrun/internal/util"
)

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.Config{PaymentProvider: "stub", PaymentWebhookSecret: "s"})
	require.NoError(t, err)
	assert.Equal(t, "stub", p.Name())
	assert.Equal(t, "gateway:stub", GatewayActor(p))

	p, err = NewProvider(config.Config{PaymentProvider: "none"})
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = NewProvider(config.Config{PaymentProvider: "paypal"})
	assert.Error(t, err)
}

func TestWebhookConfirmsRegistration(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	seed(t, st, "REG-010")
	svc := newService(t, st)

	p, err := NewProvider(config.Config{PaymentProvider: "stub", PaymentWebhookSecret: "whsec"})
	require.NoError(t, err)

	body := []byte(`{"invoice":"REG-010:1767225600","status":"paid"}`)
	headers := map[string]string{"x-signature": util.HMACSHA256Hex("whsec", string(body))}

	ev, res, err := svc.HandleWebhook(ctx, p, body, headers)
	require.NoError(t, err)
	assert.Equal(t, "REG-010", ev.RegistrationID)
	assert.Equal(t, models.PaymentConfirmed, res.Registration.PaymentStatus)
	assert.Equal(t, "gateway:stub", res.History.ChangedBy)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, "gateway:stub", res.Receipt.GeneratedBy)

	// Gateways retry; the replay is a no-op.
	_, res, err = svc.HandleWebhook(ctx, p, body, headers)
	require.NoError(t, err)
	assert.True(t, res.NoOp)

	_, _, err = svc.HandleWebhook(ctx, p, body, map[string]string{"x-signature": "bad"})
	assert.True(t, apperr.Has(err, apperr.CodeInvalidInput))
}
