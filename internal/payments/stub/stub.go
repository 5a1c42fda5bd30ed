package stub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"famrun/internal/models"
	"famrun/internal/util"
)

// Stub provider:
// - CreatePayment: links to /pay/stub?invoice=<registration_id>:<unix>
// - Webhook: POST /webhooks/stub signed with X-Signature (HMAC SHA-256 of the body)

type Provider struct {
	secret  string
	baseURL string
	now     func() time.Time
}

func New(secret, baseURL string) *Provider {
	return &Provider{secret: secret, baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}
}

func (p *Provider) Name() string { return "stub" }

func (p *Provider) CreatePayment(ctx context.Context, reg models.Registration, returnURL string) (string, string, error) {
	if reg.RegistrationID == "" {
		return "", "", fmt.Errorf("registration id is required")
	}
	invoice := fmt.Sprintf("%s:%d", reg.RegistrationID, p.now().Unix())

	q := url.Values{}
	q.Set("invoice", invoice)
	q.Set("amount", fmt.Sprintf("%.2f", reg.Price))
	if returnURL != "" {
		q.Set("return", returnURL)
	}
	link := "/pay/stub?" + q.Encode()
	if p.baseURL != "" {
		link = p.baseURL + link
	}
	return link, invoice, nil
}

// Payload is the webhook body the stub checkout page posts.
type Payload struct {
	Invoice string `json:"invoice"`
	Status  string `json:"status"` // paid/cancelled
}

// Sign returns the X-Signature value for body.
func (p *Provider) Sign(body []byte) string {
	return util.HMACSHA256Hex(p.secret, string(body))
}

func (p *Provider) HandleWebhook(ctx context.Context, body []byte, headers map[string]string) (registrationID string, status models.PaymentStatus, invoice string, err error) {
	if !util.VerifyHMACSHA256Hex(p.secret, string(body), headers["x-signature"]) {
		return "", "", "", fmt.Errorf("invalid signature")
	}

	var pl Payload
	if err := json.Unmarshal(body, &pl); err != nil {
		return "", "", "", fmt.Errorf("decode webhook: %w", err)
	}

	id, _, ok := strings.Cut(pl.Invoice, ":")
	if !ok || strings.TrimSpace(id) == "" {
		return "", "", "", fmt.Errorf("bad invoice")
	}

	switch strings.ToLower(strings.TrimSpace(pl.Status)) {
	case "", "paid":
		status = models.PaymentConfirmed
	case "cancelled", "canceled":
		status = models.PaymentRejected
	default:
		return "", "", "", fmt.Errorf("unknown webhook status %q", pl.Status)
	}
	return strings.TrimSpace(id), status, pl.Invoice, nil
}
