package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"famrun/internal/config"
	"famrun/internal/kitclaim"
	"famrun/internal/lock"
	"famrun/internal/models"
	"famrun/internal/notify"
	"famrun/internal/payments"
	"famrun/internal/registrations"
	"famrun/internal/session"
	"famrun/internal/store/sqlite"
	"famrun/internal/ticket"
	"famrun/internal/util"
)

type env struct {
	t       *testing.T
	handler http.Handler
	store   *sqlite.Store
	token   string
	sent    []notify.Notification
	synced  int
}

type rosterFunc func(ctx context.Context, regs []models.Registration) error

func (f rosterFunc) SyncRegistrations(ctx context.Context, regs []models.Registration) error {
	return f(ctx, regs)
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, nil)
}

func newEnvWith(t *testing.T, tweak func(*config.Config)) *env {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "famrun.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.PutCategory(ctx, models.Category{Name: "5K", Price: 500, Active: true}))
	require.NoError(t, st.PutClaimLocation(ctx, models.ClaimLocation{ID: "hq", Name: "Church HQ", Active: true}))

	cfg := config.Config{
		HTTPAddr:             ":8080",
		BasePublicURL:        "https://famrun.example.org",
		SessionSecret:        "session-secret",
		PaymentProvider:      "stub",
		PaymentWebhookSecret: "whsec",
	}
	if tweak != nil {
		tweak(&cfg)
	}
	log := zaptest.NewLogger(t)
	e := &env{t: t, store: st}
	rec := notify.Func(func(_ context.Context, n notify.Notification) error {
		e.sent = append(e.sent, n)
		return nil
	})

	tokens, err := session.NewTokens(cfg.SessionSecret, time.Hour)
	require.NoError(t, err)
	e.token, _, err = tokens.Issue("marie")
	require.NoError(t, err)

	provider, err := payments.NewProvider(cfg)
	require.NoError(t, err)
	locker := lock.NewLocal()
	regs := registrations.NewService(st, ticket.NewCodec(cfg.TicketPrefix), log)
	pay := payments.NewService(st, payments.NewIssuer(st, cfg.ReceiptPrefix, cfg.BasePublicURL, log), log,
		payments.WithNotifier(rec), payments.WithLocker(locker))

	e.handler = Handler(Deps{
		Config:        cfg,
		Log:           log,
		Registrations: regs,
		Payments:      pay,
		Claims:        kitclaim.NewService(regs, st, locker, nil, log),
		Reference:     st,
		Tokens:        tokens,
		Provider:      provider,
		Notifier:      rec,
		Roster: rosterFunc(func(_ context.Context, regs []models.Registration) error {
			e.synced = len(regs)
			return nil
		}),
	})
	return e
}

func (e *env) do(method, path string, body any, staff bool) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if staff {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func (e *env) register(first string) (string, string) {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/registrations", map[string]string{
		"first_name": first, "last_name": "Cruz", "email": strings.ToLower(first) + "@example.com",
		"category": "5K", "shirt_size": "M",
	}, false)
	require.Equal(e.t, http.StatusCreated, rr.Code, rr.Body.String())
	out := decode(e.t, rr)
	reg := out["registration"].(map[string]any)
	return reg["registration_id"].(string), out["ticket_payload"].(string)
}

func TestRegisterReturnsTicketAndPaymentLink(t *testing.T) {
	e := newEnv(t)
	rr := e.do(http.MethodPost, "/api/registrations", map[string]string{
		"first_name": "Ana", "last_name": "Cruz", "category": "5K", "shirt_size": "M", "email": "ana@example.com",
	}, false)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	out := decode(t, rr)

	reg := out["registration"].(map[string]any)
	id := reg["registration_id"].(string)
	assert.Equal(t, "pending", reg["payment_status"])
	assert.Equal(t, 500.0, reg["price"])
	assert.Equal(t, "FAMRUN|"+id+"|Ana Cruz|5K|500|M", out["ticket_payload"])
	assert.Contains(t, out["payment_url"], "https://famrun.example.org/pay/stub?")
	require.Len(t, e.sent, 1)
	assert.Equal(t, models.PaymentPending, e.sent[0].Status)

	rr = e.do(http.MethodGet, "/api/registrations/"+id+"/ticket.png", nil, false)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")))

	rr = e.do(http.MethodPost, "/api/registrations", map[string]string{"first_name": "Ana"}, false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_INPUT", decode(t, rr)["error"].(map[string]any)["code"])
}

func TestStaffRoutesRequireToken(t *testing.T) {
	e := newEnv(t)
	rr := e.do(http.MethodGet, "/api/registrations", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "UNAUTHENTICATED", decode(t, rr)["error"].(map[string]any)["code"])

	req := httptest.NewRequest(http.MethodGet, "/api/registrations", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rr = httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPaymentTransitionFlow(t *testing.T) {
	e := newEnv(t)
	id, _ := e.register("Ana")

	rr := e.do(http.MethodPost, "/api/registrations/"+id+"/payment", map[string]string{"status": "confirmed"}, true)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decode(t, rr)
	assert.Equal(t, "confirmed", out["registration"].(map[string]any)["payment_status"])
	assert.Equal(t, "marie", out["history"].(map[string]any)["changed_by"])
	receipt := out["receipt"].(map[string]any)
	number := receipt["receipt_number"].(string)
	assert.True(t, strings.HasPrefix(number, "FR-"))

	rr = e.do(http.MethodPost, "/api/registrations/"+id+"/payment", map[string]string{"status": "confirmed"}, true)
	out = decode(t, rr)
	assert.Equal(t, true, out["no_op"])
	assert.Equal(t, number, out["receipt"].(map[string]any)["receipt_number"])

	rr = e.do(http.MethodPost, "/api/registrations/"+id+"/payment", map[string]string{"status": "rejected", "notes": "proof unreadable"}, true)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(http.MethodGet, "/api/registrations/"+id+"/history", nil, true)
	hist := decode(t, rr)["history"].([]any)
	require.Len(t, hist, 2)
	assert.Equal(t, "confirmed", hist[1].(map[string]any)["previous_status"])

	rr = e.do(http.MethodGet, "/api/registrations/"+id+"/receipt", nil, true)
	assert.Equal(t, number, decode(t, rr)["receipt_number"])

	rr = e.do(http.MethodGet, "/receipts/"+number, nil, false)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Ana Cruz", decode(t, rr)["participant_name"])

	rr = e.do(http.MethodPost, "/api/registrations/"+id+"/payment", map[string]string{"status": "refunded"}, true)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_STATUS", decode(t, rr)["error"].(map[string]any)["code"])

	rr = e.do(http.MethodPost, "/api/registrations/REG-NOPE/payment", map[string]string{"status": "confirmed"}, true)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestScanAndClaim(t *testing.T) {
	e := newEnv(t)
	id, payload := e.register("Ben")

	rr := e.do(http.MethodPost, "/api/tickets/scan", map[string]string{"payload": payload}, true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode(t, rr)["mismatches"])

	rr = e.do(http.MethodPost, "/api/kit-claims", map[string]string{"payload": payload}, true)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "NOT_PAID", decode(t, rr)["error"].(map[string]any)["code"])

	e.do(http.MethodPost, "/api/registrations/"+id+"/payment", map[string]string{"status": "confirmed"}, true)

	rr = e.do(http.MethodPost, "/api/kit-claims", map[string]string{"payload": payload, "location_id": "hq"}, true)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decode(t, rr)
	assert.Equal(t, true, out["kit_claimed"])
	assert.Equal(t, "marie", out["processed_by"])

	rr = e.do(http.MethodPost, "/api/kit-claims", map[string]string{"payload": payload}, true)
	assert.Equal(t, "ALREADY_CLAIMED", decode(t, rr)["error"].(map[string]any)["code"])

	rr = e.do(http.MethodDelete, "/api/kit-claims/"+id+"?notes=oops", nil, true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decode(t, rr)["kit_claimed"])

	rr = e.do(http.MethodPost, "/api/tickets/scan", map[string]string{"payload": "nope"}, true)
	assert.Equal(t, "INVALID_FORMAT", decode(t, rr)["error"].(map[string]any)["code"])
}

func TestBulkClaimReportsPartialCount(t *testing.T) {
	e := newEnv(t)
	a, _ := e.register("Ana")
	b, _ := e.register("Ben")
	e.do(http.MethodPost, "/api/registrations/"+a+"/payment", map[string]string{"status": "confirmed"}, true)

	rr := e.do(http.MethodPost, "/api/kit-claims/bulk", map[string]any{"registration_ids": []string{a, b}}, true)
	assert.Equal(t, http.StatusConflict, rr.Code)
	out := decode(t, rr)
	assert.Equal(t, 1.0, out["claimed"])
	assert.Equal(t, "NOT_PAID", out["error"].(map[string]any)["code"])
}

func TestWebhookAppliesGatewayStatus(t *testing.T) {
	e := newEnv(t)
	id, _ := e.register("Cara")

	body := `{"invoice":"` + id + `:1","status":"paid"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stub", strings.NewReader(body))
	req.Header.Set("X-Signature", util.HMACSHA256Hex("whsec", body))
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decode(t, rr)
	assert.Equal(t, "confirmed", out["payment_status"])
	assert.NotEmpty(t, out["receipt_number"])

	reg, err := e.store.GetRegistration(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "gateway:stub", reg.PaymentConfirmedBy)

	// Unsigned callbacks are refused unless explicitly allowed.
	req = httptest.NewRequest(http.MethodPost, "/webhooks/stub", strings.NewReader(body))
	rr = httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(http.MethodPost, "/webhooks/paypal", map[string]string{}, false)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUnsignedStubWebhookNeedsOptIn(t *testing.T) {
	// Defaults: stub provider, placeholder secret, no public URL.
	defaults := func(c *config.Config) {
		c.BasePublicURL = ""
		c.PaymentWebhookSecret = "change-me"
	}
	e := newEnvWith(t, defaults)
	id, _ := e.register("Dina")

	body := `{"invoice":"` + id + `:1","status":"paid"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stub", strings.NewReader(body))
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

	reg, err := e.store.GetRegistration(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, reg.PaymentStatus)

	dev := newEnvWith(t, func(c *config.Config) {
		defaults(c)
		c.PaymentStubAllowUnsigned = true
	})
	id, _ = dev.register("Dina")
	body = `{"invoice":"` + id + `:1","status":"paid"}`
	req = httptest.NewRequest(http.MethodPost, "/webhooks/stub", strings.NewReader(body))
	rr = httptest.NewRecorder()
	dev.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "confirmed", decode(t, rr)["payment_status"])
}

func TestReferenceDataRoutes(t *testing.T) {
	e := newEnv(t)

	rr := e.do(http.MethodPost, "/api/claim-locations", map[string]any{"id": "gym", "name": "Gym", "address": "Main St"}, true)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = e.do(http.MethodPatch, "/api/claim-locations/gym", map[string]any{"active": false}, true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decode(t, rr)["active"])

	rr = e.do(http.MethodPatch, "/api/claim-locations/nowhere", map[string]any{"active": true}, true)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.do(http.MethodGet, "/api/claim-locations?active=yes", nil, true)
	locs := decode(t, rr)["claim_locations"].([]any)
	require.Len(t, locs, 1)
	assert.Equal(t, "hq", locs[0].(map[string]any)["id"])

	rr = e.do(http.MethodPost, "/api/categories", map[string]any{"name": "10K", "price": 800}, true)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = e.do(http.MethodPost, "/api/categories", map[string]any{"name": "bad|name", "price": 1}, true)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(http.MethodGet, "/api/categories", nil, true)
	assert.Len(t, decode(t, rr)["categories"].([]any), 2)
}

func TestExportCSVAndRosterSync(t *testing.T) {
	e := newEnv(t)
	e.register("Ana")
	e.register("Ben")

	rr := e.do(http.MethodGet, "/api/export-link", nil, true)
	link := decode(t, rr)["url"].(string)
	require.True(t, strings.HasPrefix(link, "https://famrun.example.org/export/registrations.csv?token="))

	rr = e.do(http.MethodGet, strings.TrimPrefix(link, "https://famrun.example.org"), nil, false)
	require.Equal(t, http.StatusOK, rr.Code)
	records, err := csv.NewReader(rr.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "registration_id", records[0][0])

	rr = e.do(http.MethodGet, "/export/registrations.csv?token=deadbeef", nil, false)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.do(http.MethodPost, "/api/sheets/sync", nil, true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, e.synced)
}

func TestStubPayPage(t *testing.T) {
	e := newEnv(t)
	rr := e.do(http.MethodGet, "/pay/stub?invoice=REG-1:1&amount=500.00", nil, false)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "REG-1:1")

	rr = e.do(http.MethodGet, "/pay/stub", nil, false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
