package server

import (
	"encoding/csv"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"famrun/internal/apperr"
	"famrun/internal/models"
	"famrun/internal/notify"
	"famrun/internal/registrations"
	"famrun/internal/store"
	"famrun/internal/ticket"
	"famrun/internal/util"
)

type registerRequest struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
	Category   string `json:"category"`
	ShirtSize  string `json:"shirt_size"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	out, err := s.Registrations.Register(r.Context(), registrations.RegisterInput(req))
	if err != nil {
		writeError(w, err)
		return
	}
	reg := out.Registration
	resp := map[string]any{
		"registration":   viewRegistration(reg),
		"ticket_payload": out.Payload,
		"ticket_png_url": s.Config.PublicURL("/api/registrations/" + reg.RegistrationID + "/ticket.png"),
	}

	if s.Provider != nil {
		payURL, invoice, err := s.Provider.CreatePayment(r.Context(), reg, s.Config.PublicURL("/"))
		if err != nil {
			s.Log.Warn("create payment link", zap.String("registration_id", reg.RegistrationID), zap.Error(err))
		} else {
			resp["payment_url"] = payURL
			resp["invoice"] = invoice
		}
	}

	if s.Notifier != nil {
		err := s.Notifier.Notify(r.Context(), notify.Notification{
			Email:           reg.Email,
			ParticipantName: reg.ParticipantName(),
			RegistrationID:  reg.RegistrationID,
			Status:          reg.PaymentStatus,
		})
		if err != nil {
			s.Log.Warn("registration notification failed", zap.String("registration_id", reg.RegistrationID), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) ticketPNG(w http.ResponseWriter, r *http.Request) {
	payload, err := s.Registrations.Ticket(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size > 1024 {
		size = 1024
	}
	png, err := ticket.PNG(payload, size)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeUnknown, "render ticket", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (s *Server) publicReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.Payments.ReceiptByNumber(r.Context(), r.PathValue("number"))
	if err != nil {
		writeError(w, err)
		return
	}
	reg, err := s.Registrations.Get(r.Context(), receipt.RegistrationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"receipt_number":   receipt.ReceiptNumber,
		"registration_id":  reg.RegistrationID,
		"participant_name": reg.ParticipantName(),
		"category":         reg.Category,
		"amount":           reg.Price,
		"payment_date":     util.FormatTime(reg.PaymentDate),
		"generated_at":     util.FormatTime(&receipt.GeneratedAt),
	})
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	if s.Provider == nil || r.PathValue("provider") != s.Provider.Name() {
		writeError(w, apperr.New(apperr.CodeNotFound, "unknown payment provider"))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeInvalidInput, "read webhook body", err))
		return
	}
	headers := map[string]string{}
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}

	// The stub checkout page cannot sign; unsigned posts need an explicit opt-in.
	if headers["x-signature"] == "" && s.Provider.Name() == "stub" && s.Config.PaymentStubAllowUnsigned {
		headers["x-signature"] = util.HMACSHA256Hex(s.Config.PaymentWebhookSecret, string(body))
	}

	ev, res, err := s.Payments.HandleWebhook(r.Context(), s.Provider, body, headers)
	if err != nil {
		s.Log.Warn("webhook failed", zap.String("provider", s.Provider.Name()), zap.Error(err))
		writeError(w, err)
		return
	}
	out := map[string]any{
		"ok":              true,
		"registration_id": ev.RegistrationID,
		"invoice":         ev.Invoice,
		"payment_status":  string(res.Registration.PaymentStatus),
		"no_op":           res.NoOp,
	}
	if res.Receipt != nil {
		out["receipt_number"] = res.Receipt.ReceiptNumber
	}
	writeJSON(w, http.StatusOK, out)
}

var stubPayTmpl = template.Must(template.New("pay").Parse(`<!doctype html><html><head><meta charset="utf-8"><title>Stub Pay</title></head><body>
<h2>FamRun payment (test provider)</h2>
<p>Invoice: {{.Invoice}}</p>
<p>Amount: {{.Amount}}</p>
<button onclick="send('paid')">Pay (paid)</button>
<button onclick="send('cancelled')">Cancel (cancelled)</button>
<pre id="out"></pre>
<script>
async function send(status){
  const body = JSON.stringify({invoice: {{.Invoice}}, status});
  const res = await fetch("/webhooks/stub", {method:"POST", headers: {"Content-Type":"application/json"}, body});
  document.getElementById("out").textContent = await res.text();
}
</script>
</body></html>`))

// stubPayPage is the checkout page behind stub payment links.
func (s *Server) stubPayPage(w http.ResponseWriter, r *http.Request) {
	if s.Provider == nil || s.Provider.Name() != "stub" {
		http.NotFound(w, r)
		return
	}
	invoice := r.URL.Query().Get("invoice")
	if invoice == "" {
		http.Error(w, "invoice required", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = stubPayTmpl.Execute(w, map[string]string{"Invoice": invoice, "Amount": r.URL.Query().Get("amount")})
}

// CSV export (staff link with token = HMAC)
func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token required", http.StatusBadRequest)
		return
	}
	if !util.VerifyExportToken(s.Config.SessionSecret, token) {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}
	regs, err := s.Registrations.List(r.Context(), store.RegistrationFilter{
		PaymentStatus: models.PaymentStatus(r.URL.Query().Get("payment_status")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="registrations.csv"`)
	if err := WriteCSV(w, regs); err != nil {
		s.Log.Warn("write csv export", zap.Error(err))
	}
}

var csvHeader = []string{
	"registration_id", "first_name", "last_name", "email", "phone", "department",
	"category", "shirt_size", "price", "payment_status", "payment_date",
	"kit_claimed", "claimed_at", "actual_claimer", "claim_location_id",
}

func WriteCSV(w io.Writer, regs []models.Registration) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range regs {
		if err := cw.Write([]string{
			r.RegistrationID, r.FirstName, r.LastName, r.Email, r.Phone, r.Department,
			r.Category, r.ShirtSize, ticket.FormatPrice(r.Price), string(r.PaymentStatus), util.FormatTime(r.PaymentDate),
			strconv.FormatBool(r.KitClaimed), util.FormatTime(r.ClaimedAt), r.ActualClaimer, r.ClaimLocationID,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
