// Package server exposes the registration, payment and kit-claim workflows over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"famrun/internal/apperr"
	"famrun/internal/config"
	"famrun/internal/kitclaim"
	"famrun/internal/notify"
	"famrun/internal/payments"
	"famrun/internal/registrations"
	"famrun/internal/session"
	"famrun/internal/sheets"
	"famrun/internal/store"
)

type Deps struct {
	Config        config.Config
	Log           *zap.Logger
	Registrations *registrations.Service
	Payments      *payments.Service
	Claims        *kitclaim.Service
	Reference     store.ReferenceStore
	Tokens        *session.Tokens
	// Optional collaborators; nil disables the routes or side effects that use them.
	Provider payments.PaymentProvider
	Notifier notify.Notifier
	Roster   sheets.RosterSync
}

type Server struct {
	Deps
}

func New(d Deps) *http.Server {
	return &http.Server{
		Addr:              d.Config.HTTPAddr,
		Handler:           Handler(d),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func Handler(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	s := &Server{Deps: d}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	// Public
	mux.HandleFunc("POST /api/registrations", s.register)
	mux.HandleFunc("GET /api/registrations/{id}/ticket.png", s.ticketPNG)
	mux.HandleFunc("GET /receipts/{number}", s.publicReceipt)
	mux.HandleFunc("POST /webhooks/{provider}", s.webhook)
	mux.HandleFunc("GET /pay/stub", s.stubPayPage)
	mux.HandleFunc("GET /export/registrations.csv", s.exportCSV)

	// Staff
	mux.Handle("GET /api/registrations", s.staff(s.listRegistrations))
	mux.Handle("GET /api/registrations/{id}", s.staff(s.getRegistration))
	mux.Handle("POST /api/registrations/{id}/payment", s.staff(s.transition))
	mux.Handle("GET /api/registrations/{id}/history", s.staff(s.history))
	mux.Handle("GET /api/registrations/{id}/receipt", s.staff(s.getReceipt))
	mux.Handle("POST /api/registrations/{id}/receipt", s.staff(s.issueReceipt))
	mux.Handle("POST /api/tickets/scan", s.staff(s.scan))
	mux.Handle("POST /api/kit-claims", s.staff(s.claim))
	mux.Handle("POST /api/kit-claims/bulk", s.staff(s.bulkClaim))
	mux.Handle("DELETE /api/kit-claims/{id}", s.staff(s.unclaim))
	mux.Handle("GET /api/claim-locations", s.staff(s.listLocations))
	mux.Handle("POST /api/claim-locations", s.staff(s.putLocation))
	mux.Handle("PATCH /api/claim-locations/{id}", s.staff(s.patchLocation))
	mux.Handle("GET /api/categories", s.staff(s.listCategories))
	mux.Handle("POST /api/categories", s.staff(s.putCategory))
	mux.Handle("POST /api/sheets/sync", s.staff(s.syncRoster))
	mux.Handle("GET /api/export-link", s.staff(s.exportLink))

	return s.logRequests(mux)
}

// staff requires a valid bearer session token and puts the session in the request context.
func (s *Server) staff(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, apperr.New(apperr.CodeUnauthenticated, "bearer token required"))
			return
		}
		sess, err := s.Tokens.Verify(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, apperr.Wrap(apperr.CodeUnauthenticated, "invalid session", err))
			return
		}
		next(w, r.WithContext(session.WithSession(r.Context(), sess)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	writeJSON(w, apperr.HTTPStatus(code), errorBody{Error: errorDetail{Code: code, Message: err.Error()}})
}

const maxBody = 1 << 20

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.New(apperr.CodeInvalidInput, "request body too large")
		}
		return apperr.Wrap(apperr.CodeInvalidInput, "invalid JSON body", err)
	}
	return nil
}
