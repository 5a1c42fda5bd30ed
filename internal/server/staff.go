package server

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"famrun/internal/apperr"
	"famrun/internal/kitclaim"
	"famrun/internal/models"
	"famrun/internal/session"
	"famrun/internal/store"
	"famrun/internal/util"
)

func (s *Server) listRegistrations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RegistrationFilter{Category: strings.TrimSpace(q.Get("category"))}
	if v := q.Get("payment_status"); v != "" {
		st, ok := models.ParsePaymentStatus(v)
		if !ok {
			writeError(w, apperr.New(apperr.CodeInvalidStatus, "unknown payment status "+v))
			return
		}
		filter.PaymentStatus = st
	}
	if v := q.Get("kit_claimed"); v != "" {
		claimed := util.NormalizeBool(v)
		filter.KitClaimed = &claimed
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, apperr.New(apperr.CodeInvalidInput, "limit must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}
	regs, err := s.Registrations.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"registrations": viewRegistrations(regs)})
}

func (s *Server) getRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := s.Registrations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewRegistration(reg))
}

type transitionRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.Payments.Transition(r.Context(), r.PathValue("id"), req.Status, req.Notes, session.ActorID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	out := map[string]any{
		"registration": viewRegistration(res.Registration),
		"no_op":        res.NoOp,
	}
	if res.History != nil {
		out["history"] = viewHistory(*res.History)
	}
	if res.Receipt != nil {
		out["receipt"] = viewReceipt(*res.Receipt)
	}
	var warnings []errorDetail
	for _, e := range []error{res.ReceiptErr, res.NotifyErr} {
		if e != nil {
			warnings = append(warnings, errorDetail{Code: apperr.CodeOf(e), Message: e.Error()})
		}
	}
	if len(warnings) > 0 {
		out["warnings"] = warnings
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	hist, err := s.Payments.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]historyView, 0, len(hist))
	for _, h := range hist {
		out = append(out, viewHistory(h))
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

func (s *Server) getReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.Payments.Receipt(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewReceipt(receipt))
}

func (s *Server) issueReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.Payments.IssueReceipt(r.Context(), r.PathValue("id"), session.ActorID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewReceipt(receipt))
}

type scanRequest struct {
	Payload string `json:"payload"`
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.Registrations.Lookup(r.Context(), req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewLookup(res))
}

type claimRequest struct {
	Payload       string `json:"payload"`
	ActualClaimer string `json:"actual_claimer"`
	LocationID    string `json:"location_id"`
	Notes         string `json:"notes"`
}

func (s *Server) claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	reg, err := s.Claims.Claim(r.Context(), req.Payload, kitclaim.ClaimInput{
		ActualClaimer: req.ActualClaimer,
		LocationID:    req.LocationID,
		Notes:         req.Notes,
	}, session.ActorID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewRegistration(reg))
}

type bulkClaimRequest struct {
	RegistrationIDs []string `json:"registration_ids"`
	ActualClaimer   string   `json:"actual_claimer"`
	LocationID      string   `json:"location_id"`
	Notes           string   `json:"notes"`
}

// bulkClaim always reports the completed count; a partial batch answers with
// the failure's status and the count alongside the error.
func (s *Server) bulkClaim(w http.ResponseWriter, r *http.Request) {
	var req bulkClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.RegistrationIDs) == 0 {
		writeError(w, apperr.New(apperr.CodeInvalidInput, "registration_ids is empty"))
		return
	}
	n, err := s.Claims.BulkClaim(r.Context(), req.RegistrationIDs, kitclaim.ClaimInput{
		ActualClaimer: req.ActualClaimer,
		LocationID:    req.LocationID,
		Notes:         req.Notes,
	}, session.ActorID(r.Context()))
	if err != nil {
		code := apperr.CodeOf(err)
		writeJSON(w, apperr.HTTPStatus(code), map[string]any{
			"claimed": n,
			"error":   errorDetail{Code: code, Message: err.Error()},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claimed": n})
}

func (s *Server) unclaim(w http.ResponseWriter, r *http.Request) {
	reg, err := s.Claims.Unclaim(r.Context(), r.PathValue("id"), r.URL.Query().Get("notes"), session.ActorID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewRegistration(reg))
}

func (s *Server) listLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := s.Reference.ListClaimLocations(r.Context(), util.NormalizeBool(r.URL.Query().Get("active")))
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeUnknown, "list claim locations", err))
		return
	}
	out := make([]locationView, 0, len(locs))
	for _, l := range locs {
		out = append(out, viewLocation(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"claim_locations": out})
}

type locationRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Active  *bool  `json:"active"`
}

func (s *Server) putLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Name) == "" {
		writeError(w, apperr.New(apperr.CodeInvalidInput, "id and name are required"))
		return
	}
	loc := models.ClaimLocation{ID: strings.TrimSpace(req.ID), Name: strings.TrimSpace(req.Name), Address: req.Address, Active: true}
	if req.Active != nil {
		loc.Active = *req.Active
	}
	if err := s.Reference.PutClaimLocation(r.Context(), loc); err != nil {
		writeError(w, apperr.Wrap(apperr.CodeUpdateFailed, "save claim location", err))
		return
	}
	stored, err := s.Reference.GetClaimLocation(r.Context(), loc.ID)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeUnknown, "load claim location", err))
		return
	}
	writeJSON(w, http.StatusCreated, viewLocation(stored))
}

type patchLocationRequest struct {
	Active bool `json:"active"`
}

func (s *Server) patchLocation(w http.ResponseWriter, r *http.Request) {
	var req patchLocationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")
	err := s.Reference.SetClaimLocationActive(r.Context(), id, req.Active)
	if err != nil {
		writeError(w, storeErr(err, "claim location "+id))
		return
	}
	loc, err := s.Reference.GetClaimLocation(r.Context(), id)
	if err != nil {
		writeError(w, storeErr(err, "claim location "+id))
		return
	}
	writeJSON(w, http.StatusOK, viewLocation(loc))
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.Reference.ListCategories(r.Context(), util.NormalizeBool(r.URL.Query().Get("active")))
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeUnknown, "list categories", err))
		return
	}
	out := make([]categoryView, 0, len(cats))
	for _, c := range cats {
		out = append(out, viewCategory(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

type categoryRequest struct {
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Active *bool   `json:"active"`
}

func (s *Server) putCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || strings.ContainsAny(name, "|\r\n") || req.Price < 0 {
		writeError(w, apperr.New(apperr.CodeInvalidInput, "category needs a printable name and a non-negative price"))
		return
	}
	cat := models.Category{Name: name, Price: req.Price, Active: true}
	if req.Active != nil {
		cat.Active = *req.Active
	}
	if err := s.Reference.PutCategory(r.Context(), cat); err != nil {
		writeError(w, apperr.Wrap(apperr.CodeUpdateFailed, "save category", err))
		return
	}
	writeJSON(w, http.StatusCreated, viewCategory(cat))
}

func (s *Server) syncRoster(w http.ResponseWriter, r *http.Request) {
	if s.Roster == nil {
		writeError(w, apperr.New(apperr.CodeNotFound, "roster sync is not configured"))
		return
	}
	regs, err := s.Registrations.List(r.Context(), store.RegistrationFilter{})
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Roster.SyncRegistrations(r.Context(), regs); err != nil {
		writeError(w, apperr.Wrap(apperr.CodeUpdateFailed, "sync roster", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"synced": len(regs)})
}

func (s *Server) exportLink(w http.ResponseWriter, r *http.Request) {
	q := url.Values{}
	q.Set("token", util.ExportToken(s.Config.SessionSecret))
	writeJSON(w, http.StatusOK, map[string]any{
		"url": s.Config.PublicURL("/export/registrations.csv?" + q.Encode()),
	})
}

func storeErr(err error, what string) error {
	if apperr.CodeOf(err) != apperr.CodeUnknown {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Wrap(apperr.CodeNotFound, what+" not found", err)
	}
	return apperr.Wrap(apperr.CodeUnknown, what, err)
}
