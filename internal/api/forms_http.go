package api

import (
	"net/http"
	"strings"
	"time"

	"retreat/internal/models"

	"github.com/go-chi/chi/v5"
)

type submissionResponse struct {
	Reference string    `json:"reference"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *HTTPServer) writeSubmission(w http.ResponseWriter, sub *models.FormSubmission, replayed bool) {
	code := http.StatusCreated
	if replayed {
		w.Header().Set(replayedHeader, "true")
		code = http.StatusOK
	}
	writeJSON(w, code, submissionResponse{Reference: sub.Reference, Kind: sub.Kind, CreatedAt: sub.CreatedAt})
}

func (s *HTTPServer) handleDamageReport(w http.ResponseWriter, r *http.Request) {
	var report models.DamageReport
	if !decodeJSON(w, r, &report) {
		return
	}
	sub, replayed, err := s.deps.Forms.SubmitDamageReport(r.Context(), &report, r.Header.Get(idempotencyHeader))
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	s.writeSubmission(w, sub, replayed)
}

func (s *HTTPServer) handleLandAllocation(w http.ResponseWriter, r *http.Request) {
	var app models.LandAllocation
	if !decodeJSON(w, r, &app) {
		return
	}
	sub, replayed, err := s.deps.Forms.SubmitLandAllocation(r.Context(), &app, r.Header.Get(idempotencyHeader))
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	s.writeSubmission(w, sub, replayed)
}

func (s *HTTPServer) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := s.deps.Forms.GetSubmission(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *HTTPServer) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	list, err := s.deps.Forms.ListSubmissions(r.Context(), strings.TrimSpace(r.URL.Query().Get("kind")), int(limit))
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": list})
}

func (s *HTTPServer) handleCreateDonation(w http.ResponseWriter, r *http.Request) {
	var req models.DonationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	intent, err := s.deps.Donations.CreateDonation(r.Context(), &req, r.Header.Get(idempotencyHeader))
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

func (s *HTTPServer) handleConfirmDonation(w http.ResponseWriter, r *http.Request) {
	var req models.DonationConfirm
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := s.deps.Donations.ConfirmDonation(r.Context(), req.PaymentIntentID)
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"reference":       d.Reference,
		"paymentIntentId": d.PaymentIntentID,
		"status":          d.Status,
	})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if !decodeJSON(w, r, &creds) {
		return
	}
	tok, err := s.deps.Members.Login(r.Context(), &creds)
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *HTTPServer) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Members.GetProfile(r.Context(), memberIDFrom(r.Context()))
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var p models.Profile
	if !decodeJSON(w, r, &p) {
		return
	}
	saved, err := s.deps.Members.UpdateProfile(r.Context(), memberIDFrom(r.Context()), &p)
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
