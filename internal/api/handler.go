package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailgate/internal/audience"
	"mailgate/internal/governor"
	"mailgate/internal/metrics"
	"mailgate/internal/models"
	"mailgate/internal/orchestrator"
	"mailgate/internal/worker"
)

const maxRosterRows = 10000

// HistoryStore records dispatched emails and newly seen recipients. Both
// writes feed later sends: the email rows back the sliding-window counts,
// the recipient rows back deduplication.
type HistoryStore interface {
	InsertEmail(ctx context.Context, email *models.Email, state models.SendState) error
	InsertRecipient(ctx context.Context, r *models.Recipient) error
}

type Handler struct {
	Orchestrator *orchestrator.Orchestrator
	Store        HistoryStore
	Jobs         chan<- worker.AudienceJob
	Log          *zap.Logger
}

// SendEmail is the synchronous small-audience path: the response carries
// the full sending status.
func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var email models.Email

	if err := json.NewDecoder(r.Body).Decode(&email); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status, err := h.Orchestrator.SendEmail(r.Context(), &email)

	switch status.State {
	case models.StateSucceeded:
		metrics.EmailsSent.Inc()
	case models.StateFailed, models.StatePartiallyFailed:
		metrics.EmailFailures.Inc()
	}

	if status.State != models.StateFailed && status.State != models.StateNotStarted {
		if dbErr := h.Store.InsertEmail(r.Context(), &email, status.State); dbErr != nil {
			h.Log.Error("failed to record send history", zap.Error(dbErr))
		}
		h.persistNewRecipients(r.Context(), status.Email)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode(status.State, err))
	json.NewEncoder(w).Encode(status)
}

// SendAudience accepts a multipart form with a "roster" CSV and message
// fields, queues the send, and returns 202 with the job id.
func (h *Handler) SendAudience(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	roster, _, err := r.FormFile("roster")
	if err != nil {
		http.Error(w, "roster file is required", http.StatusBadRequest)
		return
	}
	defer roster.Close()

	recipients, err := audience.ParseRecipients(roster, maxRosterRows)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	email := &models.Email{
		Sender:       r.FormValue("sender"),
		Subject:      r.FormValue("subject"),
		HTMLBody:     r.FormValue("html_body"),
		TextBody:     r.FormValue("text_body"),
		IsNewsletter: r.FormValue("is_newsletter") == "true",
		Recipients:   recipients,
	}

	job := worker.AudienceJob{
		ID:         uuid.NewString(),
		Email:      email,
		Recipients: recipients,
		UseBcc:     email.IsNewsletter,
	}

	select {
	case h.Jobs <- job:
	default:
		http.Error(w, "dispatch queue is full", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":     job.ID,
		"recipients": len(recipients),
	})
}

// persistNewRecipients stores the recipients dispatch saw for the first
// time, so the next reconciliation substitutes the persisted row instead
// of inserting a duplicate.
func (h *Handler) persistNewRecipients(ctx context.Context, email *models.Email) {
	if email == nil {
		return
	}
	for i := range email.Recipients {
		rec := &email.Recipients[i]
		if rec.ID != 0 {
			continue
		}
		if err := h.Store.InsertRecipient(ctx, rec); err != nil {
			h.Log.Error("failed to persist recipient",
				zap.String("address", rec.Address),
				zap.Error(err),
			)
		}
	}
}

// statusCode distinguishes "nothing was sent" from "some recipients were
// not reached" from full success.
func statusCode(state models.SendState, err error) int {
	var verr *orchestrator.ValidationError
	var qerr *governor.QuotaExceededError
	var uerr *governor.UnavailableError

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &qerr):
		return http.StatusTooManyRequests
	case errors.As(err, &uerr):
		return http.StatusServiceUnavailable
	}

	switch state {
	case models.StateSucceeded:
		return http.StatusOK
	case models.StatePartiallyFailed:
		return http.StatusMultiStatus
	case models.StateCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
