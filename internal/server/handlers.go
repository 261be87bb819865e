package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nafauto/api/schemas"
	"github.com/xkilldash9x/nafauto/internal/automation"
)

// Submitter runs a submission request.
type Submitter interface {
	Run(ctx context.Context, req automation.Request) (schemas.SubmissionOutcome, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FillFormRequest is the body of a form submission request. Field names
// match the operator UI.
type FillFormRequest struct {
	FormURL     string   `json:"formsUrl"`
	SelectedIDs []string `json:"atendimentosSelecionados,omitempty"`
}

// FillFormResponse is a batch outcome plus how the UI should present it.
type FillFormResponse struct {
	schemas.SubmissionOutcome
	Level automation.Level `json:"level"`
}

// ErrorResponse is returned when a request is rejected before any batch runs.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

const healthTimeout = 5 * time.Second

// Handlers serves the automation API.
type Handlers struct {
	log       *zap.Logger
	submitter Submitter
	db        Pinger

	inflight sync.WaitGroup
}

// lifetimeKey carries the serving context into request contexts.
type lifetimeKey struct{}

// detach returns a context that outlives a client disconnect but is still
// canceled when the server that accepted r shuts down.
func detach(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	lifetime, ok := r.Context().Value(lifetimeKey{}).(context.Context)
	if !ok {
		return ctx, cancel
	}
	stop := context.AfterFunc(lifetime, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Wait blocks until every in-flight submission has returned.
func (h *Handlers) Wait() {
	h.inflight.Wait()
}

// NewHandlers creates the API handlers. db may be nil.
func NewHandlers(logger *zap.Logger, submitter Submitter, db Pinger) *Handlers {
	return &Handlers{
		log:       logger.Named("handlers"),
		submitter: submitter,
		db:        db,
	}
}

// RegisterRoutes mounts the API on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleHealthCheck)
	r.Route("/api/forms", func(r chi.Router) {
		r.Post("/preencher", h.HandleFillForm)
	})
}

// HandleHealthCheck answers OK when the database responds.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.log.Warn("Health check failed.", zap.Error(err))
			h.respondWithError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HandleFillForm copies the selected records into the given form.
func (h *Handlers) HandleFillForm(w http.ResponseWriter, r *http.Request) {
	var req FillFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	h.log.Info("Form submission requested.",
		zap.String("form_url", req.FormURL),
		zap.Int("selected", len(req.SelectedIDs)))

	h.inflight.Add(1)
	defer h.inflight.Done()

	// A client disconnect must not stop a batch halfway through a form.
	ctx, cancel := detach(r)
	defer cancel()
	outcome, err := h.submitter.Run(ctx, automation.Request{FormURL: req.FormURL, RecordIDs: req.SelectedIDs})
	if err != nil {
		switch {
		case errors.Is(err, automation.ErrInvalidRequest):
			h.respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, automation.ErrNoRecords):
			h.respondWithError(w, http.StatusNotFound, "No records to process.")
		case errors.Is(err, automation.ErrBatchInProgress):
			h.respondWithError(w, http.StatusConflict, "Another submission is already running. Try again when it finishes.")
		default:
			h.log.Error("Submission request failed.", zap.Error(err))
			h.respondWithError(w, http.StatusInternalServerError, "Internal error while preparing the submission.")
		}
		return
	}

	ack := automation.Report(outcome)
	h.respondJSON(w, ack.StatusCode, FillFormResponse{SubmissionOutcome: ack.Outcome, Level: ack.Level})
}

func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, ErrorResponse{Status: "error", Message: message})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
