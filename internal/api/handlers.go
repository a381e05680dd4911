// File: internal/api/handlers.go
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/job"
	"github.com/xkilldash9x/webpilot/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes caps a job submission body.
const maxBodyBytes = 64 << 10

// JobCreator accepts new jobs. *job.Dispatcher satisfies it.
type JobCreator interface {
	Create(ctx context.Context, goal, startingURL string) (job.Ticket, error)
}

// CreateJobRequest is the body of POST /api/jobs.
type CreateJobRequest struct {
	Goal        string `json:"goal"`
	StartingURL string `json:"startingUrl"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// Handlers serves the job endpoints.
type Handlers struct {
	log   *zap.Logger
	jobs  JobCreator
	store store.JobStore
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(logger *zap.Logger, jobs JobCreator, st store.JobStore) *Handlers {
	return &Handlers{
		log:   logger.Named("api_handlers"),
		jobs:  jobs,
		store: st,
	}
}

// RegisterRoutes mounts the job API on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/jobs", func(r chi.Router) {
		r.Post("/", h.HandleCreateJob)
		r.Get("/", h.HandleListJobs)
		r.Get("/{jobID}", h.HandleGetJob)
	})
}

// HandleHealthCheck reports that the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleCreateJob validates the submission and dispatches a job. The reply
// carries the ticket only; clients poll GET /api/jobs/{id} for progress.
func (h *Handlers) HandleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body.", "")
		return
	}

	ticket, err := h.jobs.Create(r.Context(), req.Goal, req.StartingURL)
	if err != nil {
		var verr *job.ValidationError
		switch {
		case errors.As(err, &verr):
			h.respondWithError(w, http.StatusBadRequest, verr.Error(), verr.Field)
		case errors.Is(err, job.ErrShuttingDown):
			h.respondWithError(w, http.StatusServiceUnavailable, "Server is shutting down.", "")
		default:
			h.log.Error("Failed to create job", zap.Error(err))
			h.respondWithError(w, http.StatusInternalServerError, "Failed to create job.", "")
		}
		return
	}

	h.log.Info("Job accepted", zap.Int64("job_id", ticket.JobID))
	h.respondJSON(w, http.StatusAccepted, ticket)
}

// HandleListJobs returns every job, newest first.
func (h *Handlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.store.ListAll(r.Context())
	if err != nil {
		h.log.Error("Failed to list jobs", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "Failed to list jobs.", "")
		return
	}
	h.respondJSON(w, http.StatusOK, jobs)
}

// HandleGetJob returns the full record of one job.
func (h *Handlers) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
	if err != nil || id <= 0 {
		h.respondWithError(w, http.StatusBadRequest, "Job ID must be a positive integer.", "")
		return
	}

	j, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			h.respondWithError(w, http.StatusNotFound, "Job not found.", "")
			return
		}
		h.log.Error("Failed to load job", zap.Int64("job_id", id), zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "Failed to load job.", "")
		return
	}
	h.respondJSON(w, http.StatusOK, j)
}

func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message, field string) {
	h.respondJSON(w, statusCode, ErrorResponse{Error: message, Field: field})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
