package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/bobarin/reelforge/internal/services"
	"github.com/bobarin/reelforge/internal/store"
	"github.com/bobarin/reelforge/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Planner produces a storyboard from uploaded media.
type Planner interface {
	Plan(ctx context.Context, req services.PlanRequest) (*models.Storyboard, error)
}

// Editor applies a chat edit. It always returns a usable storyboard.
type Editor interface {
	Edit(ctx context.Context, sb *models.Storyboard, message string) *services.EditResult
}

// Dispatcher queues renders.
type Dispatcher interface {
	Submit(task worker.Task) error
}

type Handler struct {
	jobs       store.JobStore
	planner    Planner
	editor     Editor
	dispatcher Dispatcher
	validate   *validator.Validate
	log        logrus.FieldLogger
}

func NewHandler(jobs store.JobStore, planner Planner, editor Editor, dispatcher Dispatcher, log logrus.FieldLogger) *Handler {
	return &Handler{
		jobs:       jobs,
		planner:    planner,
		editor:     editor,
		dispatcher: dispatcher,
		validate:   validator.New(),
		log:        log.WithField("component", "api"),
	}
}

// decode reads and validates a JSON body, writing the error response itself.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			respondError(w, http.StatusBadRequest, strings.Join(formatValidationErrors(verrs), ", "))
			return false
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// Analyze handles POST /v1/analyze
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if h.planner == nil {
		respondError(w, http.StatusServiceUnavailable, "Analysis is not configured")
		return
	}

	sb, err := h.planner.Plan(r.Context(), services.PlanRequest{
		MediaPaths:     req.MediaPaths,
		Style:          req.Style,
		TargetDuration: req.Duration,
		AspectRatio:    req.AspectRatio,
		UseMusic:       req.UseMusic,
		UseVoiceover:   req.UseVoiceover,
		MusicStyle:     req.MusicStyle,
	})
	if err != nil {
		h.log.WithError(err).Error("Storyboard planning failed")
		respondError(w, http.StatusInternalServerError, "Failed to analyze media")
		return
	}
	respondJSON(w, http.StatusOK, sb)
}

// Render handles POST /v1/render
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	var req models.RenderRequest
	if !h.decode(w, r, &req) {
		return
	}

	job := models.NewJob(uuid.NewString(), req.Storyboard)
	if err := h.jobs.Create(r.Context(), job); err != nil {
		h.log.WithError(err).Error("Failed to create job")
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	err := h.dispatcher.Submit(worker.Task{
		JobID:      job.ID,
		Storyboard: req.Storyboard,
		Media:      req.Media,
	})
	if err != nil {
		h.log.WithError(err).WithField("job_id", job.ID).Warn("Render not accepted")
		msg := fmt.Sprintf("render not accepted: %v", err)
		h.jobs.Update(r.Context(), job.ID, func(j *models.Job) error {
			j.Status = models.JobStatusFailed
			j.ErrorMessage = &msg
			return nil
		})
		respondError(w, http.StatusServiceUnavailable, "Render queue is unavailable, try again later")
		return
	}

	respondJSON(w, http.StatusAccepted, models.RenderResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := h.jobs.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondJSON(w, http.StatusNotFound, models.RenderResponse{
			JobID:  id,
			Status: models.JobStatusUnknown,
		})
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("job_id", id).Error("Failed to load job")
		respondError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// ChatEdit handles POST /v1/chat/edit
func (h *Handler) ChatEdit(w http.ResponseWriter, r *http.Request) {
	var req models.ChatEditRequest
	if !h.decode(w, r, &req) {
		return
	}

	res := h.editor.Edit(r.Context(), req.Storyboard, req.Message)
	respondJSON(w, http.StatusOK, models.ChatEditResponse{
		Explanation: res.Explanation,
		Storyboard:  res.Storyboard,
	})
}

func formatValidationErrors(verrs validator.ValidationErrors) []string {
	out := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msg := fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Namespace(), e.Tag())
		if e.Param() != "" {
			msg = fmt.Sprintf("%s (value: %s)", msg, e.Param())
		}
		out = append(out, msg)
	}
	return out
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
