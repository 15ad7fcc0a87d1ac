package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"
	"github.com/rs/zerolog"

	"github.com/ent0n29/voiceagent/internal/observability"
	"github.com/ent0n29/voiceagent/internal/session"
	"github.com/ent0n29/voiceagent/internal/worker"
)

// Dispatcher is the part of the worker the control API drives.
type Dispatcher interface {
	Dispatch(room, source string) (*session.Job, error)
	Say(ctx context.Context, jobID, text string) error
	Stop(jobID string) error
	HandleWebhookEvent(event *livekit.WebhookEvent) (*session.Job, error)
	Jobs() *session.Manager
}

type WorkerConfig struct {
	DefaultRoom string
	// APIKey and APISecret verify LiveKit webhook signatures. Without them
	// every webhook is rejected.
	APIKey    string
	APISecret string
}

type WorkerServer struct {
	cfg     WorkerConfig
	worker  Dispatcher
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewWorkerServer(cfg WorkerConfig, w Dispatcher, metrics *observability.Metrics, logger zerolog.Logger) *WorkerServer {
	return &WorkerServer{
		cfg:     cfg,
		worker:  w,
		metrics: metrics,
		logger:  logger.With().Str("component", "worker_api").Logger(),
	}
}

func (s *WorkerServer) Router() http.Handler {
	r := newRouter()
	r.Get("/readyz", s.handleReady)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Post("/v1/jobs", s.handleCreateJob)
	r.Get("/v1/jobs", s.handleListJobs)
	r.Get("/v1/jobs/{id}", s.handleGetJob)
	r.Post("/v1/jobs/{id}/say", s.handleSay)
	r.Post("/v1/jobs/{id}/stop", s.handleStopJob)
	r.Post("/livekit/webhook", s.handleWebhook)
	return r
}

func (s *WorkerServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ready",
		"active_jobs": s.worker.Jobs().ActiveCount(),
	})
}

// handlePerfLatency serves rolling stage percentiles; without metrics the window is empty.
func (s *WorkerServer) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.SnapshotTurnStages())
}

type createJobRequest struct {
	Room string `json:"room"`
}

func (s *WorkerServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	room := strings.TrimSpace(req.Room)
	if room == "" {
		room = s.cfg.DefaultRoom
	}

	job, err := s.worker.Dispatch(room, "api")
	switch {
	case errors.Is(err, session.ErrRoomBusy):
		respondError(w, http.StatusConflict, "room_busy", err.Error())
		return
	case errors.Is(err, worker.ErrShuttingDown):
		respondError(w, http.StatusServiceUnavailable, "shutting_down", err.Error())
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, "invalid_job", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, job)
}

func (s *WorkerServer) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"jobs": s.worker.Jobs().List()})
}

func (s *WorkerServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.worker.Jobs().Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "job_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, job)
}

type sayRequest struct {
	Text string `json:"text"`
}

func (s *WorkerServer) handleSay(w http.ResponseWriter, r *http.Request) {
	var req sayRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "missing_text", "text is required")
		return
	}

	err := s.worker.Say(r.Context(), chi.URLParam(r, "id"), req.Text)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]any{"status": "spoken"})
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "job_not_found", err.Error())
	case errors.Is(err, session.ErrSessionClosed), errors.Is(err, worker.ErrNotSpeaking):
		respondError(w, http.StatusConflict, "session_not_active", err.Error())
	default:
		respondError(w, http.StatusBadGateway, "say_failed", err.Error())
	}
}

func (s *WorkerServer) handleStopJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.worker.Stop(id); err != nil {
		respondError(w, http.StatusNotFound, "job_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "status": "stopping"})
}

func (s *WorkerServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.APIKey == "" || s.cfg.APISecret == "" {
		respondError(w, http.StatusUnauthorized, "webhook_unverifiable", "livekit api key and secret are not configured")
		return
	}
	event, err := webhook.ReceiveWebhookEvent(r, auth.NewSimpleKeyProvider(s.cfg.APIKey, s.cfg.APISecret))
	if err != nil {
		s.logger.Warn().Err(err).Msg("webhook rejected")
		respondError(w, http.StatusUnauthorized, "invalid_webhook", err.Error())
		return
	}

	job, err := s.worker.HandleWebhookEvent(event)
	if err != nil {
		s.logger.Error().Err(err).Str("event", event.GetEvent()).Msg("webhook dispatch failed")
		respondError(w, http.StatusInternalServerError, "dispatch_failed", err.Error())
		return
	}
	if job == nil {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ignored", "event": event.GetEvent()})
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}
