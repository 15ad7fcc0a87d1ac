// Package worker runs voice sessions as jobs, one per room.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/voiceagent/internal/observability"
	"github.com/ent0n29/voiceagent/internal/pipeline"
	"github.com/ent0n29/voiceagent/internal/room"
	"github.com/ent0n29/voiceagent/internal/session"
	"github.com/livekit/protocol/livekit"
	"github.com/rs/zerolog"
)

var (
	ErrShuttingDown = errors.New("worker is shutting down")
	ErrNotSpeaking  = errors.New("job has no live session")
)

const eventParticipantJoined = "participant_joined"

// ComposeFunc builds a fresh pipeline for each job.
type ComposeFunc func() (*pipeline.Pipeline, error)

type Config struct {
	AgentIdentity string
	// DefaultRoom is the deployment's configured room, logged with every job.
	DefaultRoom     string
	AutoJoin        bool
	Persona         session.Persona
	FarewellTimeout time.Duration
}

type Worker struct {
	cfg       Config
	jobs      *session.Manager
	compose   ComposeFunc
	connector room.Connector
	metrics   *observability.Metrics
	logger    zerolog.Logger

	baseCtx   context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	sessions map[string]*liveSession
}

type liveSession struct {
	cancel context.CancelFunc

	mu     sync.RWMutex
	driver *session.Driver
}

func (l *liveSession) setDriver(d *session.Driver) {
	l.mu.Lock()
	l.driver = d
	l.mu.Unlock()
}

func (l *liveSession) current() *session.Driver {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.driver
}

func New(cfg Config, jobs *session.Manager, compose ComposeFunc, connector room.Connector, metrics *observability.Metrics, logger zerolog.Logger) *Worker {
	if strings.TrimSpace(cfg.AgentIdentity) == "" {
		cfg.AgentIdentity = "voice-agent"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		cfg:       cfg,
		jobs:      jobs,
		compose:   compose,
		connector: connector,
		metrics:   metrics,
		logger:    logger.With().Str("component", "worker").Logger(),
		baseCtx:   ctx,
		cancelAll: cancel,
		sessions:  make(map[string]*liveSession),
	}
}

func (w *Worker) Jobs() *session.Manager { return w.jobs }

// Dispatch starts a session for room. A room with an active job is rejected
// with session.ErrRoomBusy.
func (w *Worker) Dispatch(roomName, source string) (*session.Job, error) {
	roomName = strings.TrimSpace(roomName)
	if roomName == "" {
		return nil, errors.New("room must not be empty")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrShuttingDown
	}
	job, err := w.jobs.Create(roomName, source)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(w.baseCtx)
	live := &liveSession{cancel: cancel}
	w.sessions[job.ID] = live
	w.wg.Add(1)
	go w.run(ctx, job, live)

	w.metrics.SessionEvent("dispatched")
	w.logger.Info().Str("job_id", job.ID).Str("room", roomName).Str("source", source).Msg("job dispatched")
	return job, nil
}

func (w *Worker) run(ctx context.Context, job *session.Job, live *liveSession) {
	defer w.wg.Done()
	defer live.cancel()
	defer func() {
		w.mu.Lock()
		delete(w.sessions, job.ID)
		w.mu.Unlock()
	}()

	logger := w.logger.With().Str("job_id", job.ID).Str("room", job.Room).Logger()
	logger.Info().Str("default_room", w.cfg.DefaultRoom).Str("source", job.Source).Msg("job starting")
	err := w.entrypoint(ctx, job, live, logger)

	ended, endErr := w.jobs.End(job.ID, err)
	if endErr != nil {
		logger.Warn().Err(endErr).Msg("job record missing at end")
		return
	}
	if err != nil {
		w.metrics.SessionEvent("failed")
		logger.Error().Err(err).Msg("job failed")
		return
	}
	logger.Info().Int("turns", ended.Turns).Int("failed_turns", ended.FailedTurns).Msg("job finished")
}

func (w *Worker) entrypoint(ctx context.Context, job *session.Job, live *liveSession, logger zerolog.Logger) error {
	pipe, err := w.compose()
	if err != nil {
		return fmt.Errorf("compose pipeline: %w", err)
	}

	transport, err := w.connector.Connect(ctx, job.Room)
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logger.Debug().Err(err).Msg("close room transport")
		}
	}()

	driver, err := session.NewDriver(session.DriverConfig{
		Pipeline:        pipe,
		Transport:       transport,
		Persona:         w.cfg.Persona,
		Logger:          logger,
		Metrics:         w.metrics,
		FarewellTimeout: w.cfg.FarewellTimeout,
		OnState: func(s session.State) {
			_ = w.jobs.SetState(job.ID, s)
		},
		OnTurn: func(r session.TurnResult) {
			if r.OK || r.Err != nil {
				_ = w.jobs.RecordTurn(job.ID, r.OK)
			}
		},
	})
	if err != nil {
		return err
	}
	live.setDriver(driver)
	return driver.Run(ctx)
}

// Say speaks text in a running job's room without adding it to the conversation.
func (w *Worker) Say(ctx context.Context, jobID, text string) error {
	w.mu.Lock()
	live, ok := w.sessions[jobID]
	w.mu.Unlock()
	if !ok {
		if _, err := w.jobs.Get(jobID); err != nil {
			return err
		}
		return session.ErrSessionClosed
	}
	driver := live.current()
	if driver == nil {
		return ErrNotSpeaking
	}
	return driver.Say(ctx, text)
}

// Stop ends a job. The farewell is still attempted.
func (w *Worker) Stop(jobID string) error {
	w.mu.Lock()
	live, ok := w.sessions[jobID]
	w.mu.Unlock()
	if !ok {
		_, err := w.jobs.Get(jobID)
		return err
	}
	live.cancel()
	return nil
}

// HandleWebhookEvent dispatches a job when a participant other than the
// agent joins a room. It returns a nil job when the event is ignored.
func (w *Worker) HandleWebhookEvent(event *livekit.WebhookEvent) (*session.Job, error) {
	if !w.cfg.AutoJoin || event.GetEvent() != eventParticipantJoined {
		return nil, nil
	}
	identity := event.GetParticipant().GetIdentity()
	if identity == "" || identity == w.cfg.AgentIdentity {
		return nil, nil
	}
	roomName := event.GetRoom().GetName()
	job, err := w.Dispatch(roomName, "webhook")
	if errors.Is(err, session.ErrRoomBusy) {
		w.logger.Debug().Str("room", roomName).Str("participant", identity).Msg("room already has a session")
		return nil, nil
	}
	return job, err
}

// Shutdown cancels every session and waits for the farewells to finish.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cancelAll()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
