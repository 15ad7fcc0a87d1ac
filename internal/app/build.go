// Package app assembles the token service and the voice worker from configuration.
package app

import (
	"github.com/rs/zerolog"

	"github.com/ent0n29/voiceagent/internal/config"
	"github.com/ent0n29/voiceagent/internal/httpapi"
	"github.com/ent0n29/voiceagent/internal/observability"
	"github.com/ent0n29/voiceagent/internal/pipeline"
	"github.com/ent0n29/voiceagent/internal/room"
	"github.com/ent0n29/voiceagent/internal/session"
	"github.com/ent0n29/voiceagent/internal/token"
	"github.com/ent0n29/voiceagent/internal/worker"
)

func Issuer(cfg config.Config) *token.Issuer {
	return token.NewIssuer(token.Config{
		APIKey:    cfg.LiveKitAPIKey,
		APISecret: cfg.LiveKitAPISecret,
		Room:      cfg.Room,
	})
}

type TokenService struct {
	Config  config.Config
	API     *httpapi.TokenServer
	Issuer  *token.Issuer
	Metrics *observability.Metrics
}

// BuildTokenService never fails on missing keys; requests report them instead.
func BuildTokenService(cfg config.Config, logger zerolog.Logger) *TokenService {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	issuer := Issuer(cfg)
	if !issuer.Configured() {
		logger.Warn().Msg("LIVEKIT_API_KEY/LIVEKIT_API_SECRET not set; token requests will fail")
	}
	return &TokenService{
		Config:  cfg,
		API:     httpapi.NewTokenServer(issuer, metrics, logger),
		Issuer:  issuer,
		Metrics: metrics,
	}
}

type WorkerService struct {
	Config  config.Config
	API     *httpapi.WorkerServer
	Worker  *worker.Worker
	Jobs    *session.Manager
	Metrics *observability.Metrics
}

// BuildWorker wires the job manager, a per-job pipeline composer and the
// LiveKit connector. A connector can be injected for tests.
func BuildWorker(cfg config.Config, connector room.Connector, logger zerolog.Logger) *WorkerService {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	issuer := Issuer(cfg)
	if connector == nil {
		connector = room.NewLiveKitConnector(room.LiveKitConfig{
			URL:           cfg.LiveKitURL,
			AgentIdentity: cfg.AgentIdentity,
		}, issuer, logger)
	}

	jobs := session.NewManager(cfg.SessionRetention)
	jobs.SetExpireHook(func(_ *session.Job) {
		metrics.SessionEvent("expired")
	})

	sel := Selection(cfg)
	compose := func() (*pipeline.Pipeline, error) {
		return pipeline.NewComposer(sel, pipeline.Builders{}, logger).Compose()
	}

	w := worker.New(worker.Config{
		AgentIdentity: cfg.AgentIdentity,
		DefaultRoom:   cfg.Room,
		AutoJoin:      cfg.AgentAutoJoin,
		Persona:       Persona(cfg),
	}, jobs, compose, connector, metrics, logger)

	api := httpapi.NewWorkerServer(httpapi.WorkerConfig{
		DefaultRoom: cfg.Room,
		APIKey:      cfg.LiveKitAPIKey,
		APISecret:   cfg.LiveKitAPISecret,
	}, w, metrics, logger)

	return &WorkerService{
		Config:  cfg,
		API:     api,
		Worker:  w,
		Jobs:    jobs,
		Metrics: metrics,
	}
}
