package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/voiceagent/internal/app"
	"github.com/ent0n29/voiceagent/internal/config"
	"github.com/ent0n29/voiceagent/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	svc := app.BuildWorker(cfg, nil, logger)
	httpServer := &http.Server{
		Addr:              cfg.WorkerBindAddr,
		Handler:           svc.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	svc.Jobs.StartJanitor(ctx, 30*time.Second)

	logger.Info().
		Str("addr", cfg.WorkerBindAddr).
		Str("livekit_url", cfg.LiveKitURL).
		Str("room", cfg.Room).
		Str("stt", cfg.STTProvider).
		Str("vad", cfg.VADProvider).
		Str("tts", cfg.TTSProvider).
		Str("llm", cfg.LLMProvider).
		Bool("auto_join", cfg.AgentAutoJoin).
		Msg("voice worker starting")

	if cfg.AgentAutoJoin {
		if _, err := svc.Worker.Dispatch(cfg.Room, "startup"); err != nil {
			logger.Error().Err(err).Str("room", cfg.Room).Msg("auto-join failed")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := svc.Worker.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Int("active_jobs", svc.Jobs.ActiveCount()).Msg("sessions did not end in time")
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("voice worker stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}
