package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transcript-sync/internal/capture"
	"transcript-sync/internal/platform/config"
	"transcript-sync/internal/platform/logger"
	"transcript-sync/internal/platform/metrics"
	"transcript-sync/internal/playback"
	"transcript-sync/internal/transcript"
	"transcript-sync/internal/transport"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

// logScroller stands in for a UI: it records which segment would be scrolled to.
type logScroller struct {
	log *slog.Logger
}

func (s logScroller) ScrollIntoView(id string) {
	s.log.Debug("scroll into view", slog.String("segment_id", id))
}

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	segmentsFile := config.GetEnv("SEGMENTS_FILE", "")
	trackDuration := config.GetEnvFloat("TRACK_DURATION", 0)
	transportTick := config.GetEnvDuration("TRANSPORT_TICK", transport.DefaultTick)
	deviceName := config.GetEnv("CAPTURE_DEVICE", "silence")

	cfg := playback.DefaultConfig()
	cfg.LoopPollInterval = config.GetEnvDuration("LOOP_POLL_INTERVAL", cfg.LoopPollInterval)
	cfg.LoopMinWidth = config.GetEnvFloat("LOOP_MIN_WIDTH", cfg.LoopMinWidth)
	cfg.LoopAdjustStep = config.GetEnvFloat("LOOP_ADJUST_STEP", cfg.LoopAdjustStep)
	cfg.SlowRate = config.GetEnvFloat("SLOW_RATE", cfg.SlowRate)
	cfg.IngestPolicy = playback.ParseIngestPolicy(config.GetEnv("SEGMENT_INGEST", "reject"))

	log := logger.New(logLevel, logFormat)

	var preload *transcript.File
	if segmentsFile != "" {
		f, err := transcript.Load(segmentsFile)
		if err != nil {
			log.Error("load segments file", "path", segmentsFile, "error", err)
			os.Exit(1)
		}
		preload = f
		if trackDuration <= 0 {
			trackDuration = f.TrackEnd()
		}
	}

	met := metrics.New()
	media := transport.NewMemory(trackDuration)
	feed := playback.NewFeed(cfg.IngestPolicy)
	engine := playback.New(media, feed, playback.Options{
		Config:   cfg,
		Device:   capture.FromName(deviceName),
		Player:   capture.LogPlayer{Log: logger.Component(log, "player")},
		Scroller: logScroller{log: logger.Component(log, "ui")},
		Logger:   log,
		Metrics:  met,
	})

	if preload != nil {
		if err := engine.Append(preload.Segments); err != nil {
			log.Error("ingest segments file", "path", segmentsFile, "error", err)
			os.Exit(1)
		}
	}

	ctx, stopMedia := context.WithCancel(context.Background())
	go media.Run(ctx, transportTick)

	h := playback.NewHandler(engine, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			active := 0
			if engine.Snapshot().Loop.Polling {
				active = 1
			}
			met.SetLoopTimersActive(active)
		}).ServeHTTP(w, r)
	})
	h.Mount(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"engine_id", engine.ID(),
		"segments", feed.Len(),
		"track_duration", trackDuration,
		"capture_device", deviceName,
		"segment_ingest", cfg.IngestPolicy.String(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	stopMedia()
	if err := engine.Close(); err != nil {
		log.Warn("engine close", "error", err)
	}

	log.Info("server stopped")
}
