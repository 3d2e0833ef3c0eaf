package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/eyereview/gazepipe/internal/analytics"
	"github.com/eyereview/gazepipe/internal/annotate"
	"github.com/eyereview/gazepipe/internal/config"
	"github.com/eyereview/gazepipe/internal/gaze"
	"github.com/eyereview/gazepipe/internal/scroll"
	"github.com/eyereview/gazepipe/internal/session"
	"github.com/eyereview/gazepipe/internal/source"
	"github.com/eyereview/gazepipe/internal/storage"
)

// hostViewer simulates the host time-series viewer: it owns the viewport
// and applies the scroll controller's advance requests back into the
// session. A real deployment replaces this with the embedding viewer.
type hostViewer struct {
	base gaze.ViewportContext
	sess *session.Session
}

func (h *hostViewer) AdvanceWindow(newStart float64) {
	v := h.base
	v.TimeWindowStart = newStart
	h.sess.UpdateViewport(v)
	log.Debug().Float64("window_start", newStart).Msg("Viewport advanced")
}

// countingRecorder feeds the engine's analytics into both the ClickHouse
// recorder and the live session counters. Both sides tolerate being nil.
type countingRecorder struct {
	rec *storage.Recorder
	agg *analytics.Aggregator
}

func (c countingRecorder) RecordFixation(fix gaze.Fixation, quality float64, accepted bool) {
	c.rec.RecordFixation(fix, quality, accepted)
}

func (c countingRecorder) RecordDecision(d gaze.AnnotationDecision) {
	c.agg.CountDecision()
	c.rec.RecordDecision(d)
}

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	_ = godotenv.Load()

	// Load config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/pipeline.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}
	if cfg.Session.ID == "" {
		cfg.Session.ID = uuid.New().String()
	}

	log.Info().
		Str("session_id", cfg.Session.ID).
		Str("source", cfg.Source.Kind).
		Float64("total_duration_sec", cfg.Session.TotalDurationSec).
		Msg("Configuration loaded")

	// Initialize ClickHouse analytics sink (optional)
	var ch *storage.ClickHouse
	var recorder *storage.Recorder
	if cfg.ClickHouse.Addr != "" {
		ch, err = storage.NewClickHouse(cfg.ClickHouse)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to ClickHouse")
		}
		defer ch.Close()
		recorder = storage.NewRecorder(ch, cfg.Session.ID, cfg.Batch)
		log.Info().Msg("Connected to ClickHouse")
	}

	// Live session counters (Redis optional inside)
	agg := analytics.NewAggregator(ch, cfg.Redis, cfg.Session.ID)
	defer agg.Close()

	// Outbound decision publisher (optional)
	publisher := annotate.NewKafkaPublisher(cfg.Kafka)

	src, err := source.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create sample source")
	}

	var pub annotate.Publisher
	if publisher != nil {
		pub = publisher
		defer publisher.Close()
	}
	engine := annotate.NewEngine(
		cfg.Annotation,
		cfg.Session.TotalDurationSec,
		annotate.NewBaselineAnalyzer(),
		pub,
		countingRecorder{rec: recorder, agg: agg},
	)

	viewer := &hostViewer{base: cfg.Viewport.Snapshot()}
	ctrl := scroll.NewController(cfg.Scroll, viewer, cfg.Viewport.WindowSec, cfg.Session.TotalDurationSec)

	sess := session.New(cfg, src, engine, ctrl, agg)
	viewer.sess = sess
	sess.UpdateViewport(viewer.base)

	ctx, cancel := context.WithCancel(context.Background())
	sess.Start(ctx)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutting down...")
	case <-sess.Done():
		if err := sess.Err(); err != nil {
			log.Error().Err(err).Msg("Session ended on hardware loss")
		} else {
			log.Info().Msg("Session ended")
		}
	}

	cancel()
	sess.Stop()

	stats := sess.Stats()
	agg.SetCompletedWindows(stats.ScrollProgress.ElapsedWindows)
	log.Info().
		Uint64("samples", stats.SamplesTotal).
		Uint64("passed", stats.SamplesPassed).
		Uint64("queue_drops", stats.QueueDrops).
		Uint64("fixations", stats.Fixations).
		Str("quality", stats.Quality.String()).
		Msg("Pipeline totals")

	recorder.Stop()
	if err := agg.FlushSession(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to flush session summary")
	}

	log.Info().Msg("Shutdown complete")
}
