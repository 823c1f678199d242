/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires the playback stack together: catalog, metadata,
// mixing engine, scheduler, folder ingestion, and the HTTP surfaces.
package server

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/eventdeck/eventdeck/internal/config"
	"github.com/eventdeck/eventdeck/internal/engine"
	"github.com/eventdeck/eventdeck/internal/events"
	"github.com/eventdeck/eventdeck/internal/ingest"
	"github.com/eventdeck/eventdeck/internal/library"
	"github.com/eventdeck/eventdeck/internal/logbuffer"
	"github.com/eventdeck/eventdeck/internal/metadata"
	"github.com/eventdeck/eventdeck/internal/scheduler"
	"github.com/eventdeck/eventdeck/internal/telemetry"
	"github.com/eventdeck/eventdeck/internal/trigger"
)

// Server composes the playback stack and owns its lifecycle.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger

	bus       *events.Bus
	metrics   *telemetry.Metrics
	library   *library.Library
	history   *library.History
	resolver  *metadata.Resolver
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	scanner   *ingest.Scanner
	watcher   *ingest.Watcher

	httpServer    *http.Server
	metricsServer *http.Server

	cancelWorkers context.CancelFunc
	closers       []func() error
}

// New constructs the server and wires dependencies. logBuf may be nil
// when log capture is off.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		bus:     events.NewBus(),
		metrics: telemetry.New(),
	}

	if err := s.initDependencies(); err != nil {
		s.Close()
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	// No blanket timeout: the now-playing websocket is long-lived.

	triggers, err := s.loadTriggerMap()
	if err != nil {
		s.Close()
		return nil, err
	}
	api := trigger.NewServer(s, triggers, s.library.Playlists, s.bus, s.metrics, logBuf, logger)
	router.Mount("/", api.Router())

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.metricsServer = &http.Server{
		Addr:              cfg.MetricsBind,
		Handler:           s.metrics.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	s.startBackgroundWorkers()
	return s, nil
}

func (s *Server) initDependencies() error {
	if err := os.MkdirAll(s.cfg.MediaRoot, 0o755); err != nil {
		return fmt.Errorf("create media root %s: %w", s.cfg.MediaRoot, err)
	}
	s.logger.Info().Str("path", s.cfg.MediaRoot).Msg("media root ready")

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	s.library = library.New(rng, s.logger)
	s.history = library.NewHistory()
	s.resolver = metadata.NewResolver(metadata.NewExtractor(s.logger), s.logger)

	var sink engine.Sink
	if s.cfg.EngineOutputDisabled {
		sink = &engine.NullSink{}
		s.logger.Warn().Msg("audio output disabled, running silent")
	} else {
		sink = &engine.SpeakerSink{}
	}
	s.engine = engine.New(sink, engine.Options{
		Crossfade:            s.cfg.Crossfade(),
		NormalizationEnabled: s.cfg.NormalizationEnabled,
		TargetLoudnessDB:     s.cfg.TargetLoudnessDB,
		Volume:               s.cfg.Volume,
		OnCrossfade:          s.metrics.Crossfades.Inc,
	}, s.logger)
	s.DeferClose(s.engine.Close)
	if !s.engine.Available() {
		s.logger.Warn().Msg("audio device unavailable, playback commands will fail until restart")
	}

	s.scheduler = scheduler.New(s.library, s.history, s.resolver, enginePlayer{s.engine},
		s.bus, s.metrics, scheduler.Options{
			RetryCap:            s.cfg.RetryCap,
			PreloadNextMetadata: s.cfg.PreloadNextMetadata,
		}, s.logger)

	s.scanner = ingest.NewScanner(s.cfg.MediaRoot, s.library, s.logger)
	if err := s.scanner.ScanAll(); err != nil {
		return fmt.Errorf("scan media root: %w", err)
	}
	if def := s.library.Default(); def != "" {
		s.logger.Info().Str("playlist", def).Strs("playlists", s.library.Playlists()).Msg("catalog ready")
	} else {
		s.logger.Warn().Msg("no playlists found under media root")
	}

	if s.cfg.WatchLibrary {
		watcher, err := ingest.NewWatcher(s.scanner, s.logger)
		if err != nil {
			return fmt.Errorf("watch media root: %w", err)
		}
		s.watcher = watcher
	}
	return nil
}

func (s *Server) loadTriggerMap() (*trigger.Map, error) {
	if s.cfg.TriggerMapPath == "" {
		return trigger.NewMap(nil), nil
	}
	triggers, err := trigger.LoadMap(s.cfg.TriggerMapPath)
	if err != nil {
		return nil, fmt.Errorf("load trigger map %s: %w", s.cfg.TriggerMapPath, err)
	}
	return triggers, nil
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelWorkers = cancel
	if s.watcher != nil {
		go s.watcher.Run(ctx)
	}
}

// HTTPServer returns the trigger/API server for the caller to run.
func (s *Server) HTTPServer() *http.Server { return s.httpServer }

// MetricsServer returns the Prometheus server for the caller to run.
func (s *Server) MetricsServer() *http.Server { return s.metricsServer }

// Start begins unattended playback from the default playlist.
func (s *Server) Start(ctx context.Context) {
	if s.library.Default() == "" {
		return
	}
	if err := s.scheduler.PlayNext(ctx); err != nil {
		s.logger.Error().Err(err).Msg("initial playback failed")
	}
}

// DeferClose registers a cleanup hook run on Close, LIFO.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close stops workers and releases resources.
func (s *Server) Close() error {
	if s.cancelWorkers != nil {
		s.cancelWorkers()
	}
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// enginePlayer bridges the engine's concrete buffer type to the
// scheduler's player interface.
type enginePlayer struct {
	e *engine.Engine
}

func (p enginePlayer) LoadTrack(src library.ByteSource) (scheduler.TrackBuffer, error) {
	return p.e.LoadTrack(src)
}

func (p enginePlayer) PlayTrack(buf scheduler.TrackBuffer, offset time.Duration) error {
	b, ok := buf.(*engine.Buffer)
	if !ok {
		return fmt.Errorf("unexpected buffer type %T", buf)
	}
	return p.e.PlayTrack(b, offset)
}

func (p enginePlayer) OnTrackEnd(fn func()) { p.e.OnTrackEnd(fn) }

func (p enginePlayer) Stop() { p.e.Stop() }
