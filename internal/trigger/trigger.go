/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package trigger exposes the HTTP control surface: named triggers mapped
// to playlists, transport commands, and a now-playing readout with a
// websocket push channel.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/eventdeck/eventdeck/internal/events"
	"github.com/eventdeck/eventdeck/internal/logbuffer"
	"github.com/eventdeck/eventdeck/internal/scheduler"
	"github.com/eventdeck/eventdeck/internal/telemetry"
)

// Controller is the slice of the scheduler and engine the HTTP surface
// drives.
type Controller interface {
	PlayPlaylist(ctx context.Context, name string) error
	PlayNext(ctx context.Context) error
	Pause()
	Resume() error
	Seek(offset time.Duration) error
	SetVolume(v float64)
	SetCrossfade(d time.Duration)
	SetNormalization(enabled bool)
	ResetHistory(name string)
	SetDefaultPlaylist(name string) error
	ClearLibrary()
	NowPlaying() scheduler.NowPlaying
	Position() time.Duration
	Duration() time.Duration
	IsPlaying() bool
}

// Map binds external trigger names to playlists.
type Map struct {
	mu       sync.RWMutex
	triggers map[string]string
}

// LoadMap reads a YAML trigger mapping: `trigger-name: playlist-name`.
func LoadMap(path string) (*Map, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var triggers map[string]string
	if err := yaml.Unmarshal(raw, &triggers); err != nil {
		return nil, err
	}
	return &Map{triggers: triggers}, nil
}

// NewMap builds a trigger map from an in-memory table.
func NewMap(triggers map[string]string) *Map {
	if triggers == nil {
		triggers = make(map[string]string)
	}
	return &Map{triggers: triggers}
}

// Resolve returns the playlist bound to a trigger name.
func (m *Map) Resolve(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	playlist, ok := m.triggers[name]
	return playlist, ok
}

// Bind adds or replaces a trigger binding.
func (m *Map) Bind(name, playlist string) {
	m.mu.Lock()
	m.triggers[name] = playlist
	m.mu.Unlock()
}

// Server is the HTTP trigger surface.
type Server struct {
	ctrl      Controller
	triggers  *Map
	playlists func() []string
	bus       *events.Bus
	metrics   *telemetry.Metrics
	logs      *logbuffer.Buffer
	logger    zerolog.Logger
}

// NewServer creates the trigger surface. playlists enumerates the catalog
// for the listing endpoint; the controller does not expose enumeration.
// logs may be nil when log capture is off.
func NewServer(ctrl Controller, triggers *Map, playlists func() []string, bus *events.Bus, metrics *telemetry.Metrics, logs *logbuffer.Buffer, logger zerolog.Logger) *Server {
	return &Server{
		ctrl:      ctrl,
		triggers:  triggers,
		playlists: playlists,
		bus:       bus,
		metrics:   metrics,
		logs:      logs,
		logger:    logger.With().Str("component", "trigger_api").Logger(),
	}
}

// Router builds the chi router for the trigger surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/triggers/{name}", s.handleTrigger)
		r.Get("/nowplaying", s.handleNowPlaying)
		r.Get("/nowplaying/ws", s.handleNowPlayingWS)
		r.Get("/playlists", s.handlePlaylists)
		r.Get("/logs", s.handleLogs)
		r.Get("/logs/stats", s.handleLogStats)

		r.Route("/transport", func(r chi.Router) {
			r.Post("/next", s.handleNext)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Post("/seek", s.handleSeek)
			r.Post("/volume", s.handleVolume)
			r.Post("/crossfade", s.handleCrossfade)
			r.Post("/normalization", s.handleNormalization)
		})

		r.Route("/library", func(r chi.Router) {
			r.Post("/default", s.handleSetDefault)
			r.Post("/history/reset", s.handleResetHistory)
			r.Delete("/", s.handleClear)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	playlist, ok := s.triggers.Resolve(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_trigger")
		return
	}
	s.metrics.TriggerFires.WithLabelValues(name).Inc()
	s.logger.Info().Str("trigger", name).Str("playlist", playlist).Msg("trigger fired")

	if err := s.ctrl.PlayPlaylist(r.Context(), playlist); err != nil {
		if errors.Is(err, scheduler.ErrNoTracks) {
			writeError(w, http.StatusNotFound, "playlist_empty")
			return
		}
		s.logger.Error().Err(err).Str("trigger", name).Msg("trigger playback failed")
		writeError(w, http.StatusInternalServerError, "playback_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"playing": playlist})
}

// nowPlayingResponse is the synchronous readout payload.
type nowPlayingResponse struct {
	Playing  bool    `json:"playing"`
	Playlist string  `json:"playlist,omitempty"`
	TrackID  string  `json:"track_id,omitempty"`
	Title    string  `json:"title,omitempty"`
	Artist   string  `json:"artist,omitempty"`
	Album    string  `json:"album,omitempty"`
	Position float64 `json:"position_seconds"`
	Duration float64 `json:"duration_seconds"`
}

func (s *Server) nowPlaying() nowPlayingResponse {
	resp := nowPlayingResponse{
		Playing:  s.ctrl.IsPlaying(),
		Position: s.ctrl.Position().Seconds(),
		Duration: s.ctrl.Duration().Seconds(),
	}
	if np := s.ctrl.NowPlaying(); np.Track != nil {
		resp.Playlist = np.Playlist
		resp.TrackID = np.Track.ID
		resp.Title = np.Track.Title
		resp.Artist = np.Track.Artist
		resp.Album = np.Track.Album
	}
	s.metrics.PositionSecs.Set(resp.Position)
	return resp
}

func (s *Server) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.nowPlaying())
}

func (s *Server) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	if s.playlists != nil {
		names = s.playlists()
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": names})
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.PlayNext(r.Context()); err != nil {
		if errors.Is(err, scheduler.ErrNoTracks) {
			writeError(w, http.StatusNotFound, "no_tracks")
			return
		}
		writeError(w, http.StatusInternalServerError, "playback_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Pause()
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Resume(); err != nil {
		writeError(w, http.StatusConflict, "nothing_paused")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "playing"})
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds float64 `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Seconds < 0 {
		writeError(w, http.StatusBadRequest, "invalid_seek")
		return
	}
	if err := s.ctrl.Seek(time.Duration(req.Seconds * float64(time.Second))); err != nil {
		writeError(w, http.StatusConflict, "no_track_loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume float64 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_volume")
		return
	}
	s.ctrl.SetVolume(req.Volume)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCrossfade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds float64 `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Seconds < 0 {
		writeError(w, http.StatusBadRequest, "invalid_crossfade")
		return
	}
	s.ctrl.SetCrossfade(time.Duration(req.Seconds * float64(time.Second)))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNormalization(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_normalization")
		return
	}
	s.ctrl.SetNormalization(req.Enabled)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Playlist string `json:"playlist"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Playlist == "" {
		writeError(w, http.StatusBadRequest, "playlist_required")
		return
	}
	if err := s.ctrl.SetDefaultPlaylist(req.Playlist); err != nil {
		writeError(w, http.StatusNotFound, "unknown_playlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"default": req.Playlist})
}

func (s *Server) handleResetHistory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Playlist string `json:"playlist"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Playlist == "" {
		writeError(w, http.StatusBadRequest, "playlist_required")
		return
	}
	s.ctrl.ResetHistory(req.Playlist)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.ctrl.ClearLibrary()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusNotFound, "log_capture_disabled")
		return
	}
	q := r.URL.Query()
	limit := 200
	if raw := q.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	entries := s.logs.Query(logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		Search:     q.Get("q"),
		Limit:      limit,
		Descending: true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusNotFound, "log_capture_disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.logs.Stats())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
