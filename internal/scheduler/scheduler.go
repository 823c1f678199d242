/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler picks the next track to play and drives the mixing
// engine: no-repeat selection with exhaustion reset, bounded retry on
// decode failure, default-playlist fallback on track end, and metadata
// preloading for the predicted next pick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventdeck/eventdeck/internal/events"
	"github.com/eventdeck/eventdeck/internal/library"
	"github.com/eventdeck/eventdeck/internal/metadata"
	"github.com/eventdeck/eventdeck/internal/telemetry"
)

var (
	// ErrNoTracks indicates an empty or unknown playlist.
	ErrNoTracks = errors.New("no tracks available")
	// ErrAllTracksFailed indicates every attempted pick failed to decode
	// or start within the retry bound.
	ErrAllTracksFailed = errors.New("all attempted tracks failed")
)

// TrackBuffer is the decoded audio the player hands back from LoadTrack.
type TrackBuffer interface {
	Duration() time.Duration
	Name() string
}

// Player is the slice of the mixing engine the scheduler drives.
type Player interface {
	LoadTrack(src library.ByteSource) (TrackBuffer, error)
	PlayTrack(buf TrackBuffer, offset time.Duration) error
	OnTrackEnd(fn func())
	Stop()
}

// NowPlaying is the read-only view of the current playback handed to the
// UI and the trigger surface.
type NowPlaying struct {
	Track    *library.Track
	Playlist string
}

// Scheduler owns the catalog, play history, and default-playlist pointer.
type Scheduler struct {
	lib     *library.Library
	history *library.History
	meta    *metadata.Resolver
	player  Player
	bus     *events.Bus
	metrics *telemetry.Metrics
	logger  zerolog.Logger

	retryCap int
	preload  bool

	mu              sync.Mutex
	rng             *rand.Rand
	gen             uint64
	current         *library.Track
	currentPlaylist string
}

// Options configures a scheduler.
type Options struct {
	RetryCap            int
	PreloadNextMetadata bool
	Rand                *rand.Rand
}

// New creates a scheduler and hooks the player's end-of-track event to the
// default-playlist rotation.
func New(lib *library.Library, history *library.History, meta *metadata.Resolver,
	player Player, bus *events.Bus, metrics *telemetry.Metrics,
	opts Options, logger zerolog.Logger) *Scheduler {

	if opts.RetryCap < 1 {
		opts.RetryCap = 5
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	s := &Scheduler{
		lib:      lib,
		history:  history,
		meta:     meta,
		player:   player,
		bus:      bus,
		metrics:  metrics,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		retryCap: opts.RetryCap,
		preload:  opts.PreloadNextMetadata,
		rng:      rng,
	}

	player.OnTrackEnd(s.handleTrackEnd)
	return s
}

// AddPlaylist ingests tracks into the catalog.
func (s *Scheduler) AddPlaylist(name string, tracks []library.Track) {
	s.lib.AddPlaylist(name, tracks)
}

// SetDefaultPlaylist reassigns the fallback rotation target.
func (s *Scheduler) SetDefaultPlaylist(name string) error {
	return s.lib.SetDefault(name)
}

// ResetHistory clears the no-repeat history for one playlist.
func (s *Scheduler) ResetHistory(name string) {
	s.history.Reset(name)
	s.bus.Publish(events.EventHistoryReset, events.Payload{"playlist": name, "cause": "manual"})
}

// PlayNext advances the default rotation.
func (s *Scheduler) PlayNext(ctx context.Context) error {
	def := s.lib.Default()
	if def == "" {
		s.bus.Notify("no playlists loaded", events.SeverityWarning)
		return ErrNoTracks
	}
	return s.PlayPlaylist(ctx, def)
}

// PlayPlaylist selects a not-yet-played track from the playlist and plays
// it. Decode or playback failure automatically retries another pick from
// the same playlist, bounded by min(N, retryCap) distinct tracks; only
// that bound being exhausted surfaces an error. A newer explicit request
// supersedes one still resolving: the older one's completion is discarded.
func (s *Scheduler) PlayPlaylist(ctx context.Context, name string) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	total := s.lib.Len(name)
	if total == 0 {
		s.bus.Notify(fmt.Sprintf("playlist %q has no tracks", name), events.SeverityWarning)
		return fmt.Errorf("%w: playlist %q", ErrNoTracks, name)
	}

	attempts := s.retryCap
	if total < attempts {
		attempts = total
	}

	tried := make(map[string]struct{})
	var lastErr error
	// Selection is random, so allow a few redundant draws before giving
	// up on reaching `attempts` distinct tracks.
	for iter := 0; iter < attempts*3 && len(tried) < attempts; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		track, err := s.selectTrack(name)
		if err != nil {
			return err
		}
		if _, seen := tried[track.ID]; seen {
			continue
		}
		tried[track.ID] = struct{}{}

		if err := s.startTrack(ctx, gen, name, track); err != nil {
			if errors.Is(err, errSuperseded) {
				return nil
			}
			lastErr = err
			s.logger.Warn().Err(err).Str("track", track.ID).Msg("track failed, trying another")
			continue
		}
		return nil
	}

	s.bus.Notify(fmt.Sprintf("playback from %q failed after %d attempts", name, len(tried)), events.SeverityError)
	return fmt.Errorf("%w: playlist %q: %v", ErrAllTracksFailed, name, lastErr)
}

// errSuperseded aborts an attempt whose generation was overtaken.
var errSuperseded = errors.New("superseded by newer request")

// selectTrack applies the no-repeat selection: exhaustion reset, uniform
// pick over unplayed tracks, history mark.
func (s *Scheduler) selectTrack(name string) (library.Track, error) {
	tracks, err := s.lib.Tracks(name)
	if err != nil || len(tracks) == 0 {
		return library.Track{}, fmt.Errorf("%w: playlist %q", ErrNoTracks, name)
	}

	if s.history.ResetIfExhausted(name, len(tracks)) {
		s.logger.Debug().Str("playlist", name).Msg("history exhausted, resetting")
		s.bus.Publish(events.EventHistoryReset, events.Payload{"playlist": name, "cause": "exhaustion"})
		s.metrics.HistoryResets.WithLabelValues(name).Inc()
	}

	unplayed := tracks[:0:0]
	for _, tr := range tracks {
		if !s.history.Played(name, tr.ID) {
			unplayed = append(unplayed, tr)
		}
	}
	// Defensive fallback; unreachable given the reset above, but guards
	// against concurrent history mutation.
	candidates := unplayed
	if len(candidates) == 0 {
		candidates = tracks
	}

	s.mu.Lock()
	pick := candidates[s.rng.Intn(len(candidates))]
	s.mu.Unlock()

	s.history.Mark(name, pick.ID)
	return pick, nil
}

func (s *Scheduler) startTrack(ctx context.Context, gen uint64, playlist string, track library.Track) error {
	meta, err := s.meta.Resolve(ctx, track)
	if err != nil {
		return err
	}
	track.Title = meta.Title
	track.Artist = meta.Artist
	track.Album = meta.Album
	if meta.Duration > 0 {
		track.Duration = meta.Duration
	}

	buf, err := s.player.LoadTrack(track.Source)
	if err != nil {
		s.metrics.DecodeFailures.Inc()
		s.bus.Publish(events.EventPlaybackError, events.Payload{
			"track_id": track.ID,
			"playlist": playlist,
			"error":    err.Error(),
		})
		return err
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return errSuperseded
	}
	if err := s.player.PlayTrack(buf, 0); err != nil {
		s.mu.Unlock()
		s.bus.Publish(events.EventPlaybackError, events.Payload{
			"track_id": track.ID,
			"playlist": playlist,
			"error":    err.Error(),
		})
		return err
	}

	// The decoded duration is authoritative; correct the catalog and the
	// metadata cache post-hoc.
	track.Duration = buf.Duration().Seconds()
	snapshot := track
	s.current = &snapshot
	s.currentPlaylist = playlist
	s.mu.Unlock()

	s.lib.UpdateDuration(playlist, track.ID, track.Duration)
	s.meta.Correct(track.ID, track.Duration)
	s.metrics.TracksStarted.WithLabelValues(playlist).Inc()

	// Committed: the engine is playing this track. Only now is the change
	// observable.
	s.bus.Publish(events.EventTrackChange, events.Payload{
		"track_id": track.ID,
		"title":    track.Title,
		"artist":   track.Artist,
		"album":    track.Album,
		"playlist": playlist,
		"duration": track.Duration,
	})

	s.logger.Info().Str("playlist", playlist).Str("track", track.ID).
		Str("title", track.Title).Msg("now playing")

	if s.preload {
		go s.preloadNext(gen, playlist)
	}
	return nil
}

// preloadNext resolves metadata for a likely next pick so the following
// selection does not pay extraction latency. Superseded preloads are
// discarded; the cache write itself is idempotent.
func (s *Scheduler) preloadNext(gen uint64, name string) {
	tracks, err := s.lib.Tracks(name)
	if err != nil || len(tracks) == 0 {
		return
	}

	unplayed := tracks[:0:0]
	for _, tr := range tracks {
		if !s.history.Played(name, tr.ID) {
			unplayed = append(unplayed, tr)
		}
	}
	if len(unplayed) == 0 {
		unplayed = tracks
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	pick := unplayed[s.rng.Intn(len(unplayed))]
	s.mu.Unlock()

	if _, err := s.meta.Resolve(context.Background(), pick); err == nil {
		s.logger.Debug().Str("track", pick.ID).Msg("preloaded metadata for next pick")
	}
}

// handleTrackEnd reacts to the engine's end-of-track event: control always
// reverts to the default playlist, regardless of what was last explicitly
// requested.
func (s *Scheduler) handleTrackEnd() {
	s.mu.Lock()
	var endedID string
	if s.current != nil {
		endedID = s.current.ID
	}
	s.current = nil
	s.mu.Unlock()

	s.bus.Publish(events.EventTrackEnded, events.Payload{"track_id": endedID})

	def := s.lib.Default()
	if def == "" {
		return
	}
	if err := s.PlayPlaylist(context.Background(), def); err != nil {
		s.logger.Error().Err(err).Str("playlist", def).Msg("default rotation failed")
	}
}

// NowPlaying returns a snapshot of the current track, nil when idle.
func (s *Scheduler) NowPlaying() NowPlaying {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return NowPlaying{}
	}
	snapshot := *s.current
	return NowPlaying{Track: &snapshot, Playlist: s.currentPlaylist}
}

// ClearLibrary stops playback and destroys the catalog, history, and
// caches.
func (s *Scheduler) ClearLibrary() {
	s.mu.Lock()
	s.gen++
	s.current = nil
	s.currentPlaylist = ""
	s.mu.Unlock()

	s.player.Stop()
	s.lib.Clear()
	s.history.Clear()
	s.meta.Invalidate()

	s.bus.Publish(events.EventLibraryCleared, events.Payload{})
	s.bus.Publish(events.EventTrackChange, events.Payload{"track_id": ""})
}
