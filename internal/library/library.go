/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"
)

// ErrPlaylistNotFound indicates an unknown playlist name.
var ErrPlaylistNotFound = errors.New("playlist not found")

// Library is the in-memory catalog: playlist name -> ordered track list.
type Library struct {
	logger zerolog.Logger

	mu          sync.RWMutex
	playlists   map[string][]Track
	order       []string // playlist names in ingestion order
	defaultName string
	rng         *rand.Rand
}

// New creates an empty library.
func New(rng *rand.Rand, logger zerolog.Logger) *Library {
	return &Library{
		logger:    logger.With().Str("component", "library").Logger(),
		playlists: make(map[string][]Track),
		rng:       rng,
	}
}

// AddPlaylist ingests tracks under a playlist name. An existing playlist is
// merged by append. The appended tracks are shuffled once (Fisher-Yates) so
// display order and first-pick bias are decorrelated from ingestion order.
// The first ingested playlist becomes the default.
func (l *Library) AddPlaylist(name string, tracks []Track) {
	incoming := make([]Track, len(tracks))
	copy(incoming, tracks)
	for i := range incoming {
		incoming[i].Playlist = name
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.rng.Shuffle(len(incoming), func(i, j int) {
		incoming[i], incoming[j] = incoming[j], incoming[i]
	})

	if _, ok := l.playlists[name]; !ok {
		l.order = append(l.order, name)
	}
	l.playlists[name] = append(l.playlists[name], incoming...)

	if l.defaultName == "" {
		l.defaultName = name
		l.logger.Info().Str("playlist", name).Msg("default playlist set")
	}

	l.logger.Info().Str("playlist", name).Int("added", len(incoming)).
		Int("total", len(l.playlists[name])).Msg("playlist ingested")
}

// ReplacePlaylist swaps a playlist's contents wholesale. Used by the folder
// watcher when a source directory changes on disk.
func (l *Library) ReplacePlaylist(name string, tracks []Track) {
	l.mu.Lock()
	if _, ok := l.playlists[name]; ok {
		delete(l.playlists, name)
		for i, n := range l.order {
			if n == name {
				l.order = append(l.order[:i], l.order[i+1:]...)
				break
			}
		}
	}
	l.mu.Unlock()
	l.AddPlaylist(name, tracks)
}

// Tracks returns a snapshot of a playlist's tracks.
func (l *Library) Tracks(name string) ([]Track, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tracks, ok := l.playlists[name]
	if !ok {
		return nil, ErrPlaylistNotFound
	}
	out := make([]Track, len(tracks))
	copy(out, tracks)
	return out, nil
}

// UpdateDuration records a corrected duration for a track once the engine
// or the metadata extractor reports the authoritative value.
func (l *Library) UpdateDuration(playlist, trackID string, seconds float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tracks := l.playlists[playlist]
	for i := range tracks {
		if tracks[i].ID == trackID {
			tracks[i].Duration = seconds
			return
		}
	}
}

// Playlists returns the playlist names in ingestion order.
func (l *Library) Playlists() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Len returns the number of tracks in a playlist, zero if unknown.
func (l *Library) Len(name string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.playlists[name])
}

// Default returns the default playlist name, empty if none.
func (l *Library) Default() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.defaultName
}

// SetDefault reassigns the default playlist.
func (l *Library) SetDefault(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.playlists[name]; !ok {
		return ErrPlaylistNotFound
	}
	l.defaultName = name
	return nil
}

// Clear destroys all playlists and the default assignment.
func (l *Library) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.playlists = make(map[string][]Track)
	l.order = nil
	l.defaultName = ""
	l.logger.Info().Msg("library cleared")
}
