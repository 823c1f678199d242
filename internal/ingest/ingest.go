/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package ingest builds the playlist catalog from a media folder tree.
// Each top-level directory under the media root becomes one playlist;
// audio files inside it (recursively) become that playlist's tracks.
package ingest

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eventdeck/eventdeck/internal/library"
)

var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".flac": {},
	".ogg":  {},
	".oga":  {},
}

// Scanner walks a media root and feeds playlists into the catalog.
type Scanner struct {
	root   string
	lib    *library.Library
	logger zerolog.Logger
}

// NewScanner creates a scanner rooted at dir.
func NewScanner(dir string, lib *library.Library, logger zerolog.Logger) *Scanner {
	return &Scanner{
		root:   dir,
		lib:    lib,
		logger: logger.With().Str("component", "ingest").Logger(),
	}
}

// ScanAll walks the root once and ingests every playlist folder found, in
// lexical order so the default playlist assignment is deterministic.
func (s *Scanner) ScanAll() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		tracks, err := s.scanPlaylist(name)
		if err != nil {
			s.logger.Warn().Err(err).Str("playlist", name).Msg("playlist folder unreadable, skipped")
			continue
		}
		if len(tracks) == 0 {
			s.logger.Debug().Str("playlist", name).Msg("no audio files, skipped")
			continue
		}
		s.lib.AddPlaylist(name, tracks)
	}
	return nil
}

// Rescan re-reads one playlist folder and swaps the catalog entry.
func (s *Scanner) Rescan(name string) error {
	tracks, err := s.scanPlaylist(name)
	if err != nil {
		return err
	}
	s.lib.ReplacePlaylist(name, tracks)
	return nil
}

func (s *Scanner) scanPlaylist(name string) ([]library.Track, error) {
	dir := filepath.Join(s.root, name)
	var tracks []library.Track

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if _, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			rel = path
		}
		tracks = append(tracks, library.Track{
			ID:       filepath.ToSlash(rel),
			Playlist: name,
			Source:   library.FileSource{Path: path},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}
