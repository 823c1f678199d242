/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const debounceWindow = 500 * time.Millisecond

// Watcher re-ingests playlist folders when files under the media root
// change on disk. Events are debounced per playlist so a bulk copy does
// not trigger a rescan per file.
type Watcher struct {
	scanner *Scanner
	fsw     *fsnotify.Watcher
	logger  zerolog.Logger
}

// NewWatcher creates a watcher over the scanner's media root and every
// existing playlist folder.
func NewWatcher(scanner *Scanner, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		scanner: scanner,
		fsw:     fsw,
		logger:  logger.With().Str("component", "library_watcher").Logger(),
	}

	if err := fsw.Add(scanner.root); err != nil {
		fsw.Close()
		return nil, err
	}
	for _, name := range scanner.lib.Playlists() {
		if err := fsw.Add(filepath.Join(scanner.root, name)); err != nil {
			w.logger.Warn().Err(err).Str("playlist", name).Msg("cannot watch playlist folder")
		}
	}
	return w, nil
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(debounceWindow)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			name := w.playlistFor(event.Name)
			if name == "" {
				continue
			}
			// A new top-level folder needs its own watch before events
			// inside it are visible.
			if event.Op.Has(fsnotify.Create) && filepath.Dir(event.Name) == w.scanner.root {
				if err := w.fsw.Add(event.Name); err == nil {
					w.logger.Info().Str("playlist", name).Msg("watching new playlist folder")
				}
			}
			pending[name] = struct{}{}
			timer.Reset(debounceWindow)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("watch error")

		case <-timer.C:
			for name := range pending {
				if err := w.scanner.Rescan(name); err != nil {
					w.logger.Warn().Err(err).Str("playlist", name).Msg("rescan failed")
					continue
				}
				w.logger.Info().Str("playlist", name).Msg("playlist rescanned")
			}
			pending = make(map[string]struct{})
		}
	}
}

// playlistFor maps an event path to the top-level playlist folder name,
// empty when the path is the root itself or hidden.
func (w *Watcher) playlistFor(path string) string {
	rel, err := filepath.Rel(w.scanner.root, path)
	if err != nil || rel == "." {
		return ""
	}
	name := strings.Split(filepath.ToSlash(rel), "/")[0]
	if strings.HasPrefix(name, ".") {
		return ""
	}
	return name
}
