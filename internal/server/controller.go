/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"time"

	"github.com/eventdeck/eventdeck/internal/scheduler"
)

// The server is the trigger surface's controller: scheduler operations
// pass through directly, transport operations hit the engine.

func (s *Server) PlayPlaylist(ctx context.Context, name string) error {
	return s.scheduler.PlayPlaylist(ctx, name)
}

func (s *Server) PlayNext(ctx context.Context) error {
	return s.scheduler.PlayNext(ctx)
}

func (s *Server) Pause() { s.engine.Pause() }

func (s *Server) Resume() error { return s.engine.Resume() }

func (s *Server) Seek(offset time.Duration) error { return s.engine.Seek(offset) }

func (s *Server) SetVolume(v float64) { s.engine.SetVolume(v) }

func (s *Server) SetCrossfade(d time.Duration) { s.engine.SetCrossfade(d) }

func (s *Server) SetNormalization(enabled bool) { s.engine.SetNormalization(enabled) }

func (s *Server) ResetHistory(name string) { s.scheduler.ResetHistory(name) }

func (s *Server) SetDefaultPlaylist(name string) error {
	return s.scheduler.SetDefaultPlaylist(name)
}

func (s *Server) ClearLibrary() {
	s.scheduler.ClearLibrary()
	s.engine.InvalidateLoudnessCache()
}

func (s *Server) NowPlaying() scheduler.NowPlaying { return s.scheduler.NowPlaying() }

func (s *Server) Position() time.Duration { return s.engine.Position() }

func (s *Server) Duration() time.Duration { return s.engine.Duration() }

func (s *Server) IsPlaying() bool { return s.engine.IsPlaying() }
