/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"fmt"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Sink is the audio output stage. The engine feeds it voices; a voice that
// has been torn down streams zero samples and is dropped by the sink's own
// mixer.
type Sink interface {
	Start(format beep.Format) error
	Play(s beep.Streamer)
	Clear()
	Close() error
}

// SpeakerSink plays through the default audio device.
type SpeakerSink struct{}

// Start initializes the speaker at the engine's mix format.
func (SpeakerSink) Start(format beep.Format) error {
	if err := speaker.Init(format.SampleRate, format.SampleRate.N(bufferLatency)); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}
	return nil
}

// Play adds a streamer to the speaker mixer.
func (SpeakerSink) Play(s beep.Streamer) { speaker.Play(s) }

// Clear drops all streamers from the speaker mixer.
func (SpeakerSink) Clear() { speaker.Clear() }

// Close shuts down the speaker.
func (SpeakerSink) Close() error {
	speaker.Close()
	return nil
}

// NullSink discards voices without pulling samples. Used for tests and for
// running the selection/trigger logic on hosts without an audio device.
type NullSink struct {
	mu     sync.Mutex
	active []beep.Streamer
}

func (s *NullSink) Start(beep.Format) error { return nil }

func (s *NullSink) Play(st beep.Streamer) {
	s.mu.Lock()
	s.active = append(s.active, st)
	s.mu.Unlock()
}

func (s *NullSink) Clear() {
	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
}

func (s *NullSink) Close() error { return nil }

// ActiveCount reports how many streamers have been handed to the sink and
// not cleared. Test hook.
func (s *NullSink) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
