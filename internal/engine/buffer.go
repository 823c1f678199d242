/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/gopxl/beep/v2"
)

// Buffer holds a fully decoded track as PCM at the engine mix format.
// Its ID keys the loudness cache: loudness is a property of the decoded
// samples, not of the track identity.
type Buffer struct {
	id     string
	name   string
	pcm    *beep.Buffer
	format beep.Format
}

func newBuffer(name string, format beep.Format, s beep.Streamer) *Buffer {
	pcm := beep.NewBuffer(format)
	pcm.Append(s)
	return &Buffer{
		id:     uuid.NewString(),
		name:   name,
		pcm:    pcm,
		format: format,
	}
}

// Name returns the source name the buffer was decoded from.
func (b *Buffer) Name() string { return b.name }

// Samples returns the decoded sample count.
func (b *Buffer) Samples() int { return b.pcm.Len() }

// Duration returns the decoded length. Authoritative once decode completes.
func (b *Buffer) Duration() time.Duration {
	return b.format.SampleRate.D(b.pcm.Len())
}

// streamerAt returns a streamer positioned at the given offset, clamped to
// the buffer bounds.
func (b *Buffer) streamerAt(offset time.Duration) beep.StreamSeeker {
	from := b.format.SampleRate.N(offset)
	if from < 0 {
		from = 0
	}
	if from > b.pcm.Len() {
		from = b.pcm.Len()
	}
	return b.pcm.Streamer(from, b.pcm.Len())
}
