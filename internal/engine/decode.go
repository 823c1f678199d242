/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/eventdeck/eventdeck/internal/library"
)

// ErrDecode indicates unsupported or corrupt audio input.
var ErrDecode = errors.New("audio decode failed")

const resampleQuality = 4

// readSeekNopCloser adapts an in-memory payload to every decoder's reader
// requirement.
type readSeekNopCloser struct {
	*bytes.Reader
}

func (readSeekNopCloser) Close() error { return nil }

// LoadTrack reads the source fully and decodes it to PCM at the engine mix
// format. Pure: no engine playback state is touched, so a failed decode
// never leaves a voice connected.
func (e *Engine) LoadTrack(src library.ByteSource) (*Buffer, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDecode, src.Name(), err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrDecode, src.Name(), err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrDecode, src.Name())
	}

	streamer, format, err := decodeBytes(raw, src.Name())
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	var pcmSource beep.Streamer = streamer
	if format.SampleRate != e.format.SampleRate {
		pcmSource = beep.Resample(resampleQuality, format.SampleRate, e.format.SampleRate, streamer)
	}

	return newBuffer(src.Name(), e.format, pcmSource), nil
}

func decodeBytes(raw []byte, name string) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(filepath.Ext(name))

	type decoder func(readSeekNopCloser) (beep.StreamSeekCloser, beep.Format, error)
	byExt := map[string]decoder{
		".mp3": func(r readSeekNopCloser) (beep.StreamSeekCloser, beep.Format, error) {
			return mp3.Decode(r)
		},
		".wav": func(r readSeekNopCloser) (beep.StreamSeekCloser, beep.Format, error) {
			return wav.Decode(r)
		},
		".flac": func(r readSeekNopCloser) (beep.StreamSeekCloser, beep.Format, error) {
			return flac.Decode(r)
		},
		".ogg": func(r readSeekNopCloser) (beep.StreamSeekCloser, beep.Format, error) {
			return vorbis.Decode(r)
		},
	}
	byExt[".oga"] = byExt[".ogg"]

	if dec, ok := byExt[ext]; ok {
		streamer, format, err := dec(readSeekNopCloser{bytes.NewReader(raw)})
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("%w: %s: %v", ErrDecode, name, err)
		}
		return streamer, format, nil
	}

	// Unknown extension: try each decoder until one accepts the payload.
	for _, dec := range []decoder{byExt[".mp3"], byExt[".flac"], byExt[".ogg"], byExt[".wav"]} {
		if streamer, format, err := dec(readSeekNopCloser{bytes.NewReader(raw)}); err == nil {
			return streamer, format, nil
		}
	}
	return nil, beep.Format{}, fmt.Errorf("%w: %s: unsupported format", ErrDecode, name)
}
