/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package engine decodes tracks to PCM and plays them through one or two
// gain-controlled voices, crossfading between tracks, normalizing loudness,
// and raising an end-of-track event when the current track runs out.
package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// ErrUnavailable indicates the audio output could not initialize. Playback
// commands no-op with this error; the rest of the application stays usable.
var ErrUnavailable = errors.New("audio engine unavailable")

// State is the engine's playback state.
type State string

const (
	StateIdle        State = "idle"
	StatePlaying     State = "playing"
	StateCrossfading State = "crossfading"
	StatePaused      State = "paused"
)

const (
	mixSampleRate = beep.SampleRate(44100)
	bufferLatency = 100 * time.Millisecond

	maxCrossfade     = 10 * time.Second
	loudnessCacheLen = 256
)

// Options configures a new engine.
type Options struct {
	Crossfade            time.Duration
	NormalizationEnabled bool
	TargetLoudnessDB     float64
	Volume               float64

	// OnCrossfade is invoked when a track transition runs as a crossfade.
	// Called with the engine lock held; must not call back into the engine.
	OnCrossfade func()
}

// Engine owns the decoded buffers and active voices. All cross-component
// communication happens by value or callback; nothing here is shared
// mutable state.
type Engine struct {
	sink   Sink
	format beep.Format
	logger zerolog.Logger

	mu             sync.Mutex
	state          State
	current        *Buffer
	currentVoice   *voice
	outgoingVoice  *voice
	startedAt      time.Time // wall-clock reference; position = now - startedAt
	pausedOffset   time.Duration
	volume         float64
	crossfade      time.Duration
	normEnabled    bool
	targetLoudness float64
	loudness       *lru.Cache[string, float64]

	// gen invalidates scheduled swap and end-of-track callbacks: every
	// transition bumps it, so a stale timer can never act after a swap.
	gen       uint64
	swapTimer *time.Timer
	endTimer  *time.Timer

	onTrackEnd  []func()
	onCrossfade func()
	unavailable bool
}

// New creates an engine and starts its output sink. A sink that cannot
// initialize leaves the engine constructed but unavailable: playback
// commands return ErrUnavailable.
func New(sink Sink, opts Options, logger zerolog.Logger) *Engine {
	cache, _ := lru.New[string, float64](loudnessCacheLen)

	e := &Engine{
		sink:           sink,
		format:         beep.Format{SampleRate: mixSampleRate, NumChannels: 2, Precision: 2},
		logger:         logger.With().Str("component", "engine").Logger(),
		state:          StateIdle,
		volume:         clampUnit(opts.Volume),
		crossfade:      clampCrossfade(opts.Crossfade),
		normEnabled:    opts.NormalizationEnabled,
		targetLoudness: opts.TargetLoudnessDB,
		loudness:       cache,
		onCrossfade:    opts.OnCrossfade,
	}

	if err := sink.Start(e.format); err != nil {
		e.logger.Error().Err(err).Msg("audio output unavailable, playback disabled")
		e.unavailable = true
	}
	return e
}

// Available reports whether the audio output initialized.
func (e *Engine) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.unavailable
}

// OnTrackEnd registers an end-of-track observer. The notification fires
// exactly once per track, when the current track's remaining duration
// elapses while playing.
func (e *Engine) OnTrackEnd(fn func()) {
	e.mu.Lock()
	e.onTrackEnd = append(e.onTrackEnd, fn)
	e.mu.Unlock()
}

// PlayTrack starts a buffer at the given offset. When already playing with
// a non-zero crossfade duration, the current voice ramps out while the new
// one ramps in; otherwise the new voice replaces playback immediately. The
// end-of-track timer is re-armed against the new track's remaining
// duration in the same critical section.
func (e *Engine) PlayTrack(buf *Buffer, offset time.Duration) error {
	if buf == nil {
		return errors.New("nil buffer")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.unavailable {
		return ErrUnavailable
	}
	if offset < 0 {
		offset = 0
	}
	if offset > buf.Duration() {
		offset = buf.Duration()
	}

	now := time.Now()
	target := e.volume * e.normGainLocked(buf)

	e.invalidateTimersLocked()

	if (e.state == StatePlaying || e.state == StateCrossfading) && e.crossfade > 0 && e.currentVoice != nil {
		d := e.crossfade

		// Any previous outgoing voice is already ramping to zero; drop it
		// so at most two voices are live.
		if e.outgoingVoice != nil {
			e.outgoingVoice.kill()
		}
		e.outgoingVoice = e.currentVoice
		e.outgoingVoice.rampGain(now, d, e.outgoingVoice.currentGain(now), 0)

		in := newVoice(buf.streamerAt(offset), 0)
		in.rampGain(now, d, 0, target)
		e.currentVoice = in
		e.sink.Play(in)
		e.state = StateCrossfading

		gen := e.gen
		e.swapTimer = time.AfterFunc(d, func() { e.completeCrossfade(gen) })
		if e.onCrossfade != nil {
			e.onCrossfade()
		}
	} else {
		e.teardownVoicesLocked()
		v := newVoice(buf.streamerAt(offset), target)
		e.currentVoice = v
		e.sink.Play(v)
		e.state = StatePlaying
	}

	e.current = buf
	e.startedAt = now.Add(-offset)
	e.pausedOffset = 0
	e.armEndTimerLocked(buf.Duration() - offset)

	e.logger.Debug().Str("buffer", buf.Name()).Dur("offset", offset).
		Str("state", string(e.state)).Msg("track started")
	return nil
}

// completeCrossfade promotes the incoming voice once the fade elapses.
func (e *Engine) completeCrossfade(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen || e.state != StateCrossfading {
		return
	}
	if e.outgoingVoice != nil {
		e.outgoingVoice.kill()
		e.outgoingVoice = nil
	}
	e.state = StatePlaying
	e.logger.Debug().Msg("crossfade complete")
}

// Pause suspends playback, capturing the elapsed offset. The end-of-track
// timer is cancelled and recomputed on resume. Pausing mid-crossfade
// finalizes the swap: only the incoming track survives.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePlaying && e.state != StateCrossfading {
		return
	}

	e.invalidateTimersLocked()
	e.pausedOffset = e.positionLocked(time.Now())
	e.teardownVoicesLocked()
	e.state = StatePaused
}

// Resume restarts playback from the paused offset.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused || e.current == nil {
		return nil
	}
	if e.unavailable {
		return ErrUnavailable
	}

	e.invalidateTimersLocked()
	v := newVoice(e.current.streamerAt(e.pausedOffset), e.volume*e.normGainLocked(e.current))
	e.currentVoice = v
	e.sink.Play(v)
	e.state = StatePlaying
	e.startedAt = time.Now().Add(-e.pausedOffset)
	e.armEndTimerLocked(e.current.Duration() - e.pausedOffset)
	e.pausedOffset = 0
	return nil
}

// Seek repositions within the current track. The playing/not-playing state
// is preserved across the call. A seek during a crossfade cancels the fade
// and its pending swap, restarting cleanly on the track that was current.
func (e *Engine) Seek(offset time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	if offset < 0 {
		offset = 0
	}
	if offset > e.current.Duration() {
		offset = e.current.Duration()
	}

	e.invalidateTimersLocked()

	if e.state == StatePlaying || e.state == StateCrossfading {
		if e.unavailable {
			return ErrUnavailable
		}
		e.teardownVoicesLocked()
		v := newVoice(e.current.streamerAt(offset), e.volume*e.normGainLocked(e.current))
		e.currentVoice = v
		e.sink.Play(v)
		e.state = StatePlaying
		e.startedAt = time.Now().Add(-offset)
		e.armEndTimerLocked(e.current.Duration() - offset)
		return nil
	}

	e.pausedOffset = offset
	return nil
}

// Stop tears down all voices and resets position to zero.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidateTimersLocked()
	e.teardownVoicesLocked()
	e.sink.Clear()
	e.current = nil
	e.pausedOffset = 0
	e.state = StateIdle
}

// Close stops playback and shuts down the sink.
func (e *Engine) Close() error {
	e.Stop()
	return e.sink.Close()
}

// SetVolume clamps to [0,1] and reapplies volume x normalization gain to
// the active gain stage. Never retriggers a crossfade: a ramp in flight is
// retargeted, not restarted, and no timer is touched.
func (e *Engine) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = clampUnit(v)
	if e.currentVoice != nil && e.current != nil {
		e.currentVoice.setGain(e.volume * e.normGainLocked(e.current))
	}
}

// Volume returns the configured volume.
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// SetCrossfade clamps the crossfade duration to [0, 10s]; zero disables
// crossfading.
func (e *Engine) SetCrossfade(d time.Duration) {
	e.mu.Lock()
	e.crossfade = clampCrossfade(d)
	e.mu.Unlock()
}

// SetNormalization toggles loudness normalization for subsequent plays.
func (e *Engine) SetNormalization(enabled bool) {
	e.mu.Lock()
	e.normEnabled = enabled
	e.mu.Unlock()
}

// InvalidateLoudnessCache drops cached per-buffer loudness. Called on
// library clear.
func (e *Engine) InvalidateLoudnessCache() {
	e.loudness.Purge()
}

// IsPlaying reports whether a voice is actively producing audio.
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StatePlaying || e.state == StateCrossfading
}

// CurrentState returns the engine state.
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Position returns the clock-derived playback position, or the stored
// offset when not playing. Synchronous query; any polling cadence belongs
// to the caller.
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StatePlaying || e.state == StateCrossfading {
		return e.positionLocked(time.Now())
	}
	return e.pausedOffset
}

// Duration returns the current buffer's decoded duration, zero when idle.
func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return 0
	}
	return e.current.Duration()
}

func (e *Engine) positionLocked(now time.Time) time.Duration {
	pos := now.Sub(e.startedAt)
	if e.current != nil && pos > e.current.Duration() {
		pos = e.current.Duration()
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// invalidateTimersLocked bumps the generation and cancels pending swap and
// end-of-track callbacks. Callers hold e.mu.
func (e *Engine) invalidateTimersLocked() {
	e.gen++
	if e.swapTimer != nil {
		e.swapTimer.Stop()
		e.swapTimer = nil
	}
	if e.endTimer != nil {
		e.endTimer.Stop()
		e.endTimer = nil
	}
}

func (e *Engine) teardownVoicesLocked() {
	if e.currentVoice != nil {
		e.currentVoice.kill()
		e.currentVoice = nil
	}
	if e.outgoingVoice != nil {
		e.outgoingVoice.kill()
		e.outgoingVoice = nil
	}
}

// armEndTimerLocked schedules the one-shot end-of-track notification for
// the current generation. Callers hold e.mu.
func (e *Engine) armEndTimerLocked(remaining time.Duration) {
	if remaining < 0 {
		remaining = 0
	}
	gen := e.gen
	e.endTimer = time.AfterFunc(remaining, func() { e.fireTrackEnd(gen) })
}

func (e *Engine) fireTrackEnd(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || (e.state != StatePlaying && e.state != StateCrossfading) {
		e.mu.Unlock()
		return
	}
	e.invalidateTimersLocked()
	e.teardownVoicesLocked()
	e.current = nil
	e.pausedOffset = 0
	e.state = StateIdle
	callbacks := append([]func(){}, e.onTrackEnd...)
	e.mu.Unlock()

	e.logger.Debug().Msg("track ended")
	for _, fn := range callbacks {
		fn()
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampCrossfade(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > maxCrossfade {
		return maxCrossfade
	}
	return d
}
