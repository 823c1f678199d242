/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// gainRamp is a linear gain ramp anchored to the engine clock. Gain is
// computed from elapsed wall time inside the sample callback, so ramps are
// independent of any UI frame rate.
type gainRamp struct {
	start    time.Time
	duration time.Duration
	from, to float64
}

func (r *gainRamp) at(now time.Time) (gain float64, done bool) {
	if r.duration <= 0 {
		return r.to, true
	}
	p := float64(now.Sub(r.start)) / float64(r.duration)
	if p <= 0 {
		return r.from, false
	}
	if p >= 1 {
		return r.to, true
	}
	return r.from + (r.to-r.from)*p, false
}

// crossfadeGains returns the outgoing and incoming voice gains at elapsed
// time t into a crossfade of duration d, for starting volume v and incoming
// normalization gain g. Both are linear: out = v*(1-t/d), in = v*g*(t/d).
func crossfadeGains(v, g float64, elapsed, d time.Duration) (out, in float64) {
	if d <= 0 {
		return 0, v * g
	}
	p := float64(elapsed) / float64(d)
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return v * (1 - p), v * g * p
}

// voice is one independently controllable playback instance. A torn-down
// voice streams nothing and is dropped by the sink mixer.
type voice struct {
	mu       sync.Mutex
	streamer beep.StreamSeeker
	gain     float64
	ramp     *gainRamp
	killed   bool
}

func newVoice(streamer beep.StreamSeeker, gain float64) *voice {
	return &voice{streamer: streamer, gain: gain}
}

// rampGain schedules a linear ramp from the voice's gain at start to the
// target, replacing any ramp in flight.
func (v *voice) rampGain(start time.Time, d time.Duration, from, to float64) {
	v.mu.Lock()
	v.gain = from
	v.ramp = &gainRamp{start: start, duration: d, from: from, to: to}
	v.mu.Unlock()
}

// setGain applies a steady gain. A ramp in flight keeps its timing but is
// retargeted, so a volume change mid-crossfade does not restart the fade.
func (v *voice) setGain(g float64) {
	v.mu.Lock()
	if v.ramp != nil {
		v.ramp.to = g
	} else {
		v.gain = g
	}
	v.mu.Unlock()
}

// currentGain returns the effective gain now, collapsing a finished ramp.
func (v *voice) currentGain(now time.Time) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentGainLocked(now)
}

func (v *voice) currentGainLocked(now time.Time) float64 {
	if v.ramp == nil {
		return v.gain
	}
	g, done := v.ramp.at(now)
	if done {
		v.gain = g
		v.ramp = nil
	}
	return g
}

// kill silences and detaches the voice.
func (v *voice) kill() {
	v.mu.Lock()
	v.killed = true
	v.mu.Unlock()
}

// Stream implements beep.Streamer, applying the voice gain per chunk.
func (v *voice) Stream(samples [][2]float64) (int, bool) {
	v.mu.Lock()
	if v.killed {
		v.mu.Unlock()
		return 0, false
	}
	g := v.currentGainLocked(time.Now())
	st := v.streamer
	v.mu.Unlock()

	n, ok := st.Stream(samples)
	for i := range samples[:n] {
		samples[i][0] *= g
		samples[i][1] *= g
	}
	return n, ok
}

// Err implements beep.Streamer.
func (v *voice) Err() error { return nil }
