/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import "math"

const (
	// maxNormalizationGain bounds the boost applied to quiet tracks.
	maxNormalizationGain = 3.0
	// loudnessFloor keeps log10 defined for silent buffers.
	loudnessFloor = 1e-8
	// maxLoudnessSamples bounds analysis cost on long buffers.
	maxLoudnessSamples = 10000

	analyzeChunk = 512
)

// AnalyzeLoudness approximates perceived loudness as the RMS of a uniformly
// subsampled single channel, in dB. The subsampling stride is chosen so at
// most ~10,000 samples are read regardless of buffer length. Results are
// cached per buffer identity.
func (e *Engine) AnalyzeLoudness(buf *Buffer) float64 {
	if db, ok := e.loudness.Get(buf.id); ok {
		return db
	}

	db := measureLoudness(buf)
	e.loudness.Add(buf.id, db)
	return db
}

func measureLoudness(buf *Buffer) float64 {
	total := buf.pcm.Len()
	if total == 0 {
		return 20 * math.Log10(loudnessFloor)
	}

	stride := total / maxLoudnessSamples
	if stride < 1 {
		stride = 1
	}

	streamer := buf.pcm.Streamer(0, total)
	var (
		chunk   [analyzeChunk][2]float64
		sumSq   float64
		counted int
		index   int
	)
	for {
		n, ok := streamer.Stream(chunk[:])
		for i := 0; i < n; i++ {
			if index%stride == 0 {
				s := chunk[i][0]
				sumSq += s * s
				counted++
			}
			index++
		}
		if !ok {
			break
		}
	}

	if counted == 0 {
		return 20 * math.Log10(loudnessFloor)
	}
	rms := math.Sqrt(sumSq / float64(counted))
	return 20 * math.Log10(math.Max(rms, loudnessFloor))
}

// normalizationGain converts a measured loudness into a multiplicative gain
// towards the target, clamped to [0, maxNormalizationGain].
func normalizationGain(loudnessDB, targetDB float64) float64 {
	gain := math.Pow(10, (targetDB-loudnessDB)/20)
	if gain < 0 {
		return 0
	}
	if gain > maxNormalizationGain {
		return maxNormalizationGain
	}
	return gain
}

// NormalizationGain returns the gain the engine would apply to the buffer,
// 1.0 when normalization is disabled.
func (e *Engine) NormalizationGain(buf *Buffer) float64 {
	e.mu.Lock()
	enabled := e.normEnabled
	target := e.targetLoudness
	e.mu.Unlock()
	if !enabled {
		return 1.0
	}
	return normalizationGain(e.AnalyzeLoudness(buf), target)
}

// normGainLocked is NormalizationGain for callers already holding e.mu.
func (e *Engine) normGainLocked(buf *Buffer) float64 {
	if !e.normEnabled {
		return 1.0
	}
	if db, ok := e.loudness.Get(buf.id); ok {
		return normalizationGain(db, e.targetLoudness)
	}
	db := measureLoudness(buf)
	e.loudness.Add(buf.id, db)
	return normalizationGain(db, e.targetLoudness)
}
