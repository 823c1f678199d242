package engine

import (
	"math"
	"testing"
	"time"
)

func TestMeasureLoudness_KnownAmplitudes(t *testing.T) {
	e := newTestEngine(Options{})
	defer e.Close()

	cases := []struct {
		amplitude float64
		wantDB    float64
	}{
		{1.0, 0},
		{0.5, -6.0206},
		{0.1, -20},
	}
	for _, tc := range cases {
		buf := makeBuffer(e, 500*time.Millisecond, tc.amplitude)
		got := e.AnalyzeLoudness(buf)
		if math.Abs(got-tc.wantDB) > 0.1 {
			t.Errorf("amplitude %v: expected %.2f dB, got %.2f dB", tc.amplitude, tc.wantDB, got)
		}
	}
}

func TestMeasureLoudness_SilenceUsesFloor(t *testing.T) {
	e := newTestEngine(Options{})
	defer e.Close()

	buf := makeBuffer(e, 100*time.Millisecond, 0)
	got := e.AnalyzeLoudness(buf)
	want := 20 * math.Log10(loudnessFloor)
	if math.Abs(got-want) > 0.01 {
		t.Fatalf("expected floor %.2f dB, got %.2f dB", want, got)
	}
}

func TestAnalyzeLoudness_CachedPerBufferIdentity(t *testing.T) {
	e := newTestEngine(Options{})
	defer e.Close()

	buf := makeBuffer(e, 200*time.Millisecond, 0.5)
	first := e.AnalyzeLoudness(buf)

	// A cache hit returns the stored value without re-reading samples.
	if _, ok := e.loudness.Get(buf.id); !ok {
		t.Fatal("loudness not cached after analysis")
	}
	if second := e.AnalyzeLoudness(buf); second != first {
		t.Fatalf("cached loudness differs: %v vs %v", second, first)
	}

	e.InvalidateLoudnessCache()
	if _, ok := e.loudness.Get(buf.id); ok {
		t.Fatal("cache not purged")
	}
}

func TestNormalizationGain_Clamp(t *testing.T) {
	cases := []struct {
		loudness, target, want float64
	}{
		{-16, -16, 1.0},
		{-22.0206, -16, 2.0},
		{-10, -16, math.Pow(10, -6.0/20)},
		{-60, -16, maxNormalizationGain}, // would be ~158x unclamped
	}
	for _, tc := range cases {
		got := normalizationGain(tc.loudness, tc.target)
		if math.Abs(got-tc.want) > 1e-6 {
			t.Errorf("L=%v T=%v: expected %v, got %v", tc.loudness, tc.target, tc.want, got)
		}
	}
}

func TestNormalizationGain_DisabledIsUnity(t *testing.T) {
	e := newTestEngine(Options{NormalizationEnabled: false, TargetLoudnessDB: -16})
	defer e.Close()

	quiet := makeBuffer(e, 100*time.Millisecond, 0.01)
	if got := e.NormalizationGain(quiet); got != 1.0 {
		t.Fatalf("expected 1.0 with normalization disabled, got %v", got)
	}

	e.SetNormalization(true)
	if got := e.NormalizationGain(quiet); got <= 1.0 {
		t.Fatalf("expected boost for quiet buffer, got %v", got)
	}
}

func TestMeasureLoudness_SubsamplingBound(t *testing.T) {
	e := newTestEngine(Options{})
	defer e.Close()

	// A long buffer must produce the same RMS as a short one of equal
	// amplitude; the stride only bounds how many samples are read.
	long := makeBuffer(e, 5*time.Second, 0.5)
	short := makeBuffer(e, 100*time.Millisecond, 0.5)
	if math.Abs(e.AnalyzeLoudness(long)-e.AnalyzeLoudness(short)) > 0.1 {
		t.Fatal("subsampled loudness diverges from full analysis")
	}
}
