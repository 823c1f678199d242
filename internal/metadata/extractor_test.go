package metadata

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eventdeck/eventdeck/internal/library"
)

type byteSource struct {
	name  string
	data  []byte
	err   error
	opens *int
}

func (s byteSource) Open() (io.ReadCloser, error) {
	if s.opens != nil {
		*s.opens++
	}
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func (s byteSource) Name() string { return s.name }

func TestFallback_ArtistTitleSeparator(t *testing.T) {
	meta := Fallback("artist-name---song_title.mp3", "Rock")

	if meta.Title != "Song Title" {
		t.Errorf("expected %q, got %q", "Song Title", meta.Title)
	}
	if meta.Artist != "Artist Name" {
		t.Errorf("expected %q, got %q", "Artist Name", meta.Artist)
	}
	if meta.Album != "Rock" {
		t.Errorf("expected album from hint folder, got %q", meta.Album)
	}
	if meta.Duration != 0 {
		t.Errorf("expected zero duration, got %v", meta.Duration)
	}
	if meta.Title == "artist-name---song_title.mp3" {
		t.Error("fallback title must differ from the raw filename")
	}
}

func TestFallback_NoSeparator(t *testing.T) {
	meta := Fallback("/music/chill/evening_waves.flac", "")

	if meta.Title != "Evening Waves" {
		t.Errorf("expected %q, got %q", "Evening Waves", meta.Title)
	}
	if meta.Artist != "Unknown Artist" {
		t.Errorf("expected Unknown Artist, got %q", meta.Artist)
	}
	if meta.Album != "Unknown Album" {
		t.Errorf("expected Unknown Album, got %q", meta.Album)
	}
}

func TestExtract_CorruptBytesFallsBack(t *testing.T) {
	e := NewExtractor(zerolog.Nop())
	src := byteSource{name: "artist-name---song_title.mp3", data: []byte("not audio at all")}

	meta, err := e.Extract(context.Background(), src, "Rock")
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
	if meta.Title != "Song Title" || meta.Artist != "Artist Name" {
		t.Fatalf("fallback metadata not applied: %+v", meta)
	}
}

func TestExtract_OpenFailureFallsBack(t *testing.T) {
	e := NewExtractor(zerolog.Nop())
	src := byteSource{name: "broken.mp3", err: errors.New("gone")}

	meta, err := e.Extract(context.Background(), src, "Rock")
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
	if meta.Title != "Broken" {
		t.Fatalf("expected filename title, got %q", meta.Title)
	}
}

func TestResolver_CachesPerTrackID(t *testing.T) {
	e := NewExtractor(zerolog.Nop())
	r := NewResolver(e, zerolog.Nop())

	track := library.Track{
		ID:       "rock/a.mp3",
		Playlist: "Rock",
		Source:   byteSource{name: "a.mp3", data: []byte("junk")},
	}

	first, err := r.Resolve(context.Background(), track)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Swap in a failing source; a cache hit never re-opens the bytes.
	var opens int
	track.Source = byteSource{name: "a.mp3", err: errors.New("bytes gone"), opens: &opens}
	second, err := r.Resolve(context.Background(), track)
	if err != nil {
		t.Fatalf("resolve (cached): %v", err)
	}
	if first != second {
		t.Fatalf("cached metadata differs: %+v vs %+v", first, second)
	}
	if opens != 0 {
		t.Fatalf("cache hit opened the source %d times", opens)
	}

	r.Correct(track.ID, 200)
	third, _ := r.Resolve(context.Background(), track)
	if third.Duration != 200 {
		t.Fatalf("expected corrected duration, got %v", third.Duration)
	}

	// After invalidation the source is consulted again. Extraction failure
	// still resolves: filename-derived metadata comes back error-free so a
	// tag-less or unreadable file never blocks selection.
	r.Invalidate()
	fourth, err := r.Resolve(context.Background(), track)
	if err != nil {
		t.Fatalf("resolve after invalidation: %v", err)
	}
	if opens != 1 {
		t.Fatalf("invalidated entry not re-extracted, opens = %d", opens)
	}
	if fourth.Title != "A" || fourth.Artist != "Unknown Artist" {
		t.Fatalf("expected filename fallback metadata, got %+v", fourth)
	}
}
