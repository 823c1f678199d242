package ingest

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eventdeck/eventdeck/internal/library"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestLibrary() *library.Library {
	return library.New(rand.New(rand.NewSource(1)), zerolog.Nop())
}

func TestScanAll_FoldersBecomePlaylists(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ambient", "one.mp3"))
	writeFile(t, filepath.Join(root, "ambient", "two.flac"))
	writeFile(t, filepath.Join(root, "ambient", "cover.jpg"))
	writeFile(t, filepath.Join(root, "energetic", "three.ogg"))
	writeFile(t, filepath.Join(root, "energetic", "nested", "four.wav"))
	writeFile(t, filepath.Join(root, "loose-file.mp3")) // not in a playlist folder
	writeFile(t, filepath.Join(root, ".hidden", "five.mp3"))

	lib := newTestLibrary()
	s := NewScanner(root, lib, zerolog.Nop())
	if err := s.ScanAll(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	got := lib.Playlists()
	if len(got) != 2 || got[0] != "ambient" || got[1] != "energetic" {
		t.Fatalf("playlists = %v", got)
	}
	if n := lib.Len("ambient"); n != 2 {
		t.Fatalf("ambient has %d tracks, want 2 (non-audio excluded)", n)
	}
	if n := lib.Len("energetic"); n != 2 {
		t.Fatalf("energetic has %d tracks, want 2 (nested included)", n)
	}
	// Lexically first folder becomes the default.
	if lib.Default() != "ambient" {
		t.Fatalf("default = %s", lib.Default())
	}
}

func TestScanAll_TrackIdentityAndSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ambient", "song.mp3"))

	lib := newTestLibrary()
	if err := NewScanner(root, lib, zerolog.Nop()).ScanAll(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	tracks, err := lib.Tracks("ambient")
	if err != nil {
		t.Fatal(err)
	}
	tr := tracks[0]
	if tr.ID != "ambient/song.mp3" {
		t.Fatalf("track ID = %q, want root-relative slash path", tr.ID)
	}
	rc, err := tr.Source.Open()
	if err != nil {
		t.Fatalf("source open: %v", err)
	}
	rc.Close()
	if tr.Source.Name() == "" {
		t.Fatal("source has no name for extension sniffing")
	}
}

func TestScanAll_EmptyAndMissingRoot(t *testing.T) {
	lib := newTestLibrary()
	if err := NewScanner(t.TempDir(), lib, zerolog.Nop()).ScanAll(); err != nil {
		t.Fatalf("empty root: %v", err)
	}
	if len(lib.Playlists()) != 0 {
		t.Fatal("playlists from empty root")
	}

	if err := NewScanner("/does/not/exist", lib, zerolog.Nop()).ScanAll(); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestRescan_ReplacesPlaylist(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ambient", "old.mp3"))

	lib := newTestLibrary()
	s := NewScanner(root, lib, zerolog.Nop())
	if err := s.ScanAll(); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(root, "ambient", "old.mp3")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, "ambient", "new-one.mp3"))
	writeFile(t, filepath.Join(root, "ambient", "new-two.mp3"))

	if err := s.Rescan("ambient"); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	tracks, _ := lib.Tracks("ambient")
	if len(tracks) != 2 {
		t.Fatalf("after rescan got %d tracks, want 2", len(tracks))
	}
	for _, tr := range tracks {
		if tr.ID == "ambient/old.mp3" {
			t.Fatal("removed track survived rescan")
		}
	}
}

func TestPlaylistFor(t *testing.T) {
	root := t.TempDir()
	lib := newTestLibrary()
	s := NewScanner(root, lib, zerolog.Nop())
	w, err := NewWatcher(s, zerolog.Nop())
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer w.fsw.Close()

	cases := []struct {
		path, want string
	}{
		{filepath.Join(root, "ambient", "a.mp3"), "ambient"},
		{filepath.Join(root, "ambient"), "ambient"},
		{root, ""},
		{filepath.Join(root, ".git", "config"), ""},
	}
	for _, tc := range cases {
		if got := w.playlistFor(tc.path); got != tc.want {
			t.Errorf("playlistFor(%s) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
