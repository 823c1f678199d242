package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventdeck/eventdeck/internal/events"
	"github.com/eventdeck/eventdeck/internal/library"
	"github.com/eventdeck/eventdeck/internal/logbuffer"
	"github.com/eventdeck/eventdeck/internal/scheduler"
	"github.com/eventdeck/eventdeck/internal/telemetry"
)

// stubController records calls and simulates playback state.
type stubController struct {
	playedPlaylists []string
	nextCalls       int
	paused          bool
	resumed         bool
	seekTo          time.Duration
	volume          float64
	crossfade       time.Duration
	normalization   *bool
	resetPlaylist   string
	defaultPlaylist string
	cleared         bool

	playErr    error
	resumeErr  error
	seekErr    error
	defaultErr error
	current    scheduler.NowPlaying
	playing    bool
}

func (c *stubController) PlayPlaylist(ctx context.Context, name string) error {
	if c.playErr != nil {
		return c.playErr
	}
	c.playedPlaylists = append(c.playedPlaylists, name)
	return nil
}
func (c *stubController) PlayNext(ctx context.Context) error {
	if c.playErr != nil {
		return c.playErr
	}
	c.nextCalls++
	return nil
}
func (c *stubController) Pause() { c.paused = true }
func (c *stubController) Resume() error {
	if c.resumeErr != nil {
		return c.resumeErr
	}
	c.resumed = true
	return nil
}
func (c *stubController) Seek(offset time.Duration) error {
	if c.seekErr != nil {
		return c.seekErr
	}
	c.seekTo = offset
	return nil
}
func (c *stubController) SetVolume(v float64)              { c.volume = v }
func (c *stubController) SetCrossfade(d time.Duration)     { c.crossfade = d }
func (c *stubController) SetNormalization(enabled bool)    { c.normalization = &enabled }
func (c *stubController) ResetHistory(name string)         { c.resetPlaylist = name }
func (c *stubController) ClearLibrary()                    { c.cleared = true }
func (c *stubController) NowPlaying() scheduler.NowPlaying { return c.current }
func (c *stubController) Position() time.Duration          { return 42 * time.Second }
func (c *stubController) Duration() time.Duration          { return 180 * time.Second }
func (c *stubController) IsPlaying() bool                  { return c.playing }
func (c *stubController) SetDefaultPlaylist(name string) error {
	if c.defaultErr != nil {
		return c.defaultErr
	}
	c.defaultPlaylist = name
	return nil
}

func newTestServer(t *testing.T, ctrl *stubController, triggers map[string]string) *httptest.Server {
	t.Helper()
	logs := logbuffer.New(100)
	logs.Add(logbuffer.Entry{Timestamp: time.Now(), Level: "info", Component: "engine", Message: "now playing"})
	srv := NewServer(ctrl, NewMap(triggers), func() []string { return []string{"ambient", "energetic"} },
		events.NewBus(), telemetry.New(), logs, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestTrigger_FiresMappedPlaylist(t *testing.T) {
	ctrl := &stubController{}
	ts := newTestServer(t, ctrl, map[string]string{"doors-open": "ambient"})

	resp := postJSON(t, ts.URL+"/api/triggers/doors-open", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(ctrl.playedPlaylists) != 1 || ctrl.playedPlaylists[0] != "ambient" {
		t.Fatalf("played = %v", ctrl.playedPlaylists)
	}
}

func TestTrigger_UnknownName(t *testing.T) {
	ctrl := &stubController{}
	ts := newTestServer(t, ctrl, map[string]string{})

	resp := postJSON(t, ts.URL+"/api/triggers/mystery", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if len(ctrl.playedPlaylists) != 0 {
		t.Fatal("unknown trigger reached the controller")
	}
}

func TestTrigger_EmptyPlaylistMapsTo404(t *testing.T) {
	ctrl := &stubController{playErr: fmt.Errorf("wrap: %w", scheduler.ErrNoTracks)}
	ts := newTestServer(t, ctrl, map[string]string{"doors-open": "ambient"})

	resp := postJSON(t, ts.URL+"/api/triggers/doors-open", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestNowPlaying_Snapshot(t *testing.T) {
	ctrl := &stubController{
		playing: true,
		current: scheduler.NowPlaying{
			Track:    &library.Track{ID: "ambient/one.mp3", Title: "One", Artist: "Someone"},
			Playlist: "ambient",
		},
	}
	ts := newTestServer(t, ctrl, nil)

	resp, err := http.Get(ts.URL + "/api/nowplaying")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got nowPlayingResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.Playing || got.Title != "One" || got.Playlist != "ambient" {
		t.Fatalf("nowplaying = %+v", got)
	}
	if got.Position != 42 || got.Duration != 180 {
		t.Fatalf("position/duration = %v/%v", got.Position, got.Duration)
	}
}

func TestTransportEndpoints(t *testing.T) {
	ctrl := &stubController{}
	ts := newTestServer(t, ctrl, nil)

	if resp := postJSON(t, ts.URL+"/api/transport/next", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("next status = %d", resp.StatusCode)
	}
	if ctrl.nextCalls != 1 {
		t.Fatal("next not forwarded")
	}

	postJSON(t, ts.URL+"/api/transport/pause", nil)
	if !ctrl.paused {
		t.Fatal("pause not forwarded")
	}

	postJSON(t, ts.URL+"/api/transport/resume", nil)
	if !ctrl.resumed {
		t.Fatal("resume not forwarded")
	}

	postJSON(t, ts.URL+"/api/transport/seek", map[string]float64{"seconds": 30})
	if ctrl.seekTo != 30*time.Second {
		t.Fatalf("seek = %s", ctrl.seekTo)
	}

	postJSON(t, ts.URL+"/api/transport/volume", map[string]float64{"volume": 0.5})
	if ctrl.volume != 0.5 {
		t.Fatalf("volume = %v", ctrl.volume)
	}

	postJSON(t, ts.URL+"/api/transport/crossfade", map[string]float64{"seconds": 2.5})
	if ctrl.crossfade != 2500*time.Millisecond {
		t.Fatalf("crossfade = %s", ctrl.crossfade)
	}

	postJSON(t, ts.URL+"/api/transport/normalization", map[string]bool{"enabled": false})
	if ctrl.normalization == nil || *ctrl.normalization {
		t.Fatal("normalization not forwarded")
	}
}

func TestTransport_BadRequests(t *testing.T) {
	ctrl := &stubController{}
	ts := newTestServer(t, ctrl, nil)

	cases := []struct {
		path string
		body string
	}{
		{"/api/transport/seek", `{"seconds": -3}`},
		{"/api/transport/seek", `not json`},
		{"/api/transport/crossfade", `{"seconds": -1}`},
		{"/api/transport/volume", `no`},
	}
	for _, tc := range cases {
		resp, err := http.Post(ts.URL+tc.path, "application/json", bytes.NewReader([]byte(tc.body)))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s %q: status = %d, want 400", tc.path, tc.body, resp.StatusCode)
		}
	}
}

func TestResume_NothingPaused(t *testing.T) {
	ctrl := &stubController{resumeErr: fmt.Errorf("nothing to resume")}
	ts := newTestServer(t, ctrl, nil)

	if resp := postJSON(t, ts.URL+"/api/transport/resume", nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestLibraryEndpoints(t *testing.T) {
	ctrl := &stubController{}
	ts := newTestServer(t, ctrl, nil)

	postJSON(t, ts.URL+"/api/library/default", map[string]string{"playlist": "energetic"})
	if ctrl.defaultPlaylist != "energetic" {
		t.Fatalf("default = %s", ctrl.defaultPlaylist)
	}

	postJSON(t, ts.URL+"/api/library/history/reset", map[string]string{"playlist": "ambient"})
	if ctrl.resetPlaylist != "ambient" {
		t.Fatalf("reset = %s", ctrl.resetPlaylist)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/library/", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !ctrl.cleared {
		t.Fatal("clear not forwarded")
	}
}

func TestPlaylistsListing(t *testing.T) {
	ts := newTestServer(t, &stubController{}, nil)

	resp, err := http.Get(ts.URL + "/api/playlists")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got struct {
		Playlists []string `json:"playlists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got.Playlists) != 2 {
		t.Fatalf("playlists = %v", got.Playlists)
	}
}

func TestLoadMap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triggers.yaml")
	if err := os.WriteFile(path, []byte("doors-open: ambient\nshowtime: energetic\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadMap(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if playlist, ok := m.Resolve("showtime"); !ok || playlist != "energetic" {
		t.Fatalf("resolve = %q %v", playlist, ok)
	}
	if _, ok := m.Resolve("missing"); ok {
		t.Fatal("resolved unknown trigger")
	}

	if _, err := LoadMap(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if err := os.WriteFile(path, []byte("[not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMap(path); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func TestLogsEndpoint(t *testing.T) {
	ts := newTestServer(t, &stubController{}, nil)

	resp, err := http.Get(ts.URL + "/api/logs?level=info&limit=10")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got struct {
		Entries []logbuffer.Entry `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Message != "now playing" {
		t.Fatalf("entries = %+v", got.Entries)
	}

	stats, err := http.Get(ts.URL + "/api/logs/stats")
	if err != nil {
		t.Fatal(err)
	}
	stats.Body.Close()
	if stats.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", stats.StatusCode)
	}
}

func TestMapBind(t *testing.T) {
	m := NewMap(nil)
	m.Bind("doors-open", "ambient")
	if playlist, ok := m.Resolve("doors-open"); !ok || playlist != "ambient" {
		t.Fatalf("resolve = %q %v", playlist, ok)
	}
}
