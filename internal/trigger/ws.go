/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package trigger

import (
	"context"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/eventdeck/eventdeck/internal/events"
)

const wsPingInterval = 15 * time.Second

// wsEvent is the push payload sent to now-playing subscribers.
type wsEvent struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      events.Payload `json:"data,omitempty"`
}

// handleNowPlayingWS streams track changes, track ends, and notices to the
// client until it disconnects. The first frame is always the current
// now-playing snapshot so late joiners render immediately.
func (s *Server) handleNowPlayingWS(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	ctx := r.Context()
	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("nowplaying websocket connected")

	changes := s.bus.Subscribe(events.EventTrackChange)
	ended := s.bus.Subscribe(events.EventTrackEnded)
	notices := s.bus.Subscribe(events.EventNotice)
	defer func() {
		s.bus.Unsubscribe(events.EventTrackChange, changes)
		s.bus.Unsubscribe(events.EventTrackEnded, ended)
		s.bus.Unsubscribe(events.EventNotice, notices)
	}()

	snapshot := s.nowPlaying()
	if err := wsjson.Write(ctx, conn, wsEvent{
		Type:      "snapshot",
		Timestamp: time.Now(),
		Data: events.Payload{
			"playing":          snapshot.Playing,
			"playlist":         snapshot.Playlist,
			"track_id":         snapshot.TrackID,
			"title":            snapshot.Title,
			"artist":           snapshot.Artist,
			"position_seconds": snapshot.Position,
			"duration_seconds": snapshot.Duration,
		},
	}); err != nil {
		return
	}

	// Drain client frames so pongs and close frames are processed.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-readDone:
			conn.Close(ws.StatusNormalClosure, "client disconnected")
			return
		case <-pingTicker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				conn.Close(ws.StatusInternalError, "ping failed")
				return
			}
		case payload := <-changes:
			if s.push(ctx, conn, "track_change", payload) != nil {
				return
			}
		case payload := <-ended:
			if s.push(ctx, conn, "track_ended", payload) != nil {
				return
			}
		case payload := <-notices:
			if s.push(ctx, conn, "notice", payload) != nil {
				return
			}
		}
	}
}

func (s *Server) push(ctx context.Context, conn *ws.Conn, eventType string, payload events.Payload) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := wsjson.Write(writeCtx, conn, wsEvent{Type: eventType, Timestamp: time.Now(), Data: payload})
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket push failed, dropping client")
	}
	return err
}
