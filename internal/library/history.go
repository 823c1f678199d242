/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import "sync"

// History tracks which track IDs have played per playlist since the last
// exhaustion reset. |history| never exceeds the playlist size: once every
// track has played, the set is cleared before the next selection.
type History struct {
	mu     sync.Mutex
	played map[string]map[string]struct{}
}

// NewHistory creates an empty play-history tracker.
func NewHistory() *History {
	return &History{played: make(map[string]map[string]struct{})}
}

// Mark records a track as played.
func (h *History) Mark(playlist, trackID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.played[playlist]
	if !ok {
		set = make(map[string]struct{})
		h.played[playlist] = set
	}
	set[trackID] = struct{}{}
}

// Size returns the number of played tracks recorded for a playlist.
func (h *History) Size(playlist string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.played[playlist])
}

// Played reports whether a track has played since the last reset.
func (h *History) Played(playlist, trackID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.played[playlist][trackID]
	return ok
}

// ResetIfExhausted clears the playlist's history when every track has
// played (|history| >= total). Returns true if a reset happened.
func (h *History) ResetIfExhausted(playlist string, total int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if total > 0 && len(h.played[playlist]) >= total {
		delete(h.played, playlist)
		return true
	}
	return false
}

// Reset clears the playlist's history unconditionally.
func (h *History) Reset(playlist string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.played, playlist)
}

// Clear drops all history.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.played = make(map[string]map[string]struct{})
}
