/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package library holds the in-memory track catalog and per-playlist play
// history. The catalog is rebuilt each session from ingested folders; it is
// mutated only by the scheduler and handed out as value snapshots.
package library

import (
	"io"
	"os"
)

// ByteSource is an opaque handle to a track's audio bytes.
type ByteSource interface {
	// Open returns a reader over the full audio payload.
	Open() (io.ReadCloser, error)
	// Name returns a human-meaningful name for the source (usually a file path).
	Name() string
}

// FileSource is a filesystem-backed ByteSource.
type FileSource struct {
	Path string
}

// Open opens the underlying file.
func (s FileSource) Open() (io.ReadCloser, error) {
	return os.Open(s.Path)
}

// Name returns the file path.
func (s FileSource) Name() string { return s.Path }

// Track is a catalog entry. ID is a stable path-like string, unique within
// its playlist; it alone determines track identity. Duration is zero until
// metadata extraction or the first decode reports it, and may be corrected
// afterwards without changing identity.
type Track struct {
	ID       string
	Title    string
	Artist   string
	Album    string
	Duration float64 // seconds
	Playlist string
	Source   ByteSource
}
