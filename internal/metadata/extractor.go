/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package metadata resolves track metadata from embedded tags, with a
// filename-derived fallback when parsing fails, and memoizes results so a
// track is never re-parsed on re-selection.
package metadata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/dhowden/tag"
	"github.com/rs/zerolog"

	"github.com/eventdeck/eventdeck/internal/library"
)

// ErrExtraction indicates the embedded tags could not be parsed.
var ErrExtraction = errors.New("metadata extraction failed")

// Metadata is the resolved tag data for a track.
type Metadata struct {
	Title    string
	Artist   string
	Album    string
	Duration float64 // seconds; 0 until the engine reports the decoded duration
}

// Extractor parses embedded tags from a ByteSource.
type Extractor struct {
	logger zerolog.Logger
}

// NewExtractor creates a tag extractor.
func NewExtractor(logger zerolog.Logger) *Extractor {
	return &Extractor{logger: logger.With().Str("component", "metadata").Logger()}
}

// Extract reads the source fully and parses its embedded tags. hintFolder
// (usually the owning playlist name) fills the album field when tags are
// missing. On parse failure the filename fallback is applied and
// ErrExtraction is wrapped so callers can tell the two apart.
func (e *Extractor) Extract(ctx context.Context, src library.ByteSource, hintFolder string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}

	rc, err := src.Open()
	if err != nil {
		return Fallback(src.Name(), hintFolder), fmt.Errorf("%w: open %s: %v", ErrExtraction, src.Name(), err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return Fallback(src.Name(), hintFolder), fmt.Errorf("%w: read %s: %v", ErrExtraction, src.Name(), err)
	}

	parsed, err := tag.ReadFrom(bytes.NewReader(raw))
	if err != nil {
		e.logger.Debug().Err(err).Str("source", src.Name()).Msg("tag parse failed, using filename fallback")
		return Fallback(src.Name(), hintFolder), fmt.Errorf("%w: %s: %v", ErrExtraction, src.Name(), err)
	}

	meta := Metadata{
		Title:  strings.TrimSpace(parsed.Title()),
		Artist: strings.TrimSpace(parsed.Artist()),
		Album:  strings.TrimSpace(parsed.Album()),
	}

	fb := Fallback(src.Name(), hintFolder)
	if meta.Title == "" {
		meta.Title = fb.Title
	}
	if meta.Artist == "" {
		meta.Artist = fb.Artist
	}
	if meta.Album == "" {
		meta.Album = fb.Album
	}
	return meta, nil
}

// Fallback derives metadata from a filename when tags are unreadable.
// "artist-name---song_title.mp3" yields artist "Artist Name" and title
// "Song Title"; without an artist separator the whole stem becomes the
// title. Album defaults to the hint folder, duration to zero.
func Fallback(path, hintFolder string) Metadata {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	artist := "Unknown Artist"
	title := stem
	if idx := strings.Index(stem, "---"); idx >= 0 {
		artist = humanize(stem[:idx])
		title = stem[idx+3:]
	}

	album := hintFolder
	if album == "" {
		album = "Unknown Album"
	}

	return Metadata{
		Title:  humanize(title),
		Artist: artist,
		Album:  album,
	}
}

// humanize turns a filename fragment into a display string: separators
// become spaces and each word is capitalized.
func humanize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', '.':
			return ' '
		}
		return r
	}, s)

	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	if len(words) == 0 {
		return "Untitled"
	}
	return strings.Join(words, " ")
}
