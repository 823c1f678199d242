/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package metadata

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/eventdeck/eventdeck/internal/library"
)

const defaultCacheSize = 4096

// Resolver memoizes extracted metadata per track ID so re-selection does
// not re-parse the source bytes. Invalidated wholesale on library clear.
type Resolver struct {
	extractor *Extractor
	cache     *lru.Cache[string, Metadata]
	logger    zerolog.Logger
}

// NewResolver creates a caching resolver in front of an extractor.
func NewResolver(extractor *Extractor, logger zerolog.Logger) *Resolver {
	cache, _ := lru.New[string, Metadata](defaultCacheSize)
	return &Resolver{
		extractor: extractor,
		cache:     cache,
		logger:    logger.With().Str("component", "metadata_cache").Logger(),
	}
}

// Resolve returns cached metadata for the track, extracting on a miss.
// Extraction failures still produce usable filename-derived metadata; those
// results are cached too, since the underlying bytes will not change within
// a session.
func (r *Resolver) Resolve(ctx context.Context, track library.Track) (Metadata, error) {
	if meta, ok := r.cache.Get(track.ID); ok {
		return meta, nil
	}

	meta, err := r.extractor.Extract(ctx, track.Source, track.Playlist)
	if ctx.Err() != nil {
		return Metadata{}, ctx.Err()
	}
	r.cache.Add(track.ID, meta)
	if err != nil {
		r.logger.Debug().Err(err).Str("track", track.ID).Msg("extraction fell back to filename metadata")
	}
	return meta, nil
}

// Correct updates the cached duration once the engine reports the decoded
// value; title/artist/album are left as resolved.
func (r *Resolver) Correct(trackID string, durationSeconds float64) {
	if meta, ok := r.cache.Get(trackID); ok {
		meta.Duration = durationSeconds
		r.cache.Add(trackID, meta)
	}
}

// Invalidate drops all cached entries.
func (r *Resolver) Invalidate() {
	r.cache.Purge()
}
