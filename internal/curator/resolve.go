package curator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-spotify-playlist-curator/internal/llm"
	"github.com/justestif/go-spotify-playlist-curator/internal/playlist"
	"github.com/justestif/go-spotify-playlist-curator/internal/resolve"
	"github.com/justestif/go-spotify-playlist-curator/internal/status"
)

// Resolved is a playlist matched against the catalog.
type Resolved struct {
	Playlist      playlist.Playlist     `json:"playlist"`
	URIs          []string              `json:"uris"` // aligned with Playlist.Songs; "" when unplaced
	Unresolved    []playlist.Unresolved `json:"unresolved"`
	ResolvedCount int                   `json:"resolvedCount"`
	Disambiguated int                   `json:"disambiguated"`

	// DisambiguationError is set when the LLM pass failed. The result is
	// still usable with the songs the catalog search placed.
	DisambiguationError string `json:"disambiguationError,omitempty"`
}

// ResolveBatch resolves playlists, or the user's stored batch when
// playlists is empty. Playlists resolve concurrently; results keep input
// order.
func (s *Service) ResolveBatch(ctx context.Context, cat Catalog, userID string, playlists []playlist.Playlist, model string) ([]Resolved, error) {
	if len(playlists) == 0 {
		batch, err := s.CachedBatch(userID)
		if err != nil {
			return nil, fmt.Errorf("loading stored batch: %w", err)
		}
		if batch == nil || len(batch.Playlists) == 0 {
			return nil, ErrNoBatch
		}
		playlists = batch.Playlists
	}

	sink := s.sink(userID)
	results := make([]Resolved, len(playlists))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, pl := range playlists {
		g.Go(func() error {
			r, err := s.resolveOne(ctx, cat, sink, pl, model)
			if err != nil {
				return err
			}
			results[i] = r
			sink.Publish(status.Event{
				Type:     status.TypeBatch,
				Playlist: r.Playlist.Name,
				Index:    i,
				Total:    len(playlists),
				Message:  fmt.Sprintf("resolved %d of %d songs", r.ResolvedCount, len(r.Playlist.Songs)),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// MatchPasted resolves a free-text song list, one "Title - Artist" per line.
func (s *Service) MatchPasted(ctx context.Context, cat Catalog, userID, name, text, model string) (Resolved, error) {
	songs := playlist.ParseSongList(text)
	if len(songs) == 0 {
		return Resolved{}, ErrNoSongs
	}
	if name == "" {
		name = "Pasted songs"
	}
	return s.resolveOne(ctx, cat, s.sink(userID), playlist.Playlist{Name: name, Songs: songs}, model)
}

func (s *Service) resolveOne(ctx context.Context, cat Catalog, sink status.Sink, pl playlist.Playlist, model string) (Resolved, error) {
	pl = pl.Sanitize()

	opts := append([]resolve.Option{resolve.WithLogger(s.log), resolve.WithSink(sink)}, s.resolveOpts...)
	res, err := resolve.New(s.queue, opts...).Resolve(ctx, cat, pl.Songs, pl.Name)
	if err != nil {
		return Resolved{}, fmt.Errorf("resolving %q: %w", pl.Name, err)
	}

	out := Resolved{
		Playlist:      pl,
		URIs:          res.URIs,
		Unresolved:    res.Unresolved,
		ResolvedCount: res.ResolvedCount,
	}
	if len(res.Unresolved) == 0 {
		return out, nil
	}

	picked, err := s.pass.Resolve(ctx, pl, res.Unresolved, s.modelOr(model))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Resolved{}, ctxErr
		}
		// Unplaced songs stay unresolved; the user can still publish the rest.
		s.log.Warn("disambiguation failed",
			zap.String("playlist", pl.Name),
			zap.Error(err))
		out.DisambiguationError = disambiguationMessage(err)
		return out, nil
	}

	out.Playlist = picked.Playlist
	out.URIs = resolve.Merge(res.URIs, picked.URIs)
	out.ResolvedCount = resolve.Count(out.URIs)
	out.Disambiguated = picked.ResolvedCount
	out.Unresolved = remaining(res.Unresolved, out.URIs)
	return out, nil
}

func disambiguationMessage(err error) string {
	if errors.Is(err, llm.ErrInvalidJSON) {
		return "the model returned an unreadable reply; unmatched songs were left unresolved"
	}
	return "the model could not be reached; unmatched songs were left unresolved"
}

// remaining drops entries whose song now has a URI.
func remaining(unresolved []playlist.Unresolved, uris []string) []playlist.Unresolved {
	out := make([]playlist.Unresolved, 0, len(unresolved))
	for _, u := range unresolved {
		if u.Index >= 0 && u.Index < len(uris) && uris[u.Index] != "" {
			continue
		}
		out = append(out, u)
	}
	return out
}

// IsUserError reports whether err is caused by the request rather than a
// failing dependency.
func IsUserError(err error) bool {
	return errors.Is(err, ErrNoBatch) ||
		errors.Is(err, ErrNoSongs) ||
		errors.Is(err, ErrNothingToPublish) ||
		errors.Is(err, ErrMissingName)
}
