// Package resolve turns requested songs into Spotify track URIs.
//
// Each song is searched with up to three query strategies, one queued unit of
// work per song. Songs that cannot be matched confidently are returned as
// [playlist.Unresolved] entries carrying ranked candidates for review.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/justestif/go-spotify-playlist-curator/internal/catalog"
	"github.com/justestif/go-spotify-playlist-curator/internal/matcher"
	"github.com/justestif/go-spotify-playlist-curator/internal/playlist"
	"github.com/justestif/go-spotify-playlist-curator/internal/queue"
	"github.com/justestif/go-spotify-playlist-curator/internal/status"
)

const (
	// DefaultSearchLimit is the number of search results requested per query.
	DefaultSearchLimit = 20
	// DefaultSongPause is the pause between songs, on top of queue spacing.
	DefaultSongPause = 120 * time.Millisecond
)

// Searcher searches the catalog for tracks.
type Searcher interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]catalog.Track, error)
}

// Result is the outcome of resolving a list of songs. URIs has one entry per
// input song, in order; an empty string means the song could not be placed.
type Result struct {
	URIs          []string              `json:"uris"`
	Unresolved    []playlist.Unresolved `json:"unresolved"`
	ResolvedCount int                   `json:"resolvedCount"`
}

// Pipeline resolves songs through a shared request queue.
type Pipeline struct {
	queue          *queue.Queue
	log            *zap.Logger
	sink           status.Sink
	searchLimit    int
	candidateLimit int
	songPause      time.Duration
	fallThrough    bool
	sleep          queue.SleepFunc
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithSink sets where per-song progress events are published.
func WithSink(s status.Sink) Option {
	return func(p *Pipeline) {
		p.sink = status.Or(s)
	}
}

// WithSongPause sets the pause between songs.
func WithSongPause(d time.Duration) Option {
	return func(p *Pipeline) {
		if d >= 0 {
			p.songPause = d
		}
	}
}

// WithFallThrough makes a query whose results contain no acceptable match
// fall through to the remaining queries. The best-scoring candidate set seen
// is kept, and candidates still come from a single query. Off by default:
// the first query with any results decides the song.
func WithFallThrough(enabled bool) Option {
	return func(p *Pipeline) {
		p.fallThrough = enabled
	}
}

// WithSleep replaces the pause implementation. Used in tests.
func WithSleep(fn queue.SleepFunc) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

// New creates a pipeline that submits all catalog work to q.
func New(q *queue.Queue, opts ...Option) *Pipeline {
	p := &Pipeline{
		queue:          q,
		log:            zap.NewNop(),
		sink:           status.Nop,
		searchLimit:    DefaultSearchLimit,
		candidateLimit: matcher.DefaultCandidateLimit,
		songPause:      DefaultSongPause,
		sleep:          queue.Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// songOutcome is what one queued unit produces for a song.
type songOutcome struct {
	uri        string
	query      string
	candidates []playlist.Candidate
}

// Resolve searches for every song and returns the matched URIs plus the
// unresolved entries. Missing matches are data, not errors. An error is
// returned only when the catalog cannot be used at all: expired
// authorization, exhausted rate-limit retries, a closed queue or a cancelled
// context.
func (p *Pipeline) Resolve(ctx context.Context, searcher Searcher, songs []playlist.Song, playlistName string) (Result, error) {
	result := Result{
		URIs:       make([]string, len(songs)),
		Unresolved: []playlist.Unresolved{},
	}

	for i, song := range songs {
		if i > 0 {
			if err := p.sleep(ctx, p.songPause); err != nil {
				return result, err
			}
		}

		queries := Queries(song)
		if !song.Valid() {
			result.Unresolved = append(result.Unresolved, playlist.Unresolved{
				Index:       i,
				Requested:   song,
				SearchQuery: firstOrEmpty(queries),
				Candidates:  []playlist.Candidate{},
			})
			p.publish(playlistName, i, len(songs), song, status.StateSkipped)
			continue
		}

		outcome, err := queue.Do(ctx, p.queue, func(ctx context.Context) (songOutcome, error) {
			return p.resolveSong(ctx, searcher, song, queries)
		})
		if err != nil {
			return result, fmt.Errorf("resolving %q by %q: %w", song.Title, song.Artist, err)
		}

		if outcome.uri != "" {
			result.URIs[i] = outcome.uri
			result.ResolvedCount++
			p.publish(playlistName, i, len(songs), song, status.StateMatched)
			continue
		}

		candidates := outcome.candidates
		if candidates == nil {
			candidates = []playlist.Candidate{}
		}
		result.Unresolved = append(result.Unresolved, playlist.Unresolved{
			Index:       i,
			Requested:   song,
			SearchQuery: outcome.query,
			Candidates:  candidates,
		})
		p.publish(playlistName, i, len(songs), song, status.StateUnresolved)
	}

	p.log.Info("resolved playlist songs",
		zap.String("playlist", playlistName),
		zap.Int("songs", len(songs)),
		zap.Int("resolved", result.ResolvedCount),
		zap.Int("unresolved", len(result.Unresolved)))

	return result, nil
}

// resolveSong runs inside the queue. Rate-limit errors are returned so the
// queue's backoff retries the whole unit.
func (p *Pipeline) resolveSong(ctx context.Context, searcher Searcher, song playlist.Song, queries []string) (songOutcome, error) {
	best := songOutcome{query: firstOrEmpty(queries)}
	bestScore := 0.0
	haveCandidates := false

	for _, query := range queries {
		tracks, err := searcher.SearchTracks(ctx, query, p.searchLimit)
		if err != nil {
			if fatal(ctx, err) {
				return songOutcome{}, err
			}
			p.log.Warn("catalog query failed",
				zap.String("query", query),
				zap.Error(err))
			continue
		}
		if len(tracks) == 0 {
			continue
		}

		for _, t := range tracks {
			if matcher.IsAcceptableMatch(t, song) {
				return songOutcome{uri: t.URI, query: query}, nil
			}
		}

		candidates := matcher.Rank(tracks, song, p.candidateLimit)
		if !p.fallThrough {
			return songOutcome{query: query, candidates: candidates}, nil
		}

		if score := topScore(candidates); !haveCandidates || score > bestScore {
			best = songOutcome{query: query, candidates: candidates}
			bestScore = score
			haveCandidates = true
		}
	}

	return best, nil
}

func (p *Pipeline) publish(name string, index, total int, song playlist.Song, state string) {
	p.sink.Publish(status.Event{
		Type:     status.TypeSong,
		Playlist: name,
		Index:    index,
		Total:    total,
		Title:    song.Title,
		Artist:   song.Artist,
		State:    state,
	})
}

// fatal reports whether a search error must abort the song rather than be
// treated as an empty result.
func fatal(ctx context.Context, err error) bool {
	return queue.IsRateLimited(err) ||
		errors.Is(err, catalog.ErrAuthExpired) ||
		ctx.Err() != nil
}

func topScore(candidates []playlist.Candidate) float64 {
	if len(candidates) == 0 {
		return 0
	}
	return candidates[0].Score
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
