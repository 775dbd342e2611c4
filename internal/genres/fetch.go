package genres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/justestif/go-spotify-playlist-curator/internal/catalog"
	"github.com/justestif/go-spotify-playlist-curator/internal/queue"
	"github.com/justestif/go-spotify-playlist-curator/internal/status"
)

const (
	// BatchSize is the number of artists looked up per catalog request.
	BatchSize = catalog.MaxArtistsPerRequest
	// DefaultBatchPause is the pause after each batch, on top of queue spacing.
	DefaultBatchPause = 150 * time.Millisecond
)

// ArtistLookup fetches artists by ID.
type ArtistLookup interface {
	GetArtists(ctx context.Context, ids []string) ([]catalog.Artist, error)
}

// Fetcher looks up artist genres through the request queue with caching.
type Fetcher struct {
	queue *queue.Queue
	cache Cache
	log   *zap.Logger
	pause time.Duration
	sleep queue.SleepFunc
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithCache sets the genre cache.
func WithCache(c Cache) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.cache = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.log = l
		}
	}
}

// WithBatchPause sets the pause after each batch.
func WithBatchPause(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d >= 0 {
			f.pause = d
		}
	}
}

// WithSleep replaces the pause implementation. Used in tests.
func WithSleep(fn queue.SleepFunc) FetcherOption {
	return func(f *Fetcher) {
		if fn != nil {
			f.sleep = fn
		}
	}
}

// NewFetcher creates a Fetcher submitting lookups to q. Without WithCache an
// in-memory cache is used.
func NewFetcher(q *queue.Queue, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		queue: q,
		cache: NewMemoryCache(),
		log:   zap.NewNop(),
		pause: DefaultBatchPause,
		sleep: queue.Sleep,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ArtistGenres returns genre tags for ids. Cached artists are not looked up
// again. Artists unknown to the catalog map to an empty slice. Cache failures
// are logged and otherwise ignored.
func (f *Fetcher) ArtistGenres(ctx context.Context, lookup ArtistLookup, ids []string, sink status.Sink) (map[string][]string, error) {
	sink = status.Or(sink)
	ids = dedupe(ids)

	result := make(map[string][]string, len(ids))
	cached, err := f.cache.GetMany(ctx, ids)
	if err != nil {
		f.log.Warn("reading genre cache", zap.Error(err))
		cached = nil
	}
	var missing []string
	for _, id := range ids {
		if g, ok := cached[id]; ok {
			result[id] = g
			continue
		}
		missing = append(missing, id)
	}

	f.log.Debug("fetching artist genres",
		zap.Int("artists", len(ids)),
		zap.Int("cached", len(ids)-len(missing)))

	batches := (len(missing) + BatchSize - 1) / BatchSize
	for b, start := 0, 0; start < len(missing); b, start = b+1, start+BatchSize {
		end := min(start+BatchSize, len(missing))
		batch := missing[start:end]

		artists, err := queue.Do(ctx, f.queue, func(ctx context.Context) ([]catalog.Artist, error) {
			return lookup.GetArtists(ctx, batch)
		})
		if err != nil {
			return result, fmt.Errorf("fetching artist genres (batch %d-%d): %w", start+1, end, err)
		}

		fetched := make(map[string][]string, len(batch))
		for _, id := range batch {
			fetched[id] = []string{}
		}
		for _, a := range artists {
			if _, ok := fetched[a.ID]; ok {
				fetched[a.ID] = nonNil(a.Genres)
			}
		}
		for id, g := range fetched {
			result[id] = g
		}

		if err := f.cache.SetMany(ctx, fetched); err != nil {
			f.log.Warn("writing genre cache", zap.Error(err))
		}

		sink.Publish(status.Event{
			Type:    status.TypeGenres,
			Index:   b,
			Total:   batches,
			Message: fmt.Sprintf("fetched genres for %d of %d artists", end, len(missing)),
		})

		if err := f.sleep(ctx, f.pause); err != nil {
			return result, err
		}
	}

	return result, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
