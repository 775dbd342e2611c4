// Package curator ties generation, resolution, disambiguation, publishing
// and genre grouping together for the HTTP handlers.
package curator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/justestif/go-spotify-playlist-curator/internal/catalog"
	"github.com/justestif/go-spotify-playlist-curator/internal/disambiguate"
	"github.com/justestif/go-spotify-playlist-curator/internal/generator"
	"github.com/justestif/go-spotify-playlist-curator/internal/genres"
	"github.com/justestif/go-spotify-playlist-curator/internal/llm"
	"github.com/justestif/go-spotify-playlist-curator/internal/queue"
	"github.com/justestif/go-spotify-playlist-curator/internal/resolve"
	"github.com/justestif/go-spotify-playlist-curator/internal/status"
	"github.com/justestif/go-spotify-playlist-curator/internal/store"
)

const (
	// DefaultConcurrency is the number of playlists resolved at once. Their
	// catalog calls still run one at a time through the queue.
	DefaultConcurrency = 3
	// DefaultLikedLimit caps how many liked songs are read per operation.
	DefaultLikedLimit = 2000
	// DefaultSampleLimit is how many liked songs are read before generation.
	DefaultSampleLimit = 500
)

// Common errors.
var (
	ErrNoBatch          = errors.New("no generated playlists to resolve")
	ErrNoSongs          = errors.New("no songs found in the pasted list")
	ErrNothingToPublish = errors.New("playlist has no resolved tracks")
	ErrMissingName      = errors.New("playlist name is required")
)

// Catalog is the per-user catalog access the service needs. *catalog.Client
// implements it.
type Catalog interface {
	resolve.Searcher
	genres.ArtistLookup
	CurrentUser(ctx context.Context) (catalog.User, error)
	LikedSongsPage(ctx context.Context, offset, limit int) (catalog.LikedPage, error)
	CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (id, url string, err error)
	AddTracks(ctx context.Context, playlistID string, uris []string) error
}

var _ Catalog = (*catalog.Client)(nil)

// Service is the application service.
type Service struct {
	queue     *queue.Queue
	generator *generator.Generator
	pass      *disambiguate.Pass
	fetcher   *genres.Fetcher
	batches   *store.Dir
	history   History
	sinks     func(userID string) status.Sink
	log       *zap.Logger
	now       func() time.Time

	resolveOpts []resolve.Option
	concurrency int
	likedLimit  int
	sampleLimit int
	model       string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithBatches persists generated batches per user.
func WithBatches(d *store.Dir) Option {
	return func(s *Service) {
		s.batches = d
	}
}

// WithHistory records published playlists.
func WithHistory(h History) Option {
	return func(s *Service) {
		if h != nil {
			s.history = h
		}
	}
}

// WithGenreFetcher sets the artist genre fetcher.
func WithGenreFetcher(f *genres.Fetcher) Option {
	return func(s *Service) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithSinks routes each user's progress events. A status.Hub's Topic method
// fits.
func WithSinks(fn func(userID string) status.Sink) Option {
	return func(s *Service) {
		if fn != nil {
			s.sinks = fn
		}
	}
}

// WithResolveOptions adds options to every resolution pipeline.
func WithResolveOptions(opts ...resolve.Option) Option {
	return func(s *Service) {
		s.resolveOpts = append(s.resolveOpts, opts...)
	}
}

// WithConcurrency sets how many playlists of a batch resolve at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLikedLimit caps the liked songs read for genre grouping.
func WithLikedLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.likedLimit = n
		}
	}
}

// WithModel sets the default LLM model name.
func WithModel(model string) Option {
	return func(s *Service) {
		s.model = model
	}
}

// New creates a Service. All catalog calls are submitted to q.
func New(q *queue.Queue, model generator.Model, opts ...Option) *Service {
	s := &Service{
		queue:       q,
		history:     NewMemoryHistory(),
		sinks:       func(string) status.Sink { return status.Nop },
		log:         zap.NewNop(),
		now:         time.Now,
		concurrency: DefaultConcurrency,
		likedLimit:  DefaultLikedLimit,
		sampleLimit: DefaultSampleLimit,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.generator = generator.New(model, generator.WithLogger(s.log))
	s.pass = disambiguate.New(model, disambiguate.WithLogger(s.log))
	if s.fetcher == nil {
		s.fetcher = genres.NewFetcher(q, genres.WithLogger(s.log))
	}
	return s
}

func (s *Service) sink(userID string) status.Sink {
	return status.Or(s.sinks(userID))
}

func (s *Service) modelOr(model string) string {
	if model != "" {
		return model
	}
	return s.model
}

// LikedSongs reads up to limit of the user's liked songs, newest first. A
// non-positive limit uses the service default.
func (s *Service) LikedSongs(ctx context.Context, cat Catalog, limit int) ([]catalog.Track, error) {
	if limit <= 0 {
		limit = s.likedLimit
	}

	var tracks []catalog.Track
	for offset := 0; offset >= 0 && len(tracks) < limit; {
		pageSize := min(catalog.MaxLikedPerRequest, limit-len(tracks))
		page, err := queue.Do(ctx, s.queue, func(ctx context.Context) (catalog.LikedPage, error) {
			return cat.LikedSongsPage(ctx, offset, pageSize)
		})
		if err != nil {
			return tracks, fmt.Errorf("reading liked songs at offset %d: %w", offset, err)
		}
		tracks = append(tracks, page.Tracks...)
		if len(page.Tracks) == 0 {
			break
		}
		offset = page.Next
	}

	s.log.Debug("read liked songs", zap.Int("tracks", len(tracks)))
	return tracks, nil
}

// Generate asks the LLM for a batch of playlists based on the user's liked
// songs and stores it as the user's current batch.
func (s *Service) Generate(ctx context.Context, cat Catalog, userID string, req generator.Request) (*store.Batch, error) {
	liked, err := s.LikedSongs(ctx, cat, s.sampleLimit)
	if err != nil {
		return nil, err
	}

	req.Model = s.modelOr(req.Model)
	playlists, err := s.generator.Generate(ctx, liked, req)
	if err != nil {
		return nil, err
	}

	batch := &store.Batch{
		UserID:    userID,
		Prompt:    req.Prompt,
		CreatedAt: s.now(),
		Playlists: playlists,
	}
	if s.batches != nil && len(playlists) > 0 {
		if err := s.batches.For(userID).Save(batch); err != nil {
			s.log.Warn("saving generated batch", zap.String("user", userID), zap.Error(err))
		}
	}

	s.sink(userID).Publish(status.Event{
		Type:    status.TypeBatch,
		Total:   len(playlists),
		Message: fmt.Sprintf("generated %d playlists", len(playlists)),
	})
	return batch, nil
}

// CachedBatch returns the user's stored batch, or nil when there is none.
func (s *Service) CachedBatch(userID string) (*store.Batch, error) {
	if s.batches == nil {
		return nil, nil
	}
	return s.batches.For(userID).Load()
}

// DiscardBatch deletes the user's stored batch.
func (s *Service) DiscardBatch(userID string) error {
	if s.batches == nil {
		return nil
	}
	return s.batches.For(userID).Delete()
}

// Chat continues the ideation conversation.
func (s *Service) Chat(ctx context.Context, history []llm.Message, message, model string) (generator.Reply, error) {
	return s.generator.Chat(ctx, history, message, s.modelOr(model))
}

// GenrePlaylists groups the user's liked songs by the genres of their
// primary artists.
func (s *Service) GenrePlaylists(ctx context.Context, cat Catalog, userID string) ([]genres.GenrePlaylist, error) {
	liked, err := s.LikedSongs(ctx, cat, s.likedLimit)
	if err != nil {
		return nil, err
	}

	lookup, err := s.fetcher.ArtistGenres(ctx, cat, genres.PrimaryArtistIDs(liked), s.sink(userID))
	if err != nil {
		return nil, err
	}

	groups := genres.Group(liked, lookup)
	s.log.Info("grouped liked songs by genre",
		zap.String("user", userID),
		zap.Int("tracks", len(liked)),
		zap.Int("groups", len(groups)))
	return groups, nil
}

// CurrentUser returns the account cat is authorized for.
func (s *Service) CurrentUser(ctx context.Context, cat Catalog) (catalog.User, error) {
	return queue.Do(ctx, s.queue, cat.CurrentUser)
}

// MixResult is the result of GenreMixes.
type MixResult struct {
	Mixes    []genres.Mix    `json:"mixes"`
	Outliers []catalog.Track `json:"outliers"`
}

// GenreMixes clusters the user's liked songs by genre-tag similarity. A
// clustering failure is logged and every song is returned as an outlier.
func (s *Service) GenreMixes(ctx context.Context, cat Catalog, userID string, cfg genres.MixConfig) (MixResult, error) {
	liked, err := s.LikedSongs(ctx, cat, s.likedLimit)
	if err != nil {
		return MixResult{}, err
	}

	lookup, err := s.fetcher.ArtistGenres(ctx, cat, genres.PrimaryArtistIDs(liked), s.sink(userID))
	if err != nil {
		return MixResult{}, err
	}

	mixes, outliers, err := genres.Mixes(liked, lookup, cfg)
	if err != nil {
		s.log.Warn("clustering liked songs", zap.String("user", userID), zap.Error(err))
	}
	if mixes == nil {
		mixes = []genres.Mix{}
	}
	if outliers == nil {
		outliers = []catalog.Track{}
	}
	return MixResult{Mixes: mixes, Outliers: outliers}, nil
}
