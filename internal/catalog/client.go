// Package catalog provides a wrapper around the Spotify Web API.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// MaxSearchLimit is the largest page size accepted by the search endpoint.
	MaxSearchLimit = 50
	// MaxArtistsPerRequest is the Spotify limit for the several-artists endpoint.
	MaxArtistsPerRequest = 50
	// MaxLikedPerRequest is the largest page of saved tracks.
	MaxLikedPerRequest = 50

	maxTracksPerRequest = 100
)

// ErrAuthExpired is returned when Spotify rejects the access token or the
// token can no longer be refreshed.
var ErrAuthExpired = errors.New("spotify authorization expired")

// Client wraps the Spotify API client with convenience methods.
type Client struct {
	api    *spotify.Client
	market string
	log    *zap.Logger
}

// Option configures a Client.
type Option func(*options)

type options struct {
	market  string
	baseURL string
	log     *zap.Logger
}

// WithMarket restricts searches to tracks playable in the given ISO country code.
func WithMarket(market string) Option {
	return func(o *options) {
		o.market = strings.ToUpper(strings.TrimSpace(market))
	}
}

// WithBaseURL points the client at a different API root. Used in tests.
func WithBaseURL(url string) Option {
	return func(o *options) {
		if !strings.HasSuffix(url, "/") {
			url += "/"
		}
		o.baseURL = url
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// New creates a client on top of an authenticated HTTP client, usually the
// one returned by the auth package. Rate-limit responses are surfaced as
// *StatusError values carrying the Retry-After hint.
func New(httpClient *http.Client, opts ...Option) *Client {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	var apiOpts []spotify.ClientOption
	if o.baseURL != "" {
		apiOpts = append(apiOpts, spotify.WithBaseURL(o.baseURL))
	}

	return &Client{
		api:    spotify.New(withRateLimits(httpClient), apiOpts...),
		market: o.market,
		log:    o.log,
	}
}

// User is the authenticated Spotify account.
type User struct {
	ID          string
	DisplayName string
	Country     string
}

// CurrentUser returns the authenticated user's profile.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return User{}, fmt.Errorf("getting current user: %w", classify(err))
	}
	return User{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Country:     user.Country,
	}, nil
}

// SearchTracks runs a track search and returns at most limit results.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	if limit <= 0 || limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	reqOpts := []spotify.RequestOption{spotify.Limit(limit)}
	if c.market != "" {
		reqOpts = append(reqOpts, spotify.Market(c.market))
	}

	result, err := c.api.Search(ctx, query, spotify.SearchTypeTrack, reqOpts...)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, classify(err))
	}
	if result.Tracks == nil {
		return nil, nil
	}

	tracks := make([]Track, 0, len(result.Tracks.Tracks))
	for _, t := range result.Tracks.Tracks {
		tracks = append(tracks, convertFullTrack(t))
	}
	return tracks, nil
}

// GetArtists fetches up to MaxArtistsPerRequest artists by ID. Unknown IDs
// are skipped.
func (c *Client) GetArtists(ctx context.Context, ids []string) ([]Artist, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxArtistsPerRequest {
		return nil, fmt.Errorf("getting artists: %d ids exceeds limit of %d", len(ids), MaxArtistsPerRequest)
	}

	spotifyIDs := make([]spotify.ID, len(ids))
	for i, id := range ids {
		spotifyIDs[i] = spotify.ID(id)
	}

	full, err := c.api.GetArtists(ctx, spotifyIDs...)
	if err != nil {
		return nil, fmt.Errorf("getting artists: %w", classify(err))
	}

	artists := make([]Artist, 0, len(full))
	for _, a := range full {
		if a == nil {
			continue // Unknown ID
		}
		artists = append(artists, Artist{
			ID:     a.ID.String(),
			Name:   a.Name,
			Genres: a.Genres,
		})
	}
	return artists, nil
}

// LikedPage is one page of the user's saved tracks.
type LikedPage struct {
	Tracks []Track
	Total  int
	Next   int // Offset of the next page, or -1 when this is the last page
}

// LikedSongsPage fetches one page of the user's liked songs.
func (c *Client) LikedSongsPage(ctx context.Context, offset, limit int) (LikedPage, error) {
	if limit <= 0 || limit > MaxLikedPerRequest {
		limit = MaxLikedPerRequest
	}

	page, err := c.api.CurrentUsersTracks(ctx, spotify.Limit(limit), spotify.Offset(offset))
	if err != nil {
		return LikedPage{}, fmt.Errorf("fetching liked songs at offset %d: %w", offset, classify(err))
	}

	result := LikedPage{
		Tracks: make([]Track, 0, len(page.Tracks)),
		Total:  int(page.Total),
		Next:   -1,
	}
	for _, saved := range page.Tracks {
		result.Tracks = append(result.Tracks, convertSavedTrack(saved))
	}
	if page.Next != "" && len(page.Tracks) > 0 {
		result.Next = offset + len(page.Tracks)
	}
	return result, nil
}

// CreatePlaylist creates a new playlist for the given user and returns its
// ID and web URL.
func (c *Client) CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (id, url string, err error) {
	playlist, err := c.api.CreatePlaylistForUser(ctx, userID, name, description, public, false)
	if err != nil {
		return "", "", fmt.Errorf("creating playlist: %w", classify(err))
	}
	return playlist.ID.String(), playlist.ExternalURLs["spotify"], nil
}

// AddTracks adds tracks, given as URIs or bare IDs, to a playlist. Spotify
// accepts at most 100 tracks per request so larger sets are batched.
func (c *Client) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	ids := TrackIDs(uris)
	if len(ids) == 0 {
		return nil
	}

	for i := 0; i < len(ids); i += maxTracksPerRequest {
		end := min(i+maxTracksPerRequest, len(ids))
		batch := ids[i:end]

		if _, err := c.api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), batch...); err != nil {
			return fmt.Errorf("adding tracks (batch %d-%d): %w", i+1, end, classify(err))
		}
		c.log.Debug("added tracks to playlist",
			zap.String("playlist_id", playlistID),
			zap.Int("from", i+1),
			zap.Int("to", end))
	}
	return nil
}

// TrackIDs converts "spotify:track:<id>" URIs to IDs, dropping empty entries.
func TrackIDs(uris []string) []spotify.ID {
	ids := make([]spotify.ID, 0, len(uris))
	for _, uri := range uris {
		uri = strings.TrimSpace(uri)
		if uri == "" {
			continue
		}
		ids = append(ids, spotify.ID(uri[strings.LastIndex(uri, ":")+1:]))
	}
	return ids
}

// classify maps Spotify and OAuth failures onto this package's errors.
// Rate-limit errors are left untouched so callers can retry them.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}

	status := spotifyStatus(err)
	switch status {
	case 0:
		return err
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", ErrAuthExpired, err)
	default:
		return &StatusError{Status: status, Err: err}
	}
}

func spotifyStatus(err error) int {
	var value spotify.Error
	if errors.As(err, &value) {
		return value.Status
	}
	var ptr *spotify.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Status
	}
	return 0
}

func convertFullTrack(t spotify.FullTrack) Track {
	artists := make([]string, len(t.Artists))
	artistIDs := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
		artistIDs[i] = a.ID.String()
	}

	return Track{
		ID:          t.ID.String(),
		URI:         string(t.URI),
		Name:        t.Name,
		Artists:     artists,
		ArtistIDs:   artistIDs,
		Album:       t.Album.Name,
		Popularity:  int(t.Popularity),
		PreviewURL:  t.PreviewURL,
		Explicit:    t.Explicit,
		DurationMs:  int(t.Duration),
		ReleaseDate: t.Album.ReleaseDate,
	}
}

// convertSavedTrack converts a liked song, keeping the time it was saved.
func convertSavedTrack(saved spotify.SavedTrack) Track {
	track := convertFullTrack(saved.FullTrack)
	// Parse AddedAt timestamp, use zero value on failure
	track.AddedAt, _ = time.Parse(time.RFC3339, saved.AddedAt)
	if track.URI == "" && track.ID != "" {
		track.URI = "spotify:track:" + track.ID
	}
	return track
}
