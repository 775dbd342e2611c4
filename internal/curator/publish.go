package curator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/justestif/go-spotify-playlist-curator/internal/playlist"
	"github.com/justestif/go-spotify-playlist-curator/internal/queue"
	"github.com/justestif/go-spotify-playlist-curator/internal/status"
)

// addBatchSize is the number of tracks added per queued request.
const addBatchSize = 100

const trackURIPrefix = "spotify:track:"

// PublishRequest describes a playlist to create in the user's account.
type PublishRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URIs        []string `json:"uris"`
	Public      bool     `json:"public"`
	Prompt      string   `json:"prompt,omitempty"`
	Requested   int      `json:"requested,omitempty"` // songs originally asked for
}

// Publish creates the playlist and adds its tracks. Empty, duplicate and
// non-track URIs are dropped. A failure to record history is logged, not
// returned, since the playlist already exists by then.
func (s *Service) Publish(ctx context.Context, cat Catalog, userID string, req PublishRequest) (*Record, error) {
	meta := playlist.Playlist{Name: req.Name, Description: req.Description}.Sanitize()
	if meta.Name == "" {
		return nil, ErrMissingName
	}

	uris := trackURIs(req.URIs)
	if len(uris) == 0 {
		return nil, ErrNothingToPublish
	}

	type created struct{ id, url string }
	pl, err := queue.Do(ctx, s.queue, func(ctx context.Context) (created, error) {
		id, url, err := cat.CreatePlaylist(ctx, userID, meta.Name, meta.Description, req.Public)
		return created{id, url}, err
	})
	if err != nil {
		return nil, fmt.Errorf("creating playlist %q: %w", meta.Name, err)
	}

	for start := 0; start < len(uris); start += addBatchSize {
		chunk := uris[start:min(start+addBatchSize, len(uris))]
		if err := s.queue.Submit(ctx, func(ctx context.Context) error {
			return cat.AddTracks(ctx, pl.id, chunk)
		}); err != nil {
			return nil, fmt.Errorf("adding tracks %d-%d to %q: %w", start+1, start+len(chunk), meta.Name, err)
		}
	}

	requested := req.Requested
	if requested < len(uris) {
		requested = len(uris)
	}
	rec := &Record{
		UserID:      userID,
		SpotifyID:   pl.id,
		Name:        meta.Name,
		Description: meta.Description,
		URL:         pl.url,
		Public:      req.Public,
		Prompt:      strings.TrimSpace(req.Prompt),
		Requested:   requested,
		Resolved:    len(uris),
		CreatedAt:   s.now(),
	}
	if err := s.history.Record(ctx, rec, uris); err != nil {
		s.log.Warn("recording published playlist",
			zap.String("playlist", pl.id),
			zap.Error(err))
	}

	s.sink(userID).Publish(status.Event{
		Type:     status.TypePublish,
		Playlist: meta.Name,
		Total:    len(uris),
		Message:  pl.url,
	})
	s.log.Info("published playlist",
		zap.String("user", userID),
		zap.String("playlist", pl.id),
		zap.Int("tracks", len(uris)))

	return rec, nil
}

// trackURIs keeps the first occurrence of every track URI.
func trackURIs(uris []string) []string {
	seen := make(map[string]bool, len(uris))
	out := make([]string, 0, len(uris))
	for _, uri := range uris {
		uri = strings.TrimSpace(uri)
		if !strings.HasPrefix(uri, trackURIPrefix) || len(uri) == len(trackURIPrefix) || seen[uri] {
			continue
		}
		seen[uri] = true
		out = append(out, uri)
	}
	return out
}
