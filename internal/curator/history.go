package curator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-spotify-playlist-curator/internal/db"
)

// maxMemoryHistory is the number of records kept per user in memory.
const maxMemoryHistory = 100

// Record is a published playlist.
type Record struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"-"`
	SpotifyID   string    `json:"spotifyId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url"`
	Public      bool      `json:"public"`
	Prompt      string    `json:"prompt,omitempty"`
	Requested   int       `json:"requested"`
	Resolved    int       `json:"resolved"`
	CreatedAt   time.Time `json:"createdAt"`
}

// History stores published playlists.
type History interface {
	Record(ctx context.Context, rec *Record, uris []string) error
	List(ctx context.Context, userID string, limit int) ([]Record, error)
}

// History returns the user's most recent published playlists.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.history.List(ctx, userID, limit)
}

// MemoryHistory keeps records in memory, newest first.
type MemoryHistory struct {
	mu      sync.RWMutex
	records map[string][]Record
}

// NewMemoryHistory creates an empty MemoryHistory.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{records: make(map[string][]Record)}
}

// Record stores rec, assigning an ID when missing.
func (h *MemoryHistory) Record(_ context.Context, rec *Record, _ []string) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	list := append([]Record{*rec}, h.records[rec.UserID]...)
	if len(list) > maxMemoryHistory {
		list = list[:maxMemoryHistory]
	}
	h.records[rec.UserID] = list
	return nil
}

// List returns up to limit records for userID.
func (h *MemoryHistory) List(_ context.Context, userID string, limit int) ([]Record, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := h.records[userID]
	if len(list) > limit {
		list = list[:limit]
	}
	return append([]Record(nil), list...), nil
}

// DBHistory stores records in PostgreSQL.
type DBHistory struct {
	repo *db.PlaylistRepository
}

// NewDBHistory creates a History backed by database.
func NewDBHistory(database *db.DB) *DBHistory {
	return &DBHistory{repo: database.Playlists()}
}

// Record inserts rec and its tracks.
func (h *DBHistory) Record(ctx context.Context, rec *Record, uris []string) error {
	p := &db.PublishedPlaylist{
		ID:          rec.ID,
		UserID:      rec.UserID,
		SpotifyID:   rec.SpotifyID,
		Name:        rec.Name,
		Description: rec.Description,
		URL:         rec.URL,
		Public:      rec.Public,
		Requested:   rec.Requested,
		Resolved:    rec.Resolved,
	}
	if rec.Prompt != "" {
		p.Prompt = &rec.Prompt
	}
	if err := h.repo.Create(ctx, p, uris); err != nil {
		return err
	}
	rec.ID = p.ID
	rec.CreatedAt = p.CreatedAt
	return nil
}

// List returns up to limit records for userID, newest first.
func (h *DBHistory) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	rows, err := h.repo.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(rows))
	for i, p := range rows {
		out[i] = fromDB(p)
	}
	return out, nil
}

func fromDB(p db.PublishedPlaylist) Record {
	rec := Record{
		ID:          p.ID,
		UserID:      p.UserID,
		SpotifyID:   p.SpotifyID,
		Name:        p.Name,
		Description: p.Description,
		URL:         p.URL,
		Public:      p.Public,
		Requested:   p.Requested,
		Resolved:    p.Resolved,
		CreatedAt:   p.CreatedAt,
	}
	if p.Prompt != nil {
		rec.Prompt = *p.Prompt
	}
	return rec
}

var (
	_ History = (*MemoryHistory)(nil)
	_ History = (*DBHistory)(nil)
)
