package catalog

import (
	"strconv"
	"strings"
	"time"
)

// Track is a catalog track as returned by search or the user's library.
type Track struct {
	ID          string    `json:"id"`
	URI         string    `json:"uri"`
	Name        string    `json:"name"`
	Artists     []string  `json:"artists"`
	ArtistIDs   []string  `json:"artistIds,omitempty"`
	Album       string    `json:"album,omitempty"`
	Popularity  int       `json:"popularity,omitempty"`
	PreviewURL  string    `json:"previewUrl,omitempty"`
	Explicit    bool      `json:"explicit,omitempty"`
	DurationMs  int       `json:"durationMs,omitempty"`
	ReleaseDate string    `json:"releaseDate,omitempty"`
	AddedAt     time.Time `json:"addedAt,omitzero"` // Set only for liked songs
}

// ArtistLine returns the artist names joined by ", ".
func (t Track) ArtistLine() string {
	return strings.Join(t.Artists, ", ")
}

// ReleaseYear parses the year from ReleaseDate, returning 0 when unknown.
func (t Track) ReleaseYear() int {
	if len(t.ReleaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(t.ReleaseDate[:4])
	if err != nil {
		return 0
	}
	return year
}

// Artist is an artist with its genre tags.
type Artist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
}
