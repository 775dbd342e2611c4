// Package playlist defines the songs, playlists and resolution records shared
// by the generation, matching and publishing stages.
package playlist

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxNameLength is the maximum playlist name length in runes.
	MaxNameLength = 100
	// MaxDescriptionLength is the maximum playlist description length in runes.
	MaxDescriptionLength = 300
)

// Song is a requested track described by free text.
type Song struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// Valid reports whether both title and artist are non-blank.
func (s Song) Valid() bool {
	return strings.TrimSpace(s.Title) != "" && strings.TrimSpace(s.Artist) != ""
}

// Playlist is a named list of requested songs.
type Playlist struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Songs       []Song `json:"songs"`
}

// Sanitize returns a copy with name and description trimmed and truncated.
// Song titles and artists are trimmed as well.
func (p Playlist) Sanitize() Playlist {
	out := Playlist{
		Name:        truncate(strings.TrimSpace(p.Name), MaxNameLength),
		Description: truncate(strings.TrimSpace(p.Description), MaxDescriptionLength),
		Songs:       make([]Song, len(p.Songs)),
	}
	for i, s := range p.Songs {
		out.Songs[i] = Song{
			Title:  strings.TrimSpace(s.Title),
			Artist: strings.TrimSpace(s.Artist),
		}
	}
	return out
}

// Clone returns a deep copy of the playlist.
func (p Playlist) Clone() Playlist {
	out := p
	out.Songs = append([]Song(nil), p.Songs...)
	return out
}

// truncate cuts s to at most n runes, trimming any trailing space left behind.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}

// Candidate is a catalog track offered for a song that could not be matched
// automatically.
type Candidate struct {
	URI         string  `json:"uri"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	Album       string  `json:"album,omitempty"`
	Popularity  int     `json:"popularity,omitempty"`
	PreviewURL  string  `json:"previewUrl,omitempty"`
	Explicit    bool    `json:"explicit,omitempty"`
	DurationMs  int     `json:"durationMs,omitempty"`
	ReleaseYear int     `json:"releaseYear,omitempty"`
	Score       float64 `json:"-"`
}

// Unresolved records a song with no confident match together with the
// candidates returned by the query attempt that produced it.
type Unresolved struct {
	Index       int         `json:"index"`
	Requested   Song        `json:"requested"`
	SearchQuery string      `json:"searchQuery"`
	Candidates  []Candidate `json:"candidates"`
}
