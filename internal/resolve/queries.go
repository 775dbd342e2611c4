package resolve

import (
	"strings"

	"github.com/justestif/go-spotify-playlist-curator/internal/playlist"
)

// Queries returns the search strategies for song, most specific first:
// a field-qualified query, title plus artist, then title alone. Duplicates and
// empty queries are dropped.
func Queries(song playlist.Song) []string {
	title := strings.TrimSpace(song.Title)
	artist := strings.TrimSpace(song.Artist)

	candidates := []string{
		fielded(title, artist),
		strings.TrimSpace(title + " " + artist),
		title,
	}

	queries := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, q := range candidates {
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		queries = append(queries, q)
	}
	return queries
}

func fielded(title, artist string) string {
	var parts []string
	if title != "" {
		parts = append(parts, "track:"+title)
	}
	if artist != "" {
		parts = append(parts, "artist:"+artist)
	}
	return strings.Join(parts, " ")
}

// Merge fills the gaps in uris with the picks from disambiguation. Entries
// already set are kept. Both slices must be indexed by song position.
func Merge(uris, picks []string) []string {
	merged := make([]string, len(uris))
	copy(merged, uris)
	for i := range merged {
		if merged[i] == "" && i < len(picks) {
			merged[i] = picks[i]
		}
	}
	return merged
}

// Compact drops the unplaced entries, keeping order.
func Compact(uris []string) []string {
	out := make([]string, 0, len(uris))
	for _, uri := range uris {
		if uri != "" {
			out = append(out, uri)
		}
	}
	return out
}

// Count returns the number of placed entries.
func Count(uris []string) int {
	n := 0
	for _, uri := range uris {
		if uri != "" {
			n++
		}
	}
	return n
}
