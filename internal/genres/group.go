// Package genres groups liked songs into genre playlists using the genre tags
// of each song's primary artist.
package genres

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/justestif/go-spotify-playlist-curator/internal/catalog"
)

// GenrePlaylist is a bucket of liked songs sharing a genre.
type GenrePlaylist struct {
	Key    string          `json:"key"`
	Label  string          `json:"label"`
	Genres []string        `json:"genres"` // Raw artist tags that landed in this bucket
	Tracks []catalog.Track `json:"tracks"`
}

// URIs returns the track URIs in bucket order.
func (g GenrePlaylist) URIs() []string {
	uris := make([]string, 0, len(g.Tracks))
	for _, t := range g.Tracks {
		if t.URI != "" {
			uris = append(uris, t.URI)
		}
	}
	return uris
}

// Group buckets liked tracks by the genres of their primary artist. lookup
// maps artist IDs to genre tags. Buckets are ordered by descending size,
// ties broken by label in English collation order. Tracks keep their input
// order within a bucket.
func Group(liked []catalog.Track, lookup map[string][]string) []GenrePlaylist {
	byKey := make(map[string]*GenrePlaylist)
	seenGenre := make(map[string]map[string]bool)
	var order []string

	for _, t := range liked {
		var tags []string
		if len(t.ArtistIDs) > 0 {
			tags = lookup[t.ArtistIDs[0]]
		}

		key, label := Classify(tags)
		bucket, ok := byKey[key]
		if !ok {
			bucket = &GenrePlaylist{Key: key, Label: label, Genres: []string{}}
			byKey[key] = bucket
			seenGenre[key] = make(map[string]bool)
			order = append(order, key)
		}
		bucket.Tracks = append(bucket.Tracks, t)

		for _, tag := range tags {
			tag = strings.TrimSpace(tag)
			if tag == "" || seenGenre[key][tag] {
				continue
			}
			if k, _ := Classify([]string{tag}); k != key {
				continue
			}
			seenGenre[key][tag] = true
			bucket.Genres = append(bucket.Genres, tag)
		}
	}

	result := make([]GenrePlaylist, 0, len(order))
	for _, key := range order {
		result = append(result, *byKey[key])
	}

	col := collate.New(language.English, collate.IgnoreCase)
	sort.SliceStable(result, func(i, j int) bool {
		if len(result[i].Tracks) != len(result[j].Tracks) {
			return len(result[i].Tracks) > len(result[j].Tracks)
		}
		return col.CompareString(result[i].Label, result[j].Label) < 0
	})

	return result
}

// PrimaryArtistIDs returns the distinct primary artist IDs of tracks in
// first-seen order.
func PrimaryArtistIDs(tracks []catalog.Track) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, t := range tracks {
		if len(t.ArtistIDs) == 0 || t.ArtistIDs[0] == "" {
			continue
		}
		id := t.ArtistIDs[0]
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
