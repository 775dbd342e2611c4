package matcher

import (
	"math"
	"sort"
	"strings"

	"github.com/justestif/go-spotify-playlist-curator/internal/catalog"
	"github.com/justestif/go-spotify-playlist-curator/internal/playlist"
)

// DefaultCandidateLimit is the maximum number of candidates kept per song.
const DefaultCandidateLimit = 10

// Scoring weights.
const (
	exactTitleScore    = 6
	containsTitleScore = 4
	artistMatchScore   = 5
	artistMissPenalty  = 2
	popularityDivisor  = 120.0
)

// IsAcceptableMatch reports whether track can be used for song without review:
// the normalized titles are equal or one contains the other, and at least one
// artist token overlaps.
func IsAcceptableMatch(track catalog.Track, song playlist.Song) bool {
	if !song.Valid() {
		return false
	}
	if titleOverlap(NormalizeTitle(track.Name), NormalizeTitle(song.Title)) == 0 {
		return false
	}
	return artistsOverlap(trackArtistTokens(track), ArtistTokens(song.Artist))
}

// Score ranks track as a candidate for song. It returns negative infinity
// when the titles do not overlap at all.
func Score(track catalog.Track, song playlist.Song) float64 {
	if !song.Valid() {
		return math.Inf(-1)
	}

	score := titleOverlap(NormalizeTitle(track.Name), NormalizeTitle(song.Title))
	if score == 0 {
		return math.Inf(-1)
	}

	requested := ArtistTokens(song.Artist)
	switch {
	case artistsOverlap(trackArtistTokens(track), requested):
		score += artistMatchScore
	case len(requested) > 0:
		score -= artistMissPenalty
	}

	return score + float64(track.Popularity)/popularityDivisor
}

// Rank scores tracks for song and returns at most limit candidates ordered by
// descending score. Ties keep catalog order. Tracks whose titles do not
// overlap are dropped.
func Rank(tracks []catalog.Track, song playlist.Song, limit int) []playlist.Candidate {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}

	candidates := make([]playlist.Candidate, 0, len(tracks))
	for _, t := range tracks {
		score := Score(t, song)
		if math.IsInf(score, -1) {
			continue
		}
		candidates = append(candidates, NewCandidate(t, score))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// NewCandidate converts a catalog track into a candidate with the given score.
func NewCandidate(t catalog.Track, score float64) playlist.Candidate {
	return playlist.Candidate{
		URI:         t.URI,
		Title:       t.Name,
		Artist:      t.ArtistLine(),
		Album:       t.Album,
		Popularity:  t.Popularity,
		PreviewURL:  t.PreviewURL,
		Explicit:    t.Explicit,
		DurationMs:  t.DurationMs,
		ReleaseYear: t.ReleaseYear(),
		Score:       score,
	}
}

// titleOverlap returns the title component of the score, or 0 when the
// normalized titles neither match nor contain each other.
func titleOverlap(candidate, requested string) float64 {
	if candidate == "" || requested == "" {
		return 0
	}
	if candidate == requested {
		return exactTitleScore
	}
	if strings.Contains(candidate, requested) || strings.Contains(requested, candidate) {
		return containsTitleScore
	}
	return 0
}

func trackArtistTokens(t catalog.Track) []string {
	var tokens []string
	for _, name := range t.Artists {
		tokens = append(tokens, ArtistTokens(name)...)
	}
	return tokens
}

// artistsOverlap reports whether any candidate token equals, contains or is
// contained by any requested token.
func artistsOverlap(candidate, requested []string) bool {
	for _, c := range candidate {
		for _, r := range requested {
			if c == r || strings.Contains(c, r) || strings.Contains(r, c) {
				return true
			}
		}
	}
	return false
}
