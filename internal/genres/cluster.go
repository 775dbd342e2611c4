package genres

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/justestif/go-spotify-playlist-curator/internal/catalog"
)

// MixConfig holds genre-mix clustering parameters.
type MixConfig struct {
	Mixes   int // Number of clusters to create (default: 4)
	MinSize int // Smaller clusters become outliers (default: 3)
	MaxTags int // Vocabulary size of the tag vectors (default: 50)
}

// DefaultMixConfig returns the recommended default configuration.
func DefaultMixConfig() MixConfig {
	return MixConfig{Mixes: 4, MinSize: 3, MaxTags: 50}
}

func (c MixConfig) withDefaults() MixConfig {
	def := DefaultMixConfig()
	if c.Mixes <= 0 {
		c.Mixes = def.Mixes
	}
	if c.MinSize <= 0 {
		c.MinSize = def.MinSize
	}
	if c.MaxTags <= 0 {
		c.MaxTags = def.MaxTags
	}
	return c
}

// Mix is a cluster of liked songs whose artists share similar genre tags.
// Unlike a GenrePlaylist it can span several buckets, e.g. shoegaze and
// dream pop next to ambient.
type Mix struct {
	Name      string          `json:"name"`      // "Shoegaze & Dream Pop: Jan 15 - Feb 3, 2024"
	TopGenres []string        `json:"topGenres"` // Dominant tags of the centroid
	Tracks    []catalog.Track `json:"tracks"`    // Oldest addition first
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
}

// URIs returns the track URIs in mix order.
func (m Mix) URIs() []string {
	uris := make([]string, 0, len(m.Tracks))
	for _, t := range m.Tracks {
		if t.URI != "" {
			uris = append(uris, t.URI)
		}
	}
	return uris
}

// trackObservation implements clusters.Observation for a liked track.
type trackObservation struct {
	track  catalog.Track
	coords clusters.Coordinates
}

func (o trackObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o trackObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// Mixes clusters liked tracks by the genre tags of their primary artist
// using k-means. Tracks whose artist has no tags, and tracks in clusters
// smaller than MinSize, are returned as outliers. Mixes are ordered by most
// recent addition first.
func Mixes(liked []catalog.Track, lookup map[string][]string, cfg MixConfig) ([]Mix, []catalog.Track, error) {
	cfg = cfg.withDefaults()

	var tagged []catalog.Track
	var tags [][]string
	var outliers []catalog.Track
	for _, t := range liked {
		var g []string
		if len(t.ArtistIDs) > 0 {
			g = normalizeTags(lookup[t.ArtistIDs[0]])
		}
		if len(g) == 0 {
			outliers = append(outliers, t)
			continue
		}
		tagged = append(tagged, t)
		tags = append(tags, g)
	}

	if len(tagged) < cfg.Mixes {
		return nil, append(tagged, outliers...), nil
	}

	vocabulary := buildVocabulary(tags, cfg.MaxTags)
	var obs clusters.Observations
	for i, t := range tagged {
		obs = append(obs, trackObservation{track: t, coords: tagVector(tags[i], vocabulary)})
	}

	result, err := kmeans.New().Partition(obs, cfg.Mixes)
	if err != nil {
		return nil, append(tagged, outliers...), fmt.Errorf("clustering %d tracks: %w", len(tagged), err)
	}

	var mixes []Mix
	for _, c := range result {
		var tracks []catalog.Track
		for _, o := range c.Observations {
			if to, ok := o.(trackObservation); ok {
				tracks = append(tracks, to.track)
			}
		}
		if len(tracks) < cfg.MinSize {
			outliers = append(outliers, tracks...)
			continue
		}

		slices.SortStableFunc(tracks, func(a, b catalog.Track) int {
			return a.AddedAt.Compare(b.AddedAt)
		})
		top := topTags(c.Center, vocabulary, 3)
		from, to := tracks[0].AddedAt, tracks[len(tracks)-1].AddedAt
		mixes = append(mixes, Mix{
			Name:      mixName(top, from, to),
			TopGenres: top,
			Tracks:    tracks,
			From:      from,
			To:        to,
		})
	}

	slices.SortStableFunc(mixes, func(a, b Mix) int {
		if c := b.To.Compare(a.To); c != 0 {
			return c
		}
		return len(b.Tracks) - len(a.Tracks)
	})
	return mixes, outliers, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" && !slices.Contains(out, tag) {
			out = append(out, tag)
		}
	}
	return out
}

// buildVocabulary returns the maxTags most common tags, ties in name order.
func buildVocabulary(tags [][]string, maxTags int) []string {
	counts := make(map[string]int)
	for _, g := range tags {
		for _, tag := range g {
			counts[tag]++
		}
	}

	vocabulary := make([]string, 0, len(counts))
	for tag := range counts {
		vocabulary = append(vocabulary, tag)
	}
	sort.Slice(vocabulary, func(i, j int) bool {
		if counts[vocabulary[i]] != counts[vocabulary[j]] {
			return counts[vocabulary[i]] > counts[vocabulary[j]]
		}
		return vocabulary[i] < vocabulary[j]
	})

	return vocabulary[:min(maxTags, len(vocabulary))]
}

// tagVector is a presence vector over vocabulary, weighted so every track
// has the same total.
func tagVector(tags []string, vocabulary []string) clusters.Coordinates {
	vec := make(clusters.Coordinates, len(vocabulary))
	hits := 0
	for i, v := range vocabulary {
		if slices.Contains(tags, v) {
			vec[i] = 1
			hits++
		}
	}
	if hits > 1 {
		for i := range vec {
			vec[i] /= float64(hits)
		}
	}
	return vec
}

// topTags returns up to n vocabulary tags with the largest centroid weight.
func topTags(center clusters.Coordinates, vocabulary []string, n int) []string {
	idx := make([]int, 0, len(vocabulary))
	for i := range vocabulary {
		if i < len(center) && center[i] > 0 {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return center[idx[a]] > center[idx[b]]
	})

	out := make([]string, 0, n)
	for _, i := range idx[:min(n, len(idx))] {
		out = append(out, vocabulary[i])
	}
	return out
}

// mixName formats the top tags and the date range of a mix.
func mixName(top []string, from, to time.Time) string {
	const dateFormat = "Jan 2, 2006"

	label := "Mixed"
	if len(top) > 0 {
		labels := make([]string, len(top))
		for i, tag := range top {
			labels[i] = FormatLabel(tag)
		}
		label = strings.Join(labels, " & ")
	}

	if from.IsZero() {
		return label
	}
	start, end := from.Format(dateFormat), to.Format(dateFormat)
	if start == end {
		return fmt.Sprintf("%s: %s", label, start)
	}
	return fmt.Sprintf("%s: %s - %s", label, start, end)
}
