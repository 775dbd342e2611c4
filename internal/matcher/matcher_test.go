package matcher

import (
	"math"
	"testing"

	"github.com/justestif/go-spotify-playlist-curator/internal/catalog"
	"github.com/justestif/go-spotify-playlist-curator/internal/playlist"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Café", "cafe"},
		{"CAFE", "cafe"},
		{"  Don't Stop Me Now!! ", "don t stop me now"},
		{"Señorita (Remastered 2011)", "senorita remastered 2011"},
		{"Beyoncé — Halo", "beyonce halo"},
		{"", ""},
		{"---", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeTitle(tt.in); got != tt.want {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestArtistTokens(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Daft Punk feat. Pharrell Williams", []string{"daft punk", "pharrell williams"}},
		{"Simon & Garfunkel", []string{"simon", "garfunkel"}},
		{"Calvin Harris ft. Rihanna", []string{"calvin harris", "rihanna"}},
		{"Jay-Z featuring Alicia Keys", []string{"jay z", "alicia keys"}},
		{"Marshmello x Bastille", []string{"marshmello", "bastille"}},
		{"Tom Jobim e Elis Regina", []string{"tom jobim", "elis regina"}},
		{"A; B, C", []string{"a", "b", "c"}},
		{"Band of Horses", []string{"band of horses"}},
		{"Within Temptation", []string{"within temptation"}},
		{"Drake (feat. Future)", []string{"drake"}},
		{"Ed Sheeran with Justin Bieber", []string{"ed sheeran", "justin bieber"}},
		{"Björk", []string{"bjork"}},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ArtistTokens(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("ArtistTokens(%q) = %q, want %q", tt.in, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("token %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func track(name string, artists ...string) catalog.Track {
	return catalog.Track{URI: "spotify:track:" + name, Name: name, Artists: artists}
}

func TestIsAcceptableMatch(t *testing.T) {
	tests := []struct {
		name  string
		track catalog.Track
		song  playlist.Song
		want  bool
	}{
		{
			name:  "diacritics and case insensitive",
			track: track("café", "Some Artist"),
			song:  playlist.Song{Title: "CAFE", Artist: "some artist"},
			want:  true,
		},
		{
			name:  "title contained in candidate",
			track: track("Yesterday - Remastered 2009", "The Beatles"),
			song:  playlist.Song{Title: "Yesterday", Artist: "The Beatles"},
			want:  true,
		},
		{
			name:  "featured artist matches one token",
			track: track("Get Lucky", "Daft Punk", "Pharrell Williams", "Nile Rodgers"),
			song:  playlist.Song{Title: "Get Lucky", Artist: "Pharrell Williams"},
			want:  true,
		},
		{
			name:  "requested credit splits into tokens",
			track: track("Get Lucky", "Daft Punk"),
			song:  playlist.Song{Title: "Get Lucky", Artist: "Daft Punk feat. Pharrell Williams"},
			want:  true,
		},
		{
			name:  "artist mismatch",
			track: track("Imagine", "John Lennon"),
			song:  playlist.Song{Title: "Imagine", Artist: "Anonymous Cover Band"},
			want:  false,
		},
		{
			name:  "title mismatch",
			track: track("Help!", "The Beatles"),
			song:  playlist.Song{Title: "Yesterday", Artist: "The Beatles"},
			want:  false,
		},
		{
			name:  "empty requested title",
			track: track("Yesterday", "The Beatles"),
			song:  playlist.Song{Artist: "The Beatles"},
			want:  false,
		},
		{
			name:  "empty requested artist",
			track: track("Yesterday", "The Beatles"),
			song:  playlist.Song{Title: "Yesterday"},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAcceptableMatch(tt.track, tt.song); got != tt.want {
				t.Errorf("IsAcceptableMatch() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScore(t *testing.T) {
	song := playlist.Song{Title: "Imagine", Artist: "John Lennon"}

	tests := []struct {
		name  string
		track catalog.Track
		want  float64
	}{
		{"exact title and artist", catalog.Track{Name: "Imagine", Artists: []string{"John Lennon"}, Popularity: 60}, 6 + 5 + 0.5},
		{"contained title and artist", catalog.Track{Name: "Imagine - Remastered", Artists: []string{"John Lennon"}}, 4 + 5},
		{"exact title wrong artist", catalog.Track{Name: "Imagine", Artists: []string{"A Perfect Circle"}, Popularity: 12}, 6 - 2 + 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.track, song)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}

	if got := Score(catalog.Track{Name: "Jealous Guy", Artists: []string{"John Lennon"}}, song); !math.IsInf(got, -1) {
		t.Errorf("Score() for non-overlapping title = %v, want -Inf", got)
	}
	if got := Score(catalog.Track{Name: "Imagine"}, playlist.Song{Title: "Imagine"}); !math.IsInf(got, -1) {
		t.Errorf("Score() for invalid song = %v, want -Inf", got)
	}
}

func TestRank(t *testing.T) {
	song := playlist.Song{Title: "Imagine", Artist: "John Lennon"}
	tracks := []catalog.Track{
		{URI: "a", Name: "Imagine", Artists: []string{"Cover Band"}},
		{URI: "b", Name: "Unrelated", Artists: []string{"John Lennon"}},
		{URI: "c", Name: "Imagine", Artists: []string{"John Lennon"}, Popularity: 90},
		{URI: "d", Name: "Imagine", Artists: []string{"Other Band"}},
	}

	got := Rank(tracks, song, 10)

	wantOrder := []string{"c", "a", "d"}
	if len(got) != len(wantOrder) {
		t.Fatalf("Rank() returned %d candidates, want %d", len(got), len(wantOrder))
	}
	for i, uri := range wantOrder {
		if got[i].URI != uri {
			t.Errorf("candidate %d = %q, want %q (stable tie order)", i, got[i].URI, uri)
		}
	}
	if got[0].Artist != "John Lennon" {
		t.Errorf("candidate artist = %q, want %q", got[0].Artist, "John Lennon")
	}
}

func TestRankLimit(t *testing.T) {
	song := playlist.Song{Title: "Song", Artist: "Artist"}
	var tracks []catalog.Track
	for i := 0; i < 25; i++ {
		tracks = append(tracks, catalog.Track{URI: string(rune('a' + i)), Name: "Song", Artists: []string{"Artist"}})
	}

	if got := Rank(tracks, song, DefaultCandidateLimit); len(got) != DefaultCandidateLimit {
		t.Errorf("Rank() returned %d candidates, want %d", len(got), DefaultCandidateLimit)
	}
}
