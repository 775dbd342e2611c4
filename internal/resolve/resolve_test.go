package resolve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/justestif/go-spotify-playlist-curator/internal/catalog"
	"github.com/justestif/go-spotify-playlist-curator/internal/playlist"
	"github.com/justestif/go-spotify-playlist-curator/internal/queue"
	"github.com/justestif/go-spotify-playlist-curator/internal/status"
)

// mockSearcher returns canned results per query and records every call.
type mockSearcher struct {
	mu      sync.Mutex
	results map[string][]catalog.Track
	errs    map[string][]error // consumed in order, then results are returned
	calls   []string
}

func (m *mockSearcher) SearchTracks(_ context.Context, query string, limit int) ([]catalog.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, query)
	if limit != DefaultSearchLimit {
		return nil, fmt.Errorf("limit = %d, want %d", limit, DefaultSearchLimit)
	}
	if errs := m.errs[query]; len(errs) > 0 {
		m.errs[query] = errs[1:]
		return nil, errs[0]
	}
	return m.results[query], nil
}

func (m *mockSearcher) count(query string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, q := range m.calls {
		if q == query {
			n++
		}
	}
	return n
}

func newTestPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	q := queue.New(
		queue.WithSpacing(0),
		queue.WithPolicy(queue.Policy{
			MaxRetries:   queue.DefaultMaxRetries,
			InitialDelay: time.Second,
			Sleep:        func(context.Context, time.Duration) error { return nil },
		}),
	)
	t.Cleanup(q.Close)
	return New(q, append([]Option{WithSongPause(0)}, opts...)...)
}

func tr(uri, name string, popularity int, artists ...string) catalog.Track {
	return catalog.Track{URI: uri, Name: name, Artists: artists, Popularity: popularity}
}

func TestQueries(t *testing.T) {
	tests := []struct {
		name string
		song playlist.Song
		want []string
	}{
		{
			name: "title and artist",
			song: playlist.Song{Title: "Yesterday", Artist: "The Beatles"},
			want: []string{"track:Yesterday artist:The Beatles", "Yesterday The Beatles", "Yesterday"},
		},
		{
			name: "trimmed",
			song: playlist.Song{Title: "  Hey Jude ", Artist: " The Beatles"},
			want: []string{"track:Hey Jude artist:The Beatles", "Hey Jude The Beatles", "Hey Jude"},
		},
		{
			name: "no artist dedupes",
			song: playlist.Song{Title: "Imagine"},
			want: []string{"track:Imagine", "Imagine"},
		},
		{
			name: "empty",
			song: playlist.Song{},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Queries(tt.song)
			if len(got) != len(tt.want) {
				t.Fatalf("Queries() = %q, want %q", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("query %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestResolveEndToEnd(t *testing.T) {
	searcher := &mockSearcher{results: map[string][]catalog.Track{
		"track:Yesterday artist:The Beatles": {tr("spotify:track:abc", "Yesterday", 80, "The Beatles")},
	}}
	p := newTestPipeline(t)

	got, err := p.Resolve(context.Background(), searcher, []playlist.Song{{Title: "Yesterday", Artist: "The Beatles"}}, "Oldies")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(got.URIs) != 1 || got.URIs[0] != "spotify:track:abc" {
		t.Errorf("URIs = %q, want [spotify:track:abc]", got.URIs)
	}
	if len(got.Unresolved) != 0 {
		t.Errorf("Unresolved = %+v, want none", got.Unresolved)
	}
	if got.ResolvedCount != 1 {
		t.Errorf("ResolvedCount = %d, want 1", got.ResolvedCount)
	}
	if len(searcher.calls) != 1 {
		t.Errorf("search calls = %q, want only the first query", searcher.calls)
	}
}

func TestResolveFirstQueryWithResultsWins(t *testing.T) {
	searcher := &mockSearcher{results: map[string][]catalog.Track{
		"track:Imagine artist:John Lennon": {
			tr("spotify:track:cover1", "Imagine", 20, "Cover Band"),
			tr("spotify:track:cover2", "Imagine (Live)", 60, "Another Cover"),
		},
		// A later query would find the right track, but must not be tried.
		"Imagine John Lennon": {tr("spotify:track:real", "Imagine", 90, "John Lennon")},
	}}
	p := newTestPipeline(t)

	got, err := p.Resolve(context.Background(), searcher, []playlist.Song{{Title: "Imagine", Artist: "John Lennon"}}, "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got.URIs[0] != "" {
		t.Errorf("URIs[0] = %q, want unresolved", got.URIs[0])
	}
	if searcher.count("Imagine John Lennon") != 0 {
		t.Error("second query was tried after the first returned results")
	}
	if len(got.Unresolved) != 1 {
		t.Fatalf("got %d unresolved, want 1", len(got.Unresolved))
	}

	u := got.Unresolved[0]
	if u.Index != 0 || u.SearchQuery != "track:Imagine artist:John Lennon" {
		t.Errorf("unresolved = %+v", u)
	}
	if len(u.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(u.Candidates))
	}
	// Exact title outranks a containment match.
	if u.Candidates[0].URI != "spotify:track:cover1" {
		t.Errorf("top candidate = %q, want spotify:track:cover1", u.Candidates[0].URI)
	}
}

func TestResolveZeroResultsFallsThrough(t *testing.T) {
	searcher := &mockSearcher{results: map[string][]catalog.Track{
		"Heroes David Bowie": {tr("spotify:track:heroes", "Heroes - 2017 Remaster", 70, "David Bowie")},
	}}
	p := newTestPipeline(t)

	got, err := p.Resolve(context.Background(), searcher, []playlist.Song{{Title: "Heroes", Artist: "David Bowie"}}, "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.URIs[0] != "spotify:track:heroes" {
		t.Errorf("URIs[0] = %q, want spotify:track:heroes", got.URIs[0])
	}
	if len(searcher.calls) != 2 {
		t.Errorf("search calls = %q, want 2", searcher.calls)
	}
}

func TestResolveAllQueriesEmpty(t *testing.T) {
	searcher := &mockSearcher{}
	p := newTestPipeline(t)

	song := playlist.Song{Title: "Nonexistent", Artist: "Nobody"}
	got, err := p.Resolve(context.Background(), searcher, []playlist.Song{song}, "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(searcher.calls) != 3 {
		t.Errorf("search calls = %q, want all 3 queries", searcher.calls)
	}
	if len(got.Unresolved) != 1 {
		t.Fatalf("got %d unresolved, want 1", len(got.Unresolved))
	}
	u := got.Unresolved[0]
	if u.SearchQuery != "track:Nonexistent artist:Nobody" {
		t.Errorf("SearchQuery = %q, want the first query", u.SearchQuery)
	}
	if u.Candidates == nil || len(u.Candidates) != 0 {
		t.Errorf("Candidates = %v, want empty non-nil", u.Candidates)
	}
	if u.Requested != song {
		t.Errorf("Requested = %+v, want %+v", u.Requested, song)
	}
}

func TestResolveQueryErrorTreatedAsEmpty(t *testing.T) {
	searcher := &mockSearcher{
		results: map[string][]catalog.Track{
			"Help! The Beatles": {tr("spotify:track:help", "Help!", 75, "The Beatles")},
		},
		errs: map[string][]error{
			"track:Help! artist:The Beatles": {&catalog.StatusError{Status: 502}},
		},
	}
	p := newTestPipeline(t)

	got, err := p.Resolve(context.Background(), searcher, []playlist.Song{{Title: "Help!", Artist: "The Beatles"}}, "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.URIs[0] != "spotify:track:help" {
		t.Errorf("URIs[0] = %q, want spotify:track:help", got.URIs[0])
	}
	if searcher.count("track:Help! artist:The Beatles") != 1 {
		t.Error("non-429 error was retried")
	}
}

func TestResolveRateLimitRetriesUnit(t *testing.T) {
	first := "track:Yesterday artist:The Beatles"
	searcher := &mockSearcher{
		results: map[string][]catalog.Track{
			first: {tr("spotify:track:abc", "Yesterday", 80, "The Beatles")},
		},
		errs: map[string][]error{
			first: {&catalog.StatusError{Status: 429, RetryAfterSeconds: 1}},
		},
	}
	p := newTestPipeline(t)

	got, err := p.Resolve(context.Background(), searcher, []playlist.Song{{Title: "Yesterday", Artist: "The Beatles"}}, "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.URIs[0] != "spotify:track:abc" {
		t.Errorf("URIs[0] = %q, want spotify:track:abc", got.URIs[0])
	}
	if searcher.count(first) != 2 {
		t.Errorf("first query called %d times, want 2", searcher.count(first))
	}
	if searcher.count("Yesterday The Beatles") != 0 {
		t.Error("rate-limited query fell through to the next query")
	}
}

func TestResolveRateLimitExhausted(t *testing.T) {
	first := "track:Yesterday artist:The Beatles"
	limited := &catalog.StatusError{Status: 429}
	searcher := &mockSearcher{errs: map[string][]error{
		first: {limited, limited, limited, limited, limited, limited},
	}}
	p := newTestPipeline(t)

	_, err := p.Resolve(context.Background(), searcher, []playlist.Song{{Title: "Yesterday", Artist: "The Beatles"}}, "")
	if !errors.Is(err, limited) {
		t.Fatalf("Resolve() error = %v, want the rate limit error", err)
	}
	if searcher.count(first) != queue.DefaultMaxRetries+1 {
		t.Errorf("first query called %d times, want %d", searcher.count(first), queue.DefaultMaxRetries+1)
	}
}

func TestResolveAuthExpiredAborts(t *testing.T) {
	searcher := &mockSearcher{errs: map[string][]error{
		"track:A artist:B": {fmt.Errorf("searching: %w", catalog.ErrAuthExpired)},
	}}
	p := newTestPipeline(t)

	songs := []playlist.Song{{Title: "A", Artist: "B"}, {Title: "C", Artist: "D"}}
	_, err := p.Resolve(context.Background(), searcher, songs, "")
	if !errors.Is(err, catalog.ErrAuthExpired) {
		t.Fatalf("Resolve() error = %v, want ErrAuthExpired", err)
	}
	if searcher.count("track:C artist:D") != 0 {
		t.Error("resolution continued after authorization expired")
	}
}

func TestResolveKeepsIndexAlignment(t *testing.T) {
	searcher := &mockSearcher{results: map[string][]catalog.Track{
		"track:One artist:X":   {tr("spotify:track:1", "One", 10, "X")},
		"track:Three artist:Z": {tr("spotify:track:3", "Three", 10, "Z")},
	}}
	p := newTestPipeline(t)

	songs := []playlist.Song{
		{Title: "One", Artist: "X"},
		{Title: "   ", Artist: "Y"}, // invalid
		{Title: "Three", Artist: "Z"},
		{Title: "Four", Artist: "W"},
	}
	got, err := p.Resolve(context.Background(), searcher, songs, "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := []string{"spotify:track:1", "", "spotify:track:3", ""}
	if len(got.URIs) != len(songs) {
		t.Fatalf("len(URIs) = %d, want %d", len(got.URIs), len(songs))
	}
	for i := range want {
		if got.URIs[i] != want[i] {
			t.Errorf("URIs[%d] = %q, want %q", i, got.URIs[i], want[i])
		}
	}

	if len(got.Unresolved) != 2 || got.Unresolved[0].Index != 1 || got.Unresolved[1].Index != 3 {
		t.Errorf("Unresolved = %+v, want indexes 1 and 3", got.Unresolved)
	}
	for _, q := range searcher.calls {
		if q == "artist:Y" || q == "Y" {
			t.Errorf("invalid song was searched with %q", q)
		}
	}
	if got.ResolvedCount != 2 {
		t.Errorf("ResolvedCount = %d, want 2", got.ResolvedCount)
	}
}

func TestResolveFallThrough(t *testing.T) {
	searcher := &mockSearcher{results: map[string][]catalog.Track{
		"track:Halo artist:Beyonce": {tr("spotify:track:weak", "Halo Theme", 5, "Orchestra")},
		"Halo Beyonce":              {tr("spotify:track:strong", "Halo", 5, "Choir")},
	}}
	p := newTestPipeline(t, WithFallThrough(true))

	got, err := p.Resolve(context.Background(), searcher, []playlist.Song{{Title: "Halo", Artist: "Beyonce"}}, "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(searcher.calls) != 3 {
		t.Errorf("search calls = %q, want all 3", searcher.calls)
	}

	u := got.Unresolved[0]
	if u.SearchQuery != "Halo Beyonce" {
		t.Errorf("SearchQuery = %q, want best-scoring query", u.SearchQuery)
	}
	if len(u.Candidates) != 1 || u.Candidates[0].URI != "spotify:track:strong" {
		t.Errorf("Candidates = %+v, want only the second query's results", u.Candidates)
	}
}

func TestResolvePublishesProgressAndPaces(t *testing.T) {
	searcher := &mockSearcher{results: map[string][]catalog.Track{
		"track:A artist:B": {tr("spotify:track:a", "A", 1, "B")},
	}}

	var events []status.Event
	var pauses []time.Duration
	p := newTestPipeline(t,
		WithSink(status.SinkFunc(func(e status.Event) { events = append(events, e) })),
		WithSongPause(DefaultSongPause),
		WithSleep(func(_ context.Context, d time.Duration) error {
			pauses = append(pauses, d)
			return nil
		}),
	)

	songs := []playlist.Song{{Title: "A", Artist: "B"}, {Title: "", Artist: "B"}, {Title: "Q", Artist: "R"}}
	if _, err := p.Resolve(context.Background(), searcher, songs, "Mix"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	wantStates := []string{status.StateMatched, status.StateSkipped, status.StateUnresolved}
	if len(events) != len(wantStates) {
		t.Fatalf("got %d events, want %d", len(events), len(wantStates))
	}
	for i, e := range events {
		if e.Type != status.TypeSong || e.Index != i || e.Total != 3 || e.Playlist != "Mix" || e.State != wantStates[i] {
			t.Errorf("event %d = %+v", i, e)
		}
	}

	if len(pauses) != 2 {
		t.Fatalf("pauses = %v, want one between each pair of songs", pauses)
	}
	for _, d := range pauses {
		if d != DefaultSongPause {
			t.Errorf("pause = %v, want %v", d, DefaultSongPause)
		}
	}
}

func TestMergeAndCompact(t *testing.T) {
	uris := []string{"a", "", "c", ""}
	picks := []string{"x", "b", "", "d"}

	merged := Merge(uris, picks)
	want := []string{"a", "b", "c", "d"}
	for i := range want {
		if merged[i] != want[i] {
			t.Errorf("Merge()[%d] = %q, want %q", i, merged[i], want[i])
		}
	}
	if uris[1] != "" {
		t.Error("Merge() modified its input")
	}

	compact := Compact([]string{"a", "", "c", ""})
	if len(compact) != 2 || compact[0] != "a" || compact[1] != "c" {
		t.Errorf("Compact() = %q", compact)
	}
	if Count(uris) != 2 {
		t.Errorf("Count() = %d, want 2", Count(uris))
	}
}
