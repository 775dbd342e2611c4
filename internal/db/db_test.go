package db

import (
	"context"
	"errors"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// newTestDB connects to DATABASE_TEST_URL and applies the schema. Tests that
// need it are skipped when the variable is unset.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("DATABASE_TEST_URL")
	if url == "" {
		t.Skip("DATABASE_TEST_URL not set")
	}

	ctx := context.Background()
	database, err := New(ctx, url)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(database.Close)

	if err := database.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Running twice must be harmless.
	if err := database.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	return database
}

func testUser(t *testing.T, database *DB) *User {
	t.Helper()
	user := &User{ID: "test-" + uuid.NewString(), DisplayName: "Tester", Country: "US"}
	if err := database.Users().Upsert(context.Background(), user); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	t.Cleanup(func() { _ = database.Users().Delete(context.Background(), user.ID) })
	return user
}

func TestSchemaStatementsAreIdempotent(t *testing.T) {
	for i, stmt := range schema {
		if !strings.Contains(stmt, "IF NOT EXISTS") {
			t.Errorf("statement %d is not idempotent: %s", i+1, stmt)
		}
	}
}

func TestSessions(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	user := testUser(t, database)

	now := time.Now().Truncate(time.Second)
	session := &Session{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenExpiry:  now.Add(time.Hour),
		CreatedAt:    now,
		ExpiresAt:    now.Add(24 * time.Hour),
	}
	if err := database.Sessions().Create(ctx, session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := database.Sessions().Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserName != "Tester" || got.AccessToken != "access" {
		t.Errorf("Get() = %+v", got)
	}

	// An empty refresh token keeps the stored one.
	if err := database.Sessions().UpdateToken(ctx, session.ID, "access-2", "", now.Add(2*time.Hour)); err != nil {
		t.Fatalf("UpdateToken() error = %v", err)
	}
	got, err = database.Sessions().Get(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "access-2" || got.RefreshToken != "refresh" {
		t.Errorf("after UpdateToken() = %+v", got)
	}

	if err := database.Sessions().Delete(ctx, session.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := database.Sessions().Get(ctx, session.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v, want ErrNotFound", err)
	}
}

func TestPlaylists(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	user := testUser(t, database)

	prompt := "rainy day"
	p := &PublishedPlaylist{
		UserID:    user.ID,
		SpotifyID: "sp123",
		Name:      "Rain",
		URL:       "https://open.spotify.com/playlist/sp123",
		Prompt:    &prompt,
		Requested: 3,
		Resolved:  2,
	}
	uris := []string{"spotify:track:a", "spotify:track:b"}
	if err := database.Playlists().Create(ctx, p, uris); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if p.ID == uuid.Nil || p.CreatedAt.IsZero() {
		t.Errorf("Create() did not fill ID/CreatedAt: %+v", p)
	}

	list, err := database.Playlists().ListForUser(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(list) != 1 || list[0].Name != "Rain" || *list[0].Prompt != prompt {
		t.Errorf("ListForUser() = %+v", list)
	}

	got, err := database.Playlists().TrackURIs(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, uris) {
		t.Errorf("TrackURIs() = %v, want %v", got, uris)
	}

	if err := database.Playlists().Delete(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := database.Playlists().Get(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v", err)
	}
}

func TestArtistGenres(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	repo := database.ArtistGenres()

	a, b := "test-artist-"+uuid.NewString(), "test-artist-"+uuid.NewString()
	t.Cleanup(func() {
		_, _ = database.pool.Exec(ctx, `DELETE FROM artist_genres WHERE artist_id = ANY($1)`, []string{a, b})
	})

	old := time.Now().Add(-48 * time.Hour)
	if err := repo.UpsertArtistGenres(ctx, map[string][]string{a: {"shoegaze", "dream pop"}, b: nil}, time.Now()); err != nil {
		t.Fatalf("UpsertArtistGenres() error = %v", err)
	}

	got, err := repo.GetArtistGenres(ctx, []string{a, b, "missing"}, old)
	if err != nil {
		t.Fatalf("GetArtistGenres() error = %v", err)
	}
	if !slices.Equal(got[a], []string{"shoegaze", "dream pop"}) {
		t.Errorf("genres[a] = %v", got[a])
	}
	if g, ok := got[b]; !ok || len(g) != 0 {
		t.Errorf("genres[b] = %#v, %v", g, ok)
	}
	if _, ok := got["missing"]; ok {
		t.Error("unknown artist present in result")
	}

	// Entries older than freshSince are treated as missing.
	got, err = repo.GetArtistGenres(ctx, []string{a}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("stale lookup = %v, want empty", got)
	}
}
