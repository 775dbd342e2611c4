package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ArtistGenreRepository caches catalog genre tags per artist.
type ArtistGenreRepository struct {
	pool *pgxpool.Pool
}

// GetArtistGenres returns genres for the given artists fetched at or after
// freshSince. Stale and unknown artists are absent from the result.
func (r *ArtistGenreRepository) GetArtistGenres(ctx context.Context, ids []string, freshSince time.Time) (map[string][]string, error) {
	result := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `
		SELECT artist_id, genres
		FROM artist_genres
		WHERE artist_id = ANY($1) AND fetched_at >= $2
	`
	rows, err := r.pool.Query(ctx, query, ids, freshSince)
	if err != nil {
		return nil, fmt.Errorf("querying artist genres: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id     string
			genres []string
		)
		if err := rows.Scan(&id, &genres); err != nil {
			return nil, fmt.Errorf("scanning artist genres: %w", err)
		}
		if genres == nil {
			genres = []string{}
		}
		result[id] = genres
	}
	return result, rows.Err()
}

// UpsertArtistGenres stores genres for many artists in one statement.
func (r *ArtistGenreRepository) UpsertArtistGenres(ctx context.Context, genres map[string][]string, fetchedAt time.Time) error {
	if len(genres) == 0 {
		return nil
	}

	// Arrays of arrays must be rectangular in Postgres, so genre lists travel
	// as JSON and are expanded server-side.
	query := `
		INSERT INTO artist_genres (artist_id, genres, fetched_at)
		SELECT t.id, ARRAY(SELECT jsonb_array_elements_text(t.genres::jsonb)), $3::timestamptz
		FROM unnest($1::text[], $2::text[]) AS t(id, genres)
		ON CONFLICT (artist_id) DO UPDATE SET
			genres = EXCLUDED.genres,
			fetched_at = EXCLUDED.fetched_at
	`

	ids := make([]string, 0, len(genres))
	lists := make([]string, 0, len(genres))
	for id, g := range genres {
		if g == nil {
			g = []string{}
		}
		encoded, err := json.Marshal(g)
		if err != nil {
			return fmt.Errorf("encoding genres for %s: %w", id, err)
		}
		ids = append(ids, id)
		lists = append(lists, string(encoded))
	}

	if _, err := r.pool.Exec(ctx, query, ids, lists, fetchedAt); err != nil {
		return fmt.Errorf("batch upserting artist genres: %w", err)
	}
	return nil
}

// DeleteStale removes entries fetched before olderThan.
func (r *ArtistGenreRepository) DeleteStale(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM artist_genres WHERE fetched_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("deleting stale artist genres: %w", err)
	}
	return result.RowsAffected(), nil
}
