package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PlaylistRepository handles published playlist operations.
type PlaylistRepository struct {
	pool *pgxpool.Pool
}

// Create records a published playlist with its track URIs in order.
func (r *PlaylistRepository) Create(ctx context.Context, p *PublishedPlaylist, uris []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	query := `
		INSERT INTO published_playlists
			(id, user_id, spotify_id, name, description, url, public, prompt, requested, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, query,
		p.ID,
		p.UserID,
		p.SpotifyID,
		p.Name,
		p.Description,
		p.URL,
		p.Public,
		p.Prompt,
		p.Requested,
		p.Resolved,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting published playlist: %w", err)
	}

	if len(uris) > 0 {
		tracksQuery := `
			INSERT INTO published_tracks (playlist_id, position, uri)
			SELECT $1, t.ord - 1, t.uri
			FROM unnest($2::text[]) WITH ORDINALITY AS t(uri, ord)
		`
		if _, err := tx.Exec(ctx, tracksQuery, p.ID, uris); err != nil {
			return fmt.Errorf("inserting published tracks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

const playlistColumns = `id, user_id, spotify_id, name, description, url, public, prompt, requested, resolved, created_at`

func scanPlaylist(row pgx.Row) (*PublishedPlaylist, error) {
	var p PublishedPlaylist
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.SpotifyID,
		&p.Name,
		&p.Description,
		&p.URL,
		&p.Public,
		&p.Prompt,
		&p.Requested,
		&p.Resolved,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Get retrieves a published playlist by ID.
func (r *PlaylistRepository) Get(ctx context.Context, id uuid.UUID) (*PublishedPlaylist, error) {
	query := `SELECT ` + playlistColumns + ` FROM published_playlists WHERE id = $1`
	p, err := scanPlaylist(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying published playlist: %w", err)
	}
	return p, nil
}

// ListForUser returns the user's most recently published playlists first.
func (r *PlaylistRepository) ListForUser(ctx context.Context, userID string, limit int) ([]PublishedPlaylist, error) {
	query := `
		SELECT ` + playlistColumns + `
		FROM published_playlists
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying published playlists: %w", err)
	}
	defer rows.Close()

	var out []PublishedPlaylist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning published playlist: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// TrackURIs returns a published playlist's track URIs in order.
func (r *PlaylistRepository) TrackURIs(ctx context.Context, id uuid.UUID) ([]string, error) {
	query := `SELECT uri FROM published_tracks WHERE playlist_id = $1 ORDER BY position`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("querying published tracks: %w", err)
	}
	defer rows.Close()

	var uris []string
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, fmt.Errorf("scanning track URI: %w", err)
		}
		uris = append(uris, uri)
	}
	return uris, rows.Err()
}

// Delete removes a published playlist record. The Spotify playlist is left alone.
func (r *PlaylistRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM published_playlists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting published playlist: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
