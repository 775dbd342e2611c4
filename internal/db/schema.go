package db

import (
	"context"
	"fmt"
)

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id           TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		country      TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		access_token  TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		token_expiry  TIMESTAMPTZ NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at)`,
	`CREATE TABLE IF NOT EXISTS published_playlists (
		id          UUID PRIMARY KEY,
		user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		spotify_id  TEXT NOT NULL,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		url         TEXT NOT NULL DEFAULT '',
		public      BOOLEAN NOT NULL DEFAULT FALSE,
		prompt      TEXT,
		requested   INTEGER NOT NULL DEFAULT 0,
		resolved    INTEGER NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS published_playlists_user_idx ON published_playlists (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS published_tracks (
		playlist_id UUID NOT NULL REFERENCES published_playlists(id) ON DELETE CASCADE,
		position    INTEGER NOT NULL,
		uri         TEXT NOT NULL,
		PRIMARY KEY (playlist_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS artist_genres (
		artist_id  TEXT PRIMARY KEY,
		genres     TEXT[] NOT NULL DEFAULT '{}',
		fetched_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates any missing tables and indexes.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
