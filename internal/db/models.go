package db

import (
	"time"

	"github.com/google/uuid"
)

// User represents a Spotify user profile.
type User struct {
	ID          string
	DisplayName string
	Country     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session represents an authenticated web session.
type Session struct {
	ID           string
	UserID       string
	UserName     string // joined from users on read
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// PublishedPlaylist records a playlist created in the user's Spotify account.
type PublishedPlaylist struct {
	ID          uuid.UUID
	UserID      string
	SpotifyID   string
	Name        string
	Description string
	URL         string
	Public      bool
	Prompt      *string // nullable; set for generated playlists
	Requested   int     // songs asked for
	Resolved    int     // songs placed
	CreatedAt   time.Time
}

// PublishedTrack is one track of a published playlist, in playlist order.
type PublishedTrack struct {
	PlaylistID uuid.UUID
	Position   int
	URI        string
}
