package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-playlist-curator/internal/catalog"
	"github.com/justestif/go-spotify-playlist-curator/internal/db"
)

const (
	sessionCookieName = "session_id"
	stateCookieName   = "oauth_state"
	sessionTTL        = 24 * time.Hour
	stateTTL          = 5 * time.Minute
)

// Session represents an authenticated user session.
type Session struct {
	ID        string
	Token     *oauth2.Token
	UserID    string
	UserName  string
	CreatedAt time.Time
}

// SessionManager stores sessions.
type SessionManager interface {
	Create(ctx context.Context, token *oauth2.Token, user catalog.User) (*Session, error)
	Get(ctx context.Context, id string) *Session
	Delete(ctx context.Context, id string)
	UpdateToken(ctx context.Context, id string, token *oauth2.Token)
}

// SessionStore manages user sessions in memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create generates a new session with the given token and user info.
func (s *SessionStore) Create(_ context.Context, token *oauth2.Token, user catalog.User) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:        id,
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	return session, nil
}

// Get returns a copy of the session, or nil when it is unknown or expired.
func (s *SessionStore) Get(_ context.Context, id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok || s.now().Sub(session.CreatedAt) > sessionTTL {
		return nil
	}
	cp := *session
	return &cp
}

// Delete removes a session by ID.
func (s *SessionStore) Delete(_ context.Context, id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// UpdateToken replaces the OAuth token for a session. An empty refresh token
// keeps the previous one.
func (s *SessionStore) UpdateToken(_ context.Context, id string, token *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return
	}
	next := *token
	if next.RefreshToken == "" && session.Token != nil {
		next.RefreshToken = session.Token.RefreshToken
	}
	session.Token = &next
}

// DBSessionStore manages user sessions in PostgreSQL.
type DBSessionStore struct {
	database *db.DB
	log      *zap.Logger
}

// NewDBSessionStore creates a new database-backed session store.
func NewDBSessionStore(database *db.DB, log *zap.Logger) *DBSessionStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &DBSessionStore{database: database, log: log}
}

// Create records the user and stores a new session for them.
func (s *DBSessionStore) Create(ctx context.Context, token *oauth2.Token, user catalog.User) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	if err := s.database.Users().Upsert(ctx, &db.User{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Country:     user.Country,
	}); err != nil {
		return nil, fmt.Errorf("saving user: %w", err)
	}

	now := time.Now()
	dbSession := &db.Session{
		ID:           id,
		UserID:       user.ID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
		CreatedAt:    now,
		ExpiresAt:    now.Add(sessionTTL),
	}
	if err := s.database.Sessions().Create(ctx, dbSession); err != nil {
		return nil, err
	}

	return &Session{
		ID:        id,
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		CreatedAt: now,
	}, nil
}

// Get retrieves a session by ID from the database.
func (s *DBSessionStore) Get(ctx context.Context, id string) *Session {
	dbSession, err := s.database.Sessions().Get(ctx, id)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.log.Warn("loading session", zap.Error(err))
		}
		return nil
	}

	return &Session{
		ID: dbSession.ID,
		Token: &oauth2.Token{
			AccessToken:  dbSession.AccessToken,
			RefreshToken: dbSession.RefreshToken,
			Expiry:       dbSession.TokenExpiry,
			TokenType:    "Bearer",
		},
		UserID:    dbSession.UserID,
		UserName:  dbSession.UserName,
		CreatedAt: dbSession.CreatedAt,
	}
}

// Delete removes a session from the database.
func (s *DBSessionStore) Delete(ctx context.Context, id string) {
	if err := s.database.Sessions().Delete(ctx, id); err != nil {
		s.log.Warn("deleting session", zap.Error(err))
	}
}

// UpdateToken stores a refreshed OAuth token for a session.
func (s *DBSessionStore) UpdateToken(ctx context.Context, id string, token *oauth2.Token) {
	if err := s.database.Sessions().UpdateToken(ctx, id, token.AccessToken, token.RefreshToken, token.Expiry); err != nil {
		s.log.Warn("storing refreshed token", zap.Error(err))
	}
}

// generateSessionID creates a cryptographically random session ID.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// cookies writes the session and OAuth state cookies.
type cookies struct {
	secure bool
}

func (c cookies) set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

func (c cookies) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		MaxAge:   -1,
	})
}

var (
	_ SessionManager = (*SessionStore)(nil)
	_ SessionManager = (*DBSessionStore)(nil)
)
