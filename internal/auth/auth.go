// Package auth provides Spotify OAuth2 authentication for the web flow.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

var (
	// ErrMissingCredentials is returned when SPOTIFY_ID or SPOTIFY_SECRET is not set.
	ErrMissingCredentials = errors.New("missing SPOTIFY_ID or SPOTIFY_SECRET environment variable")

	// ErrStateMismatch is returned when the OAuth state parameter doesn't match.
	ErrStateMismatch = errors.New("OAuth state mismatch")

	// ErrAccessDenied is returned when the user declines authorization.
	ErrAccessDenied = errors.New("spotify authorization denied")

	// ErrMissingCode is returned when the callback carries no authorization code.
	ErrMissingCode = errors.New("missing authorization code")
)

// Scopes requested from Spotify: read the library, create playlists.
var Scopes = []string{
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
}

// Authenticator handles Spotify OAuth2 authentication.
type Authenticator struct {
	config *oauth2.Config
}

// Option configures an Authenticator.
type Option func(*oauth2.Config)

// WithEndpoint overrides the authorization and token URLs.
func WithEndpoint(authURL, tokenURL string) Option {
	return func(c *oauth2.Config) {
		c.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
	}
}

// New creates an Authenticator for the given app credentials.
// Returns ErrMissingCredentials if either is empty.
func New(clientID, clientSecret, redirectURI string, opts ...Option) (*Authenticator, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrMissingCredentials
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyauth.AuthURL,
			TokenURL: spotifyauth.TokenURL,
		},
	}
	for _, opt := range opts {
		opt(config)
	}

	return &Authenticator{config: config}, nil
}

// AuthURL returns the URL to send the user to for the given state.
func (a *Authenticator) AuthURL(state string) string {
	return a.config.AuthCodeURL(state)
}

// Exchange validates the callback request against expectedState and trades
// the authorization code for a token.
func (a *Authenticator) Exchange(ctx context.Context, r *http.Request, expectedState string) (*oauth2.Token, error) {
	q := r.URL.Query()

	if expectedState == "" || q.Get("state") != expectedState {
		return nil, ErrStateMismatch
	}
	if errMsg := q.Get("error"); errMsg != "" {
		return nil, fmt.Errorf("%w: %s", ErrAccessDenied, errMsg)
	}
	code := q.Get("code")
	if code == "" {
		return nil, ErrMissingCode
	}

	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code for token: %w", err)
	}
	return token, nil
}

// Client returns an HTTP client that authorizes requests with token and
// refreshes it when it expires. onRefresh, if non-nil, is called with every
// new token so callers can persist it.
func (a *Authenticator) Client(ctx context.Context, token *oauth2.Token, onRefresh func(*oauth2.Token)) *http.Client {
	src := a.config.TokenSource(ctx, token)
	if onRefresh != nil {
		src = &notifyingSource{base: src, last: token.AccessToken, onRefresh: onRefresh}
	}
	return oauth2.NewClient(ctx, src)
}

// notifyingSource reports access token changes from base.
type notifyingSource struct {
	base      oauth2.TokenSource
	onRefresh func(*oauth2.Token)

	mu   sync.Mutex
	last string
}

func (s *notifyingSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changed := token.AccessToken != s.last
	s.last = token.AccessToken
	s.mu.Unlock()

	if changed {
		s.onRefresh(token)
	}
	return token, nil
}

// GenerateState creates a random state string for OAuth.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
