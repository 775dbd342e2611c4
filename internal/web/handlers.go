package web

import (
	"context"
	"errors"
	"io/fs"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-playlist-curator/internal/auth"
	"github.com/justestif/go-spotify-playlist-curator/internal/curator"
	"github.com/justestif/go-spotify-playlist-curator/internal/status"
)

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	auth     *auth.Authenticator
	sessions SessionManager
	curator  *curator.Service
	hub      *status.Hub
	catalogs CatalogFactory
	static   fs.FS
	cookies  cookies
	log      *zap.Logger
}

// Home serves the single-page UI (GET /).
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, h.static, "index.html")
}

// Login initiates the Spotify OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state, err := auth.GenerateState()
	if err != nil {
		h.log.Error("generating oauth state", zap.Error(err))
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}

	h.cookies.set(w, stateCookieName, state, stateTTL)
	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback from Spotify (GET /callback).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		http.Error(w, "Missing state cookie", http.StatusBadRequest)
		return
	}
	h.cookies.clear(w, stateCookieName)

	ctx := r.Context()
	token, err := h.auth.Exchange(ctx, r, stateCookie.Value)
	switch {
	case errors.Is(err, auth.ErrAccessDenied):
		http.Redirect(w, r, "/?error=access_denied", http.StatusTemporaryRedirect)
		return
	case errors.Is(err, auth.ErrStateMismatch), errors.Is(err, auth.ErrMissingCode):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.log.Error("exchanging oauth code", zap.Error(err))
		http.Error(w, "Failed to get token", http.StatusBadGateway)
		return
	}

	cat := h.catalogs(ctx, &Session{Token: token}, nil)
	user, err := h.curator.CurrentUser(ctx, cat)
	if err != nil {
		h.log.Error("reading current user", zap.Error(err))
		http.Error(w, "Failed to get user info", http.StatusBadGateway)
		return
	}

	session, err := h.sessions.Create(ctx, token, user)
	if err != nil {
		h.log.Error("creating session", zap.String("user", user.ID), zap.Error(err))
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	h.log.Info("user logged in", zap.String("user", user.ID))
	h.cookies.set(w, sessionCookieName, session.ID, sessionTTL)
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// Logout clears the session and redirects to home (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.session(r); session != nil {
		h.sessions.Delete(r.Context(), session.ID)
	}

	h.cookies.clear(w, sessionCookieName)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// session returns the session named by the request cookie, or nil.
func (h *Handlers) session(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	return h.sessions.Get(r.Context(), cookie.Value)
}

// catalog returns the session's catalog client. Refreshed tokens are saved
// even when the request is cancelled.
func (h *Handlers) catalog(r *http.Request, session *Session) curator.Catalog {
	ctx := r.Context()
	return h.catalogs(ctx, session, func(token *oauth2.Token) {
		h.sessions.UpdateToken(context.WithoutCancel(ctx), session.ID, token)
	})
}
