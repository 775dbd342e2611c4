package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/justestif/go-spotify-playlist-curator/internal/catalog"
	"github.com/justestif/go-spotify-playlist-curator/internal/curator"
	"github.com/justestif/go-spotify-playlist-curator/internal/generator"
	"github.com/justestif/go-spotify-playlist-curator/internal/genres"
	"github.com/justestif/go-spotify-playlist-curator/internal/llm"
	"github.com/justestif/go-spotify-playlist-curator/internal/playlist"
	"github.com/justestif/go-spotify-playlist-curator/internal/queue"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type meResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type resolveRequest struct {
	Playlists []playlist.Playlist `json:"playlists"` // empty resolves the stored batch
	Model     string              `json:"model,omitempty"`
}

type matchRequest struct {
	Name  string `json:"name"`
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

type chatRequest struct {
	History []llm.Message `json:"history"`
	Message string        `json:"message"`
	Model   string        `json:"model,omitempty"`
}

// Me returns the logged-in user (GET /api/me).
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	writeJSON(w, http.StatusOK, meResponse{ID: s.UserID, Name: s.UserName})
}

// Liked returns the user's liked songs (GET /api/liked?limit=N).
func (h *Handlers) Liked(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s := sessionFrom(r.Context())
	tracks, err := h.curator.LikedSongs(r.Context(), h.catalog(r, s), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if tracks == nil {
		tracks = []catalog.Track{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

// Genres groups liked songs by genre (GET /api/genres).
func (h *Handlers) Genres(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	groups, err := h.curator.GenrePlaylists(r.Context(), h.catalog(r, s), s.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// Mixes clusters liked songs by genre similarity
// (GET /api/genres/mixes?mixes=N&minSize=M).
func (h *Handlers) Mixes(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r, "mixes")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	minSize, err := queryInt(r, "minSize")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s := sessionFrom(r.Context())
	result, err := h.curator.GenreMixes(r.Context(), h.catalog(r, s), s.UserID, genres.MixConfig{Mixes: n, MinSize: minSize})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Generate asks the LLM for a new batch (POST /api/playlists/generate).
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req generator.Request
	if !h.decode(w, r, &req) {
		return
	}
	s := sessionFrom(r.Context())
	batch, err := h.curator.Generate(r.Context(), h.catalog(r, s), s.UserID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// ResolveCached resolves supplied playlists, or the stored batch when none
// are given (POST /api/playlists/cached).
func (h *Handlers) ResolveCached(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !h.decode(w, r, &req) {
		return
	}
	s := sessionFrom(r.Context())
	results, err := h.curator.ResolveBatch(r.Context(), h.catalog(r, s), s.UserID, req.Playlists, req.Model)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// DiscardCached deletes the stored batch (DELETE /api/playlists/cached).
func (h *Handlers) DiscardCached(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	if err := h.curator.DiscardBatch(s.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Match resolves a pasted song list (POST /api/playlists/match).
func (h *Handlers) Match(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if !h.decode(w, r, &req) {
		return
	}
	s := sessionFrom(r.Context())
	result, err := h.curator.MatchPasted(r.Context(), h.catalog(r, s), s.UserID, req.Name, req.Text, req.Model)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Publish creates a playlist in the user's account (POST /api/playlists/publish).
func (h *Handlers) Publish(w http.ResponseWriter, r *http.Request) {
	var req curator.PublishRequest
	if !h.decode(w, r, &req) {
		return
	}
	s := sessionFrom(r.Context())
	rec, err := h.curator.Publish(r.Context(), h.catalog(r, s), s.UserID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// History lists published playlists (GET /api/playlists/history?limit=N).
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s := sessionFrom(r.Context())
	records, err := h.curator.History(r.Context(), s.UserID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []curator.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// Chat continues the ideation conversation (POST /api/chat).
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !h.decode(w, r, &req) {
		return
	}
	reply, err := h.curator.Chat(r.Context(), req.History, req.Message, req.Model)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// badRequest marks errors in the request itself.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badRequest{fmt.Sprintf("%s must be a non-negative integer", name)}
	}
	return n, nil
}

// decode reads a JSON body into v, writing a 400 on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		h.writeError(w, r, badRequest{"invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

// writeError maps err to a status code and JSON body.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, body := classify(err)
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		h.log.Debug("request cancelled", zap.String("path", r.URL.Path))
		return
	}
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", code),
			zap.Error(err))
	}
	writeJSON(w, code, body)
}

func classify(err error) (int, errorBody) {
	var br badRequest
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest, errorBody{Error: "bad_request", Message: br.msg}
	case curator.IsUserError(err), errors.Is(err, generator.ErrEmptyMessage):
		return http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()}
	case errors.Is(err, catalog.ErrAuthExpired):
		return http.StatusUnauthorized, errorBody{Error: "login_required", Message: "Spotify authorization expired"}
	case queue.IsRateLimited(err):
		return http.StatusServiceUnavailable, errorBody{Error: "rate_limited", Message: "Spotify is rate limiting requests, try again shortly"}
	case errors.Is(err, queue.ErrClosed):
		return http.StatusServiceUnavailable, errorBody{Error: "shutting_down"}
	case errors.Is(err, llm.ErrInvalidJSON):
		return http.StatusBadGateway, errorBody{Error: "llm_error", Message: "the model returned an unreadable reply"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorBody{Error: "timeout"}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal_error"}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
