// Package generator asks the LLM for playlist ideas based on a user's liked
// songs and runs the ideation chat.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/justestif/go-spotify-playlist-curator/internal/catalog"
	"github.com/justestif/go-spotify-playlist-curator/internal/llm"
	"github.com/justestif/go-spotify-playlist-curator/internal/playlist"
)

// Limits applied to generation requests.
const (
	DefaultPlaylists        = 3
	MaxPlaylists            = 5
	DefaultSongsPerPlaylist = 15
	MaxSongsPerPlaylist     = 30
	DefaultSampleSize       = 60
	MaxPromptLength         = 1000
)

// ErrEmptyMessage is returned for a blank chat message.
var ErrEmptyMessage = errors.New("chat message is empty")

// Model is the LLM capability the generator needs. *llm.Client implements it.
type Model interface {
	llm.JSONGenerator
	Complete(ctx context.Context, messages []llm.Message, model string) (string, error)
}

var _ Model = (*llm.Client)(nil)

// Request describes what to generate.
type Request struct {
	Prompt           string `json:"prompt"`
	Playlists        int    `json:"playlists"`
	SongsPerPlaylist int    `json:"songsPerPlaylist"`
	Model            string `json:"model,omitempty"`
}

func (r Request) normalized() Request {
	r.Prompt = strings.TrimSpace(r.Prompt)
	if len([]rune(r.Prompt)) > MaxPromptLength {
		r.Prompt = string([]rune(r.Prompt)[:MaxPromptLength])
	}
	r.Playlists = clamp(r.Playlists, DefaultPlaylists, MaxPlaylists)
	r.SongsPerPlaylist = clamp(r.SongsPerPlaylist, DefaultSongsPerPlaylist, MaxSongsPerPlaylist)
	return r
}

func clamp(n, def, max int) int {
	if n <= 0 {
		return def
	}
	return min(n, max)
}

// Generator produces playlists and chat replies.
type Generator struct {
	model      Model
	log        *zap.Logger
	sampleSize int
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}

// WithSampleSize sets how many liked songs are included in prompts.
func WithSampleSize(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.sampleSize = n
		}
	}
}

// New creates a generator.
func New(model Model, opts ...Option) *Generator {
	g := &Generator{
		model:      model,
		log:        zap.NewNop(),
		sampleSize: DefaultSampleSize,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type generatedPlaylists struct {
	Playlists []playlist.Playlist `json:"playlists"`
}

func validatePlaylists(r *generatedPlaylists) error {
	if r.Playlists == nil {
		return errors.New(`missing "playlists"`)
	}
	return nil
}

// Generate asks the model for playlists inspired by liked. Returned
// playlists are sanitized, songs without a title or artist are dropped and
// playlists left empty are removed. A reply of the wrong shape yields no
// playlists rather than an error; a reply that is not JSON at all fails with
// llm.ErrInvalidJSON.
func (g *Generator) Generate(ctx context.Context, liked []catalog.Track, req Request) ([]playlist.Playlist, error) {
	req = req.normalized()

	raw, err := g.model.GenerateJSON(ctx, buildGeneratePrompt(Sample(liked, g.sampleSize), req), req.Model)
	if err != nil {
		return nil, fmt.Errorf("generating playlists: %w", err)
	}

	reply, err := llm.Decode(raw, validatePlaylists)
	if err != nil {
		g.log.Warn("ignoring malformed playlist reply", zap.Error(err))
		return []playlist.Playlist{}, nil
	}

	out := make([]playlist.Playlist, 0, len(reply.Playlists))
	for _, pl := range reply.Playlists {
		pl = Clean(pl, req.SongsPerPlaylist)
		if pl.Name == "" || len(pl.Songs) == 0 {
			continue
		}
		out = append(out, pl)
		if len(out) == req.Playlists {
			break
		}
	}

	g.log.Info("generated playlists",
		zap.Int("requested", req.Playlists),
		zap.Int("returned", len(reply.Playlists)),
		zap.Int("kept", len(out)))

	return out, nil
}

// Clean sanitizes pl, drops invalid and duplicate songs and keeps at most
// maxSongs. A non-positive maxSongs keeps every song.
func Clean(pl playlist.Playlist, maxSongs int) playlist.Playlist {
	pl = pl.Sanitize()

	songs := make([]playlist.Song, 0, len(pl.Songs))
	seen := make(map[string]bool, len(pl.Songs))
	for _, s := range pl.Songs {
		if !s.Valid() {
			continue
		}
		key := strings.ToLower(s.Title) + "\x00" + strings.ToLower(s.Artist)
		if seen[key] {
			continue
		}
		seen[key] = true
		songs = append(songs, s)
		if maxSongs > 0 && len(songs) == maxSongs {
			break
		}
	}
	pl.Songs = songs
	return pl
}

// Sample picks up to n liked songs spread evenly across the library, so both
// recent and old favourites reach the prompt.
func Sample(liked []catalog.Track, n int) []catalog.Track {
	if n <= 0 || len(liked) <= n {
		return liked
	}
	out := make([]catalog.Track, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, liked[i*len(liked)/n])
	}
	return out
}

func buildGeneratePrompt(sample []catalog.Track, req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Create %d distinct playlists of about %d songs each.\n", req.Playlists, req.SongsPerPlaylist)
	if req.Prompt != "" {
		fmt.Fprintf(&b, "The listener asked for: %s\n", req.Prompt)
	}
	if len(sample) > 0 {
		b.WriteString("\nSongs the listener likes:\n")
		for _, t := range sample {
			fmt.Fprintf(&b, "- %s - %s\n", t.Name, t.ArtistLine())
		}
		b.WriteString("\nMix songs from this list with new recommendations in a similar spirit.\n")
	}
	b.WriteString("Only include real, released recordings. Give each playlist a short name (at most 100 characters) and a one-sentence description (at most 300 characters).\n")
	b.WriteString(`Reply with JSON of the form {"playlists":[{"name":"...","description":"...","songs":[{"title":"...","artist":"..."}]}]}.`)

	return b.String()
}

// Reply is the assistant's chat answer with optional song suggestions.
type Reply struct {
	Text        string          `json:"reply"`
	Suggestions []playlist.Song `json:"suggestions"`
}

func validateReply(r *Reply) error {
	if strings.TrimSpace(r.Text) == "" {
		return errors.New(`missing "reply"`)
	}
	return nil
}

const chatSystemPrompt = `You help a listener brainstorm playlists. Answer conversationally and suggest specific songs when useful.
Reply with JSON of the form {"reply":"<your answer>","suggestions":[{"title":"...","artist":"..."}]}. Use an empty list when you have no suggestions.`

// Chat continues a conversation. history holds earlier user and assistant
// turns. When the model answers in plain text instead of JSON, the text is
// returned as the reply without suggestions.
func (g *Generator) Chat(ctx context.Context, history []llm.Message, message, model string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: chatSystemPrompt})
	for _, m := range history {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		messages = append(messages, m)
	}
	messages = append(messages, llm.Message{Role: "user", Content: message})

	content, err := g.model.Complete(ctx, messages, model)
	if err != nil {
		return Reply{}, fmt.Errorf("chatting: %w", err)
	}

	raw, err := llm.ParseJSON(content)
	if err != nil {
		return Reply{Text: llm.StripFences(content), Suggestions: []playlist.Song{}}, nil
	}
	reply, err := llm.Decode(raw, validateReply)
	if err != nil {
		g.log.Warn("ignoring malformed chat reply", zap.Error(err))
		return Reply{Text: fallbackText(raw), Suggestions: []playlist.Song{}}, nil
	}

	suggestions := make([]playlist.Song, 0, len(reply.Suggestions))
	for _, s := range reply.Suggestions {
		s = playlist.Song{Title: strings.TrimSpace(s.Title), Artist: strings.TrimSpace(s.Artist)}
		if s.Valid() {
			suggestions = append(suggestions, s)
		}
	}
	reply.Text = strings.TrimSpace(reply.Text)
	reply.Suggestions = suggestions
	return reply, nil
}

// fallbackText extracts a usable string from a reply of the wrong shape.
func fallbackText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return "Sorry, I could not come up with an answer. Try rephrasing your request."
}
