// Package disambiguate asks the LLM to pick catalog tracks for songs the
// matcher could not resolve on its own.
package disambiguate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/justestif/go-spotify-playlist-curator/internal/llm"
	"github.com/justestif/go-spotify-playlist-curator/internal/playlist"
)

// Outcome is the result of a disambiguation pass. URIs is indexed by song
// position and has one entry per song of the playlist; only entries chosen
// in this pass are set. Playlist is a copy of the input with the chosen
// songs renamed to the catalog's canonical title and artist.
type Outcome struct {
	URIs          []string
	ResolvedCount int
	Playlist      playlist.Playlist
}

// Pass runs LLM disambiguation.
type Pass struct {
	llm llm.JSONGenerator
	log *zap.Logger
}

// Option configures a Pass.
type Option func(*Pass)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pass) {
		if l != nil {
			p.log = l
		}
	}
}

// New creates a disambiguation pass backed by gen.
func New(gen llm.JSONGenerator, opts ...Option) *Pass {
	p := &Pass{llm: gen, log: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type request struct {
	PlaylistName        string                `json:"playlistName"`
	PlaylistDescription string                `json:"playlistDescription"`
	Unresolved          []playlist.Unresolved `json:"unresolved"`
}

// Choice is the model's pick for one unresolved entry. A nil SelectedURI
// means no candidate fits.
type Choice struct {
	Index       int     `json:"index"`
	SelectedURI *string `json:"selectedUri"`
}

type response struct {
	Choices []json.RawMessage `json:"choices"`
}

func validateResponse(r *response) error {
	if r.Choices == nil {
		return errors.New(`missing "choices"`)
	}
	return nil
}

// Resolve asks the model to choose among each entry's candidates. No request
// is made when there is nothing to resolve. A choice is accepted only when
// its index belongs to an unresolved entry and its URI is exactly one of that
// entry's candidates; anything else is dropped. The input playlist is left
// untouched.
func (p *Pass) Resolve(ctx context.Context, pl playlist.Playlist, unresolved []playlist.Unresolved, model string) (Outcome, error) {
	out := Outcome{
		URIs:     make([]string, len(pl.Songs)),
		Playlist: pl.Clone(),
	}

	offered := withCandidates(unresolved)
	if len(offered) == 0 {
		return out, nil
	}

	prompt, err := buildPrompt(pl, offered)
	if err != nil {
		return out, err
	}

	raw, err := p.llm.GenerateJSON(ctx, prompt, model)
	if err != nil {
		return out, fmt.Errorf("disambiguating %q: %w", pl.Name, err)
	}

	resp, err := llm.Decode(raw, validateResponse)
	if err != nil {
		var parseErr *llm.ParseError
		if errors.As(err, &parseErr) {
			// Valid JSON of the wrong shape counts as no choices at all.
			p.log.Warn("ignoring malformed disambiguation reply",
				zap.String("playlist", pl.Name),
				zap.Error(err))
			return out, nil
		}
		return out, fmt.Errorf("disambiguating %q: %w", pl.Name, err)
	}

	Apply(&out, offered, decodeChoices(resp.Choices, p.log), p.log)

	p.log.Info("disambiguated playlist songs",
		zap.String("playlist", pl.Name),
		zap.Int("offered", len(offered)),
		zap.Int("resolved", out.ResolvedCount))

	return out, nil
}

// Apply validates choices against the offered entries and records the
// accepted ones in out. The first accepted choice for an index wins.
func Apply(out *Outcome, offered []playlist.Unresolved, choices []Choice, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}

	byIndex := make(map[int]playlist.Unresolved, len(offered))
	for _, u := range offered {
		byIndex[u.Index] = u
	}

	for _, choice := range choices {
		if choice.SelectedURI == nil {
			continue
		}
		entry, ok := byIndex[choice.Index]
		if !ok || choice.Index < 0 || choice.Index >= len(out.URIs) {
			log.Debug("dropping choice for unknown index", zap.Int("index", choice.Index))
			continue
		}
		if out.URIs[choice.Index] != "" {
			continue
		}

		candidate, ok := findCandidate(entry.Candidates, *choice.SelectedURI)
		if !ok {
			log.Debug("dropping choice outside offered candidates",
				zap.Int("index", choice.Index),
				zap.String("uri", *choice.SelectedURI))
			continue
		}

		out.URIs[choice.Index] = candidate.URI
		out.ResolvedCount++
		if choice.Index < len(out.Playlist.Songs) {
			out.Playlist.Songs[choice.Index] = playlist.Song{
				Title:  candidate.Title,
				Artist: candidate.Artist,
			}
		}
	}
}

// decodeChoices decodes each choice on its own so that one entry of the
// wrong shape does not discard the rest.
func decodeChoices(raw []json.RawMessage, log *zap.Logger) []Choice {
	choices := make([]Choice, 0, len(raw))
	for i, r := range raw {
		var c Choice
		if err := json.Unmarshal(r, &c); err != nil {
			log.Debug("dropping undecodable choice", zap.Int("position", i), zap.Error(err))
			continue
		}
		choices = append(choices, c)
	}
	return choices
}

func findCandidate(candidates []playlist.Candidate, uri string) (playlist.Candidate, bool) {
	for _, c := range candidates {
		if c.URI == uri {
			return c, true
		}
	}
	return playlist.Candidate{}, false
}

// withCandidates returns the entries that have anything to choose from.
func withCandidates(unresolved []playlist.Unresolved) []playlist.Unresolved {
	var out []playlist.Unresolved
	for _, u := range unresolved {
		if len(u.Candidates) > 0 {
			out = append(out, u)
		}
	}
	return out
}

func buildPrompt(pl playlist.Playlist, offered []playlist.Unresolved) (string, error) {
	payload, err := json.MarshalIndent(request{
		PlaylistName:        pl.Name,
		PlaylistDescription: pl.Description,
		Unresolved:          offered,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding disambiguation request: %w", err)
	}

	return `Some songs requested for a playlist could not be matched to catalog tracks automatically.
For each unresolved entry, pick the candidate that is the requested recording, or null if none is.
Prefer the original studio version over covers, karaoke and tribute versions.

Reply with JSON of the form {"choices":[{"index":<entry index>,"selectedUri":"<candidate uri>"|null}]}.
Use only the indexes and candidate URIs given below.

` + string(payload), nil
}
