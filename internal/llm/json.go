package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidJSON is returned when a reply is not valid JSON.
var ErrInvalidJSON = errors.New("llm reply is not valid JSON")

// JSONGenerator produces a JSON reply for a prompt. *Client implements it.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, prompt, model string) (json.RawMessage, error)
}

var _ JSONGenerator = (*Client)(nil)

var fence = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*\\s*\\n?(.*?)\\s*```$")

// StripFences removes a surrounding Markdown code fence, if any.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ParseJSON strips fences from s and checks that the rest is valid JSON.
func ParseJSON(s string) (json.RawMessage, error) {
	body := StripFences(s)
	if !json.Valid([]byte(body)) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidJSON, preview(body))
	}
	return json.RawMessage(body), nil
}

// ParseError reports a reply that is valid JSON but does not have the
// expected shape.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "unexpected llm reply: " + e.Reason + ": " + e.Err.Error()
	}
	return "unexpected llm reply: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Decode unmarshals raw into T and runs validate on the result. Type
// mismatches and validation failures are reported as *ParseError.
func Decode[T any](raw json.RawMessage, validate func(*T) error) (T, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&v); err != nil {
		var zero T
		return zero, &ParseError{Reason: "decoding", Err: err}
	}
	if validate != nil {
		if err := validate(&v); err != nil {
			var zero T
			return zero, &ParseError{Reason: "validating", Err: err}
		}
	}
	return v, nil
}

func preview(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
