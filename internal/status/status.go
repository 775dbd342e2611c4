// Package status broadcasts progress of long-running playlist operations to
// live subscribers such as the Server-Sent Events stream.
package status

import (
	"time"
)

// Event types.
const (
	TypeSong    = "song"
	TypeBatch   = "batch"
	TypeGenres  = "genres"
	TypePublish = "publish"
)

// Song states reported in TypeSong events.
const (
	StateMatched    = "matched"
	StateUnresolved = "unresolved"
	StateSkipped    = "skipped"
)

// Event is a single progress notification.
type Event struct {
	Type     string    `json:"type"`
	Playlist string    `json:"playlist,omitempty"`
	Index    int       `json:"index"`
	Total    int       `json:"total"`
	Title    string    `json:"title,omitempty"`
	Artist   string    `json:"artist,omitempty"`
	State    string    `json:"state,omitempty"`
	Message  string    `json:"message,omitempty"`
	At       time.Time `json:"at"`
}

// Sink receives events. Publish must not block.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Publish calls f(e).
func (f SinkFunc) Publish(e Event) { f(e) }

type nop struct{}

func (nop) Publish(Event) {}

// Nop is a Sink that discards every event.
var Nop Sink = nop{}

// Or returns s, or Nop when s is nil.
func Or(s Sink) Sink {
	if s == nil {
		return Nop
	}
	return s
}
