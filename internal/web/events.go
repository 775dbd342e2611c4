package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// keepAliveInterval is how often an idle event stream sends a comment line.
const keepAliveInterval = 25 * time.Second

// Events streams the user's progress events as Server-Sent Events
// (GET /api/events).
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.log.Debug("clearing write deadline", zap.Error(err))
	}

	s := sessionFrom(r.Context())
	sub := h.hub.Subscribe(s.UserID)
	defer h.hub.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.log.Warn("event stream cannot flush", zap.Error(err))
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				h.log.Warn("encoding event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
