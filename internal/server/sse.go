package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jonathan/agency-automator/internal/bus"
)

// sseBuffer is how many events an SSE client may fall behind before the
// relay starts dropping events for it.
const sseBuffer = 64

// SSEWriter helps write Server-Sent Events
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends an SSE event
func (s *SSEWriter) WriteEvent(event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// handleEventStream relays every bus event to the client as SSE until the
// client disconnects.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	events := make(chan bus.Event, sseBuffer)
	unsubscribe := s.bus.Subscribe("*", func(evt bus.Event) error {
		select {
		case events <- evt:
		default:
			// Slow client: drop rather than block the bus.
		}
		return nil
	})
	defer unsubscribe()

	if err := sse.WriteEvent("connected", map[string]string{"status": "ok"}); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-events:
			if err := sse.WriteEvent(evt.Name, evt); err != nil {
				return
			}
		}
	}
}
