package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEEmitter implements Emitter by writing Server-Sent Events.
type SSEEmitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEEmitter creates an SSEEmitter for the given ResponseWriter.
// Returns nil if the writer does not support flushing.
func NewSSEEmitter(w http.ResponseWriter) *SSEEmitter {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil
	}
	return &SSEEmitter{w: w, flusher: f}
}

// Emit writes an event as an SSE frame and flushes.
func (e *SSEEmitter) Emit(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(e.w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
	e.flusher.Flush()
}

// Comment writes an SSE comment line, used as a keep-alive.
func (e *SSEEmitter) Comment(text string) {
	fmt.Fprintf(e.w, ": %s\n\n", text)
	e.flusher.Flush()
}
