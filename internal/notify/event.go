// Package notify tells query consumers that the store changed so they can
// re-run their queries.
package notify

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// EventType classifies an Event
type EventType string

const (
	EventIngested EventType = "ingested"
	EventCleared  EventType = "cleared"
	EventError    EventType = "error"
)

// Event describes one completed change to the store.
type Event struct {
	ID      string    `json:"id"`
	Type    EventType `json:"type"`
	Records int       `json:"records,omitempty"`
	Builds  []string  `json:"builds,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Emitter receives events.
type Emitter interface {
	Emit(event Event)
}

// TextEmitter formats events as human-readable text for CLI output.
type TextEmitter struct {
	W io.Writer
}

// Emit writes a formatted line to the underlying writer.
func (e *TextEmitter) Emit(ev Event) {
	switch ev.Type {
	case EventIngested:
		fmt.Fprintf(e.W, "[ingested] %s records", humanize.Comma(int64(ev.Records)))
		if len(ev.Builds) > 0 {
			fmt.Fprintf(e.W, " from %s", strings.Join(ev.Builds, ", "))
		}
		fmt.Fprintln(e.W)
		if ev.Message != "" {
			fmt.Fprintf(e.W, "  %s\n", ev.Message)
		}
	case EventCleared:
		fmt.Fprintln(e.W, "[cleared] store emptied")
	case EventError:
		fmt.Fprintf(e.W, "Error: %s\n", ev.Message)
	}
}
