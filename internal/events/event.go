package events

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Kind names an event type.
type Kind string

// Event is one account occurrence.
type Event struct {
	Kind      Kind      `json:"kind"`
	Time      time.Time `json:"time"`
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Handler receives events of the kinds it was subscribed to.
type Handler func(ctx context.Context, event Event)

// JSONLines returns a handler that writes one JSON object per event to w.
func JSONLines(w io.Writer) Handler {
	var mu sync.Mutex
	return func(_ context.Context, event Event) {
		if w == nil {
			return
		}
		data, err := json.Marshal(event)
		if err != nil {
			return
		}

		mu.Lock()
		defer mu.Unlock()

		_, _ = w.Write(data)
		_, _ = w.Write([]byte("\n"))
	}
}
