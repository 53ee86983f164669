package goAccounts

import (
	"context"
	"time"

	"github.com/MrEthical07/goAccounts/internal/events"
)

// EventKind names an account event.
type EventKind = events.Kind

// Event describes one account occurrence delivered to OnEvent handlers.
type Event = events.Event

// EventHandler receives events. Handlers must not block for long when
// events are delivered synchronously; they run on the request goroutine.
type EventHandler = events.Handler

const (
	// EventLogin fires after a successful Authenticate.
	EventLogin EventKind = "login"
	// EventLoginFailed fires when Authenticate rejects credentials. Reason is
	// "unknown_email" or "wrong_password".
	EventLoginFailed EventKind = "login_failed"
	// EventLogout fires after Logout removed the session.
	EventLogout EventKind = "logout"
	// EventCreateUser fires after CreateUser stored a new user.
	EventCreateUser EventKind = "create_user"
	// EventSessionResolved fires for every request resolved to an
	// authenticated session.
	EventSessionResolved EventKind = "session_resolved"
	// EventTokenRejected fires when a presented token is not accepted. Reason
	// is the failure class.
	EventTokenRejected EventKind = "token_rejected"
)

// JSONLinesHandler writes each event as one JSON line to w.
var JSONLinesHandler = events.JSONLines

func (e *Engine) emit(ctx context.Context, event Event) {
	if !e.events.Subscribed(event.Kind) {
		return
	}
	if event.Time.IsZero() {
		event.Time = e.now()
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = userAgentFromContext(ctx)
	}
	e.events.Emit(ctx, event)
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now()
}
