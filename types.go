package goAccounts

import (
	"context"
	"time"
)

// User is an account as stored by the application. The engine only reads
// users; PasswordHash never leaves the process.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	IsAdmin      bool      `json:"isAdmin"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserStore loads users. Implementations return ErrUserNotFound (possibly
// wrapped) when no user matches; any other error is treated as the store
// being unavailable.
type UserStore interface {
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}

// UserWriter is implemented by stores that accept new users. It is only used
// by CreateUser.
type UserWriter interface {
	CreateUser(ctx context.Context, user *User) error
}

// Session is the identity of one request. It is either anonymous or carries
// the authenticated user loaded for the request's token. A Session is never
// modified after it is created.
type Session struct {
	user      *User
	sessionID string
	token     string
	expiresAt time.Time
}

var anonymous = &Session{}

// Anonymous returns the shared unauthenticated Session.
func Anonymous() *Session { return anonymous }

func newAuthenticatedSession(user *User, sessionID, token string, expiresAt time.Time) *Session {
	u := *user
	u.PasswordHash = ""
	return &Session{user: &u, sessionID: sessionID, token: token, expiresAt: expiresAt}
}

// Authenticated reports whether the request presented a valid token for an
// existing user.
func (s *Session) Authenticated() bool {
	return s != nil && s.user != nil
}

// User returns a copy of the authenticated user, or nil for anonymous
// sessions.
func (s *Session) User() *User {
	if !s.Authenticated() {
		return nil
	}
	u := *s.user
	return &u
}

// UserID returns the authenticated user's id or "".
func (s *Session) UserID() string {
	if !s.Authenticated() {
		return ""
	}
	return s.user.ID
}

// IsAdmin reports whether the session belongs to an administrator.
func (s *Session) IsAdmin() bool {
	return s.Authenticated() && s.user.IsAdmin
}

// SessionID returns the sid claim of the token.
func (s *Session) SessionID() string {
	if s == nil {
		return ""
	}
	return s.sessionID
}

// Token returns the raw token the session was resolved from.
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	return s.token
}

// ExpiresAt returns the token expiry, or the zero time for anonymous sessions.
func (s *Session) ExpiresAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.expiresAt
}

// LoginResult is returned by Authenticate.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	SessionID string    `json:"-"`
	User      *User     `json:"user"`
}

// Requirement is the parsed form of an @auth marker.
type Requirement struct {
	RequireAdmin bool
}
