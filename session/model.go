package session

// Record is the server-side state of one issued token.
type Record struct {
	SessionID string
	UserID    string
	IP        string
	UserAgent string

	CreatedAt int64
	ExpiresAt int64
}
