package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is one (user, device) login instance, keyed by its refresh token.
// Session rows outlive individual access tokens and are removed on logout,
// logout-all or refresh rotation.
type Session struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	RefreshToken string
	UserAgent    string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HistoryEntry is the login-history view of a session.
type HistoryEntry struct {
	UserAgent string    `json:"user_agent"`
	Time      time.Time `json:"time"`
}
