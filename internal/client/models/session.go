// Package models defines the client-side authentication data model: sessions,
// users, credentials, change events and the process-wide auth state.
package models

import "time"

// Identity links a user to one sign-in provider.
type Identity struct {
	ID       string   `json:"id"`
	Provider Provider `json:"provider"`
	Email    string   `json:"email,omitempty"`
}

// User is derived from a Session; the client never builds one on its own.
type User struct {
	ID         string     `json:"id"`
	Email      string     `json:"email,omitempty"`
	Identities []Identity `json:"identities,omitempty"`
}

// Session is the token pair issued by the identity backend.
//
// UserID is the subject of AccessToken. A new sign-in replaces the
// current Session as a whole; sessions are never merged.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	User         *User     `json:"user,omitempty"`
}

// ExpiresWithin reports whether the access token is expired at now+margin.
// A zero ExpiresAt is treated as non-expiring.
func (s *Session) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(s.ExpiresAt)
}

// CurrentUser returns the session's user, falling back to a user carrying
// only the subject id.
func (s *Session) CurrentUser() *User {
	if s == nil {
		return nil
	}
	if s.User != nil {
		return s.User
	}
	if s.UserID == "" {
		return nil
	}
	return &User{ID: s.UserID}
}
