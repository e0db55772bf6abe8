package model

import (
	"strings"
	"time"
)

// TokenPair is the access/refresh pair issued by POST /token/.
// It is replaced wholesale on refresh and removed on logout.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Credentials are what the login and register forms submit.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate rejects blank usernames and empty passwords before any request is made.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return ErrEmptyUsername
	}
	if c.Password == "" {
		return ErrEmptyPassword
	}
	return nil
}

// User holds the claims decoded from an access token.
// Nothing here is verified; it is for display and expiry checks only.
type User struct {
	Username  string
	UserID    string
	TokenType string
	TokenID   string
	IssuedAt  *time.Time
	ExpiresAt *time.Time
}

// Expired reports whether the token carried an exp claim that is not after now.
func (u *User) Expired(now time.Time) bool {
	if u == nil || u.ExpiresAt == nil {
		return false
	}
	return !now.Before(*u.ExpiresAt)
}
