// Package claims decodes access tokens on the client side.
// Signatures are never checked here: the backend is the only verifier.
package claims

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Makepad-fr/tada/internal/model"
)

// Claims is the payload the backend puts in access tokens.
type Claims struct {
	Username  string `json:"username"`
	UserID    any    `json:"user_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

var parser = jwt.NewParser(jwt.WithJSONNumber())

// Parse decodes the payload of token without verifying it.
func Parse(token string) (*Claims, error) {
	var c Claims
	if _, _, err := parser.ParseUnverified(token, &c); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &c, nil
}

// Decode turns token into the user it describes.
func Decode(token string) (*model.User, error) {
	c, err := Parse(token)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		Username:  c.Username,
		TokenType: c.TokenType,
		TokenID:   c.ID,
		IssuedAt:  timeOf(c.IssuedAt),
		ExpiresAt: timeOf(c.ExpiresAt),
	}
	if c.UserID != nil {
		u.UserID = fmt.Sprint(c.UserID)
	}
	if u.Username == "" {
		u.Username = c.Subject
	}
	return u, nil
}

// ExpiresAt returns the exp claim of token, or nil when absent or undecodable.
func ExpiresAt(token string) *time.Time {
	c, err := Parse(token)
	if err != nil {
		return nil
	}
	return timeOf(c.ExpiresAt)
}

func timeOf(d *jwt.NumericDate) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

// Usable reports whether pair can still authenticate at now.
// The access token must be unexpired, or else a refresh token must be
// present and unexpired. A token without a decodable exp counts as unexpired.
func Usable(pair *model.TokenPair, now time.Time) bool {
	if pair == nil || pair.Access == "" {
		return false
	}
	if live(pair.Access, now) {
		return true
	}
	return pair.Refresh != "" && live(pair.Refresh, now)
}

func live(token string, now time.Time) bool {
	exp := ExpiresAt(token)
	return exp == nil || now.Before(*exp)
}
