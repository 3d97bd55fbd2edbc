package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in session tokens.
const (
	RoleStudent   = "student"
	RoleOrganizer = "organizer"
	RoleSecretary = "secretary"
	RoleAdmin     = "admin"
	RoleJudge     = "judge"
)

// Session is the blob handed to the client at login.
type Session struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Role      string     `json:"role"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	// EventID scopes judge sessions to one event.
	EventID string `json:"eventId,omitempty"`
}

// Claims represents JWT payload.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	EventID  string `json:"event_id,omitempty"`
	jwt.RegisteredClaims
}

// Token is a signed access token and its expiry.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Issue signs a short-lived access token for s.
func Issue(s Session, issuer, key string, ttl time.Duration) (Token, error) {
	if s.ID == "" || s.Role == "" {
		return Token{}, errors.New("session id and role required")
	}
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Username: s.Username,
		Role:     s.Role,
		EventID:  s.EventID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   s.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}

// Session rebuilds the session a token was issued for.
func (c Claims) Session() Session {
	return Session{ID: c.Subject, Username: c.Username, Role: c.Role, EventID: c.EventID}
}

// Staff reports whether the role may run event operations.
func (c Claims) Staff() bool {
	switch c.Role {
	case RoleOrganizer, RoleSecretary, RoleAdmin:
		return true
	}
	return false
}
