package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken = errors.New("invalid session token")
)

// State is the tagged lifecycle state of a decoded session. A session is
// never marked with a loose error string; refresh failure is its own state
// so callers can force sign-out explicitly.
type State int

const (
	StateActive State = iota
	StateExpired
	StateRefreshFailed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateRefreshFailed:
		return "refresh_failed"
	default:
		return "unknown"
	}
}

// Session is the decoded session-token payload: the authenticated user plus
// the upstream bearer credential pair it carries.
type Session struct {
	UserID   string
	Username string
	Email    string

	AccessToken        string
	RefreshToken       string
	AccessTokenExpires time.Time

	refreshFailed bool
}

// State reports the session's lifecycle state at time now.
func (s *Session) State(now time.Time) State {
	if s.refreshFailed {
		return StateRefreshFailed
	}
	if now.After(s.AccessTokenExpires) {
		return StateExpired
	}
	return StateActive
}

// MarkRefreshFailed invalidates the session after a failed upstream refresh.
func (s *Session) MarkRefreshFailed() {
	s.refreshFailed = true
}

// ApplyTokenPair swaps in a refreshed credential pair.
func (s *Session) ApplyTokenPair(accessToken, refreshToken string, expires time.Time) {
	s.AccessToken = accessToken
	if refreshToken != "" {
		s.RefreshToken = refreshToken
	}
	s.AccessTokenExpires = expires
	s.refreshFailed = false
}

type sessionClaims struct {
	UserID             string `json:"user_id"`
	Username           string `json:"username"`
	Email              string `json:"email"`
	AccessToken        string `json:"access_token"`
	RefreshToken       string `json:"refresh_token"`
	AccessTokenExpires int64  `json:"access_token_expires"` // epoch milliseconds
	RefreshFailed      bool   `json:"refresh_failed,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session-token cookies
type Codec struct {
	secret []byte
	ttl    time.Duration
}

func NewCodec(secret string, ttl time.Duration) *Codec {
	return &Codec{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Encode signs the session into a cookie-sized JWT
func (c *Codec) Encode(s *Session) (string, error) {
	now := time.Now()

	claims := sessionClaims{
		UserID:             s.UserID,
		Username:           s.Username,
		Email:              s.Email,
		AccessToken:        s.AccessToken,
		RefreshToken:       s.RefreshToken,
		AccessTokenExpires: s.AccessTokenExpires.UnixMilli(),
		RefreshFailed:      s.refreshFailed,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			Issuer:    "authgate",
			Subject:   s.UserID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Decode verifies the signature and returns the session. A token whose
// bearer credential field is empty is rejected the same as a malformed one.
func (c *Codec) Decode(tokenString string) (*Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.AccessToken == "" {
		return nil, ErrInvalidToken
	}

	return &Session{
		UserID:             claims.UserID,
		Username:           claims.Username,
		Email:              claims.Email,
		AccessToken:        claims.AccessToken,
		RefreshToken:       claims.RefreshToken,
		AccessTokenExpires: time.UnixMilli(claims.AccessTokenExpires),
		refreshFailed:      claims.RefreshFailed,
	}, nil
}
