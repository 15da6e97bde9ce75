package verification

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrPurposeMismatch means the token was minted for a different auth
	// screen than the one trying to consume it.
	ErrPurposeMismatch = errors.New("verification token purpose mismatch")
	// ErrInvalidOrExpired covers signature failures and expiry alike; the
	// caller cannot distinguish them and must restart the flow.
	ErrInvalidOrExpired = errors.New("invalid or expired verification token")
)

// Purpose tags which auth-flow step a verification token belongs to.
type Purpose string

const (
	PurposeOTP            Purpose = "otp"
	PurposePasswordReset  Purpose = "password_reset"
	PurposePasswordChange Purpose = "password_change"
)

// embedsEmail reports whether tokens of this purpose carry the user's
// email. Reset tokens do not: the email arrives through a separate channel.
func (p Purpose) embedsEmail() bool {
	return p == PurposeOTP || p == PurposePasswordChange
}

// Details is what a successfully verified token yields.
type Details struct {
	Email       string
	CallbackURL string
}

type verificationClaims struct {
	Purpose     string `json:"purpose"`
	Email       string `json:"email,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies the short-lived tokens that carry identity
// between steps of a multi-step sign-in. Tokens are self-contained; expiry
// is the only invalidation mechanism.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue mints a signed token for the given flow step.
func (i *Issuer) Issue(purpose Purpose, email, callbackURL string) (string, error) {
	now := time.Now()

	claims := verificationClaims{
		Purpose:     string(purpose),
		CallbackURL: callbackURL,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			Issuer:    "authgate",
		},
	}
	if purpose.embedsEmail() {
		claims.Email = email
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify checks signature, expiry and purpose, in that order: an expired
// token fails regardless of whether its purpose would have matched.
func (i *Issuer) Verify(tokenString string, expected Purpose) (*Details, error) {
	token, err := jwt.ParseWithClaims(tokenString, &verificationClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidOrExpired
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidOrExpired
	}

	claims, ok := token.Claims.(*verificationClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidOrExpired
	}
	if claims.Purpose != string(expected) {
		return nil, ErrPurposeMismatch
	}

	return &Details{
		Email:       claims.Email,
		CallbackURL: claims.CallbackURL,
	}, nil
}
