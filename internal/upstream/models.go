package upstream

import "fmt"

// User is the identity payload the backend returns on a completed login.
type User struct {
	ID       int64   `json:"id"`
	Email    string  `json:"email"`
	Username string  `json:"username"`
	Avatar   *string `json:"avatar"`
}

// LoginResult is the structured outcome of POST /auth/login/. The flow
// flags are signals, not failures: exactly one of OTPRequired,
// ChangePasswordRequired or a populated token pair is expected.
type LoginResult struct {
	OTPRequired            bool   `json:"otp_required"`
	ChangePasswordRequired bool   `json:"change_password_required"`
	Message                string `json:"message"`
	Email                  string `json:"email"`
	User                   *User  `json:"user"`
	AccessToken            string `json:"access_token"`
	RefreshToken           string `json:"refresh_token"`
}

// VerifyOTPResult is the outcome of POST /token/verify-otp/.
type VerifyOTPResult struct {
	User            *User  `json:"user"`
	AccessToken     string `json:"access_token"`
	RefreshToken    string `json:"refresh_token"`
	TrustedDeviceID string `json:"trusted_device_id"`
}

// TokenPair is the outcome of POST /auth/refresh/.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Error is a failed backend call normalized to the uniform {error, message}
// shape.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream: %s (status %d)", e.Message, e.StatusCode)
}

// IsCredentialError reports whether the failure is a rejected credential
// rather than a transport or server problem.
func (e *Error) IsCredentialError() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}
