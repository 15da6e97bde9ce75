package auth

type UserPayload struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	Username string  `json:"username"`
	Avatar   *string `json:"avatar,omitempty"`
}

// SignInResult carries either a flow redirect (OTP or forced password
// change) or a completed session. SessionToken never leaves the process
// as JSON; the controller moves it into the cookie.
type SignInResult struct {
	Redirect     string       `json:"redirect"`
	Message      string       `json:"message,omitempty"`
	User         *UserPayload `json:"user,omitempty"`
	SessionToken string       `json:"-"`
}

type VerifyOTPResult struct {
	Redirect        string       `json:"redirect"`
	User            *UserPayload `json:"user,omitempty"`
	SessionToken    string       `json:"-"`
	TrustedDeviceID string       `json:"-"`
}

type TokenDetails struct {
	Email       string `json:"email,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type FlowRedirect struct {
	Redirect string `json:"redirect"`
}
