package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"authgate/internal/audit"
	"authgate/internal/guard"
	"authgate/internal/session"
	"authgate/internal/shared/config"
	"authgate/internal/upstream"
	"authgate/internal/verification"
)

type fakeUpstream struct {
	loginResult  *upstream.LoginResult
	loginErr     error
	loginCalls   int
	loginDevice  string
	otpResult    *upstream.VerifyOTPResult
	otpErr       error
	refreshPair  *upstream.TokenPair
	refreshErr   error
	passwordErrs error
}

func (f *fakeUpstream) Login(ctx context.Context, email, password, trustedDeviceID string) (*upstream.LoginResult, error) {
	f.loginCalls++
	f.loginDevice = trustedDeviceID
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginResult, nil
}

func (f *fakeUpstream) VerifyOTP(ctx context.Context, email, code string) (*upstream.VerifyOTPResult, error) {
	if f.otpErr != nil {
		return nil, f.otpErr
	}
	return f.otpResult, nil
}

func (f *fakeUpstream) Refresh(ctx context.Context, refreshToken string) (*upstream.TokenPair, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshPair, nil
}

func (f *fakeUpstream) ForceChangePassword(ctx context.Context, email, currentPassword, newPassword string) error {
	return f.passwordErrs
}

func (f *fakeUpstream) ResetPassword(ctx context.Context, email, newPassword string) error {
	return f.passwordErrs
}

type fakeGuard struct {
	checkErr   error
	failureErr error
	failures   int
	resets     int
}

func (f *fakeGuard) Check(ctx context.Context, ip string) error { return f.checkErr }
func (f *fakeGuard) RecordFailure(ctx context.Context, ip string) error {
	f.failures++
	return f.failureErr
}
func (f *fakeGuard) Reset(ctx context.Context, ip string) { f.resets++ }

type fakeTrust struct {
	known      bool
	valid      bool
	remembered string
}

func (f *fakeTrust) Remember(ctx context.Context, email, deviceID string) error {
	f.remembered = deviceID
	return nil
}
func (f *fakeTrust) Verify(ctx context.Context, email, deviceID string) (bool, bool) {
	return f.known, f.valid
}
func (f *fakeTrust) Forget(ctx context.Context, email string) {}

type recordingPublisher struct {
	events []*audit.Event
}

func (r *recordingPublisher) Publish(ctx context.Context, event *audit.Event) error {
	r.events = append(r.events, event)
	return nil
}
func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) has(eventType audit.EventType) bool {
	for _, e := range r.events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

type serviceHarness struct {
	service   Service
	upstream  *fakeUpstream
	guard     *fakeGuard
	trust     *fakeTrust
	publisher *recordingPublisher
	codec     *session.Codec
	issuer    *verification.Issuer
}

func newServiceHarness() *serviceHarness {
	cfg := &config.Config{
		JWT: config.JWTConfig{
			SessionSecret:      "session-secret",
			VerificationSecret: "verification-secret",
			SessionTTL:         time.Hour,
			AccessTokenTTL:     15 * time.Minute,
			VerificationTTL:    5 * time.Minute,
		},
		Gate: config.GateConfig{SignInPath: "/sign-in"},
	}

	h := &serviceHarness{
		upstream:  &fakeUpstream{},
		guard:     &fakeGuard{},
		trust:     &fakeTrust{},
		publisher: &recordingPublisher{},
		codec:     session.NewCodec(cfg.JWT.SessionSecret, cfg.JWT.SessionTTL),
		issuer:    verification.NewIssuer(cfg.JWT.VerificationSecret, cfg.JWT.VerificationTTL),
	}
	h.service = NewService(h.upstream, h.issuer, h.codec, h.guard, h.trust, h.publisher, cfg)
	return h
}

func TestSignInOTPRequired(t *testing.T) {
	h := newServiceHarness()
	h.upstream.loginResult = &upstream.LoginResult{
		OTPRequired: true,
		Email:       "jdoe@example.com",
		Message:     "OTP sent",
	}

	result, err := h.service.SignIn(context.Background(), &SignInRequest{
		Email:       "jdoe@example.com",
		Password:    "hunter2",
		CallbackURL: "/dashboard",
	}, "203.0.113.9", "")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	if !strings.HasPrefix(result.Redirect, "/verify-otp?") {
		t.Fatalf("Redirect = %q, want /verify-otp", result.Redirect)
	}
	if result.SessionToken != "" {
		t.Error("SessionToken set on an OTP-required outcome")
	}

	// The redirect carries a token scoped to the OTP step.
	parsed, err := url.Parse(result.Redirect)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	details, err := h.issuer.Verify(parsed.Query().Get("token"), verification.PurposeOTP)
	if err != nil {
		t.Fatalf("Verify embedded token: %v", err)
	}
	if details.Email != "jdoe@example.com" {
		t.Errorf("token email = %q", details.Email)
	}
	if details.CallbackURL != "/dashboard" {
		t.Errorf("token callback = %q", details.CallbackURL)
	}
}

func TestSignInChangePasswordRequired(t *testing.T) {
	h := newServiceHarness()
	h.upstream.loginResult = &upstream.LoginResult{
		ChangePasswordRequired: true,
		Email:                  "jdoe@example.com",
	}

	result, err := h.service.SignIn(context.Background(), &SignInRequest{
		Email:    "jdoe@example.com",
		Password: "temporary",
	}, "203.0.113.9", "")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	if !strings.HasPrefix(result.Redirect, "/change-password?") {
		t.Fatalf("Redirect = %q, want /change-password", result.Redirect)
	}

	parsed, _ := url.Parse(result.Redirect)
	if _, err := h.issuer.Verify(parsed.Query().Get("token"), verification.PurposePasswordChange); err != nil {
		t.Errorf("embedded token rejected: %v", err)
	}
	// The token must not open the OTP step.
	if _, err := h.issuer.Verify(parsed.Query().Get("token"), verification.PurposeOTP); err != verification.ErrPurposeMismatch {
		t.Errorf("cross-purpose verify err = %v, want %v", err, verification.ErrPurposeMismatch)
	}
}

func TestSignInTrustedDeviceCompletesSession(t *testing.T) {
	h := newServiceHarness()
	h.trust.known = true
	h.trust.valid = true
	h.upstream.loginResult = &upstream.LoginResult{
		User:         &upstream.User{ID: 7, Email: "jdoe@example.com", Username: "jdoe"},
		AccessToken:  "access",
		RefreshToken: "refresh",
	}

	result, err := h.service.SignIn(context.Background(), &SignInRequest{
		Email:    "jdoe@example.com",
		Password: "hunter2",
	}, "203.0.113.9", "device-123")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	if h.upstream.loginDevice != "device-123" {
		t.Errorf("device forwarded upstream = %q", h.upstream.loginDevice)
	}
	if result.SessionToken == "" {
		t.Fatal("SessionToken empty on a completed login")
	}
	sess, err := h.codec.Decode(result.SessionToken)
	if err != nil {
		t.Fatalf("Decode session: %v", err)
	}
	if sess.UserID != "7" || sess.Email != "jdoe@example.com" {
		t.Errorf("session identity = %q/%q", sess.UserID, sess.Email)
	}
	if h.guard.resets != 1 {
		t.Errorf("guard resets = %d, want 1", h.guard.resets)
	}
	if !h.publisher.has(audit.EventSignInSuccess) {
		t.Error("no sign-in success event published")
	}
}

func TestSignInTamperedDeviceCookieStripped(t *testing.T) {
	h := newServiceHarness()
	h.trust.known = true
	h.trust.valid = false
	h.upstream.loginResult = &upstream.LoginResult{OTPRequired: true, Email: "jdoe@example.com"}

	if _, err := h.service.SignIn(context.Background(), &SignInRequest{
		Email:    "jdoe@example.com",
		Password: "hunter2",
	}, "203.0.113.9", "forged-device"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	if h.upstream.loginDevice != "" {
		t.Errorf("forged device id forwarded upstream: %q", h.upstream.loginDevice)
	}
}

func TestSignInCredentialFailureRecorded(t *testing.T) {
	h := newServiceHarness()
	h.upstream.loginErr = &upstream.Error{StatusCode: 401, Message: "Invalid email or password"}

	_, err := h.service.SignIn(context.Background(), &SignInRequest{
		Email:    "jdoe@example.com",
		Password: "wrong",
	}, "203.0.113.9", "")
	if err == nil {
		t.Fatal("expected error")
	}

	if h.guard.failures != 1 {
		t.Errorf("guard failures = %d, want 1", h.guard.failures)
	}
	if !h.publisher.has(audit.EventSignInFailure) {
		t.Error("no sign-in failure event published")
	}
}

func TestSignInBlockedIPRejected(t *testing.T) {
	h := newServiceHarness()
	h.guard.checkErr = guard.ErrIPBlocked

	_, err := h.service.SignIn(context.Background(), &SignInRequest{
		Email:    "jdoe@example.com",
		Password: "hunter2",
	}, "203.0.113.9", "")
	if err != guard.ErrIPBlocked {
		t.Errorf("err = %v, want %v", err, guard.ErrIPBlocked)
	}
	// Credentials never travel upstream for a blocked address.
	if h.upstream.loginCalls != 0 {
		t.Errorf("login calls = %d, want 0", h.upstream.loginCalls)
	}
}

func TestSignInFailureTriggersBlock(t *testing.T) {
	h := newServiceHarness()
	h.upstream.loginErr = &upstream.Error{StatusCode: 401, Message: "Invalid email or password"}
	h.guard.failureErr = guard.ErrIPBlocked

	_, err := h.service.SignIn(context.Background(), &SignInRequest{
		Email:    "jdoe@example.com",
		Password: "wrong",
	}, "203.0.113.9", "")
	if err != guard.ErrIPBlocked {
		t.Errorf("err = %v, want %v", err, guard.ErrIPBlocked)
	}
	if !h.publisher.has(audit.EventIPBlocked) {
		t.Error("no ip-blocked event published")
	}
}

func TestSignInGuardOutageKeepsCredentialError(t *testing.T) {
	h := newServiceHarness()
	h.upstream.loginErr = &upstream.Error{StatusCode: 401, Message: "Invalid email or password"}
	h.guard.failureErr = errors.New("increment attempts: dial tcp 127.0.0.1:6379: connect: connection refused")

	_, err := h.service.SignIn(context.Background(), &SignInRequest{
		Email:    "jdoe@example.com",
		Password: "wrong",
	}, "203.0.113.9", "")

	var ue *upstream.Error
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want the credential error from the backend", err)
	}
	if ue.Message != "Invalid email or password" {
		t.Errorf("Message = %q, want the backend's credential message", ue.Message)
	}
	if h.publisher.has(audit.EventIPBlocked) {
		t.Error("ip-blocked event published for a guard outage")
	}
}

func TestVerifyOTPCompletesSession(t *testing.T) {
	h := newServiceHarness()
	h.upstream.otpResult = &upstream.VerifyOTPResult{
		User:            &upstream.User{ID: 7, Email: "jdoe@example.com", Username: "jdoe"},
		AccessToken:     "access",
		RefreshToken:    "refresh",
		TrustedDeviceID: "device-456",
	}

	token, err := h.issuer.Issue(verification.PurposeOTP, "jdoe@example.com", "/reports")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	result, err := h.service.VerifyOTP(context.Background(), &VerifyOTPRequest{
		Token: token,
		Code:  "123456",
	}, "203.0.113.9")
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}

	if result.Redirect != "/reports" {
		t.Errorf("Redirect = %q, want the callback from the token", result.Redirect)
	}
	if result.TrustedDeviceID != "device-456" {
		t.Errorf("TrustedDeviceID = %q", result.TrustedDeviceID)
	}
	if h.trust.remembered != "device-456" {
		t.Errorf("trust store remembered %q", h.trust.remembered)
	}
	if _, err := h.codec.Decode(result.SessionToken); err != nil {
		t.Errorf("Decode session: %v", err)
	}
	if !h.publisher.has(audit.EventOTPVerified) {
		t.Error("no otp-verified event published")
	}
}

func TestVerifyOTPRejectsWrongPurposeToken(t *testing.T) {
	h := newServiceHarness()

	token, err := h.issuer.Issue(verification.PurposePasswordReset, "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	_, err = h.service.VerifyOTP(context.Background(), &VerifyOTPRequest{
		Token: token,
		Code:  "123456",
	}, "203.0.113.9")
	if err != verification.ErrPurposeMismatch {
		t.Errorf("err = %v, want %v", err, verification.ErrPurposeMismatch)
	}
}

func TestValidateToken(t *testing.T) {
	h := newServiceHarness()

	token, err := h.issuer.Issue(verification.PurposePasswordChange, "jdoe@example.com", "/settings")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	details, err := h.service.ValidateToken(&ValidateTokenRequest{
		Token:   token,
		Purpose: "password_change",
	})
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if details.Email != "jdoe@example.com" || details.CallbackURL != "/settings" {
		t.Errorf("details = %+v", details)
	}

	if _, err := h.service.ValidateToken(&ValidateTokenRequest{
		Token:   token,
		Purpose: "otp",
	}); err != verification.ErrPurposeMismatch {
		t.Errorf("cross-purpose err = %v, want %v", err, verification.ErrPurposeMismatch)
	}
}

func TestChangePasswordUsesTokenEmail(t *testing.T) {
	h := newServiceHarness()

	token, err := h.issuer.Issue(verification.PurposePasswordChange, "jdoe@example.com", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := h.service.ChangePassword(context.Background(), &ChangePasswordRequest{
		Token:           token,
		CurrentPassword: "temporary",
		NewPassword:     "permanent",
	}); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if !h.publisher.has(audit.EventPasswordChanged) {
		t.Error("no password-changed event published")
	}
}

func TestResetFlowRoundTrip(t *testing.T) {
	h := newServiceHarness()

	flow, err := h.service.RequestPasswordReset(&ResetPasswordRequest{CallbackURL: "/account"})
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if !strings.HasPrefix(flow.Redirect, "/reset-password?") {
		t.Fatalf("Redirect = %q", flow.Redirect)
	}

	parsed, _ := url.Parse(flow.Redirect)
	if err := h.service.ConfirmPasswordReset(context.Background(), &ConfirmResetPasswordRequest{
		Token:       parsed.Query().Get("token"),
		Email:       "jdoe@example.com",
		NewPassword: "brand-new",
	}); err != nil {
		t.Fatalf("ConfirmPasswordReset: %v", err)
	}
}

func TestRefreshSessionSuccess(t *testing.T) {
	h := newServiceHarness()
	h.upstream.refreshPair = &upstream.TokenPair{AccessToken: "new-access", RefreshToken: "new-refresh"}

	raw, err := h.codec.Encode(&session.Session{
		UserID:             "7",
		Email:              "jdoe@example.com",
		AccessToken:        "stale",
		RefreshToken:       "old-refresh",
		AccessTokenExpires: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	token, sess, err := h.service.RefreshSession(context.Background(), raw)
	if err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}
	if sess.AccessToken != "new-access" || sess.RefreshToken != "new-refresh" {
		t.Errorf("pair = %q/%q", sess.AccessToken, sess.RefreshToken)
	}

	decoded, err := h.codec.Decode(token)
	if err != nil {
		t.Fatalf("Decode re-issued token: %v", err)
	}
	if got := decoded.State(time.Now()); got != session.StateActive {
		t.Errorf("State = %v, want %v", got, session.StateActive)
	}
}

func TestRefreshSessionFailureMarksSession(t *testing.T) {
	h := newServiceHarness()
	h.upstream.refreshErr = &upstream.Error{StatusCode: 401, Message: "token revoked"}

	raw, err := h.codec.Encode(&session.Session{
		UserID:             "7",
		AccessToken:        "stale",
		RefreshToken:       "revoked",
		AccessTokenExpires: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	_, sess, err := h.service.RefreshSession(context.Background(), raw)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := sess.State(time.Now()); got != session.StateRefreshFailed {
		t.Errorf("State = %v, want %v", got, session.StateRefreshFailed)
	}
	if !h.publisher.has(audit.EventForcedSignOut) {
		t.Error("no forced sign-out event published")
	}
}
