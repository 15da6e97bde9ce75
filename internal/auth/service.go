package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"authgate/internal/audit"
	"authgate/internal/guard"
	"authgate/internal/session"
	"authgate/internal/shared/config"
	"authgate/internal/upstream"
	"authgate/internal/verification"
	"authgate/pkg/logger"
)

var (
	ErrInvalidSession = errors.New("invalid session")
)

// UpstreamClient is the identity backend contract the service depends on
type UpstreamClient interface {
	Login(ctx context.Context, email, password, trustedDeviceID string) (*upstream.LoginResult, error)
	VerifyOTP(ctx context.Context, email, code string) (*upstream.VerifyOTPResult, error)
	Refresh(ctx context.Context, refreshToken string) (*upstream.TokenPair, error)
	ForceChangePassword(ctx context.Context, email, currentPassword, newPassword string) error
	ResetPassword(ctx context.Context, email, newPassword string) error
}

// IPGuard is the failed-login blocking contract
type IPGuard interface {
	Check(ctx context.Context, ip string) error
	RecordFailure(ctx context.Context, ip string) error
	Reset(ctx context.Context, ip string)
}

// DeviceTrust is the edge-side trusted-device cache contract
type DeviceTrust interface {
	Remember(ctx context.Context, email, deviceID string) error
	Verify(ctx context.Context, email, deviceID string) (known, valid bool)
	Forget(ctx context.Context, email string)
}

type Service interface {
	SignIn(ctx context.Context, req *SignInRequest, clientIP, trustedDeviceID string) (*SignInResult, error)
	VerifyOTP(ctx context.Context, req *VerifyOTPRequest, clientIP string) (*VerifyOTPResult, error)
	ValidateToken(req *ValidateTokenRequest) (*TokenDetails, error)
	ChangePassword(ctx context.Context, req *ChangePasswordRequest) error
	RequestPasswordReset(req *ResetPasswordRequest) (*FlowRedirect, error)
	ConfirmPasswordReset(ctx context.Context, req *ConfirmResetPasswordRequest) error
	RefreshSession(ctx context.Context, rawToken string) (string, *session.Session, error)
}

type service struct {
	upstream UpstreamClient
	issuer   *verification.Issuer
	codec    *session.Codec
	guard    IPGuard
	trust    DeviceTrust
	audit    audit.Publisher
	config   *config.Config
	logger   *logger.Logger
}

func NewService(up UpstreamClient, issuer *verification.Issuer, codec *session.Codec, ipGuard IPGuard, deviceTrust DeviceTrust, publisher audit.Publisher, cfg *config.Config) Service {
	return &service{
		upstream: up,
		issuer:   issuer,
		codec:    codec,
		guard:    ipGuard,
		trust:    deviceTrust,
		audit:    publisher,
		config:   cfg,
		logger:   logger.GetDefault(),
	}
}

// SignIn proxies the credential exchange and maps the backend's flow
// signals onto redirect targets: an OTP step, a forced password change, or
// a completed session when the device is trusted.
func (s *service) SignIn(ctx context.Context, req *SignInRequest, clientIP, trustedDeviceID string) (*SignInResult, error) {
	if err := s.guard.Check(ctx, clientIP); err != nil {
		return nil, err
	}

	// A trusted-device cookie that fails the edge-side compare is stripped
	// before the credentials travel upstream.
	deviceID := trustedDeviceID
	if deviceID != "" {
		if known, valid := s.trust.Verify(ctx, req.Email, deviceID); known && !valid {
			deviceID = ""
		}
	}

	result, err := s.upstream.Login(ctx, req.Email, req.Password, deviceID)
	if err != nil {
		var ue *upstream.Error
		if errors.As(err, &ue) && ue.IsCredentialError() {
			s.publish(ctx, audit.EventSignInFailure, req.Email, clientIP, ue.Message)
			if gerr := s.guard.RecordFailure(ctx, clientIP); gerr != nil {
				if errors.Is(gerr, guard.ErrIPBlocked) {
					s.publish(ctx, audit.EventIPBlocked, req.Email, clientIP, "")
					return nil, gerr
				}
				// A guard outage must not mask the credential error.
				s.logger.WithError(gerr).Warn("failed to record sign-in failure")
			}
		}
		return nil, err
	}

	switch {
	case result.ChangePasswordRequired:
		token, err := s.issuer.Issue(verification.PurposePasswordChange, result.Email, req.CallbackURL)
		if err != nil {
			return nil, fmt.Errorf("issue verification token: %w", err)
		}
		return &SignInResult{
			Redirect: "/change-password?" + url.Values{"token": {token}}.Encode(),
			Message:  result.Message,
		}, nil

	case result.OTPRequired:
		token, err := s.issuer.Issue(verification.PurposeOTP, result.Email, req.CallbackURL)
		if err != nil {
			return nil, fmt.Errorf("issue verification token: %w", err)
		}
		return &SignInResult{
			Redirect: "/verify-otp?" + url.Values{"token": {token}}.Encode(),
			Message:  result.Message,
		}, nil

	default:
		// Trusted device bypassed the OTP step; the login is complete.
		s.guard.Reset(ctx, clientIP)

		sess := s.sessionFromUpstream(result.User, result.AccessToken, result.RefreshToken)
		token, err := s.codec.Encode(sess)
		if err != nil {
			return nil, fmt.Errorf("encode session: %w", err)
		}

		s.publish(ctx, audit.EventSignInSuccess, req.Email, clientIP, "trusted device bypass")
		s.logger.LogAuthSuccess(ctx, req.Email, "trusted_device")

		return &SignInResult{
			SessionToken: token,
			User:         userPayload(result.User),
			Redirect:     callbackOrRoot(req.CallbackURL),
		}, nil
	}
}

// VerifyOTP consumes an otp-purpose verification token and completes the
// second factor upstream.
func (s *service) VerifyOTP(ctx context.Context, req *VerifyOTPRequest, clientIP string) (*VerifyOTPResult, error) {
	details, err := s.issuer.Verify(req.Token, verification.PurposeOTP)
	if err != nil {
		return nil, err
	}

	result, err := s.upstream.VerifyOTP(ctx, details.Email, req.Code)
	if err != nil {
		return nil, err
	}

	s.guard.Reset(ctx, clientIP)

	if result.TrustedDeviceID != "" {
		if err := s.trust.Remember(ctx, details.Email, result.TrustedDeviceID); err != nil {
			// Edge cache only; the upstream record is the one that matters.
			s.logger.WithError(err).Warn("failed to cache trusted device")
		}
	}

	sess := s.sessionFromUpstream(result.User, result.AccessToken, result.RefreshToken)
	token, err := s.codec.Encode(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}

	s.publish(ctx, audit.EventOTPVerified, details.Email, clientIP, "")
	s.logger.LogAuthSuccess(ctx, details.Email, "otp")

	return &VerifyOTPResult{
		SessionToken:    token,
		TrustedDeviceID: result.TrustedDeviceID,
		User:            userPayload(result.User),
		Redirect:        callbackOrRoot(details.CallbackURL),
	}, nil
}

// ValidateToken is the screen-side validation action: a screen hands in
// the token from its URL together with the purpose it expects, and gets
// back the embedded email and redirect target.
func (s *service) ValidateToken(req *ValidateTokenRequest) (*TokenDetails, error) {
	details, err := s.issuer.Verify(req.Token, verification.Purpose(req.Purpose))
	if err != nil {
		return nil, err
	}
	return &TokenDetails{
		Email:       details.Email,
		CallbackURL: details.CallbackURL,
	}, nil
}

// ChangePassword completes the forced password-change step.
func (s *service) ChangePassword(ctx context.Context, req *ChangePasswordRequest) error {
	details, err := s.issuer.Verify(req.Token, verification.PurposePasswordChange)
	if err != nil {
		return err
	}

	if err := s.upstream.ForceChangePassword(ctx, details.Email, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}

	s.publish(ctx, audit.EventPasswordChanged, details.Email, "", "forced change")
	return nil
}

// RequestPasswordReset mints a reset-purpose token. No email is embedded;
// the user supplies it on the reset screen.
func (s *service) RequestPasswordReset(req *ResetPasswordRequest) (*FlowRedirect, error) {
	token, err := s.issuer.Issue(verification.PurposePasswordReset, "", req.CallbackURL)
	if err != nil {
		return nil, fmt.Errorf("issue verification token: %w", err)
	}
	return &FlowRedirect{
		Redirect: "/reset-password?" + url.Values{"token": {token}}.Encode(),
	}, nil
}

// ConfirmPasswordReset consumes a reset-purpose token and sets the new
// password upstream.
func (s *service) ConfirmPasswordReset(ctx context.Context, req *ConfirmResetPasswordRequest) error {
	if _, err := s.issuer.Verify(req.Token, verification.PurposePasswordReset); err != nil {
		return err
	}

	if err := s.upstream.ResetPassword(ctx, req.Email, req.NewPassword); err != nil {
		return err
	}

	s.publish(ctx, audit.EventPasswordChanged, req.Email, "", "reset")
	return nil
}

// RefreshSession exchanges the session's refresh token for a fresh pair
// and re-encodes the cookie. A failed refresh marks the session rather
// than silently retaining the stale token.
func (s *service) RefreshSession(ctx context.Context, rawToken string) (string, *session.Session, error) {
	sess, err := s.codec.Decode(rawToken)
	if err != nil {
		return "", nil, ErrInvalidSession
	}

	pair, err := s.upstream.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		sess.MarkRefreshFailed()
		s.publish(ctx, audit.EventForcedSignOut, sess.Email, "", "refresh failed")
		return "", sess, err
	}

	sess.ApplyTokenPair(pair.AccessToken, pair.RefreshToken, time.Now().Add(s.config.JWT.AccessTokenTTL))
	token, err := s.codec.Encode(sess)
	if err != nil {
		return "", nil, fmt.Errorf("encode session: %w", err)
	}
	return token, sess, nil
}

func (s *service) sessionFromUpstream(user *upstream.User, accessToken, refreshToken string) *session.Session {
	sess := &session.Session{
		AccessToken:        accessToken,
		RefreshToken:       refreshToken,
		AccessTokenExpires: time.Now().Add(s.config.JWT.AccessTokenTTL),
	}
	if user != nil {
		sess.UserID = strconv.FormatInt(user.ID, 10)
		sess.Username = user.Username
		sess.Email = user.Email
	}
	return sess
}

func (s *service) publish(ctx context.Context, eventType audit.EventType, email, clientIP, detail string) {
	if err := s.audit.Publish(ctx, audit.NewEvent(eventType, email, clientIP, detail)); err != nil {
		s.logger.WithError(err).Warn("failed to publish audit event")
	}
}

func userPayload(user *upstream.User) *UserPayload {
	if user == nil {
		return nil
	}
	return &UserPayload{
		ID:       strconv.FormatInt(user.ID, 10),
		Email:    user.Email,
		Username: user.Username,
		Avatar:   user.Avatar,
	}
}

func callbackOrRoot(callbackURL string) string {
	if callbackURL == "" {
		return "/"
	}
	return callbackURL
}
