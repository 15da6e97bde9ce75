package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"authgate/internal/gate"
	"authgate/internal/guard"
	"authgate/internal/session"
	"authgate/internal/shared/config"
	"authgate/internal/shared/utils/response"
	"authgate/internal/upstream"
	"authgate/internal/verification"
)

type Controller struct {
	service Service
	codec   *session.Codec
	config  *config.Config
}

func NewController(service Service, codec *session.Codec, cfg *config.Config) *Controller {
	return &Controller{
		service: service,
		codec:   codec,
		config:  cfg,
	}
}

func (ac *Controller) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	trustedDeviceID, _ := c.Cookie(session.TrustedDeviceCookie)

	result, err := ac.service.SignIn(c.Request.Context(), &req, ac.clientIP(c), trustedDeviceID)
	if err != nil {
		ac.respondServiceError(c, err)
		return
	}

	if result.SessionToken != "" {
		ac.writeSessionCookie(c, result.SessionToken)
	}
	response.RespondJSON(c, http.StatusOK, "Signed in", result)
}

func (ac *Controller) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := ac.service.VerifyOTP(c.Request.Context(), &req, ac.clientIP(c))
	if err != nil {
		ac.respondServiceError(c, err)
		return
	}

	ac.writeSessionCookie(c, result.SessionToken)
	if result.TrustedDeviceID != "" {
		ac.writeTrustedDeviceCookie(c, result.TrustedDeviceID)
	}
	response.RespondJSON(c, http.StatusOK, "Code verified", result)
}

func (ac *Controller) ValidateToken(c *gin.Context) {
	var req ValidateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	details, err := ac.service.ValidateToken(&req)
	if err != nil {
		ac.respondServiceError(c, err)
		return
	}
	response.RespondJSON(c, http.StatusOK, "Token valid", details)
}

func (ac *Controller) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := ac.service.ChangePassword(c.Request.Context(), &req); err != nil {
		ac.respondServiceError(c, err)
		return
	}
	response.RespondJSON(c, http.StatusOK, "Password changed. Please sign in again.", &FlowRedirect{Redirect: ac.config.Gate.SignInPath})
}

func (ac *Controller) RequestPasswordReset(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := ac.service.RequestPasswordReset(&req)
	if err != nil {
		ac.respondServiceError(c, err)
		return
	}
	response.RespondJSON(c, http.StatusOK, "Reset link issued", result)
}

func (ac *Controller) ConfirmPasswordReset(c *gin.Context) {
	var req ConfirmResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := ac.service.ConfirmPasswordReset(c.Request.Context(), &req); err != nil {
		ac.respondServiceError(c, err)
		return
	}
	response.RespondJSON(c, http.StatusOK, "Password reset. Please sign in again.", &FlowRedirect{Redirect: ac.config.Gate.SignInPath})
}

// Refresh re-issues the session cookie from its refresh token. On failure
// the cookies are cleared so the client lands back on sign-in.
func (ac *Controller) Refresh(c *gin.Context) {
	raw, ok := session.ReadCookie(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "No active session")
		return
	}

	token, sess, err := ac.service.RefreshSession(c.Request.Context(), raw)
	if err != nil {
		session.ClearCookies(c)
		response.RespondError(c, http.StatusUnauthorized, "Session expired. Please sign in again.")
		return
	}

	ac.writeSessionCookie(c, token)
	response.RespondJSON(c, http.StatusOK, "Session refreshed", gin.H{
		"access_token_expires": sess.AccessTokenExpires.UnixMilli(),
	})
}

// Me returns the profile embedded in the session cookie.
func (ac *Controller) Me(c *gin.Context) {
	raw, ok := session.ReadCookie(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "No active session")
		return
	}

	sess, err := ac.codec.Decode(raw)
	if err != nil || sess.State(time.Now()) == session.StateRefreshFailed {
		session.ClearCookies(c)
		response.RespondError(c, http.StatusUnauthorized, "Session expired. Please sign in again.")
		return
	}

	response.RespondJSON(c, http.StatusOK, "Session active", &UserPayload{
		ID:       sess.UserID,
		Email:    sess.Email,
		Username: sess.Username,
	})
}

func (ac *Controller) SignOut(c *gin.Context) {
	session.ClearCookies(c)
	response.RespondJSON(c, http.StatusOK, "Signed out", &FlowRedirect{Redirect: ac.config.Gate.SignInPath})
}

func (ac *Controller) clientIP(c *gin.Context) string {
	return gate.ResolveClientIP(c.Request.Header, ac.config.Gate.AllowPrivateIPs)
}

func (ac *Controller) writeSessionCookie(c *gin.Context, token string) {
	session.WriteCookie(c, token, int(ac.config.JWT.SessionTTL.Seconds()), ac.config.IsProduction())
}

func (ac *Controller) writeTrustedDeviceCookie(c *gin.Context, deviceID string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(session.TrustedDeviceCookie, deviceID, int(ac.config.Gate.TrustedDeviceTTL.Seconds()), "/", "", ac.config.IsProduction(), true)
}

func (ac *Controller) respondServiceError(c *gin.Context, err error) {
	var ue *upstream.Error
	switch {
	case errors.Is(err, guard.ErrIPBlocked):
		response.RespondError(c, http.StatusForbidden, "Access denied. Please contact support.")
	case errors.Is(err, verification.ErrPurposeMismatch):
		response.RespondError(c, http.StatusBadRequest, "This link was issued for a different step.")
	case errors.Is(err, verification.ErrInvalidOrExpired):
		response.RespondError(c, http.StatusUnauthorized, "This link is invalid or has expired.")
	case errors.As(err, &ue):
		response.RespondError(c, ue.StatusCode, ue.Message)
	default:
		response.RespondError(c, http.StatusBadGateway, "Authentication service is unavailable. Please try again.")
	}
}
