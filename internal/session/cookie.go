package session

import (
	"github.com/gin-gonic/gin"
)

// Cookie name variants. Browsers only accept the __Secure- prefix over
// HTTPS, so production sets the secure variant and development the plain
// one; the gate reads and clears both.
const (
	CookieName       = "authgate.session"
	SecureCookieName = "__Secure-authgate.session"

	// TrustedDeviceCookie carries the device id the upstream hands back
	// after a successful OTP verification.
	TrustedDeviceCookie = "trusted_device"
)

// ReadCookie returns the raw session token from the request, checking the
// secure variant first.
func ReadCookie(c *gin.Context) (string, bool) {
	if v, err := c.Cookie(SecureCookieName); err == nil && v != "" {
		return v, true
	}
	if v, err := c.Cookie(CookieName); err == nil && v != "" {
		return v, true
	}
	return "", false
}

// WriteCookie sets the session token under the name matching the deployment
// mode.
func WriteCookie(c *gin.Context, token string, maxAge int, secure bool) {
	name := CookieName
	if secure {
		name = SecureCookieName
	}
	c.SetCookie(name, token, maxAge, "/", "", secure, true)
}

// ClearCookies deletes both session-cookie variants.
func ClearCookies(c *gin.Context) {
	c.SetCookie(SecureCookieName, "", -1, "/", "", true, true)
	c.SetCookie(CookieName, "", -1, "/", "", false, true)
}
