package gate

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"authgate/internal/session"
	"authgate/internal/shared/config"
	"authgate/internal/shared/utils/response"
	"authgate/internal/upstream"
	"authgate/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Context keys set by the gate for downstream handlers
const (
	ContextSessionKey  = "session"
	ContextClientIPKey = "client_ip"
)

// Refresher extends an expired session's credential pair against the
// upstream identity backend.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*upstream.TokenPair, error)
}

// Gate is the edge request gate: it fast-paths public routes, validates the
// session cookie on everything else, enriches trust-boundary headers on
// success and redirects to sign-in (clearing cookies) on failure.
type Gate struct {
	cfg          *config.Config
	codec        *session.Codec
	refresher    Refresher
	publicRoutes *regexp.Regexp
	logger       *logger.Logger
}

func NewGate(cfg *config.Config, codec *session.Codec, refresher Refresher) *Gate {
	return &Gate{
		cfg:          cfg,
		codec:        codec,
		refresher:    refresher,
		publicRoutes: compilePublicRoutes(cfg.Gate.PublicRoutes),
		logger:       logger.GetDefault(),
	}
}

// compilePublicRoutes builds one anchored alternation matching each prefix
// exactly or as a sub-path. Compiled once per gate, never per request.
func compilePublicRoutes(prefixes []string) *regexp.Regexp {
	quoted := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimRight(p, "/")
		if p == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(p))
	}
	if len(quoted) == 0 {
		// Match nothing
		return regexp.MustCompile(`^\x00$`)
	}
	return regexp.MustCompile("^(?:" + strings.Join(quoted, "|") + ")(?:/.*)?$")
}

// Middleware returns the gin handler enforcing the gate on every request it
// wraps.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if g.publicRoutes.MatchString(path) {
			c.Next()
			return
		}

		raw, ok := session.ReadCookie(c)
		if !ok {
			g.reject(c, "missing session token")
			return
		}

		sess, err := g.codec.Decode(raw)
		if err != nil {
			g.reject(c, "malformed session token")
			return
		}

		now := time.Now()
		switch sess.State(now) {
		case session.StateRefreshFailed:
			g.reject(c, "session previously failed refresh")
			return
		case session.StateExpired:
			pair, err := g.refresher.Refresh(c.Request.Context(), sess.RefreshToken)
			if err != nil {
				sess.MarkRefreshFailed()
				g.logger.LogAuthFailure(c.Request.Context(), "session refresh failed", c.ClientIP())
				g.reject(c, "session refresh failed")
				return
			}
			sess.ApplyTokenPair(pair.AccessToken, pair.RefreshToken, now.Add(g.cfg.JWT.AccessTokenTTL))
			if token, err := g.codec.Encode(sess); err != nil {
				// The request proceeds on the in-memory session, but the stale
				// cookie will force another refresh next time.
				g.logger.WithError(err).Warn("failed to re-issue refreshed session cookie")
			} else {
				session.WriteCookie(c, token, int(g.cfg.JWT.SessionTTL.Seconds()), g.cfg.IsProduction())
			}
			g.logger.LogSessionRefreshed(c.Request.Context(), sess.Email)
		}

		// Rewrite trust-boundary headers before the request travels on.
		clientIP := ResolveClientIP(c.Request.Header, g.cfg.Gate.AllowPrivateIPs)
		c.Request.Header.Set("X-Forwarded-For", clientIP)
		c.Request.Header.Set("X-Real-IP", clientIP)

		c.Set(ContextSessionKey, sess)
		c.Set(ContextClientIPKey, clientIP)
		c.Next()
	}
}

// reject clears session cookies and turns the request away: JSON 401 for
// API clients, sign-in redirect carrying the original destination for
// browsers.
func (g *Gate) reject(c *gin.Context, reason string) {
	session.ClearCookies(c)
	g.logger.LogGateRedirect(c.Request.Context(), c.Request.URL.Path, reason)

	if g.wantsJSON(c) {
		response.RespondError(c, http.StatusUnauthorized, "Authentication required")
		c.Abort()
		return
	}

	callback := c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		callback += "?" + c.Request.URL.RawQuery
	}

	target := g.cfg.Gate.SignInPath + "?" + url.Values{"callbackUrl": {callback}}.Encode()
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

func (g *Gate) wantsJSON(c *gin.Context) bool {
	if strings.HasPrefix(c.Request.URL.Path, g.cfg.APIPrefix) {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

// SessionFromContext returns the session the gate stored for this request.
func SessionFromContext(c *gin.Context) (*session.Session, bool) {
	v, ok := c.Get(ContextSessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*session.Session)
	return sess, ok
}

// ClientIPFromContext returns the resolved client IP for this request,
// falling back to gin's resolver when the gate did not run.
func ClientIPFromContext(c *gin.Context) string {
	if v, ok := c.Get(ContextClientIPKey); ok {
		if ip, ok := v.(string); ok {
			return ip
		}
	}
	return ResolveClientIP(c.Request.Header, true)
}
