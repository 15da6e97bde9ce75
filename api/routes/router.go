// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"authgate/internal/audit"
	"authgate/internal/auth"
	"authgate/internal/gate"
	"authgate/internal/guard"
	"authgate/internal/session"
	"authgate/internal/shared/config"
	"authgate/internal/shared/database"
	"authgate/internal/trust"
	"authgate/internal/upstream"
	"authgate/internal/verification"
	"authgate/pkg/logger"
	"authgate/pkg/ratelimit"
)

// Router holds all route dependencies
type Router struct {
	config      *config.Config
	db          *database.DB
	rateLimiter *ratelimit.RateLimiter
	publisher   audit.Publisher
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, rateLimiter *ratelimit.RateLimiter, publisher audit.Publisher) *Router {
	return &Router{
		config:      cfg,
		db:          db,
		rateLimiter: rateLimiter,
		publisher:   publisher,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Shared building blocks: both the auth actions and the gate need the
	// same codec and upstream client.
	codec := session.NewCodec(r.config.JWT.SessionSecret, r.config.JWT.SessionTTL)
	issuer := verification.NewIssuer(r.config.JWT.VerificationSecret, r.config.JWT.VerificationTTL)
	upstreamClient := upstream.NewClient(r.config.Upstream)

	r.setupHealthRoutes(engine)

	// API routes
	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupAuthRoutes(api, codec, issuer, upstreamClient)
	}

	r.setupGatedRoutes(engine, codec, upstreamClient)
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	healthLimit := r.limiterFor(ratelimit.TypeHealth)

	engine.GET("/health", healthLimit, func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "authgate",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "authgate",
		})
	})

	engine.GET("/ping", healthLimit, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})
}

// setupAuthRoutes configures the sign-in, OTP and password flow routes
func (r *Router) setupAuthRoutes(rg *gin.RouterGroup, codec *session.Codec, issuer *verification.Issuer, upstreamClient *upstream.Client) {
	ipGuard := guard.New(r.db.GetPostgreSQL(), r.db.GetRedisClient(), r.config.Guard)
	deviceTrust := trust.NewStore(r.db.GetRedisClient(), r.config.Gate.TrustedDeviceTTL)

	authService := auth.NewService(upstreamClient, issuer, codec, ipGuard, deviceTrust, r.publisher, r.config)
	authController := auth.NewController(authService, codec, r.config)

	auth.RegisterRoutes(rg, authController, r.rateLimiter, r.clientIP)
}

// setupGatedRoutes puts the session gate in front of the reverse-proxied
// application routes.
func (r *Router) setupGatedRoutes(engine *gin.Engine, codec *session.Codec, upstreamClient *upstream.Client) {
	sessionGate := gate.NewGate(r.config, codec, upstreamClient)

	proxy, err := gate.NewProxyHandler(r.config.Upstream.BaseURL)
	if err != nil {
		logger.GetDefault().WithError(err).Error("invalid upstream base URL, gated routes disabled")
		return
	}

	app := engine.Group("/app")
	app.Use(sessionGate.Middleware())
	app.Any("/*any", proxy)
}

func (r *Router) clientIP(c *gin.Context) string {
	return gate.ResolveClientIP(c.Request.Header, r.config.Gate.AllowPrivateIPs)
}

func (r *Router) limiterFor(limitType ratelimit.RateLimitType) gin.HandlerFunc {
	if r.rateLimiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return ratelimit.Middleware(r.rateLimiter, limitType, r.clientIP)
}
