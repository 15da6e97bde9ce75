package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"authgate/internal/shared/config"
)

func TestMiddlewareReturns429OverLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := NewRateLimiter(client, &config.RateLimitConfig{
		Enabled:        true,
		WindowDuration: time.Minute,
		AuthRequests:   2,
	})

	engine := gin.New()
	engine.POST("/auth/sign-in",
		Middleware(limiter, TypeAuth, func(c *gin.Context) string { return "203.0.113.9" }),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	for i := 1; i <= 2; i++ {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/sign-in", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want %d", i, rec.Code, http.StatusOK)
		}
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/sign-in", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("request 3 status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want %q", got, "0")
	}
}

func TestMiddlewareFailsOpenOnRedisError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	limiter := NewRateLimiter(client, &config.RateLimitConfig{
		Enabled:        true,
		WindowDuration: time.Minute,
		AuthRequests:   1,
	})

	engine := gin.New()
	engine.GET("/health",
		Middleware(limiter, TypeHealth, func(c *gin.Context) string { return "203.0.113.9" }),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d when redis is unavailable", rec.Code, http.StatusOK)
	}
}
