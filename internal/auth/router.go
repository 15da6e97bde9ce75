package auth

import (
	"github.com/gin-gonic/gin"

	"authgate/pkg/ratelimit"
)

func RegisterRoutes(rg *gin.RouterGroup, controller *Controller, limiter *ratelimit.RateLimiter, clientIP func(*gin.Context) string) {
	authGroup := rg.Group("/auth")
	{
		authGroup.POST("/sign-in", ratelimit.Middleware(limiter, ratelimit.TypeAuth, clientIP), controller.SignIn)
		authGroup.POST("/verify-otp", ratelimit.Middleware(limiter, ratelimit.TypeOTP, clientIP), controller.VerifyOTP)
		authGroup.POST("/validate-token", ratelimit.Middleware(limiter, ratelimit.TypeAuth, clientIP), controller.ValidateToken)
		authGroup.POST("/change-password", ratelimit.Middleware(limiter, ratelimit.TypePassword, clientIP), controller.ChangePassword)
		authGroup.POST("/reset-password", ratelimit.Middleware(limiter, ratelimit.TypePassword, clientIP), controller.RequestPasswordReset)
		authGroup.POST("/reset-password/confirm", ratelimit.Middleware(limiter, ratelimit.TypePassword, clientIP), controller.ConfirmPasswordReset)
		authGroup.POST("/refresh", ratelimit.Middleware(limiter, ratelimit.TypeAuth, clientIP), controller.Refresh)
		authGroup.POST("/sign-out", controller.SignOut)
		authGroup.GET("/me", controller.Me)
	}
}
