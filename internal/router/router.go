package router

import (
	"fmt"
	"strings"

	"github.com/zhiyin-next/internal/cache"
	"github.com/zhiyin-next/internal/config"
	adminhandlers "github.com/zhiyin-next/internal/http/handlers/admin"
	publichandlers "github.com/zhiyin-next/internal/http/handlers/public"
	"github.com/zhiyin-next/internal/http/response"
	"github.com/zhiyin-next/internal/logger"
	"github.com/zhiyin-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "zy"
	}
	redisClient := cache.Client()
	loginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin_login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		BlockSeconds:  cfg.Security.LoginRateLimit.BlockSeconds,
		Message:       "登录尝试过于频繁",
	}
	intakeRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:booking_intake", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		Message:       "订房提交过于频繁",
	}
	adminRule := RateLimitRule{
		Prefix:          fmt.Sprintf("%s:rate:admin", redisPrefix),
		WindowSeconds:   cfg.Security.AdminRateLimit.WindowSeconds,
		MaxRequests:     cfg.Security.AdminRateLimit.MaxAttempts,
		BlockSeconds:    cfg.Security.AdminRateLimit.BlockSeconds,
		SkipSafeMethods: true,
	}

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	r.GET("/health", func(ctx *gin.Context) {
		response.Success(ctx, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		public := apiV1.Group("/public")
		{
			public.POST("/bookings", RateLimitMiddleware(redisClient, intakeRule, KeyByIP), publicHandler.CreateBooking)
			public.GET("/partners/:code/summary", publicHandler.GetPartnerSummary)
		}

		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			admin.POST("/login", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("username")), adminHandler.AdminLogin)

			authorized := admin.Group("")
			authorized.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.AuthService), RateLimitMiddleware(redisClient, adminRule, KeyByAdmin))
			{
				authorized.GET("/profile", adminHandler.GetAdminProfile)
				authorized.PUT("/password", adminHandler.ChangePassword)

				// 总览
				authorized.GET("/dashboard", adminHandler.GetDashboard)

				// 大使管理
				authorized.POST("/partners", adminHandler.CreatePartner)
				authorized.GET("/partners", adminHandler.ListPartners)
				authorized.GET("/partners/:code", adminHandler.GetPartner)
				authorized.GET("/partners/:code/summary", adminHandler.GetPartnerSummary)
				authorized.PUT("/partners/:code/status", adminHandler.UpdatePartnerStatus)
				authorized.PUT("/partners/:code/preference", adminHandler.UpdatePartnerPreference)
				authorized.POST("/partners/:code/reset-first-bonus", adminHandler.ResetPartnerFirstBonus)
				authorized.POST("/partners/:code/year-end-review", adminHandler.ReviewPartnerYearEnd)
				authorized.GET("/partners/:code/points/transactions", adminHandler.ListPointsTransactions)

				// 订房管理
				authorized.POST("/bookings", adminHandler.CreateBooking)
				authorized.GET("/bookings", adminHandler.ListBookings)
				authorized.GET("/bookings/:id", adminHandler.GetBooking)
				authorized.POST("/bookings/:id/confirm", adminHandler.ConfirmBooking)
				authorized.POST("/bookings/:id/paid", adminHandler.MarkBookingPaid)
				authorized.POST("/bookings/:id/complete", adminHandler.CompleteBooking)
				authorized.POST("/bookings/:id/cancel", adminHandler.CancelBooking)
				authorized.POST("/bookings/:id/recalculate", adminHandler.RecalculateBookingCommission)

				// 结算管理
				authorized.POST("/payouts", adminHandler.SettlePayout)
				authorized.GET("/payouts", adminHandler.ListPayouts)
				authorized.GET("/payouts/:id", adminHandler.GetPayout)
				authorized.POST("/payouts/:id/complete", adminHandler.CompletePayout)
				authorized.POST("/payouts/:id/cancel", adminHandler.CancelPayout)

				// 住宿点数
				authorized.POST("/points/deduct", adminHandler.DeductPartnerPoints)
				authorized.GET("/points/transactions", adminHandler.ListPointsTransactions)
			}
		}
	}

	return r
}
