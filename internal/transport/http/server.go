package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"adjusterhub/internal/app"
	"adjusterhub/internal/config"
	"adjusterhub/internal/metrics"
	"adjusterhub/internal/model"
	"adjusterhub/internal/security"
	"adjusterhub/internal/transport/http/handler"
	"adjusterhub/internal/transport/http/middleware"
)

// Dependencies carries the services the router exposes.
type Dependencies struct {
	Config *config.Config
	Log    *zap.Logger
	Guard  *middleware.Guard

	Auth          *app.AuthService
	Auditor       *app.Auditor
	Claims        *app.ClaimService
	Messages      *app.MessageService
	Notifications *app.NotificationService
	Earnings      *app.EarningService
	Documents     *app.DocumentService
	Analytics     *app.AnalyticsService
	Chat          *app.ChatService
	Automation    *app.AutomationService

	HealthChecks map[string]handler.DependencyCheck
	StartedAt    time.Time
}

func NewRouter(d Dependencies) *gin.Engine {
	cfg := d.Config
	gin.SetMode(cfg.App.GinMode)
	router := gin.New()
	_ = router.SetTrustedProxies(nil)
	router.MaxMultipartMemory = 8 << 20

	policy := security.HeaderPolicy{CSPReportURI: cfg.Security.CSPReportURI, HSTS: cfg.IsProduction()}
	router.Use(
		middleware.RequestID(d.Log),
		middleware.RequestLogger(),
		middleware.Metrics(),
		middleware.Recovery(),
		middleware.SecurityHeaders(policy),
		d.Guard.Blocklist(),
		d.Guard.Honeypot(),
		d.Guard.ValidateHeaders(),
		d.Guard.DetectPatterns(),
		d.Guard.RateLimit(),
	)

	healthHandler := handler.NewHealthHandler(cfg.App.Name, cfg.App.Env, d.StartedAt, d.HealthChecks)
	router.GET("/healthz", healthHandler.Check)
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	authHandler := handler.NewAuthHandler(d.Auth, handler.CookieSettings{Name: cfg.Auth.CookieName, Secure: cfg.Auth.CookieSecure})
	claimHandler := handler.NewClaimHandler(d.Claims)
	messageHandler := handler.NewMessageHandler(d.Messages, d.Notifications)
	earningHandler := handler.NewEarningHandler(d.Earnings)
	documentHandler := handler.NewDocumentHandler(d.Documents)
	analyticsHandler := handler.NewAnalyticsHandler(d.Analytics)
	chatHandler := handler.NewChatHandler(d.Chat)
	automationHandler := handler.NewAutomationHandler(d.Automation)
	adminHandler := handler.NewAdminHandler(d.Auditor)

	requireAuth := middleware.AuthSession(d.Auth, cfg.Auth.CookieName)
	adjusterOnly := middleware.RequireRole(model.RoleAdjuster)
	firmOrAdmin := middleware.RequireRole(model.RoleFirm, model.RoleAdmin)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authed := authGroup.Group("", requireAuth)
	authed.POST("/logout", authHandler.Logout)
	authed.GET("/me", authHandler.Me)
	authed.GET("/sessions", authHandler.ListSessions)
	authed.DELETE("/sessions/:id", authHandler.RevokeSession)
	authed.POST("/2fa/setup", authHandler.SetupTwoFactor)
	authed.POST("/2fa/enable", authHandler.EnableTwoFactor)
	authed.POST("/2fa/disable", authHandler.DisableTwoFactor)

	api := v1.Group("", requireAuth)

	claims := api.Group("/claims")
	claims.GET("", claimHandler.List)
	claims.POST("", firmOrAdmin, claimHandler.Create)
	claims.GET("/:id", claimHandler.Get)
	claims.PATCH("/:id", firmOrAdmin, claimHandler.Update)
	claims.POST("/:id/accept", adjusterOnly, claimHandler.Accept)
	claims.POST("/:id/start", adjusterOnly, claimHandler.Start)
	claims.POST("/:id/submit", adjusterOnly, claimHandler.Submit)
	claims.POST("/:id/release", adjusterOnly, claimHandler.Release)
	claims.POST("/:id/complete", firmOrAdmin, claimHandler.Complete)
	claims.POST("/:id/cancel", firmOrAdmin, claimHandler.Cancel)
	claims.POST("/:id/portal-submission", middleware.RequireRole(model.RoleAdjuster, model.RoleAdmin), automationHandler.Submit)
	claims.GET("/:id/automation-logs", automationHandler.ListLogs)

	messages := api.Group("/messages")
	messages.POST("", messageHandler.Send)
	messages.GET("/threads", messageHandler.Threads)
	messages.GET("/:userID", messageHandler.Conversation)
	messages.POST("/:userID/read", messageHandler.MarkConversationRead)

	notifications := api.Group("/notifications")
	notifications.GET("", messageHandler.ListNotifications)
	notifications.GET("/unread-count", messageHandler.UnreadCount)
	notifications.POST("/read-all", messageHandler.MarkAllNotificationsRead)
	notifications.POST("/:id/read", messageHandler.MarkNotificationRead)

	earnings := api.Group("", adjusterOnly)
	earnings.GET("/earnings", earningHandler.ListEarnings)
	earnings.GET("/earnings/summary", earningHandler.Summary)
	earnings.GET("/payouts", earningHandler.ListPayouts)
	earnings.POST("/payouts", earningHandler.RequestPayout)

	documents := api.Group("/documents")
	documents.POST("", documentHandler.Upload)
	documents.GET("", documentHandler.List)
	documents.POST("/ask", documentHandler.Ask)
	documents.GET("/:id", documentHandler.Download)
	documents.DELETE("/:id", documentHandler.Delete)

	api.GET("/analytics/dashboard", analyticsHandler.Dashboard)

	chat := api.Group("/chat")
	chat.POST("/sessions", chatHandler.CreateSession)
	chat.GET("/sessions", chatHandler.ListSessions)
	chat.DELETE("/sessions/:id", chatHandler.DeleteSession)
	chat.GET("/sessions/:id/messages", chatHandler.GetHistory)
	chat.POST("/messages", chatHandler.SendMessage)
	chat.POST("/messages/stream", chatHandler.StreamMessage)

	api.GET("/automation/connectors", firmOrAdmin, automationHandler.ListConnectors)

	admin := api.Group("/admin", middleware.RequireRole(model.RoleAdmin))
	admin.GET("/security-events", adminHandler.SecurityEvents)
	admin.POST("/payouts/:id/complete", earningHandler.CompletePayout)
	admin.POST("/payouts/:id/fail", earningHandler.FailPayout)

	return router
}
