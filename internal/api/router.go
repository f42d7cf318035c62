package api

import (
	"github.com/gin-gonic/gin"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/api/handler"
	"github.com/w1ldc/tgllm_go_server/internal/api/middleware"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/alert"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/ratelimit"
	"github.com/w1ldc/tgllm_go_server/internal/service"
)

type Router struct {
	authHandler         *handler.AuthHandler
	userHandler         *handler.UserHandler
	chatHandler         *handler.ChatHandler
	billingHandler      *handler.BillingHandler
	billingAdminHandler *handler.BillingAdminHandler
	vaultHandler        *handler.VaultHandler
	healthHandler       *handler.HealthHandler
	quotaService        *service.QuotaService
	rateStore           ratelimit.Store
	inflightStore       ratelimit.InflightStore
	alertSink           *alert.Sink
	cfg                 *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	chatHandler *handler.ChatHandler,
	billingHandler *handler.BillingHandler,
	billingAdminHandler *handler.BillingAdminHandler,
	vaultHandler *handler.VaultHandler,
	healthHandler *handler.HealthHandler,
	quotaService *service.QuotaService,
	rateStore ratelimit.Store,
	inflightStore ratelimit.InflightStore,
	alertSink *alert.Sink,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:         authHandler,
		userHandler:         userHandler,
		chatHandler:         chatHandler,
		billingHandler:      billingHandler,
		billingAdminHandler: billingAdminHandler,
		vaultHandler:        vaultHandler,
		healthHandler:       healthHandler,
		quotaService:        quotaService,
		rateStore:           rateStore,
		inflightStore:       inflightStore,
		alertSink:           alertSink,
		cfg:                 cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// 公开接口
		api.GET("/health", r.healthHandler.Check)
		api.GET("/stats", r.userHandler.GetStats)
		api.POST("/auth/telegram", r.authHandler.Telegram)
		api.GET("/billing/plans", r.billingHandler.ListPlans)

		// 支付回调：共享密钥在 handler 内校验，不走用户认证
		api.POST("/billing/webhook", r.billingHandler.Webhook)
		api.POST("/billing/webhook/telegram", r.billingHandler.TelegramUpdate)

		// 管理面
		admin := api.Group("/billing/admin")
		admin.Use(middleware.AdminAuth(r.cfg))
		{
			admin.POST("/activate", r.billingAdminHandler.Activate)
			admin.POST("/deactivate", r.billingAdminHandler.Deactivate)
			admin.POST("/maintenance", r.billingAdminHandler.RunMaintenance)
			admin.GET("/payments/pending", r.billingAdminHandler.ListPending)
			admin.POST("/payments/timeout", r.billingAdminHandler.TimeoutPending)
			admin.POST("/payments/:id/resolve", r.billingAdminHandler.ResolvePayment)
		}

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.TelegramAuth(r.cfg))
		authenticated.Use(middleware.RateLimit(r.rateStore))
		{
			billing := authenticated.Group("/billing")
			{
				billing.GET("/me", r.billingHandler.Me)
				billing.POST("/checkout", r.billingHandler.Checkout)
				billing.GET("/subscription", r.billingHandler.GetSubscription)
				billing.POST("/subscription/cancel", r.billingHandler.CancelSubscription)
				billing.POST("/subscription/resume", r.billingHandler.ResumeSubscription)
			}

			user := authenticated.Group("/user/:telegramId")
			user.Use(middleware.RequireUserMatch("telegramId"))
			{
				user.GET("", r.userHandler.GetProfile)
				user.PUT("/settings", r.userHandler.UpdateSettings)
				user.GET("/quota", r.userHandler.GetQuota)
				user.GET("/transactions", r.userHandler.ListTransactions)
				user.POST("/keys", r.userHandler.SetKey)
				user.DELETE("/keys/:provider", r.userHandler.DeleteKey)
				user.GET("/session", r.userHandler.GetSession)
				user.DELETE("/session", r.userHandler.ClearSession)

				user.GET("/vault", r.vaultHandler.List)
				user.GET("/vault/:category", r.vaultHandler.Get)
				user.PUT("/vault/:category", r.vaultHandler.Put)
				user.DELETE("/vault/:category", r.vaultHandler.Delete)
			}

			// 对话入口：全局预算闸门在最前，然后并发去重与输入校验
			chat := authenticated.Group("/chat")
			chat.Use(middleware.BudgetGuard(r.quotaService, r.alertSink, r.cfg.Quota.GlobalDailyCap))
			chat.Use(middleware.AntiSpam(r.inflightStore))
			chat.Use(middleware.ChatInputGuard(r.cfg))
			{
				chat.POST("", r.chatHandler.Chat)
			}
		}
	}

	return engine
}
