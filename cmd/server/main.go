package main

import (
	"fmt"
	"log"
	"time"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/api"
	"github.com/w1ldc/tgllm_go_server/internal/api/handler"
	"github.com/w1ldc/tgllm_go_server/internal/database"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/alert"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/cron"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/cryptoutil"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/ratelimit"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/telegram"
	"github.com/w1ldc/tgllm_go_server/internal/repository"
	"github.com/w1ldc/tgllm_go_server/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// Telegram 客户端与告警通道
	tgClient := telegram.NewClient(cfg.Telegram.BotToken)
	alertSink := alert.NewSink(tgClient, cfg.Telegram.AlertChatID,
		cfg.Telegram.AlertPrefix, cfg.Telegram.AlertCooldownSec)

	// BYOK 加密
	cipher, err := cryptoutil.NewCipher(cfg.Vault.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to init cipher: %v", err)
	}

	// 限流存储，按配置选内存或 Redis 实现
	window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 20
	}
	var rateStore ratelimit.Store
	var inflightStore ratelimit.InflightStore
	if cfg.RateLimit.Store == "redis" {
		rateStore = ratelimit.NewRedisStore(rdb, window, maxRequests)
		inflightStore = ratelimit.NewRedisInflight(rdb, 5*time.Minute)
	} else {
		rateStore = ratelimit.NewMemoryStore(window, maxRequests)
		inflightStore = ratelimit.NewMemoryInflight()
	}

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	dedupRepo := repository.NewDedupRepository(db)
	planRepo := repository.NewPlanRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	entRepo := repository.NewEntitlementRepository(db)
	vaultRepo := repository.NewVaultRepository(db)

	// 初始化 Service
	quotaService := service.NewQuotaService(balanceRepo, transactionRepo, entRepo, alertSink, cfg)
	idempotencyService := service.NewIdempotencyService(dedupRepo)
	billingService := service.NewBillingService(planRepo, paymentRepo, subRepo, entRepo,
		userRepo, tgClient, alertSink, cfg)
	maintenanceService := service.NewMaintenanceService(db, paymentRepo, balanceRepo, alertSink, cfg)
	userService := service.NewUserService(userRepo, transactionRepo, subRepo, rdb, cipher, cfg)
	vaultService := service.NewVaultService(vaultRepo, cfg)
	relay := service.NewHTTPRelay(cfg.Chat.RelayURL, cfg.Chat.RelayTimeout)
	chatService := service.NewChatService(idempotencyService, quotaService, userService, relay, cfg)

	// 种子套餐
	if err := billingService.SeedDefaultPlans(); err != nil {
		log.Fatalf("Failed to seed plans: %v", err)
	}

	// 后台定时任务
	cronService := cron.NewService(maintenanceService, idempotencyService, cfg)
	cronService.Start()
	defer cronService.Stop()

	// 初始化 Handler
	authHandler := handler.NewAuthHandler(userService, cfg)
	userHandler := handler.NewUserHandler(userService, quotaService)
	chatHandler := handler.NewChatHandler(chatService)
	billingHandler := handler.NewBillingHandler(billingService, tgClient, alertSink, cfg)
	billingAdminHandler := handler.NewBillingAdminHandler(billingService, maintenanceService)
	vaultHandler := handler.NewVaultHandler(vaultService)
	healthHandler := handler.NewHealthHandler(db, rdb)

	// 初始化 Router
	router := api.NewRouter(
		authHandler,
		userHandler,
		chatHandler,
		billingHandler,
		billingAdminHandler,
		vaultHandler,
		healthHandler,
		quotaService,
		rateStore,
		inflightStore,
		alertSink,
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
