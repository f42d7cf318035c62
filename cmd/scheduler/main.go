package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/database"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/alert"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/cron"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/telegram"
	"github.com/w1ldc/tgllm_go_server/internal/repository"
	"github.com/w1ldc/tgllm_go_server/internal/service"
)

// 独立部署的定时任务进程。API 服务水平扩容时只跑一个 scheduler，
// 避免同一轮维护被多个实例重复执行。
func main() {
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	tgClient := telegram.NewClient(cfg.Telegram.BotToken)
	alertSink := alert.NewSink(tgClient, cfg.Telegram.AlertChatID,
		cfg.Telegram.AlertPrefix, cfg.Telegram.AlertCooldownSec)

	paymentRepo := repository.NewPaymentRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	dedupRepo := repository.NewDedupRepository(db)

	maintenanceService := service.NewMaintenanceService(db, paymentRepo, balanceRepo, alertSink, cfg)
	idempotencyService := service.NewIdempotencyService(dedupRepo)

	cronService := cron.NewService(maintenanceService, idempotencyService, cfg)
	cronService.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cronService.Stop()
	log.Println("Scheduler exiting")
}
