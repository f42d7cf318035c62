package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/database"
	"github.com/w1ldc/tgllm_go_server/internal/repository"
	"github.com/w1ldc/tgllm_go_server/internal/service"
)

// 一次性维护工具：跑一轮订阅维护 + 超时支付扫描后退出。
// -dry-run 只统计不落库，适合上线前预演。
func main() {
	var (
		configPath = flag.String("config", "config/config.yaml", "config file path")
		dryRun     = flag.Bool("dry-run", false, "count only, roll back all changes")
		reason     = flag.String("reason", "cli", "audit reason recorded with the run")
		skipStale  = flag.Bool("skip-stale", false, "skip the pending payment timeout sweep")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	paymentRepo := repository.NewPaymentRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	maintenanceService := service.NewMaintenanceService(db, paymentRepo, balanceRepo, nil, cfg)

	result, err := maintenanceService.RunMaintenance(*dryRun, *reason)
	if err != nil {
		log.Fatalf("Maintenance failed: %v", err)
	}

	if !*dryRun && !*skipStale {
		timedOut, err := maintenanceService.TimeoutPendingPayments()
		if err != nil {
			log.Fatalf("Pending timeout sweep failed: %v", err)
		}
		log.Printf("Pending payments timed out: %d", timedOut)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	os.Exit(0)
}
