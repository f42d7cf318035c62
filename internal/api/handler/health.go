package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/w1ldc/tgllm_go_server/internal/pkg/response"
)

type HealthHandler struct {
	db          *gorm.DB
	redisClient *redis.Client
}

func NewHealthHandler(db *gorm.DB, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{
		db:          db,
		redisClient: redisClient,
	}
}

// Check 存活探针，顺带报告依赖状态
// GET /api/v1/health
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil {
		dbStatus = "error"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "error"
	}

	redisStatus := "disabled"
	if h.redisClient != nil {
		redisStatus = "ok"
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			redisStatus = "error"
		}
	}

	response.Success(c, gin.H{
		"status": "up",
		"db":     dbStatus,
		"redis":  redisStatus,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
