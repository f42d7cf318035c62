package handler

import (
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w1ldc/tgllm_go_server/internal/testutil"
)

func healthRouter(handler *HealthHandler) *gin.Engine {
	router := gin.New()
	router.GET("/health", handler.Check)
	return router
}

func TestHealthHandler_NoRedis(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	router := healthRouter(NewHealthHandler(db, nil))
	w := performRequest(router, "GET", "/health", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	data, ok := parseResponse(t, w).Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "up", data["status"])
	assert.Equal(t, "ok", data["db"])
	assert.Equal(t, "disabled", data["redis"])
}

func TestHealthHandler_WithRedis(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	router := healthRouter(NewHealthHandler(db, redisClient))
	w := performRequest(router, "GET", "/health", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	data, ok := parseResponse(t, w).Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ok", data["db"])
	assert.Equal(t, "ok", data["redis"])
}

func TestHealthHandler_RedisDown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()
	mr.Close()

	router := healthRouter(NewHealthHandler(db, redisClient))
	w := performRequest(router, "GET", "/health", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	data, ok := parseResponse(t, w).Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "error", data["redis"])
}
