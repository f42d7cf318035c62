package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/model"
	"github.com/w1ldc/tgllm_go_server/internal/model/dto"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/cryptoutil"
	"github.com/w1ldc/tgllm_go_server/internal/repository"
	"github.com/w1ldc/tgllm_go_server/internal/service"
	"github.com/w1ldc/tgllm_go_server/internal/testutil"
)

func setupUserHandler(t *testing.T) (*UserHandler, *service.UserService, *gorm.DB, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &config.Config{
		Quota: config.QuotaConfig{FreeDailyCap: 20},
		Chat:  config.ChatConfig{SessionLimit: 10},
	}

	cipher, err := cryptoutil.NewCipher("test-passphrase")
	require.NoError(t, err)

	userService := service.NewUserService(
		repository.NewUserRepository(db),
		repository.NewTransactionRepository(db),
		repository.NewSubscriptionRepository(db),
		redisClient,
		cipher,
		cfg,
	)
	quotaService := service.NewQuotaService(
		repository.NewBalanceRepository(db),
		repository.NewTransactionRepository(db),
		repository.NewEntitlementRepository(db),
		nil,
		cfg,
	)

	handler := NewUserHandler(userService, quotaService)
	cleanup := func() {
		redisClient.Close()
		mr.Close()
		testutil.CleanupTestDB(t, db)
	}
	return handler, userService, db, cleanup
}

func userRouter(handler *UserHandler, telegramID string) *gin.Engine {
	router := gin.New()
	router.GET("/stats", handler.GetStats)

	user := router.Group("/user/:telegramId", asUser(telegramID))
	user.GET("", handler.GetProfile)
	user.PUT("/settings", handler.UpdateSettings)
	user.GET("/quota", handler.GetQuota)
	user.GET("/transactions", handler.ListTransactions)
	user.POST("/keys", handler.SetKey)
	user.DELETE("/keys/:provider", handler.DeleteKey)
	user.GET("/session", handler.GetSession)
	user.DELETE("/session", handler.ClearSession)
	return router
}

func TestUserHandler_GetProfile(t *testing.T) {
	handler, _, db, cleanup := setupUserHandler(t)
	defer cleanup()
	router := userRouter(handler, "100")

	// 首次访问自动建档
	w := performRequest(router, "GET", "/user/100", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"telegram_id":"100"`)

	var count int64
	db.Model(&model.User{}).Where("telegram_id = ?", "100").Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestUserHandler_UpdateSettings(t *testing.T) {
	handler, _, _, cleanup := setupUserHandler(t)
	defer cleanup()
	router := userRouter(handler, "100")

	w := performRequest(router, "GET", "/user/100", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = performRequest(router, "PUT", "/user/100/settings",
		dto.UpdateSettingsRequest{
			Language: "zh",
			Settings: map[string]interface{}{"theme": "dark"},
		}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = performRequest(router, "GET", "/user/100", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"language":"zh"`)
	assert.Contains(t, w.Body.String(), `"theme":"dark"`)
}

func TestUserHandler_GetQuota(t *testing.T) {
	handler, _, db, cleanup := setupUserHandler(t)
	defer cleanup()
	router := userRouter(handler, "100")

	testutil.TestUser(t, db, "100")
	testutil.SeedTransactions(t, db, "100", model.ReservationTypeFree, 3)

	w := performRequest(router, "GET", "/user/100/quota", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	data, ok := parseResponse(t, w).Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(20), data["daily_cap"])
	assert.Equal(t, float64(3), data["used_today"])
	assert.Equal(t, float64(17), data["remaining"])
}

func TestUserHandler_ListTransactions(t *testing.T) {
	handler, _, db, cleanup := setupUserHandler(t)
	defer cleanup()
	router := userRouter(handler, "100")

	testutil.SeedTransactions(t, db, "100", model.ReservationTypeFree, 2)
	testutil.SeedTransactions(t, db, "200", model.ReservationTypeFree, 5)

	w := performRequest(router, "GET", "/user/100/transactions", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	txs, ok := parseResponse(t, w).Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, txs, 2)
}

func TestUserHandler_Keys(t *testing.T) {
	handler, _, _, cleanup := setupUserHandler(t)
	defer cleanup()
	router := userRouter(handler, "100")

	w := performRequest(router, "GET", "/user/100", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = performRequest(router, "POST", "/user/100/keys",
		dto.ByokRequest{Provider: "openai", APIKey: "sk-test"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = performRequest(router, "GET", "/user/100", nil, nil)
	assert.Contains(t, w.Body.String(), `"byok_keys":["openai"]`)

	w = performRequest(router, "DELETE", "/user/100/keys/openai", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = performRequest(router, "GET", "/user/100", nil, nil)
	assert.Contains(t, w.Body.String(), `"byok_keys":[]`)
}

func TestUserHandler_Keys_BadRequest(t *testing.T) {
	handler, _, _, cleanup := setupUserHandler(t)
	defer cleanup()
	router := userRouter(handler, "100")

	w := performRequest(router, "POST", "/user/100/keys",
		map[string]string{"provider": "openai"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserHandler_Session(t *testing.T) {
	handler, userService, _, cleanup := setupUserHandler(t)
	defer cleanup()
	router := userRouter(handler, "100")

	ctx := context.Background()
	require.NoError(t, userService.AppendMessage(ctx, "100", "user", "hello"))
	require.NoError(t, userService.AppendMessage(ctx, "100", "assistant", "hi there"))

	w := performRequest(router, "GET", "/user/100/session", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	messages, ok := parseResponse(t, w).Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, messages, 2)
	assert.Contains(t, w.Body.String(), "hi there")

	w = performRequest(router, "DELETE", "/user/100/session", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = performRequest(router, "GET", "/user/100/session", nil, nil)
	messages, _ = parseResponse(t, w).Data.([]interface{})
	assert.Empty(t, messages)
}

func TestUserHandler_GetStats(t *testing.T) {
	handler, _, db, cleanup := setupUserHandler(t)
	defer cleanup()
	router := userRouter(handler, "100")

	testutil.TestUser(t, db, "100")
	testutil.TestUser(t, db, "200")
	testutil.SeedTransactions(t, db, "100", model.ReservationTypeFree, 3)
	testutil.TestSubscription(t, db, "100", "pro")

	w := performRequest(router, "GET", "/stats", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	data, ok := parseResponse(t, w).Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), data["total_users"])
	assert.Equal(t, float64(3), data["requests_today"])
	assert.Equal(t, float64(1), data["active_subscribers"])
}
