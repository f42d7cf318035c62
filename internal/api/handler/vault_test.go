package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/repository"
	"github.com/w1ldc/tgllm_go_server/internal/service"
	"github.com/w1ldc/tgllm_go_server/internal/testutil"
)

func setupVaultHandler(t *testing.T) (*VaultHandler, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := &config.Config{
		Vault: config.VaultConfig{MaxBlobChars: 100},
	}

	vaultService := service.NewVaultService(repository.NewVaultRepository(db), cfg)
	handler := NewVaultHandler(vaultService)
	return handler, func() { testutil.CleanupTestDB(t, db) }
}

func vaultRouter(handler *VaultHandler, telegramID string) *gin.Engine {
	router := gin.New()
	vault := router.Group("/user/:telegramId/vault", asUser(telegramID))
	vault.GET("", handler.List)
	vault.PUT("/:category", handler.Put)
	vault.GET("/:category", handler.Get)
	vault.DELETE("/:category", handler.Delete)
	return router
}

func TestVaultHandler_PutGet(t *testing.T) {
	handler, cleanup := setupVaultHandler(t)
	defer cleanup()
	router := vaultRouter(handler, "100")

	w := performRequest(router, "PUT", "/user/100/vault/notes",
		map[string]string{"encryptedData": "ciphertext-v1"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = performRequest(router, "GET", "/user/100/vault/notes", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"encryptedData":"ciphertext-v1"`)

	// 覆盖写
	w = performRequest(router, "PUT", "/user/100/vault/notes",
		map[string]string{"encryptedData": "ciphertext-v2"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = performRequest(router, "GET", "/user/100/vault/notes", nil, nil)
	assert.Contains(t, w.Body.String(), `"encryptedData":"ciphertext-v2"`)
}

func TestVaultHandler_GetNotFound(t *testing.T) {
	handler, cleanup := setupVaultHandler(t)
	defer cleanup()
	router := vaultRouter(handler, "100")

	w := performRequest(router, "GET", "/user/100/vault/ghost", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not found")
}

func TestVaultHandler_Put_Invalid(t *testing.T) {
	handler, cleanup := setupVaultHandler(t)
	defer cleanup()
	router := vaultRouter(handler, "100")

	// 缺 encryptedData
	w := performRequest(router, "PUT", "/user/100/vault/notes",
		map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 非法键名
	w = performRequest(router, "PUT", "/user/100/vault/bad%20name",
		map[string]string{"encryptedData": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid category")

	// 超出大小限制
	w = performRequest(router, "PUT", "/user/100/vault/notes",
		map[string]string{"encryptedData": strings.Repeat("x", 101)}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "too large")
}

func TestVaultHandler_ListDelete(t *testing.T) {
	handler, cleanup := setupVaultHandler(t)
	defer cleanup()
	router := vaultRouter(handler, "100")

	for _, category := range []string{"notes", "contacts"} {
		w := performRequest(router, "PUT", "/user/100/vault/"+category,
			map[string]string{"encryptedData": "blob"}, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := performRequest(router, "GET", "/user/100/vault", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	categories, ok := parseResponse(t, w).Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, categories, 2)

	w = performRequest(router, "DELETE", "/user/100/vault/notes", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = performRequest(router, "GET", "/user/100/vault", nil, nil)
	categories, _ = parseResponse(t, w).Data.([]interface{})
	assert.Len(t, categories, 1)
	assert.Contains(t, w.Body.String(), "contacts")
}
