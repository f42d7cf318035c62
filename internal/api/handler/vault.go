package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/w1ldc/tgllm_go_server/internal/pkg/response"
	"github.com/w1ldc/tgllm_go_server/internal/service"
)

type VaultHandler struct {
	vaultService *service.VaultService
}

func NewVaultHandler(vaultService *service.VaultService) *VaultHandler {
	return &VaultHandler{vaultService: vaultService}
}

type vaultPutRequest struct {
	EncryptedData string `json:"encryptedData" binding:"required"`
}

// Put 覆盖写一个加密数据块
// PUT /api/v1/user/:telegramId/vault/:category
func (h *VaultHandler) Put(c *gin.Context) {
	var req vaultPutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "encryptedData is required.")
		return
	}

	err := h.vaultService.Put(pathTelegramID(c), c.Param("category"), req.EncryptedData)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrVaultBadCategory):
			response.ParamError(c, "Invalid category.")
		case errors.Is(err, service.ErrVaultBlobTooLarge):
			response.ParamError(c, "Encrypted blob is too large.")
		default:
			response.ServerError(c, "")
		}
		return
	}
	response.Success(c, nil)
}

// Get 读取一个加密数据块
// GET /api/v1/user/:telegramId/vault/:category
func (h *VaultHandler) Get(c *gin.Context) {
	data, err := h.vaultService.Get(pathTelegramID(c), c.Param("category"))
	if err != nil {
		if errors.Is(err, service.ErrVaultItemNotFound) {
			response.Error(c, response.CodeInvalidRequest, "Vault item not found.")
			return
		}
		response.ServerError(c, "")
		return
	}
	response.Success(c, gin.H{"encryptedData": data})
}

// List 列出已有的数据块键名
// GET /api/v1/user/:telegramId/vault
func (h *VaultHandler) List(c *gin.Context) {
	categories, err := h.vaultService.ListCategories(pathTelegramID(c))
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, categories)
}

// Delete 删除一个数据块
// DELETE /api/v1/user/:telegramId/vault/:category
func (h *VaultHandler) Delete(c *gin.Context) {
	if err := h.vaultService.Delete(pathTelegramID(c), c.Param("category")); err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, nil)
}
