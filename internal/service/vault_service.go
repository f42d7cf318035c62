package service

import (
	"errors"
	"regexp"
	"time"

	"gorm.io/gorm"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/repository"
)

var (
	ErrVaultItemNotFound = errors.New("vault item not found")
	ErrVaultBlobTooLarge = errors.New("vault blob too large")
	ErrVaultBadCategory  = errors.New("invalid vault category")
)

var vaultCategoryRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// VaultCategory 列表项：只暴露键名与更新时间，不回传数据
type VaultCategory struct {
	Category  string    `json:"category"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VaultService 端到端加密数据块的存取。密文由客户端生成，
// 服务端只校验键名与大小，从不解密。
type VaultService struct {
	vaultRepo *repository.VaultRepository
	cfg       *config.Config
}

func NewVaultService(vaultRepo *repository.VaultRepository, cfg *config.Config) *VaultService {
	return &VaultService{vaultRepo: vaultRepo, cfg: cfg}
}

func (s *VaultService) Put(telegramID, category, encryptedData string) error {
	if !vaultCategoryRe.MatchString(category) {
		return ErrVaultBadCategory
	}
	maxChars := s.cfg.Vault.MaxBlobChars
	if maxChars <= 0 {
		maxChars = 800000
	}
	if len(encryptedData) == 0 || len(encryptedData) > maxChars {
		return ErrVaultBlobTooLarge
	}
	return s.vaultRepo.Upsert(telegramID, category, encryptedData)
}

func (s *VaultService) Get(telegramID, category string) (string, error) {
	item, err := s.vaultRepo.Get(telegramID, category)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrVaultItemNotFound
		}
		return "", err
	}
	return item.EncryptedData, nil
}

func (s *VaultService) ListCategories(telegramID string) ([]VaultCategory, error) {
	items, err := s.vaultRepo.ListCategories(telegramID)
	if err != nil {
		return nil, err
	}
	categories := make([]VaultCategory, 0, len(items))
	for _, item := range items {
		categories = append(categories, VaultCategory{
			Category:  item.Category,
			UpdatedAt: item.UpdatedAt,
		})
	}
	return categories, nil
}

func (s *VaultService) Delete(telegramID, category string) error {
	return s.vaultRepo.Delete(telegramID, category)
}
