package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/w1ldc/tgllm_go_server/internal/model"
)

type VaultRepository struct {
	db *gorm.DB
}

func NewVaultRepository(db *gorm.DB) *VaultRepository {
	return &VaultRepository{db: db}
}

// Upsert 按 (telegram_id, category) 覆盖写
func (r *VaultRepository) Upsert(telegramID, category, encryptedData string) error {
	item := &model.VaultItem{
		TelegramID:    telegramID,
		Category:      category,
		EncryptedData: encryptedData,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}, {Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{"encrypted_data", "updated_at"}),
	}).Create(item).Error
}

func (r *VaultRepository) Get(telegramID, category string) (*model.VaultItem, error) {
	var item model.VaultItem
	err := r.db.Where("telegram_id = ? AND category = ?", telegramID, category).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *VaultRepository) ListCategories(telegramID string) ([]model.VaultItem, error) {
	var items []model.VaultItem
	err := r.db.Select("category", "updated_at").
		Where("telegram_id = ?", telegramID).
		Order("updated_at DESC").
		Find(&items).Error
	return items, err
}

func (r *VaultRepository) Delete(telegramID, category string) error {
	return r.db.Where("telegram_id = ? AND category = ?", telegramID, category).
		Delete(&model.VaultItem{}).Error
}
