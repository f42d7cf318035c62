package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/w1ldc/tgllm_go_server/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetOrCreate 首次接触即建档，用户从不删除
func (r *UserRepository) GetOrCreate(telegramID, lang string) (*model.User, error) {
	if lang == "" {
		lang = "en"
	}
	user := &model.User{
		TelegramID: telegramID,
		Language:   lang,
		Settings:   "{}",
	}
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(user).Error; err != nil {
		return nil, err
	}
	return r.GetByTelegramID(telegramID)
}

func (r *UserRepository) GetByTelegramID(telegramID string) (*model.User, error) {
	var user model.User
	err := r.db.Where("telegram_id = ?", telegramID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) UpdateFields(telegramID string, fields map[string]interface{}) error {
	return r.db.Model(&model.User{}).
		Where("telegram_id = ?", telegramID).
		Updates(fields).Error
}

func (r *UserRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&model.User{}).Count(&count).Error
	return count, err
}

// --- BYOK 密钥 ---

func (r *UserRepository) UpsertKey(telegramID, provider, encryptedKey string) error {
	key := &model.UserKey{
		TelegramID:   telegramID,
		Provider:     provider,
		EncryptedKey: encryptedKey,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"encrypted_key", "updated_at"}),
	}).Create(key).Error
}

func (r *UserRepository) ListKeys(telegramID string) ([]model.UserKey, error) {
	var keys []model.UserKey
	err := r.db.Where("telegram_id = ?", telegramID).Find(&keys).Error
	return keys, err
}

func (r *UserRepository) DeleteKey(telegramID, provider string) error {
	return r.db.Where("telegram_id = ? AND provider = ?", telegramID, provider).
		Delete(&model.UserKey{}).Error
}
