package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/model/dto"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/cryptoutil"
	"github.com/w1ldc/tgllm_go_server/internal/repository"
)

var ErrUserNotFound = errors.New("user not found")

type UserService struct {
	userRepo        *repository.UserRepository
	transactionRepo *repository.TransactionRepository
	subRepo         *repository.SubscriptionRepository
	redisClient     *redis.Client
	cipher          *cryptoutil.Cipher
	cfg             *config.Config
}

func NewUserService(
	userRepo *repository.UserRepository,
	transactionRepo *repository.TransactionRepository,
	subRepo *repository.SubscriptionRepository,
	redisClient *redis.Client,
	cipher *cryptoutil.Cipher,
	cfg *config.Config,
) *UserService {
	return &UserService{
		userRepo:        userRepo,
		transactionRepo: transactionRepo,
		subRepo:         subRepo,
		redisClient:     redisClient,
		cipher:          cipher,
		cfg:             cfg,
	}
}

// GetOrCreateProfile 取用户档案，不存在则建档
func (s *UserService) GetOrCreateProfile(telegramID, lang string) (*dto.UserProfile, error) {
	user, err := s.userRepo.GetOrCreate(telegramID, lang)
	if err != nil {
		return nil, err
	}

	settings := map[string]interface{}{}
	if user.Settings != "" {
		_ = json.Unmarshal([]byte(user.Settings), &settings)
	}

	providers := []string{}
	if keys, err := s.userRepo.ListKeys(telegramID); err == nil {
		for _, key := range keys {
			providers = append(providers, key.Provider)
		}
	}

	return &dto.UserProfile{
		TelegramID: user.TelegramID,
		Language:   user.Language,
		Settings:   settings,
		ByokKeys:   providers,
	}, nil
}

func (s *UserService) UpdateSettings(telegramID string, req *dto.UpdateSettingsRequest) error {
	if _, err := s.userRepo.GetByTelegramID(telegramID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	fields := map[string]interface{}{}
	if req.Language != "" {
		fields["language"] = req.Language
	}
	if req.Settings != nil {
		settingsBytes, err := json.Marshal(req.Settings)
		if err != nil {
			return err
		}
		fields["settings"] = string(settingsBytes)
	}
	if len(fields) == 0 {
		return nil
	}
	return s.userRepo.UpdateFields(telegramID, fields)
}

// --- BYOK ---

// SetKey 保存用户自带的提供商密钥，落库前加密
func (s *UserService) SetKey(telegramID, provider, apiKey string) error {
	encrypted, err := s.cipher.Encrypt(apiKey)
	if err != nil {
		return err
	}
	return s.userRepo.UpsertKey(telegramID, provider, encrypted)
}

// DecryptedKeys 解密后的 BYOK 密钥表，仅转发中继时在内存中使用。
// 单条解密失败跳过，不让坏密文拖垮整个请求。
func (s *UserService) DecryptedKeys(telegramID string) (map[string]string, error) {
	keys, err := s.userRepo.ListKeys(telegramID)
	if err != nil {
		return nil, err
	}
	decrypted := make(map[string]string, len(keys))
	for _, key := range keys {
		plain, err := s.cipher.Decrypt(key.EncryptedKey)
		if err != nil {
			log.Printf("BYOK decrypt failed: user=%s provider=%s err=%v", telegramID, key.Provider, err)
			continue
		}
		decrypted[key.Provider] = plain
	}
	return decrypted, nil
}

func (s *UserService) DeleteKey(telegramID, provider string) error {
	return s.userRepo.DeleteKey(telegramID, provider)
}

// --- 会话历史（Redis）---

func (s *UserService) sessionKey(telegramID string) string {
	return "session:" + telegramID
}

// AppendMessage 追加一条会话消息，裁剪到上限并续期 TTL
func (s *UserService) AppendMessage(ctx context.Context, telegramID, role, content string) error {
	if s.redisClient == nil {
		return nil
	}
	limit := s.cfg.Chat.SessionLimit
	if limit <= 0 {
		limit = 50
	}
	ttl := time.Duration(s.cfg.Chat.SessionTTLHrs) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	msg, err := json.Marshal(dto.SessionMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	key := s.sessionKey(telegramID)
	pipe := s.redisClient.Pipeline()
	pipe.RPush(ctx, key, msg)
	pipe.LTrim(ctx, key, int64(-limit), -1)
	pipe.Expire(ctx, key, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// GetSession 读取会话历史，坏条目跳过
func (s *UserService) GetSession(ctx context.Context, telegramID string) ([]dto.SessionMessage, error) {
	if s.redisClient == nil {
		return []dto.SessionMessage{}, nil
	}
	raw, err := s.redisClient.LRange(ctx, s.sessionKey(telegramID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	messages := make([]dto.SessionMessage, 0, len(raw))
	for _, item := range raw {
		var msg dto.SessionMessage
		if json.Unmarshal([]byte(item), &msg) == nil {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

func (s *UserService) ClearSession(ctx context.Context, telegramID string) error {
	if s.redisClient == nil {
		return nil
	}
	return s.redisClient.Del(ctx, s.sessionKey(telegramID)).Err()
}

// --- 公开统计 ---

func (s *UserService) GetStats() (*dto.StatsInfo, error) {
	totalUsers, err := s.userRepo.Count()
	if err != nil {
		return nil, err
	}
	requestsToday, err := s.transactionRepo.CountTodayGlobal()
	if err != nil {
		return nil, err
	}
	activeSubscribers, err := s.subRepo.CountActive()
	if err != nil {
		return nil, err
	}
	return &dto.StatsInfo{
		TotalUsers:        totalUsers,
		RequestsToday:     requestsToday,
		ActiveSubscribers: activeSubscribers,
	}, nil
}
