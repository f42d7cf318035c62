package testutil

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/w1ldc/tgllm_go_server/internal/model"
)

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, telegramID string, opts ...func(*model.User)) *model.User {
	t.Helper()

	user := &model.User{
		TelegramID: telegramID,
		Language:   "en",
		Settings:   "{}",
	}
	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// WithLanguage 设置语言
func WithLanguage(lang string) func(*model.User) {
	return func(u *model.User) {
		u.Language = lang
	}
}

// TestBalance 创建测试余额行
func TestBalance(t *testing.T, db *gorm.DB, telegramID string, opts ...func(*model.Balance)) *model.Balance {
	t.Helper()

	balance := &model.Balance{
		TelegramID:   telegramID,
		FreeRequests: 20,
	}
	for _, opt := range opts {
		opt(balance)
	}

	if err := db.Create(balance).Error; err != nil {
		t.Fatalf("Failed to create test balance: %v", err)
	}
	return balance
}

// WithPaidCredits 设置付费额度
func WithPaidCredits(n int) func(*model.Balance) {
	return func(b *model.Balance) {
		b.PaidCredits = n
	}
}

// TestPlan 创建测试套餐
func TestPlan(t *testing.T, db *gorm.DB, code string, opts ...func(*model.Plan)) *model.Plan {
	t.Helper()

	features, _ := json.Marshal(map[string]interface{}{
		"dailyCap": 1000, "priority": "high", "modelTier": "advanced",
	})
	plan := &model.Plan{
		Code:         code,
		Name:         code,
		PriceXTR:     299,
		Currency:     "XTR",
		IntervalDays: 30,
		Features:     string(features),
		Active:       true,
	}
	for _, opt := range opts {
		opt(plan)
	}

	if err := db.Create(plan).Error; err != nil {
		t.Fatalf("Failed to create test plan: %v", err)
	}
	return plan
}

// WithFeatures 设置套餐 features
func WithFeatures(features map[string]interface{}) func(*model.Plan) {
	return func(p *model.Plan) {
		featureBytes, _ := json.Marshal(features)
		p.Features = string(featureBytes)
	}
}

// WithPrice 设置价格
func WithPrice(priceXTR int) func(*model.Plan) {
	return func(p *model.Plan) {
		p.PriceXTR = priceXTR
	}
}

// WithActive 设置上架状态
func WithActive(active bool) func(*model.Plan) {
	return func(p *model.Plan) {
		p.Active = active
	}
}

// TestSubscription 创建测试订阅
func TestSubscription(t *testing.T, db *gorm.DB, telegramID, planCode string, opts ...func(*model.Subscription)) *model.Subscription {
	t.Helper()

	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour)
	sub := &model.Subscription{
		TelegramID:       telegramID,
		PlanCode:         planCode,
		Provider:         "telegram_stars",
		Status:           model.SubscriptionStatusActive,
		StartedAt:        time.Now().UTC(),
		CurrentPeriodEnd: &periodEnd,
		Metadata:         "{}",
	}
	for _, opt := range opts {
		opt(sub)
	}

	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}
	return sub
}

// WithStatus 设置订阅状态
func WithStatus(status string) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.Status = status
	}
}

// WithPeriodEnd 设置周期结束时间
func WithPeriodEnd(end time.Time) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.CurrentPeriodEnd = &end
	}
}

// WithCancelAtPeriodEnd 设置到期不续标记
func WithCancelAtPeriodEnd(cancel bool) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.CancelAtPeriodEnd = cancel
	}
}

// TestPayment 创建测试支付
func TestPayment(t *testing.T, db *gorm.DB, telegramID string, opts ...func(*model.Payment)) *model.Payment {
	t.Helper()

	payment := &model.Payment{
		TelegramID:        telegramID,
		Provider:          "telegram_stars",
		ExternalPaymentID: fmt.Sprintf("chk_test_%d", time.Now().UnixNano()),
		PlanCode:          "pro",
		Amount:            299,
		Currency:          "XTR",
		Status:            model.PaymentStatusPending,
		Payload:           "{}",
	}
	for _, opt := range opts {
		opt(payment)
	}

	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("Failed to create test payment: %v", err)
	}
	return payment
}

// WithPaymentStatus 设置支付状态
func WithPaymentStatus(status string) func(*model.Payment) {
	return func(p *model.Payment) {
		p.Status = status
	}
}

// WithExternalID 设置外部支付标识
func WithExternalID(externalID string) func(*model.Payment) {
	return func(p *model.Payment) {
		p.ExternalPaymentID = externalID
	}
}

// WithCreatedAt 设置创建时间（超时扫描测试用）
func WithCreatedAt(createdAt time.Time) func(*model.Payment) {
	return func(p *model.Payment) {
		p.CreatedAt = createdAt
	}
}

// TestEntitlement 创建测试授权
func TestEntitlement(t *testing.T, db *gorm.DB, telegramID, key, valueJSON string, expiresAt *time.Time) *model.Entitlement {
	t.Helper()

	row := &model.Entitlement{
		TelegramID: telegramID,
		Key:        key,
		Value:      valueJSON,
		Source:     model.EntitlementSourcePlan,
		ExpiresAt:  expiresAt,
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("Failed to create test entitlement: %v", err)
	}
	return row
}

// TestTransaction 创建测试用量记录
func TestTransaction(t *testing.T, db *gorm.DB, telegramID, txType string) *model.Transaction {
	t.Helper()

	tx := &model.Transaction{
		TelegramID: telegramID,
		Type:       txType,
		Endpoint:   "chat",
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("Failed to create test transaction: %v", err)
	}
	return tx
}

// SeedTransactions 批量写入当日用量
func SeedTransactions(t *testing.T, db *gorm.DB, telegramID, txType string, n int) {
	t.Helper()
	if n <= 0 {
		return
	}
	txs := make([]model.Transaction, n)
	for i := range txs {
		txs[i] = model.Transaction{
			TelegramID: telegramID,
			Type:       txType,
			Endpoint:   "chat",
		}
	}
	if err := db.CreateInBatches(txs, 200).Error; err != nil {
		t.Fatalf("Failed to seed transactions: %v", err)
	}
}
