package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/model"
	"github.com/w1ldc/tgllm_go_server/internal/model/dto"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/alert"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/telegram"
	"github.com/w1ldc/tgllm_go_server/internal/repository"
)

var (
	ErrPlanNotFound      = errors.New("plan not found")
	ErrInvalidWebhook    = errors.New("invalid webhook payload")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrPaymentNotPending = errors.New("payment not pending")
	ErrInvalidAction     = errors.New("invalid action")
	ErrNoSubscription    = errors.New("no active subscription")
)

const ProviderTelegramStars = "telegram_stars"

// invoicePayload 发票里携带的回执信息，successful_payment 时原样回来
type invoicePayload struct {
	ExternalPaymentID string `json:"externalPaymentId"`
	PlanCode          string `json:"planCode"`
	TelegramID        string `json:"telegramId"`
}

type BillingService struct {
	planRepo    *repository.PlanRepository
	paymentRepo *repository.PaymentRepository
	subRepo     *repository.SubscriptionRepository
	entRepo     *repository.EntitlementRepository
	userRepo    *repository.UserRepository
	tgClient    *telegram.Client
	alertSink   *alert.Sink
	cfg         *config.Config
}

func NewBillingService(
	planRepo *repository.PlanRepository,
	paymentRepo *repository.PaymentRepository,
	subRepo *repository.SubscriptionRepository,
	entRepo *repository.EntitlementRepository,
	userRepo *repository.UserRepository,
	tgClient *telegram.Client,
	alertSink *alert.Sink,
	cfg *config.Config,
) *BillingService {
	return &BillingService{
		planRepo:    planRepo,
		paymentRepo: paymentRepo,
		subRepo:     subRepo,
		entRepo:     entRepo,
		userRepo:    userRepo,
		tgClient:    tgClient,
		alertSink:   alertSink,
		cfg:         cfg,
	}
}

// SeedDefaultPlans 初始化默认套餐目录，已存在的不覆盖
func (s *BillingService) SeedDefaultPlans() error {
	mustJSON := func(v map[string]interface{}) string {
		b, _ := json.Marshal(v)
		return string(b)
	}
	return s.planRepo.Seed([]model.Plan{
		{
			Code: "lite", Name: "Lite", Description: "Light daily usage",
			PriceXTR: 99, Currency: "XTR", IntervalDays: 30, Active: true,
			Features: mustJSON(map[string]interface{}{"dailyCap": 200, "priority": "standard", "modelTier": "basic"}),
		},
		{
			Code: "pro", Name: "Pro", Description: "For power users",
			PriceXTR: 299, Currency: "XTR", IntervalDays: 30, Active: true,
			Features: mustJSON(map[string]interface{}{"dailyCap": 1000, "priority": "high", "modelTier": "advanced"}),
		},
		{
			Code: "max", Name: "Max", Description: "Maximum throughput and best models",
			PriceXTR: 799, Currency: "XTR", IntervalDays: 30, Active: true,
			Features: mustJSON(map[string]interface{}{"dailyCap": 5000, "priority": "highest", "modelTier": "premium"}),
		},
	})
}

func (s *BillingService) ListPlans() ([]model.Plan, error) {
	return s.planRepo.ListActive()
}

// GetActivePlan 只返回可购买的套餐
func (s *BillingService) GetActivePlan(code string) (*model.Plan, error) {
	plan, err := s.planRepo.Get(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	if !plan.Active {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

// CreateCheckout 创建一笔 pending 支付并生成支付入口。
// 携带幂等键的重复调用返回首次创建的同一笔支付，不会重复下单。
func (s *BillingService) CreateCheckout(ctx context.Context, telegramID string, req *dto.CheckoutRequest, idempotencyKey string) (*dto.CheckoutResponse, error) {
	provider := req.Provider
	if provider == "" {
		provider = s.cfg.Billing.DefaultProvider
	}
	if provider == "" {
		provider = ProviderTelegramStars
	}

	plan, err := s.GetActivePlan(req.PlanCode)
	if err != nil {
		return nil, err
	}

	idempotencyKey = normalizeRequestID(idempotencyKey)
	if idempotencyKey != "" {
		existing, err := s.paymentRepo.GetByIdempotencyKey(telegramID, idempotencyKey)
		if err == nil {
			return s.checkoutFromExisting(plan, existing), nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	externalID := "chk_" + uuid.NewString()
	payloadBytes, _ := json.Marshal(invoicePayload{
		ExternalPaymentID: externalID,
		PlanCode:          plan.Code,
		TelegramID:        telegramID,
	})

	invoiceLink := ""
	if provider == ProviderTelegramStars && s.tgClient != nil && s.tgClient.Enabled() {
		link, err := s.tgClient.CreateInvoiceLink(ctx, plan.Name, plan.Description,
			string(payloadBytes), plan.Currency, plan.PriceXTR)
		if err != nil {
			// 链接生成失败不阻断下单，客户端可拿 payload 走备用入口
			log.Printf("Create invoice link failed: plan=%s err=%v", plan.Code, err)
		} else {
			invoiceLink = link
		}
	}

	stored, _ := json.Marshal(map[string]interface{}{
		"metadata":    req.Metadata,
		"invoiceLink": invoiceLink,
	})

	payment := &model.Payment{
		TelegramID:        telegramID,
		Provider:          provider,
		ExternalPaymentID: externalID,
		PlanCode:          plan.Code,
		Amount:            plan.PriceXTR,
		Currency:          plan.Currency,
		Status:            model.PaymentStatusPending,
		Payload:           string(stored),
	}
	if idempotencyKey != "" {
		payment.IdempotencyKey = &idempotencyKey
	}

	if err := s.paymentRepo.Create(payment); err != nil {
		// 并发重复下单会撞 (telegram_id, idempotency_key) 唯一键，回读即可
		if idempotencyKey != "" {
			if existing, getErr := s.paymentRepo.GetByIdempotencyKey(telegramID, idempotencyKey); getErr == nil {
				return s.checkoutFromExisting(plan, existing), nil
			}
		}
		return nil, err
	}

	resp := &dto.CheckoutResponse{
		Provider: provider,
		Plan:     plan,
		Payment:  payment,
		Mode:     "provider_redirect",
		ProviderPayload: map[string]interface{}{
			"payload": string(payloadBytes),
		},
	}
	if invoiceLink != "" {
		resp.Mode = "telegram_open_invoice"
		resp.ProviderPayload["invoiceLink"] = invoiceLink
	}
	return resp, nil
}

func (s *BillingService) checkoutFromExisting(plan *model.Plan, payment *model.Payment) *dto.CheckoutResponse {
	resp := &dto.CheckoutResponse{
		Reused:   true,
		Mode:     "provider_redirect",
		Provider: payment.Provider,
		Plan:     plan,
		Payment:  payment,
	}
	var stored struct {
		InvoiceLink string `json:"invoiceLink"`
	}
	if json.Unmarshal([]byte(payment.Payload), &stored) == nil && stored.InvoiceLink != "" {
		resp.Mode = "telegram_open_invoice"
		resp.ProviderPayload = map[string]interface{}{"invoiceLink": stored.InvoiceLink}
	}
	return resp
}

// ParseWebhook 按显式提供商标签选择解析器，归一化为内部事件。
// 不做字段嗅探：调用方必须明确声明回调来源。
func (s *BillingService) ParseWebhook(provider string, raw []byte) (*dto.WebhookEvent, error) {
	switch provider {
	case ProviderTelegramStars:
		return parseTelegramStarsWebhook(raw)
	default:
		return parseGenericWebhook(provider, raw)
	}
}

// parseTelegramStarsWebhook 从 Bot 更新里提取 successful_payment。
// Stars 没有失败回调，出现即成功。
func parseTelegramStarsWebhook(raw []byte) (*dto.WebhookEvent, error) {
	var update telegram.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return nil, ErrInvalidWebhook
	}
	if update.Message == nil || update.Message.SuccessfulPayment == nil {
		return nil, ErrInvalidWebhook
	}
	sp := update.Message.SuccessfulPayment

	var payload invoicePayload
	if err := json.Unmarshal([]byte(sp.InvoicePayload), &payload); err != nil {
		return nil, ErrInvalidWebhook
	}

	telegramID := payload.TelegramID
	if telegramID == "" && update.Message.From != nil {
		telegramID = strconv.FormatInt(update.Message.From.ID, 10)
	}
	externalID := payload.ExternalPaymentID
	if externalID == "" {
		externalID = sp.TelegramPaymentChargeID
	}

	return &dto.WebhookEvent{
		Provider:          ProviderTelegramStars,
		ExternalPaymentID: externalID,
		TelegramID:        telegramID,
		PlanCode:          payload.PlanCode,
		Amount:            sp.TotalAmount,
		Currency:          sp.Currency,
		Status:            model.PaymentStatusSucceeded,
		Metadata: map[string]interface{}{
			"telegram_payment_charge_id": sp.TelegramPaymentChargeID,
			"provider_payment_charge_id": sp.ProviderPaymentChargeID,
		},
	}, nil
}

// parseGenericWebhook 直接映射字段的通用提供商回调
func parseGenericWebhook(provider string, raw []byte) (*dto.WebhookEvent, error) {
	var event dto.WebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, ErrInvalidWebhook
	}
	if event.Provider == "" {
		event.Provider = provider
	}
	return &event, nil
}

// ProcessWebhook 处理归一化支付事件。激活只在状态首次迁移到
// succeeded 时发生一次：同一事件重放、乱序到达都不会重复加时长。
func (s *BillingService) ProcessWebhook(event *dto.WebhookEvent) (*dto.WebhookResult, error) {
	if event == nil || event.Provider == "" || event.ExternalPaymentID == "" ||
		event.TelegramID == "" || event.PlanCode == "" {
		return nil, ErrInvalidWebhook
	}
	switch event.Status {
	case model.PaymentStatusPending, model.PaymentStatusSucceeded, model.PaymentStatusFailed:
	default:
		return nil, ErrInvalidWebhook
	}

	plan, err := s.planRepo.Get(event.PlanCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	// 首次在回调里见到的用户也要建档
	if _, err := s.userRepo.GetOrCreate(event.TelegramID, ""); err != nil {
		return nil, err
	}

	metaBytes, _ := json.Marshal(event.Metadata)

	existing, err := s.paymentRepo.GetByProviderExternal(event.Provider, event.ExternalPaymentID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	wasSucceeded := existing != nil && existing.Status == model.PaymentStatusSucceeded

	if existing == nil {
		payment := &model.Payment{
			TelegramID:        event.TelegramID,
			Provider:          event.Provider,
			ExternalPaymentID: event.ExternalPaymentID,
			PlanCode:          event.PlanCode,
			Amount:            event.Amount,
			Currency:          event.Currency,
			Status:            event.Status,
			Payload:           string(metaBytes),
		}
		if err := s.paymentRepo.Create(payment); err != nil {
			// 并发投递撞唯一键：另一个投递已落库，以它为准
			existing, err = s.paymentRepo.GetByProviderExternal(event.Provider, event.ExternalPaymentID)
			if err != nil {
				return nil, err
			}
			wasSucceeded = existing.Status == model.PaymentStatusSucceeded
		}
	}

	// succeeded 是终态，乱序到达的 pending/failed 不能降级
	if existing != nil && !wasSucceeded && existing.Status != event.Status {
		if err := s.paymentRepo.UpdateStatus(existing.ID, event.Status, string(metaBytes)); err != nil {
			return nil, err
		}
	}

	applied := false
	if event.Status == model.PaymentStatusSucceeded && !wasSucceeded {
		if _, err := s.ActivateSubscription(event.TelegramID, plan, event.Provider,
			event.ExternalSubscriptionID, event.Metadata); err != nil {
			if s.alertSink != nil {
				s.alertSink.NotifyWebhookFailure(event.Provider, "activation_failed", err.Error())
			}
			return nil, err
		}
		applied = true
	}

	return &dto.WebhookResult{Status: event.Status, SubscriptionApplied: applied}, nil
}

// ActivateSubscription 开通或续费。同套餐续费从当前周期末尾接续，
// 换套餐从现在起算；旧 active 行一律置为 expired 再插入新行。
func (s *BillingService) ActivateSubscription(telegramID string, plan *model.Plan, provider, externalSubID string, metadata map[string]interface{}) (*model.Subscription, error) {
	now := time.Now().UTC()

	current, err := s.subRepo.GetActive(telegramID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	periodBase := now
	if current != nil && current.PlanCode == plan.Code &&
		current.CurrentPeriodEnd != nil && current.CurrentPeriodEnd.After(now) {
		periodBase = *current.CurrentPeriodEnd
	}

	var periodEnd *time.Time
	if plan.IntervalDays > 0 {
		end := periodBase.Add(time.Duration(plan.IntervalDays) * 24 * time.Hour)
		periodEnd = &end
	}

	if current != nil {
		if err := s.subRepo.MarkExpired(current.ID); err != nil {
			return nil, err
		}
	}

	metaBytes, _ := json.Marshal(metadata)
	if metadata == nil {
		metaBytes = []byte("{}")
	}

	sub := &model.Subscription{
		TelegramID:             telegramID,
		PlanCode:               plan.Code,
		Provider:               provider,
		Status:                 model.SubscriptionStatusActive,
		ExternalSubscriptionID: externalSubID,
		StartedAt:              now,
		CurrentPeriodEnd:       periodEnd,
		Metadata:               string(metaBytes),
	}
	if err := s.subRepo.Create(sub); err != nil {
		return nil, err
	}

	if err := s.syncEntitlements(telegramID, plan, periodEnd); err != nil {
		return nil, err
	}
	return sub, nil
}

// syncEntitlements 把套餐 features 整体投影成授权行，外加 plan_code 标记
func (s *BillingService) syncEntitlements(telegramID string, plan *model.Plan, expiresAt *time.Time) error {
	features := plan.FeatureMap()
	rows := make([]model.Entitlement, 0, len(features)+1)
	for key, value := range features {
		valueBytes, err := json.Marshal(value)
		if err != nil {
			continue
		}
		rows = append(rows, model.Entitlement{
			TelegramID: telegramID,
			Key:        key,
			Value:      string(valueBytes),
			Source:     model.EntitlementSourcePlan,
			ExpiresAt:  expiresAt,
		})
	}
	codeBytes, _ := json.Marshal(plan.Code)
	rows = append(rows, model.Entitlement{
		TelegramID: telegramID,
		Key:        "plan_code",
		Value:      string(codeBytes),
		Source:     model.EntitlementSourcePlan,
		ExpiresAt:  expiresAt,
	})
	return s.entRepo.ReplacePlanRows(telegramID, rows)
}

// GetBillingMe 用户账务总览
func (s *BillingService) GetBillingMe(telegramID string) (*dto.BillingMe, error) {
	me := &dto.BillingMe{
		Entitlements: []model.Entitlement{},
		Payments:     []model.Payment{},
	}

	sub, err := s.subRepo.GetCurrent(telegramID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	me.Subscription = sub

	if ents, err := s.entRepo.ListValid(telegramID); err == nil {
		me.Entitlements = ents
	}
	if payments, err := s.paymentRepo.ListByUser(telegramID, 20); err == nil {
		me.Payments = payments
	}
	return me, nil
}

func (s *BillingService) GetSubscriptionStatus(telegramID string) (*dto.SubscriptionStatus, error) {
	sub, err := s.subRepo.GetCurrent(telegramID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &dto.SubscriptionStatus{Active: false}, nil
		}
		return nil, err
	}
	return &dto.SubscriptionStatus{
		Active:            sub.Status == model.SubscriptionStatusActive,
		Status:            sub.Status,
		PlanCode:          sub.PlanCode,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}, nil
}

// CancelSubscription 标记到期不续，当前周期内权益不变
func (s *BillingService) CancelSubscription(telegramID string) (*dto.SubscriptionStatus, error) {
	return s.setCancelFlag(telegramID, true)
}

// ResumeSubscription 撤销到期不续标记
func (s *BillingService) ResumeSubscription(telegramID string) (*dto.SubscriptionStatus, error) {
	return s.setCancelFlag(telegramID, false)
}

func (s *BillingService) setCancelFlag(telegramID string, cancel bool) (*dto.SubscriptionStatus, error) {
	sub, err := s.subRepo.GetCurrent(telegramID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, err
	}
	if err := s.subRepo.SetCancelAtPeriodEnd(sub.ID, cancel); err != nil {
		return nil, err
	}
	sub.CancelAtPeriodEnd = cancel
	return &dto.SubscriptionStatus{
		Active:            sub.Status == model.SubscriptionStatusActive,
		Status:            sub.Status,
		PlanCode:          sub.PlanCode,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}, nil
}

// ValidatePreCheckout 支付前校验。返回 nil 放行，
// 返回的 error 文案会作为拒绝原因回给 Telegram 展示给用户。
func (s *BillingService) ValidatePreCheckout(query *telegram.PreCheckoutQuery) error {
	var payload invoicePayload
	if err := json.Unmarshal([]byte(query.InvoicePayload), &payload); err != nil {
		return errors.New("invalid invoice payload")
	}

	if query.From != nil && payload.TelegramID != "" &&
		payload.TelegramID != strconv.FormatInt(query.From.ID, 10) {
		return errors.New("payment does not belong to this user")
	}

	plan, err := s.GetActivePlan(payload.PlanCode)
	if err != nil {
		return errors.New("plan is no longer available")
	}
	if query.TotalAmount != plan.PriceXTR || query.Currency != plan.Currency {
		return errors.New("payment amount does not match plan price")
	}

	payment, err := s.paymentRepo.GetByProviderExternal(ProviderTelegramStars, payload.ExternalPaymentID)
	if err != nil {
		return errors.New("checkout session not found")
	}
	if payment.Status != model.PaymentStatusPending {
		return errors.New("checkout session already settled")
	}
	return nil
}

// ListPendingPayments 管理端查询等待结清的支付
func (s *BillingService) ListPendingPayments() ([]model.Payment, error) {
	return s.paymentRepo.ListPending()
}

// ResolvePayment 人工裁决卡在 pending 的支付：
// fail 留痕置失败；succeed 构造事件走正常 succeeded 路径，激活逻辑不旁路。
func (s *BillingService) ResolvePayment(id int64, action, note string) (*model.Payment, error) {
	payment, err := s.paymentRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if payment.Status != model.PaymentStatusPending {
		return nil, ErrPaymentNotPending
	}

	audit := map[string]interface{}{
		"resolvedBy": "admin",
		"action":     action,
		"note":       note,
		"resolvedAt": time.Now().UTC().Format(time.RFC3339),
	}

	switch action {
	case "fail":
		auditBytes, _ := json.Marshal(audit)
		if err := s.paymentRepo.UpdateStatus(payment.ID, model.PaymentStatusFailed, string(auditBytes)); err != nil {
			return nil, err
		}
	case "succeed":
		event := &dto.WebhookEvent{
			Provider:          payment.Provider,
			ExternalPaymentID: payment.ExternalPaymentID,
			TelegramID:        payment.TelegramID,
			PlanCode:          payment.PlanCode,
			Amount:            payment.Amount,
			Currency:          payment.Currency,
			Status:            model.PaymentStatusSucceeded,
			Metadata:          audit,
		}
		if _, err := s.ProcessWebhook(event); err != nil {
			return nil, fmt.Errorf("force succeed: %w", err)
		}
	default:
		return nil, ErrInvalidAction
	}

	return s.paymentRepo.GetByID(payment.ID)
}

// AdminActivate 管理端直接开通订阅，绕过支付
func (s *BillingService) AdminActivate(req *dto.AdminActivateRequest) (*model.Subscription, error) {
	plan, err := s.planRepo.Get(req.PlanCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	if _, err := s.userRepo.GetOrCreate(req.TelegramID, ""); err != nil {
		return nil, err
	}

	provider := req.Provider
	if provider == "" {
		provider = "admin"
	}
	return s.ActivateSubscription(req.TelegramID, plan, provider,
		req.ExternalSubscriptionID, map[string]interface{}{"source": "admin"})
}

// AdminDeactivate 强制下线订阅并回收套餐授权
func (s *BillingService) AdminDeactivate(telegramID string) (int64, error) {
	affected, err := s.subRepo.Deactivate(telegramID)
	if err != nil {
		return 0, err
	}
	if _, err := s.entRepo.DeletePlanRows(telegramID); err != nil {
		return affected, err
	}
	return affected, nil
}
