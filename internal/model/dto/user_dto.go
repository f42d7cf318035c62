package dto

type UserProfile struct {
	TelegramID string                 `json:"telegram_id"`
	Language   string                 `json:"language"`
	Settings   map[string]interface{} `json:"settings"`
	ByokKeys   []string               `json:"byok_keys"` // 只暴露提供商名，不回传密文
}

type UpdateSettingsRequest struct {
	Language string                 `json:"language"`
	Settings map[string]interface{} `json:"settings"`
}

type ByokRequest struct {
	Provider string `json:"provider" binding:"required"`
	APIKey   string `json:"apiKey" binding:"required"`
}

type QuotaInfo struct {
	Tier        string `json:"tier"` // free / plan code
	DailyCap    int    `json:"daily_cap"`
	UsedToday   int    `json:"used_today"`
	Remaining   *int   `json:"remaining,omitempty"`
	PaidCredits int    `json:"paid_credits"`
}

type StatsInfo struct {
	TotalUsers        int64 `json:"total_users"`
	RequestsToday     int64 `json:"requests_today"`
	ActiveSubscribers int64 `json:"active_subscribers"`
}
