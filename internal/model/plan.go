package model

import (
	"encoding/json"
	"time"
)

// Plan 套餐目录。code 为稳定主键，被订阅引用后内容不再变更，
// active 只控制前台可见性，不做删除。
type Plan struct {
	Code         string    `gorm:"primaryKey;size:32" json:"code"`
	Name         string    `gorm:"size:64;not null" json:"name"`
	Description  string    `gorm:"size:255" json:"description"`
	PriceXTR     int       `gorm:"not null" json:"price_xtr"`
	Currency     string    `gorm:"size:8;not null;default:XTR" json:"currency"`
	IntervalDays int       `gorm:"not null;default:30" json:"interval_days"`
	Features     string    `gorm:"type:text;not null;default:'{}'" json:"features"` // JSON: dailyCap / priority / modelTier
	Active       bool      `gorm:"not null;default:true;index" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Plan) TableName() string {
	return "plans"
}

// FeatureMap 解析 features JSON，解析失败时返回空 map
func (p *Plan) FeatureMap() map[string]interface{} {
	features := map[string]interface{}{}
	if p.Features != "" {
		_ = json.Unmarshal([]byte(p.Features), &features)
	}
	return features
}
