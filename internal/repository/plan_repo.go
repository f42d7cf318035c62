package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/w1ldc/tgllm_go_server/internal/model"
)

type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// ListActive 前台套餐列表，按价格升序
func (r *PlanRepository) ListActive() ([]model.Plan, error) {
	var plans []model.Plan
	err := r.db.Where("active = ?", true).
		Order("price_xtr ASC").
		Find(&plans).Error
	return plans, err
}

// Get 按 code 查套餐，包含已下架的（webhook 校验仍需能解析旧套餐）
func (r *PlanRepository) Get(code string) (*model.Plan, error) {
	var plan model.Plan
	err := r.db.Where("code = ?", code).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// Seed 种子套餐，已存在的不覆盖
func (r *PlanRepository) Seed(plans []model.Plan) error {
	for i := range plans {
		if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&plans[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
