package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/w1ldc/tgllm_go_server/internal/pkg/alert"
	"github.com/w1ldc/tgllm_go_server/internal/pkg/response"
	"github.com/w1ldc/tgllm_go_server/internal/service"
)

// BudgetGuard 全局日预算闸门，优先级高于一切个人额度判定。
// 用量库不可用时直接拒绝（fail-closed）：预算失控比短暂拒绝服务更贵。
func BudgetGuard(quotaService *service.QuotaService, alertSink *alert.Sink, globalDailyCap int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if globalDailyCap <= 0 {
			c.Next()
			return
		}

		total, err := quotaService.GlobalUsedToday()
		if err != nil {
			if alertSink != nil {
				alertSink.NotifyGuardUnavailable("budget")
			}
			response.Error(c, response.CodeBudgetGuardUnavailable, "")
			c.Abort()
			return
		}

		if alertSink != nil {
			alertSink.NotifyBudgetUsage(total, int64(globalDailyCap))
		}

		if total >= int64(globalDailyCap) {
			response.Error(c, response.CodeGlobalDailyCapReached, "")
			c.Abort()
			return
		}

		c.Next()
	}
}
