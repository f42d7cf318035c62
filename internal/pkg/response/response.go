package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义（字符串码，直接进响应体）
const (
	CodeOK                     = "OK"
	CodeLimitReached           = "LIMIT_REACHED"
	CodeUserDailyCapReached    = "USER_DAILY_CAP_REACHED"
	CodeGlobalDailyCapReached  = "GLOBAL_DAILY_CAP_REACHED"
	CodeRequestInProgress      = "REQUEST_IN_PROGRESS"
	CodePlanNotFound           = "PLAN_NOT_FOUND"
	CodeInvalidWebhookPayload  = "INVALID_WEBHOOK_PAYLOAD"
	CodePaymentNotFound        = "PAYMENT_NOT_FOUND"
	CodePaymentNotPending      = "PAYMENT_NOT_PENDING"
	CodeInvalidPaymentID       = "INVALID_PAYMENT_ID"
	CodeInvalidAction          = "INVALID_ACTION"
	CodeRateLimited            = "RATE_LIMITED"
	CodeBudgetGuardUnavailable = "BUDGET_GUARD_UNAVAILABLE"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeInternalError          = "INTERNAL_ERROR"
)

// 错误码对应的 HTTP 状态码，未列出的按 500 处理
var codeStatus = map[string]int{
	CodeLimitReached:           http.StatusPaymentRequired,
	CodeUserDailyCapReached:    http.StatusTooManyRequests,
	CodeGlobalDailyCapReached:  http.StatusTooManyRequests,
	CodeRequestInProgress:      http.StatusConflict,
	CodePlanNotFound:           http.StatusNotFound,
	CodeInvalidWebhookPayload:  http.StatusBadRequest,
	CodePaymentNotFound:        http.StatusNotFound,
	CodePaymentNotPending:      http.StatusConflict,
	CodeInvalidPaymentID:       http.StatusBadRequest,
	CodeInvalidAction:          http.StatusBadRequest,
	CodeRateLimited:            http.StatusTooManyRequests,
	CodeBudgetGuardUnavailable: http.StatusServiceUnavailable,
	CodeUnauthorized:           http.StatusUnauthorized,
	CodeForbidden:              http.StatusForbidden,
	CodeInvalidRequest:         http.StatusBadRequest,
	CodeInternalError:          http.StatusInternalServerError,
}

// 错误码对应的默认消息
var codeMessages = map[string]string{
	CodeLimitReached:           "Daily limit reached. Upgrade for more requests.",
	CodeUserDailyCapReached:    "Daily request cap reached for this account.",
	CodeGlobalDailyCapReached:  "Global daily request cap reached.",
	CodeRequestInProgress:      "An identical request is already in progress.",
	CodePlanNotFound:           "Plan not found.",
	CodeInvalidWebhookPayload:  "Invalid webhook payload.",
	CodePaymentNotFound:        "Payment not found.",
	CodePaymentNotPending:      "Payment is not pending.",
	CodeInvalidPaymentID:       "Invalid payment id.",
	CodeInvalidAction:          "Invalid action.",
	CodeRateLimited:            "Too many requests. Please wait a moment.",
	CodeBudgetGuardUnavailable: "Budget guard temporarily unavailable.",
	CodeUnauthorized:           "Unauthorized.",
	CodeForbidden:              "Forbidden.",
	CodeInvalidRequest:         "Invalid request.",
	CodeInternalError:          "Internal server error.",
}

// Response 统一响应结构
type Response struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// StatusOf 错误码对应的 HTTP 状态码
func StatusOf(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeOK,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应，HTTP 状态由错误码决定
func Error(c *gin.Context, code, message string) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(StatusOf(code), Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// ParamError 参数错误
func ParamError(c *gin.Context, message string) {
	Error(c, CodeInvalidRequest, message)
}

// AuthError 认证失败
func AuthError(c *gin.Context, message string) {
	Error(c, CodeUnauthorized, message)
}

// ForbiddenError 权限不足
func ForbiddenError(c *gin.Context, message string) {
	Error(c, CodeForbidden, message)
}

// ServerError 服务器内部错误。上游原始报错只打日志，不回传给用户。
func ServerError(c *gin.Context, message string) {
	Error(c, CodeInternalError, message)
}
