package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const apiBase = "https://api.telegram.org"

// Client Telegram Bot API 的最小客户端，只封装账务侧用到的三个方法
type Client struct {
	botToken   string
	httpClient *http.Client
}

func NewClient(botToken string) *Client {
	return &Client{
		botToken: botToken,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled 未配置 bot token 时所有调用直接短路
func (c *Client) Enabled() bool {
	return c.botToken != ""
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

func (c *Client) call(ctx context.Context, method string, payload interface{}) (json.RawMessage, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("telegram: bot token not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/bot%s/%s", apiBase, c.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var apiResp apiResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return nil, fmt.Errorf("telegram: %s bad response: %w", method, err)
	}
	if !apiResp.OK {
		return nil, fmt.Errorf("telegram: %s failed: %s", method, apiResp.Description)
	}
	return apiResp.Result, nil
}

// SendMessage 发送文本消息（告警通道）
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	_, err := c.call(ctx, "sendMessage", map[string]interface{}{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	})
	return err
}

// CreateInvoiceLink 为 Stars 支付生成发票链接。
// payload 会原样回到 pre_checkout_query / successful_payment，用于支付校验。
func (c *Client) CreateInvoiceLink(ctx context.Context, title, description, payload, currency string, amount int) (string, error) {
	result, err := c.call(ctx, "createInvoiceLink", map[string]interface{}{
		"title":       title,
		"description": description,
		"payload":     payload,
		"currency":    currency,
		"prices": []map[string]interface{}{
			{"label": title, "amount": amount},
		},
	})
	if err != nil {
		return "", err
	}

	var link string
	if err := json.Unmarshal(result, &link); err != nil {
		return "", err
	}
	return link, nil
}

// AnswerPreCheckoutQuery 应答支付前校验，errMsg 为空表示放行
func (c *Client) AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errMsg string) error {
	payload := map[string]interface{}{
		"pre_checkout_query_id": queryID,
		"ok":                    ok,
	}
	if !ok && errMsg != "" {
		payload["error_message"] = errMsg
	}
	_, err := c.call(ctx, "answerPreCheckoutQuery", payload)
	return err
}
