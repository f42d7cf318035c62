package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/w1ldc/tgllm_go_server/config"
	"github.com/w1ldc/tgllm_go_server/internal/model/dto"
)

var ErrRelayFailed = errors.New("upstream relay failed")

// RelayMessage 转发给上游中继的对话消息
type RelayMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type RelayResult struct {
	Content  string `json:"response"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
	Fallback bool   `json:"fallback"`
}

// Relay LLM 中继。生产注入 HTTP 实现，测试注入桩。
type Relay interface {
	Chat(ctx context.Context, model string, messages []RelayMessage, byokKeys map[string]string) (*RelayResult, error)
}

// HTTPRelay 把对话转发到独立部署的模型中继服务
type HTTPRelay struct {
	url        string
	httpClient *http.Client
}

func NewHTTPRelay(url string, timeoutSec int) *HTTPRelay {
	if timeoutSec <= 0 {
		timeoutSec = 60
	}
	return &HTTPRelay{
		url: url,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSec) * time.Second,
		},
	}
}

func (r *HTTPRelay) Chat(ctx context.Context, model string, messages []RelayMessage, byokKeys map[string]string) (*RelayResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model":    model,
		"messages": messages,
		"byokKeys": byokKeys,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRelayFailed, resp.StatusCode)
	}

	var result RelayResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: bad response: %v", ErrRelayFailed, err)
	}
	return &result, nil
}

// ChatService 对话编排：去重 → 预留额度 → 转发中继 → 结清。
// 中继失败（含客户端中断）会精确回滚预留，用户不为失败的请求买单。
type ChatService struct {
	idempotency *IdempotencyService
	quota       *QuotaService
	userService *UserService
	relay       Relay
	cfg         *config.Config
}

func NewChatService(
	idempotency *IdempotencyService,
	quota *QuotaService,
	userService *UserService,
	relay Relay,
	cfg *config.Config,
) *ChatService {
	return &ChatService{
		idempotency: idempotency,
		quota:       quota,
		userService: userService,
		relay:       relay,
		cfg:         cfg,
	}
}

const chatEndpoint = "chat"

// Chat 处理一次对话请求。replayed=true 表示命中了重试去重缓存，
// 本次没有执行业务也没有扣减额度。
func (s *ChatService) Chat(ctx context.Context, req *dto.ChatRequest) (resp *dto.ChatResponse, replayed bool, err error) {
	telegramID := req.UserID

	begin, err := s.idempotency.Begin(telegramID, req.RequestID, chatEndpoint)
	if err != nil {
		return nil, false, err
	}
	switch begin.Outcome {
	case BeginReplay:
		var cached dto.ChatResponse
		if json.Unmarshal([]byte(begin.Response), &cached) == nil {
			return &cached, true, nil
		}
		// 缓存损坏按在途处理，让客户端换一个请求标识重来
		return nil, false, ErrRequestInProgress
	case BeginInProgress:
		return nil, false, ErrRequestInProgress
	}

	reservation, err := s.quota.Reserve(telegramID)
	if err != nil {
		if begin.Tracked {
			s.idempotency.Fail(telegramID, req.RequestID, chatEndpoint, err.Error())
		}
		return nil, false, err
	}

	if err := s.userService.AppendMessage(ctx, telegramID, "user", req.Message); err != nil {
		log.Printf("Session append failed: user=%s err=%v", telegramID, err)
	}

	messages := s.buildContext(ctx, telegramID, req.Message)

	byokKeys, err := s.userService.DecryptedKeys(telegramID)
	if err != nil {
		log.Printf("BYOK load failed: user=%s err=%v", telegramID, err)
		byokKeys = nil
	}

	result, err := s.relay.Chat(ctx, req.Model, messages, byokKeys)
	if err != nil {
		// 客户端中断和上游失败走同一条回滚路径
		s.quota.Rollback(telegramID, reservation)
		if begin.Tracked {
			s.idempotency.Fail(telegramID, req.RequestID, chatEndpoint, err.Error())
		}
		if errors.Is(err, ErrRelayFailed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false, fmt.Errorf("%w: %v", ErrRelayFailed, err)
		}
		return nil, false, err
	}

	s.quota.Finalize(telegramID, reservation, FinalizeMeta{
		Endpoint: chatEndpoint,
		Model:    result.Model,
		Provider: result.Provider,
	})

	if err := s.userService.AppendMessage(context.Background(), telegramID, "assistant", result.Content); err != nil {
		log.Printf("Session append failed: user=%s err=%v", telegramID, err)
	}

	resp = &dto.ChatResponse{
		Response:  result.Content,
		Model:     result.Model,
		Provider:  result.Provider,
		Fallback:  result.Fallback,
		Remaining: reservation.Remaining,
	}

	if begin.Tracked {
		if respBytes, err := json.Marshal(resp); err == nil {
			s.idempotency.Complete(telegramID, req.RequestID, chatEndpoint, string(respBytes))
		}
	}
	return resp, false, nil
}

// buildContext 取会话里最近的几条消息作为上下文，
// 会话不可用时退化为只带当前这条。
func (s *ChatService) buildContext(ctx context.Context, telegramID, current string) []RelayMessage {
	window := s.cfg.Chat.ContextWindow
	if window <= 0 {
		window = 10
	}

	history, err := s.userService.GetSession(ctx, telegramID)
	if err != nil || len(history) == 0 {
		return []RelayMessage{{Role: "user", Content: current}}
	}
	if len(history) > window {
		history = history[len(history)-window:]
	}

	messages := make([]RelayMessage, 0, len(history))
	for _, msg := range history {
		messages = append(messages, RelayMessage{Role: msg.Role, Content: msg.Content})
	}
	return messages
}
