package dto

type ChatRequest struct {
	UserID    string `json:"userId" binding:"required"`
	Model     string `json:"model"`
	Message   string `json:"message" binding:"required"`
	RequestID string `json:"requestId"`
}

type ChatResponse struct {
	Response  string `json:"response"`
	Model     string `json:"model"`
	Provider  string `json:"provider"`
	Fallback  bool   `json:"fallback"`
	Remaining *int   `json:"remaining,omitempty"`
}

type SessionMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}
