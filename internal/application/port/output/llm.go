package output

import (
	"context"
	"errors"

	"layout-agent/internal/domain/entity"
)

// ErrTransient marks upstream failures worth retrying: timeouts, rate limits,
// 5xx responses and dropped connections.
var ErrTransient = errors.New("transient upstream failure")

type LLMPort interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

type ChatRequest struct {
	Messages    []entity.Message
	Temperature float32
	MaxTokens   int
	JSONOutput  bool
}

type ChatResponse struct {
	Message entity.Message
	Model   string
}
