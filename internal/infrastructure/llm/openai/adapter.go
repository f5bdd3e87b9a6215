package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"layout-agent/internal/application/port/output"
	"layout-agent/internal/domain/entity"
	"layout-agent/internal/infrastructure/llm"

	goopenai "github.com/sashabaranov/go-openai"
)

var _ output.LLMPort = (*Adapter)(nil)

const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// Adapter talks to any OpenAI compatible chat completion endpoint. OpenRouter
// is the same adapter with a different base URL.
type Adapter struct {
	client   *goopenai.Client
	model    string
	jsonMode bool
	logger   output.LoggerPort
}

type Config struct {
	APIKey   string
	Model    string
	BaseURL  string
	JSONMode bool
	Logger   output.LoggerPort
}

func DefaultConfig(apiKey, model string) Config {
	return Config{
		APIKey:   apiKey,
		Model:    model,
		JSONMode: true,
	}
}

func OpenRouterConfig(apiKey, model string) Config {
	cfg := DefaultConfig(apiKey, model)
	cfg.BaseURL = OpenRouterBaseURL
	// Not every routed model accepts response_format.
	cfg.JSONMode = false
	return cfg
}

type loggingTransport struct {
	base   http.RoundTripper
	logger output.LoggerPort
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	t.logger.Debug("HTTP Request", "method", req.Method, "url", req.URL.String(), "bytes", req.ContentLength)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Warn("HTTP Request failed", "url", req.URL.String(), "error", err, "elapsed", time.Since(start))
		return nil, err
	}

	t.logger.Debug("HTTP Response", "status", resp.Status, "statusCode", resp.StatusCode, "elapsed", time.Since(start))
	return resp, nil
}

func NewAdapter(cfg Config) *Adapter {
	config := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	if cfg.Logger != nil {
		config.HTTPClient = &http.Client{
			Transport: &loggingTransport{base: http.DefaultTransport, logger: cfg.Logger},
		}
	}

	return &Adapter{
		client:   goopenai.NewClientWithConfig(config),
		model:    cfg.Model,
		jsonMode: cfg.JSONMode,
		logger:   cfg.Logger,
	}
}

func (a *Adapter) Chat(ctx context.Context, req output.ChatRequest) (*output.ChatResponse, error) {
	request := goopenai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    convertMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONOutput && a.jsonMode {
		request.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := a.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, classifyError(err)
	}

	// No choices becomes an empty reply; the decision client rejects it.
	if len(resp.Choices) == 0 {
		return &output.ChatResponse{
			Message: entity.Message{Role: entity.RoleAssistant},
			Model:   resp.Model,
		}, nil
	}

	return &output.ChatResponse{
		Message: convertResponseMessage(resp.Choices[0].Message),
		Model:   resp.Model,
	}, nil
}

func classifyError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && llm.TransientStatus(apiErr.HTTPStatusCode) {
		return fmt.Errorf("%w: chat completion: %v", output.ErrTransient, err)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && llm.TransientStatus(reqErr.HTTPStatusCode) {
		return fmt.Errorf("%w: chat completion: %v", output.ErrTransient, err)
	}
	if llm.TransientNetwork(err) {
		return fmt.Errorf("%w: chat completion: %v", output.ErrTransient, err)
	}
	return fmt.Errorf("chat completion failed: %w", err)
}

func convertMessages(messages []entity.Message) []goopenai.ChatCompletionMessage {
	result := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		result = append(result, goopenai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return result
}

func convertResponseMessage(msg goopenai.ChatCompletionMessage) entity.Message {
	return entity.Message{
		Role:    entity.RoleAssistant,
		Content: msg.Content,
	}
}
