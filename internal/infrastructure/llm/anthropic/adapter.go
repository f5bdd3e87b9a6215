package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"layout-agent/internal/application/port/output"
	"layout-agent/internal/domain/entity"
	"layout-agent/internal/infrastructure/llm"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var _ output.LLMPort = (*Adapter)(nil)

const defaultMaxTokens = 1024

type Adapter struct {
	client *anthropic.Client
	model  string
	logger output.LoggerPort
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Logger  output.LoggerPort
}

func DefaultConfig(apiKey, model string) Config {
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}
	return Config{APIKey: apiKey, Model: model}
}

func NewAdapter(cfg Config) *Adapter {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are owned by the decision client.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &Adapter{
		client: &client,
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

func (a *Adapter) Chat(ctx context.Context, req output.ChatRequest) (*output.ChatResponse, error) {
	system, messages := convertMessages(req.Messages, req.JSONOutput)
	if len(messages) == 0 {
		return nil, errors.New("no user message to send")
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    messages,
		Temperature: anthropic.Float(float64(req.Temperature)),
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if a.logger != nil {
		a.logger.Debug("Claude response", "model", resp.Model, "inputTokens", resp.Usage.InputTokens, "outputTokens", resp.Usage.OutputTokens)
	}

	return &output.ChatResponse{
		Message: entity.Message{Role: entity.RoleAssistant, Content: text.String()},
		Model:   string(resp.Model),
	}, nil
}

// convertMessages splits system prompts out of the conversation. Claude has no
// JSON response mode, so the instruction is appended to the system prompt.
func convertMessages(in []entity.Message, jsonOutput bool) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var (
		system   []anthropic.TextBlockParam
		messages []anthropic.MessageParam
	)
	for _, msg := range in {
		switch msg.Role {
		case entity.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case entity.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if jsonOutput {
		system = append(system, anthropic.TextBlockParam{Text: "Respond with a single JSON object and nothing else."})
	}
	return system, messages
}

func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && llm.TransientStatus(apiErr.StatusCode) {
		return fmt.Errorf("%w: Claude API: %v", output.ErrTransient, err)
	}
	if llm.TransientNetwork(err) {
		return fmt.Errorf("%w: Claude API: %v", output.ErrTransient, err)
	}
	return fmt.Errorf("Claude API error: %w", err)
}
