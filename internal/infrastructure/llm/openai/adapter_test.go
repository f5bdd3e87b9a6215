package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"layout-agent/internal/application/port/output"
	"layout-agent/internal/domain/entity"
	"layout-agent/internal/infrastructure/logger"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertMessages(t *testing.T) {
	messages := []entity.Message{
		entity.SystemMessage("rules"),
		entity.UserMessage("Hello"),
	}

	result := convertMessages(messages)

	require.Len(t, result, 2)
	assert.Equal(t, "system", result[0].Role)
	assert.Equal(t, "rules", result[0].Content)
	assert.Equal(t, "user", result[1].Role)
	assert.Equal(t, "Hello", result[1].Content)
}

func TestConvertResponseMessage(t *testing.T) {
	result := convertResponseMessage(goopenai.ChatCompletionMessage{Role: "assistant", Content: `{"action":"click"}`})

	assert.Equal(t, entity.RoleAssistant, result.Role)
	assert.Equal(t, `{"action":"click"}`, result.Content)
}

func newServer(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig("sk-test", "gpt-4")
	cfg.BaseURL = srv.URL + "/v1"
	cfg.Logger = logger.NewNop()
	return NewAdapter(cfg)
}

func TestAdapter_Chat(t *testing.T) {
	var got goopenai.ChatCompletionRequest
	a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","model":"gpt-4","choices":[{"index":0,"message":{"role":"assistant","content":"{\"action\":\"wait\"}"}}]}`)
	})

	resp, err := a.Chat(context.Background(), output.ChatRequest{
		Messages:    []entity.Message{entity.UserMessage("go")},
		Temperature: 0.1,
		MaxTokens:   500,
		JSONOutput:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"action":"wait"}`, resp.Message.Content)
	assert.Equal(t, "gpt-4", resp.Model)
	assert.Equal(t, 500, got.MaxTokens)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, goopenai.ChatCompletionResponseFormatTypeJSONObject, got.ResponseFormat.Type)
}

func TestAdapter_ChatClassifiesErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
		{"unauthorized", http.StatusUnauthorized, false},
		{"bad request", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"nope","type":"x"}}`)
			})

			_, err := a.Chat(context.Background(), output.ChatRequest{Messages: []entity.Message{entity.UserMessage("go")}})
			require.Error(t, err)
			assert.Equal(t, tt.transient, errors.Is(err, output.ErrTransient))
		})
	}
}

func TestAdapter_EmptyChoices(t *testing.T) {
	a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","choices":[]}`)
	})

	resp, err := a.Chat(context.Background(), output.ChatRequest{Messages: []entity.Message{entity.UserMessage("go")}})
	require.NoError(t, err)
	assert.Equal(t, entity.RoleAssistant, resp.Message.Role)
	assert.Empty(t, resp.Message.Content)
}

func TestOpenRouterConfig(t *testing.T) {
	cfg := OpenRouterConfig("key", "anthropic/claude-3.5-sonnet")

	assert.Equal(t, OpenRouterBaseURL, cfg.BaseURL)
	assert.False(t, cfg.JSONMode)
}
