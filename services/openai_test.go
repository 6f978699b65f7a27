package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	appconfig "whale-futures/config"

	"github.com/openai/openai-go"
)

type mockOpenAIClient struct {
	completionFunc func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

func (m *mockOpenAIClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return m.completionFunc(ctx, params)
}

func newTestOpenAIService(client openaiClient) *OpenAIService {
	return &OpenAIService{client: client, model: "gpt-4o", maxTokens: 512}
}

func completion(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestNewOpenAIService_RequiresKey(t *testing.T) {
	cfg := appconfig.NewTestConfig()
	cfg.OpenAI.APIKey = ""

	_, err := NewOpenAIService(cfg)
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("expected missing key error, got %v", err)
	}
}

func TestNewOpenAIService(t *testing.T) {
	cfg := appconfig.NewTestConfig()
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.Model = "gpt-4o-mini"

	service, err := NewOpenAIService(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if service.model != "gpt-4o-mini" {
		t.Errorf("model = %q", service.model)
	}
	if service.Name() != "openai" {
		t.Errorf("Name() = %q", service.Name())
	}
}

func TestOpenAIService_SummarizeCSV(t *testing.T) {
	resetBreakers(t)

	var messages int
	var model string
	service := newTestOpenAIService(&mockOpenAIClient{
		completionFunc: func(_ context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
			messages = len(params.Messages)
			model = string(params.Model)
			return completion("Follow ETH_USDT long"), nil
		},
	})

	got, err := service.SummarizeCSV(context.Background(), "Symbol\nETH_USDT", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Follow ETH_USDT long" {
		t.Errorf("got %q", got)
	}
	if messages != 2 {
		t.Errorf("expected system and user messages, got %d", messages)
	}
	if model != "gpt-4o" {
		t.Errorf("model = %q", model)
	}
}

func TestOpenAIService_InvokeWithPrompt_Errors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		resetBreakers(t)
		service := newTestOpenAIService(&mockOpenAIClient{
			completionFunc: func(context.Context, openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
				return nil, errors.New("quota exceeded")
			},
		})

		_, err := service.InvokeWithPrompt(context.Background(), "s", "u")
		if err == nil || !strings.Contains(err.Error(), "failed to invoke OpenAI") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("no choices", func(t *testing.T) {
		resetBreakers(t)
		service := newTestOpenAIService(&mockOpenAIClient{
			completionFunc: func(context.Context, openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
				return &openai.ChatCompletion{}, nil
			},
		})

		_, err := service.InvokeWithPrompt(context.Background(), "s", "u")
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})
}
