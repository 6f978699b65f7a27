package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

type mockBedrockClient struct {
	invokeFunc func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

func (m *mockBedrockClient) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	return m.invokeFunc(ctx, params, optFns...)
}

func newTestBedrockService(client bedrockClient) *BedrockService {
	return &BedrockService{
		client:           client,
		model:            "anthropic.claude-3-sonnet",
		maxTokens:        1024,
		anthropicVersion: "bedrock-2023-05-31",
	}
}

func claudeOutput(t *testing.T, text string) *bedrockruntime.InvokeModelOutput {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":      "msg_1",
		"type":    "message",
		"role":    "assistant",
		"content": []map[string]string{{"type": "text", "text": text}},
	})
	if err != nil {
		t.Fatalf("failed to marshal response: %v", err)
	}
	return &bedrockruntime.InvokeModelOutput{Body: body}
}

func TestClaudeRequest_EmptySystem(t *testing.T) {
	req := ClaudeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        1024,
		Messages:         []ClaudeMessage{{Role: "user", Content: "Test"}},
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Failed to unmarshal to map: %v", err)
	}
	if _, exists := raw["system"]; exists {
		t.Error("Empty system field should be omitted from JSON")
	}
}

func TestBedrockService_SummarizeCSV(t *testing.T) {
	resetBreakers(t)

	var captured ClaudeRequest
	var modelID string
	service := newTestBedrockService(&mockBedrockClient{
		invokeFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
			modelID = *params.ModelId
			if err := json.Unmarshal(params.Body, &captured); err != nil {
				t.Fatalf("request body is not a Claude request: %v", err)
			}
			return claudeOutput(t, "## Picks\n- BTC_USDT"), nil
		},
	})

	got, err := service.SummarizeCSV(context.Background(), "Symbol,Mode\nBTC_USDT,long", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "## Picks\n- BTC_USDT" {
		t.Errorf("got %q", got)
	}
	if modelID != "anthropic.claude-3-sonnet" {
		t.Errorf("model = %q", modelID)
	}
	if captured.AnthropicVersion != "bedrock-2023-05-31" || captured.MaxTokens != 1024 {
		t.Errorf("unexpected request header fields: %+v", captured)
	}
	if captured.System != csvSystemPrompt {
		t.Error("expected the CSV system prompt")
	}
	if len(captured.Messages) != 1 || !strings.Contains(captured.Messages[0].Content, "BTC_USDT,long") {
		t.Errorf("user message does not carry the CSV: %+v", captured.Messages)
	}
	if !strings.Contains(captured.Messages[0].Content, "top 5") {
		t.Errorf("user message does not carry topN: %q", captured.Messages[0].Content)
	}
}

func TestBedrockService_InvokeWithPrompt_Errors(t *testing.T) {
	tests := []struct {
		name      string
		output    *bedrockruntime.InvokeModelOutput
		err       error
		wantText  string
		malformed bool
	}{
		{
			name:     "invoke error",
			err:      errors.New("throttled"),
			wantText: "failed to invoke model",
		},
		{
			name:      "bad json",
			output:    &bedrockruntime.InvokeModelOutput{Body: []byte("not json")},
			malformed: true,
		},
		{
			name:      "empty content",
			output:    &bedrockruntime.InvokeModelOutput{Body: []byte(`{"content":[]}`)},
			malformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetBreakers(t)
			service := newTestBedrockService(&mockBedrockClient{
				invokeFunc: func(context.Context, *bedrockruntime.InvokeModelInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
					return tt.output, tt.err
				},
			})

			_, err := service.InvokeWithPrompt(context.Background(), "system", "user")
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantText != "" && !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("error %q does not contain %q", err, tt.wantText)
			}
			if tt.malformed && !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestBedrockService_Name(t *testing.T) {
	if got := newTestBedrockService(nil).Name(); got != "bedrock" {
		t.Errorf("Name() = %q", got)
	}
}
