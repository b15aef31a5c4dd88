package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/crystaldolphin/crystaldolphin/internal/errs"
	"github.com/crystaldolphin/crystaldolphin/internal/schema"
)

// OpenAIProvider makes direct HTTP calls to any OpenAI-compatible
// chat-completions endpoint.
type OpenAIProvider struct {
	apiBase      string
	apiKey       string
	authHeader   string
	authPrefix   string
	defaultModel string
	httpClient   *http.Client
}

// NewOpenAIProvider constructs a provider for a given base URL and auth scheme.
func NewOpenAIProvider(apiBase, apiKey, authHeader, authPrefix, defaultModel string) *OpenAIProvider {
	return &OpenAIProvider{
		apiBase:      strings.TrimRight(apiBase, "/"),
		apiKey:       apiKey,
		authHeader:   authHeader,
		authPrefix:   authPrefix,
		defaultModel: defaultModel,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

// Chat implements schema.LLMProvider. Errors are classified per the spec's
// taxonomy: network errors and HTTP 429/5xx are errs.ModelTransient, except
// that a request cut short by ctx cancellation or deadline is errs.Timeout;
// any other HTTP error or malformed response is errs.ModelPermanent.
func (p *OpenAIProvider) Chat(
	ctx context.Context,
	messages schema.Messages,
	tools []map[string]any,
	opts schema.ChatOptions,
) (schema.LLMResponse, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body := map[string]any{
		"model":       model,
		"messages":    sanitizeMessages(messages),
		"max_tokens":  maxTokens,
		"temperature": opts.Temperature,
	}
	if len(tools) > 0 {
		body["tools"] = tools
		body["tool_choice"] = "auto"
	}

	data, err := json.Marshal(body)
	if err != nil {
		return schema.LLMResponse{}, errs.Wrap(errs.Internal, "marshal chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return schema.LLMResponse{}, errs.Wrap(errs.Internal, "build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set(p.authHeader, p.authPrefix+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return schema.LLMResponse{}, errs.Wrap(errs.Timeout, "chat request", err)
		}
		return schema.LLMResponse{}, errs.Wrap(errs.ModelTransient, "chat request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return schema.LLMResponse{}, errs.Wrap(errs.ModelTransient, "read chat response", err)
	}

	if resp.StatusCode != http.StatusOK {
		kind := errs.ModelPermanent
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			kind = errs.ModelTransient
		}
		return schema.LLMResponse{}, errs.New(kind, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(raw), 300)))
	}

	out, err := parseOpenAIResponse(raw)
	if err != nil {
		return schema.LLMResponse{}, errs.Wrap(errs.ModelPermanent, "parse chat response", err)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// sanitizeMessages converts schema.Messages into the OpenAI wire format.
func sanitizeMessages(messages schema.Messages) []map[string]any {
	out := make([]map[string]any, 0, len(messages.Messages))
	for _, m := range messages.Messages {
		wire := map[string]any{"role": m.Role}

		switch c := m.Content.(type) {
		case string:
			wire["content"] = c
		case *string:
			if c != nil {
				wire["content"] = *c
			} else {
				wire["content"] = nil
			}
		case nil:
			wire["content"] = nil
		default:
			wire["content"] = c
		}

		if len(m.ToolCalls) > 0 {
			calls := make([]map[string]any, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				calls = append(calls, tc.ToWireMap())
			}
			wire["tool_calls"] = calls
		}
		if m.ToolCallID != "" {
			wire["tool_call_id"] = m.ToolCallID
		}
		if m.ToolName != "" {
			wire["name"] = m.ToolName
		}

		out = append(out, wire)
	}
	return out
}

type openAIRespBody struct {
	Choices []struct {
		Message struct {
			Content          any `json:"content"`
			ReasoningContent any `json:"reasoning_content"`
			ToolCalls        []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func parseOpenAIResponse(raw []byte) (schema.LLMResponse, error) {
	var body openAIRespBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return schema.LLMResponse{}, fmt.Errorf("parse response: %w", err)
	}
	if len(body.Choices) == 0 {
		return schema.LLMResponse{}, fmt.Errorf("empty choices")
	}

	msg := body.Choices[0].Message

	var content *string
	if s, ok := msg.Content.(string); ok && s != "" {
		content = &s
	}

	var reasoning *string
	if s, ok := msg.ReasoningContent.(string); ok && s != "" {
		reasoning = &s
	}

	var toolCalls []schema.ToolCallRequest
	for _, tc := range msg.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			slog.Warn("providers: malformed tool call arguments", "tool", tc.Function.Name, "err", err)
			args = map[string]any{}
		}
		toolCalls = append(toolCalls, schema.ToolCallRequest{
			Id:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	finish := body.Choices[0].FinishReason
	if finish == "" {
		finish = "stop"
	}

	return schema.LLMResponse{
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: finish,
		Usage: map[string]int{
			"input_tokens":  body.Usage.PromptTokens,
			"output_tokens": body.Usage.CompletionTokens,
		},
		ReasoningContent: reasoning,
	}, nil
}
