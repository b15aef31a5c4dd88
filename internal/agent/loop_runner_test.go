package agent

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/crystaldolphin/crystaldolphin/internal/errs"
	"github.com/crystaldolphin/crystaldolphin/internal/schema"
	"github.com/crystaldolphin/crystaldolphin/internal/tools"
)

// fakeProvider is a scriptable schema.LLMProvider for loop tests.
type fakeProvider struct {
	calls   atomic.Int32
	respond func(call int) (schema.LLMResponse, error)
}

func (f *fakeProvider) Chat(_ context.Context, _ schema.Messages, _ []map[string]any, _ schema.ChatOptions) (schema.LLMResponse, error) {
	n := int(f.calls.Add(1))
	return f.respond(n)
}

func (f *fakeProvider) DefaultModel() string { return "fake-model" }

func textResponse(s string) (schema.LLMResponse, error) {
	return schema.LLMResponse{Content: &s}, nil
}

func emptyToolList(t *testing.T) *tools.ToolList {
	t.Helper()
	reg := tools.NewRegistryBuilder().Build()
	return tools.NewToolList(reg)
}

func TestLoopRunner_ReturnsFirstTextReply(t *testing.T) {
	provider := &fakeProvider{respond: func(int) (schema.LLMResponse, error) {
		return textResponse("hello there")
	}}
	runner := newLoopRunner(provider, schema.NewAgentSettings("fake-model", 10, 0.5, 1000, 0))

	content, toolsUsed := runner.run(context.Background(), schema.NewMessages(), emptyToolList(t), nil)
	if content != "hello there" {
		t.Errorf("expected direct text reply, got %q", content)
	}
	if len(toolsUsed) != 0 {
		t.Errorf("expected no tools used, got %v", toolsUsed)
	}
	if provider.calls.Load() != 1 {
		t.Errorf("expected exactly 1 model call, got %d", provider.calls.Load())
	}
}

func TestLoopRunner_RetriesTransientModelError(t *testing.T) {
	provider := &fakeProvider{respond: func(n int) (schema.LLMResponse, error) {
		if n < 2 {
			return schema.LLMResponse{}, errs.New(errs.ModelTransient, "rate limited")
		}
		return textResponse("recovered")
	}}
	runner := newLoopRunner(provider, schema.NewAgentSettings("fake-model", 10, 0.5, 1000, 0))

	content, _ := runner.run(context.Background(), schema.NewMessages(), emptyToolList(t), nil)
	if content != "recovered" {
		t.Errorf("expected the loop to recover after a transient error, got %q", content)
	}
	if provider.calls.Load() != 2 {
		t.Errorf("expected 2 model calls (1 failed + 1 retry), got %d", provider.calls.Load())
	}
}

func TestLoopRunner_PermanentModelErrorReturnsApologyWithoutRetry(t *testing.T) {
	provider := &fakeProvider{respond: func(int) (schema.LLMResponse, error) {
		return schema.LLMResponse{}, errs.New(errs.ModelPermanent, "invalid api key")
	}}
	runner := newLoopRunner(provider, schema.NewAgentSettings("fake-model", 10, 0.5, 1000, 0))

	_, _ = runner.run(context.Background(), schema.NewMessages(), emptyToolList(t), nil)
	if provider.calls.Load() != 1 {
		t.Errorf("expected exactly 1 model call for a permanent error, got %d", provider.calls.Load())
	}
}

func TestLoopRunner_IterationCapReturnsApology(t *testing.T) {
	provider := &fakeProvider{respond: func(n int) (schema.LLMResponse, error) {
		// Always emit a tool call so the loop never terminates on its own.
		return schema.LLMResponse{ToolCalls: []schema.ToolCallResponse{
			{Id: "1", Name: "nonexistent.tool", Arguments: map[string]any{}},
		}}, nil
	}}
	maxIter := 5
	runner := newLoopRunner(provider, schema.NewAgentSettings("fake-model", maxIter, 0.5, 1000, 0))

	content, _ := runner.run(context.Background(), schema.NewMessages(), emptyToolList(t), nil)
	if content == "" {
		t.Fatal("expected an apology reply on hitting the iteration cap")
	}
	if provider.calls.Load() != int32(maxIter) {
		t.Errorf("expected exactly %d model calls before the cap kicked in, got %d", maxIter, provider.calls.Load())
	}
}
