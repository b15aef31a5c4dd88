package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/crystaldolphin/internal/errs"
	"github.com/crystaldolphin/crystaldolphin/internal/schema"
	"github.com/crystaldolphin/crystaldolphin/internal/shared/llmutils"
	"github.com/crystaldolphin/crystaldolphin/internal/tools"
)

// maxLoopIterations is the hard cap on Receive-Think-Act-Reply cycles within
// a single turn, regardless of AgentSettings.MaxIter.
const maxLoopIterations = 200

// toolConcurrency bounds how many tool calls from a single assistant turn
// run at once.
const toolConcurrency = 4

// modelRetryBackoffs are the delays between retries of a transient Model
// Client error: 200ms, 800ms, 2s.
var modelRetryBackoffs = []time.Duration{200 * time.Millisecond, 800 * time.Millisecond, 2 * time.Second}

// LoopRunner executes the LLM <-> tool iteration loop.
// It is embedded by CoreAgent and SubAgent to share the loop body.
type LoopRunner struct {
	provider schema.LLMProvider
	settings schema.AgentSettings
}

func newLoopRunner(provider schema.LLMProvider, settings schema.AgentSettings) LoopRunner {
	return LoopRunner{provider: provider, settings: settings}
}

// run is the canonical LLM <-> tool loop body shared by CoreAgent and SubAgent.
func (r *LoopRunner) run(ctx context.Context, conversation schema.Messages, tls *tools.ToolList, onProgress func(string)) (finalContent string, toolsUsed []string) {
	maxIter := r.settings.MaxIter
	if maxIter <= 0 || maxIter > maxLoopIterations {
		maxIter = maxLoopIterations
	}

	for i := 0; i < maxIter; i++ {
		resp, err := r.chatWithRetry(ctx, conversation, tls)
		if err != nil {
			slog.Error("agent loop: model client error", "err", err)
			return "Sorry, I ran into a problem talking to the model. Please try again.", toolsUsed
		}

		if len(resp.ToolCalls) == 0 {
			content := ""
			if resp.Content != nil {
				content = *resp.Content
			}
			return llmutils.StripThink(content), toolsUsed
		}

		if onProgress != nil {
			if resp.Content != nil {
				if clean := llmutils.StripThink(*resp.Content); clean != "" {
					onProgress(clean)
				}
			}
			onProgress(llmutils.ToolHint(resp.ToolCalls))
		}

		var toolCalls []schema.ToolCall
		for _, tc := range resp.ToolCalls {
			toolCalls = append(toolCalls, schema.ToolCall{ID: tc.Id, Name: tc.Name, Arguments: tc.Arguments})
		}
		conversation.AddAssistant(resp.Content, toolCalls, resp.ReasoningContent)

		results := r.executeToolCalls(ctx, tls, resp.ToolCalls)
		for _, tc := range resp.ToolCalls {
			toolsUsed = append(toolsUsed, tc.Name)
		}
		for _, res := range results {
			conversation.AddToolResult(res.id, res.name, res.result)
		}
	}

	slog.Error("agent_loop.iteration_cap_exceeded", "max_iter", maxIter)
	return "I've reached the maximum number of tool iterations without a final answer.", toolsUsed
}

// chatWithRetry retries transient Model Client errors up to 3 times with
// backoff; permanent errors (e.g. invalid request, auth failure) return
// immediately.
func (r *LoopRunner) chatWithRetry(ctx context.Context, conversation schema.Messages, tls *tools.ToolList) (schema.LLMResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= len(modelRetryBackoffs); attempt++ {
		resp, err := r.provider.Chat(ctx,
			conversation,
			tls.Definitions(),
			schema.NewChatOptions(r.settings.Model, r.settings.MaxTokens, r.settings.Temperature),
		)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == len(modelRetryBackoffs) {
			return schema.LLMResponse{}, err
		}

		slog.Warn("agent loop: retrying model call", "attempt", attempt+1, "err", err)
		select {
		case <-ctx.Done():
			return schema.LLMResponse{}, ctx.Err()
		case <-time.After(modelRetryBackoffs[attempt]):
		}
	}
	return schema.LLMResponse{}, lastErr
}

func isRetryable(err error) bool {
	kind := errs.KindOf(err)
	return kind == errs.ModelTransient || kind == errs.Timeout
}

type toolResult struct {
	id     string
	name   string
	result string
}

// executeToolCalls runs every tool call from one assistant turn with at most
// toolConcurrency in flight, preserving the original call order in the
// returned slice regardless of completion order.
func (r *LoopRunner) executeToolCalls(ctx context.Context, tls *tools.ToolList, calls []schema.ToolCallResponse) []toolResult {
	results := make([]toolResult, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(toolConcurrency)

	for i, tc := range calls {
		i, tc := i, tc
		g.Go(func() error {
			argsJSON, _ := json.Marshal(tc.Arguments)
			slog.Info("tool call", "name", tc.Name, "args", llmutils.Truncate(string(argsJSON), 200))

			out := tls.Execute(gctx, tc.Name, tc.Arguments)
			results[i] = toolResult{id: tc.Id, name: tc.Name, result: out}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
