package agent

import (
	"context"

	"github.com/crystaldolphin/crystaldolphin/internal/schema"
	"github.com/crystaldolphin/crystaldolphin/internal/tools"
)

// CoreAgent processes a single user-facing request.
// It carries the full tool set (fs, shell, web, message, cron, memory, skill,
// subagent.delegate) and uses the rich system prompt built by the context
// builder from workspace files and memory.
// Constructed per message by AgentFactory.NewCoreAgent().
type CoreAgent struct {
	LoopRunner

	tools *tools.ToolList
}

// Execute implements schema.Agent. conversation must be fully built by the
// caller (system prompt + history + user message).
func (a *CoreAgent) Execute(ctx context.Context, conversation schema.Messages, onProgress func(string)) (string, []string) {
	return a.run(ctx, conversation, a.tools, onProgress)
}
