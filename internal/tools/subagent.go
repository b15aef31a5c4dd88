package tools

import (
	"context"
	"encoding/json"

	"github.com/crystaldolphin/crystaldolphin/internal/errs"
)

// Delegator is the interface the subagent.delegate tool uses to spawn a
// detached task-completion agent. Implemented by agent.SubagentManager.
type Delegator interface {
	Spawn(ctx context.Context, task, label, originChannel, originChatID string) (string, error)
}

// SubagentDelegateTool hands a self-contained task to a subagent that runs
// in the background and reports its result back through the hub. Distinct
// from spawn: this delegates to another LLM-driven loop, not a literal OS
// process.
type SubagentDelegateTool struct {
	delegator Delegator
}

func NewSubagentDelegateTool(d Delegator) *SubagentDelegateTool {
	return &SubagentDelegateTool{delegator: d}
}

func (t *SubagentDelegateTool) Name() string { return "subagent.delegate" }
func (t *SubagentDelegateTool) Description() string {
	return "Delegate a self-contained task to a background subagent. " +
		"Use for complex or time-consuming work that can run independently; " +
		"the subagent completes the task and reports back when done."
}
func (t *SubagentDelegateTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task": {"type": "string", "description": "The task for the subagent to complete"},
			"label": {"type": "string", "description": "Optional short label for display"}
		},
		"required": ["task"]
	}`)
}

func (t *SubagentDelegateTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	task, _ := params["task"].(string)
	if task == "" {
		return "", errs.New(errs.InvalidArguments, "task is required")
	}
	label, _ := params["label"].(string)

	tc := TurnCtx(ctx)
	channel, chatID := tc.Channel, tc.ChatID
	if channel == "" {
		channel = "cli"
	}
	if chatID == "" {
		chatID = "direct"
	}

	return t.delegator.Spawn(ctx, task, label, channel, chatID)
}
