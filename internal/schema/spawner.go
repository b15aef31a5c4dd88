package schema

import (
	"context"

	"github.com/crystaldolphin/crystaldolphin/internal/bus"
)

type Task struct {
	id          string
	label       string
	description string
}

func NewTask(id, label, description string) Task {
	return Task{
		id:          id,
		label:       label,
		description: description,
	}
}

func (t Task) Id() string          { return t.id }
func (t Task) Label() string       { return t.label }
func (t Task) Description() string { return t.description }

// Spawner is an interface for creating background subagents. No type in this
// module implements it: agent.SubagentManager.Spawn takes the origin channel
// as a plain string, and the subagent.delegate tool uses tools.Delegator.
type Spawner interface {
	Spawn(ctx context.Context, task, label string, originChannel bus.Channel, originChatID string) (string, error)
}
