package agent

import (
	"github.com/crystaldolphin/crystaldolphin/internal/schema"
	"github.com/crystaldolphin/crystaldolphin/internal/tools"
)

// AgentFactory creates per-request CoreAgent instances.
// It holds construction-time dependencies; created agents are lightweight
// objects that own only what they need for one execution.
type AgentFactory struct {
	provider  schema.LLMProvider
	settings  schema.AgentSettings
	coreTools *tools.ToolList // wired after construction via SetCoreTools
}

// NewFactory constructs an AgentFactory. The core ToolList is wired
// afterwards via SetCoreTools.
func NewFactory(provider schema.LLMProvider, settings schema.AgentSettings) *AgentFactory {
	return &AgentFactory{provider: provider, settings: settings}
}

// SetCoreTools wires the factory to the core ToolList.
// Must be called before any CoreAgent is created.
func (f *AgentFactory) SetCoreTools(tls *tools.ToolList) {
	f.coreTools = tls
}

// NewCoreAgent creates a CoreAgent ready to execute one user message.
func (f *AgentFactory) NewCoreAgent() *CoreAgent {
	return &CoreAgent{
		LoopRunner: newLoopRunner(f.provider, f.settings),
		tools:      f.coreTools,
	}
}
