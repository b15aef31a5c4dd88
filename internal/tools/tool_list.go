package tools

import "context"

// ToolList is the live view of a Registry that the agent loop calls against
// each iteration: Definitions() feeds the LLM provider's function-calling
// schema, Get() resolves a tool call back to its implementation.
type ToolList struct {
	registry *Registry
}

// NewToolList wraps a Registry as a ToolList.
func NewToolList(reg *Registry) *ToolList {
	return &ToolList{registry: reg}
}

// Definitions returns all tool definitions in OpenAI function-calling format.
func (l *ToolList) Definitions() []map[string]any {
	if l == nil || l.registry == nil {
		return nil
	}
	return l.registry.GetDefinitions()
}

// Get returns the tool with the given name, or nil.
func (l *ToolList) Get(name string) Tool {
	if l == nil || l.registry == nil {
		return nil
	}
	return l.registry.Get(ToolName(name))
}

// Has reports whether name is registered.
func (l *ToolList) Has(name string) bool {
	if l == nil || l.registry == nil {
		return false
	}
	return l.registry.Has(name)
}

// Execute runs a named tool under the registry's timeout and panic recovery.
// Always returns a result string, even on error, since a tool call must
// produce a message back to the model rather than abort the turn.
func (l *ToolList) Execute(ctx context.Context, name string, params map[string]any) string {
	if l == nil || l.registry == nil {
		return "Error: Tool '" + name + "' not found"
	}
	return l.registry.Execute(ctx, name, params)
}
