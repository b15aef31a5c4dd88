package tools

import (
	"context"
	"fmt"
	"encoding/json"
	"log/slog"
	"time"
)

// Tool is the interface all built-in tools must satisfy.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, params map[string]any) (string, error)
}

// ToolName is the canonical name of a built-in tool.
type ToolName string

const (
	ToolFSRead          ToolName = "fs.read"
	ToolFSWrite         ToolName = "fs.write"
	ToolFSList          ToolName = "fs.list"
	ToolFSDelete        ToolName = "fs.delete"
	ToolShellRun        ToolName = "shell.run"
	ToolSpawn           ToolName = "spawn"
	ToolWebGet          ToolName = "web.get"
	ToolWebSearch       ToolName = "web.search"
	ToolMessage         ToolName = "message"
	ToolCronOnce        ToolName = "cron.once"
	ToolCronEvery       ToolName = "cron.every"
	ToolMemoryWrite     ToolName = "memory.write"
	ToolSkillCreate     ToolName = "skill.create"
	ToolSkillRead       ToolName = "skill.read"
	ToolSkillList       ToolName = "skill.list"
	ToolSkillDelete     ToolName = "skill.delete"
	ToolSubagentDelegate ToolName = "subagent.delegate"
)

// toolTimeout returns the per-tool execution budget. Most tools default to
// 30s; shell.run may run up to 300s per its own internal clamp, so the
// registry gives it the same ceiling here rather than cutting it short.
func toolTimeout(name string) time.Duration {
	switch name {
	case string(ToolShellRun):
		return maxExecTimeout
	case string(ToolWebGet), string(ToolWebSearch):
		return 30 * time.Second
	default:
		return 30 * time.Second
	}
}

// Registry holds a set of named tools and exposes them for execution.
// Construct one via NewRegistryBuilder().WithTool(...).Build().
type Registry struct {
	tools map[string]Tool
}

// Add inserts a tool into an already-built Registry.
func (r *Registry) Add(tool Tool) {
	r.tools[tool.Name()] = tool
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Get returns the tool with the given name, or nil.
func (r *Registry) Get(name ToolName) Tool {
	return r.tools[string(name)]
}

// GetDefinitions returns all tool definitions in OpenAI function-calling format.
func (r *Registry) GetDefinitions() []map[string]any {
	defs := make([]map[string]any, 0, len(r.tools))

	for _, t := range r.tools {
		var params any
		if err := json.Unmarshal(t.Parameters(), &params); err != nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}

		defs = append(defs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name(),
				"description": t.Description(),
				"parameters":  params,
			},
		})
	}
	return defs
}

// Execute runs a named tool under its own timeout and recovers from panics,
// so that a single misbehaving tool can never take down the agent loop.
// Returns the result text as the tool-call's reply content, never a Go error,
// matching the Model Client's expectation that every tool call produces a
// message back to the model.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) string {
	t, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("Error: Tool '%s' not found", name)
	}

	if err := validateParams(t.Parameters(), params); err != nil {
		return fmt.Sprintf("Error executing %s: %s", name, err)
	}

	tctx, cancel := context.WithTimeout(ctx, toolTimeout(name))
	defer cancel()

	type outcome struct {
		result string
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("tools.registry: tool panicked", "tool", name, "panic", r)
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		result, err := t.Execute(tctx, params)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return fmt.Sprintf("Error executing %s: %s", name, o.err)
		}
		return o.result
	case <-tctx.Done():
		return fmt.Sprintf("Error executing %s: timed out", name)
	}
}

// paramSchema is the subset of JSON-Schema draft the built-in tools declare
// via Parameters(): an object with named properties and a required list.
type paramSchema struct {
	Properties map[string]propSchema `json:"properties"`
	Required   []string              `json:"required"`
}

type propSchema struct {
	Type      string      `json:"type"`
	MaxLength int         `json:"maxLength"`
	MaxItems  int         `json:"maxItems"`
	Items     *propSchema `json:"items"`
}

// validateParams checks params against a tool's declared JSON-Schema before
// the handler ever runs: every required property must be present, every
// present property's type must match, and declared string/array length
// bounds must be respected. No ecosystem JSON-Schema validator appears
// anywhere in the example pack — the jsonschema libraries the pack pulls in
// (invopop/jsonschema, google/jsonschema-go) generate schemas from structs,
// they don't validate arbitrary data against one — so this walks the small,
// fixed schema shape the built-in tools actually declare by hand.
func validateParams(raw json.RawMessage, params map[string]any) error {
	var schema paramSchema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil // malformed declared schema: nothing to enforce
	}

	for _, req := range schema.Required {
		if _, ok := params[req]; !ok {
			return fmt.Errorf("missing required parameter %q", req)
		}
	}

	for name, prop := range schema.Properties {
		val, present := params[name]
		if !present {
			continue
		}
		if err := validateProp(name, prop, val); err != nil {
			return err
		}
	}
	return nil
}

func validateProp(name string, prop propSchema, val any) error {
	switch prop.Type {
	case "string":
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("parameter %q must be a string", name)
		}
		if prop.MaxLength > 0 && len(s) > prop.MaxLength {
			return fmt.Errorf("parameter %q exceeds max length %d", name, prop.MaxLength)
		}
	case "integer", "number":
		switch val.(type) {
		case float64, int, int64:
		default:
			return fmt.Errorf("parameter %q must be a number", name)
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("parameter %q must be a boolean", name)
		}
	case "array":
		arr, ok := val.([]any)
		if !ok {
			return fmt.Errorf("parameter %q must be an array", name)
		}
		if prop.MaxItems > 0 && len(arr) > prop.MaxItems {
			return fmt.Errorf("parameter %q exceeds max items %d", name, prop.MaxItems)
		}
		if prop.Items != nil && prop.Items.Type == "string" && prop.Items.MaxLength > 0 {
			for i, el := range arr {
				s, ok := el.(string)
				if !ok {
					return fmt.Errorf("parameter %q[%d] must be a string", name, i)
				}
				if len(s) > prop.Items.MaxLength {
					return fmt.Errorf("parameter %q[%d] exceeds max length %d", name, i, prop.Items.MaxLength)
				}
			}
		}
	case "object", "":
		// no further structural validation for nested objects or untyped properties
	}
	return nil
}
