package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crystaldolphin/crystaldolphin/internal/errs"
	"github.com/crystaldolphin/crystaldolphin/internal/skills"
)

// SkillCreateTool lets the model author a new reusable skill.
type SkillCreateTool struct {
	mgr *skills.Manager
}

func NewSkillCreateTool(mgr *skills.Manager) *SkillCreateTool { return &SkillCreateTool{mgr: mgr} }

func (t *SkillCreateTool) Name() string        { return "skill.create" }
func (t *SkillCreateTool) Description() string { return "Create a new workspace skill." }
func (t *SkillCreateTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string", "description": "Lowercase identifier, e.g. 'pdf-export'"},
			"description": {"type": "string", "description": "One-line description"},
			"body": {"type": "string", "description": "Skill instructions body (markdown, after frontmatter)"}
		},
		"required": ["name", "description", "body"]
	}`)
}

func (t *SkillCreateTool) Execute(_ context.Context, params map[string]any) (string, error) {
	name, _ := params["name"].(string)
	description, _ := params["description"].(string)
	body, _ := params["body"].(string)
	if name == "" || body == "" {
		return "", errs.New(errs.InvalidArguments, "name and body are required")
	}
	if err := t.mgr.Create(name, description, body); err != nil {
		return "", err
	}
	return fmt.Sprintf("created skill %s", name), nil
}

// SkillReadTool returns the full SKILL.md of a named skill.
type SkillReadTool struct {
	mgr *skills.Manager
}

func NewSkillReadTool(mgr *skills.Manager) *SkillReadTool { return &SkillReadTool{mgr: mgr} }

func (t *SkillReadTool) Name() string        { return "skill.read" }
func (t *SkillReadTool) Description() string { return "Read a workspace skill's full content." }
func (t *SkillReadTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"name": {"type": "string"}},
		"required": ["name"]
	}`)
}

func (t *SkillReadTool) Execute(_ context.Context, params map[string]any) (string, error) {
	name, _ := params["name"].(string)
	if name == "" {
		return "", errs.New(errs.InvalidArguments, "name is required")
	}
	return t.mgr.Read(name)
}

// SkillListTool lists all available skills.
type SkillListTool struct {
	mgr *skills.Manager
}

func NewSkillListTool(mgr *skills.Manager) *SkillListTool { return &SkillListTool{mgr: mgr} }

func (t *SkillListTool) Name() string        { return "skill.list" }
func (t *SkillListTool) Description() string { return "List all workspace skills." }
func (t *SkillListTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *SkillListTool) Execute(_ context.Context, _ map[string]any) (string, error) {
	all := t.mgr.List(false)
	if len(all) == 0 {
		return "No skills defined.", nil
	}
	out := ""
	for _, s := range all {
		out += "- " + s.Name + "\n"
	}
	return out, nil
}

// SkillDeleteTool removes a workspace skill.
type SkillDeleteTool struct {
	mgr *skills.Manager
}

func NewSkillDeleteTool(mgr *skills.Manager) *SkillDeleteTool { return &SkillDeleteTool{mgr: mgr} }

func (t *SkillDeleteTool) Name() string        { return "skill.delete" }
func (t *SkillDeleteTool) Description() string { return "Delete a workspace skill." }
func (t *SkillDeleteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"name": {"type": "string"}},
		"required": ["name"]
	}`)
}

func (t *SkillDeleteTool) Execute(_ context.Context, params map[string]any) (string, error) {
	name, _ := params["name"].(string)
	if name == "" {
		return "", errs.New(errs.InvalidArguments, "name is required")
	}
	if err := t.mgr.Delete(name); err != nil {
		return "", err
	}
	return fmt.Sprintf("deleted skill %s", name), nil
}
