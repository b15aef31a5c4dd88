package tools

import (
	"context"
	"encoding/json"

	"github.com/crystaldolphin/crystaldolphin/internal/errs"
	"github.com/crystaldolphin/crystaldolphin/internal/schema"
)

// MemoryWriteTool is the memory.write tool: it lets the model record a daily
// journal line, a long-term fact under a named section, or both in one call.
type MemoryWriteTool struct {
	store schema.MemoryStore
}

// NewMemoryWriteTool creates a MemoryWriteTool backed by the given MemoryStore.
func NewMemoryWriteTool(store schema.MemoryStore) *MemoryWriteTool {
	return &MemoryWriteTool{store: store}
}

func (t *MemoryWriteTool) Name() string { return "memory.write" }
func (t *MemoryWriteTool) Description() string {
	return "Record something worth remembering: a daily note, a durable fact under a long-term section, or both."
}

func (t *MemoryWriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"daily_note": {
				"type": "string",
				"description": "A short line to append to today's journal."
			},
			"section": {
				"type": "string",
				"description": "Long-term section heading to file the fact under, e.g. 'Preferences'."
			},
			"fact": {
				"type": "string",
				"description": "Durable fact to append under section. Requires section."
			}
		}
	}`)
}

func (t *MemoryWriteTool) Execute(_ context.Context, args map[string]any) (string, error) {
	daily, _ := args["daily_note"].(string)
	section, _ := args["section"].(string)
	fact, _ := args["fact"].(string)

	if daily == "" && fact == "" {
		return "", errs.New(errs.InvalidArguments, "at least one of daily_note or fact is required")
	}
	if fact != "" && section == "" {
		return "", errs.New(errs.InvalidArguments, "section is required when fact is set")
	}

	var wrote []string
	if daily != "" {
		if err := t.store.AppendDaily(daily); err != nil {
			return "", err
		}
		wrote = append(wrote, "daily note")
	}
	if fact != "" {
		if err := t.store.WriteLongTerm(section, fact); err != nil {
			return "", err
		}
		wrote = append(wrote, "long-term fact under "+section)
	}

	t.store.RememberShortTerm(daily + " " + fact)

	result := "saved: "
	for i, w := range wrote {
		if i > 0 {
			result += ", "
		}
		result += w
	}
	return result, nil
}
