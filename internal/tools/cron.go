package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/crystaldolphin/crystaldolphin/internal/errs"
	"github.com/crystaldolphin/crystaldolphin/internal/schema"
)

// routingSep separates the origin channel/chat prefix from the human
// reminder text inside a job's stored payload, so a fired job can be routed
// back to whoever scheduled it. Chosen because it cannot occur in chat IDs
// or ordinary reminder text.
const routingSep = "\x1f"

// encodeCronPayload packs the origin channel/chat into a job payload.
func encodeCronPayload(ctx context.Context, message string) string {
	tc := TurnCtx(ctx)
	channel, chatID := tc.Channel, tc.ChatID
	if channel == "" {
		channel = "cli"
	}
	if chatID == "" {
		chatID = "direct"
	}
	return channel + routingSep + chatID + routingSep + message
}

// DecodeCronPayload unpacks a job payload produced by encodeCronPayload into
// its origin channel, chat ID, and human reminder text. Used by the gateway
// when a job fires to route the reminder back to its origin.
func DecodeCronPayload(payload string) (channel, chatID, message string) {
	parts := strings.SplitN(payload, routingSep, 3)
	if len(parts) != 3 {
		return "cli", "direct", payload
	}
	return parts[0], parts[1], parts[2]
}

func decodeCronMessage(payload string) string {
	_, _, message := DecodeCronPayload(payload)
	return message
}

// CronOnceTool schedules a one-shot reminder at a given instant.
type CronOnceTool struct {
	svc schema.CronService
}

func NewCronOnceTool(svc schema.CronService) *CronOnceTool { return &CronOnceTool{svc: svc} }

func (t *CronOnceTool) Name() string        { return "cron.once" }
func (t *CronOnceTool) Description() string { return "Schedule a one-time reminder for a future instant." }
func (t *CronOnceTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"at": {"type": "string", "description": "RFC3339 datetime to fire at"},
			"message": {"type": "string", "description": "Reminder payload"}
		},
		"required": ["at", "message"]
	}`)
}

func (t *CronOnceTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	atStr, _ := params["at"].(string)
	message, _ := params["message"].(string)
	if atStr == "" || message == "" {
		return "", errs.New(errs.InvalidArguments, "at and message are required")
	}
	at, err := time.Parse(time.RFC3339, atStr)
	if err != nil {
		return "", errs.Wrap(errs.InvalidArguments, "invalid 'at' datetime", err)
	}
	id, err := t.svc.AddFireAt(at, encodeCronPayload(ctx, message))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("scheduled one-time job %s for %s", id, at.Format(time.RFC3339)), nil
}

// CronEveryTool schedules a recurring reminder at a fixed interval or cron expression.
type CronEveryTool struct {
	svc schema.CronService
}

func NewCronEveryTool(svc schema.CronService) *CronEveryTool { return &CronEveryTool{svc: svc} }

func (t *CronEveryTool) Name() string { return "cron.every" }
func (t *CronEveryTool) Description() string {
	return "Schedule a recurring reminder, either every N seconds (minimum 120) or on a cron expression."
}
func (t *CronEveryTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"every_seconds": {"type": "integer", "description": "Interval in seconds, minimum 120"},
			"cron_expr": {"type": "string", "description": "5-field cron expression, e.g. '0 9 * * *'"},
			"message": {"type": "string", "description": "Reminder payload"}
		},
		"required": ["message"]
	}`)
}

func (t *CronEveryTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	message, _ := params["message"].(string)
	if message == "" {
		return "", errs.New(errs.InvalidArguments, "message is required")
	}
	payload := encodeCronPayload(ctx, message)

	if expr, ok := params["cron_expr"].(string); ok && expr != "" {
		id, err := t.svc.AddCronExpr(expr, payload)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("scheduled recurring job %s (cron: %s)", id, expr), nil
	}

	seconds, ok := numericToInt64(params["every_seconds"])
	if !ok || seconds <= 0 {
		return "", errs.New(errs.InvalidArguments, "either every_seconds or cron_expr is required")
	}
	id, err := t.svc.AddInterval(time.Duration(seconds)*time.Second, payload)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("scheduled recurring job %s (every %ds)", id, seconds), nil
}

// CronListTool lists all pending cron jobs.
type CronListTool struct {
	svc schema.CronService
}

func NewCronListTool(svc schema.CronService) *CronListTool { return &CronListTool{svc: svc} }

func (t *CronListTool) Name() string        { return "cron.list" }
func (t *CronListTool) Description() string { return "List all scheduled cron jobs." }
func (t *CronListTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *CronListTool) Execute(_ context.Context, _ map[string]any) (string, error) {
	jobs := t.svc.List()
	if len(jobs) == 0 {
		return "No scheduled jobs.", nil
	}
	out := "Scheduled jobs:\n"
	for _, j := range jobs {
		out += fmt.Sprintf("- %s (%s) next=%s: %s\n", j.ID, j.Kind, j.Next.Format(time.RFC3339), decodeCronMessage(j.Payload))
	}
	return out, nil
}

// numericToInt64 converts float64 or int from JSON params to int64.
func numericToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
