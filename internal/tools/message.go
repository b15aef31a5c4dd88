package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crystaldolphin/crystaldolphin/internal/bus"
	"github.com/crystaldolphin/crystaldolphin/internal/errs"
)

// MessageTool sends a message to the user on a chat channel. It reads the
// current turn's channel/chat_id from TurnCtx and flips the turn's
// MessageSent flag so the agent loop can suppress a redundant automatic reply.
type MessageTool struct {
	hub *bus.Hub
}

// NewMessageTool creates a MessageTool backed by a Hub.
func NewMessageTool(hub *bus.Hub) *MessageTool {
	return &MessageTool{hub: hub}
}

func (t *MessageTool) Name() string { return "message" }
func (t *MessageTool) Description() string {
	return "Send a message to the user. Use this when you want to communicate something."
}
func (t *MessageTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"content": {
				"type": "string",
				"description": "The message content to send"
			},
			"media": {
				"type": "array",
				"items": {"type": "string"},
				"description": "Optional: list of file paths to attach (images, audio, documents)"
			}
		},
		"required": ["content"]
	}`)
}

func (t *MessageTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	content, _ := params["content"].(string)
	if content == "" {
		return "", errs.New(errs.InvalidArguments, "content is required")
	}

	tc := TurnCtx(ctx)
	if tc.Channel == "" || tc.ChatID == "" {
		return "", errs.New(errs.Internal, "no turn context (channel/chat_id)")
	}

	var media []string
	if m, ok := params["media"].([]any); ok {
		for _, item := range m {
			if s, ok := item.(string); ok {
				media = append(media, s)
			}
		}
	}

	out := bus.NewOutboundMessage(bus.Channel(tc.Channel), tc.ChatID, content)
	out.SetMedia(media)
	if err := t.hub.SendOutbound(out); err != nil {
		return "", errs.Wrap(errs.Transport, "send outbound message", err)
	}

	if tc.MessageSent != nil {
		*tc.MessageSent = true
	}

	info := ""
	if len(media) > 0 {
		info = fmt.Sprintf(" with %d attachments", len(media))
	}
	return fmt.Sprintf("Message sent to %s:%s%s", tc.Channel, tc.ChatID, info), nil
}
