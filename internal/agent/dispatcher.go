package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/crystaldolphin/crystaldolphin/internal/bus"
	"github.com/crystaldolphin/crystaldolphin/internal/schema"
	"github.com/crystaldolphin/crystaldolphin/internal/session"
	"github.com/crystaldolphin/crystaldolphin/internal/tools"
)

// Dispatcher is the Receive step of the agent loop: it reads InboundMessages
// from the Hub, loads the addressed session, builds the full prompt via the
// context builder, runs a CoreAgent to completion, and publishes the
// OutboundMessage. Inbound messages are handled one at a time in queue order,
// so turns of one conversation never overlap or reorder. Implements
// schema.AgentLooper.
type Dispatcher struct {
	hub      *bus.Hub
	factory  *AgentFactory
	sessions *session.Manager
	ctx      *ContextBuilder

	memoryWindow int

	consolidating   map[string]bool
	consolidatingMu sync.Mutex

	inFlight sync.WaitGroup
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(hub *bus.Hub, factory *AgentFactory, sessions *session.Manager, cb *ContextBuilder, memoryWindow int) *Dispatcher {
	return &Dispatcher{
		hub:           hub,
		factory:       factory,
		sessions:      sessions,
		ctx:           cb,
		memoryWindow:  memoryWindow,
		consolidating: make(map[string]bool),
	}
}

// Run reads from the hub's inbound queue and processes each message to
// completion before reading the next. Blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("dispatcher: started")
	for {
		select {
		case msg := <-d.hub.ReceiveInbound():
			d.inFlight.Add(1)
			d.handleMessage(ctx, msg)
			d.inFlight.Done()
		case <-ctx.Done():
			slog.Info("dispatcher: stopping")
			return ctx.Err()
		}
	}
}

// ProcessDirect handles a message outside the normal bus flow (the CLI's
// single-message mode and heartbeat runs) and returns the final text.
func (d *Dispatcher) ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string) string {
	msg := bus.NewInboundMessage(bus.Channel(channel), "user", chatID, content)
	out := d.processMessage(ctx, msg, sessionKey)
	if out == nil {
		return ""
	}
	return out.Content()
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg bus.InboundMessage) {
	out := d.processMessage(ctx, msg, "")
	if out != nil {
		d.hub.SendOutbound(*out)
	}
}

func (d *Dispatcher) processMessage(ctx context.Context, msg bus.InboundMessage, sessionKeyOverride string) *bus.OutboundMessage {
	if msg.Channel() == bus.ChannelSystem || msg.Channel() == bus.ChannelCron {
		return d.handleRoutedMessage(ctx, msg)
	}

	preview := msg.Content()
	if len(preview) > 80 {
		preview = preview[:80] + "..."
	}
	slog.Info("dispatcher: processing", "channel", msg.Channel(), "sender", msg.SenderID(), "content", preview)

	channel, chatID := string(msg.Channel()), msg.ChatID()
	if sessionKeyOverride != "" {
		if c, id, ok := strings.Cut(sessionKeyOverride, ":"); ok {
			channel, chatID = c, id
		}
	}
	sess := d.sessions.GetOrCreate(channel, chatID)

	switch strings.TrimSpace(strings.ToLower(msg.Content())) {
	case "/new":
		d.sessions.Append(sess.ID, schema.NewUserMessage("[session cleared by /new]"))
		d.sessions.SaveDirty()
		return outboundReply(msg, "Started a new conversation.")
	case "/help":
		return outboundReply(msg, "miniclaw commands:\n/new - start a new conversation\n/help - show available commands")
	}

	msgID := ""
	if md := msg.Metadata(); md != nil {
		if v, ok := md["message_id"].(string); ok {
			msgID = v
		}
	}

	var sentFlag bool
	tc := tools.TurnContext{Channel: channel, ChatID: chatID, MsgID: msgID, MessageSent: &sentFlag}
	turnCtx := tools.WithTurnContext(ctx, tc)

	var media []string
	if md := msg.Metadata(); md != nil {
		if m, ok := md["media"].([]string); ok {
			media = m
		}
	}

	messages := d.ctx.BuildMessages(sess.History(), msg.Content(), media, channel, chatID)

	onProgress := func(content string) {
		out := bus.NewOutboundMessage(msg.Channel(), msg.ChatID(), content)
		out.SetMetadata(map[string]any{"_progress": true})
		d.hub.SendOutbound(out)
	}

	core := d.factory.NewCoreAgent()
	finalContent, toolsUsed := core.Execute(turnCtx, messages, onProgress)
	if finalContent == "" {
		finalContent = "I've completed processing but have no response to give."
	}

	userMsg := schema.NewUserMessage(msg.Content())
	assistantMsg := schema.NewAssistantMessage(&finalContent, nil, nil)
	assistantMsg.ToolsUsed = toolsUsed
	d.sessions.Append(sess.ID, userMsg)
	d.sessions.Append(sess.ID, assistantMsg)

	slog.Info("dispatcher: replied", "channel", channel, "chat_id", chatID, "length", len(finalContent))

	if sentFlag {
		return nil // the message tool already delivered a reply this turn
	}
	return outboundReply(msg, finalContent)
}

// handleRoutedMessage processes a synthetic message injected by a subagent or
// a fired cron job. The origin channel/chat are encoded in ChatID as
// "channel:chat_id" in both cases.
func (d *Dispatcher) handleRoutedMessage(ctx context.Context, msg bus.InboundMessage) *bus.OutboundMessage {
	channel, chatID, ok := strings.Cut(msg.ChatID(), ":")
	if !ok {
		channel, chatID = "cli", msg.ChatID()
	}
	slog.Info("dispatcher: processing system message", "sender", msg.SenderID())

	sess := d.sessions.GetOrCreate(channel, chatID)

	tc := tools.TurnContext{Channel: channel, ChatID: chatID}
	turnCtx := tools.WithTurnContext(ctx, tc)

	messages := d.ctx.BuildMessages(sess.History(), msg.Content(), nil, channel, chatID)

	core := d.factory.NewCoreAgent()
	finalContent, _ := core.Execute(turnCtx, messages, nil)
	if finalContent == "" {
		finalContent = "Background task completed."
	}

	d.sessions.Append(sess.ID, schema.NewUserMessage(fmt.Sprintf("[System: %s] %s", msg.SenderID(), msg.Content())))
	assistantMsg := schema.NewAssistantMessage(&finalContent, nil, nil)
	d.sessions.Append(sess.ID, assistantMsg)

	out := bus.NewOutboundMessage(bus.Channel(channel), chatID, finalContent)
	return &out
}

// MaintenanceLoop runs the Gateway's background housekeeping: flushing dirty
// sessions every persistInterval and pruning expired sessions every
// cleanupInterval. Blocks until ctx is cancelled; callers run it in its own
// goroutine.
func (d *Dispatcher) MaintenanceLoop(ctx context.Context, persistInterval, cleanupInterval time.Duration) {
	persistTicker := time.NewTicker(persistInterval)
	cleanupTicker := time.NewTicker(cleanupInterval)
	defer persistTicker.Stop()
	defer cleanupTicker.Stop()

	for {
		select {
		case <-persistTicker.C:
			if n, err := d.sessions.SaveDirty(); err != nil {
				slog.Error("dispatcher: save_dirty failed", "err", err)
			} else if n > 0 {
				slog.Debug("dispatcher: flushed dirty sessions", "count", n)
			}
		case <-cleanupTicker.C:
			if n := d.sessions.CleanupExpired(time.Now()); n > 0 {
				slog.Info("dispatcher: pruned expired sessions", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown waits up to timeout for in-flight turns started by Run to finish,
// then flushes any remaining dirty sessions. Callers invoke this once, after
// cancelling the context passed to Run, as the last step before exiting.
func (d *Dispatcher) Shutdown(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		d.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		slog.Warn("dispatcher: shutdown timed out waiting for in-flight turns", "timeout", timeout)
	}

	if n, err := d.sessions.SaveDirty(); err != nil {
		slog.Error("dispatcher: final save_dirty failed", "err", err)
	} else if n > 0 {
		slog.Info("dispatcher: final save_dirty flushed sessions", "count", n)
	}
}

func outboundReply(msg bus.InboundMessage, content string) *bus.OutboundMessage {
	out := bus.NewOutboundMessage(msg.Channel(), msg.ChatID(), content)
	if md := msg.Metadata(); md != nil {
		out.SetMetadata(md)
	}
	return &out
}
