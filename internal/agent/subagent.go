package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/crystaldolphin/crystaldolphin/internal/bus"
	"github.com/crystaldolphin/crystaldolphin/internal/schema"
	"github.com/crystaldolphin/crystaldolphin/internal/tools"
)

// subagentMaxIter caps a delegated subagent's own tool-iteration loop,
// independent of and shorter than the main agent's cap.
const subagentMaxIter = 15

// SubagentManager backs the subagent.delegate tool: it runs a task to
// completion in its own isolated tool registry (fs, shell, web only; no
// message, cron, spawn, or further delegation) on a detached goroutine, then
// announces the result back through the hub as a synthetic inbound message
// so the main agent can relay it to the user in its own voice.
type SubagentManager struct {
	provider            schema.LLMProvider
	workspace           string
	hub                 *bus.Hub
	model               string
	temperature         float64
	maxTokens           int
	webSearchAPIKey     string
	execTimeoutSeconds  int
	restrictToWorkspace bool

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewSubagentManager creates a SubagentManager.
func NewSubagentManager(
	provider schema.LLMProvider,
	workspace string,
	hub *bus.Hub,
	model string,
	temperature float64,
	maxTokens int,
	webSearchAPIKey string,
	execTimeoutSeconds int,
	restrictToWorkspace bool,
) *SubagentManager {
	return &SubagentManager{
		provider:            provider,
		workspace:           workspace,
		hub:                 hub,
		model:               model,
		temperature:         temperature,
		maxTokens:           maxTokens,
		webSearchAPIKey:     webSearchAPIKey,
		execTimeoutSeconds:  execTimeoutSeconds,
		restrictToWorkspace: restrictToWorkspace,
		running:             make(map[string]context.CancelFunc),
	}
}

// Spawn starts a background subagent goroutine and returns immediately.
// Backs the subagent.delegate tool.
func (sm *SubagentManager) Spawn(ctx context.Context, task, label, originChannel, originChatID string) (string, error) {
	id := shortID()
	if label == "" {
		label = task
		if len(label) > 30 {
			label = label[:30] + "..."
		}
	}

	subCtx, cancel := context.WithCancel(context.Background()) // detached from the caller's turn
	sm.mu.Lock()
	sm.running[id] = cancel
	sm.mu.Unlock()

	go func() {
		defer func() {
			sm.mu.Lock()
			delete(sm.running, id)
			sm.mu.Unlock()
			cancel()
		}()
		sm.runSubagent(subCtx, id, task, label, originChannel, originChatID)
	}()

	slog.Info("subagent: delegated", "id", id, "label", label)
	return fmt.Sprintf("Delegated [%s] (id: %s). I'll relay the result when it finishes.", label, id), nil
}

// RunningCount returns the number of currently running subagents.
func (sm *SubagentManager) RunningCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.running)
}

func (sm *SubagentManager) runSubagent(ctx context.Context, id, task, label, originChannel, originChatID string) {
	slog.Info("subagent: starting", "id", id, "label", label)

	finalResult, err := sm.executeTask(ctx, task)
	status := "completed successfully"
	if err != nil {
		finalResult = "Error: " + err.Error()
		status = "failed"
		slog.Error("subagent: failed", "id", id, "err", err)
	} else {
		slog.Info("subagent: completed", "id", id)
	}

	sm.announceResult(label, task, finalResult, status, originChannel, originChatID)
}

// executeTask runs task to completion in an isolated registry and its own
// bounded loop, sharing the Receive-Think-Act body with the main agent loop
// via LoopRunner.
func (sm *SubagentManager) executeTask(ctx context.Context, task string) (string, error) {
	allowedDir := ""
	if sm.restrictToWorkspace {
		allowedDir = sm.workspace
	}

	reg := tools.NewRegistryBuilder().
		WithTool(tools.NewReadFileTool(sm.workspace, allowedDir)).
		WithTool(tools.NewWriteFileTool(sm.workspace, allowedDir)).
		WithTool(tools.NewListDirTool(sm.workspace, allowedDir)).
		WithTool(tools.NewDeleteFileTool(sm.workspace, allowedDir)).
		WithTool(tools.NewExecTool(sm.workspace, sm.execTimeoutSeconds, sm.restrictToWorkspace)).
		WithTool(tools.NewWebSearchTool(sm.webSearchAPIKey, 5)).
		WithTool(tools.NewWebGetTool(0)).
		Build()
	tls := tools.NewToolList(reg)

	conversation := schema.NewMessages()
	conversation.AddSystem(sm.buildPrompt())
	conversation.AddUser(task)

	settings := schema.NewAgentSettings(sm.model, subagentMaxIter, sm.temperature, sm.maxTokens, 0)
	runner := newLoopRunner(sm.provider, settings)

	content, _ := runner.run(ctx, conversation, tls, nil)
	if content == "" {
		content = "Task completed but no final response was generated."
	}
	return content, nil
}

func (sm *SubagentManager) announceResult(label, task, result, status, originChannel, originChatID string) {
	content := fmt.Sprintf(`[Subagent '%s' %s]

Task: %s

Result:
%s

Summarize this naturally for the user. Keep it brief (1-2 sentences). Do not mention technical details like "subagent" or task IDs.`,
		label, status, task, result)

	in := bus.NewInboundMessage(bus.ChannelSystem, "subagent", originChannel+":"+originChatID, content)
	sm.hub.SendInbound(in)
}

func (sm *SubagentManager) buildPrompt() string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	tz, _ := time.Now().Zone()
	if tz == "" {
		tz = "UTC"
	}
	ws := expandHome(sm.workspace)
	goos := runtime.GOOS
	if goos == "darwin" {
		goos = "macOS"
	}

	return strings.Join([]string{
		"# Subagent",
		"",
		"## Current Time",
		now + " (" + tz + ")",
		"",
		"You are a subagent delegated a specific task by the main agent.",
		"",
		"## Rules",
		"1. Stay focused - complete only the assigned task, nothing else",
		"2. Your final response is reported back to the main agent",
		"3. Do not initiate conversations or take on side tasks",
		"4. Be concise but informative in your findings",
		"",
		"## What You Can Do",
		"- Read, write, list, and delete files in the workspace",
		"- Run shell commands",
		"- Search the web and fetch web pages",
		"",
		"## What You Cannot Do",
		"- Send messages directly to users (no message tool available)",
		"- Schedule reminders or delegate further subagents",
		"- Access the main agent's conversation history",
		"",
		"## Workspace",
		"Your workspace is at: " + ws,
		"OS: " + goos + " " + runtime.GOARCH,
		"",
		"When you have completed the task, provide a clear summary of your findings or actions.",
	}, "\n")
}

// shortID generates a short pseudo-unique id.
func shortID() string {
	return fmt.Sprintf("%08x", time.Now().UnixNano()&0xFFFFFFFF)
}
