package agent

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/crystaldolphin/crystaldolphin/internal/schema"
	"github.com/crystaldolphin/crystaldolphin/internal/skills"
)

// ContextBuilder assembles system prompts and message lists for the LLM in a
// fixed, non-negotiable order: identity preamble, bootstrap docs, a
// memory-use instruction, the skills section, the full long-term digest,
// recent daily notes, top-ranked memories for the current message, session
// history, then the user's message itself.
type ContextBuilder struct {
	workspace string
	memory    schema.MemoryStore
	skillsMgr *skills.Manager
}

// bootstrapFiles lists workspace files loaded into the system prompt, in
// assembly order.
var bootstrapFiles = []string{"SOUL.md", "AGENTS.md", "USER.md", "TOOLS.md", "HEARTBEAT.md"}

// rankedMemoryTopK is how many ranked memories are surfaced per message.
const rankedMemoryTopK = 5

// dailyNotesLookback is how many previous days of notes, beyond today, ride along.
const dailyNotesLookback = 6

// NewContextBuilder creates a ContextBuilder for the given workspace.
func NewContextBuilder(workspace string, memory schema.MemoryStore, skillsMgr *skills.Manager) *ContextBuilder {
	return &ContextBuilder{workspace: workspace, memory: memory, skillsMgr: skillsMgr}
}

// BuildMessages assembles the complete message list for one LLM turn,
// following the fixed 9-step order documented on ContextBuilder.
func (cb *ContextBuilder) BuildMessages(history schema.Messages, currentMessage string, media []string, channel, chatID string) schema.Messages {
	var sections []string

	sections = append(sections, cb.buildIdentity(channel, chatID)) // 1: preamble

	if bootstrap := cb.loadBootstrapFiles(); bootstrap != "" { // 2: bootstrap docs
		sections = append(sections, bootstrap)
	}

	sections = append(sections, memoryUseInstruction) // 3: memory-use instruction

	if skillsSection := cb.buildSkillsSection(); skillsSection != "" { // 4: skills
		sections = append(sections, skillsSection)
	}

	if cb.memory != nil {
		if digest := cb.memory.LongTermDigest(); digest != "" { // 5: full long-term digest
			sections = append(sections, "# Long-Term Memory\n\n"+digest)
		}

		if notes := cb.memory.DailyNotes(dailyNotesLookback); len(notes) > 0 { // 6: daily notes
			sections = append(sections, "# Recent Daily Notes\n\n"+formatDailyNotes(notes))
		}

		if ranked := cb.memory.Rank(currentMessage, rankedMemoryTopK); len(ranked) > 0 { // 7: ranked memories
			sections = append(sections, "# Relevant Memories\n\n"+formatRanked(ranked))
		}
	}

	systemPrompt := strings.Join(sections, "\n\n---\n\n")

	messages := schema.NewMessages()
	messages.AddSystem(systemPrompt)
	messages.Append(history) // 8: session history
	messages.AddUser(cb.buildUserContent(currentMessage, media)) // 9: current user message
	return messages
}

const memoryUseInstruction = `# Memory

You have short-term, long-term, and daily-note memory. Use the memory.write tool to record durable facts
(under a named section) or a daily journal line. Long-term memory and the last few days of notes are
included below; the most relevant entries for this message are ranked and surfaced separately.`

// buildIdentity returns the core identity/preamble section of the system prompt.
func (cb *ContextBuilder) buildIdentity(channel, chatID string) string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	tz, _ := time.Now().Zone()
	if tz == "" {
		tz = "UTC"
	}
	wsExpanded := expandHome(cb.workspace)
	goos := runtime.GOOS
	if goos == "darwin" {
		goos = "macOS"
	}
	runtimeStr := fmt.Sprintf("%s %s, Go %s", goos, runtime.GOARCH, runtime.Version())

	session := ""
	if channel != "" && chatID != "" {
		session = fmt.Sprintf("\n\n## Current Session\nChannel: %s\nChat ID: %s", channel, chatID)
	}

	return fmt.Sprintf(`# miniclaw

You are miniclaw, a helpful AI assistant running as an autonomous agent.

## Current Time
%s (%s)

## Runtime
%s

## Workspace
Your workspace is at: %s%s

Always be helpful, accurate, and concise. Before calling tools, briefly tell the user what you're about
to do (one short sentence in the user's language). Call tools directly rather than announcing them
without following through. Only use the 'message' tool to reach a specific chat channel; for ordinary
conversation just reply with text.`,
		now, tz, runtimeStr, wsExpanded, session)
}

// loadBootstrapFiles reads all bootstrap markdown files from the workspace,
// in fixed order, skipping any that don't exist.
func (cb *ContextBuilder) loadBootstrapFiles() string {
	var parts []string
	for _, name := range bootstrapFiles {
		p := filepath.Join(cb.workspace, name)
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", name, string(data)))
	}
	return strings.Join(parts, "\n\n")
}

// buildSkillsSection renders always-on skills in full plus a summary of the
// rest, for progressive loading via skill.read.
func (cb *ContextBuilder) buildSkillsSection() string {
	if cb.skillsMgr == nil {
		return ""
	}
	var parts []string

	if always := cb.skillsMgr.AlwaysOn(); len(always) > 0 {
		if content := cb.skillsMgr.LoadForContext(always); content != "" {
			parts = append(parts, "# Active Skills\n\n"+content)
		}
	}

	if summary := cb.skillsMgr.Summary(); summary != "" {
		parts = append(parts, "# Skills\n\nUse skill.read to load a skill's full instructions.\n\n"+summary)
	}

	return strings.Join(parts, "\n\n")
}

func formatDailyNotes(notes []schema.DailyNote) string {
	var sb strings.Builder
	for _, n := range notes {
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", n.Date, n.Content)
	}
	return strings.TrimSpace(sb.String())
}

func formatRanked(ranked []schema.RankedMemory) string {
	var sb strings.Builder
	for _, r := range ranked {
		fmt.Fprintf(&sb, "- (%s) %s\n", r.Source, r.Content)
	}
	return strings.TrimSpace(sb.String())
}

// buildUserContent builds user content, embedding base64 images when media is provided.
func (cb *ContextBuilder) buildUserContent(text string, media []string) any {
	if len(media) == 0 {
		return text
	}

	var blocks []map[string]any
	for _, path := range media {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
			continue
		}
		b64 := base64.StdEncoding.EncodeToString(data)
		blocks = append(blocks, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": fmt.Sprintf("data:%s;base64,%s", mimeType, b64)},
		})
	}

	if len(blocks) == 0 {
		return text
	}
	return append(blocks, map[string]any{"type": "text", "text": text})
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
