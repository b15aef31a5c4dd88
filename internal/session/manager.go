package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crystaldolphin/crystaldolphin/internal/errs"
	"github.com/crystaldolphin/crystaldolphin/internal/schema"
)

// TTL is the idle duration after which a session is pruned from memory and disk.
const TTL = 30 * 24 * time.Hour

// Manager holds all sessions in memory under a read-mostly lock and tracks a
// separate dirty-set of session ids modified since the last flush.
type Manager struct {
	sessionsDir string

	mu       sync.RWMutex
	sessions map[string]*Session

	dirtyMu sync.Mutex
	dirty   map[string]struct{}
}

// NewManager creates a Manager rooted at <workspace>/sessions/.
func NewManager(workspace string) (*Manager, error) {
	dir := filepath.Join(workspace, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.Storage, "create sessions dir", err)
	}
	return &Manager{
		sessionsDir: dir,
		sessions:    make(map[string]*Session),
		dirty:       make(map[string]struct{}),
	}, nil
}

// GetOrCreate returns the existing session for (channel, chatID), or
// initializes a fresh one. Refreshes LastAccessed.
func (m *Manager) GetOrCreate(channel, chatID string) *Session {
	id := channel + "_" + chatID

	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.mu.Lock()
		s.LastAccessed = time.Now().UTC()
		s.mu.Unlock()
		return s
	}

	s = newSession(id, channel, chatID)

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return existing
	}
	m.sessions[id] = s
	m.mu.Unlock()
	return s
}

// Append appends msg to the session identified by id and marks it dirty.
func (m *Manager) Append(id string, msg schema.Message) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	s.Append(msg)
	m.markDirty(id)
}

func (m *Manager) markDirty(id string) {
	m.dirtyMu.Lock()
	m.dirty[id] = struct{}{}
	m.dirtyMu.Unlock()
}

// SaveDirty drains the dirty-set, takes a consistent snapshot of each
// affected session, and writes them in parallel. On a per-file error the
// session is re-marked dirty and the error is collected; SaveDirty returns
// the count of sessions successfully flushed.
func (m *Manager) SaveDirty() (int, error) {
	m.dirtyMu.Lock()
	ids := make([]string, 0, len(m.dirty))
	for id := range m.dirty {
		ids = append(ids, id)
	}
	m.dirty = make(map[string]struct{})
	m.dirtyMu.Unlock()

	if len(ids) == 0 {
		return 0, nil
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		okCount int
		firstErr error
	)

	for _, id := range ids {
		m.mu.RLock()
		s, ok := m.sessions[id]
		m.mu.RUnlock()
		if !ok {
			continue
		}

		wg.Add(1)
		go func(id string, s *Session) {
			defer wg.Done()
			snap := s.snapshot()
			if err := m.writeSession(&snap); err != nil {
				slog.Error("session.save_dirty: write failed", "id", id, "err", err)
				m.markDirty(id)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			mu.Lock()
			okCount++
			mu.Unlock()
		}(id, s)
	}

	wg.Wait()
	return okCount, firstErr
}

// CleanupExpired removes sessions whose LastAccessed is older than TTL,
// relative to now, from memory and disk.
func (m *Manager) CleanupExpired(now time.Time) int {
	m.mu.Lock()
	var toRemove []string
	for id, s := range m.sessions {
		s.mu.Lock()
		expired := now.Sub(s.LastAccessed) > TTL
		s.mu.Unlock()
		if expired {
			toRemove = append(toRemove, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, id := range toRemove {
		if err := os.Remove(m.path(id)); err != nil && !os.IsNotExist(err) {
			slog.Warn("session.cleanup: remove failed", "id", id, "err", err)
		}
	}
	return len(toRemove)
}

// LoadAll scans the sessions directory on startup. Malformed or unreadable
// files are quarantined (renamed .corrupt) and a warning logged; a malformed
// file never aborts startup.
func (m *Manager) LoadAll() (int, error) {
	entries, err := os.ReadDir(m.sessionsDir)
	if err != nil {
		return 0, errs.Wrap(errs.Storage, "read sessions dir", err)
	}

	count := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(m.sessionsDir, e.Name())
		s, err := m.readSession(path)
		if err != nil {
			slog.Warn("session.load_all: quarantining corrupt file", "path", path, "err", err)
			quarantined := path + ".corrupt"
			if rerr := os.Rename(path, quarantined); rerr != nil {
				slog.Error("session.load_all: quarantine failed", "path", path, "err", rerr)
			}
			continue
		}

		m.mu.Lock()
		m.sessions[s.ID] = s
		m.mu.Unlock()
		count++
	}
	return count, nil
}

// ---------------------------------------------------------------------------
// Wire format: a single pretty-printed JSON document per session.

type wireSession struct {
	SessionID    string        `json:"session_id"`
	Channel      string        `json:"channel"`
	ChatID       string        `json:"chat_id"`
	CreatedAt    string        `json:"created_at"`
	LastAccessed string        `json:"last_accessed"`
	Messages     []wireMessage `json:"messages"`
}

type wireMessage struct {
	Role             string           `json:"role"`
	Content          any              `json:"content"`
	ToolCalls        []map[string]any `json:"tool_calls"`
	ToolCallID       string           `json:"tool_call_id,omitempty"`
	ToolName         string           `json:"tool_name,omitempty"`
	ReasoningContent string           `json:"reasoning_content,omitempty"`
	Timestamp        string           `json:"timestamp"`
}

// writeSession serializes s and writes it atomically: serialize to a
// temporary file in the same directory, fsync, rename over the target, then
// chmod 0600.
func (m *Manager) writeSession(s *Session) error {
	path := m.path(s.ID)

	wire := wireSession{
		SessionID:    s.ID,
		Channel:      s.Channel,
		ChatID:       s.ChatID,
		CreatedAt:    s.CreatedAt.UTC().Format(time.RFC3339),
		LastAccessed: s.LastAccessed.UTC().Format(time.RFC3339),
	}
	for _, msg := range s.Messages.Messages {
		wire.Messages = append(wire.Messages, toWireMessage(msg))
	}

	data, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return errs.Wrap(errs.Internal, "marshal session", err)
	}

	tmp, err := os.CreateTemp(m.sessionsDir, ".tmp-session-*")
	if err != nil {
		return errs.Wrap(errs.Storage, "create temp file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.Wrap(errs.Storage, "write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.Wrap(errs.Storage, "fsync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(errs.Storage, "close temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(errs.Storage, "rename into place", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return errs.Wrap(errs.Storage, "chmod session file", err)
	}
	return nil
}

func (m *Manager) readSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var wire wireSession
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, errs.Wrap(errs.Corrupt, "unmarshal session", err)
	}

	createdAt, err := time.Parse(time.RFC3339, wire.CreatedAt)
	if err != nil {
		return nil, errs.Wrap(errs.Corrupt, "parse created_at", err)
	}
	lastAccessed, err := time.Parse(time.RFC3339, wire.LastAccessed)
	if err != nil {
		return nil, errs.Wrap(errs.Corrupt, "parse last_accessed", err)
	}

	msgs := schema.NewMessages()
	for _, w := range wire.Messages {
		msgs.Add(fromWireMessage(w))
	}
	// Keep messages sorted by non-decreasing timestamp, defensively.
	sort.SliceStable(msgs.Messages, func(i, j int) bool {
		return msgs.Messages[i].Timestamp.Before(msgs.Messages[j].Timestamp)
	})

	return &Session{
		ID:           wire.SessionID,
		Channel:      wire.Channel,
		ChatID:       wire.ChatID,
		CreatedAt:    createdAt,
		LastAccessed: lastAccessed,
		Messages:     msgs,
	}, nil
}

func toWireMessage(msg schema.Message) wireMessage {
	w := wireMessage{
		Role:       msg.Role,
		ToolCallID: msg.ToolCallID,
		ToolName:   msg.ToolName,
		Timestamp:  msg.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	switch c := msg.Content.(type) {
	case *string:
		if c != nil {
			w.Content = *c
		}
	default:
		w.Content = c
	}
	if msg.ReasoningContent != nil {
		w.ReasoningContent = *msg.ReasoningContent
	}
	for _, tc := range msg.ToolCalls {
		w.ToolCalls = append(w.ToolCalls, tc.ToWireMap())
	}
	return w
}

func fromWireMessage(w wireMessage) schema.Message {
	msg := schema.Message{
		Role:       w.Role,
		Content:    w.Content,
		ToolCallID: w.ToolCallID,
		ToolName:   w.ToolName,
	}
	if ts, err := time.Parse(time.RFC3339Nano, w.Timestamp); err == nil {
		msg.Timestamp = ts
	}
	if w.ReasoningContent != "" {
		rc := w.ReasoningContent
		msg.ReasoningContent = &rc
	}
	for _, tc := range w.ToolCalls {
		fn, _ := tc["function"].(map[string]any)
		id, _ := tc["id"].(string)
		name, _ := fn["name"].(string)
		argsStr, _ := fn["arguments"].(string)
		var args map[string]any
		_ = json.Unmarshal([]byte(argsStr), &args)
		msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{ID: id, Name: name, Arguments: args})
	}
	return msg
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.sessionsDir, fmt.Sprintf("%s.json", id))
}
