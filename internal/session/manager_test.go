package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/crystaldolphin/crystaldolphin/internal/schema"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestGetOrCreate_SameIDReturnsSameSession(t *testing.T) {
	m := newTestManager(t)
	a := m.GetOrCreate("telegram", "123")
	b := m.GetOrCreate("telegram", "123")
	if a != b {
		t.Fatal("expected GetOrCreate to return the same session for the same (channel, chatID)")
	}
	if a.ID != "telegram_123" {
		t.Errorf("unexpected session id: %q", a.ID)
	}
}

func TestAppend_EvictsOldestNonSystemPastCap(t *testing.T) {
	m := newTestManager(t)
	sess := m.GetOrCreate("cli", "direct")

	m.Append(sess.ID, schema.NewSystemMessage("pinned"))
	for i := 0; i < MaxMessages+10; i++ {
		m.Append(sess.ID, schema.NewUserMessage("msg"))
	}

	hist := sess.History()
	if len(hist.Messages) != MaxMessages {
		t.Fatalf("expected history capped at %d, got %d", MaxMessages, len(hist.Messages))
	}
	if hist.Messages[0].Role != "system" {
		t.Errorf("expected the system message to survive eviction, got role %q first", hist.Messages[0].Role)
	}
}

func TestSaveDirty_RoundTrip(t *testing.T) {
	m := newTestManager(t)
	sess := m.GetOrCreate("slack", "c1")
	m.Append(sess.ID, schema.NewUserMessage("hello"))
	content := "hi there"
	m.Append(sess.ID, schema.NewAssistantMessage(&content, nil, nil))

	n, err := m.SaveDirty()
	if err != nil {
		t.Fatalf("SaveDirty: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 session flushed, got %d", n)
	}

	m2, err := NewManager(filepath.Dir(m.sessionsDir))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	count, err := m2.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 loaded session, got %d", count)
	}

	loaded := m2.GetOrCreate("slack", "c1")
	hist := loaded.History()
	if len(hist.Messages) != 2 {
		t.Fatalf("expected 2 messages round-tripped, got %d", len(hist.Messages))
	}
}

func TestSaveDirty_NothingDirtyIsNoop(t *testing.T) {
	m := newTestManager(t)
	n, err := m.SaveDirty()
	if err != nil {
		t.Fatalf("SaveDirty: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 sessions flushed, got %d", n)
	}
}

func TestWriteSession_FilePermissions(t *testing.T) {
	m := newTestManager(t)
	sess := m.GetOrCreate("cli", "direct")
	m.Append(sess.ID, schema.NewUserMessage("hi"))
	if _, err := m.SaveDirty(); err != nil {
		t.Fatalf("SaveDirty: %v", err)
	}

	info, err := os.Stat(m.path(sess.ID))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600, got %04o", perm)
	}
}

func TestCleanupExpired_RemovesStaleSessions(t *testing.T) {
	m := newTestManager(t)
	sess := m.GetOrCreate("cli", "direct")
	sess.mu.Lock()
	sess.LastAccessed = time.Now().UTC().Add(-TTL - time.Hour)
	sess.mu.Unlock()

	n := m.CleanupExpired(time.Now().UTC())
	if n != 1 {
		t.Fatalf("expected 1 expired session removed, got %d", n)
	}
	if _, err := os.Stat(m.path(sess.ID)); !os.IsNotExist(err) {
		t.Error("expected session file removed from disk")
	}
}

func TestCleanupExpired_KeepsFreshSessions(t *testing.T) {
	m := newTestManager(t)
	m.GetOrCreate("cli", "direct")

	n := m.CleanupExpired(time.Now().UTC())
	if n != 0 {
		t.Errorf("expected 0 sessions removed, got %d", n)
	}
}

func TestLoadAll_QuarantinesCorruptFile(t *testing.T) {
	m := newTestManager(t)
	badPath := filepath.Join(m.sessionsDir, "bad_1.json")
	if err := os.WriteFile(badPath, []byte("{not valid json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	count, err := m.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 sessions loaded, got %d", count)
	}
	if _, err := os.Stat(badPath + ".corrupt"); err != nil {
		t.Error("expected corrupt file to be quarantined")
	}
}
