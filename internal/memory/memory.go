// Package memory implements the Memory Store: a process-local short-term
// ring, a section-structured long-term MEMORY.md, daily journal files, and a
// purely lexical ranker. No embeddings anywhere in this package.
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crystaldolphin/crystaldolphin/internal/errs"
	"github.com/crystaldolphin/crystaldolphin/internal/schema"
)

// ShortTermCap is the hard cap on the short-term ring.
const ShortTermCap = 100

// Store implements schema.MemoryStore.
type Store struct {
	memoryDir     string
	longTermPath  string

	shortMu   sync.Mutex
	shortTerm []schema.MemoryEntry

	snapMu    sync.Mutex
	snapshot  []section // cached parse of MEMORY.md, invalidated on write
	snapValid bool
}

type section struct {
	title string
	body  string
}

// New creates a Store rooted at <workspace>/memory/.
func New(workspace string) (*Store, error) {
	dir := filepath.Join(workspace, "memory")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.Storage, "create memory dir", err)
	}
	return &Store{
		memoryDir:    dir,
		longTermPath: filepath.Join(dir, "MEMORY.md"),
	}, nil
}

// RememberShortTerm appends to the in-process ring, evicting the oldest entry
// (FIFO) once the cap is reached. Never persisted.
func (s *Store) RememberShortTerm(content string) {
	s.shortMu.Lock()
	defer s.shortMu.Unlock()
	s.shortTerm = append(s.shortTerm, schema.MemoryEntry{Content: content, Timestamp: time.Now().UTC()})
	if len(s.shortTerm) > ShortTermCap {
		s.shortTerm = s.shortTerm[len(s.shortTerm)-ShortTermCap:]
	}
}

// ShortTerm returns a snapshot copy of the short-term ring.
func (s *Store) ShortTerm() []schema.MemoryEntry {
	s.shortMu.Lock()
	defer s.shortMu.Unlock()
	out := make([]schema.MemoryEntry, len(s.shortTerm))
	copy(out, s.shortTerm)
	return out
}

// dailyPath returns the path to the daily note file for t (UTC date).
func (s *Store) dailyPath(t time.Time) string {
	return filepath.Join(s.memoryDir, t.UTC().Format("2006-01-02")+".md")
}

// AppendDaily appends a line to today's daily note, creating it if absent.
// File mode 0600, per the spec's sensitive-file discipline.
func (s *Store) AppendDaily(content string) error {
	path := s.dailyPath(time.Now())
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return errs.Wrap(errs.Storage, "open daily note", err)
	}
	defer f.Close()

	line := strings.TrimRight(content, "\n\r ")
	ts := time.Now().UTC().Format("15:04")
	if _, err := fmt.Fprintf(f, "- [%s] %s\n", ts, line); err != nil {
		return errs.Wrap(errs.Storage, "write daily note", err)
	}
	return nil
}

// DailyNotes returns today's note plus up to maxPrevious previous days,
// most recent first. Missing files are simply omitted.
func (s *Store) DailyNotes(maxPrevious int) []schema.DailyNote {
	var out []schema.DailyNote
	now := time.Now().UTC()
	for i := 0; i <= maxPrevious; i++ {
		day := now.AddDate(0, 0, -i)
		date := day.Format("2006-01-02")
		data, err := os.ReadFile(s.dailyPath(day))
		if err != nil {
			continue
		}
		out = append(out, schema.DailyNote{Date: date, Content: string(data)})
	}
	return out
}

// WriteLongTerm appends content under a "## <section>" heading in MEMORY.md,
// creating the section if it does not already exist. Invalidates the parse
// cache.
func (s *Store) WriteLongTerm(sectionTitle, content string) error {
	secs, err := s.loadSections()
	if err != nil {
		return err
	}

	found := false
	for i := range secs {
		if strings.EqualFold(secs[i].title, sectionTitle) {
			secs[i].body = strings.TrimRight(secs[i].body, "\n") + "\n" + content + "\n"
			found = true
			break
		}
	}
	if !found {
		secs = append(secs, section{title: sectionTitle, body: content + "\n"})
	}

	var sb strings.Builder
	for _, sec := range secs {
		sb.WriteString("## " + sec.title + "\n\n")
		sb.WriteString(sec.body)
		sb.WriteString("\n")
	}

	if err := os.WriteFile(s.longTermPath, []byte(sb.String()), 0o600); err != nil {
		return errs.Wrap(errs.Storage, "write MEMORY.md", err)
	}

	s.snapMu.Lock()
	s.snapValid = false
	s.snapMu.Unlock()
	return nil
}

// LongTermDigest returns the full current MEMORY.md content, or "" if it
// does not yet exist.
func (s *Store) LongTermDigest() string {
	data, err := os.ReadFile(s.longTermPath)
	if err != nil {
		return ""
	}
	return string(data)
}

// loadSections parses MEMORY.md into its "## title" sections, using the
// cached parse unless WriteLongTerm has invalidated it.
func (s *Store) loadSections() ([]section, error) {
	s.snapMu.Lock()
	if s.snapValid {
		out := make([]section, len(s.snapshot))
		copy(out, s.snapshot)
		s.snapMu.Unlock()
		return out, nil
	}
	s.snapMu.Unlock()

	data, err := os.ReadFile(s.longTermPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.Storage, "read MEMORY.md", err)
	}

	secs := parseSections(string(data))

	s.snapMu.Lock()
	s.snapshot = secs
	s.snapValid = true
	s.snapMu.Unlock()

	out := make([]section, len(secs))
	copy(out, secs)
	return out, nil
}

func parseSections(content string) []section {
	var secs []section
	lines := strings.Split(content, "\n")
	var cur *section
	for _, line := range lines {
		if strings.HasPrefix(line, "## ") {
			if cur != nil {
				secs = append(secs, *cur)
			}
			cur = &section{title: strings.TrimSpace(strings.TrimPrefix(line, "## "))}
			continue
		}
		if cur != nil {
			cur.body += line + "\n"
		}
	}
	if cur != nil {
		secs = append(secs, *cur)
	}
	return secs
}

// ---------------------------------------------------------------------------
// Lexical ranker: tokenize lowercase, >=2-char words; substring-count
// scoring; recency tie-break; top-K; excerpts capped at 240 chars.

const excerptCap = 240

// tokenize splits s into lowercase words of length >= 2.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

// Rank scores every long-term section and daily-note entry against query by
// summed substring occurrence count of each query token, breaking ties by
// recency (daily notes carry their file date; long-term sections are
// considered "now" since they have no timestamp). Returns the top K.
func (s *Store) Rank(query string, topK int) []schema.RankedMemory {
	tokens := tokenize(query)
	if len(tokens) == 0 || topK <= 0 {
		return nil
	}

	var candidates []schema.RankedMemory

	secs, _ := s.loadSections()
	now := time.Now().UTC()
	for _, sec := range secs {
		score := scoreText(sec.body, tokens)
		if score == 0 {
			continue
		}
		candidates = append(candidates, schema.RankedMemory{
			MemoryEntry: schema.MemoryEntry{
				Content:   excerpt(sec.body, tokens),
				Timestamp: now,
				Source:    "long_term:" + sec.title,
			},
			Score: score,
		})
	}

	for _, note := range s.DailyNotes(6) {
		score := scoreText(note.Content, tokens)
		if score == 0 {
			continue
		}
		ts, _ := time.Parse("2006-01-02", note.Date)
		candidates = append(candidates, schema.RankedMemory{
			MemoryEntry: schema.MemoryEntry{
				Content:   excerpt(note.Content, tokens),
				Timestamp: ts,
				Source:    "daily:" + note.Date,
			},
			Score: score,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Timestamp.After(candidates[j].Timestamp)
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

func scoreText(text string, tokens []string) float64 {
	lower := strings.ToLower(text)
	var score float64
	for _, tok := range tokens {
		score += float64(strings.Count(lower, tok))
	}
	return score
}

// excerpt returns up to excerptCap characters of text centered on the first
// region where one of tokens matches, so a match late in a long section or
// note still surfaces in the ranked result instead of being truncated away.
func excerpt(text string, tokens []string) string {
	text = strings.TrimSpace(text)
	if len(text) <= excerptCap {
		return text
	}

	lower := strings.ToLower(text)
	matchIdx := -1
	for _, tok := range tokens {
		if idx := strings.Index(lower, tok); idx >= 0 && (matchIdx == -1 || idx < matchIdx) {
			matchIdx = idx
		}
	}
	if matchIdx == -1 {
		return text[:excerptCap] + "..."
	}

	start := matchIdx - excerptCap/4
	if start < 0 {
		start = 0
	}
	end := start + excerptCap
	if end > len(text) {
		end = len(text)
		start = end - excerptCap
		if start < 0 {
			start = 0
		}
	}

	out := text[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(text) {
		out += "..."
	}
	return out
}
