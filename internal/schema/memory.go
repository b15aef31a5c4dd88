package schema

import "time"

// MemoryEntry is one short-term, long-term, or daily-note memory record.
type MemoryEntry struct {
	Content   string
	Timestamp time.Time
	Source    string // optional tag, e.g. "daily:2026-07-31" or "long_term:Preferences"
}

// RankedMemory is a MemoryEntry plus the score it was retrieved with.
type RankedMemory struct {
	MemoryEntry
	Score float64
}

// DailyNote is one day's journal file.
type DailyNote struct {
	Date    string // YYYY-MM-DD
	Content string
}

// MemoryStore is the interface the context builder and the memory-write tool
// use to reach short-term, long-term, and daily-note memory. Implemented by
// memory.Store. Defined here to avoid an import cycle.
type MemoryStore interface {
	// RememberShortTerm appends to the process-local, non-persistent ring
	// (capped at 100 entries).
	RememberShortTerm(content string)

	// AppendDaily appends a line to today's daily note file.
	AppendDaily(content string) error

	// WriteLongTerm appends prose under a section heading in MEMORY.md,
	// creating the section if it does not already exist.
	WriteLongTerm(section, content string) error

	// LongTermDigest returns the full current MEMORY.md content.
	LongTermDigest() string

	// DailyNotes returns today's note plus up to maxPrevious previous days,
	// most recent first.
	DailyNotes(maxPrevious int) []DailyNote

	// Rank returns the top K long-term/daily entries matching query, scored
	// by substring-count lexical matching with recency tie-break. Never
	// embedding-based.
	Rank(query string, topK int) []RankedMemory
}
