package memory

import (
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestRememberShortTerm_EvictsOldestPastCap(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < ShortTermCap+10; i++ {
		s.RememberShortTerm("entry")
	}
	entries := s.ShortTerm()
	if len(entries) != ShortTermCap {
		t.Fatalf("expected %d entries, got %d", ShortTermCap, len(entries))
	}
}

func TestWriteLongTerm_AppendsUnderSection(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteLongTerm("Preferences", "likes dark mode"); err != nil {
		t.Fatalf("WriteLongTerm: %v", err)
	}
	if err := s.WriteLongTerm("Preferences", "prefers terse replies"); err != nil {
		t.Fatalf("WriteLongTerm: %v", err)
	}

	digest := s.LongTermDigest()
	if !strings.Contains(digest, "Preferences") {
		t.Errorf("expected digest to contain section heading, got %q", digest)
	}
	if !strings.Contains(digest, "likes dark mode") || !strings.Contains(digest, "prefers terse replies") {
		t.Errorf("expected both appended lines in digest, got %q", digest)
	}
}

func TestRank_ScoresByTokenOccurrence(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteLongTerm("Topic", "go go go, this section mentions go three times"); err != nil {
		t.Fatalf("WriteLongTerm: %v", err)
	}
	if err := s.WriteLongTerm("Other", "go appears once here"); err != nil {
		t.Fatalf("WriteLongTerm: %v", err)
	}

	ranked := s.Rank("go", 10)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked results, got %d", len(ranked))
	}
	if ranked[0].Score <= ranked[1].Score {
		t.Errorf("expected the section with more occurrences ranked first: %+v", ranked)
	}
}

func TestRank_NoMatchesReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteLongTerm("Topic", "nothing relevant here"); err != nil {
		t.Fatalf("WriteLongTerm: %v", err)
	}
	ranked := s.Rank("zzz_unmatched_token", 10)
	if len(ranked) != 0 {
		t.Errorf("expected no matches, got %d", len(ranked))
	}
}

func TestRank_TopKTruncates(t *testing.T) {
	s := newTestStore(t)
	for _, title := range []string{"A", "B", "C", "D", "E"} {
		if err := s.WriteLongTerm(title, "keyword appears here"); err != nil {
			t.Fatalf("WriteLongTerm: %v", err)
		}
	}
	ranked := s.Rank("keyword", 2)
	if len(ranked) != 2 {
		t.Fatalf("expected topK=2 results, got %d", len(ranked))
	}
}

func TestExcerpt_CentersOnFirstMatchRegion(t *testing.T) {
	filler := strings.Repeat("x ", 200) // far longer than excerptCap
	body := filler + "the needle appears only here" + filler

	tokens := []string{"needle"}
	got := excerpt(body, tokens)

	if !strings.Contains(got, "needle") {
		t.Fatalf("expected excerpt to contain the matched token, got %q", got)
	}
	if len(got) > excerptCap+6 { // +6 for the "..." markers on either side
		t.Errorf("expected excerpt roughly capped at %d chars, got %d", excerptCap, len(got))
	}
}

func TestExcerpt_ShortTextReturnedVerbatim(t *testing.T) {
	body := "short note"
	got := excerpt(body, []string{"note"})
	if got != body {
		t.Errorf("expected short text returned unchanged, got %q", got)
	}
}

func TestExcerpt_NoMatchFallsBackToPrefix(t *testing.T) {
	body := strings.Repeat("a", excerptCap+50)
	got := excerpt(body, []string{"zzz"})
	if !strings.HasPrefix(got, strings.Repeat("a", 10)) {
		t.Errorf("expected prefix fallback, got %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected truncated excerpt to end with ellipsis, got %q", got)
	}
}

func TestDailyNotes_LookbackBoundsCount(t *testing.T) {
	s := newTestStore(t)
	if err := s.AppendDaily("today's note"); err != nil {
		t.Fatalf("AppendDaily: %v", err)
	}
	notes := s.DailyNotes(6)
	if len(notes) != 1 {
		t.Fatalf("expected 1 note (only today has content), got %d", len(notes))
	}
}
