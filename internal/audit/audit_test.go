package audit

import (
	"path/filepath"
	"testing"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndListEntries(t *testing.T) {
	l := openTestLog(t)

	l.RecordLogin("alice", true, "203.0.113.1:52000")
	l.RecordLogin("mallory", false, "203.0.113.9:40000")
	l.RecordCommand("alice", "server:start", true, "")
	l.RecordCommand("alice", "server:stop", false, "permission denied: requires server.stop")

	entries, err := l.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}

	// Newest first.
	newest := entries[0]
	if newest.Kind != KindCommand || newest.Command != "server:stop" {
		t.Errorf("newest = %+v", newest)
	}
	if newest.Success {
		t.Error("failed command recorded as success")
	}
	if newest.Error == "" {
		t.Error("failure reason not recorded")
	}

	oldest := entries[3]
	if oldest.Kind != KindLogin || oldest.Username != "alice" || !oldest.Success {
		t.Errorf("oldest = %+v", oldest)
	}
	if oldest.RemoteAddr != "203.0.113.1:52000" {
		t.Errorf("remote addr = %q", oldest.RemoteAddr)
	}
	if oldest.CreatedAt.IsZero() {
		t.Error("created_at not recorded")
	}
}

func TestRecentHonorsLimit(t *testing.T) {
	l := openTestLog(t)

	for range 5 {
		l.RecordLogin("alice", true, "")
	}

	entries, err := l.Recent(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}

func TestRecentOnEmptyLog(t *testing.T) {
	l := openTestLog(t)

	entries, err := l.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries from empty log", len(entries))
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.db")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	l.RecordLogin("alice", true, "")
	l.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Username != "alice" {
		t.Errorf("entries after reopen = %+v", entries)
	}
}
