package notify

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestJournal_NotifyAndRead(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", JournalFileName)
	at := time.Date(2026, 3, 4, 5, 6, 0, 0, time.UTC)
	j := Journal{Path: path, Now: func() time.Time { return at }}
	if j.Name() != "journal" {
		t.Errorf("Name: %q", j.Name())
	}

	got, err := ReadJournal(path, 0)
	if err != nil || got != "" {
		t.Fatalf("missing journal: %q %v", got, err)
	}

	ctx := context.Background()
	if err := j.Notify(ctx, "Session s1 completed. Next: ship it\n"); err != nil {
		t.Fatal(err)
	}
	if err := j.Notify(ctx, "Session s2 completed. Next: rest"); err != nil {
		t.Fatal(err)
	}
	got, err = ReadJournal(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(got, "## 2026-03-04 05:06") != 2 {
		t.Errorf("want two sections, got:\n%s", got)
	}
	if !strings.Contains(got, "Next: ship it\n") || !strings.HasSuffix(got, "Next: rest\n") {
		t.Errorf("journal content:\n%s", got)
	}

	tail, err := ReadJournal(path, 5)
	if err != nil || tail != "rest\n" {
		t.Errorf("tail: %q %v", tail, err)
	}
}

func TestJournal_noPath(t *testing.T) {
	if err := (Journal{}).Notify(context.Background(), "x"); err == nil {
		t.Fatal("want error without a path")
	}
}

func TestJournalPath(t *testing.T) {
	if got := JournalPath("/h"); got != filepath.Join("/h", "journal.md") {
		t.Errorf("JournalPath: %s", got)
	}
}
