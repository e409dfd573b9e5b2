package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// JournalFileName is the journal file under the plexify home.
const JournalFileName = "journal.md"

// Journal appends each message to a local markdown file, one timestamped
// section per message.
type Journal struct {
	Path string
	Now  func() time.Time // nil uses time.Now
}

// JournalPath returns <home>/journal.md.
func JournalPath(home string) string {
	return filepath.Join(home, JournalFileName)
}

func (j Journal) Name() string { return "journal" }

// Notify appends message, creating the file and its directory when missing.
func (j Journal) Notify(_ context.Context, message string) error {
	if j.Path == "" {
		return fmt.Errorf("journal path not set")
	}
	if err := os.MkdirAll(filepath.Dir(j.Path), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(j.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(j.block(message)); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

func (j Journal) block(message string) string {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	var b strings.Builder
	b.WriteString("\n---\n\n## ")
	b.WriteString(now().UTC().Format("2006-01-02 15:04"))
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(message))
	b.WriteString("\n")
	return b.String()
}

// ReadJournal returns the last limitBytes of the journal at path, or all of it
// when limitBytes <= 0. A missing journal reads as empty.
func ReadJournal(path string, limitBytes int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	s := string(data)
	if limitBytes <= 0 || len(s) <= limitBytes {
		return s, nil
	}
	return s[len(s)-limitBytes:], nil
}
