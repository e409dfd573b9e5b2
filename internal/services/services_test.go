package services

import (
	"context"
	"strings"
	"testing"

	"github.com/Plexify-AI/plexifybid-sub001/internal/catalog"
	"github.com/Plexify-AI/plexifybid-sub001/internal/config"
	"github.com/Plexify-AI/plexifybid-sub001/internal/handoff"
	"github.com/Plexify-AI/plexifybid-sub001/internal/notify"
	"github.com/Plexify-AI/plexifybid-sub001/internal/session"
	"github.com/Plexify-AI/plexifybid-sub001/internal/store"
)

func TestOpen_sqliteSeedsHandoffTemplate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	home := t.TempDir()
	svc, err := Open(ctx, home, config.Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tpl, err := svc.Catalog.GetTemplate(ctx, handoff.TemplateSlug)
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if tpl.Body == "" {
		t.Error("seeded template has empty body")
	}
	if got := svc.Notify.Names(); len(got) != 0 {
		t.Errorf("notifiers without config: %v", got)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening keeps the existing template rather than seeding a second one.
	svc, err = Open(ctx, home, config.Config{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = svc.Close() }()
	list, err := svc.Catalog.ListTemplates(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("templates after reopen: %d", len(list))
	}
}

func TestOpen_unknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), t.TempDir(), config.Config{DB: config.DBConfig{Driver: "mysql"}})
	if err == nil || !strings.Contains(err.Error(), "unknown db driver") {
		t.Fatalf("want unknown driver error, got %v", err)
	}
}

func TestOpen_registersSlack(t *testing.T) {
	t.Parallel()
	svc, err := Open(context.Background(), t.TempDir(), config.Config{
		Notify: config.NotifyConfig{SlackWebhookURL: "http://127.0.0.1:1/hook"},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = svc.Close() }()
	if svc.Notify.Get("slack") == nil {
		t.Errorf("slack notifier not registered: %v", svc.Notify.Names())
	}
}

func TestClose_nil(t *testing.T) {
	var s *Services
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOpen_journalNotifier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	home := t.TempDir()
	svc, err := Open(ctx, home, config.Config{Notify: config.NotifyConfig{Journal: true}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = svc.Close() }()
	if svc.Notify.Get("journal") == nil {
		t.Fatalf("journal notifier not registered: %v", svc.Notify.Names())
	}

	agent, err := svc.Catalog.CreateAgent(ctx, catalog.AgentInput{Name: "Ops"})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if _, err := svc.Sessions.Start(ctx, "ken", session.StartRequest{Type: store.TypeDebug, AgentIDs: []string{agent.ID}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	active, err := svc.Sessions.Active(ctx, "ken")
	if err != nil || active == nil {
		t.Fatalf("Active: %v %v", active, err)
	}
	if _, err := svc.Sessions.Complete(ctx, "ken", active.ID, store.Completion{NextTasks: []string{"write the runbook"}}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, err := notify.ReadJournal(notify.JournalPath(home), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "Next: write the runbook") {
		t.Errorf("journal:\n%s", got)
	}
}
