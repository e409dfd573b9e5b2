package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Plexify-AI/plexifybid-sub001/internal/store"
	"github.com/google/uuid"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping postgres test")
	}
	st, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpen_requiresDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected error without DSN")
	}
}

func TestSessionLifecycle(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	operator := "op-" + uuid.NewString()

	agent := store.Agent{ID: uuid.NewString(), Name: "PG Agent", Slug: "pg-" + uuid.NewString(), Status: store.AgentActive, Version: "1.0.0", CreatedAt: now, UpdatedAt: now}
	if err := st.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	dup := agent
	dup.ID = uuid.NewString()
	if err := st.CreateAgent(ctx, dup); !errors.Is(err, store.ErrSlugTaken) {
		t.Fatalf("duplicate slug: got %v", err)
	}

	s1 := store.Session{ID: uuid.NewString(), OperatorID: operator, Type: store.TypeDevelopment, Status: store.StatusActive, StartedAt: now}
	if err := st.CreateSession(ctx, s1); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := st.CreateSessionAgents(ctx, []store.SessionAgent{{SessionID: s1.ID, AgentID: agent.ID, Role: store.RolePrimary}}); err != nil {
		t.Fatalf("CreateSessionAgents: %v", err)
	}
	s2 := s1
	s2.ID = uuid.NewString()
	if err := st.CreateSession(ctx, s2); !errors.Is(err, store.ErrActiveSessionExists) {
		t.Fatalf("second active session: got %v", err)
	}

	c := store.Completion{NextTasks: []string{"Write tests"}}
	ok, err := st.CompleteSession(ctx, s1.ID, c, "handoff", now.Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("CompleteSession: %v %v", ok, err)
	}
	latest, err := st.LatestCompletedSessionForAgents(ctx, []string{agent.ID})
	if err != nil || latest == nil || latest.ID != s1.ID || latest.HandoffPrompt == nil {
		t.Fatalf("LatestCompletedSessionForAgents: %v %v", latest, err)
	}
	list, err := st.ListSessions(ctx, store.SessionFilter{OperatorID: operator, AgentID: agent.ID})
	if err != nil || len(list) != 1 {
		t.Fatalf("ListSessions: %v %v", list, err)
	}
}
