package store

import (
	"context"
	"time"
)

// Store is the persistence interface for agents, sessions, session links and templates.
// Implementations: the SQLite store returned by Open and *postgres.Store.
//
// Getters return (nil, nil) when the record does not exist. Updates addressed at a
// missing record return ErrNotFound.
type Store interface {
	// Agents
	CreateAgent(ctx context.Context, a Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	GetAgentBySlug(ctx context.Context, slug string) (*Agent, error)
	ListAgents(ctx context.Context, f AgentFilter) ([]Agent, error)
	UpdateAgent(ctx context.Context, a Agent) error
	CountActiveSessionsForAgent(ctx context.Context, agentID string) (int, error)

	// Sessions. CreateSession returns ErrActiveSessionExists when the operator
	// already owns an active session.
	CreateSession(ctx context.Context, s Session) error
	DeleteSession(ctx context.Context, id string) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ActiveSession(ctx context.Context, operatorID string) (*Session, error)
	ListSessions(ctx context.Context, f SessionFilter) ([]Session, error)
	LatestCompletedSessionForAgents(ctx context.Context, agentIDs []string) (*Session, error)
	// CompleteSession and AbandonSession only touch a session that is still active
	// and report whether they did.
	CompleteSession(ctx context.Context, id string, c Completion, handoff string, endedAt time.Time) (bool, error)
	AbandonSession(ctx context.Context, id string, reason *string, endedAt time.Time) (bool, error)

	// Session links. CreateSessionAgents inserts all links or none.
	CreateSessionAgents(ctx context.Context, links []SessionAgent) error
	ListSessionAgents(ctx context.Context, sessionID string) ([]LinkedAgent, error)

	// Templates
	CreateTemplate(ctx context.Context, t Template) error
	GetTemplateBySlug(ctx context.Context, slug string) (*Template, error)
	ListTemplates(ctx context.Context, f TemplateFilter) ([]Template, error)
	UpdateTemplate(ctx context.Context, t Template) error
	IncrementTemplateUsage(ctx context.Context, slug string) (int, error)

	// Lifecycle
	Close() error
}
