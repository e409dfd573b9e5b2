// Package session implements the lifecycle of agent work sessions: start with
// context carryover, completion with a composed handoff, and abandonment.
//
// An operator owns at most one active session. The check before insert gives an
// early ConflictError; the store's partial unique index catches any race past it.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Plexify-AI/plexifybid-sub001/internal/errors"
	"github.com/Plexify-AI/plexifybid-sub001/internal/handoff"
	"github.com/Plexify-AI/plexifybid-sub001/internal/otel"
	"github.com/Plexify-AI/plexifybid-sub001/internal/store"
)

// Saga step names.
const (
	StepInsertSession = "insert session"
	StepLinkAgents    = "link agents"
)

// Notifier receives a message after a session completes. notify.Registry satisfies it.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Manager runs session transitions against Store.
type Manager struct {
	Store    store.Store
	Composer *handoff.Composer
	Notifier Notifier // optional
	Now      func() time.Time
	NewID    func() string
}

// New returns a Manager that composes handoffs from st's templates.
func New(st store.Store, n Notifier) *Manager {
	return &Manager{
		Store:    st,
		Composer: &handoff.Composer{Templates: st},
		Notifier: n,
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

func (m *Manager) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now().UTC()
}

func (m *Manager) newID() string {
	if m.NewID == nil {
		return uuid.NewString()
	}
	return m.NewID()
}

// StartRequest names the session type and the agents to link. Roles maps an
// agent id to its role; agents without an entry are primary.
type StartRequest struct {
	Type     store.SessionType     `json:"session_type"`
	AgentIDs []string              `json:"agent_ids"`
	Roles    map[string]store.Role `json:"roles,omitempty"`
}

// StartResult is the new session and the handoff it inherited, if any.
type StartResult struct {
	Session   store.Session
	ContextIn *string
}

// CompleteResult is the completed session and its handoff.
type CompleteResult struct {
	Session       store.Session
	HandoffPrompt string
}

func requireOperator(operator string) error {
	if strings.TrimSpace(operator) == "" {
		return errors.NewValidationError("operator is required").WithField("operator")
	}
	return nil
}

// links validates req and returns one link per distinct agent id, in request order.
func (req StartRequest) links(sessionID string) ([]store.SessionAgent, error) {
	if !req.Type.Valid() {
		return nil, errors.NewValidationError("unknown session type").WithField("session_type").WithValue(req.Type)
	}
	if len(req.AgentIDs) == 0 {
		return nil, errors.NewValidationError("at least one agent is required").WithField("agent_ids")
	}
	roles := make(map[string]store.Role, len(req.Roles))
	for id, r := range req.Roles {
		if !r.Valid() {
			return nil, errors.NewValidationError("unknown role for agent " + id).WithField("roles").WithValue(r)
		}
		key := strings.TrimSpace(id)
		if prev, ok := roles[key]; ok && prev != r {
			return nil, errors.NewValidationError("conflicting roles for agent " + key).WithField("roles")
		}
		roles[key] = r
	}
	seen := make(map[string]bool, len(req.AgentIDs))
	out := make([]store.SessionAgent, 0, len(req.AgentIDs))
	for _, id := range req.AgentIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, errors.NewValidationError("agent id must not be empty").WithField("agent_ids")
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		role := roles[id]
		if role == "" {
			role = store.RolePrimary
		}
		out = append(out, store.SessionAgent{SessionID: sessionID, AgentID: id, Role: role})
	}
	return out, nil
}

// Start opens a new active session for operator linked to the requested agents.
// The handoff of the most recent completed session sharing any of those agents
// becomes the new session's context_in.
func (m *Manager) Start(ctx context.Context, operator string, req StartRequest) (*StartResult, error) {
	res, err := m.start(ctx, operator, req)
	otel.RecordSessionOp(ctx, "start", string(req.Type), outcome(err))
	return res, err
}

func (m *Manager) start(ctx context.Context, operator string, req StartRequest) (*StartResult, error) {
	if err := requireOperator(operator); err != nil {
		return nil, err
	}
	id := m.newID()
	links, err := req.links(id)
	if err != nil {
		return nil, err
	}
	agentIDs := make([]string, len(links))
	for i, l := range links {
		a, err := m.Store.GetAgent(ctx, l.AgentID)
		if err != nil {
			return nil, errors.NewStorageError("get agent", err)
		}
		if a == nil {
			return nil, errors.NewNotFoundError("agent", l.AgentID)
		}
		agentIDs[i] = l.AgentID
	}

	active, err := m.Store.ActiveSession(ctx, operator)
	if err != nil {
		return nil, errors.NewStorageError("get active session", err)
	}
	if active != nil {
		return nil, errors.NewConflictError("session", "operator already has an active session").WithID(active.ID)
	}

	prior, err := m.Store.LatestCompletedSessionForAgents(ctx, agentIDs)
	if err != nil {
		return nil, errors.NewStorageError("get prior session", err)
	}
	s := store.Session{
		ID:         id,
		OperatorID: operator,
		Type:       req.Type,
		Status:     store.StatusActive,
		StartedAt:  m.now(),
	}
	if prior != nil && prior.HandoffPrompt != nil {
		ctxIn := *prior.HandoffPrompt
		s.ContextIn = &ctxIn
	}

	saga := &Saga{Steps: []Step{
		{
			Name: StepInsertSession,
			Do: func(ctx context.Context) error {
				err := m.Store.CreateSession(ctx, s)
				if errors.Is(err, store.ErrActiveSessionExists) {
					return errors.NewConflictError("session", "operator already has an active session").WithCause(err)
				}
				if err != nil {
					return errors.NewStorageError("insert session", err)
				}
				return nil
			},
			Undo: func(ctx context.Context) error { return m.Store.DeleteSession(ctx, s.ID) },
		},
		{
			Name: StepLinkAgents,
			Do: func(ctx context.Context) error {
				if err := m.Store.CreateSessionAgents(ctx, links); err != nil {
					return errors.NewStorageError("insert session agents", err)
				}
				return nil
			},
		},
	}}
	out := saga.Run(ctx)
	otel.RecordSagaOutcome(ctx, out.Result.String())
	switch out.Result {
	case SagaCompensated:
		slog.Warn("session start rolled back", "session_id", s.ID, "step", out.Failed, "err", out.Err)
		return nil, out.Err
	case SagaRollbackFailed:
		slog.Error("session start rollback failed", "session_id", s.ID, "step", out.Failed, "err", out.Err, "rollback_err", out.RollbackErr)
		return nil, &errors.CompensationError{Step: out.Failed, Orphan: s.ID, Cause: out.Err, RollbackErr: out.RollbackErr}
	}

	slog.Info("session started", "session_id", s.ID, "operator", operator, "type", s.Type, "agents", len(links), "carryover", s.ContextIn != nil)
	return &StartResult{Session: s, ContextIn: s.ContextIn}, nil
}

// validateCompletion rejects a payload that could not produce a handoff.
func validateCompletion(c store.Completion) error {
	if len(c.NextTasks) == 0 {
		return errors.NewValidationError("at least one next task is required").WithField("next_tasks")
	}
	for i, t := range c.NextTasks {
		if strings.TrimSpace(t) == "" {
			return errors.NewValidationError(fmt.Sprintf("next task %d is empty", i)).WithField("next_tasks")
		}
	}
	for i, d := range c.DecisionsMade {
		if err := d.Validate(); err != nil {
			return errors.NewValidationError(fmt.Sprintf("decision %d: %v", i, err)).WithField("decisions_made").WithCause(err)
		}
	}
	for i, b := range c.Blockers {
		if err := b.Validate(); err != nil {
			return errors.NewValidationError(fmt.Sprintf("blocker %d: %v", i, err)).WithField("blockers").WithCause(err)
		}
	}
	return nil
}

// owned loads session id and checks that operator may transition it.
func (m *Manager) owned(ctx context.Context, operator, id string) (*store.Session, error) {
	s, err := m.Store.GetSession(ctx, id)
	if err != nil {
		return nil, errors.NewStorageError("get session", err)
	}
	if s == nil {
		return nil, errors.NewNotFoundError("session", id)
	}
	if s.OperatorID != operator {
		return nil, errors.NewConflictError("session", "session belongs to another operator").WithID(id)
	}
	if s.Status != store.StatusActive {
		return nil, errors.NewConflictError("session", "session is "+string(s.Status)).WithID(id)
	}
	return s, nil
}

// Complete ends an active session, storing c and the composed handoff.
func (m *Manager) Complete(ctx context.Context, operator, id string, c store.Completion) (*CompleteResult, error) {
	res, typ, err := m.complete(ctx, operator, id, c)
	otel.RecordSessionOp(ctx, "complete", typ, outcome(err))
	return res, err
}

func (m *Manager) complete(ctx context.Context, operator, id string, c store.Completion) (*CompleteResult, string, error) {
	if err := requireOperator(operator); err != nil {
		return nil, "", err
	}
	if err := validateCompletion(c); err != nil {
		return nil, "", err
	}
	s, err := m.owned(ctx, operator, id)
	if err != nil {
		return nil, "", err
	}
	typ := string(s.Type)

	endedAt := m.now()
	text, err := m.Composer.Compose(ctx, *s, c, endedAt)
	if err != nil {
		return nil, typ, err
	}
	ok, err := m.Store.CompleteSession(ctx, id, c, text, endedAt)
	if err != nil {
		return nil, typ, errors.NewStorageError("complete session", err)
	}
	if !ok {
		return nil, typ, errors.NewConflictError("session", "session is no longer active").WithID(id)
	}
	done, err := m.Store.GetSession(ctx, id)
	if err != nil {
		return nil, typ, errors.NewStorageError("reload session", err)
	}
	if done == nil {
		return nil, typ, errors.NewNotFoundError("session", id)
	}
	slog.Info("session completed", "session_id", id, "operator", operator, "next_tasks", len(c.NextTasks))

	m.notify(ctx, *done)
	return &CompleteResult{Session: *done, HandoffPrompt: text}, typ, nil
}

func (m *Manager) notify(ctx context.Context, s store.Session) {
	if m.Notifier == nil {
		return
	}
	msg := fmt.Sprintf("Session %s (%s) completed by %s. Next: %s", s.ID, s.Type, s.OperatorID, s.NextTasks[0])
	if err := m.Notifier.Notify(ctx, msg); err != nil {
		slog.Warn("session completion notification failed", "session_id", s.ID, "err", err)
	}
}

// Abandon ends an active session without a handoff.
func (m *Manager) Abandon(ctx context.Context, operator, id string, reason *string) (*store.Session, error) {
	s, typ, err := m.abandon(ctx, operator, id, reason)
	otel.RecordSessionOp(ctx, "abandon", typ, outcome(err))
	return s, err
}

func (m *Manager) abandon(ctx context.Context, operator, id string, reason *string) (*store.Session, string, error) {
	if err := requireOperator(operator); err != nil {
		return nil, "", err
	}
	s, err := m.owned(ctx, operator, id)
	if err != nil {
		return nil, "", err
	}
	typ := string(s.Type)
	ok, err := m.Store.AbandonSession(ctx, id, reason, m.now())
	if err != nil {
		return nil, typ, errors.NewStorageError("abandon session", err)
	}
	if !ok {
		return nil, typ, errors.NewConflictError("session", "session is no longer active").WithID(id)
	}
	done, err := m.Store.GetSession(ctx, id)
	if err != nil {
		return nil, typ, errors.NewStorageError("reload session", err)
	}
	if done == nil {
		return nil, typ, errors.NewNotFoundError("session", id)
	}
	slog.Info("session abandoned", "session_id", id, "operator", operator)
	return done, typ, nil
}

// Active returns operator's active session, or nil when there is none.
func (m *Manager) Active(ctx context.Context, operator string) (*store.Session, error) {
	if err := requireOperator(operator); err != nil {
		return nil, err
	}
	s, err := m.Store.ActiveSession(ctx, operator)
	if err != nil {
		return nil, errors.NewStorageError("get active session", err)
	}
	return s, nil
}

// Get returns session id.
func (m *Manager) Get(ctx context.Context, id string) (*store.Session, error) {
	s, err := m.Store.GetSession(ctx, id)
	if err != nil {
		return nil, errors.NewStorageError("get session", err)
	}
	if s == nil {
		return nil, errors.NewNotFoundError("session", id)
	}
	return s, nil
}

// List returns sessions matching f, newest first. A non-empty operator
// restricts the result to that operator's sessions.
func (m *Manager) List(ctx context.Context, operator string, f store.SessionFilter) ([]store.Session, error) {
	if operator != "" {
		f.OperatorID = operator
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, errors.NewValidationError("unknown status").WithField("status").WithValue(f.Status)
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, errors.NewValidationError("unknown session type").WithField("session_type").WithValue(f.Type)
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, errors.NewValidationError("from is after to").WithField("from")
	}
	if f.Limit < 0 {
		return nil, errors.NewValidationError("limit must not be negative").WithField("limit").WithValue(f.Limit)
	}
	list, err := m.Store.ListSessions(ctx, f)
	if err != nil {
		return nil, errors.NewStorageError("list sessions", err)
	}
	return list, nil
}

// Agents returns the agents linked to session id, primary first.
func (m *Manager) Agents(ctx context.Context, id string) ([]store.LinkedAgent, error) {
	if _, err := m.Get(ctx, id); err != nil {
		return nil, err
	}
	list, err := m.Store.ListSessionAgents(ctx, id)
	if err != nil {
		return nil, errors.NewStorageError("list session agents", err)
	}
	return list, nil
}

// CountByStatus counts sessions per status; it backs the plexify_sessions gauge.
func (m *Manager) CountByStatus(ctx context.Context) (map[string]int64, error) {
	list, err := m.Store.ListSessions(ctx, store.SessionFilter{})
	if err != nil {
		return nil, err
	}
	out := map[string]int64{
		string(store.StatusActive):    0,
		string(store.StatusCompleted): 0,
		string(store.StatusAbandoned): 0,
	}
	for _, s := range list {
		out[string(s.Status)]++
	}
	return out, nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(errors.KindOf(err))
}
