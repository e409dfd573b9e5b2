package store

import (
	"fmt"

	"github.com/Plexify-AI/plexifybid-sub001/internal/prompt"
)

// Column lists shared by the SQLite and PostgreSQL queries. Sessions are aliased s,
// agents a.
const (
	SessionCols  = `s.session_id, s.operator_id, s.session_type, s.status, s.started_at, s.ended_at, s.context_in, s.context_out, s.decisions_made, s.files_changed, s.blockers, s.next_tasks, s.handoff_prompt, s.abandon_reason`
	AgentCols    = `a.agent_id, a.name, a.slug, a.description, a.status, a.capabilities, a.version, a.created_at, a.updated_at`
	TemplateCols = `template_id, slug, name, description, category, template_body, variables, version, usage_count, created_at, updated_at`
)

// RowScanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type RowScanner interface {
	Scan(dest ...any) error
}

// ScanSession reads one row selected with SessionCols.
func ScanSession(r RowScanner) (*Session, error) {
	var (
		s                                   Session
		typ, status                         string
		startedAt                           int64
		endedAt                             *int64
		decisions, files, blockers, nextRaw []byte
	)
	if err := r.Scan(&s.ID, &s.OperatorID, &typ, &status, &startedAt, &endedAt,
		&s.ContextIn, &s.ContextOut, &decisions, &files, &blockers, &nextRaw,
		&s.HandoffPrompt, &s.AbandonReason); err != nil {
		return nil, err
	}
	s.Type = SessionType(typ)
	s.Status = SessionStatus(status)
	s.StartedAt = FromMillis(startedAt)
	s.EndedAt = FromNullMillis(endedAt)
	var err error
	if s.DecisionsMade, err = DecodeList[Decision](decisions); err != nil {
		return nil, fmt.Errorf("session %s decisions_made: %w", s.ID, err)
	}
	if s.FilesChanged, err = DecodeList[string](files); err != nil {
		return nil, fmt.Errorf("session %s files_changed: %w", s.ID, err)
	}
	if s.Blockers, err = DecodeList[Blocker](blockers); err != nil {
		return nil, fmt.Errorf("session %s blockers: %w", s.ID, err)
	}
	if s.NextTasks, err = DecodeList[string](nextRaw); err != nil {
		return nil, fmt.Errorf("session %s next_tasks: %w", s.ID, err)
	}
	return &s, nil
}

// ScanAgent reads one row selected with AgentCols. Extra destinations are appended
// to the scan (used for the link role).
func ScanAgent(r RowScanner, extra ...any) (*Agent, error) {
	var (
		a                    Agent
		status               string
		caps                 []byte
		createdAt, updatedAt int64
	)
	dest := append([]any{&a.ID, &a.Name, &a.Slug, &a.Description, &status, &caps, &a.Version, &createdAt, &updatedAt}, extra...)
	if err := r.Scan(dest...); err != nil {
		return nil, err
	}
	a.Status = AgentStatus(status)
	a.CreatedAt = FromMillis(createdAt)
	a.UpdatedAt = FromMillis(updatedAt)
	var err error
	if a.Capabilities, err = DecodeList[string](caps); err != nil {
		return nil, fmt.Errorf("agent %s capabilities: %w", a.ID, err)
	}
	return &a, nil
}

// ScanTemplate reads one row selected with TemplateCols.
func ScanTemplate(r RowScanner) (*Template, error) {
	var (
		t                    Template
		vars                 []byte
		createdAt, updatedAt int64
	)
	if err := r.Scan(&t.ID, &t.Slug, &t.Name, &t.Description, &t.Category, &t.Body, &vars,
		&t.Version, &t.UsageCount, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.CreatedAt = FromMillis(createdAt)
	t.UpdatedAt = FromMillis(updatedAt)
	var err error
	if t.Variables, err = DecodeList[prompt.Variable](vars); err != nil {
		return nil, fmt.Errorf("template %s variables: %w", t.Slug, err)
	}
	return &t, nil
}

// SessionJSON holds the encoded JSON columns of a session.
type SessionJSON struct {
	Decisions, Files, Blockers, NextTasks []byte
}

// EncodeCompletion encodes the collection fields of c.
func EncodeCompletion(c Completion) (SessionJSON, error) {
	var out SessionJSON
	var err error
	if out.Decisions, err = EncodeList(c.DecisionsMade); err != nil {
		return out, err
	}
	if out.Files, err = EncodeList(c.FilesChanged); err != nil {
		return out, err
	}
	if out.Blockers, err = EncodeList(c.Blockers); err != nil {
		return out, err
	}
	if out.NextTasks, err = EncodeList(c.NextTasks); err != nil {
		return out, err
	}
	return out, nil
}
