package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Plexify-AI/plexifybid-sub001/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func ph(n int) string { return fmt.Sprintf("$%d", n) }

func requireRow(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- Agents ----

func (s *Store) CreateAgent(ctx context.Context, a store.Agent) error {
	caps, err := store.EncodeList(a.Capabilities)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `INSERT INTO agents(agent_id, name, slug, description, status, capabilities, version, created_at, updated_at) VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Name, a.Slug, a.Description, string(a.Status), caps, a.Version, store.Millis(a.CreatedAt), store.Millis(a.UpdatedAt))
	return translate(err)
}

func (s *Store) GetAgent(ctx context.Context, id string) (*store.Agent, error) {
	a, err := store.ScanAgent(s.Pool.QueryRow(ctx, `SELECT `+store.AgentCols+` FROM agents a WHERE a.agent_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *Store) GetAgentBySlug(ctx context.Context, slug string) (*store.Agent, error) {
	a, err := store.ScanAgent(s.Pool.QueryRow(ctx, `SELECT `+store.AgentCols+` FROM agents a WHERE a.slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *Store) ListAgents(ctx context.Context, f store.AgentFilter) ([]store.Agent, error) {
	q := `SELECT ` + store.AgentCols + ` FROM agents a`
	var args []any
	if f.Status != "" {
		q += ` WHERE a.status = $1`
		args = append(args, string(f.Status))
	}
	q += ` ORDER BY a.name ASC, a.agent_id ASC`
	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []store.Agent{}
	for rows.Next() {
		a, err := store.ScanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAgent(ctx context.Context, a store.Agent) error {
	caps, err := store.EncodeList(a.Capabilities)
	if err != nil {
		return err
	}
	tag, err := s.Pool.Exec(ctx, `UPDATE agents SET name=$1, slug=$2, description=$3, status=$4, capabilities=$5, version=$6, updated_at=$7 WHERE agent_id=$8`,
		a.Name, a.Slug, a.Description, string(a.Status), caps, a.Version, store.Millis(a.UpdatedAt), a.ID)
	if err != nil {
		return translate(err)
	}
	return requireRow(tag)
}

func (s *Store) CountActiveSessionsForAgent(ctx context.Context, agentID string) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `
SELECT COUNT(*) FROM session_agents sa
JOIN sessions s ON s.session_id = sa.session_id
WHERE sa.agent_id = $1 AND s.status = 'active'`, agentID).Scan(&n)
	return n, err
}

// ---- Sessions ----

func (s *Store) CreateSession(ctx context.Context, sess store.Session) error {
	enc, err := store.EncodeCompletion(store.Completion{
		DecisionsMade: sess.DecisionsMade,
		FilesChanged:  sess.FilesChanged,
		Blockers:      sess.Blockers,
		NextTasks:     sess.NextTasks,
	})
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
INSERT INTO sessions(session_id, operator_id, session_type, status, started_at, ended_at, context_in, context_out,
  decisions_made, files_changed, blockers, next_tasks, handoff_prompt, abandon_reason)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sess.ID, sess.OperatorID, string(sess.Type), string(sess.Status), store.Millis(sess.StartedAt), store.NullMillis(sess.EndedAt),
		sess.ContextIn, sess.ContextOut, enc.Decisions, enc.Files, enc.Blockers, enc.NextTasks,
		sess.HandoffPrompt, sess.AbandonReason)
	return translate(err)
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(tag)
}

func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	sess, err := store.ScanSession(s.Pool.QueryRow(ctx, `SELECT `+store.SessionCols+` FROM sessions s WHERE s.session_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

func (s *Store) ActiveSession(ctx context.Context, operatorID string) (*store.Session, error) {
	sess, err := store.ScanSession(s.Pool.QueryRow(ctx, `SELECT `+store.SessionCols+` FROM sessions s WHERE s.operator_id = $1 AND s.status = 'active' ORDER BY s.started_at DESC LIMIT 1`, operatorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

func (s *Store) ListSessions(ctx context.Context, f store.SessionFilter) ([]store.Session, error) {
	where, args := f.Where(ph)
	q := `SELECT ` + store.SessionCols + ` FROM sessions s WHERE ` + where + ` ORDER BY s.started_at DESC, s.session_id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += ` LIMIT ` + ph(len(args))
	}
	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []store.Session{}
	for rows.Next() {
		sess, err := store.ScanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func (s *Store) LatestCompletedSessionForAgents(ctx context.Context, agentIDs []string) (*store.Session, error) {
	if len(agentIDs) == 0 {
		return nil, nil
	}
	q := `
SELECT ` + store.SessionCols + ` FROM sessions s
WHERE s.status = 'completed'
  AND EXISTS (SELECT 1 FROM session_agents sa WHERE sa.session_id = s.session_id AND sa.agent_id = ANY($1))
ORDER BY s.ended_at DESC, s.session_id ASC
LIMIT 1`
	sess, err := store.ScanSession(s.Pool.QueryRow(ctx, q, agentIDs))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

func (s *Store) CompleteSession(ctx context.Context, id string, c store.Completion, handoff string, endedAt time.Time) (bool, error) {
	enc, err := store.EncodeCompletion(c)
	if err != nil {
		return false, err
	}
	tag, err := s.Pool.Exec(ctx, `
UPDATE sessions SET status='completed', ended_at=$1, context_out=$2, decisions_made=$3, files_changed=$4, blockers=$5, next_tasks=$6, handoff_prompt=$7
WHERE session_id=$8 AND status='active'`,
		store.Millis(endedAt), c.ContextOut, enc.Decisions, enc.Files, enc.Blockers, enc.NextTasks, handoff, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AbandonSession(ctx context.Context, id string, reason *string, endedAt time.Time) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `UPDATE sessions SET status='abandoned', ended_at=$1, abandon_reason=$2 WHERE session_id=$3 AND status='active'`,
		store.Millis(endedAt), reason, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ---- Session links ----

func (s *Store) CreateSessionAgents(ctx context.Context, links []store.SessionAgent) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	for _, l := range links {
		if _, err := tx.Exec(ctx, `INSERT INTO session_agents(session_id, agent_id, role) VALUES($1, $2, $3)`, l.SessionID, l.AgentID, string(l.Role)); err != nil {
			return fmt.Errorf("link agent %s: %w", l.AgentID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ListSessionAgents(ctx context.Context, sessionID string) ([]store.LinkedAgent, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT `+store.AgentCols+`, sa.role FROM session_agents sa
JOIN agents a ON a.agent_id = sa.agent_id
WHERE sa.session_id = $1
ORDER BY CASE sa.role WHEN 'primary' THEN 0 ELSE 1 END, a.name ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []store.LinkedAgent{}
	for rows.Next() {
		var role string
		a, err := store.ScanAgent(rows, &role)
		if err != nil {
			return nil, err
		}
		out = append(out, store.LinkedAgent{Agent: *a, Role: store.Role(role)})
	}
	return out, rows.Err()
}

// ---- Templates ----

func (s *Store) CreateTemplate(ctx context.Context, t store.Template) error {
	vars, err := store.EncodeList(t.Variables)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
INSERT INTO prompt_templates(template_id, slug, name, description, category, template_body, variables, version, usage_count, created_at, updated_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.Slug, t.Name, t.Description, t.Category, t.Body, vars, t.Version, t.UsageCount, store.Millis(t.CreatedAt), store.Millis(t.UpdatedAt))
	return translate(err)
}

func (s *Store) GetTemplateBySlug(ctx context.Context, slug string) (*store.Template, error) {
	t, err := store.ScanTemplate(s.Pool.QueryRow(ctx, `SELECT `+store.TemplateCols+` FROM prompt_templates WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (s *Store) ListTemplates(ctx context.Context, f store.TemplateFilter) ([]store.Template, error) {
	q := `SELECT ` + store.TemplateCols + ` FROM prompt_templates`
	var args []any
	if f.Category != "" {
		q += ` WHERE category = $1`
		args = append(args, f.Category)
	}
	q += ` ORDER BY name ASC, slug ASC`
	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []store.Template{}
	for rows.Next() {
		t, err := store.ScanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTemplate(ctx context.Context, t store.Template) error {
	vars, err := store.EncodeList(t.Variables)
	if err != nil {
		return err
	}
	tag, err := s.Pool.Exec(ctx, `UPDATE prompt_templates SET name=$1, description=$2, category=$3, template_body=$4, variables=$5, version=$6, updated_at=$7 WHERE slug=$8`,
		t.Name, t.Description, t.Category, t.Body, vars, t.Version, store.Millis(t.UpdatedAt), t.Slug)
	if err != nil {
		return err
	}
	return requireRow(tag)
}

func (s *Store) IncrementTemplateUsage(ctx context.Context, slug string) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `UPDATE prompt_templates SET usage_count = usage_count + 1 WHERE slug = $1 RETURNING usage_count`, slug).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	return n, err
}
