package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func sqlitePH(int) string { return "?" }

// ---- Agents ----

func (s *sqliteStore) CreateAgent(ctx context.Context, a Agent) error {
	caps, err := EncodeList(a.Capabilities)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO agents(agent_id, name, slug, description, status, capabilities, version, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Slug, a.Description, string(a.Status), string(caps), a.Version, Millis(a.CreatedAt), Millis(a.UpdatedAt))
	return translateSlug(err)
}

func (s *sqliteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	a, err := ScanAgent(s.stmtGetAgent.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *sqliteStore) GetAgentBySlug(ctx context.Context, slug string) (*Agent, error) {
	a, err := ScanAgent(s.stmtGetAgentBySlug.QueryRowContext(ctx, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *sqliteStore) ListAgents(ctx context.Context, f AgentFilter) ([]Agent, error) {
	q := `SELECT ` + AgentCols + ` FROM agents a`
	var args []any
	if f.Status != "" {
		q += ` WHERE a.status = ?`
		args = append(args, string(f.Status))
	}
	q += ` ORDER BY a.name ASC, a.agent_id ASC`
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []Agent{}
	for rows.Next() {
		a, err := ScanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateAgent(ctx context.Context, a Agent) error {
	caps, err := EncodeList(a.Capabilities)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE agents SET name=?, slug=?, description=?, status=?, capabilities=?, version=?, updated_at=? WHERE agent_id=?`,
		a.Name, a.Slug, a.Description, string(a.Status), string(caps), a.Version, Millis(a.UpdatedAt), a.ID)
	if err != nil {
		return translateSlug(err)
	}
	return requireRow(res)
}

func (s *sqliteStore) CountActiveSessionsForAgent(ctx context.Context, agentID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `
SELECT COUNT(*) FROM session_agents sa
JOIN sessions s ON s.session_id = sa.session_id
WHERE sa.agent_id = ? AND s.status = 'active'`, agentID).Scan(&n)
	return n, err
}

// ---- Sessions ----

func (s *sqliteStore) CreateSession(ctx context.Context, sess Session) error {
	enc, err := EncodeCompletion(Completion{
		DecisionsMade: sess.DecisionsMade,
		FilesChanged:  sess.FilesChanged,
		Blockers:      sess.Blockers,
		NextTasks:     sess.NextTasks,
	})
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO sessions(session_id, operator_id, session_type, status, started_at, ended_at, context_in, context_out,
  decisions_made, files_changed, blockers, next_tasks, handoff_prompt, abandon_reason)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.OperatorID, string(sess.Type), string(sess.Status), Millis(sess.StartedAt), NullMillis(sess.EndedAt),
		sess.ContextIn, sess.ContextOut, string(enc.Decisions), string(enc.Files), string(enc.Blockers), string(enc.NextTasks),
		sess.HandoffPrompt, sess.AbandonReason)
	return translateSessionInsert(err)
}

func (s *sqliteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	sess, err := ScanSession(s.stmtGetSession.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

func (s *sqliteStore) ActiveSession(ctx context.Context, operatorID string) (*Session, error) {
	sess, err := ScanSession(s.stmtActiveSession.QueryRowContext(ctx, operatorID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

func (s *sqliteStore) ListSessions(ctx context.Context, f SessionFilter) ([]Session, error) {
	where, args := f.Where(sqlitePH)
	q := `SELECT ` + SessionCols + ` FROM sessions s WHERE ` + where + ` ORDER BY s.started_at DESC, s.session_id ASC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return s.querySessions(ctx, q, args...)
}

func (s *sqliteStore) querySessions(ctx context.Context, q string, args ...any) ([]Session, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []Session{}
	for rows.Next() {
		sess, err := ScanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func (s *sqliteStore) LatestCompletedSessionForAgents(ctx context.Context, agentIDs []string) (*Session, error) {
	if len(agentIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(agentIDs))
	for i, id := range agentIDs {
		args[i] = id
	}
	q := fmt.Sprintf(`
SELECT %s FROM sessions s
WHERE s.status = 'completed'
  AND EXISTS (SELECT 1 FROM session_agents sa WHERE sa.session_id = s.session_id AND sa.agent_id IN (%s))
ORDER BY s.ended_at DESC, s.session_id ASC
LIMIT 1`, SessionCols, Placeholders(sqlitePH, 1, len(agentIDs)))
	sess, err := ScanSession(s.DB.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

func (s *sqliteStore) CompleteSession(ctx context.Context, id string, c Completion, handoff string, endedAt time.Time) (bool, error) {
	enc, err := EncodeCompletion(c)
	if err != nil {
		return false, err
	}
	res, err := s.DB.ExecContext(ctx, `
UPDATE sessions SET status='completed', ended_at=?, context_out=?, decisions_made=?, files_changed=?, blockers=?, next_tasks=?, handoff_prompt=?
WHERE session_id=? AND status='active'`,
		Millis(endedAt), c.ContextOut, string(enc.Decisions), string(enc.Files), string(enc.Blockers), string(enc.NextTasks), handoff, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *sqliteStore) AbandonSession(ctx context.Context, id string, reason *string, endedAt time.Time) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `UPDATE sessions SET status='abandoned', ended_at=?, abandon_reason=? WHERE session_id=? AND status='active'`,
		Millis(endedAt), reason, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ---- Session links ----

func (s *sqliteStore) CreateSessionAgents(ctx context.Context, links []SessionAgent) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, l := range links {
		if _, err := tx.ExecContext(ctx, `INSERT INTO session_agents(session_id, agent_id, role) VALUES(?, ?, ?)`, l.SessionID, l.AgentID, string(l.Role)); err != nil {
			return fmt.Errorf("link agent %s: %w", l.AgentID, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ListSessionAgents(ctx context.Context, sessionID string) ([]LinkedAgent, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT `+AgentCols+`, sa.role FROM session_agents sa
JOIN agents a ON a.agent_id = sa.agent_id
WHERE sa.session_id = ?
ORDER BY CASE sa.role WHEN 'primary' THEN 0 ELSE 1 END, a.name ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []LinkedAgent{}
	for rows.Next() {
		var role string
		a, err := ScanAgent(rows, &role)
		if err != nil {
			return nil, err
		}
		out = append(out, LinkedAgent{Agent: *a, Role: Role(role)})
	}
	return out, rows.Err()
}

// ---- Templates ----

func (s *sqliteStore) CreateTemplate(ctx context.Context, t Template) error {
	vars, err := EncodeList(t.Variables)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO prompt_templates(template_id, slug, name, description, category, template_body, variables, version, usage_count, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Slug, t.Name, t.Description, t.Category, t.Body, string(vars), t.Version, t.UsageCount, Millis(t.CreatedAt), Millis(t.UpdatedAt))
	return translateSlug(err)
}

func (s *sqliteStore) GetTemplateBySlug(ctx context.Context, slug string) (*Template, error) {
	t, err := ScanTemplate(s.stmtGetTemplate.QueryRowContext(ctx, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (s *sqliteStore) ListTemplates(ctx context.Context, f TemplateFilter) ([]Template, error) {
	q := `SELECT ` + TemplateCols + ` FROM prompt_templates`
	var args []any
	if f.Category != "" {
		q += ` WHERE category = ?`
		args = append(args, f.Category)
	}
	q += ` ORDER BY name ASC, slug ASC`
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []Template{}
	for rows.Next() {
		t, err := ScanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateTemplate(ctx context.Context, t Template) error {
	vars, err := EncodeList(t.Variables)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE prompt_templates SET name=?, description=?, category=?, template_body=?, variables=?, version=?, updated_at=? WHERE slug=?`,
		t.Name, t.Description, t.Category, t.Body, string(vars), t.Version, Millis(t.UpdatedAt), t.Slug)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) IncrementTemplateUsage(ctx context.Context, slug string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `UPDATE prompt_templates SET usage_count = usage_count + 1 WHERE slug = ? RETURNING usage_count`, slug).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return n, err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
