package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EncodeList marshals an ordered collection for a JSON column. Nil encodes as "[]".
func EncodeList[T any](v []T) ([]byte, error) {
	if v == nil {
		v = []T{}
	}
	return json.Marshal(v)
}

// DecodeList unmarshals a JSON column written by EncodeList. Empty input yields an empty slice.
func DecodeList[T any](b []byte) ([]T, error) {
	out := []T{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Millis converts t to the Unix-millisecond form stored in timestamp columns.
func Millis(t time.Time) int64 { return t.UTC().UnixMilli() }

// FromMillis is the inverse of Millis.
func FromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// FromNullMillis converts a nullable timestamp column.
func FromNullMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := FromMillis(*ms)
	return &t
}

// NullMillis converts an optional time for a nullable timestamp column.
func NullMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := Millis(*t)
	return &ms
}

// Where builds the WHERE clause (without the keyword) and arguments for f. ph
// returns the placeholder for the n-th argument (1-based). The clause refers to the
// sessions table as s.
func (f SessionFilter) Where(ph func(n int) string) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, ph(len(args))))
	}
	if f.OperatorID != "" {
		add("s.operator_id = %s", f.OperatorID)
	}
	if f.Status != "" {
		add("s.status = %s", string(f.Status))
	}
	if f.Type != "" {
		add("s.session_type = %s", string(f.Type))
	}
	if f.AgentID != "" {
		add("EXISTS (SELECT 1 FROM session_agents sa WHERE sa.session_id = s.session_id AND sa.agent_id = %s)", f.AgentID)
	}
	if f.From != nil {
		add("s.started_at >= %s", Millis(*f.From))
	}
	if f.To != nil {
		add("s.started_at <= %s", Millis(*f.To))
	}
	if len(conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(conds, " AND "), args
}

// Placeholders returns n placeholders joined by ", ", numbered from start.
func Placeholders(ph func(n int) string, start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = ph(start + i)
	}
	return strings.Join(parts, ", ")
}
