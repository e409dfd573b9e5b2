package store

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrActiveSessionExists is returned when the one-active-session-per-operator
	// index rejects an insert.
	ErrActiveSessionExists = errors.New("store: operator already has an active session")
	// ErrSlugTaken is returned when an agent or template slug is already in use.
	ErrSlugTaken = errors.New("store: slug already taken")
	// ErrNotFound is returned by updates addressed at a missing record.
	ErrNotFound = errors.New("store: record not found")
)

// ActiveSessionIndex is the partial unique index that enforces one active session per operator.
const ActiveSessionIndex = "sessions_one_active_per_operator"

// sqliteUnique reports whether err is a SQLite UNIQUE violation and returns its message.
func sqliteUnique(err error) (string, bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return "", false
	}
	// Extended codes (SQLITE_CONSTRAINT_UNIQUE) share the primary code in the low byte.
	if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return "", false
	}
	msg := se.Error()
	return msg, strings.Contains(msg, "UNIQUE constraint failed")
}

// translateSessionInsert maps a violation of the active-session index to ErrActiveSessionExists.
func translateSessionInsert(err error) error {
	if msg, ok := sqliteUnique(err); ok && strings.Contains(msg, "sessions.operator_id") {
		return ErrActiveSessionExists
	}
	return err
}

// translateSlug maps a slug uniqueness violation to ErrSlugTaken.
func translateSlug(err error) error {
	if msg, ok := sqliteUnique(err); ok && strings.Contains(msg, ".slug") {
		return ErrSlugTaken
	}
	return err
}
