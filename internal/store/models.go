// Package store defines the persistence interface and shared models for agents,
// sessions, session links and prompt templates.
package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Plexify-AI/plexifybid-sub001/internal/prompt"
)

// SessionType is the kind of work a session tracks.
type SessionType string

const (
	TypeDevelopment SessionType = "development"
	TypeStrategy    SessionType = "strategy"
	TypeResearch    SessionType = "research"
	TypeReview      SessionType = "review"
	TypeDebug       SessionType = "debug"
	TypeCustom      SessionType = "custom"
)

// SessionTypes lists every SessionType.
var SessionTypes = []SessionType{TypeDevelopment, TypeStrategy, TypeResearch, TypeReview, TypeDebug, TypeCustom}

// Valid reports whether t is one of SessionTypes.
func (t SessionType) Valid() bool {
	for _, v := range SessionTypes {
		if t == v {
			return true
		}
	}
	return false
}

// SessionStatus is the lifecycle state of a session. Completed and abandoned are terminal.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusAbandoned SessionStatus = "abandoned"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// AgentStatus is the catalog state of an agent.
type AgentStatus string

const (
	AgentActive     AgentStatus = "active"
	AgentDraft      AgentStatus = "draft"
	AgentArchived   AgentStatus = "archived"
	AgentDeprecated AgentStatus = "deprecated"
)

// Valid reports whether s is a known agent status.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentActive, AgentDraft, AgentArchived, AgentDeprecated:
		return true
	}
	return false
}

// Role is an agent's part in a session.
type Role string

const (
	RolePrimary    Role = "primary"
	RoleSupporting Role = "supporting"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePrimary || r == RoleSupporting
}

// Agent is a catalog entry that can be linked to sessions.
type Agent struct {
	ID           string
	Name         string
	Slug         string
	Description  string
	Status       AgentStatus
	Capabilities []string
	Version      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Decision is one recorded decision of a completed session.
type Decision struct {
	Decision   string `json:"decision"`
	Rationale  string `json:"rationale"`
	Reversible bool   `json:"reversible"`
}

// NewDecision returns a validated Decision.
func NewDecision(decision, rationale string, reversible bool) (Decision, error) {
	d := Decision{Decision: decision, Rationale: rationale, Reversible: reversible}
	return d, d.Validate()
}

// Validate checks the required fields.
func (d Decision) Validate() error {
	if strings.TrimSpace(d.Decision) == "" {
		return fmt.Errorf("decision text required")
	}
	return nil
}

// UnmarshalJSON decodes and validates a Decision.
func (d *Decision) UnmarshalJSON(b []byte) error {
	type raw Decision
	var r raw
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	out := Decision(r)
	if err := out.Validate(); err != nil {
		return err
	}
	*d = out
	return nil
}

// Blocker is an obstacle recorded at completion.
type Blocker struct {
	Description string `json:"description"`
	Resolved    bool   `json:"resolved"`
	Resolution  string `json:"resolution,omitempty"`
}

// NewBlocker returns a validated Blocker.
func NewBlocker(description string, resolved bool, resolution string) (Blocker, error) {
	b := Blocker{Description: description, Resolved: resolved, Resolution: resolution}
	return b, b.Validate()
}

// Validate checks the required fields.
func (b Blocker) Validate() error {
	if strings.TrimSpace(b.Description) == "" {
		return fmt.Errorf("blocker description required")
	}
	return nil
}

// UnmarshalJSON decodes and validates a Blocker.
func (b *Blocker) UnmarshalJSON(data []byte) error {
	type raw Blocker
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	out := Blocker(r)
	if err := out.Validate(); err != nil {
		return err
	}
	*b = out
	return nil
}

// Session is one tracked unit of agent work owned by an operator.
type Session struct {
	ID            string
	OperatorID    string
	Type          SessionType
	Status        SessionStatus
	StartedAt     time.Time
	EndedAt       *time.Time // set once, on the transition into a terminal status
	ContextIn     *string    // handoff inherited from a prior completed session
	ContextOut    *string
	DecisionsMade []Decision
	FilesChanged  []string
	Blockers      []Blocker
	NextTasks     []string
	HandoffPrompt *string
	AbandonReason *string
}

// Completion is the payload persisted when a session completes.
type Completion struct {
	ContextOut    *string    `json:"context_out,omitempty"`
	DecisionsMade []Decision `json:"decisions_made"`
	FilesChanged  []string   `json:"files_changed"`
	Blockers      []Blocker  `json:"blockers"`
	NextTasks     []string   `json:"next_tasks"`
}

// SessionAgent links an agent to a session.
type SessionAgent struct {
	SessionID string
	AgentID   string
	Role      Role
}

// LinkedAgent is an agent together with its role in one session.
type LinkedAgent struct {
	Agent
	Role Role
}

// Template is a prompt template with its variable schema.
type Template struct {
	ID          string
	Slug        string
	Name        string
	Description string
	Category    string
	Body        string
	Variables   []prompt.Variable
	Version     string
	UsageCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AgentFilter narrows ListAgents. Zero values match everything.
type AgentFilter struct {
	Status AgentStatus
}

// TemplateFilter narrows ListTemplates.
type TemplateFilter struct {
	Category string
}

// SessionFilter narrows ListSessions. From and To bound started_at (inclusive).
type SessionFilter struct {
	OperatorID string
	Status     SessionStatus
	Type       SessionType
	AgentID    string
	From       *time.Time
	To         *time.Time
	Limit      int
}
