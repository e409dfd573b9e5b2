// Package models provides the JSON types of the Plexify HTTP API.
// These types are stable for use by pkg/client and other consumers.
package models

import "time"

// Session statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusAbandoned = "abandoned"
)

// Session types.
const (
	TypeDevelopment = "development"
	TypeStrategy    = "strategy"
	TypeResearch    = "research"
	TypeReview      = "review"
	TypeDebug       = "debug"
	TypeCustom      = "custom"
)

// Agent roles within a session.
const (
	RolePrimary    = "primary"
	RoleSupporting = "supporting"
)

// Agent is a catalog entry that can be linked to sessions.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Description  string    `json:"description,omitempty"`
	Status       string    `json:"status"`
	Capabilities []string  `json:"capabilities"`
	Version      string    `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionAgent is an agent with its role in one session.
type SessionAgent struct {
	Agent
	Role string `json:"role"`
}

// Decision is a recorded decision of a completed session.
type Decision struct {
	Decision   string `json:"decision"`
	Rationale  string `json:"rationale"`
	Reversible bool   `json:"reversible"`
}

// Blocker is an obstacle recorded at completion.
type Blocker struct {
	Description string `json:"description"`
	Resolved    bool   `json:"resolved"`
	Resolution  string `json:"resolution,omitempty"`
}

// Session is one unit of agent work owned by an operator.
type Session struct {
	ID            string     `json:"id"`
	OperatorID    string     `json:"operator_id"`
	SessionType   string     `json:"session_type"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at"`
	ContextIn     *string    `json:"context_in"`
	ContextOut    *string    `json:"context_out"`
	DecisionsMade []Decision `json:"decisions_made"`
	FilesChanged  []string   `json:"files_changed"`
	Blockers      []Blocker  `json:"blockers"`
	NextTasks     []string   `json:"next_tasks"`
	HandoffPrompt *string    `json:"handoff_prompt"`
	AbandonReason *string    `json:"abandon_reason"`
}

// TemplateVariable declares one placeholder of a prompt template.
type TemplateVariable struct {
	Name         string `json:"name"`
	Type         string `json:"type,omitempty"`
	Required     bool   `json:"required"`
	DefaultValue string `json:"default_value,omitempty"`
	Description  string `json:"description,omitempty"`
}

// Template is a reusable prompt template.
type Template struct {
	ID           string             `json:"id"`
	Slug         string             `json:"slug"`
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	Category     string             `json:"category,omitempty"`
	TemplateBody string             `json:"template_body"`
	Variables    []TemplateVariable `json:"variables"`
	Version      string             `json:"version"`
	UsageCount   int                `json:"usage_count"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// StartSessionRequest is the body of POST /sessions.
type StartSessionRequest struct {
	SessionType string            `json:"session_type"`
	AgentIDs    []string          `json:"agent_ids"`
	Roles       map[string]string `json:"roles,omitempty"`
}

// StartSessionResponse is the result of POST /sessions.
type StartSessionResponse struct {
	Session   Session `json:"session"`
	ContextIn *string `json:"context_in"`
}

// CompleteSessionRequest is the body of POST /sessions/{id}/complete.
type CompleteSessionRequest struct {
	ContextOut    *string    `json:"context_out,omitempty"`
	DecisionsMade []Decision `json:"decisions_made"`
	FilesChanged  []string   `json:"files_changed"`
	Blockers      []Blocker  `json:"blockers"`
	NextTasks     []string   `json:"next_tasks"`
}

// CompleteSessionResponse is the result of POST /sessions/{id}/complete.
type CompleteSessionResponse struct {
	Session       Session `json:"session"`
	HandoffPrompt string  `json:"handoff_prompt"`
}

// AbandonSessionRequest is the body of POST /sessions/{id}/abandon.
type AbandonSessionRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// ActiveSessionResponse is the result of GET /sessions/active; Session is nil
// when the operator has no active session.
type ActiveSessionResponse struct {
	Session *Session `json:"session"`
}

// SessionQuery filters GET /sessions.
type SessionQuery struct {
	Status       string
	SessionType  string
	AgentID      string
	From         *time.Time
	To           *time.Time
	Limit        int
	AllOperators bool
}

// CreateAgentRequest is the body of POST /agents.
type CreateAgentRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Status       string   `json:"status,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// UpdateAgentRequest is the body of PATCH /agents/{id}; nil fields are left unchanged.
type UpdateAgentRequest struct {
	Name         *string  `json:"name,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Status       *string  `json:"status,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// CreateTemplateRequest is the body of POST /templates.
type CreateTemplateRequest struct {
	Slug         string             `json:"slug,omitempty"`
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	Category     string             `json:"category,omitempty"`
	TemplateBody string             `json:"template_body"`
	Variables    []TemplateVariable `json:"variables"`
}

// UpdateTemplateRequest is the body of PATCH /templates/{slug}.
type UpdateTemplateRequest struct {
	Name         *string            `json:"name,omitempty"`
	Description  *string            `json:"description,omitempty"`
	Category     *string            `json:"category,omitempty"`
	TemplateBody *string            `json:"template_body,omitempty"`
	Variables    []TemplateVariable `json:"variables,omitempty"`
}

// TemplateResponse is a template together with its schema warnings.
type TemplateResponse struct {
	Template Template `json:"template"`
	Warnings []string `json:"warnings"`
}

// RenderRequest is the body of POST /render and POST /templates/{slug}/use.
// Body and Variables are only read by /render.
type RenderRequest struct {
	Body          string             `json:"template_body,omitempty"`
	Variables     []TemplateVariable `json:"variables,omitempty"`
	Values        map[string]any     `json:"values"`
	WarnOnMissing *bool              `json:"warn_on_missing,omitempty"`
	StripUnknown  bool               `json:"strip_unknown,omitempty"`
}

// RenderResponse is the rendered text and its warnings. UsageCount is set by
// POST /templates/{slug}/use.
type RenderResponse struct {
	Rendered   string   `json:"rendered"`
	Warnings   []string `json:"warnings"`
	UsageCount int      `json:"usage_count,omitempty"`
}

// Config is the result of GET /config.
type Config struct {
	Home     string `json:"home"`
	Operator string `json:"operator"`
	DBDriver string `json:"db_driver"`
}

// Error is the body of every non-2xx response.
type Error struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Field string `json:"field,omitempty"`
	ID    string `json:"id,omitempty"`
}

// Event is a server-sent event on GET /stream.
type Event struct {
	Type     string `json:"type"` // session_update, agent_update, template_update
	ID       string `json:"id,omitempty"`
	Status   string `json:"status,omitempty"`
	Operator string `json:"operator,omitempty"`
	Slug     string `json:"slug,omitempty"`
}
