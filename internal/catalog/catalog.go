// Package catalog manages the agent and prompt template collections: slugs derived
// from names, PATCH version bumps on update, and the active-session guard on archive.
package catalog

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Plexify-AI/plexifybid-sub001/internal/errors"
	"github.com/Plexify-AI/plexifybid-sub001/internal/otel"
	"github.com/Plexify-AI/plexifybid-sub001/internal/prompt"
	"github.com/Plexify-AI/plexifybid-sub001/internal/slug"
	"github.com/Plexify-AI/plexifybid-sub001/internal/store"
	"github.com/Plexify-AI/plexifybid-sub001/internal/version"
)

// Catalog exposes agent and template CRUD over a store.
type Catalog struct {
	Store store.Store
	Now   func() time.Time
	NewID func() string
}

// New returns a Catalog using wall-clock time and random UUIDs.
func New(st store.Store) *Catalog {
	return &Catalog{Store: st, Now: time.Now, NewID: uuid.NewString}
}

func (c *Catalog) now() time.Time { return c.Now().UTC() }

// ---- Agents ----

// AgentInput is the create payload for an agent.
type AgentInput struct {
	Name         string            `json:"name" yaml:"name"`
	Description  string            `json:"description,omitempty" yaml:"description"`
	Status       store.AgentStatus `json:"status,omitempty" yaml:"status"`
	Capabilities []string          `json:"capabilities,omitempty" yaml:"capabilities"`
}

// AgentPatch lists the fields an update may change. Nil fields are left alone.
type AgentPatch struct {
	Name         *string            `json:"name,omitempty"`
	Description  *string            `json:"description,omitempty"`
	Status       *store.AgentStatus `json:"status,omitempty"`
	Capabilities *[]string          `json:"capabilities,omitempty"`
}

// CreateAgent adds an agent with a slug derived from its name and version 1.0.0.
func (c *Catalog) CreateAgent(ctx context.Context, in AgentInput) (*store.Agent, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errors.NewValidationError("name required").WithField("name")
	}
	status := in.Status
	if status == "" {
		status = store.AgentActive
	}
	if !status.Valid() {
		return nil, errors.NewValidationError("unknown agent status").WithField("status").WithValue(status)
	}
	now := c.now()
	a := store.Agent{
		ID:           c.NewID(),
		Name:         name,
		Slug:         slug.Make(name),
		Description:  in.Description,
		Status:       status,
		Capabilities: normalizeList(in.Capabilities),
		Version:      version.Initial,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.Store.CreateAgent(ctx, a); err != nil {
		if errors.Is(err, store.ErrSlugTaken) {
			return nil, errors.NewConflictError("agent", "slug already taken").WithID(a.Slug).WithCause(err)
		}
		return nil, errors.NewStorageError("create agent", err)
	}
	slog.Info("agent created", "agent_id", a.ID, "slug", a.Slug)
	return &a, nil
}

// GetAgent returns the agent with the given id or slug.
func (c *Catalog) GetAgent(ctx context.Context, idOrSlug string) (*store.Agent, error) {
	a, err := c.Store.GetAgent(ctx, idOrSlug)
	if err != nil {
		return nil, errors.NewStorageError("get agent", err)
	}
	if a == nil {
		if a, err = c.Store.GetAgentBySlug(ctx, idOrSlug); err != nil {
			return nil, errors.NewStorageError("get agent", err)
		}
	}
	if a == nil {
		return nil, errors.NewNotFoundError("agent", idOrSlug)
	}
	return a, nil
}

// ListAgents returns agents, optionally filtered by status.
func (c *Catalog) ListAgents(ctx context.Context, status store.AgentStatus) ([]store.Agent, error) {
	if status != "" && !status.Valid() {
		return nil, errors.NewValidationError("unknown agent status").WithField("status").WithValue(status)
	}
	out, err := c.Store.ListAgents(ctx, store.AgentFilter{Status: status})
	if err != nil {
		return nil, errors.NewStorageError("list agents", err)
	}
	return out, nil
}

// UpdateAgent applies p and bumps the PATCH version. Setting status to archived goes
// through the same guard as ArchiveAgent.
func (c *Catalog) UpdateAgent(ctx context.Context, idOrSlug string, p AgentPatch) (*store.Agent, error) {
	a, err := c.GetAgent(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, errors.NewValidationError("name must not be empty").WithField("name")
		}
		a.Name = name
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.Capabilities != nil {
		a.Capabilities = normalizeList(*p.Capabilities)
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return nil, errors.NewValidationError("unknown agent status").WithField("status").WithValue(*p.Status)
		}
		if *p.Status == store.AgentArchived && a.Status != store.AgentArchived {
			if err := c.guardArchive(ctx, a.ID); err != nil {
				return nil, err
			}
		}
		a.Status = *p.Status
	}
	a.Version = version.BumpPatch(a.Version)
	a.UpdatedAt = c.now()
	if err := c.Store.UpdateAgent(ctx, *a); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errors.NewNotFoundError("agent", idOrSlug)
		}
		return nil, errors.NewStorageError("update agent", err)
	}
	slog.Info("agent updated", "agent_id", a.ID, "version", a.Version, "status", a.Status)
	return a, nil
}

// ArchiveAgent sets the agent's status to archived. It is refused with a ConflictError
// while the agent is linked to an active session.
func (c *Catalog) ArchiveAgent(ctx context.Context, idOrSlug string) (*store.Agent, error) {
	archived := store.AgentArchived
	return c.UpdateAgent(ctx, idOrSlug, AgentPatch{Status: &archived})
}

func (c *Catalog) guardArchive(ctx context.Context, agentID string) error {
	n, err := c.Store.CountActiveSessionsForAgent(ctx, agentID)
	if err != nil {
		return errors.NewStorageError("count active sessions", err)
	}
	if n > 0 {
		return errors.NewConflictError("agent", "linked to an active session").WithID(agentID)
	}
	return nil
}

// ---- Templates ----

// TemplateInput is the create payload for a template, and the shape of a template file.
type TemplateInput struct {
	Slug        string            `json:"slug,omitempty" yaml:"slug"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description"`
	Category    string            `json:"category,omitempty" yaml:"category"`
	Body        string            `json:"template_body" yaml:"template_body"`
	Variables   []prompt.Variable `json:"variables" yaml:"variables"`
}

// TemplatePatch lists the template fields an update may change.
type TemplatePatch struct {
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	Category    *string            `json:"category,omitempty"`
	Body        *string            `json:"template_body,omitempty"`
	Variables   *[]prompt.Variable `json:"variables,omitempty"`
}

// CreateTemplate adds a template. The slug defaults to one derived from the name. The
// returned warnings name placeholders without a variable and variables never used.
func (c *Catalog) CreateTemplate(ctx context.Context, in TemplateInput) (*store.Template, []string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, nil, errors.NewValidationError("name required").WithField("name")
	}
	s := strings.TrimSpace(in.Slug)
	if s == "" {
		s = slug.Make(name)
	} else if !slug.Valid(s) {
		return nil, nil, errors.NewValidationError("slug must be lowercase kebab-case").WithField("slug").WithValue(s)
	}
	vars := normalizeVars(in.Variables)
	if err := prompt.ValidateSchema(vars); err != nil {
		return nil, nil, errors.NewValidationError(err.Error()).WithField("variables").WithCause(err)
	}
	now := c.now()
	t := store.Template{
		ID:          c.NewID(),
		Slug:        s,
		Name:        name,
		Description: in.Description,
		Category:    in.Category,
		Body:        in.Body,
		Variables:   vars,
		Version:     version.Initial,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.Store.CreateTemplate(ctx, t); err != nil {
		if errors.Is(err, store.ErrSlugTaken) {
			return nil, nil, errors.NewConflictError("template", "slug already taken").WithID(s).WithCause(err)
		}
		return nil, nil, errors.NewStorageError("create template", err)
	}
	slog.Info("template created", "slug", t.Slug)
	return &t, SchemaWarnings(t.Body, t.Variables), nil
}

// GetTemplate returns the template with the given slug.
func (c *Catalog) GetTemplate(ctx context.Context, s string) (*store.Template, error) {
	t, err := c.Store.GetTemplateBySlug(ctx, s)
	if err != nil {
		return nil, errors.NewStorageError("get template", err)
	}
	if t == nil {
		return nil, errors.NewNotFoundError("template", s)
	}
	return t, nil
}

// ListTemplates returns templates, optionally filtered by category.
func (c *Catalog) ListTemplates(ctx context.Context, category string) ([]store.Template, error) {
	out, err := c.Store.ListTemplates(ctx, store.TemplateFilter{Category: category})
	if err != nil {
		return nil, errors.NewStorageError("list templates", err)
	}
	return out, nil
}

// UpdateTemplate applies p and bumps the PATCH version.
func (c *Catalog) UpdateTemplate(ctx context.Context, s string, p TemplatePatch) (*store.Template, []string, error) {
	t, err := c.GetTemplate(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, nil, errors.NewValidationError("name must not be empty").WithField("name")
		}
		t.Name = name
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Body != nil {
		t.Body = *p.Body
	}
	if p.Variables != nil {
		vars := normalizeVars(*p.Variables)
		if err := prompt.ValidateSchema(vars); err != nil {
			return nil, nil, errors.NewValidationError(err.Error()).WithField("variables").WithCause(err)
		}
		t.Variables = vars
	}
	t.Version = version.BumpPatch(t.Version)
	t.UpdatedAt = c.now()
	if err := c.Store.UpdateTemplate(ctx, *t); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, errors.NewNotFoundError("template", s)
		}
		return nil, nil, errors.NewStorageError("update template", err)
	}
	slog.Info("template updated", "slug", t.Slug, "version", t.Version)
	return t, SchemaWarnings(t.Body, t.Variables), nil
}

// UseResult is the outcome of UseTemplate.
type UseResult struct {
	prompt.Result
	UsageCount int `json:"usage_count"`
}

// UseTemplate renders the template with values and then increments its usage count.
func (c *Catalog) UseTemplate(ctx context.Context, s string, values map[string]any, opts ...prompt.Option) (UseResult, error) {
	t, err := c.GetTemplate(ctx, s)
	if err != nil {
		return UseResult{}, err
	}
	res := prompt.Render(t.Body, values, t.Variables, opts...)
	n, err := c.Store.IncrementTemplateUsage(ctx, s)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UseResult{}, errors.NewNotFoundError("template", s)
		}
		return UseResult{}, errors.NewStorageError("increment template usage", err)
	}
	otel.RecordTemplateUse(ctx, s, len(res.Warnings))
	return UseResult{Result: res, UsageCount: n}, nil
}

// SchemaWarnings reports placeholders in body that have no variable, and variables
// that body never references.
func SchemaWarnings(body string, vars []prompt.Variable) []string {
	warnings := []string{}
	declared := make(map[string]bool, len(vars))
	for _, v := range vars {
		declared[v.Name] = true
	}
	for _, name := range prompt.Placeholders(body) {
		if !declared[name] {
			warnings = append(warnings, "Placeholder {{"+name+"}} has no variable definition")
		}
	}
	for _, v := range vars {
		if !strings.Contains(body, "{{"+v.Name+"}}") {
			warnings = append(warnings, "Variable "+v.Name+" is not used in the template body")
		}
	}
	return warnings
}

// LoadTemplateFile reads a YAML template definition.
func LoadTemplateFile(path string) (TemplateInput, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return TemplateInput{}, err
	}
	return ParseTemplate(b)
}

// ParseTemplate decodes a YAML template definition and validates its schema.
func ParseTemplate(b []byte) (TemplateInput, error) {
	var in TemplateInput
	if err := yaml.Unmarshal(b, &in); err != nil {
		return TemplateInput{}, errors.NewValidationError("malformed template file").WithCause(err)
	}
	in.Variables = normalizeVars(in.Variables)
	if err := prompt.ValidateSchema(in.Variables); err != nil {
		return TemplateInput{}, errors.NewValidationError(err.Error()).WithField("variables").WithCause(err)
	}
	return in, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// normalizeVars fills in the default type for variables decoded without one.
func normalizeVars(in []prompt.Variable) []prompt.Variable {
	out := make([]prompt.Variable, len(in))
	for i, v := range in {
		if v.Type == "" {
			v.Type = prompt.TypeString
		}
		out[i] = v
	}
	return out
}
