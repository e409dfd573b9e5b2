// Package wire converts between the store and prompt domain types and the
// pkg/models API types carried over HTTP and gRPC.
package wire

import (
	"time"

	"github.com/Plexify-AI/plexifybid-sub001/internal/catalog"
	"github.com/Plexify-AI/plexifybid-sub001/internal/prompt"
	"github.com/Plexify-AI/plexifybid-sub001/internal/session"
	"github.com/Plexify-AI/plexifybid-sub001/internal/store"
	"github.com/Plexify-AI/plexifybid-sub001/pkg/models"
)

func Agent(a store.Agent) models.Agent {
	caps := a.Capabilities
	if caps == nil {
		caps = []string{}
	}
	return models.Agent{
		ID:           a.ID,
		Name:         a.Name,
		Slug:         a.Slug,
		Description:  a.Description,
		Status:       string(a.Status),
		Capabilities: caps,
		Version:      a.Version,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func Agents(in []store.Agent) []models.Agent {
	out := make([]models.Agent, len(in))
	for i, a := range in {
		out[i] = Agent(a)
	}
	return out
}

func LinkedAgents(in []store.LinkedAgent) []models.SessionAgent {
	out := make([]models.SessionAgent, len(in))
	for i, l := range in {
		out[i] = models.SessionAgent{Agent: Agent(l.Agent), Role: string(l.Role)}
	}
	return out
}

func Session(s store.Session) models.Session {
	out := models.Session{
		ID:            s.ID,
		OperatorID:    s.OperatorID,
		SessionType:   string(s.Type),
		Status:        string(s.Status),
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		ContextIn:     s.ContextIn,
		ContextOut:    s.ContextOut,
		DecisionsMade: make([]models.Decision, len(s.DecisionsMade)),
		FilesChanged:  orEmpty(s.FilesChanged),
		Blockers:      make([]models.Blocker, len(s.Blockers)),
		NextTasks:     orEmpty(s.NextTasks),
		HandoffPrompt: s.HandoffPrompt,
		AbandonReason: s.AbandonReason,
	}
	for i, d := range s.DecisionsMade {
		out.DecisionsMade[i] = models.Decision(d)
	}
	for i, b := range s.Blockers {
		out.Blockers[i] = models.Blocker(b)
	}
	return out
}

// SessionPtr converts s, keeping nil as nil.
func SessionPtr(s *store.Session) *models.Session {
	if s == nil {
		return nil
	}
	m := Session(*s)
	return &m
}

func Sessions(in []store.Session) []models.Session {
	out := make([]models.Session, len(in))
	for i, s := range in {
		out[i] = Session(s)
	}
	return out
}

func Template(t store.Template) models.Template {
	return models.Template{
		ID:           t.ID,
		Slug:         t.Slug,
		Name:         t.Name,
		Description:  t.Description,
		Category:     t.Category,
		TemplateBody: t.Body,
		Variables:    Variables(t.Variables),
		Version:      t.Version,
		UsageCount:   t.UsageCount,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func Templates(in []store.Template) []models.Template {
	out := make([]models.Template, len(in))
	for i, t := range in {
		out[i] = Template(t)
	}
	return out
}

func Variables(in []prompt.Variable) []models.TemplateVariable {
	out := make([]models.TemplateVariable, len(in))
	for i, v := range in {
		out[i] = models.TemplateVariable{
			Name:         v.Name,
			Type:         string(v.Type),
			Required:     v.Required,
			DefaultValue: v.DefaultValue,
			Description:  v.Description,
		}
	}
	return out
}

// ToVariables converts API variables. Unknown types are rejected later by the
// catalog's schema validation, which reports the offending variable.
func ToVariables(in []models.TemplateVariable) []prompt.Variable {
	if in == nil {
		return nil
	}
	out := make([]prompt.Variable, len(in))
	for i, v := range in {
		out[i] = prompt.Variable{
			Name:         v.Name,
			Type:         prompt.VarType(v.Type),
			Required:     v.Required,
			DefaultValue: v.DefaultValue,
			Description:  v.Description,
		}
	}
	return out
}

// ParseVariables converts and validates API variables; an empty type means string.
func ParseVariables(in []models.TemplateVariable) ([]prompt.Variable, error) {
	out := make([]prompt.Variable, len(in))
	for i, v := range in {
		typ, err := prompt.ParseVarType(v.Type)
		if err != nil {
			return nil, err
		}
		if out[i], err = prompt.NewVariable(v.Name, typ, v.DefaultValue, v.Required, v.Description); err != nil {
			return nil, err
		}
	}
	return out, prompt.ValidateSchema(out)
}

func ToStartRequest(r models.StartSessionRequest) session.StartRequest {
	out := session.StartRequest{Type: store.SessionType(r.SessionType), AgentIDs: r.AgentIDs}
	if len(r.Roles) > 0 {
		out.Roles = make(map[string]store.Role, len(r.Roles))
		for id, role := range r.Roles {
			out.Roles[id] = store.Role(role)
		}
	}
	return out
}

// ToCompletion converts a completion payload without validating it; the
// session manager reports malformed entries as validation errors.
func ToCompletion(r models.CompleteSessionRequest) store.Completion {
	c := store.Completion{
		ContextOut:    r.ContextOut,
		DecisionsMade: make([]store.Decision, len(r.DecisionsMade)),
		FilesChanged:  orEmpty(r.FilesChanged),
		Blockers:      make([]store.Blocker, len(r.Blockers)),
		NextTasks:     r.NextTasks,
	}
	for i, d := range r.DecisionsMade {
		c.DecisionsMade[i] = store.Decision(d)
	}
	for i, b := range r.Blockers {
		c.Blockers[i] = store.Blocker(b)
	}
	return c
}

func ToAgentInput(r models.CreateAgentRequest) catalog.AgentInput {
	return catalog.AgentInput{
		Name:         r.Name,
		Description:  r.Description,
		Status:       store.AgentStatus(r.Status),
		Capabilities: r.Capabilities,
	}
}

func ToAgentPatch(r models.UpdateAgentRequest) catalog.AgentPatch {
	p := catalog.AgentPatch{Name: r.Name, Description: r.Description}
	if r.Status != nil {
		st := store.AgentStatus(*r.Status)
		p.Status = &st
	}
	if r.Capabilities != nil {
		caps := r.Capabilities
		p.Capabilities = &caps
	}
	return p
}

func ToTemplateInput(r models.CreateTemplateRequest) catalog.TemplateInput {
	return catalog.TemplateInput{
		Slug:        r.Slug,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Body:        r.TemplateBody,
		Variables:   ToVariables(r.Variables),
	}
}

func ToTemplatePatch(r models.UpdateTemplateRequest) catalog.TemplatePatch {
	p := catalog.TemplatePatch{Name: r.Name, Description: r.Description, Category: r.Category, Body: r.TemplateBody}
	if r.Variables != nil {
		vars := ToVariables(r.Variables)
		p.Variables = &vars
	}
	return p
}

// RenderOptions maps the request flags to prompt options.
func RenderOptions(r models.RenderRequest) []prompt.Option {
	var opts []prompt.Option
	if r.WarnOnMissing != nil {
		opts = append(opts, prompt.WithWarnOnMissing(*r.WarnOnMissing))
	}
	if r.StripUnknown {
		opts = append(opts, prompt.WithStripUnknown(true))
	}
	return opts
}

// ToSessionFilter converts a query; the manager validates the enum values.
func ToSessionFilter(q models.SessionQuery) store.SessionFilter {
	return store.SessionFilter{
		Status:  store.SessionStatus(q.Status),
		Type:    store.SessionType(q.SessionType),
		AgentID: q.AgentID,
		From:    utcPtr(q.From),
		To:      utcPtr(q.To),
		Limit:   q.Limit,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
