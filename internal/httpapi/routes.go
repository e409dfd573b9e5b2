package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Plexify-AI/plexifybid-sub001/internal/errors"
	"github.com/Plexify-AI/plexifybid-sub001/internal/otel"
	"github.com/Plexify-AI/plexifybid-sub001/internal/prompt"
	"github.com/Plexify-AI/plexifybid-sub001/internal/store"
	"github.com/Plexify-AI/plexifybid-sub001/internal/wire"
	"github.com/Plexify-AI/plexifybid-sub001/pkg/models"
)

func (a *App) routes(mux *http.ServeMux) {
	// Agents
	mux.HandleFunc("GET /agents", a.listAgents)
	mux.HandleFunc("POST /agents", a.createAgent)
	mux.HandleFunc("GET /agents/{id}", a.getAgent)
	mux.HandleFunc("PATCH /agents/{id}", a.updateAgent)
	mux.HandleFunc("POST /agents/{id}/archive", a.archiveAgent)
	mux.HandleFunc("GET /agents/{id}/sessions", a.agentSessions)

	// Templates
	mux.HandleFunc("GET /templates", a.listTemplates)
	mux.HandleFunc("POST /templates", a.createTemplate)
	mux.HandleFunc("GET /templates/{slug}", a.getTemplate)
	mux.HandleFunc("PATCH /templates/{slug}", a.updateTemplate)
	mux.HandleFunc("POST /templates/{slug}/use", a.useTemplate)
	mux.HandleFunc("POST /render", a.render)

	// Sessions
	mux.HandleFunc("GET /sessions", a.listSessions)
	mux.HandleFunc("POST /sessions", a.startSession)
	mux.HandleFunc("GET /sessions/active", a.activeSession)
	mux.HandleFunc("GET /sessions/{id}", a.getSession)
	mux.HandleFunc("GET /sessions/{id}/agents", a.sessionAgents)
	mux.HandleFunc("POST /sessions/{id}/complete", a.completeSession)
	mux.HandleFunc("POST /sessions/{id}/abandon", a.abandonSession)
}

// --- Agents ---

func (a *App) listAgents(w http.ResponseWriter, r *http.Request) {
	list, err := a.Services.Catalog.ListAgents(r.Context(), store.AgentStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, wire.Agents(list))
}

func (a *App) createAgent(w http.ResponseWriter, r *http.Request) {
	var body models.CreateAgentRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	ag, err := a.Services.Catalog.CreateAgent(r.Context(), wire.ToAgentInput(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.Hub.Publish(models.Event{Type: EventAgent, ID: ag.ID, Slug: ag.Slug, Status: string(ag.Status)})
	writeJSONStatus(w, http.StatusCreated, wire.Agent(*ag))
}

func (a *App) getAgent(w http.ResponseWriter, r *http.Request) {
	ag, err := a.Services.Catalog.GetAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, wire.Agent(*ag))
}

func (a *App) updateAgent(w http.ResponseWriter, r *http.Request) {
	var body models.UpdateAgentRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	ag, err := a.Services.Catalog.UpdateAgent(r.Context(), r.PathValue("id"), wire.ToAgentPatch(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.Hub.Publish(models.Event{Type: EventAgent, ID: ag.ID, Slug: ag.Slug, Status: string(ag.Status)})
	writeJSON(w, wire.Agent(*ag))
}

func (a *App) archiveAgent(w http.ResponseWriter, r *http.Request) {
	ag, err := a.Services.Catalog.ArchiveAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.Hub.Publish(models.Event{Type: EventAgent, ID: ag.ID, Slug: ag.Slug, Status: string(ag.Status)})
	writeJSON(w, wire.Agent(*ag))
}

// agentSessions lists the sessions of every operator linked to the agent.
func (a *App) agentSessions(w http.ResponseWriter, r *http.Request) {
	ag, err := a.Services.Catalog.GetAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := parseSessionQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q.AgentID = ag.ID
	list, err := a.Services.Sessions.List(r.Context(), "", wire.ToSessionFilter(q))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, wire.Sessions(list))
}

// --- Templates ---

func (a *App) listTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := a.Services.Catalog.ListTemplates(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, wire.Templates(list))
}

func (a *App) createTemplate(w http.ResponseWriter, r *http.Request) {
	var body models.CreateTemplateRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	t, warnings, err := a.Services.Catalog.CreateTemplate(r.Context(), wire.ToTemplateInput(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.Hub.Publish(models.Event{Type: EventTemplate, ID: t.ID, Slug: t.Slug})
	writeJSONStatus(w, http.StatusCreated, models.TemplateResponse{Template: wire.Template(*t), Warnings: warnings})
}

func (a *App) getTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := a.Services.Catalog.GetTemplate(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, wire.Template(*t))
}

func (a *App) updateTemplate(w http.ResponseWriter, r *http.Request) {
	var body models.UpdateTemplateRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	t, warnings, err := a.Services.Catalog.UpdateTemplate(r.Context(), r.PathValue("slug"), wire.ToTemplatePatch(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.Hub.Publish(models.Event{Type: EventTemplate, ID: t.ID, Slug: t.Slug})
	writeJSON(w, models.TemplateResponse{Template: wire.Template(*t), Warnings: warnings})
}

func (a *App) useTemplate(w http.ResponseWriter, r *http.Request) {
	var body models.RenderRequest
	if err := decodeJSON(r, &body, true); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := a.Services.Catalog.UseTemplate(r.Context(), r.PathValue("slug"), body.Values, wire.RenderOptions(body)...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.Hub.Publish(models.Event{Type: EventTemplate, Slug: r.PathValue("slug")})
	writeJSON(w, models.RenderResponse{Rendered: res.Rendered, Warnings: res.Warnings, UsageCount: res.UsageCount})
}

// render renders an ad-hoc body against an inline schema without touching the catalog.
func (a *App) render(w http.ResponseWriter, r *http.Request) {
	var body models.RenderRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	vars, err := wire.ParseVariables(body.Variables)
	if err != nil {
		writeError(w, r, errors.NewValidationError(err.Error()).WithField("variables").WithCause(err))
		return
	}
	res := prompt.Render(body.Body, body.Values, vars, wire.RenderOptions(body)...)
	otel.RecordRenderWarnings(r.Context(), "inline", len(res.Warnings))
	writeJSON(w, models.RenderResponse{Rendered: res.Rendered, Warnings: res.Warnings})
}

// --- Sessions ---

// parseSessionQuery reads status, session_type, agent_id, from, to (RFC 3339),
// limit and all from the query string.
func parseSessionQuery(r *http.Request) (models.SessionQuery, error) {
	v := r.URL.Query()
	q := models.SessionQuery{
		Status:       v.Get("status"),
		SessionType:  v.Get("session_type"),
		AgentID:      v.Get("agent_id"),
		AllOperators: v.Get("all") == "true",
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &q.From}, {"to", &q.To}} {
		s := v.Get(p.name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, errors.NewValidationError("invalid time, want RFC 3339").WithField(p.name).WithValue(s)
		}
		*p.dst = &t
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return q, errors.NewValidationError("invalid limit").WithField("limit").WithValue(s)
		}
		q.Limit = n
	}
	return q, nil
}

func (a *App) listSessions(w http.ResponseWriter, r *http.Request) {
	q, err := parseSessionQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	operator := a.operator(r)
	if q.AllOperators {
		operator = ""
	}
	list, err := a.Services.Sessions.List(r.Context(), operator, wire.ToSessionFilter(q))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, wire.Sessions(list))
}

func (a *App) startSession(w http.ResponseWriter, r *http.Request) {
	var body models.StartSessionRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	operator := a.operator(r)
	res, err := a.Services.Sessions.Start(r.Context(), operator, wire.ToStartRequest(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.publishSession(res.Session)
	writeJSONStatus(w, http.StatusCreated, models.StartSessionResponse{Session: wire.Session(res.Session), ContextIn: res.ContextIn})
}

func (a *App) activeSession(w http.ResponseWriter, r *http.Request) {
	s, err := a.Services.Sessions.Active(r.Context(), a.operator(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, models.ActiveSessionResponse{Session: wire.SessionPtr(s)})
}

func (a *App) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := a.Services.Sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, wire.Session(*s))
}

func (a *App) sessionAgents(w http.ResponseWriter, r *http.Request) {
	list, err := a.Services.Sessions.Agents(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, wire.LinkedAgents(list))
}

func (a *App) completeSession(w http.ResponseWriter, r *http.Request) {
	var body models.CompleteSessionRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := a.Services.Sessions.Complete(r.Context(), a.operator(r), r.PathValue("id"), wire.ToCompletion(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.publishSession(res.Session)
	writeJSON(w, models.CompleteSessionResponse{Session: wire.Session(res.Session), HandoffPrompt: res.HandoffPrompt})
}

func (a *App) abandonSession(w http.ResponseWriter, r *http.Request) {
	var body models.AbandonSessionRequest
	if err := decodeJSON(r, &body, true); err != nil {
		writeError(w, r, err)
		return
	}
	if body.Reason != nil && strings.TrimSpace(*body.Reason) == "" {
		body.Reason = nil
	}
	s, err := a.Services.Sessions.Abandon(r.Context(), a.operator(r), r.PathValue("id"), body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.publishSession(*s)
	writeJSON(w, wire.Session(*s))
}

func (a *App) publishSession(s store.Session) {
	a.Hub.Publish(models.Event{Type: EventSession, ID: s.ID, Status: string(s.Status), Operator: s.OperatorID})
}
