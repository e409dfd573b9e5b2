package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Plexify-AI/plexifybid-sub001/internal/httpapi"
	"github.com/Plexify-AI/plexifybid-sub001/pkg/models"
)

func TestNew(t *testing.T) {
	c := New("http://localhost:3548", "")
	if c.BaseURL != "http://localhost:3548" || c.APIKey != "" {
		t.Errorf("New: %+v", c)
	}
	c2 := New("http://localhost:3548", "secret")
	if c2.APIKey != "secret" {
		t.Errorf("New with key: %+v", c2)
	}
	c3 := c2.WithOperator("ana")
	if c3.Operator != "ana" || c2.Operator != "" {
		t.Errorf("WithOperator: %+v %+v", c2, c3)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()
	ok, err := New(srv.URL, "").Health(context.Background())
	if err != nil || !ok {
		t.Fatalf("Health: ok=%v err=%v", ok, err)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"session conflict: operator already has an active session","kind":"conflict","id":"s1"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").StartSession(context.Background(), models.StartSessionRequest{SessionType: "debug"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *APIError, got %T %v", err, err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Kind() != "conflict" || apiErr.Body.ID != "s1" {
		t.Errorf("APIError: %+v", apiErr)
	}
	if !strings.Contains(err.Error(), "POST /sessions") {
		t.Errorf("Error(): %q", err.Error())
	}
}

func TestAPIError_noBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	_, err := New(srv.URL, "").Health(context.Background())
	if err == nil || !strings.Contains(err.Error(), "status 502") {
		t.Fatalf("want status error, got %v", err)
	}
}

func TestClient_setsHeaders(t *testing.T) {
	var gotKey, gotOperator string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotOperator = r.Header.Get("X-Operator")
		_ = json.NewEncoder(w).Encode(models.ActiveSessionResponse{})
	}))
	defer srv.Close()
	c := New(srv.URL, "secret").WithOperator("ana")
	s, err := c.ActiveSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s != nil {
		t.Errorf("want nil session, got %+v", s)
	}
	if gotKey != "secret" || gotOperator != "ana" {
		t.Errorf("headers: key=%q operator=%q", gotKey, gotOperator)
	}
}

func TestSessionQuery(t *testing.T) {
	from := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := sessionQuery(models.SessionQuery{Status: "completed", From: &from, Limit: 5, AllOperators: true})
	for _, want := range []string{"status=completed", "from=2026-01-02T03%3A04%3A05Z", "limit=5", "all=true"} {
		if !strings.Contains(got, want) {
			t.Errorf("query %q missing %q", got, want)
		}
	}
	if sessionQuery(models.SessionQuery{}) != "" {
		t.Error("empty query should be empty")
	}
}

func newAPI(t *testing.T) *Client {
	t.Helper()
	app, err := httpapi.NewApp(httpapi.ServerOptions{Home: t.TempDir(), Operator: "ken"})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ts := httptest.NewServer(app.Server.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = app.Services.Close()
	})
	return New(ts.URL, "")
}

func TestClient_sessionRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newAPI(t)

	agent, err := c.CreateAgent(ctx, models.CreateAgentRequest{Name: "Code Reviewer", Capabilities: []string{"review"}})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if agent.Slug != "code-reviewer" || agent.Status != "active" {
		t.Errorf("agent: %+v", agent)
	}

	started, err := c.StartSession(ctx, models.StartSessionRequest{SessionType: models.TypeReview, AgentIDs: []string{agent.ID}})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if started.ContextIn != nil {
		t.Errorf("first session should have no carryover: %q", *started.ContextIn)
	}

	_, err = c.StartSession(ctx, models.StartSessionRequest{SessionType: models.TypeReview, AgentIDs: []string{agent.ID}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind() != "conflict" {
		t.Fatalf("second start: want conflict, got %v", err)
	}

	active, err := c.ActiveSession(ctx)
	if err != nil || active == nil || active.ID != started.Session.ID {
		t.Fatalf("ActiveSession: %+v %v", active, err)
	}
	agents, err := c.SessionAgents(ctx, started.Session.ID)
	if err != nil || len(agents) != 1 || agents[0].Role != models.RolePrimary {
		t.Fatalf("SessionAgents: %+v %v", agents, err)
	}

	out := "reviewed the parser"
	done, err := c.CompleteSession(ctx, started.Session.ID, models.CompleteSessionRequest{
		ContextOut:    &out,
		DecisionsMade: []models.Decision{{Decision: "keep lexer", Rationale: "fast enough", Reversible: true}},
		NextTasks:     []string{"fuzz the parser"},
	})
	if err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	if done.Session.Status != models.StatusCompleted || !strings.Contains(done.HandoffPrompt, "fuzz the parser") {
		t.Errorf("complete: %+v", done)
	}

	next, err := c.StartSession(ctx, models.StartSessionRequest{SessionType: models.TypeReview, AgentIDs: []string{agent.ID}})
	if err != nil {
		t.Fatalf("StartSession again: %v", err)
	}
	if next.ContextIn == nil || *next.ContextIn != done.HandoffPrompt {
		t.Errorf("carryover: %v", next.ContextIn)
	}

	reason := "scope changed"
	ab, err := c.AbandonSession(ctx, next.Session.ID, &reason)
	if err != nil || ab.Status != models.StatusAbandoned {
		t.Fatalf("AbandonSession: %+v %v", ab, err)
	}

	list, err := c.ListSessions(ctx, models.SessionQuery{Status: models.StatusCompleted})
	if err != nil || len(list) != 1 || list[0].ID != started.Session.ID {
		t.Fatalf("ListSessions: %+v %v", list, err)
	}
	linked, err := c.AgentSessions(ctx, agent.ID, models.SessionQuery{})
	if err != nil || len(linked) != 2 {
		t.Fatalf("AgentSessions: %d %v", len(linked), err)
	}

	other, err := c.WithOperator("ana").ActiveSession(ctx)
	if err != nil || other != nil {
		t.Errorf("other operator active: %+v %v", other, err)
	}
}

func TestClient_templates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newAPI(t)

	created, err := c.CreateTemplate(ctx, models.CreateTemplateRequest{
		Name:         "Greeting",
		TemplateBody: "Hi {{name}}, see {{link}}",
		Variables:    []models.TemplateVariable{{Name: "name", Required: true}},
	})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if created.Template.Slug != "greeting" || len(created.Warnings) != 1 {
		t.Errorf("created: %+v", created)
	}

	res, err := c.UseTemplate(ctx, "greeting", models.RenderRequest{Values: map[string]any{"name": "Ana"}})
	if err != nil {
		t.Fatalf("UseTemplate: %v", err)
	}
	if res.UsageCount != 1 || !strings.HasPrefix(res.Rendered, "Hi Ana") {
		t.Errorf("use: %+v", res)
	}

	desc := "says hello"
	upd, err := c.UpdateTemplate(ctx, "greeting", models.UpdateTemplateRequest{Description: &desc})
	if err != nil || upd.Template.Description != desc {
		t.Fatalf("UpdateTemplate: %+v %v", upd, err)
	}
	tpl, err := c.GetTemplate(ctx, "greeting")
	if err != nil || tpl.UsageCount != 1 {
		t.Fatalf("GetTemplate: %+v %v", tpl, err)
	}

	list, err := c.ListTemplates(ctx, "")
	if err != nil || len(list) < 2 {
		t.Fatalf("ListTemplates: %d %v", len(list), err)
	}

	inline, err := c.Render(ctx, models.RenderRequest{
		Body:      "{{a}}-{{b}}",
		Variables: []models.TemplateVariable{{Name: "a", Type: "number"}, {Name: "b"}},
		Values:    map[string]any{"a": 100000000, "b": "x"},
	})
	if err != nil || inline.Rendered != "100000000-x" {
		t.Fatalf("Render: %+v %v", inline, err)
	}

	_, err = c.GetTemplate(ctx, "ghost")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("GetTemplate ghost: %v", err)
	}
}

func TestClient_agents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newAPI(t)

	a, err := c.CreateAgent(ctx, models.CreateAgentRequest{Name: "Planner"})
	if err != nil {
		t.Fatal(err)
	}
	name := "Lead Planner"
	u, err := c.UpdateAgent(ctx, a.Slug, models.UpdateAgentRequest{Name: &name})
	if err != nil || u.Name != name || u.Slug != a.Slug {
		t.Fatalf("UpdateAgent: %+v %v", u, err)
	}
	arch, err := c.ArchiveAgent(ctx, a.ID)
	if err != nil || arch.Status != "archived" {
		t.Fatalf("ArchiveAgent: %+v %v", arch, err)
	}
	active, err := c.ListAgents(ctx, "active")
	if err != nil || len(active) != 0 {
		t.Fatalf("ListAgents active: %+v %v", active, err)
	}
	got, err := c.GetAgent(ctx, a.ID)
	if err != nil || got.Status != "archived" {
		t.Fatalf("GetAgent: %+v %v", got, err)
	}

	_, err = c.StartSession(ctx, models.StartSessionRequest{SessionType: "debug", AgentIDs: []string{"ghost"}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind() != "not_found" {
		t.Fatalf("start with unknown agent: want not_found, got %v", err)
	}

	cfg, err := c.Config(ctx)
	if err != nil || cfg.Operator != "ken" || cfg.DBDriver != "sqlite" {
		t.Fatalf("Config: %+v %v", cfg, err)
	}
}
