package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Plexify-AI/plexifybid-sub001/pkg/models"
)

func newTestServer(t *testing.T, opts ServerOptions) *httptest.Server {
	t.Helper()
	opts.Home = t.TempDir()
	if opts.Operator == "" {
		opts.Operator = "ken"
	}
	app, err := NewApp(opts)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ts := httptest.NewServer(app.Server.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = app.Services.Close()
	})
	return ts
}

// call sends a JSON request and decodes the response into out when non-nil.
func call(t *testing.T, ts *httptest.Server, method, path string, body any, out any, headers ...string) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestServerSmoke(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, ServerOptions{})

	if code := call(t, ts, http.MethodGet, "/health", nil, nil); code != http.StatusOK {
		t.Fatalf("/health status=%d", code)
	}
	resp, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics: %v", err)
	}
	_ = resp.Body.Close()

	var cfg map[string]any
	if code := call(t, ts, http.MethodGet, "/config", nil, &cfg, OperatorHeader, "ana"); code != http.StatusOK || cfg["operator"] != "ana" || cfg["db_driver"] != "sqlite" {
		t.Fatalf("/config: %d %v", code, cfg)
	}

	var tpl models.Template
	if code := call(t, ts, http.MethodGet, "/templates/session-handoff", nil, &tpl); code != http.StatusOK || len(tpl.Variables) == 0 {
		t.Fatalf("handoff template not seeded: %d %+v", code, tpl)
	}
	if code := call(t, ts, http.MethodDelete, "/agents", nil, nil); code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE /agents status=%d", code)
	}
}

func TestAgents(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, ServerOptions{})

	var a models.Agent
	if code := call(t, ts, http.MethodPost, "/agents", models.CreateAgentRequest{Name: "Code Reviewer", Capabilities: []string{"review"}}, &a); code != http.StatusCreated {
		t.Fatalf("POST /agents status=%d", code)
	}
	if a.Slug != "code-reviewer" || a.Version != "1.0.0" {
		t.Fatalf("agent: %+v", a)
	}
	var e models.Error
	if code := call(t, ts, http.MethodPost, "/agents", models.CreateAgentRequest{Name: "code reviewer"}, &e); code != http.StatusConflict || e.Kind != "conflict" {
		t.Fatalf("duplicate: %d %+v", code, e)
	}

	desc := "reviews code"
	var updated models.Agent
	if code := call(t, ts, http.MethodPatch, "/agents/code-reviewer", models.UpdateAgentRequest{Description: &desc}, &updated); code != http.StatusOK || updated.Version != "1.0.1" {
		t.Fatalf("PATCH: %d %+v", code, updated)
	}
	var list []models.Agent
	if code := call(t, ts, http.MethodGet, "/agents?status=active", nil, &list); code != http.StatusOK || len(list) != 1 {
		t.Fatalf("GET /agents: %d %v", code, list)
	}
	if code := call(t, ts, http.MethodGet, "/agents?status=bogus", nil, &e); code != http.StatusBadRequest || e.Field != "status" {
		t.Fatalf("bad status filter: %d %+v", code, e)
	}
	if code := call(t, ts, http.MethodGet, "/agents/ghost", nil, &e); code != http.StatusNotFound || e.Kind != "not_found" {
		t.Fatalf("missing agent: %d %+v", code, e)
	}
	var archived models.Agent
	if code := call(t, ts, http.MethodPost, "/agents/"+a.ID+"/archive", nil, &archived); code != http.StatusOK || archived.Status != "archived" {
		t.Fatalf("archive: %d %+v", code, archived)
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, ServerOptions{})

	var a models.Agent
	call(t, ts, http.MethodPost, "/agents", models.CreateAgentRequest{Name: "Builder"}, &a)

	start := models.StartSessionRequest{SessionType: "development", AgentIDs: []string{a.ID}}
	var started models.StartSessionResponse
	if code := call(t, ts, http.MethodPost, "/sessions", start, &started); code != http.StatusCreated {
		t.Fatalf("start status=%d", code)
	}
	id := started.Session.ID
	if started.Session.Status != "active" || started.Session.OperatorID != "ken" || started.ContextIn != nil {
		t.Fatalf("started: %+v", started)
	}

	var e models.Error
	if code := call(t, ts, http.MethodPost, "/sessions", start, &e); code != http.StatusConflict || e.ID != id {
		t.Fatalf("second start: %d %+v", code, e)
	}
	if code := call(t, ts, http.MethodPost, "/sessions", start, nil, OperatorHeader, "ana"); code != http.StatusCreated {
		t.Fatalf("other operator start: %d", code)
	}
	if code := call(t, ts, http.MethodPost, "/agents/"+a.ID+"/archive", nil, &e); code != http.StatusConflict {
		t.Fatalf("archive linked agent: %d", code)
	}

	var active models.ActiveSessionResponse
	if code := call(t, ts, http.MethodGet, "/sessions/active", nil, &active); code != http.StatusOK || active.Session == nil || active.Session.ID != id {
		t.Fatalf("active: %d %+v", code, active)
	}

	if code := call(t, ts, http.MethodPost, "/sessions/"+id+"/complete", models.CompleteSessionRequest{}, &e); code != http.StatusBadRequest || e.Field != "next_tasks" {
		t.Fatalf("complete without tasks: %d %+v", code, e)
	}
	if code := call(t, ts, http.MethodPost, "/sessions/"+id+"/complete", `{`, &e); code != http.StatusBadRequest || e.Kind != "validation" {
		t.Fatalf("complete bad json: %d %+v", code, e)
	}
	bad := models.CompleteSessionRequest{NextTasks: []string{"x"}, DecisionsMade: []models.Decision{{Rationale: "no text"}}}
	if code := call(t, ts, http.MethodPost, "/sessions/"+id+"/complete", bad, &e); code != http.StatusBadRequest || e.Field != "decisions_made" {
		t.Fatalf("complete bad decision: %d %+v", code, e)
	}

	comp := models.CompleteSessionRequest{
		DecisionsMade: []models.Decision{{Decision: "Use arenas", Rationale: "perf", Reversible: true}},
		FilesChanged:  []string{"a.ts"},
		NextTasks:     []string{"Write tests", "Ship"},
	}
	var done models.CompleteSessionResponse
	if code := call(t, ts, http.MethodPost, "/sessions/"+id+"/complete", comp, &done); code != http.StatusOK {
		t.Fatalf("complete status=%d", code)
	}
	if done.Session.Status != "completed" || done.Session.EndedAt == nil || !strings.Contains(done.HandoffPrompt, "Then: Ship") {
		t.Fatalf("completed: %+v", done)
	}
	if code := call(t, ts, http.MethodPost, "/sessions/"+id+"/abandon", nil, &e); code != http.StatusConflict {
		t.Fatalf("abandon completed: %d", code)
	}

	active = models.ActiveSessionResponse{}
	call(t, ts, http.MethodGet, "/sessions/active", nil, &active)
	if active.Session != nil {
		t.Fatalf("active after complete: %+v", active.Session)
	}

	var next models.StartSessionResponse
	if code := call(t, ts, http.MethodPost, "/sessions", start, &next); code != http.StatusCreated || next.ContextIn == nil || *next.ContextIn != done.HandoffPrompt {
		t.Fatalf("carryover: %d %+v", code, next)
	}
	reason := "wrong branch"
	var abandoned models.Session
	if code := call(t, ts, http.MethodPost, "/sessions/"+next.Session.ID+"/abandon", models.AbandonSessionRequest{Reason: &reason}, &abandoned); code != http.StatusOK || abandoned.AbandonReason == nil {
		t.Fatalf("abandon: %d %+v", code, abandoned)
	}

	var linked []models.SessionAgent
	if code := call(t, ts, http.MethodGet, "/sessions/"+id+"/agents", nil, &linked); code != http.StatusOK || len(linked) != 1 || linked[0].Role != "primary" {
		t.Fatalf("session agents: %d %+v", code, linked)
	}
	var mine, all, byAgent []models.Session
	call(t, ts, http.MethodGet, "/sessions", nil, &mine)
	call(t, ts, http.MethodGet, "/sessions?all=true", nil, &all)
	call(t, ts, http.MethodGet, "/agents/builder/sessions?status=completed", nil, &byAgent)
	if len(mine) != 2 || len(all) != 3 || len(byAgent) != 1 {
		t.Fatalf("lists: mine=%d all=%d byAgent=%d", len(mine), len(all), len(byAgent))
	}
	if code := call(t, ts, http.MethodGet, "/sessions?from=yesterday", nil, &e); code != http.StatusBadRequest || e.Field != "from" {
		t.Fatalf("bad from: %d %+v", code, e)
	}
	if code := call(t, ts, http.MethodGet, "/sessions/missing", nil, &e); code != http.StatusNotFound {
		t.Fatalf("missing session: %d", code)
	}
}

func TestTemplatesAndRender(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, ServerOptions{})

	var created models.TemplateResponse
	req := models.CreateTemplateRequest{
		Name:         "Greeting",
		TemplateBody: "Hello, {{name}}! {{extra}}",
		Variables:    []models.TemplateVariable{{Name: "name", Required: true}},
	}
	if code := call(t, ts, http.MethodPost, "/templates", req, &created); code != http.StatusCreated {
		t.Fatalf("POST /templates status=%d", code)
	}
	if created.Template.Slug != "greeting" || len(created.Warnings) != 1 {
		t.Fatalf("created: %+v", created)
	}

	var used models.RenderResponse
	if code := call(t, ts, http.MethodPost, "/templates/greeting/use", models.RenderRequest{Values: map[string]any{"name": "Ken"}, StripUnknown: true}, &used); code != http.StatusOK {
		t.Fatalf("use status=%d", code)
	}
	if used.Rendered != "Hello, Ken! " || used.UsageCount != 1 {
		t.Fatalf("used: %+v", used)
	}

	var rendered models.RenderResponse
	render := models.RenderRequest{
		Body:      "{{n}} items, {{missing}}",
		Variables: []models.TemplateVariable{{Name: "n", Type: "number"}, {Name: "missing", Required: true}},
		Values:    map[string]any{"n": 3},
	}
	if code := call(t, ts, http.MethodPost, "/render", render, &rendered); code != http.StatusOK {
		t.Fatalf("render status=%d", code)
	}
	if rendered.Rendered != "3 items, {{missing}}" || len(rendered.Warnings) != 1 {
		t.Fatalf("rendered: %+v", rendered)
	}
	var e models.Error
	render.Variables = []models.TemplateVariable{{Name: "n", Type: "blob"}}
	if code := call(t, ts, http.MethodPost, "/render", render, &e); code != http.StatusBadRequest || e.Field != "variables" {
		t.Fatalf("render bad type: %d %+v", code, e)
	}

	body := "Hi {{name}}"
	var updated models.TemplateResponse
	if code := call(t, ts, http.MethodPatch, "/templates/greeting", models.UpdateTemplateRequest{TemplateBody: &body}, &updated); code != http.StatusOK || updated.Template.Version != "1.0.1" {
		t.Fatalf("PATCH: %d %+v", code, updated)
	}
	var list []models.Template
	if code := call(t, ts, http.MethodGet, "/templates?category=handoff", nil, &list); code != http.StatusOK || len(list) != 1 {
		t.Fatalf("list by category: %d %v", code, list)
	}
}

func TestAPIKey(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, ServerOptions{APIKey: "secret"})

	if code := call(t, ts, http.MethodGet, "/health", nil, nil); code != http.StatusOK {
		t.Fatalf("/health should skip auth: %d", code)
	}
	var e models.Error
	if code := call(t, ts, http.MethodGet, "/agents", nil, &e); code != http.StatusUnauthorized || e.Kind != "unauthorized" {
		t.Fatalf("no key: %d %+v", code, e)
	}
	if code := call(t, ts, http.MethodGet, "/agents", nil, nil, "X-API-Key", "secret"); code != http.StatusOK {
		t.Fatalf("with key: %d", code)
	}
	if code := call(t, ts, http.MethodGet, "/agents?api_key=secret", nil, nil); code != http.StatusOK {
		t.Fatalf("query key: %d", code)
	}
}

func TestDevCORS(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, ServerOptions{Dev: true})
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/sessions", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight: %d %v", resp.StatusCode, resp.Header)
	}
}

func TestStream_sessionEvents(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, ServerOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	sc := bufio.NewScanner(resp.Body)
	if !sc.Scan() || !strings.Contains(sc.Text(), `"type":"connected"`) {
		t.Fatalf("first line: %q", sc.Text())
	}

	var a models.Agent
	call(t, ts, http.MethodPost, "/agents", models.CreateAgentRequest{Name: "Streamer"}, &a)
	call(t, ts, http.MethodPost, "/sessions", models.StartSessionRequest{SessionType: "debug", AgentIDs: []string{a.ID}}, nil)

	want := map[string]bool{"agent_update": false, "session_update": false}
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev models.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("event %q: %v", line, err)
		}
		want[ev.Type] = true
		if want["agent_update"] && want["session_update"] {
			return
		}
	}
	t.Fatalf("events seen: %v (%v)", want, sc.Err())
}
