// Package client provides a Go SDK for the Plexify HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Plexify-AI/plexifybid-sub001/pkg/models"
)

// Client calls the Plexify HTTP API. It is safe for concurrent use.
type Client struct {
	BaseURL    string       // e.g. "http://localhost:3548"
	APIKey     string       // optional; sent as X-API-Key
	Operator   string       // optional; sent as X-Operator, else the server default applies
	HTTPClient *http.Client // optional; nil uses http.DefaultClient
}

// New returns a client for the given base URL (e.g. "http://localhost:3548").
func New(baseURL, apiKey string) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey}
}

// WithOperator returns a copy of c acting for operator.
func (c *Client) WithOperator(operator string) *Client {
	cp := *c
	cp.Operator = operator
	return &cp
}

// APIError is a non-2xx response.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   models.Error
}

func (e *APIError) Error() string {
	if e.Body.Error != "" {
		return fmt.Sprintf("api %s %s: %s", e.Method, e.Path, e.Body.Error)
	}
	return fmt.Sprintf("api %s %s: status %d", e.Method, e.Path, e.Status)
}

// Kind returns the error kind reported by the server ("conflict", "validation",
// "not_found", "storage", "compensation_failed", ...).
func (e *APIError) Kind() string { return e.Body.Kind }

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	if c.Operator != "" {
		req.Header.Set("X-Operator", c.Operator)
	}
	return c.client().Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr.Body)
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Health returns the /health response (ok: true).
func (c *Client) Health(ctx context.Context) (ok bool, err error) {
	var out struct {
		OK bool `json:"ok"`
	}
	err = c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out.OK, err
}

// Config returns the /config response.
func (c *Client) Config(ctx context.Context) (*models.Config, error) {
	var out models.Config
	err := c.doJSON(ctx, http.MethodGet, "/config", nil, &out)
	return &out, err
}

// ---- Agents ----

// ListAgents returns agents, optionally filtered by status.
func (c *Client) ListAgents(ctx context.Context, status string) ([]models.Agent, error) {
	path := "/agents"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out []models.Agent
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) CreateAgent(ctx context.Context, req models.CreateAgentRequest) (*models.Agent, error) {
	var out models.Agent
	if err := c.doJSON(ctx, http.MethodPost, "/agents", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAgent returns an agent by id or slug.
func (c *Client) GetAgent(ctx context.Context, idOrSlug string) (*models.Agent, error) {
	var out models.Agent
	if err := c.doJSON(ctx, http.MethodGet, "/agents/"+url.PathEscape(idOrSlug), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateAgent(ctx context.Context, idOrSlug string, req models.UpdateAgentRequest) (*models.Agent, error) {
	var out models.Agent
	if err := c.doJSON(ctx, http.MethodPatch, "/agents/"+url.PathEscape(idOrSlug), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ArchiveAgent(ctx context.Context, idOrSlug string) (*models.Agent, error) {
	var out models.Agent
	if err := c.doJSON(ctx, http.MethodPost, "/agents/"+url.PathEscape(idOrSlug)+"/archive", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AgentSessions lists every operator's sessions linked to the agent.
func (c *Client) AgentSessions(ctx context.Context, idOrSlug string, q models.SessionQuery) ([]models.Session, error) {
	var out []models.Session
	err := c.doJSON(ctx, http.MethodGet, "/agents/"+url.PathEscape(idOrSlug)+"/sessions"+sessionQuery(q), nil, &out)
	return out, err
}

// ---- Templates ----

// ListTemplates returns templates, optionally filtered by category.
func (c *Client) ListTemplates(ctx context.Context, category string) ([]models.Template, error) {
	path := "/templates"
	if category != "" {
		path += "?category=" + url.QueryEscape(category)
	}
	var out []models.Template
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) CreateTemplate(ctx context.Context, req models.CreateTemplateRequest) (*models.TemplateResponse, error) {
	var out models.TemplateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/templates", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetTemplate(ctx context.Context, slug string) (*models.Template, error) {
	var out models.Template
	if err := c.doJSON(ctx, http.MethodGet, "/templates/"+url.PathEscape(slug), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateTemplate(ctx context.Context, slug string, req models.UpdateTemplateRequest) (*models.TemplateResponse, error) {
	var out models.TemplateResponse
	if err := c.doJSON(ctx, http.MethodPatch, "/templates/"+url.PathEscape(slug), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UseTemplate renders a stored template and increments its usage count.
func (c *Client) UseTemplate(ctx context.Context, slug string, req models.RenderRequest) (*models.RenderResponse, error) {
	var out models.RenderResponse
	if err := c.doJSON(ctx, http.MethodPost, "/templates/"+url.PathEscape(slug)+"/use", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Render renders an ad-hoc body against an inline schema.
func (c *Client) Render(ctx context.Context, req models.RenderRequest) (*models.RenderResponse, error) {
	var out models.RenderResponse
	if err := c.doJSON(ctx, http.MethodPost, "/render", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ---- Sessions ----

func sessionQuery(q models.SessionQuery) string {
	v := url.Values{}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.SessionType != "" {
		v.Set("session_type", q.SessionType)
	}
	if q.AgentID != "" {
		v.Set("agent_id", q.AgentID)
	}
	if q.From != nil {
		v.Set("from", q.From.UTC().Format(time.RFC3339))
	}
	if q.To != nil {
		v.Set("to", q.To.UTC().Format(time.RFC3339))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.AllOperators {
		v.Set("all", "true")
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// ListSessions returns the operator's sessions (every operator's with AllOperators), newest first.
func (c *Client) ListSessions(ctx context.Context, q models.SessionQuery) ([]models.Session, error) {
	var out []models.Session
	err := c.doJSON(ctx, http.MethodGet, "/sessions"+sessionQuery(q), nil, &out)
	return out, err
}

func (c *Client) StartSession(ctx context.Context, req models.StartSessionRequest) (*models.StartSessionResponse, error) {
	var out models.StartSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/sessions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActiveSession returns the operator's active session, or nil when there is none.
func (c *Client) ActiveSession(ctx context.Context) (*models.Session, error) {
	var out models.ActiveSessionResponse
	if err := c.doJSON(ctx, http.MethodGet, "/sessions/active", nil, &out); err != nil {
		return nil, err
	}
	return out.Session, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var out models.Session
	if err := c.doJSON(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SessionAgents(ctx context.Context, id string) ([]models.SessionAgent, error) {
	var out []models.SessionAgent
	err := c.doJSON(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id)+"/agents", nil, &out)
	return out, err
}

func (c *Client) CompleteSession(ctx context.Context, id string, req models.CompleteSessionRequest) (*models.CompleteSessionResponse, error) {
	var out models.CompleteSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/complete", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AbandonSession abandons a session; reason may be nil.
func (c *Client) AbandonSession(ctx context.Context, id string, reason *string) (*models.Session, error) {
	var out models.Session
	if err := c.doJSON(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/abandon", models.AbandonSessionRequest{Reason: reason}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
