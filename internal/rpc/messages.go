package rpc

import (
	"encoding/json"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Plexify-AI/plexifybid-sub001/pkg/models"
)

// Messages are carried as google.protobuf.Struct whose fields follow the JSON
// encoding of these types and of pkg/models.

// SessionRef addresses one session.
type SessionRef struct {
	SessionID string `json:"session_id"`
}

// CompleteRequest is the CompleteSession request.
type CompleteRequest struct {
	SessionID string `json:"session_id"`
	models.CompleteSessionRequest
}

// AbandonRequest is the AbandonSession request.
type AbandonRequest struct {
	SessionID string  `json:"session_id"`
	Reason    *string `json:"reason,omitempty"`
}

// ListRequest is the ListSessions request. All lists every operator's sessions.
type ListRequest struct {
	Status      string     `json:"status,omitempty"`
	SessionType string     `json:"session_type,omitempty"`
	AgentID     string     `json:"agent_id,omitempty"`
	From        *time.Time `json:"from,omitempty"`
	To          *time.Time `json:"to,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	All         bool       `json:"all,omitempty"`
}

// ListResponse is the ListSessions response.
type ListResponse struct {
	Sessions []models.Session `json:"sessions"`
}

// AgentsResponse is the GetSessionAgents response.
type AgentsResponse struct {
	Agents []models.SessionAgent `json:"agents"`
}

// RenderRequest is the RenderTemplate request. With Slug set the stored
// template is used and its usage count incremented; otherwise the inline body
// and variables are rendered.
type RenderRequest struct {
	Slug string `json:"slug,omitempty"`
	models.RenderRequest
}

// Empty is a request without fields.
type Empty struct{}

// toStruct encodes v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes s into v through its JSON form. A nil s leaves v unchanged.
func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
