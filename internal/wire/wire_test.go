package wire

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Plexify-AI/plexifybid-sub001/internal/prompt"
	"github.com/Plexify-AI/plexifybid-sub001/internal/store"
	"github.com/Plexify-AI/plexifybid-sub001/pkg/models"
)

func TestSession_emptyCollectionsEncodeAsArrays(t *testing.T) {
	t.Parallel()
	s := store.Session{ID: "s1", OperatorID: "ken", Type: store.TypeDebug, Status: store.StatusActive, StartedAt: time.Unix(0, 0).UTC()}
	b, err := json.Marshal(Session(s))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"decisions_made":[]`, `"files_changed":[]`, `"blockers":[]`, `"next_tasks":[]`, `"ended_at":null`, `"session_type":"debug"`} {
		if !strings.Contains(string(b), want) {
			t.Errorf("missing %s in %s", want, b)
		}
	}
	if SessionPtr(nil) != nil {
		t.Fatal("SessionPtr(nil) should be nil")
	}
}

func TestToCompletion_keepsInvalidEntriesForValidation(t *testing.T) {
	t.Parallel()
	c := ToCompletion(models.CompleteSessionRequest{
		DecisionsMade: []models.Decision{{Rationale: "no text"}},
		NextTasks:     []string{"a"},
	})
	if len(c.DecisionsMade) != 1 || c.DecisionsMade[0].Validate() == nil {
		t.Fatalf("got %+v", c)
	}
	if c.FilesChanged == nil || c.Blockers == nil {
		t.Fatal("nil collections should become empty")
	}
}

func TestParseVariables(t *testing.T) {
	t.Parallel()
	vars, err := ParseVariables([]models.TemplateVariable{{Name: "a"}, {Name: "n", Type: "NUMBER"}})
	if err != nil || vars[0].Type != prompt.TypeString || vars[1].Type != prompt.TypeNumber {
		t.Fatalf("got %+v %v", vars, err)
	}
	if _, err := ParseVariables([]models.TemplateVariable{{Name: "a", Type: "blob"}}); err == nil {
		t.Fatal("expected unknown type error")
	}
	if _, err := ParseVariables([]models.TemplateVariable{{Name: "a"}, {Name: "a"}}); err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestToStartRequestAndPatch(t *testing.T) {
	t.Parallel()
	req := ToStartRequest(models.StartSessionRequest{SessionType: "review", AgentIDs: []string{"a"}, Roles: map[string]string{"a": "supporting"}})
	if req.Type != store.TypeReview || req.Roles["a"] != store.RoleSupporting {
		t.Fatalf("got %+v", req)
	}
	archived := "archived"
	p := ToAgentPatch(models.UpdateAgentRequest{Status: &archived})
	if p.Status == nil || *p.Status != store.AgentArchived || p.Capabilities != nil {
		t.Fatalf("got %+v", p)
	}
}
