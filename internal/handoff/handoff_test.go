package handoff

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Plexify-AI/plexifybid-sub001/internal/catalog"
	perrors "github.com/Plexify-AI/plexifybid-sub001/internal/errors"
	"github.com/Plexify-AI/plexifybid-sub001/internal/prompt"
	"github.com/Plexify-AI/plexifybid-sub001/internal/store"
)

func TestFormatDecisions(t *testing.T) {
	t.Parallel()
	if got := FormatDecisions(nil); got != "No decisions recorded." {
		t.Fatalf("empty: %q", got)
	}
	got := FormatDecisions([]store.Decision{
		{Decision: "Use arenas", Rationale: "perf", Reversible: true},
		{Decision: "Drop v1 API", Rationale: "unused", Reversible: false},
	})
	want := "- **Use arenas**\n  - Rationale: perf\n  - Reversible: Yes\n" +
		"- **Drop v1 API**\n  - Rationale: unused\n  - Reversible: No"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestFormatFiles(t *testing.T) {
	t.Parallel()
	if got := FormatFiles([]string{}); got != "No files changed." {
		t.Fatalf("empty: %q", got)
	}
	if got := FormatFiles([]string{"a.ts", "b/c.go"}); got != "- a.ts\n- b/c.go" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatBlockers(t *testing.T) {
	t.Parallel()
	if got := FormatBlockers(nil); got != "No blockers." {
		t.Fatalf("empty: %q", got)
	}
	got := FormatBlockers([]store.Blocker{
		{Description: "CI flaky", Resolved: true, Resolution: "pinned runner"},
		{Description: "Waiting on review"},
	})
	want := "- CI flaky (Resolved: pinned runner)\n- Waiting on review (Unresolved)"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestSplitTasks(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in          []string
		first, rest string
	}{
		{[]string{"Write tests"}, "Write tests", "None"},
		{[]string{"a", "b", "c"}, "a", "b, c"},
		{nil, "", "None"},
	}
	for _, tt := range tests {
		first, rest := SplitTasks(tt.in)
		if first != tt.first || rest != tt.rest {
			t.Errorf("SplitTasks(%v) = %q, %q; want %q, %q", tt.in, first, rest, tt.first, tt.rest)
		}
	}
}

func TestFallback(t *testing.T) {
	t.Parallel()
	if got := Fallback([]string{"t1", "t2"}); got != "# Session Handoff\n\n## Next Tasks\n- t1\n- t2" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "<1m"},
		{45 * time.Minute, "45m"},
		{2 * time.Hour, "2h"},
		{time.Hour + 5*time.Minute, "1h 5m"},
		{time.Hour + 89*time.Second, "1h 1m"},
		{26*time.Hour + 31*time.Second, "26h 1m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

type staticSource struct {
	tpl *store.Template
	err error
}

func (s staticSource) GetTemplateBySlug(context.Context, string) (*store.Template, error) {
	return s.tpl, s.err
}

var (
	started = time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)
	ended   = started.Add(90 * time.Minute)
	session = store.Session{ID: "s1", OperatorID: "ken", Type: store.TypeDevelopment, Status: store.StatusActive, StartedAt: started}
	arenas  = store.Completion{
		DecisionsMade: []store.Decision{{Decision: "Use arenas", Rationale: "perf", Reversible: true}},
		FilesChanged:  []string{"a.ts"},
		Blockers:      []store.Blocker{},
		NextTasks:     []string{"Write tests"},
	}
)

func TestCompose_defaultTemplate(t *testing.T) {
	t.Parallel()
	in, err := DefaultTemplate()
	if err != nil {
		t.Fatalf("DefaultTemplate: %v", err)
	}
	tpl := &store.Template{Slug: TemplateSlug, Body: in.Body, Variables: in.Variables}
	c := &Composer{Templates: staticSource{tpl: tpl}}

	got, err := c.Compose(context.Background(), session, arenas, ended)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	for _, want := range []string{
		"# Session Handoff: development (2026-03-09)",
		"Started: 2026-03-09T14:00:00Z",
		"Ended: 2026-03-09T15:30:00Z",
		"Duration: 1h 30m",
		"No summary provided.",
		"- **Use arenas**\n  - Rationale: perf\n  - Reversible: Yes",
		"- a.ts",
		"\nNo blockers.\n",
		"Start with: Write tests",
		"Then: None",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("handoff missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "{{") {
		t.Errorf("unrendered placeholder in:\n%s", got)
	}
}

func TestCompose_contextOutUsedVerbatim(t *testing.T) {
	t.Parallel()
	tpl := &store.Template{Body: "[{{context_summary}}]", Variables: []prompt.Variable{{Name: "context_summary", Type: prompt.TypeText, DefaultValue: "No summary provided."}}}
	c := &Composer{Templates: staticSource{tpl: tpl}}
	empty := ""
	comp := arenas
	comp.ContextOut = &empty
	got, err := c.Compose(context.Background(), session, comp, ended)
	if err != nil || got != "[]" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestCompose_fallbackWhenTemplateMissing(t *testing.T) {
	t.Parallel()
	c := &Composer{Templates: staticSource{}}
	comp := arenas
	comp.NextTasks = []string{"t1", "t2"}
	got, err := c.Compose(context.Background(), session, comp, ended)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if got != "# Session Handoff\n\n## Next Tasks\n- t1\n- t2" {
		t.Fatalf("got %q", got)
	}
}

func TestCompose_storageError(t *testing.T) {
	t.Parallel()
	c := &Composer{Templates: staticSource{err: errors.New("disk gone")}}
	_, err := c.Compose(context.Background(), session, arenas, ended)
	if !perrors.Is(err, perrors.ErrStorage) {
		t.Fatalf("got %v, want storage error", err)
	}
}

func TestEnsureTemplate(t *testing.T) {
	t.Parallel()
	st, err := store.Open(filepath.Join(t.TempDir(), "home"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = st.Close() }()
	ctx := context.Background()
	cat := catalog.New(st)

	created, err := EnsureTemplate(ctx, cat)
	if err != nil || !created {
		t.Fatalf("EnsureTemplate: %v %v", created, err)
	}
	created, err = EnsureTemplate(ctx, cat)
	if err != nil || created {
		t.Fatalf("EnsureTemplate again: %v %v", created, err)
	}
	tpl, err := st.GetTemplateBySlug(ctx, TemplateSlug)
	if err != nil || tpl == nil || tpl.Category != "handoff" || len(tpl.Variables) != 11 {
		t.Fatalf("seeded template: %+v %v", tpl, err)
	}

	got, err := (&Composer{Templates: st}).Compose(ctx, session, arenas, ended)
	if err != nil || !strings.Contains(got, "Reversible: Yes") {
		t.Fatalf("Compose via store: %q %v", got, err)
	}
}
