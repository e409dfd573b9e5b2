// Package handoff composes the handoff document of a completed session from its
// completion payload and the well-known session-handoff template.
package handoff

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Plexify-AI/plexifybid-sub001/internal/catalog"
	"github.com/Plexify-AI/plexifybid-sub001/internal/errors"
	"github.com/Plexify-AI/plexifybid-sub001/internal/otel"
	"github.com/Plexify-AI/plexifybid-sub001/internal/prompt"
	"github.com/Plexify-AI/plexifybid-sub001/internal/store"
)

// TemplateSlug is the slug of the template used for handoffs.
const TemplateSlug = "session-handoff"

//go:embed session-handoff.yaml
var defaultTemplate []byte

// FormatDecisions renders each decision as a bullet with its rationale and
// reversibility, or "No decisions recorded." when there are none.
func FormatDecisions(ds []store.Decision) string {
	if len(ds) == 0 {
		return "No decisions recorded."
	}
	lines := make([]string, len(ds))
	for i, d := range ds {
		rev := "No"
		if d.Reversible {
			rev = "Yes"
		}
		lines[i] = fmt.Sprintf("- **%s**\n  - Rationale: %s\n  - Reversible: %s", d.Decision, d.Rationale, rev)
	}
	return strings.Join(lines, "\n")
}

// FormatFiles renders one "- path" line per file, or "No files changed.".
func FormatFiles(files []string) string {
	if len(files) == 0 {
		return "No files changed."
	}
	lines := make([]string, len(files))
	for i, f := range files {
		lines[i] = "- " + f
	}
	return strings.Join(lines, "\n")
}

// FormatBlockers renders each blocker with its resolution state, or "No blockers.".
func FormatBlockers(bs []store.Blocker) string {
	if len(bs) == 0 {
		return "No blockers."
	}
	lines := make([]string, len(bs))
	for i, b := range bs {
		state := "Unresolved"
		if b.Resolved {
			state = "Resolved: " + b.Resolution
		}
		lines[i] = fmt.Sprintf("- %s (%s)", b.Description, state)
	}
	return strings.Join(lines, "\n")
}

// SplitTasks returns the first task and the rest joined by ", " ("None" when there is
// only one).
func SplitTasks(tasks []string) (first, remaining string) {
	if len(tasks) == 0 {
		return "", "None"
	}
	if len(tasks) == 1 {
		return tasks[0], "None"
	}
	return tasks[0], strings.Join(tasks[1:], ", ")
}

// Fallback is the handoff produced when the handoff template does not exist.
func Fallback(tasks []string) string {
	var b strings.Builder
	b.WriteString("# Session Handoff\n\n## Next Tasks")
	for _, t := range tasks {
		b.WriteString("\n- ")
		b.WriteString(t)
	}
	return b.String()
}

// FormatDuration renders d rounded to the minute, e.g. "1h 5m" or "45m".
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return "<1m"
	}
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

// Values builds the render values for a session completing at endedAt. A nil
// context_out is left out so the template default applies.
func Values(s store.Session, c store.Completion, endedAt time.Time) map[string]any {
	first, remaining := SplitTasks(c.NextTasks)
	v := map[string]any{
		"session_date":    s.StartedAt.UTC().Format("2006-01-02"),
		"session_type":    string(s.Type),
		"started_at":      s.StartedAt.UTC(),
		"ended_at":        endedAt.UTC(),
		"duration":        FormatDuration(endedAt.Sub(s.StartedAt)),
		"decisions":       FormatDecisions(c.DecisionsMade),
		"files_changed":   FormatFiles(c.FilesChanged),
		"blockers":        FormatBlockers(c.Blockers),
		"first_task":      first,
		"remaining_tasks": remaining,
	}
	if c.ContextOut != nil {
		v["context_summary"] = *c.ContextOut
	}
	return v
}

// TemplateSource looks up templates by slug; store.Store satisfies it.
type TemplateSource interface {
	GetTemplateBySlug(ctx context.Context, slug string) (*store.Template, error)
}

// Composer renders handoffs against the template found in Templates.
type Composer struct {
	Templates TemplateSource
}

// Compose returns the handoff text for s completing with c at endedAt. When the
// handoff template is missing the minimal Fallback is returned instead.
func (c *Composer) Compose(ctx context.Context, s store.Session, comp store.Completion, endedAt time.Time) (string, error) {
	start := time.Now()
	defer func() { otel.RecordHandoff(ctx, string(s.Type), time.Since(start)) }()

	var tpl *store.Template
	if c != nil && c.Templates != nil {
		var err error
		if tpl, err = c.Templates.GetTemplateBySlug(ctx, TemplateSlug); err != nil {
			return "", errors.NewStorageError("get handoff template", err)
		}
	}
	if tpl == nil {
		slog.Warn("handoff template missing, using fallback", "slug", TemplateSlug, "session_id", s.ID)
		return Fallback(comp.NextTasks), nil
	}
	res := prompt.Render(tpl.Body, Values(s, comp, endedAt), tpl.Variables)
	if len(res.Warnings) > 0 {
		slog.Warn("handoff rendered with warnings", "session_id", s.ID, "warnings", res.Warnings)
		otel.RecordRenderWarnings(ctx, TemplateSlug, len(res.Warnings))
	}
	return res.Rendered, nil
}

// DefaultTemplate returns the built-in handoff template definition.
func DefaultTemplate() (catalog.TemplateInput, error) {
	return catalog.ParseTemplate(defaultTemplate)
}

// EnsureTemplate creates the built-in handoff template when the catalog has none.
// It reports whether it created one.
func EnsureTemplate(ctx context.Context, cat *catalog.Catalog) (bool, error) {
	existing, err := cat.Store.GetTemplateBySlug(ctx, TemplateSlug)
	if err != nil {
		return false, errors.NewStorageError("get handoff template", err)
	}
	if existing != nil {
		return false, nil
	}
	in, err := DefaultTemplate()
	if err != nil {
		return false, err
	}
	if _, _, err := cat.CreateTemplate(ctx, in); err != nil {
		if errors.Is(err, errors.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	slog.Info("seeded handoff template", "slug", TemplateSlug)
	return true, nil
}
