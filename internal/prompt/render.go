// Package prompt fills {{name}} placeholders in a template body from a typed
// variable schema and a value map. It performs no I/O.
package prompt

import (
	"regexp"
	"strings"
)

// unknownPlaceholder matches placeholders whose name is word characters only.
// Placeholders with other characters in the name survive StripUnknown.
var unknownPlaceholder = regexp.MustCompile(`\{\{\w+\}\}`)

// Result is the output of Render.
type Result struct {
	Rendered string   `json:"rendered"`
	Warnings []string `json:"warnings"`
}

type options struct {
	warnOnMissing bool
	stripUnknown  bool
}

// Option configures Render.
type Option func(*options)

// WithWarnOnMissing controls the "Missing required variable" warnings. Default true.
func WithWarnOnMissing(on bool) Option {
	return func(o *options) { o.warnOnMissing = on }
}

// WithStripUnknown removes {{word}} placeholders not covered by the schema.
func WithStripUnknown(on bool) Option {
	return func(o *options) { o.stripUnknown = on }
}

// Render substitutes every schema variable into body.
//
// A value that is present and non-nil is used as-is, including false, 0 and "".
// Otherwise a non-empty DefaultValue is used, otherwise "" (with a warning when the
// variable is required). Values are inserted verbatim, without escaping.
func Render(body string, values map[string]any, schema []Variable, opts ...Option) Result {
	o := options{warnOnMissing: true}
	for _, fn := range opts {
		fn(&o)
	}
	warnings := []string{}
	if body == "" {
		return Result{Rendered: "", Warnings: warnings}
	}

	out := body
	for _, v := range schema {
		val, ok := values[v.Name]
		var text string
		switch {
		case ok && val != nil:
			text = v.Type.Format(val)
		case v.DefaultValue != "":
			text = v.DefaultValue
		default:
			if v.Required && o.warnOnMissing {
				warnings = append(warnings, "Missing required variable: "+v.Name)
			}
		}
		out = strings.ReplaceAll(out, "{{"+v.Name+"}}", text)
	}

	if o.stripUnknown {
		out = unknownPlaceholder.ReplaceAllString(out, "")
	}
	return Result{Rendered: out, Warnings: warnings}
}

// RenderSimple is Render without the warnings.
func RenderSimple(body string, values map[string]any, schema []Variable, opts ...Option) string {
	return Render(body, values, schema, opts...).Rendered
}

// Placeholders returns the distinct {{word}} names in body in order of first
// appearance.
func Placeholders(body string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range unknownPlaceholder.FindAllString(body, -1) {
		name := m[2 : len(m)-2]
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
