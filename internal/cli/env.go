package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Plexify-AI/plexifybid-sub001/internal/config"
	"github.com/Plexify-AI/plexifybid-sub001/internal/identity"
	"github.com/Plexify-AI/plexifybid-sub001/internal/services"
)

// env is what PersistentPreRunE resolved for the running command.
type env struct {
	Home    string
	Config  config.Config
	JSON    bool
	version string

	detected string
}

type envKey struct{}

func withEnv(ctx context.Context, e *env) context.Context {
	return context.WithValue(ctx, envKey{}, e)
}

func envFrom(cmd *cobra.Command) *env {
	if e, ok := cmd.Context().Value(envKey{}).(*env); ok {
		return e
	}
	panic("cli env missing from context")
}

// operator returns the configured operator, detecting one from git or $USER
// on first use when none is configured.
func (e *env) operator() (string, error) {
	if e.Config.Operator != "" {
		return e.Config.Operator, nil
	}
	if e.detected == "" {
		op, err := identity.Detector{}.Resolve("")
		if err != nil {
			return "", err
		}
		e.detected = op.ID
	}
	return e.detected, nil
}

func openServices(cmd *cobra.Command) (*services.Services, error) {
	e := envFrom(cmd)
	return services.Open(cmd.Context(), e.Home, e.Config)
}

func setupLogging(w io.Writer, c config.LogConfig) error {
	var level slog.Level
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return fmt.Errorf("invalid log level %q", c.Level)
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(c.Format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("invalid log format %q (want text or json)", c.Format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// parseSet turns key=value flags into a values map.
func parseSet(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", p)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

func printWarnings(cmd *cobra.Command, warnings []string) {
	for _, w := range warnings {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "warning: "+w)
	}
}
