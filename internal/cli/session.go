package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Plexify-AI/plexifybid-sub001/internal/errors"
	"github.com/Plexify-AI/plexifybid-sub001/internal/git"
	"github.com/Plexify-AI/plexifybid-sub001/internal/services"
	"github.com/Plexify-AI/plexifybid-sub001/internal/session"
	"github.com/Plexify-AI/plexifybid-sub001/internal/store"
	"github.com/Plexify-AI/plexifybid-sub001/internal/wire"
	"github.com/Plexify-AI/plexifybid-sub001/pkg/models"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Start, complete and inspect work sessions",
	}
	cmd.AddCommand(newSessionStartCmd())
	cmd.AddCommand(newSessionCompleteCmd())
	cmd.AddCommand(newSessionAbandonCmd())
	cmd.AddCommand(newSessionActiveCmd())
	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionShowCmd())
	cmd.AddCommand(newSessionAgentsCmd())
	return cmd
}

// withSessions opens the services and resolves the operator for fn.
func withSessions(cmd *cobra.Command, fn func(svc *services.Services, operator string) error) error {
	operator, err := envFrom(cmd).operator()
	if err != nil {
		return err
	}
	svc, err := openServices(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()
	return fn(svc, operator)
}

// sessionArg returns args[0], or the operator's active session id.
func sessionArg(cmd *cobra.Command, svc *services.Services, operator string, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	s, err := svc.Sessions.Active(cmd.Context(), operator)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", errors.NewNotFoundError("active session", operator)
	}
	return s.ID, nil
}

func newSessionStartCmd() *cobra.Command {
	var (
		typ        string
		agents     []string
		supporting []string
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a session with one or more agents",
		Example: `  plexify session start --type development --agent code-reviewer
  plexify session start --agent builder --supporting scout`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd, func(svc *services.Services, operator string) error {
				req := session.StartRequest{Type: store.SessionType(typ), Roles: map[string]store.Role{}}
				for _, ref := range append(append([]string{}, agents...), supporting...) {
					a, err := svc.Catalog.GetAgent(cmd.Context(), ref)
					if err != nil {
						return err
					}
					req.AgentIDs = append(req.AgentIDs, a.ID)
				}
				for i, id := range req.AgentIDs {
					if _, ok := req.Roles[id]; ok {
						continue
					}
					if i < len(agents) {
						req.Roles[id] = store.RolePrimary
					} else {
						req.Roles[id] = store.RoleSupporting
					}
				}
				res, err := svc.Sessions.Start(cmd.Context(), operator, req)
				if err != nil {
					return err
				}
				if envFrom(cmd).JSON {
					return printJSON(cmd.OutOrStdout(), models.StartSessionResponse{Session: wire.Session(res.Session), ContextIn: res.ContextIn})
				}
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "Started session %s (%s)\n", res.Session.ID, res.Session.Type)
				if res.ContextIn != nil {
					_, _ = fmt.Fprintf(out, "\nContext from the previous session:\n\n%s\n", *res.ContextIn)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", string(store.TypeDevelopment), "Session type: development, strategy, research, review, debug, custom")
	cmd.Flags().StringSliceVar(&agents, "agent", nil, "Primary agent id or slug (repeatable)")
	cmd.Flags().StringSliceVar(&supporting, "supporting", nil, "Supporting agent id or slug (repeatable)")
	return cmd
}

// parseDecision reads "decision|rationale[|reversible]".
func parseDecision(s string) (store.Decision, error) {
	parts := strings.SplitN(s, "|", 3)
	d := store.Decision{Decision: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		d.Rationale = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		switch strings.ToLower(strings.TrimSpace(parts[2])) {
		case "reversible", "true", "yes":
			d.Reversible = true
		}
	}
	return store.NewDecision(d.Decision, d.Rationale, d.Reversible)
}

// parseBlocker reads "description" (unresolved) or "description|resolution" (resolved).
func parseBlocker(s string) (store.Blocker, error) {
	desc, resolution, resolved := strings.Cut(s, "|")
	return store.NewBlocker(strings.TrimSpace(desc), resolved, strings.TrimSpace(resolution))
}

// loadCompletion reads a completion document in YAML or JSON.
func loadCompletion(r io.Reader) (store.Completion, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return store.Completion{}, err
	}
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return store.Completion{}, errors.NewValidationError("malformed completion file").WithCause(err)
	}
	j, err := json.Marshal(doc)
	if err != nil {
		return store.Completion{}, errors.NewValidationError("malformed completion file").WithCause(err)
	}
	var req models.CompleteSessionRequest
	if err := json.Unmarshal(j, &req); err != nil {
		return store.Completion{}, errors.NewValidationError("malformed completion file").WithCause(err)
	}
	return wire.ToCompletion(req), nil
}

func newSessionCompleteCmd() *cobra.Command {
	var (
		from       string
		contextOut string
		next       []string
		files      []string
		decisions  []string
		blockers   []string
		gitBase    string
	)
	cmd := &cobra.Command{
		Use:   "complete [session-id]",
		Short: "Complete a session and print its handoff",
		Long: `Complete a session (default: your active session) and print the handoff prompt
the next session with the same agents will start from.

Decisions are "decision|rationale[|reversible]"; blockers are "description" or
"description|resolution" for a resolved one. --from reads the same fields from a
YAML or JSON file ("-" for stdin); flags are appended to it. --git-changed adds
the files that differ from a git ref (default HEAD) in the current work tree.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var c store.Completion
			if from != "" {
				var r io.Reader = cmd.InOrStdin()
				if from != "-" {
					f, err := os.Open(from)
					if err != nil {
						return err
					}
					defer func() { _ = f.Close() }()
					r = f
				}
				var err error
				if c, err = loadCompletion(r); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("context") {
				c.ContextOut = &contextOut
			}
			c.NextTasks = append(c.NextTasks, next...)
			c.FilesChanged = append(c.FilesChanged, files...)
			if cmd.Flags().Changed("git-changed") {
				changed, err := git.ChangedFiles(cmd.Context(), "", gitBase)
				if err != nil {
					return err
				}
				c.FilesChanged = appendMissing(c.FilesChanged, changed)
			}
			for _, s := range decisions {
				d, err := parseDecision(s)
				if err != nil {
					return errors.NewValidationError(err.Error()).WithField("decisions_made").WithValue(s)
				}
				c.DecisionsMade = append(c.DecisionsMade, d)
			}
			for _, s := range blockers {
				b, err := parseBlocker(s)
				if err != nil {
					return errors.NewValidationError(err.Error()).WithField("blockers").WithValue(s)
				}
				c.Blockers = append(c.Blockers, b)
			}
			return withSessions(cmd, func(svc *services.Services, operator string) error {
				id, err := sessionArg(cmd, svc, operator, args)
				if err != nil {
					return err
				}
				res, err := svc.Sessions.Complete(cmd.Context(), operator, id, c)
				if err != nil {
					return err
				}
				if envFrom(cmd).JSON {
					return printJSON(cmd.OutOrStdout(), models.CompleteSessionResponse{Session: wire.Session(res.Session), HandoffPrompt: res.HandoffPrompt})
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Completed session %s\n\n%s\n", res.Session.ID, res.HandoffPrompt)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Read the completion from a YAML or JSON file (- for stdin)")
	cmd.Flags().StringVar(&contextOut, "context", "", "Summary of the session")
	cmd.Flags().StringArrayVar(&next, "next", nil, "Next task, in order (repeatable; at least one required)")
	cmd.Flags().StringArrayVar(&files, "changed", nil, "Changed file path (repeatable)")
	cmd.Flags().StringArrayVar(&decisions, "decision", nil, `Decision as "decision|rationale[|reversible]" (repeatable)`)
	cmd.Flags().StringArrayVar(&blockers, "blocker", nil, `Blocker as "description[|resolution]" (repeatable)`)
	cmd.Flags().StringVar(&gitBase, "git-changed", "", "Add files changed since this git ref (default HEAD)")
	cmd.Flags().Lookup("git-changed").NoOptDefVal = "HEAD"
	return cmd
}

// appendMissing appends the entries of add not already in list.
func appendMissing(list, add []string) []string {
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		seen[s] = true
	}
	for _, s := range add {
		if !seen[s] {
			seen[s] = true
			list = append(list, s)
		}
	}
	return list
}

func newSessionAbandonCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "abandon [session-id]",
		Short: "Abandon a session (default: your active session)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd, func(svc *services.Services, operator string) error {
				id, err := sessionArg(cmd, svc, operator, args)
				if err != nil {
					return err
				}
				var r *string
				if strings.TrimSpace(reason) != "" {
					r = &reason
				}
				s, err := svc.Sessions.Abandon(cmd.Context(), operator, id, r)
				if err != nil {
					return err
				}
				if envFrom(cmd).JSON {
					return printJSON(cmd.OutOrStdout(), wire.Session(*s))
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Abandoned session %s\n", s.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the session was abandoned")
	return cmd
}

func newSessionActiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show your active session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd, func(svc *services.Services, operator string) error {
				s, err := svc.Sessions.Active(cmd.Context(), operator)
				if err != nil {
					return err
				}
				if envFrom(cmd).JSON {
					return printJSON(cmd.OutOrStdout(), models.ActiveSessionResponse{Session: wire.SessionPtr(s)})
				}
				if s == nil {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No active session.")
					return nil
				}
				printSession(cmd.OutOrStdout(), *s)
				return nil
			})
		},
	}
}

func newSessionListCmd() *cobra.Command {
	var (
		status   string
		typ      string
		agent    string
		from, to string
		limit    int
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd, func(svc *services.Services, operator string) error {
				f := store.SessionFilter{Status: store.SessionStatus(status), Type: store.SessionType(typ), Limit: limit}
				for _, p := range []struct {
					name, value string
					dst         **time.Time
				}{{"from", from, &f.From}, {"to", to, &f.To}} {
					if p.value == "" {
						continue
					}
					t, err := time.Parse(time.RFC3339, p.value)
					if err != nil {
						return errors.NewValidationError("invalid time, want RFC 3339").WithField(p.name).WithValue(p.value)
					}
					t = t.UTC()
					*p.dst = &t
				}
				if agent != "" {
					a, err := svc.Catalog.GetAgent(cmd.Context(), agent)
					if err != nil {
						return err
					}
					f.AgentID = a.ID
				}
				if all {
					operator = ""
				}
				list, err := svc.Sessions.List(cmd.Context(), operator, f)
				if err != nil {
					return err
				}
				if envFrom(cmd).JSON {
					return printJSON(cmd.OutOrStdout(), wire.Sessions(list))
				}
				if len(list) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
					return nil
				}
				for _, s := range list {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "- %s  %-11s  %-9s  %s  %s\n", s.ID, s.Type, s.Status, s.StartedAt.Format(time.RFC3339), s.OperatorID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status: active, completed, abandoned")
	cmd.Flags().StringVar(&typ, "type", "", "Filter by session type")
	cmd.Flags().StringVar(&agent, "agent", "", "Only sessions linked to this agent id or slug")
	cmd.Flags().StringVar(&from, "from", "", "Started at or after (RFC 3339)")
	cmd.Flags().StringVar(&to, "to", "", "Started at or before (RFC 3339)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of sessions (0 for no limit)")
	cmd.Flags().BoolVar(&all, "all", false, "Include every operator's sessions")
	return cmd
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()
			s, err := svc.Sessions.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if envFrom(cmd).JSON {
				return printJSON(cmd.OutOrStdout(), wire.Session(*s))
			}
			printSession(cmd.OutOrStdout(), *s)
			return nil
		},
	}
}

func newSessionAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents <session-id>",
		Short: "List the agents linked to a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()
			list, err := svc.Sessions.Agents(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if envFrom(cmd).JSON {
				return printJSON(cmd.OutOrStdout(), wire.LinkedAgents(list))
			}
			for _, a := range list {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "- %s (%s, %s)\n", a.Slug, a.Role, a.ID)
			}
			return nil
		},
	}
}

func printSession(w io.Writer, s store.Session) {
	_, _ = fmt.Fprintf(w, "Session %s\n", s.ID)
	_, _ = fmt.Fprintf(w, "  operator: %s\n", s.OperatorID)
	_, _ = fmt.Fprintf(w, "  type:     %s\n", s.Type)
	_, _ = fmt.Fprintf(w, "  status:   %s\n", s.Status)
	_, _ = fmt.Fprintf(w, "  started:  %s\n", s.StartedAt.Format(time.RFC3339))
	if s.EndedAt != nil {
		_, _ = fmt.Fprintf(w, "  ended:    %s\n", s.EndedAt.Format(time.RFC3339))
	}
	if s.AbandonReason != nil {
		_, _ = fmt.Fprintf(w, "  reason:   %s\n", *s.AbandonReason)
	}
	for i, t := range s.NextTasks {
		if i == 0 {
			_, _ = fmt.Fprintln(w, "  next tasks:")
		}
		_, _ = fmt.Fprintf(w, "    %d. %s\n", i+1, t)
	}
	if s.HandoffPrompt != nil {
		_, _ = fmt.Fprintf(w, "\n%s\n", *s.HandoffPrompt)
	}
}
