package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Plexify-AI/plexifybid-sub001/internal/catalog"
	"github.com/Plexify-AI/plexifybid-sub001/internal/store"
	"github.com/Plexify-AI/plexifybid-sub001/internal/wire"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage the agent catalog",
	}
	cmd.AddCommand(newAgentAddCmd())
	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentShowCmd())
	cmd.AddCommand(newAgentUpdateCmd())
	cmd.AddCommand(newAgentArchiveCmd())
	return cmd
}

// withCatalog opens the services for fn.
func withCatalog(cmd *cobra.Command, fn func(cat *catalog.Catalog) error) error {
	svc, err := openServices(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()
	return fn(svc.Catalog)
}

func printAgent(cmd *cobra.Command, verb string, a *store.Agent) error {
	if envFrom(cmd).JSON {
		return printJSON(cmd.OutOrStdout(), wire.Agent(*a))
	}
	out := cmd.OutOrStdout()
	if verb != "" {
		_, _ = fmt.Fprintf(out, "%s agent %q (slug %s, version %s)\n", verb, a.Name, a.Slug, a.Version)
		return nil
	}
	writeAgent(out, a)
	return nil
}

func writeAgent(w io.Writer, a *store.Agent) {
	_, _ = fmt.Fprintf(w, "Agent %s\n", a.Name)
	_, _ = fmt.Fprintf(w, "  id:      %s\n", a.ID)
	_, _ = fmt.Fprintf(w, "  slug:    %s\n", a.Slug)
	_, _ = fmt.Fprintf(w, "  status:  %s\n", a.Status)
	_, _ = fmt.Fprintf(w, "  version: %s\n", a.Version)
	if a.Description != "" {
		_, _ = fmt.Fprintf(w, "  about:   %s\n", a.Description)
	}
	if len(a.Capabilities) > 0 {
		_, _ = fmt.Fprintf(w, "  can:     %s\n", strings.Join(a.Capabilities, ", "))
	}
}

func newAgentAddCmd() *cobra.Command {
	var (
		description  string
		status       string
		capabilities []string
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an agent to the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(cat *catalog.Catalog) error {
				a, err := cat.CreateAgent(cmd.Context(), catalog.AgentInput{
					Name:         args[0],
					Description:  description,
					Status:       store.AgentStatus(status),
					Capabilities: capabilities,
				})
				if err != nil {
					return err
				}
				return printAgent(cmd, "Added", a)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "What the agent does")
	cmd.Flags().StringVar(&status, "status", "", "Status: active (default), draft, deprecated, archived")
	cmd.Flags().StringSliceVar(&capabilities, "capability", nil, "Capability (repeatable)")
	return cmd
}

func newAgentListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(cat *catalog.Catalog) error {
				list, err := cat.ListAgents(cmd.Context(), store.AgentStatus(status))
				if err != nil {
					return err
				}
				if envFrom(cmd).JSON {
					return printJSON(cmd.OutOrStdout(), wire.Agents(list))
				}
				if len(list) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No agents.")
					return nil
				}
				for _, a := range list {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "- %s (%s, %s)\n", a.Slug, a.Status, a.Version)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	return cmd
}

func newAgentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|slug>",
		Short: "Show one agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(cat *catalog.Catalog) error {
				a, err := cat.GetAgent(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printAgent(cmd, "", a)
			})
		},
	}
}

func newAgentUpdateCmd() *cobra.Command {
	var (
		name         string
		description  string
		status       string
		capabilities []string
	)
	cmd := &cobra.Command{
		Use:   "update <id|slug>",
		Short: "Update an agent; its version gets a patch bump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p catalog.AgentPatch
			flags := cmd.Flags()
			if flags.Changed("name") {
				p.Name = &name
			}
			if flags.Changed("description") {
				p.Description = &description
			}
			if flags.Changed("status") {
				st := store.AgentStatus(status)
				p.Status = &st
			}
			if flags.Changed("capability") {
				p.Capabilities = &capabilities
			}
			return withCatalog(cmd, func(cat *catalog.Catalog) error {
				a, err := cat.UpdateAgent(cmd.Context(), args[0], p)
				if err != nil {
					return err
				}
				return printAgent(cmd, "Updated", a)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name (the slug is kept)")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&status, "status", "", "New status")
	cmd.Flags().StringSliceVar(&capabilities, "capability", nil, "Replace capabilities (repeatable)")
	return cmd
}

func newAgentArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id|slug>",
		Short: "Archive an agent that is not in an active session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(cat *catalog.Catalog) error {
				a, err := cat.ArchiveAgent(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printAgent(cmd, "Archived", a)
			})
		},
	}
}
