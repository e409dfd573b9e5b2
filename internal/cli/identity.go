package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Plexify-AI/plexifybid-sub001/internal/identity"
)

func newIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Show and record the operator that owns your sessions",
	}
	cmd.AddCommand(newIdentityShowCmd())
	cmd.AddCommand(newIdentityDetectCmd())
	cmd.AddCommand(newIdentityListCmd())
	return cmd
}

func newIdentityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the operator commands act for",
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := envFrom(cmd).operator()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), op)
			return nil
		},
	}
}

func newIdentityDetectCmd() *cobra.Command {
	var repoDir string
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect the operator from git config or $USER and save it to members/",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := envFrom(cmd).Home
			op, err := identity.Detector{RepoDir: repoDir}.Detect()
			if err != nil {
				return err
			}
			if err := identity.Save(home, op); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Detected: %s (from %s)\n", op.ID, op.Source)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved to %s\n", identity.MemberPath(home, op.ID))
			return nil
		},
	}
	cmd.Flags().StringVar(&repoDir, "repo", "", "Git repo path (default: current directory)")
	return cmd
}

func newIdentityListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved operators",
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := identity.List(envFrom(cmd).Home)
			if err != nil {
				return err
			}
			if envFrom(cmd).JSON {
				return printJSON(cmd.OutOrStdout(), ops)
			}
			if len(ops) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No operators saved.")
				return nil
			}
			for _, op := range ops {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "- %s (%s)\n", op.ID, op.Source)
			}
			return nil
		},
	}
}
