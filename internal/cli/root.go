package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/Plexify-AI/plexifybid-sub001/internal/config"
)

type globalFlags struct {
	home      string
	operator  string
	logLevel  string
	logFormat string
	json      bool
}

func NewRootCmd(version string) *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:          "plexify",
		Short:        "Plexify: agent work sessions with structured handoffs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			home, err := config.ResolveHome(g.home)
			if err != nil {
				return err
			}
			cfg, err := config.Load(home)
			if err != nil {
				return err
			}
			if g.operator != "" {
				cfg.Operator = g.operator
			}
			if g.logLevel != "" {
				cfg.Log.Level = g.logLevel
			}
			if g.logFormat != "" {
				cfg.Log.Format = g.logFormat
			}
			if err := setupLogging(cmd.ErrOrStderr(), cfg.Log); err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = config.WithHome(ctx, home)
			cmd.SetContext(withEnv(ctx, &env{Home: home, Config: cfg, JSON: g.json, version: version}))
			return nil
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&g.home, "home", "", "Override Plexify home directory (default: ~/.plexify, env: PLEXIFY_HOME)")
	f.StringVar(&g.operator, "operator", "", "Operator sessions are owned by (default: config operator, git user.email, then $USER)")
	f.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&g.logFormat, "log-format", "", "Log format: text or json")
	f.BoolVar(&g.json, "json", false, "Print results as JSON")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())

	cmd.AddCommand(newSessionCmd())
	cmd.AddCommand(newAgentCmd())
	cmd.AddCommand(newTemplateCmd())

	cmd.AddCommand(newJournalCmd())
	cmd.AddCommand(newIdentityCmd())
	cmd.AddCommand(newApikeyCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newNukeCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}

	return cmd
}
