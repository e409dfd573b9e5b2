package cli

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/Plexify-AI/plexifybid-sub001/internal/config"
	"github.com/Plexify-AI/plexifybid-sub001/internal/handoff"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the home directory, store and operator identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd)
			out := cmd.OutOrStdout()
			var problems []string

			_, _ = fmt.Fprintf(out, "home:     %s\n", e.Home)
			_, _ = fmt.Fprintf(out, "config:   %s\n", config.Path(e.Home))

			if op, err := e.operator(); err != nil {
				problems = append(problems, err.Error())
			} else {
				_, _ = fmt.Fprintf(out, "operator: %s\n", op)
			}
			// git is only needed to detect the operator.
			if _, err := exec.LookPath("git"); err != nil && e.Config.Operator == "" {
				problems = append(problems, "git not found on PATH; set operator in config or pass --operator")
			}

			svc, err := openServices(cmd)
			if err != nil {
				problems = append(problems, "store: "+err.Error())
			} else {
				_, _ = fmt.Fprintf(out, "store:    %s ok\n", dbDriver(e.Config.DB))
				if _, err := svc.Catalog.GetTemplate(cmd.Context(), handoff.TemplateSlug); err != nil {
					problems = append(problems, "handoff template: "+err.Error())
				}
				_ = svc.Close()
			}

			if len(problems) > 0 {
				for _, p := range problems {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), p)
				}
				return errors.New("doctor checks failed")
			}
			_, _ = fmt.Fprintln(out, "ok")
			return nil
		},
	}
	return cmd
}

func dbDriver(db config.DBConfig) string {
	if db.Driver == "" {
		return "sqlite"
	}
	return db.Driver
}
