package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Plexify-AI/plexifybid-sub001/internal/daemon"
)

type serveFlags struct {
	port       int
	grpcAddr   string
	dev        bool
	pprofAddr  string
	dbDriver   string
	enableOtel bool
}

func (f *serveFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.port, "port", 0, "HTTP port (default: config http.port)")
	cmd.Flags().StringVar(&f.grpcAddr, "grpc-addr", "", "gRPC listen address (default: config grpc.addr)")
	cmd.Flags().BoolVar(&f.dev, "dev", false, "Enable dev mode (permissive CORS)")
	cmd.Flags().StringVar(&f.pprofAddr, "pprof", "", "Enable pprof on address (e.g. 127.0.0.1:6060)")
	cmd.Flags().StringVar(&f.dbDriver, "db-driver", "", "Store driver: sqlite or postgres (default: config db.driver)")
	cmd.Flags().BoolVar(&f.enableOtel, "otel", true, "Enable OpenTelemetry metrics")
}

// options merges flags over the loaded config. Flags only win when set.
func (f *serveFlags) options(cmd *cobra.Command) daemon.StartOptions {
	e := envFrom(cmd)
	c := e.Config
	opts := daemon.StartOptions{
		Home:       e.Home,
		Port:       c.HTTP.Port,
		GRPCAddr:   c.GRPC.Addr,
		Dev:        f.dev,
		PprofAddr:  f.pprofAddr,
		APIKey:     c.APIKey,
		DB:         c.DB,
		Notify:     c.Notify,
		EnableOtel: c.OTel.Enabled,
		Version:    e.version,
	}
	if op, err := e.operator(); err == nil {
		opts.Operator = op
	}
	if cmd.Flags().Changed("port") {
		opts.Port = f.port
	}
	if cmd.Flags().Changed("grpc-addr") {
		opts.GRPCAddr = f.grpcAddr
	}
	if cmd.Flags().Changed("db-driver") {
		opts.DB.Driver = f.dbDriver
	}
	if cmd.Flags().Changed("otel") {
		opts.EnableOtel = f.enableOtel
	}
	return opts
}

func newServeCmd() *cobra.Command {
	var (
		f          serveFlags
		foreground bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Plexify server (HTTP API and gRPC session service)",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := f.options(cmd)
			if foreground {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://localhost:%d\n", opts.Port)
				return daemon.StartForeground(cmd.Context(), opts)
			}
			pid, err := daemon.StartBackground(cmd.Context(), opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Plexify started (pid %d)\n", pid)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "API: http://localhost:%d\n", opts.Port)
			if opts.GRPCAddr != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "gRPC: %s\n", opts.GRPCAddr)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Log: %s\n", daemon.LogPath(opts.Home))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run in foreground (do not daemonize)")
	return cmd
}

// newDaemonCmd is the hidden entry point StartBackground re-executes.
func newDaemonCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Internal: run daemon process",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemon.StartForeground(cmd.Context(), f.options(cmd))
		},
	}
	f.register(cmd)
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running Plexify daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stopped, err := daemon.Stop(cmd.Context(), envFrom(cmd).Home)
			if err != nil {
				return err
			}
			if !stopped {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Plexify is not running")
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show Plexify daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd)
			st, err := daemon.Status(cmd.Context(), e.Home)
			if err != nil {
				return err
			}
			if e.JSON {
				return printJSON(cmd.OutOrStdout(), st)
			}
			if !st.Running {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Plexify not running")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Plexify running (pid %d, addr %s", st.PID, st.Addr)
			if st.GRPCAddr != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), ", grpc %s", st.GRPCAddr)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), ")")
			return nil
		},
	}
}
