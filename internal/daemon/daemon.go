// Package daemon runs the HTTP API and the gRPC session service as one
// process guarded by a lock file under the plexify home.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/Plexify-AI/plexifybid-sub001/internal/config"
	"github.com/Plexify-AI/plexifybid-sub001/internal/httpapi"
	"github.com/Plexify-AI/plexifybid-sub001/internal/otel"
	"github.com/Plexify-AI/plexifybid-sub001/internal/rpc"
	"github.com/Plexify-AI/plexifybid-sub001/internal/services"
)

const shutdownTimeout = 15 * time.Second

var errNotRunning = errors.New("plexify is not running")

// StartForeground serves until ctx is cancelled or a listener fails.
func StartForeground(ctx context.Context, opts StartOptions) error {
	if opts.Home == "" {
		return errors.New("home is required")
	}
	if opts.Port == 0 {
		opts.Port = config.DefaultHTTPPort
	}
	if err := os.MkdirAll(runDir(opts.Home), 0o755); err != nil {
		return err
	}

	lock, err := acquireLock(lockPath(opts.Home))
	if err != nil {
		return err
	}
	defer lock.release()

	startPprof(opts.PprofAddr)

	addr := fmt.Sprintf("0.0.0.0:%d", opts.Port)
	if err := checkPortAvailable(addr); err != nil {
		return err
	}
	var grpcLis net.Listener
	if opts.GRPCAddr != "" {
		if grpcLis, err = net.Listen("tcp", opts.GRPCAddr); err != nil {
			return fmt.Errorf("grpc listen %s: %w", opts.GRPCAddr, err)
		}
	}

	svc, err := services.Open(ctx, opts.Home, config.Config{DB: opts.DB, Notify: opts.Notify})
	if err != nil {
		if grpcLis != nil {
			_ = grpcLis.Close()
		}
		return err
	}
	defer func() { _ = svc.Close() }()

	if err := writeRunFiles(opts.Home, addr, listenerAddr(grpcLis)); err != nil {
		return err
	}
	defer removeRunFiles(opts.Home)

	srvOpts := httpapi.ServerOptions{
		Home:     opts.Home,
		Addr:     addr,
		Dev:      opts.Dev,
		APIKey:   opts.APIKey,
		Operator: opts.Operator,
		DB:       opts.DB,
		Services: svc,
	}
	if opts.EnableOtel {
		metricsHandler, err := otel.InitMeterProvider(ctx, "plexify", opts.Version)
		if err != nil {
			slog.Warn("otel init failed, using default metrics", "err", err)
		} else {
			srvOpts.MetricsHandler = metricsHandler
			srvOpts.UseOtelHTTP = true
			if err := otel.InitMetricsWithSessionCount(ctx, svc.Sessions.CountByStatus); err != nil {
				slog.Warn("otel instruments failed", "err", err)
			}
		}
	}
	app, err := httpapi.NewApp(srvOpts)
	if err != nil {
		return err
	}

	var gs *grpc.Server
	if grpcLis != nil {
		gs = grpc.NewServer()
		rpc.Register(gs, &rpc.Server{Services: svc, Operator: opts.Operator})
	}

	slog.Info("daemon starting", "addr", addr, "grpc_addr", listenerAddr(grpcLis), "home", opts.Home)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.Server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if gs != nil {
		g.Go(func() error {
			return gs.Serve(grpcLis)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if gs != nil {
			stopGRPC(shutdownCtx, gs)
		}
		return app.Server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	slog.Info("daemon stopped", "err", err)
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// stopGRPC drains in-flight calls, forcing a stop when ctx expires first.
func stopGRPC(ctx context.Context, gs *grpc.Server) {
	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		gs.Stop()
	}
}

func listenerAddr(l net.Listener) string {
	if l == nil {
		return ""
	}
	return l.Addr().String()
}

func writeRunFiles(home, addr, grpcAddr string) error {
	if err := os.WriteFile(pidPath(home), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return err
	}
	_ = os.WriteFile(addrPath(home), []byte(addr+"\n"), 0o644)
	if grpcAddr != "" {
		_ = os.WriteFile(grpcAddrPath(home), []byte(grpcAddr+"\n"), 0o644)
	}
	return nil
}

func removeRunFiles(home string) {
	_ = os.Remove(pidPath(home))
	_ = os.Remove(addrPath(home))
	_ = os.Remove(grpcAddrPath(home))
}

// StartBackground re-executes the current binary as a detached daemon and
// returns its pid.
func StartBackground(ctx context.Context, opts StartOptions) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(runDir(opts.Home), 0o755); err != nil {
		return 0, err
	}
	if st, _ := Status(ctx, opts.Home); st.Running {
		return 0, fmt.Errorf("plexify already running (pid %d)", st.PID)
	}

	logFile, err := os.OpenFile(LogPath(opts.Home), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	// Left open for the child's lifetime.

	cmd := exec.Command(exe, daemonArgs(opts)...)
	cmd.Stdout = io.Discard
	cmd.Stderr = logFile
	// Secrets travel in the environment, not argv.
	cmd.Env = os.Environ()
	if opts.APIKey != "" {
		cmd.Env = append(cmd.Env, "PLEXIFY_API_KEY="+opts.APIKey)
	}
	if opts.DB.URL != "" {
		cmd.Env = append(cmd.Env, "PLEXIFY_DB_URL="+opts.DB.URL)
	}
	if opts.Notify.SlackWebhookURL != "" {
		cmd.Env = append(cmd.Env, "PLEXIFY_NOTIFY_SLACK_WEBHOOK_URL="+opts.Notify.SlackWebhookURL)
	}
	setDaemonSysProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := Status(ctx, opts.Home); st.Running {
			return st.PID, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cmd.Process.Pid, nil
}

// daemonArgs are the arguments of the hidden daemon subcommand for opts.
func daemonArgs(opts StartOptions) []string {
	args := []string{
		"daemon",
		"--home", opts.Home,
		"--port", strconv.Itoa(opts.Port),
		"--grpc-addr", opts.GRPCAddr,
		"--otel=" + strconv.FormatBool(opts.EnableOtel),
	}
	if opts.Operator != "" {
		args = append(args, "--operator", opts.Operator)
	}
	if opts.DB.Driver != "" {
		args = append(args, "--db-driver", opts.DB.Driver)
	}
	if opts.Dev {
		args = append(args, "--dev")
	}
	if opts.PprofAddr != "" {
		args = append(args, "--pprof", opts.PprofAddr)
	}
	return args
}

// Stop sends SIGTERM to the running daemon and waits for it to exit. It
// reports false when no daemon was running.
func Stop(ctx context.Context, home string) (bool, error) {
	st, err := Status(ctx, home)
	if err != nil {
		return false, err
	}
	if !st.Running {
		return false, nil
	}

	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return false, errNotRunning
	}
	if err := signalTerm(proc); err != nil {
		return false, err
	}

	deadline := time.Now().Add(shutdownTimeout)
	for time.Now().Before(deadline) {
		if st2, _ := Status(ctx, home); !st2.Running {
			return true, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	_ = proc.Kill()
	return true, nil
}

// Status reads the pid and address files. A pid file naming a dead process
// is removed.
func Status(ctx context.Context, home string) (StatusInfo, error) {
	pb, err := os.ReadFile(pidPath(home))
	if err != nil {
		return StatusInfo{Running: false}, nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pb)))
	if err != nil || pid <= 0 {
		return StatusInfo{Running: false}, nil
	}
	if !processExists(pid) {
		_ = os.Remove(pidPath(home))
		return StatusInfo{Running: false}, nil
	}

	addr := readTrimmed(addrPath(home))
	if addr == "" {
		addr = "unknown"
	}
	return StatusInfo{Running: true, PID: pid, Addr: addr, GRPCAddr: readTrimmed(grpcAddrPath(home))}, nil
}

func readTrimmed(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s is already in use", addr)
	}
	_ = ln.Close()
	return nil
}
