// filebeam-relay is the relay mediator daemon: it tunnels opaque binary
// payloads and chat between endpoints that cannot reach each other
// directly, pairing them by session ID over WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/filebeam/relay/config"
	fbversion "github.com/filebeam/relay/internal/version"
	"github.com/filebeam/relay/observability/prom"
	"github.com/filebeam/relay/relay"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// shutdownTimeout bounds the HTTP drain during graceful shutdown.
const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("filebeam-relay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to configuration file (YAML; optional)")
	listen := fs.String("listen", "", "listen address override (default :PORT from config)")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		_, _ = fmt.Fprintln(stdout, fbversion.String(version, commit, date))
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}
	logger := newLogger(cfg, stderr)

	rcfg := relay.DefaultConfig()
	rcfg.ProjectName = cfg.ProjectName
	rcfg.MaxSessions = cfg.MaxSessions
	rcfg.MaxConnectionsPerUser = cfg.MaxConnectionsPerUser
	rcfg.MaxMessageLength = cfg.MaxMessageLength
	rcfg.MaxFileSize = cfg.MaxFileSize
	rcfg.ChunkSize = cfg.ChunkSize
	rcfg.SessionTimeout = cfg.SessionTimeout()
	rcfg.PingInterval = cfg.PingInterval()
	rcfg.AllowedOrigins = cfg.Origins()
	rcfg.AllowNoOrigin = cfg.AllowNoOrigin
	rcfg.Logger = logger

	var metricsSrv *http.Server
	var metricsLn net.Listener
	if cfg.MetricsListen != "" {
		reg := prom.NewRegistry()
		rcfg.Observer = prom.NewRelayObserver(reg)
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", prom.Handler(reg))
		metricsLn, err = net.Listen("tcp", cfg.MetricsListen)
		if err != nil {
			logger.Error("metrics listen failed", slog.String("error", err.Error()))
			return 1
		}
		metricsSrv = newHTTPServer(metricsMux)
	}

	srv, err := relay.New(rcfg)
	if err != nil {
		logger.Error("relay init failed", slog.String("error", err.Error()))
		return 1
	}
	defer srv.Close()

	mux := http.NewServeMux()
	srv.Register(mux)

	addr := cfg.ListenAddr()
	if *listen != "" {
		addr = *listen
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("listen failed", slog.String("error", err.Error()))
		return 1
	}
	httpSrv := newHTTPServer(mux)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreServerClosed(httpSrv.Serve(ln))
	})
	if metricsSrv != nil {
		g.Go(func() error {
			return ignoreServerClosed(metricsSrv.Serve(metricsLn))
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	logger.Info(fmt.Sprintf("%s started", cfg.ProjectName),
		slog.String("listen", ln.Addr().String()),
		slog.String("metrics_listen", cfg.MetricsListen),
		slog.Int("max_sessions", cfg.MaxSessions),
	)

	if err := g.Wait(); err != nil {
		logger.Error("server failed", slog.String("error", err.Error()))
		return 1
	}
	logger.Info("shut down")
	return 0
}

func ignoreServerClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// newLogger builds the slog logger selected by LOG_FORMAT / LOG_LEVEL.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
