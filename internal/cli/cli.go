// Package cli builds the hioload-http command tree.
//
//	hioload-http
//	├── serve      run the server until SIGINT/SIGTERM
//	│   ├── --config, -c        YAML config file
//	│   ├── --addr              listen address
//	│   ├── --shutdown-timeout  drain deadline
//	│   ├── --handler           state | chain
//	│   ├── --log-level, --log-format
//	│   ├── --cpu               pin the event loop thread
//	│   └── --metrics-addr      serve /metrics here
//	└── version
//
// Flags override values from the config file; the file overrides defaults.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-rt/control"
	"github.com/momentics/hioload-rt/server"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

const metricsShutdownTimeout = 5 * time.Second

type serveOptions struct {
	configFile      string
	addr            string
	shutdownTimeout time.Duration
	handler         string
	logLevel        string
	logFormat       string
	metricsAddr     string
	cpu             int
}

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	root := &cobra.Command{
		Use:   "hioload-http",
		Short: "Toy HTTP server on a single-threaded cooperative runtime",
		Long: `hioload-http answers every HTTP request with a canned 200 OK.
All connections are served by one OS thread: an epoll reactor wakes
poll-based tasks, and SIGINT/SIGTERM drain in-flight connections before exit.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCommand())
	root.AddCommand(buildVersionCommand())
	return root
}

func buildServeCommand() *cobra.Command {
	return newServeCommand(&serveOptions{})
}

func newServeCommand(opts *serveOptions) *cobra.Command {
	def := server.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "YAML config file")
	f.StringVar(&opts.addr, "addr", def.ListenAddr, "listen address")
	f.DurationVar(&opts.shutdownTimeout, "shutdown-timeout", def.ShutdownTimeout, "graceful shutdown deadline")
	f.StringVar(&opts.handler, "handler", string(def.Handler), "connection handler: state or chain")
	f.StringVar(&opts.logLevel, "log-level", def.Log.Level, "log level")
	f.StringVar(&opts.logFormat, "log-format", def.Log.Format, "log format: json or console")
	f.IntVar(&opts.cpu, "cpu", def.CPU, "pin the event loop thread to this CPU (-1 disables)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", def.MetricsAddr, "address for the Prometheus /metrics endpoint (empty disables)")
	return cmd
}

func buildVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hioload-http %s (%s %s/%s)\n",
				Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

// resolveConfig layers defaults, the config file and explicitly set flags.
func resolveConfig(cmd *cobra.Command, opts *serveOptions) (*server.Config, error) {
	cfg := server.DefaultConfig()
	if opts.configFile != "" {
		loaded, err := server.LoadConfig(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.ListenAddr = opts.addr
	}
	if f.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout = opts.shutdownTimeout
	}
	if f.Changed("handler") {
		cfg.Handler = server.HandlerMode(opts.handler)
	}
	if f.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if f.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	if f.Changed("cpu") {
		cfg.CPU = opts.cpu
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cobra.Command, cfg *server.Config) error {
	log, err := control.NewLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	probes := control.NewDebugProbes()
	srv, err := server.NewServer(cfg,
		server.WithLogger(log),
		server.WithMetrics(control.NewMetrics(reg)),
		server.WithDebugProbes(probes),
	)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", control.Handler(reg))
		hs := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint listening")
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-ctx.Done():
				_ = srv.Shutdown()
			case <-srv.Done():
			}
			sctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			return hs.Shutdown(sctx)
		})
	}
	return g.Wait()
}
