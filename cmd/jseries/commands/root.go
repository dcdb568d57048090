// Package commands implements the jseries command-line interface.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/jseries/internal/config"
	"github.com/Sumatoshi-tech/jseries/internal/observability"
	"github.com/Sumatoshi-tech/jseries/internal/store"
	"github.com/Sumatoshi-tech/jseries/pkg/version"
)

const metricsReadHeaderTimeout = 5 * time.Second

// ErrNoStore is returned by commands that need a store when none is configured.
var ErrNoStore = errors.New("no store configured: pass --store or set store.path")

// globals holds flags shared by every command.
type globals struct {
	configPath string
	quiet      bool
	noColor    bool
	v          *viper.Viper
}

// NewRootCommand builds the jseries command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{v: config.New()}

	root := &cobra.Command{
		Use:   "jseries",
		Short: "Track how the classes of a JVM product evolve across releases",
		Long: `jseries extracts class metrics from every released version of a JVM
product, links each class to its predecessor and reports how the code base
grew, changed and shrank over time.

Commands:
  build     Build a history from archives or a versions file
  report    Render a stored history
  query     Evaluate a derived metric on a stored history
  lineage   Show the evolution of one class
  version   Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Config file (default: .jseries.yaml in the working or home directory)")
	pf.BoolVarP(&g.quiet, "quiet", "q", false, "Suppress progress output")
	pf.BoolVar(&g.noColor, "no-color", false, "Disable colored output")
	pf.String("log-level", config.DefaultLoggingLevel, "Log level: debug, info, warn, error")
	pf.Bool("log-json", config.DefaultLoggingJSON, "Write logs as JSON")
	pf.String("store", "", "SQLite history store path")

	bind(g.v, pf.Lookup("log-level"), "logging.level")
	bind(g.v, pf.Lookup("log-json"), "logging.json")
	bind(g.v, pf.Lookup("store"), "store.path")

	root.AddCommand(
		newBuildCommand(g),
		newReportCommand(g),
		newQueryCommand(g),
		newLineageCommand(g),
		newVersionCommand(),
	)

	return root
}

// invocation is the per-command state derived from configuration.
type invocation struct {
	cfg       *config.Config
	providers observability.Providers
	logger    *slog.Logger
	closers   []func(context.Context) error
}

// setup loads configuration and starts observability for one command.
func (g *globals) setup(mode observability.AppMode) (*invocation, error) {
	if g.configPath != "" {
		g.v.SetConfigFile(g.configPath)
	} else {
		g.v.SetConfigName(".jseries")
		g.v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			g.v.AddConfigPath(home)
		}
	}

	if err := g.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := config.Decode(g.v)
	if err != nil {
		return nil, err
	}

	oc := observability.DefaultConfig()
	oc.ServiceVersion = version.Get().Version
	oc.Mode = mode
	oc.Environment = os.Getenv("JSERIES_ENV")
	oc.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	oc.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	oc.OTLPInsecure = cfg.Observability.OTLPInsecure
	oc.SampleRatio = cfg.Observability.SampleRatio
	oc.TraceVerbose = cfg.Observability.TraceVerbose
	oc.Prometheus = cfg.Observability.MetricsAddr != ""
	oc.LogLevel = observability.ParseLevel(cfg.Logging.Level)
	oc.LogJSON = cfg.Logging.JSON

	providers, err := observability.Init(oc)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	rt := &invocation{cfg: cfg, providers: providers, logger: providers.Logger}
	rt.closers = append(rt.closers, providers.Shutdown)

	if oc.Prometheus {
		if err := rt.serveMetrics(cfg.Observability.MetricsAddr); err != nil {
			rt.close()

			return nil, err
		}
	}

	return rt, nil
}

func (rt *invocation) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on metrics address %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.providers.MetricsHandler)

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Warn("metrics server stopped", "error", err)
		}
	}()

	rt.logger.Info("serving metrics", "addr", ln.Addr().String())
	rt.closers = append([]func(context.Context) error{srv.Shutdown}, rt.closers...)

	return nil
}

// close releases everything setup started, most recent first.
func (rt *invocation) close() {
	for _, c := range rt.closers {
		if err := c(context.Background()); err != nil {
			rt.logger.Warn("shutdown failed", "error", err)
		}
	}
}

func (rt *invocation) openStore(ctx context.Context) (*store.Store, error) {
	if rt.cfg.Store.Path == "" {
		return nil, ErrNoStore
	}

	return store.Open(ctx, rt.cfg.Store.Path)
}

func (rt *invocation) cacheDir() (string, error) {
	if rt.cfg.Cache.Dir != "" {
		return rt.cfg.Cache.Dir, nil
	}

	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache directory: %w", err)
	}

	return filepath.Join(base, "jseries", "snapshots"), nil
}

func (g *globals) color(cmd *cobra.Command) bool {
	if g.noColor {
		return false
	}

	f, ok := cmd.OutOrStdout().(*os.File)

	return ok && isTerminal(f)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()

	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())

			return err
		},
	}
}
