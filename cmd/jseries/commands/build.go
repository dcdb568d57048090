package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/jseries/internal/cache"
	"github.com/Sumatoshi-tech/jseries/internal/extract"
	"github.com/Sumatoshi-tech/jseries/internal/framework"
	"github.com/Sumatoshi-tech/jseries/internal/model"
	"github.com/Sumatoshi-tech/jseries/internal/observability"
	"github.com/Sumatoshi-tech/jseries/internal/report"
	"github.com/Sumatoshi-tech/jseries/pkg/archive"
)

type buildOptions struct {
	product  string
	format   string
	output   string
	profiles profiles
}

func newBuildCommand(g *globals) *cobra.Command {
	o := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "build <versions-file | archive...>",
		Short: "Build a version history",
		Long: `Build a version history from archives (JAR, WAR, EAR, ZIP) or class
directories, oldest first, or from a versions file listing one version per
line as "path", "label path" or "label path timestamp".

Ctrl-C cancels the build without writing anything.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, g, o, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.product, "product", "", "Product name (default: derived from the input name)")
	f.StringVar(&o.format, "format", string(report.FormatText), "Output format: text, json, yaml, html")
	f.StringVarP(&o.output, "output", "o", "", "Write the report to a file instead of stdout")
	f.Int("concurrency", 0, "Versions extracted at once (0 = CPU-derived default)")
	f.Int("class-workers", 0, "Classes decoded at once per version (0 = default)")
	f.Bool("inner-classes", true, "Include inner and nested classes")
	f.StringSlice("include", nil, "Only decode entries matching these globs")
	f.StringSlice("exclude", nil, "Skip entries matching these globs")
	f.Bool("cache", false, "Reuse extracted snapshots between builds")
	f.String("cache-dir", "", "Snapshot cache directory (default: user cache directory)")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address during the build")
	f.StringVar(&o.profiles.cpuPath, "cpuprofile", "", "Write a CPU profile of the build to this file")
	f.StringVar(&o.profiles.heapPath, "heapprofile", "", "Write a heap profile after the build to this file")

	bind(g.v, f.Lookup("concurrency"), "build.concurrency")
	bind(g.v, f.Lookup("class-workers"), "build.class_workers")
	bind(g.v, f.Lookup("inner-classes"), "build.include_inner_classes")
	bind(g.v, f.Lookup("include"), "build.include")
	bind(g.v, f.Lookup("exclude"), "build.exclude")
	bind(g.v, f.Lookup("cache"), "cache.enabled")
	bind(g.v, f.Lookup("cache-dir"), "cache.dir")
	bind(g.v, f.Lookup("metrics-addr"), "observability.metrics_addr")

	return cmd
}

func runBuild(cmd *cobra.Command, g *globals, o *buildOptions, args []string) error {
	format, err := report.ParseFormat(o.format)
	if err != nil {
		return err
	}

	specs, product, err := resolveVersions(args)
	if err != nil {
		return err
	}

	if o.product != "" {
		product = o.product
	}

	rt, err := g.setup(observability.ModeBuild)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := cmd.Context()

	inputs, err := openInputs(specs, rt.cfg.ArchiveOptions())
	if err != nil {
		return err
	}

	engine, printer, err := rt.engine(product, g.quiet, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if err := o.profiles.start(); err != nil {
		return err
	}

	start := time.Now()

	session := engine.Start(ctx, inputs, rt.cfg.Build.Concurrency)

	h, err := session.Wait()

	printer.Stop()
	o.profiles.stop(rt.logger)

	if err != nil {
		if errors.Is(err, framework.ErrCanceled) {
			fmt.Fprintln(cmd.ErrOrStderr(), "build canceled")
		}

		return err
	}

	if !g.quiet {
		if err := report.WriteSummary(cmd.ErrOrStderr(), h, time.Since(start)); err != nil {
			return err
		}
	}

	if err := rt.save(ctx, h, g.quiet, cmd.ErrOrStderr()); err != nil {
		return err
	}

	return writeReport(cmd.OutOrStdout(), o.output, h, format)
}

func openInputs(specs []VersionSpec, opts archive.Options) ([]extract.VersionInput, error) {
	inputs := make([]extract.VersionInput, 0, len(specs))

	for i, s := range specs {
		src, err := archive.Open(s.Path, opts)
		if err != nil {
			return nil, fmt.Errorf("version %d (%s): %w", i+1, s.Label, err)
		}

		inputs = append(inputs, extract.VersionInput{
			RSN:       i + 1,
			Label:     s.Label,
			Timestamp: s.Timestamp,
			Source:    src,
		})
	}

	return inputs, nil
}

// engine returns the configured engine and its progress printer, which is
// nil when quiet.
func (rt *invocation) engine(
	product string, quiet bool, progress io.Writer,
) (*framework.Engine, *report.ProgressPrinter, error) {
	metrics, err := observability.NewBuildMetrics(rt.providers.Meter)
	if err != nil {
		return nil, nil, fmt.Errorf("build metrics: %w", err)
	}

	opts := []framework.Option{
		framework.WithProduct(product),
		framework.WithLogger(rt.logger),
		framework.WithTracer(rt.providers.Tracer),
		framework.WithMetrics(metrics),
		framework.WithExtractor(extract.NewVersionExtractor(
			extract.WithWorkers(rt.cfg.Build.ClassWorkers),
			extract.WithLogger(rt.logger),
		)),
	}

	if rt.cfg.Cache.Enabled {
		dir, err := rt.cacheDir()
		if err != nil {
			return nil, nil, err
		}

		opts = append(opts, framework.WithCache(cache.New(dir, rt.cfg.ExtractionKey(), rt.logger)))
	}

	var printer *report.ProgressPrinter

	if !quiet {
		printer = report.NewProgressPrinter(progress, report.DefaultProgressInterval)
		opts = append(opts, framework.WithObserver(printer.Observe))
	}

	return framework.NewEngine(opts...), printer, nil
}

func (rt *invocation) save(ctx context.Context, h *model.History, quiet bool, w io.Writer) error {
	if rt.cfg.Store.Path == "" {
		return nil
	}

	s, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.Save(ctx, h)
	if err != nil {
		return err
	}

	rt.logger.InfoContext(ctx, "history stored", "product", h.Product(), "build_id", id, "path", s.Path())

	if quiet {
		return nil
	}

	var size int64
	if info, err := os.Stat(s.Path()); err == nil {
		size = info.Size()
	}

	return report.WriteSaved(w, id, s.Path(), size)
}

func writeReport(stdout io.Writer, output string, h *model.History, format report.Format) error {
	if output == "" {
		return report.Write(stdout, h, format)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	if err := report.Write(f, h, format); err != nil {
		_ = f.Close()

		return err
	}

	return f.Close()
}
