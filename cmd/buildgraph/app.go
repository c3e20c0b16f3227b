package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/kbukum/buildgraph/artifactcache"
	_ "github.com/kbukum/buildgraph/artifactcache/dircache"
	_ "github.com/kbukum/buildgraph/artifactcache/rediscache"
	_ "github.com/kbukum/buildgraph/artifactcache/s3cache"
	"github.com/kbukum/buildgraph/component"
	"github.com/kbukum/buildgraph/compute"
	"github.com/kbukum/buildgraph/config"
	"github.com/kbukum/buildgraph/logger"
	"github.com/kbukum/buildgraph/observability"
	"github.com/kbukum/buildgraph/parser"
	"github.com/kbukum/buildgraph/rulekey"
	"github.com/kbukum/buildgraph/target"
	"github.com/kbukum/buildgraph/version"
)

const usage = `buildgraph resolves build targets and computes their rule keys.

Usage:
  buildgraph [options] target...

Targets are fully qualified labels such as //app:bin or cell//lib:util.

Options:
`

type options struct {
	configFile string
	fetch      bool
	outDir     string
	version    bool
	targets    []string
	flags      *pflag.FlagSet
}

func parseArgs(args []string, stdout io.Writer) (*options, bool, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("buildgraph", pflag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.Usage = func() {
		fmt.Fprint(stdout, usage)
		fs.PrintDefaults()
	}

	fs.StringVarP(&opts.configFile, "config", "c", "", "path to the config file (default: buildgraph.yml in the workspace)")
	fs.String("root", ".", "workspace root directory")
	fs.Int("parallelism", 0, "maximum concurrently running computations (0 = unbounded)")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("cache-mode", "", "artifact cache backend: dir, redis, s3, memory, none")
	fs.BoolVar(&opts.fetch, "fetch", false, "fetch every target's artifact from the cache")
	fs.StringVarP(&opts.outDir, "out", "o", "buildgraph-out", "directory fetched artifacts are written to")
	fs.BoolVar(&opts.version, "version", false, "print version information and exit")

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if opts.version {
		fmt.Fprintln(stdout, version.Get())
		return nil, true, nil
	}

	opts.targets = fs.Args()
	if len(opts.targets) == 0 {
		fs.Usage()
		return nil, false, &ExitError{Code: 2, Message: "at least one target is required"}
	}
	opts.flags = fs
	return opts, false, nil
}

func (o *options) loaderOptions() []config.LoaderOption {
	lopts := []config.LoaderOption{
		config.WithFlag("parser.root", o.flags.Lookup("root")),
		config.WithFlag("engine.parallelism", o.flags.Lookup("parallelism")),
		config.WithFlag("logging.level", o.flags.Lookup("log-level")),
		config.WithFlag("cache.mode", o.flags.Lookup("cache-mode")),
	}
	if o.configFile != "" {
		lopts = append(lopts, config.WithConfigFile(o.configFile))
	}
	return lopts
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, exit, err := parseArgs(args, stdout)
	if err != nil || exit {
		return err
	}

	roots := make([]target.BuildTarget, len(opts.targets))
	for i, label := range opts.targets {
		t, err := target.Parse(label)
		if err != nil {
			return &ExitError{Code: 2, Message: err.Error()}
		}
		roots[i] = t
	}

	cfg, err := config.Load(opts.loaderOptions()...)
	if err != nil {
		return err
	}

	log := logger.NewWithWriter(&cfg.Logging, cfg.Name, stderr)
	logger.SetGlobalLogger(log)

	app, err := newApp(ctx, cfg, opts, log)
	if err != nil {
		return err
	}
	defer app.close()

	return app.run(ctx, roots, stdout)
}

type app struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *component.Registry
	engine   *compute.Engine
	fetch    bool
}

func newApp(ctx context.Context, cfg *config.Config, opts *options, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, registry: component.NewRegistry(log), fetch: opts.fetch}

	tel, err := observability.Setup(ctx, cfg.Observability, log)
	if err != nil {
		return nil, err
	}
	if err := a.registry.Register(tel); err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	var cache artifactcache.ArtifactCache
	if opts.fetch {
		cache, err = artifactcache.New(cfg.Cache.Config, cfg.Cache.ProviderConfig(), artifactcache.NewLogBus(log), log,
			artifactcache.WithFetchMetrics(tel.Metrics()))
		if err != nil {
			a.close()
			return nil, err
		}
		if err := a.registry.Register(artifactcache.AsComponent("artifact-cache", cache)); err != nil {
			_ = cache.Close()
			a.close()
			return nil, err
		}
	}

	comps := append(parser.Computations(parser.NewYAMLSource(cfg.Parser), cfg.Parser), rulekey.Computations(cache, opts.outDir)...)
	if cfg.Logging.Level == "debug" {
		for i, c := range comps {
			comps[i] = compute.WithLogging(c, log)
		}
	}
	a.engine, err = compute.New(comps,
		compute.WithLogger(log),
		compute.WithParallelism(cfg.Engine.Parallelism),
		compute.WithOperationMetrics(tel.Metrics()),
		compute.WithSpanPrefix(cfg.Name),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	// ctx ends on SIGINT/SIGTERM; the cache component then refuses new fetches
	if err := a.registry.StartAll(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.engine != nil {
		a.engine.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.registry.StopAll(ctx); err != nil {
		a.log.Warn("shutdown incomplete", logger.Fields(logger.FieldError, err.Error()))
	}
}

func (a *app) run(ctx context.Context, roots []target.BuildTarget, stdout io.Writer) error {
	start := time.Now()
	graph, err := parser.NewGraphBuilder(a.engine, a.log).Build(ctx, roots)
	if err != nil {
		return err
	}

	targets := graph.Targets()
	keys := make([]compute.Key, len(targets))
	for i, t := range targets {
		keys[i] = rulekey.Key{Target: t}
	}
	ruleKeys, err := a.engine.ComputeAll(ctx, keys)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tRULE KEY\tDEPS")
	for _, t := range targets {
		node, _ := graph.Node(t)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t, ruleKeys[rulekey.Key{Target: t}], joinTargets(node.Deps))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if a.fetch {
		if err := a.fetchAll(ctx, targets, stdout); err != nil {
			return err
		}
	}

	a.log.Info("build graph resolved", logger.Fields(
		"targets", len(targets),
		logger.FieldDuration, time.Since(start).Milliseconds(),
	))
	for _, h := range a.registry.HealthAll(ctx) {
		if h.Status != component.StatusHealthy {
			a.log.Warn("component unhealthy", logger.Fields(logger.FieldBackend, h.Name, "status", string(h.Status), "message", h.Message))
		}
	}
	return nil
}

func (a *app) fetchAll(ctx context.Context, targets []target.BuildTarget, stdout io.Writer) error {
	keys := make([]compute.Key, len(targets))
	for i, t := range targets {
		keys[i] = rulekey.FetchKey{Target: t}
	}
	outcomes, err := a.engine.ComputeAll(ctx, keys)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout)
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tRESULT\tDETAIL")
	for _, t := range targets {
		outcome := outcomes[rulekey.FetchKey{Target: t}].(*rulekey.FetchOutcome)
		detail := outcome.Output
		switch outcome.Result.Type {
		case artifactcache.ResultHit:
		case artifactcache.ResultError:
			detail = strings.ReplaceAll(outcome.Result.CacheError(), "\n", "; ")
		default:
			detail = ""
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t, outcome.Result.Type, detail)
	}
	return tw.Flush()
}

func joinTargets(ts []target.BuildTarget) string {
	if len(ts) == 0 {
		return "-"
	}
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}
