// Package main provides the CLI entry point for bisectbench, a benchmark of
// interval location across sequence representations and process
// boundaries.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/weiihann/bisectbench/harness"
	"github.com/weiihann/bisectbench/repr"
	"github.com/weiihann/bisectbench/report"
	"github.com/weiihann/bisectbench/service"
	"github.com/weiihann/bisectbench/workload"
)

func main() {
	var level slog.LevelVar

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: &level,
	}))

	root := newRootCmd(logger, &level)
	if err := root.Execute(); err != nil {
		logger.Error("bisectbench failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "bisectbench",
		Short: "Interval location benchmark across representations and boundaries",
		Long: `Bisectbench locates a batch of query values inside a large sorted
sequence through several backends (in-process, and an out-of-process locator
service fed a copied sequence, a shared buffer, or Arrow columnar arrays) and
prints the wall-clock time of each scenario.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return level.UnmarshalText([]byte(logLevel))
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")

	root.AddCommand(newRunCmd(logger))
	root.AddCommand(newGenerateCmd(logger))
	root.AddCommand(newServeCmd(logger))

	return root
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	var cfg runConfig

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scenario registry",
		Long: `Generate a synthetic workload (or load one), start the locator
service if any selected scenario needs it, and run every selected scenario
once, printing "<elapsed>ms to run <name>" per timed call.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.debug = logger.Enabled(cmd.Context(), slog.LevelDebug)

			return runBenchmark(cmd.Context(), logger, cfg)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.size, "size", workload.DefaultSize,
		"Number of elements in the sorted sequence")
	flags.IntVar(&cfg.queries, "queries", workload.DefaultQueries,
		"Number of query values")
	flags.Int64Var(&cfg.seed, "seed", 0,
		"Random seed (0 = use current time)")
	flags.StringVar(&cfg.workloadPath, "workload", "",
		"Path to pre-generated workload file (skip generation)")
	flags.StringSliceVar(&cfg.scenarios, "scenarios", nil,
		"Scenarios to run, in registry order (default: all)")
	flags.StringVar(&cfg.servicePath, "service", "",
		"Path to a locator service binary (default: this binary's serve command)")
	flags.BoolVar(&cfg.buildService, "build-service", false,
		"Compile the locator service before running")
	flags.StringVar(&cfg.serviceSrc, "service-src", "cmd/locatord",
		"Locator service source directory used by --build-service")
	flags.StringVar(&cfg.binDir, "bin-dir", "bin",
		"Output directory used by --build-service")
	flags.StringVar(&cfg.shmDir, "shm-dir", "",
		"Directory for shared buffer files (default: /dev/shm or the temp dir)")
	flags.BoolVar(&cfg.verify, "verify", false,
		"Fail if any scenario locates different indices than the first")
	flags.StringVar(&cfg.report, "report", "none",
		"Summary after the run: none, markdown, json")

	return cmd
}

type runConfig struct {
	size         int
	queries      int
	seed         int64
	workloadPath string
	scenarios    []string
	servicePath  string
	buildService bool
	serviceSrc   string
	binDir       string
	shmDir       string
	verify       bool
	report       string
	debug        bool
}

func runBenchmark(
	ctx context.Context,
	logger *slog.Logger,
	cfg runConfig,
) error {
	logger = logger.With(slog.String("run_id", uuid.NewString()))

	switch cfg.report {
	case "none", "markdown", "json":
	default:
		return fmt.Errorf("unknown report format %q", cfg.report)
	}

	scenarios, err := harness.Select(harness.DefaultScenarios(), cfg.scenarios)
	if err != nil {
		return err
	}

	// Step 1: Generate workload (or load a pre-generated file).
	w, err := loadOrGenerate(ctx, logger, cfg)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "starting benchmark",
		slog.Int("size", len(w.Sequence)),
		slog.Int("queries", len(w.Queries)),
		slog.Int64("seed", w.Seed),
		slog.Any("scenarios", harness.Names(scenarios)),
	)

	// Step 2: Start the locator service when a scenario crosses the
	// boundary.
	var client *service.Client

	if harness.NeedsService(scenarios) {
		proc, err := startService(ctx, logger, cfg)
		if err != nil {
			return fmt.Errorf("start locator service: %w", err)
		}

		defer func() {
			if err := proc.Close(); err != nil {
				logger.Warn("locator service exited uncleanly",
					slog.String("error", err.Error()),
				)
			}
		}()

		proc.SetShmDir(cfg.shmDir)
		client = proc.Client
	}

	// Step 3: Run each scenario sequentially.
	h := harness.New(os.Stdout, logger)
	in := harness.Input{
		Space:   repr.NewBuffer(w.Sequence),
		Queries: repr.Sequence(w.Queries),
	}

	results, err := h.Run(ctx, client, in, scenarios)
	if err != nil {
		return err
	}

	if cfg.verify {
		if err := harness.Verify(results); err != nil {
			return fmt.Errorf("verify: %w", err)
		}

		logger.InfoContext(ctx, "all scenarios located identical indices")
	}

	// Step 4: Optional summary.
	switch cfg.report {
	case "markdown":
		if err := report.Generate(os.Stdout, results); err != nil {
			return fmt.Errorf("generate report: %w", err)
		}
	case "json":
		if err := report.GenerateJSON(os.Stdout, results); err != nil {
			return fmt.Errorf("generate JSON report: %w", err)
		}
	}

	logger.InfoContext(ctx, "benchmark complete")

	return nil
}

func loadOrGenerate(
	ctx context.Context,
	logger *slog.Logger,
	cfg runConfig,
) (*workload.Workload, error) {
	if cfg.workloadPath != "" {
		f, err := os.Open(cfg.workloadPath)
		if err != nil {
			return nil, fmt.Errorf("open workload %s: %w", cfg.workloadPath, err)
		}
		defer f.Close()

		w, err := workload.Load(f)
		if err != nil {
			return nil, fmt.Errorf("load workload %s: %w", cfg.workloadPath, err)
		}

		logger.InfoContext(ctx, "workload loaded",
			slog.String("path", cfg.workloadPath),
		)

		return w, nil
	}

	seed := cfg.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	w, err := workload.NewGenerator(workload.Config{
		Size:    cfg.size,
		Queries: cfg.queries,
		Seed:    seed,
	}).Generate()
	if err != nil {
		return nil, fmt.Errorf("generate workload: %w", err)
	}

	return w, nil
}

func startService(
	ctx context.Context,
	logger *slog.Logger,
	cfg runConfig,
) (*service.Process, error) {
	binPath := cfg.servicePath

	if cfg.buildService {
		var err error

		binPath, err = harness.BuildService(ctx, logger, cfg.serviceSrc, cfg.binDir)
		if err != nil {
			return nil, err
		}
	}

	command, err := harness.ServiceCommand(binPath, cfg.debug)
	if err != nil {
		return nil, err
	}

	return service.Start(ctx, logger, command)
}

func newGenerateCmd(logger *slog.Logger) *cobra.Command {
	var (
		size    int
		queries int
		seed    int64
		output  string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a workload file for later runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if seed == 0 {
				seed = time.Now().UnixNano()
			}

			w, err := workload.NewGenerator(workload.Config{
				Size:    size,
				Queries: queries,
				Seed:    seed,
			}).Generate()
			if err != nil {
				return fmt.Errorf("generate workload: %w", err)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}

			if err := w.Save(f); err != nil {
				f.Close()

				return fmt.Errorf("save workload: %w", err)
			}

			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", output, err)
			}

			logger.InfoContext(cmd.Context(), "workload written",
				slog.String("path", output),
				slog.Int("size", size),
				slog.Int("queries", queries),
				slog.Int64("seed", seed),
			)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&size, "size", workload.DefaultSize,
		"Number of elements in the sorted sequence")
	flags.IntVar(&queries, "queries", workload.DefaultQueries,
		"Number of query values")
	flags.Int64Var(&seed, "seed", 0,
		"Random seed (0 = use current time)")
	flags.StringVarP(&output, "output", "o", "workload.arrow.zst",
		"Output file")

	return cmd
}

func newServeCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:    harness.ServeSubcommand,
		Short:  "Run the locator service on stdin/stdout",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := service.NewServer(os.Stdin, os.Stdout, logger.With(
				slog.String("component", "locator"),
				slog.Int("pid", os.Getpid()),
			))

			return srv.Serve(cmd.Context())
		},
	}
}
