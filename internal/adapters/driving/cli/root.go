package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prequery/prequery-preprocess/internal/adapters/driven/config/file"
	"github.com/prequery/prequery-preprocess/internal/adapters/driven/storage"
	"github.com/prequery/prequery-preprocess/internal/adapters/driven/storage/sqlite"
	"github.com/prequery/prequery-preprocess/internal/adapters/driven/typst"
	"github.com/prequery/prequery-preprocess/internal/connectors/shell"
	"github.com/prequery/prequery-preprocess/internal/connectors/webresource"
	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driving"
	"github.com/prequery/prequery-preprocess/internal/core/services"
	"github.com/prequery/prequery-preprocess/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// RootEnv is the environment variable providing the default --root.
const RootEnv = "TYPST_ROOT"

// Configuration file keys.
const (
	configTypst       = "typst"
	configHistory     = "history"
	configHistoryFile = "history-file"
)

// ErrQueriesFailed is returned with --strict when some queries were not resolved.
var ErrQueriesFailed = errors.New("some queries could not be resolved")

// Flag values of the root command.
var (
	flagTypst       string
	flagRoot        string
	flagConfig      string
	flagJobs        []string
	flagQueryFile   string
	flagOutput      string
	flagConcurrency int
	flagRetries     int
	flagTimeout     time.Duration
	flagCache       string
	flagStrict      bool
	flagWatch       bool
	flagHistory     bool
	flagHistoryFile string
	flagVerbose     bool
	flagQuiet       bool
)

var rootCmd = &cobra.Command{
	Use:   "prequery-preprocess [flags] INPUT",
	Short: "Resolve the prequeries of a Typst document",
	Long: `Runs the prequery jobs configured in the [tool.prequery] section of the
typst.toml next to (or above) INPUT.

Each job queries the document for declared prequeries, resolves every unique
query once (downloading web resources or running shell commands) and records
the outcomes in a result store that a later compilation reads.

Invocations sharing a result store must not run concurrently.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		logger.SetOutput(cmd.ErrOrStderr())
		logger.SetVerbose(flagVerbose)
		logger.SetQuiet(flagQuiet)
	},
	RunE: runPreprocess,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagTypst, "typst", "", "typst executable (default \"typst\")")
	flags.StringVar(&flagRoot, "root", os.Getenv(RootEnv), "project root (env "+RootEnv+")")
	flags.StringSliceVar(&flagJobs, "job", nil, "run only the named jobs")
	flags.StringVar(&flagQueryFile, "query-file", "", "read query output from a file instead of running typst (\"-\" for stdin)")
	flags.StringVarP(&flagOutput, "output", "o", "", "result store path; only with a single job")
	flags.IntVar(&flagConcurrency, "concurrency", domain.DefaultConcurrency, "queries resolved at once")
	flags.IntVar(&flagRetries, "retries", domain.DefaultRetries, "maximum attempts per query")
	flags.DurationVar(&flagTimeout, "timeout", domain.DefaultTimeout, "time limit per attempt (0 disables)")
	flags.StringVar(&flagCache, "cache", string(domain.CacheReuse), "cache policy: reuse, verify or refresh")
	flags.BoolVar(&flagStrict, "strict", false, "exit with an error if any query failed")
	flags.BoolVarP(&flagWatch, "watch", "w", false, "run again whenever the document or typst.toml changes")
	flags.BoolVar(&flagHistory, "history", false, "record runs in the history database")

	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&flagConfig, "config", "", "user configuration file (env "+file.ConfigEnv+")")
	persistent.StringVar(&flagHistoryFile, "history-file", "", "history database path")
	persistent.BoolVarP(&flagVerbose, "verbose", "v", false, "print debug output")
	persistent.BoolVarP(&flagQuiet, "quiet", "q", false, "print errors only")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the run.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return err
}

// runSettings is everything needed to build a preprocessor.
type runSettings struct {
	project     domain.Project
	base        domain.RunOptions
	history     bool
	historyFile string
}

// newPreprocessor builds the preprocessor for one invocation. The returned
// function releases its resources. Tests replace it.
var newPreprocessor = defaultPreprocessor

func defaultPreprocessor(cmd *cobra.Command, s runSettings) (driving.Preprocessor, func() error, error) {
	registry := services.NewJobRegistry(
		webresource.NewJobFactory(webresource.ClientConfig{
			Token:      os.Getenv(webresource.TokenEnv),
			TokenHosts: webresource.ParseTokenHosts(os.Getenv(webresource.TokenHostsEnv)),
			UserAgent:  webresource.DefaultUserAgent + "/" + version,
		}),
		shell.NewJobFactory(),
	)

	closer := func() error { return nil }
	var history driven.HistoryStore
	if s.history {
		store, err := sqlite.NewStore(s.historyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("opening run history: %w", err)
		}
		logger.Debug("recording runs in %s", store.Path())
		history, closer = store, store.Close
	}

	p := services.NewPreprocessor(
		file.NewManifestReader(),
		registry,
		typst.NewSourceFactory(s.project, cmd.InOrStdin()),
		storage.NewResultStore,
		history,
		s.base,
	)
	return p, closer, nil
}

func runPreprocess(cmd *cobra.Command, args []string) error {
	config, err := file.NewConfigStore(flagConfig)
	if err != nil {
		return err
	}
	settings, err := buildSettings(config, args[0])
	if err != nil {
		return err
	}
	req, err := buildRequest(cmd, settings.project)
	if err != nil {
		return err
	}

	p, closeFn, err := newPreprocessor(cmd, settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			logger.Warn("closing run history: %v", err)
		}
	}()

	if flagWatch {
		paths := []string{settings.project.Input}
		if manifest, err := file.FindManifest(settings.project.Input); err == nil {
			paths = append(paths, manifest)
		}
		return watchAndRun(cmd.Context(), paths, defaultDebounce, func(ctx context.Context) {
			if err := runOnce(ctx, cmd, p, req); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("%v", err)
			}
		})
	}
	return runOnce(cmd.Context(), cmd, p, req)
}

// runOnce runs all jobs and prints their summaries.
func runOnce(ctx context.Context, cmd *cobra.Command, p driving.Preprocessor, req driving.RunRequest) error {
	summaries, err := p.Run(ctx, req)
	if !flagQuiet || err != nil {
		renderSummaries(cmd.ErrOrStderr(), summaries)
	}
	if err != nil {
		return err
	}
	if flagStrict {
		unresolved := 0
		for _, s := range summaries {
			unresolved += s.Failed + s.Cancelled
		}
		if unresolved > 0 {
			return fmt.Errorf("%w: %d unresolved", ErrQueriesFailed, unresolved)
		}
	}
	return nil
}

// buildSettings combines flags with the user configuration file.
func buildSettings(config *file.ConfigStore, input string) (runSettings, error) {
	base, err := config.RunDefaults(domain.DefaultRunOptions())
	if err != nil {
		return runSettings{}, fmt.Errorf("%s: [defaults]: %w", config.Path(), err)
	}

	typstPath := flagTypst
	if typstPath == "" {
		typstPath = config.GetString(configTypst)
	}
	historyFile := flagHistoryFile
	if historyFile == "" {
		historyFile = config.GetString(configHistoryFile)
	}

	return runSettings{
		project:     domain.Project{Typst: typstPath, Input: input, Root: flagRoot},
		base:        base,
		history:     flagHistory || config.GetBool(configHistory),
		historyFile: historyFile,
	}, nil
}

// buildRequest turns the explicitly set flags into a run request.
func buildRequest(cmd *cobra.Command, project domain.Project) (driving.RunRequest, error) {
	req := driving.RunRequest{
		Project:   project,
		Jobs:      flagJobs,
		QueryFile: flagQueryFile,
		Output:    flagOutput,
	}

	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		req.Overrides.Concurrency = &flagConcurrency
	}
	if flags.Changed("retries") {
		req.Overrides.Retries = &flagRetries
	}
	if flags.Changed("timeout") {
		req.Overrides.Timeout = &flagTimeout
	}
	if flags.Changed("cache") {
		policy, err := domain.ParseCachePolicy(flagCache)
		if err != nil {
			return req, err
		}
		req.Overrides.Cache = &policy
	}

	if logger.IsVerbose() {
		req.Observer = func(job string, from, to domain.PipelineState) {
			if from == domain.StateIdle {
				logger.Section(job)
			}
			logger.Info("[%s] %s -> %s", job, from, to)
		}
	}
	return req, nil
}
