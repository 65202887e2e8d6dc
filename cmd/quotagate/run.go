package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"

	"mercator-hq/quotagate/pkg/cli"
	"mercator-hq/quotagate/pkg/config"
	"mercator-hq/quotagate/pkg/limits/ratelimit"
	"mercator-hq/quotagate/pkg/secrets"
	"mercator-hq/quotagate/pkg/server"
	"mercator-hq/quotagate/pkg/telemetry/logging"
	"mercator-hq/quotagate/pkg/telemetry/metrics"
	"mercator-hq/quotagate/pkg/telemetry/tracing"
	"mercator-hq/quotagate/pkg/upstream"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	noWatch       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the quotagate sidecar",
	Long: `Start the sidecar with the specified configuration.

The server listens on the configured address and forwards requests under the
forward prefix to the upstream API, waiting for quota before every attempt.
The configuration file is watched; log level changes apply immediately and
other changes are reported as requiring a restart.

Examples:
  # Start with default config
  quotagate run

  # Start with custom config
  quotagate run --config /etc/quotagate/quotagate.yaml

  # Override listen address
  quotagate run --listen 0.0.0.0:8080

  # Validate config without starting server
  quotagate run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
	runCmd.Flags().BoolVar(&runFlags.noWatch, "no-watch", false, "do not watch the config file for changes")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	applyRunFlags(cfg)
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	logger, err := newLogger(&cfg.Telemetry.Logging)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	slog.SetDefault(logger.Slog())

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return cli.NewCommandError("failed to initialize tracing", err)
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	apiKeyFunc, closeSecrets, err := newCredentials(ctx, cfg, logger.Slog())
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	defer closeSecrets()

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	limiter, err := ratelimit.New(cfg.Limits.RateLimitWindows(),
		ratelimit.WithLogger(logger.Slog()),
		ratelimit.WithRecorder(collector),
	)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	limiter.Subscribe(ratelimit.LogBackpressure(logger.Slog(), cfg.Limits.BackpressureLogInterval))
	collector.WatchLimiter(limiter)

	clientOpts := []upstream.Option{
		upstream.WithLogger(logger.Slog()),
		upstream.WithRecorder(collector),
		upstream.WithTracer(tracer),
	}
	if apiKeyFunc != nil {
		clientOpts = append(clientOpts, upstream.WithAPIKeyFunc(apiKeyFunc))
	}
	client, err := upstream.NewClient(&cfg.Upstream, limiter, clientOpts...)
	if err != nil {
		_ = limiter.Close()
		return cli.NewConfigError(cfgFile, err)
	}

	srv, err := server.NewServer(cfg, limiter, client,
		server.WithLogger(logger),
		server.WithMetrics(collector),
		server.WithTracer(tracer),
		server.WithVersion(Version, GitCommit, BuildDate),
	)
	if err != nil {
		_ = limiter.Close()
		_ = client.Close()
		return cli.NewCommandError("failed to create server", err)
	}

	if !runFlags.noWatch {
		stopWatch, err := watchConfig(ctx, cfg, logger)
		if err != nil {
			logger.Warn("config watching disabled", "error", err)
		} else {
			defer stopWatch()
		}
	}

	printBanner(cmd, cfg, limiter)

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("server stopped", err)
	}

	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

func newLogger(cfg *config.LoggingConfig) (*logging.Logger, error) {
	patterns := make([]logging.Pattern, len(cfg.RedactPatterns))
	for i, p := range cfg.RedactPatterns {
		patterns[i] = logging.Pattern{Name: p.Name, Regex: p.Pattern, Replacement: p.Replacement}
	}

	return logging.New(logging.Config{
		Level:          cfg.Level,
		Format:         cfg.Format,
		AddSource:      cfg.AddSource,
		RedactSecrets:  cfg.RedactSecrets,
		RedactPatterns: patterns,
		Writer:         os.Stdout,
	})
}

// newCredentials returns a key function when upstream.api_key holds secret
// references, or nil when the key is a literal. The references are resolved
// once here so a missing secret fails startup rather than the first call.
func newCredentials(ctx context.Context, cfg *config.Config, logger *slog.Logger) (func(context.Context) (string, error), func(), error) {
	raw := cfg.Upstream.APIKey
	if !secrets.HasReferences(raw) {
		return nil, func() {}, nil
	}

	// The directory watcher may fire before the resolver exists.
	var resolver atomic.Pointer[secrets.Resolver]
	sources := []secrets.Source{secrets.NewEnvSource(cfg.Secrets.EnvPrefix)}

	var dir *secrets.DirSource
	if cfg.Secrets.Dir != "" {
		var err error
		dir, err = secrets.NewDirSource(cfg.Secrets.Dir, cfg.Secrets.Watch, func() {
			if r := resolver.Load(); r != nil {
				r.Invalidate()
			}
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, dir)
	}

	r := secrets.NewResolver(sources,
		secrets.WithCacheTTL(cfg.Secrets.CacheTTL),
		secrets.WithLogger(logger),
	)
	resolver.Store(r)
	closeFn := func() {
		if dir != nil {
			if err := dir.Close(); err != nil {
				logger.Warn("failed to close secrets directory", "error", err)
			}
		}
	}

	if _, err := r.Resolve(ctx, raw); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("upstream.api_key: %w", err)
	}

	return func(ctx context.Context) (string, error) {
		return r.Resolve(ctx, raw)
	}, closeFn, nil
}

// watchConfig applies reloaded log levels to logger and reports every other
// change as needing a restart.
// applyRunFlags layers the run command's flag overrides over cfg. Reloaded
// files get the same treatment so they compare equal to what runs.
func applyRunFlags(cfg *config.Config) {
	if runFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
}

func watchConfig(ctx context.Context, running *config.Config, logger *logging.Logger) (func(), error) {
	watcher, err := config.NewWatcher(cfgFile, 0, logger.Slog())
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	current := running

	go func() {
		err := watcher.Watch(ctx, func(updated *config.Config) {
			mu.Lock()
			defer mu.Unlock()

			applyRunFlags(updated)
			changes := config.Diff(current, updated)
			if changes.Empty() {
				return
			}

			if changes.LogLevel != "" {
				if err := logger.SetLevel(changes.LogLevel); err != nil {
					logger.Error("failed to apply log level", "level", changes.LogLevel, "error", err)
				} else {
					logger.Info("log level changed", "level", changes.LogLevel)
				}
			}
			if len(changes.RestartRequired) > 0 {
				logger.Warn("configuration changed; restart required to apply",
					"sections", changes.RestartRequired,
				)
			}

			// Only the log level is live; keep comparing against what runs.
			next := *current
			next.Telemetry.Logging.Level = updated.Telemetry.Logging.Level
			current = &next
		})
		if err != nil {
			logger.Error("config watcher stopped", "error", err)
		}
	}()

	return func() {
		if err := watcher.Stop(); err != nil {
			logger.Warn("failed to stop config watcher", "error", err)
		}
	}, nil
}

func printBanner(cmd *cobra.Command, cfg *config.Config, limiter *ratelimit.Limiter) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Quotagate v%s\n", Version)
	fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)
	fmt.Fprintln(out, "✓ Configuration loaded")
	fmt.Fprintf(out, "✓ Upstream %s: %s\n", cfg.Upstream.Name, cfg.Upstream.BaseURL)
	for _, w := range limiter.Windows() {
		fmt.Fprintf(out, "✓ Window %s\n", w)
	}
	scheme := "http"
	if cfg.Proxy.TLS.Enabled {
		scheme = "https"
	}
	fmt.Fprintf(out, "✓ Listening on %s://%s (forwarding %s)\n", scheme, cfg.Proxy.ListenAddress, cfg.Proxy.ForwardPrefix)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: %s://%s%s\n", scheme, cfg.Proxy.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")
}
