package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"flairScope/internal/config"
	"flairScope/internal/indexer"
	"flairScope/internal/metrics"
	"flairScope/internal/storage"
	"flairScope/internal/storage/postgres"
	"flairScope/internal/storage/sqlite"
)

func main() {
	root := &cobra.Command{
		Use:          "flair",
		Short:        "Fee-attribution (FLAIR) engine for concentrated-liquidity pools",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(
		newPoolCmd(),
		newIndexCmd(),
		newSnapshotCmd(),
		newComputeCmd(),
		newBenchmarkCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(flags *pflag.FlagSet) {
	flags.String("store", "./data/flair.db", "postgres:// DSN or SQLite file path")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9102)")
}

func addRetryFlags(flags *pflag.FlagSet) {
	flags.Int("max-retries", 5, "maximum retry attempts per RPC call")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
}

func configFile(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openStore picks the Postgres store for postgres:// DSNs and the SQLite
// cache for anything else, and makes sure the schema exists.
func openStore(ctx context.Context, dsn string) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		store, err = postgres.NewStore(ctx, dsn)
	} else {
		store, err = sqlite.Open(dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// redactDSN hides credentials in a postgres DSN. SQLite paths pass through.
func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}

// stateStore keeps checkpoints in path when set, otherwise in the store.
func stateStore(path string, store storage.Store) indexer.StateStore {
	if path != "" {
		return indexer.NewFileStateStore(path)
	}
	return store
}

// startMetrics registers the collectors and, when addr is set, serves them
// until ctx is done. The returned stop func shuts the server down.
func startMetrics(ctx context.Context, addr string, logger *zap.Logger) (*metrics.Metrics, func()) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if addr == "" {
		return m, func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics server start", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return m, func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

// app bundles what every command sets up from its Common config.
type app struct {
	ctx     context.Context
	logger  *zap.Logger
	metrics *metrics.Metrics
	store   storage.Store
	cleanup []func()
}

func newApp(common config.Common) (*app, error) {
	logger, err := newLogger(common.LogLevel)
	if err != nil {
		return nil, err
	}
	ctx, stop := signalContext()
	rt := &app{ctx: ctx, logger: logger}
	rt.cleanup = append(rt.cleanup, func() { _ = logger.Sync() }, stop)

	m, stopMetrics := startMetrics(ctx, common.MetricsAddr, logger)
	rt.metrics = m
	rt.cleanup = append(rt.cleanup, stopMetrics)

	store, err := openStore(ctx, common.Store)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.store = store
	logger.Debug("store opened", zap.String("store", redactDSN(common.Store)))
	rt.cleanup = append(rt.cleanup, func() { _ = store.Close() })
	return rt, nil
}

func (rt *app) close() {
	for i := len(rt.cleanup) - 1; i >= 0; i-- {
		rt.cleanup[i]()
	}
}

func retryPolicy(r config.Retry) indexer.RetryPolicy {
	return indexer.RetryPolicy{MaxRetries: r.MaxRetries, Backoff: r.Backoff}
}
