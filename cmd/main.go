package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/rks/internal/adapters/http/api"
	"github.com/okian/rks/internal/adapters/repository"
	"github.com/okian/rks/internal/adapters/savedata"
	app "github.com/okian/rks/internal/app"
	"github.com/okian/rks/internal/config"
	"github.com/okian/rks/internal/domain/catalog"
	"github.com/okian/rks/pkg/logger"
	"github.com/okian/rks/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 90 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	catalogReloadTimeout      = time.Minute
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Our registry carries the process metrics we care about.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, loggerInstance); err != nil {
		loggerInstance.Error(ctx, "server exited", logger.Error(err))
		os.Exit(1)
	}
}

// application is the wired server before it starts listening.
type application struct {
	svc       *app.Service
	scheduler *app.Scheduler
	handler   http.Handler
}

// build wires storage, catalog, provider, service and routes from cfg.
func build(ctx context.Context, cfg *config.Config, l logger.Logger) (*application, error) {
	location := cfg.HistoryDir
	if cfg.HistoryBackend == config.BackendSQLite {
		location = cfg.SQLitePath
	}
	store, err := repository.Open(ctx, cfg.HistoryBackend, location, repository.WithLogger(l.Named("history")))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	cat, err := catalog.Open(ctx, cfg.CatalogPath, catalog.WithLogger(l.Named("catalog")))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	provider := savedata.NewLimited(savedata.NewDir(cfg.SavesDir),
		savedata.WithTimeout(time.Duration(cfg.FetchTimeoutMS)*time.Millisecond),
		savedata.WithRate(cfg.FetchRatePerSec, cfg.FetchBurst),
		savedata.WithLogger(l.Named("savedata")),
	)

	svc := app.New(store, provider, cat,
		app.WithLogger(l.Named("gateway")),
		app.WithBestCount(cfg.BestCount),
		app.WithPhiCount(cfg.PhiCount),
		app.WithMaxBestCount(cfg.MaxBestCount),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithLockSlots(cfg.LockTableSize),
	)

	scheduler := app.NewScheduler(l.Named("scheduler"))
	if cfg.CatalogReloadCron != "" {
		if err := scheduler.AddReload("catalog", cfg.CatalogReloadCron, cat, catalogReloadTimeout); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	return &application{
		svc:       svc,
		scheduler: scheduler,
		handler:   api.NewServer(svc, svc, api.WithLogger(l.Named("api"))).Routes(),
	}, nil
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config, l logger.Logger) error {
	a, err := build(ctx, cfg, l)
	if err != nil {
		return err
	}
	if err := a.svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	a.scheduler.Start()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, a.svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		l.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}
	l.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		l.Error(shutdownCtx, "server shutdown failed", logger.Error(serr))
	}
	a.scheduler.Stop(shutdownCtx)
	a.svc.Stop(shutdownCtx)

	l.Info(shutdownCtx, "server stopped")
	return err
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics updates service-level gauges from GetStats.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if pending, ok := stats["pendingRefresh"].(int); ok {
		metrics.UpdatePendingRefreshes(pending)
	}
	if songs, ok := stats["catalogSongs"].(int); ok {
		metrics.UpdateCatalogEntries(songs)
	}
}
