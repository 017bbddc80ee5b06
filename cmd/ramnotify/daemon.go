package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dreamsxin/ramnotify/config"
	"github.com/dreamsxin/ramnotify/manager"
	"github.com/dreamsxin/ramnotify/metrics"
	"github.com/dreamsxin/ramnotify/monitor"
	"github.com/dreamsxin/ramnotify/notify"
	"github.com/dreamsxin/ramnotify/processlist"
	"github.com/dreamsxin/ramnotify/server"
	"github.com/dreamsxin/ramnotify/system"
	"github.com/dreamsxin/ramnotify/types"
)

const shutdownTimeout = 5 * time.Second

func runDaemon(ctx context.Context, cfg envConfig) error {
	logger := newLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(cfg, logger)
	if err != nil {
		return err
	}
	return d.Run(ctx)
}

// daemon is the resident monitor with its optional HTTP API
type daemon struct {
	cfg       envConfig
	logger    *slog.Logger
	store     *config.Store
	registry  *prometheus.Registry
	runner    *manager.CommandRunner
	engine    *monitor.Engine
	processes *processlist.ProcessList
}

func newDaemon(cfg envConfig, logger *slog.Logger) (*daemon, error) {
	store := config.NewStore(cfg.ConfigPath, logger)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if store.FirstRun() {
		logger.Info("first run, default settings written", slog.String("path", store.Path()))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(reg)

	runner := manager.NewCommandRunner(logger)
	sampler := system.NewMemorySampler()
	engine, err := monitor.NewEngine(monitor.Options{
		Sampler:  sampler,
		Store:    store,
		Launcher: runner,
		Notifier: notify.Multi{notify.NewConsole(os.Stderr), notify.NewDesktop(logger)},
		Recorder: recorder,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	engine.Subscribe(&logObserver{logger: logger})

	d := &daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: reg,
		runner:   runner,
		engine:   engine,
	}
	if cfg.HTTPAddr != "" && store.Config().EnableProcessList {
		d.processes, err = newProcessList(cfg, sampler, recorder, processlist.ConfirmFunc(refuse), logger)
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Run blocks until ctx is done, then saves the working settings
func (d *daemon) Run(ctx context.Context) error {
	defer d.runner.Shutdown(d.cfg.ExitTimeout)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.engine.Run(ctx)
	})

	if d.cfg.HTTPAddr != "" {
		hs := &http.Server{
			Addr:              d.cfg.HTTPAddr,
			Handler:           server.New(d.engine, d.processes, d.registry, d.logger).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			d.logger.Info(fmt.Sprintf("%s HTTP API listening", svcName), slog.String("addr", d.cfg.HTTPAddr))
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	if err != nil {
		d.logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}

	// 退出时保存设置
	if saveErr := d.store.Save(); saveErr != nil {
		d.logger.Error("failed to save settings on exit", slog.Any("error", saveErr))
		return errors.Join(err, fmt.Errorf("save settings: %w", saveErr))
	}
	d.logger.Info("settings saved", slog.String("path", d.store.Path()))
	return err
}

// refuse declines every action; the HTTP API has no one to ask
func refuse(context.Context, types.Action, types.ProcessRecord) bool {
	return false
}

// logObserver writes engine events to the log when no UI is attached
type logObserver struct {
	monitor.NopObserver
	logger *slog.Logger
}

func (o *logObserver) ThresholdChanged(r types.Resource, percent int) {
	o.logger.Info("threshold changed", slog.String("resource", r.String()), slog.Int("percent", percent))
}

func (o *logObserver) CommandStateChanged(r types.Resource, running bool) {
	o.logger.Debug("command state changed", slog.String("resource", r.String()), slog.Bool("running", running))
}
