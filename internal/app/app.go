package app

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"diaguru-scheduler/internal/adapter/external/calendar"
	schedulerhttp "diaguru-scheduler/internal/adapter/http"
	backgroundjobs "diaguru-scheduler/internal/adapter/scheduler"
	"diaguru-scheduler/internal/adapter/telegram"
	"diaguru-scheduler/internal/advisor"
	"diaguru-scheduler/internal/config"
	"diaguru-scheduler/internal/orchestrator"
	"diaguru-scheduler/internal/platform/httpclient"
	"diaguru-scheduler/internal/platform/logger"
	"diaguru-scheduler/internal/platform/pg"
	"diaguru-scheduler/internal/store"
)

// App wires the scheduling engine's composition root: config, logger,
// Postgres pool, store, calendar gateway, advisor and orchestrator,
// exposed over the HTTP adapter.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "diaguru-scheduler",
	})
	return &App{cfg: cfg, log: log}, nil
}

// Run starts the HTTP server and blocks until it's told to shut down.
func (a *App) Run() error {
	a.log.Info("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pg.NewPool(ctx, a.cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if _, err := pg.ApplyMigrations(a.cfg.Postgres.DSN, "file://migrations"); err != nil {
		a.log.Error("migrations", slog.Any("err", err))
		return err
	}

	st := store.NewPGStore(pool)

	client := httpclient.New(httpclient.WithLogger(a.log))
	calClient := calendar.NewClient(client, a.cfg.Calendar.BaseURL, calendar.StaticTokenSource{APIKey: a.cfg.Calendar.APIKey})

	var advClient *advisor.Client
	if a.cfg.Advisor.Enabled {
		advClient = advisor.NewClient(client, a.cfg.Advisor.BaseURL, a.cfg.Advisor.Model, a.cfg.Advisor.APIKey, a.log)
	}

	orc := orchestrator.New(st, calClient, advClient, a.cfg.Scheduler, a.log)

	var notifier schedulerhttp.ConflictNotifier
	if a.cfg.Telegram.Token != "" {
		n, err := telegram.NewNotifier(a.cfg.Telegram.Token)
		if err != nil {
			a.log.Error("telegram notifier", slog.Any("err", err))
		} else {
			notifier = n
		}
	}

	jobs := backgroundjobs.New(backgroundjobs.Config{Logger: a.log})
	jobs.Start()
	defer jobs.Stop()
	backgroundjobs.RegisterPendingCaptureSweep(jobs, st, orc, 5*time.Minute, a.log)
	if _, err := backgroundjobs.RegisterOverlapBudgetReset(jobs, st, 7*24*time.Hour, a.log); err != nil {
		a.log.Error("overlap budget reset job", slog.Any("err", err))
	}

	srv := schedulerhttp.New(orc, schedulerhttp.StaticAuthenticator{}, notifier, a.log)
	httpServer := srv.ListenAndServe(a.cfg.HTTP.Addr)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("server", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
