package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/jobhunt-companion/internal/backend"
	"github.com/MimeLyc/jobhunt-companion/internal/config"
	"github.com/MimeLyc/jobhunt-companion/internal/feedback"
	"github.com/MimeLyc/jobhunt-companion/internal/httpapi"
	"github.com/MimeLyc/jobhunt-companion/internal/persistence"
	"github.com/MimeLyc/jobhunt-companion/internal/progress"
	"github.com/MimeLyc/jobhunt-companion/internal/service"
	"github.com/MimeLyc/jobhunt-companion/internal/session"
	"github.com/MimeLyc/jobhunt-companion/pkg/icron"
	"github.com/MimeLyc/jobhunt-companion/pkg/log"
)

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func main() {
	if err := run(); err != nil {
		log.Fatal("%v", err)
	}
	log.Info("Bye")
}

func run() error {
	config.LoadDotEnv()

	var opts []config.Option
	settingsPath := config.RuntimeSettingsFilePath()
	if saved, err := config.LoadRuntimeSettingsFile(settingsPath); err == nil {
		opts = append(opts, config.WithRuntimeSettings(saved))
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Warn("Ignoring runtime settings %s: %v", settingsPath, err)
	}

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	log.InitLogger(log.ParseLevel(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, settingsPath)
	if err != nil {
		return err
	}
	defer a.Close()

	return runWithComponents(ctx, cfg, a.probe, a.cron, a.server)
}

// app is the wired daemon.
type app struct {
	db       *persistence.SQLiteStore
	client   *backend.Client
	store    *session.Store
	svc      *service.Service
	feedback *feedback.Submitter
	probe    *healthProbe
	cron     *cron.Cron
	server   *httpapi.Server
}

func newApp(ctx context.Context, cfg *config.Config, settingsPath string) (*app, error) {
	db, err := persistence.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	client, err := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.URL,
		Timeout: cfg.Backend.RequestTimeout,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("backend client: %w", err)
	}

	store, err := session.NewStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("restore session: %w", err)
	}

	tracker := progress.NewTracker(client, progress.WithSettings(progress.Settings{
		Grace:         cfg.Progress.Grace,
		PollInterval:  cfg.Progress.PollInterval,
		QuietWindow:   cfg.Progress.QuietWindow,
		MaxPolls:      cfg.Progress.MaxPolls,
		NotFoundLimit: cfg.Progress.NotFoundLimit,
		PushSilence:   cfg.Progress.PushSilence,
		OverlapWindow: cfg.Progress.OverlapWindow,
	}))

	fb := feedback.NewSubmitter(client, db, func() string {
		return store.Snapshot().Workflow.WorkflowID
	})
	svc := service.New(ctx, store, client, tracker,
		service.WithRetryLimit(cfg.Progress.RetryLimit),
		service.WithResetHook(fb.Clear),
	)
	svc.Resume()

	cronRunner := icron.New()
	probe := newHealthProbe(client, cronRunner, cfg.Backend.HealthCron)

	serverOpts := []httpapi.Option{
		httpapi.WithUI(cfg.HTTP.UIStaticDir, cfg.HTTP.UIEnabled),
		httpapi.WithHealth(probe.Status),
	}
	if settingsPath != "" {
		settings, err := config.NewRuntimeSettingsStore(settingsPath, cfg.RuntimeSettings())
		if err != nil {
			log.Warn("Runtime settings disabled: %v", err)
		} else {
			serverOpts = append(serverOpts,
				httpapi.WithRuntimeSettingsStore(settings),
				httpapi.WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
					return applyRuntimeSettings(client, probe, next)
				}),
			)
		}
	}

	return &app{
		db:       db,
		client:   client,
		store:    store,
		svc:      svc,
		feedback: fb,
		probe:    probe,
		cron:     cronRunner,
		server:   httpapi.NewServer(svc, fb, store, serverOpts...),
	}, nil
}

func (a *app) Close() {
	a.svc.Close()
	if err := a.db.Close(); err != nil {
		log.Warn("Close database: %v", err)
	}
}

func applyRuntimeSettings(client *backend.Client, probe *healthProbe, next config.RuntimeSettings) error {
	if err := client.SetBaseURL(next.BackendURL); err != nil {
		return err
	}
	if err := probe.Reschedule(next.HealthCron); err != nil {
		return err
	}
	if next.LogLevel != "" {
		log.GetLogger().SetLevel(log.ParseLevel(next.LogLevel))
	}
	log.Info("Runtime settings applied: backend=%s health=%s", next.BackendURL, next.HealthCron)
	return nil
}

func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, engine cronEngine, srv httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	engine.Start()
	defer engine.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.HTTP.Addr)
	}()
	log.Info("Listening on %s (backend %s)", cfg.HTTP.Addr, cfg.Backend.URL)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
