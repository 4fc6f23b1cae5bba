// Package app assembles the worker, its store and its notifiers from a
// Config. Both binaries build on it.
package app

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeworker/internal/checklog"
	"github.com/hamed0406/uptimeworker/internal/config"
	"github.com/hamed0406/uptimeworker/internal/httpapi"
	"github.com/hamed0406/uptimeworker/internal/notify"
	"github.com/hamed0406/uptimeworker/internal/probe"
	"github.com/hamed0406/uptimeworker/internal/repo"
	"github.com/hamed0406/uptimeworker/internal/repo/filestore"
	"github.com/hamed0406/uptimeworker/internal/repo/memory"
	pg "github.com/hamed0406/uptimeworker/internal/repo/postgres"
	"github.com/hamed0406/uptimeworker/internal/repo/sqlite"
	"github.com/hamed0406/uptimeworker/internal/scheduler"
)

type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Store     repo.RecordStore
	Logs      *checklog.Store
	Runner    *probe.Runner
	Notifier  notify.Notifier
	Processor *scheduler.Processor
	Worker    *scheduler.Worker
	Hub       *httpapi.Hub

	closers []func() error
}

// OpenStore returns the record store selected by cfg.StoreDriver and a func
// releasing it.
func OpenStore(ctx context.Context, cfg config.Config, log *zap.Logger) (repo.RecordStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.StoreDriver {
	case "", "file":
		s, err := filestore.New(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open file store: %w", err)
		}
		return s, noop, nil
	case "memory":
		return memory.New(), noop, nil
	case "sqlite":
		s, err := sqlite.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s.Close, nil
	case "postgres":
		s, err := pg.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, func() error { s.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Notifiers builds the alert fan-out: SMS when credentials are present and
// Slack when a webhook is set.
func Notifiers(cfg config.Config) notify.Multi {
	var m notify.Multi
	if tw := notify.NewTwilio(cfg.Twilio); tw != nil {
		m = append(m, tw)
	}
	if sl := notify.NewSlack(cfg.SlackWebhook); sl != nil {
		m = append(m, sl)
	}
	return m
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, closeStore, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Logs:    checklog.New(cfg.CheckLogDir, logger.Named("checklog")),
		Runner:  probe.NewRunner(),
		Hub:     httpapi.NewHub(logger.Named("stream")),
		closers: []func() error{closeStore},
	}

	notifiers := Notifiers(cfg)
	if len(notifiers) == 0 {
		logger.Warn("alerts_disabled", zap.String("reason", "no sms credentials or slack webhook"))
	} else {
		a.Notifier = notifiers
	}

	a.Processor = scheduler.NewProcessor(store, a.Logs, a.Notifier, cfg.SMSCountryCode, logger.Named("processor"))
	a.Processor.SetObserver(a.Hub)
	a.Worker = scheduler.NewWorker(
		logger.Named("worker"),
		store,
		a.Runner,
		a.Processor,
		a.Logs,
		cfg.CheckInterval,
		cfg.RotateInterval,
		cfg.MaxConcurrent,
	)
	return a, nil
}

// API returns the status API server over the app's store and logs.
func (a *App) API() *httpapi.Server {
	return httpapi.NewServer(a.Logger.Named("api"), a.Store, a.Logs, a.Hub)
}

func (a *App) Close() error {
	var err error
	for _, c := range a.closers {
		err = multierr.Append(err, c())
	}
	return err
}
