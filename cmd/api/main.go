package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/uptimeworker/internal/app"
	"github.com/hamed0406/uptimeworker/internal/config"
	"github.com/hamed0406/uptimeworker/internal/httpapi"
	apimw "github.com/hamed0406/uptimeworker/internal/httpapi/middleware"
	"github.com/hamed0406/uptimeworker/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup_failed", zap.Error(err))
	}
	defer a.Close()

	handler := a.API().Router(
		apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys},
		httpapi.Limits{
			PublicRPM: cfg.PublicRPM, PublicBurst: cfg.PublicBurst,
			AdminRPM: cfg.AdminRPM, AdminBurst: cfg.AdminBurst,
		},
	)

	servers := []*http.Server{newServer(cfg.HTTPAddr, handler)}
	if cfg.TLSEnabled() {
		servers = append(servers, newServer(cfg.HTTPSAddr, handler))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Worker.Run(gctx)
		return nil
	})
	for i, srv := range servers {
		srv := srv
		tls := i == 1
		g.Go(func() error {
			logger.Info("api_listen",
				zap.String("env", cfg.EnvName),
				zap.String("addr", srv.Addr),
				zap.Bool("tls", tls),
			)
			var err error
			if tls {
				err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
			} else {
				err = srv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var err error
		for _, srv := range servers {
			err = multierr.Append(err, srv.Shutdown(shutdownCtx))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("shutdown_with_errors", zap.Error(err))
		return
	}
	logger.Info("shutdown_complete")
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
