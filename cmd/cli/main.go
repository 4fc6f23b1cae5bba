package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeworker/internal/app"
	"github.com/hamed0406/uptimeworker/internal/cli"
	"github.com/hamed0406/uptimeworker/internal/config"
	"github.com/hamed0406/uptimeworker/internal/logging"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	withWorker := flag.Bool("worker", false, "also run the background check and rotation loops")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
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

	workerDone := make(chan struct{})
	workerCtx, stopWorker := context.WithCancel(ctx)
	if *withWorker {
		go func() {
			defer close(workerDone)
			a.Worker.Run(workerCtx)
		}()
	} else {
		close(workerDone)
	}

	prompt := ""
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		prompt = "> "
		fmt.Println("The CLI is running. Type \"man\" for the command list.")
	}
	console := cli.New(os.Stdout, a.Store, a.Logs, a.Worker, logger.Named("cli"))
	if err := console.Run(ctx, os.Stdin, prompt); err != nil && ctx.Err() == nil {
		logger.Error("cli_input_failed", zap.Error(err))
	}

	stopWorker()
	<-workerDone
}
