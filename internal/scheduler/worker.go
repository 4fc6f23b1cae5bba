package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimeworker/internal/domain"
	"github.com/hamed0406/uptimeworker/internal/repo"
	"github.com/hamed0406/uptimeworker/internal/validate"
)

// Runner performs one probe for a validated check.
type Runner interface {
	Run(ctx context.Context, c domain.Check) domain.Outcome
}

type Rotator interface {
	Rotate(ctx context.Context) error
}

const (
	DefaultCheckInterval  = time.Minute
	DefaultRotateInterval = 24 * time.Hour
)

type Worker struct {
	Logger         *zap.Logger
	Store          repo.RecordStore
	Runner         Runner
	Processor      *Processor
	Rotator        Rotator
	CheckInterval  time.Duration
	RotateInterval time.Duration
	// MaxConcurrent bounds in-flight evaluations per pass; 0 means unlimited.
	MaxConcurrent int
}

func NewWorker(
	logger *zap.Logger,
	store repo.RecordStore,
	runner Runner,
	proc *Processor,
	rot Rotator,
	checkInterval time.Duration,
	rotateInterval time.Duration,
	maxConcurrent int,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	if rotateInterval <= 0 {
		rotateInterval = DefaultRotateInterval
	}
	if maxConcurrent < 0 {
		maxConcurrent = 0
	}
	return &Worker{
		Logger:         logger,
		Store:          store,
		Runner:         runner,
		Processor:      proc,
		Rotator:        rot,
		CheckInterval:  checkInterval,
		RotateInterval: rotateInterval,
		MaxConcurrent:  maxConcurrent,
	}
}

// Run starts the check loop and the rotation loop, each with an immediate
// pass. A tick never waits for the previous tick's work. Run returns once ctx
// is cancelled and in-flight work has finished.
func (w *Worker) Run(ctx context.Context) {
	checkT := time.NewTicker(w.CheckInterval)
	defer checkT.Stop()
	rotT := time.NewTicker(w.RotateInterval)
	defer rotT.Stop()

	var inflight sync.WaitGroup
	spawn := func(fn func()) {
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			fn()
		}()
	}
	gather := func() { w.GatherAll(ctx) }
	rotate := func() { w.rotate(ctx) }

	w.Logger.Info("worker_started",
		zap.Duration("check_interval", w.CheckInterval),
		zap.Duration("rotate_interval", w.RotateInterval),
	)
	spawn(gather)
	spawn(rotate)

	for {
		select {
		case <-ctx.Done():
			inflight.Wait()
			w.Logger.Info("worker_stopped")
			return
		case <-checkT.C:
			spawn(gather)
		case <-rotT.C:
			spawn(rotate)
		}
	}
}

// GatherAll evaluates every stored check once and waits for all of them.
// It returns the number of checks dispatched.
func (w *Worker) GatherAll(ctx context.Context) int {
	ids, err := w.Store.List(ctx, domain.CollectionChecks)
	if err != nil {
		w.Logger.Warn("check_list_failed", zap.Error(err))
		return 0
	}
	if len(ids) == 0 {
		w.Logger.Info("no checks found")
		return 0
	}

	var sem chan struct{}
	if w.MaxConcurrent > 0 {
		sem = make(chan struct{}, w.MaxConcurrent)
	}
	var wg sync.WaitGroup
	for _, id := range ids {
		if sem != nil {
			sem <- struct{}{}
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if sem != nil {
				defer func() { <-sem }()
			}
			w.evaluate(ctx, id)
		}(id)
	}
	wg.Wait()
	return len(ids)
}

// evaluate runs read, validate, probe and process for one check. Failures
// are logged and end only this check's cycle.
func (w *Worker) evaluate(ctx context.Context, id string) {
	doc, err := w.Store.Read(ctx, domain.CollectionChecks, id)
	if errors.Is(err, repo.ErrNotFound) {
		w.Logger.Info("check_not_found", zap.String("check_id", id))
		return
	}
	if err != nil {
		w.Logger.Warn("check_read_failed", zap.String("check_id", id), zap.Error(err))
		return
	}

	raw, err := validate.Decode(doc)
	if err != nil {
		w.Logger.Warn("check_validation_failed", zap.String("check_id", id), zap.Error(err))
		return
	}
	c, violations := validate.Check(raw)
	if len(violations) > 0 {
		w.Logger.Warn("check_validation_failed",
			zap.String("check_id", id),
			zap.Strings("violations", violations),
		)
		return
	}

	// A dispatched evaluation runs to completion; Run waits for it on
	// shutdown, so cancellation must not turn into a down outcome.
	ectx := context.WithoutCancel(ctx)
	out := w.Runner.Run(ectx, c)
	entry := w.Processor.Process(ectx, c, out)

	fields := []zap.Field{
		zap.String("check_id", c.ID),
		zap.String("target", c.Target()),
		zap.String("state", string(entry.State)),
		zap.Bool("alert", entry.Alert),
	}
	if out.ResponseCode != nil {
		fields = append(fields, zap.Int("status", *out.ResponseCode))
	}
	if out.Error != nil {
		fields = append(fields, zap.String("error_kind", string(out.Error.Kind)), zap.String("error", out.Error.Value))
		if out.Error.DNS != "" {
			fields = append(fields, zap.String("dns", out.Error.DNS))
		}
	}
	w.Logger.Debug("check_evaluated", fields...)
}

func (w *Worker) rotate(ctx context.Context) {
	if w.Rotator == nil {
		return
	}
	if err := w.Rotator.Rotate(ctx); err != nil {
		w.Logger.Warn("rotation_incomplete", zap.Error(err))
		return
	}
	w.Logger.Info("rotation_done")
}
