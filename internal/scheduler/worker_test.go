package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/uptimeworker/internal/domain"
	"github.com/hamed0406/uptimeworker/internal/probe"
	"github.com/hamed0406/uptimeworker/internal/repo"
	"github.com/hamed0406/uptimeworker/internal/repo/memory"
)

type fakeRunner struct {
	calls atomic.Int32
	out   domain.Outcome
}

func (f *fakeRunner) Run(ctx context.Context, c domain.Check) domain.Outcome {
	f.calls.Add(1)
	return f.out
}

type countingRotator struct{ n atomic.Int32 }

func (r *countingRotator) Rotate(context.Context) error {
	r.n.Add(1)
	return nil
}

func newTestWorker(store repo.RecordStore, r Runner, log *zap.Logger) *Worker {
	p := NewProcessor(store, &memLogs{}, &memNotifier{}, "55", log)
	return NewWorker(log, store, r, p, nil, time.Hour, time.Hour, 0)
}

func TestGatherAll_NoChecks(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := &fakeRunner{out: domain.ResponseOutcome(200)}
	w := newTestWorker(memory.New(), r, zap.New(core))

	if n := w.GatherAll(context.Background()); n != 0 {
		t.Fatalf("want 0 dispatched, got %d", n)
	}
	if r.calls.Load() != 0 {
		t.Fatalf("runner should not be invoked")
	}
	if logs.FilterMessage("no checks found").Len() != 1 {
		t.Fatalf("want 'no checks found' event")
	}
}

func TestGatherAll_InvalidCheckIsNotProbed(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	store := memory.New()
	bad := sampleCheck()
	bad.ID = strings.Repeat("b", 20)
	bad.TimeoutSeconds = 9
	seed(t, store, bad)
	_ = store.Create(context.Background(), domain.CollectionChecks, strings.Repeat("c", 20), []byte(`{broken`))
	good := sampleCheck()
	seed(t, store, good)

	r := &fakeRunner{out: domain.ResponseOutcome(200)}
	w := newTestWorker(store, r, zap.New(core))
	w.GatherAll(context.Background())

	if r.calls.Load() != 1 {
		t.Fatalf("only the valid check should be probed, got %d calls", r.calls.Load())
	}
	if logs.FilterMessage("check_validation_failed").Len() != 2 {
		t.Fatalf("want two validation failures logged")
	}
	if got := stored(t, store, good.ID); got.State != domain.StateUp {
		t.Fatalf("valid sibling should still be evaluated: %+v", got)
	}
}

func TestGatherAll_StateFollowsServer(t *testing.T) {
	var status atomic.Int32
	status.Store(200)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer ts.Close()

	store := memory.New()
	c := sampleCheck()
	c.State = ""
	c.URL = strings.TrimPrefix(ts.URL, "http://") + "/health"
	seed(t, store, c)

	nt := &memNotifier{}
	p := NewProcessor(store, &memLogs{}, nt, "55", zap.NewNop())
	w := NewWorker(zap.NewNop(), store, probe.NewRunner(probe.WithResolver(nil)), p, nil, 0, 0, 0)

	w.GatherAll(context.Background())
	if got := stored(t, store, c.ID); got.State != domain.StateUp {
		t.Fatalf("200 should mark the check up, got %q", got.State)
	}
	if nt.count() != 0 {
		t.Fatalf("first evaluation must not alert")
	}

	status.Store(500)
	w.GatherAll(context.Background())
	if got := stored(t, store, c.ID); got.State != domain.StateDown {
		t.Fatalf("500 should mark the check down, got %q", got.State)
	}
	if nt.count() != 1 {
		t.Fatalf("up to down should alert once, got %d", nt.count())
	}

	w.GatherAll(context.Background())
	if nt.count() != 1 {
		t.Fatalf("staying down should not alert again")
	}
}

func TestGatherAll_RespectsMaxConcurrent(t *testing.T) {
	store := memory.New()
	for i := 0; i < 6; i++ {
		c := sampleCheck()
		c.ID = strings.Repeat(string(rune('a'+i)), 20)
		seed(t, store, c)
	}

	var cur, peak atomic.Int32
	var mu sync.Mutex
	r := runnerFunc(func(ctx context.Context, c domain.Check) domain.Outcome {
		n := cur.Add(1)
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		cur.Add(-1)
		return domain.ResponseOutcome(200)
	})
	w := newTestWorker(store, r, zap.NewNop())
	w.MaxConcurrent = 2

	if n := w.GatherAll(context.Background()); n != 6 {
		t.Fatalf("want 6 dispatched, got %d", n)
	}
	if peak.Load() > 2 {
		t.Fatalf("concurrency exceeded: %d", peak.Load())
	}
}

type runnerFunc func(ctx context.Context, c domain.Check) domain.Outcome

func (f runnerFunc) Run(ctx context.Context, c domain.Check) domain.Outcome { return f(ctx, c) }

func TestRun_ImmediatePassAndStop(t *testing.T) {
	store := memory.New()
	seed(t, store, sampleCheck())
	r := &fakeRunner{out: domain.ResponseOutcome(200)}
	rot := &countingRotator{}
	p := NewProcessor(store, &memLogs{}, nil, "55", zap.NewNop())
	w := NewWorker(zap.NewNop(), store, r, p, rot, time.Hour, time.Hour, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for (r.calls.Load() == 0 || rot.n.Load() == 0) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.calls.Load() != 1 || rot.n.Load() != 1 {
		t.Fatalf("want one immediate pass of each loop, got checks=%d rotations=%d", r.calls.Load(), rot.n.Load())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_ShutdownDoesNotCancelEvaluations(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(400 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	store := memory.New()
	c := sampleCheck()
	c.State = domain.StateUp
	c.LastChecked = 1
	c.URL = strings.TrimPrefix(ts.URL, "http://")
	seed(t, store, c)

	nt := &memNotifier{}
	obs := &recordingObserver{}
	p := NewProcessor(store, &memLogs{}, nt, "55", zap.NewNop())
	p.SetObserver(obs)
	w := NewWorker(zap.NewNop(), store, probe.NewRunner(probe.WithResolver(nil)), p, nil, time.Hour, time.Hour, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	got := stored(t, store, c.ID)
	if got.State != domain.StateUp || got.LastChecked <= 1 {
		t.Fatalf("in-flight evaluation should finish as up, got state=%q lastChecked=%d", got.State, got.LastChecked)
	}
	if nt.count() != 0 {
		t.Fatalf("shutdown must not trigger alerts, got %d", nt.count())
	}
	if len(obs.entries) != 1 || obs.entries[0].Alert {
		t.Fatalf("want one non-alerting entry, got %+v", obs.entries)
	}
}
