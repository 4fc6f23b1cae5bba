package notify

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/multierr"
)

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(context.Context, Alert) error {
	s.calls++
	return s.err
}

func TestMulti_DeliversToAllAndCombinesErrors(t *testing.T) {
	a := &stubNotifier{err: errors.New("a failed")}
	b := &stubNotifier{}
	c := &stubNotifier{err: errors.New("c failed")}

	err := Multi{a, nil, b, c}.Notify(context.Background(), Alert{})
	if a.calls != 1 || b.calls != 1 || c.calls != 1 {
		t.Fatalf("every notifier should be called once: %d %d %d", a.calls, b.calls, c.calls)
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("want 2 combined errors, got %d (%v)", got, err)
	}
}

func TestMulti_Empty(t *testing.T) {
	if err := (Multi{}).Notify(context.Background(), Alert{}); err != nil {
		t.Fatalf("empty multi should succeed: %v", err)
	}
}
