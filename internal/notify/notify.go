package notify

import (
	"context"

	"github.com/hamed0406/uptimeworker/internal/domain"
	"go.uber.org/multierr"
)

// Alert is one state-transition message addressed to a check's owner.
type Alert struct {
	Phone       string
	CountryCode string
	Message     string
	Check       domain.Check
}

type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Multi delivers to every notifier and reports all failures together.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, a Alert) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Notify(ctx, a))
	}
	return err
}
