package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimeworker/internal/domain"
	"github.com/hamed0406/uptimeworker/internal/notify"
	"github.com/hamed0406/uptimeworker/internal/repo"
)

// Appender receives one serialized log entry per evaluation.
type Appender interface {
	Append(name, line string) error
}

// Observer sees every log entry after it has been written.
type Observer interface {
	Observe(entry domain.LogEntry)
}

// Processor folds a probe outcome into the check record: it derives the new
// state, logs the evaluation, writes the record back and alerts the owner on
// a state transition.
type Processor struct {
	store       repo.RecordStore
	logs        Appender
	notifier    notify.Notifier
	countryCode string
	logger      *zap.Logger
	observer    Observer
	now         func() time.Time
}

func NewProcessor(store repo.RecordStore, logs Appender, n notify.Notifier, countryCode string, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store:       store,
		logs:        logs,
		notifier:    n,
		countryCode: countryCode,
		logger:      logger,
		now:         time.Now,
	}
}

// SetObserver registers o to receive entries; nil removes it.
func (p *Processor) SetObserver(o Observer) { p.observer = o }

// StateFor is up only when the probe produced a response whose code is one
// of the check's success codes.
func StateFor(c domain.Check, out domain.Outcome) domain.State {
	if out.Error == nil && out.ResponseCode != nil && c.Accepts(*out.ResponseCode) {
		return domain.StateUp
	}
	return domain.StateDown
}

// AlertMessage is the SMS body sent on a transition.
func AlertMessage(c domain.Check) string {
	return fmt.Sprintf("Alert: Your check for %s %s is currently %s", c.HTTPMethod(), c.Target(), c.State)
}

func (p *Processor) Process(ctx context.Context, c domain.Check, out domain.Outcome) domain.LogEntry {
	state := StateFor(c, out)
	now := p.now().UnixMilli()
	entry := domain.LogEntry{
		Check:   c,
		Outcome: out,
		State:   state,
		Alert:   c.Evaluated() && state != c.State,
		Time:    now,
	}
	p.appendLog(entry)

	updated := c
	updated.State = state
	updated.LastChecked = now
	if err := repo.UpdateJSON(ctx, p.store, domain.CollectionChecks, c.ID, updated); err != nil {
		p.logger.Warn("check_write_failed", zap.String("check_id", c.ID), zap.Error(err))
		p.publish(entry)
		return entry
	}

	if entry.Alert {
		p.alert(ctx, updated)
	} else {
		p.logger.Debug("check_unchanged",
			zap.String("check_id", c.ID),
			zap.String("state", string(state)),
		)
	}
	p.publish(entry)
	return entry
}

func (p *Processor) appendLog(entry domain.LogEntry) {
	if p.logs == nil {
		return
	}
	line, err := json.Marshal(entry)
	if err != nil {
		p.logger.Warn("check_log_encode_failed", zap.String("check_id", entry.Check.ID), zap.Error(err))
		return
	}
	if err := p.logs.Append(entry.Check.ID, string(line)); err != nil {
		p.logger.Warn("check_log_append_failed", zap.String("check_id", entry.Check.ID), zap.Error(err))
	}
}

func (p *Processor) alert(ctx context.Context, c domain.Check) {
	if p.notifier == nil {
		p.logger.Info("alert_skipped", zap.String("check_id", c.ID), zap.String("reason", "no notifier"))
		return
	}
	a := notify.Alert{
		Phone:       c.UserPhone,
		CountryCode: p.countryCode,
		Message:     AlertMessage(c),
		Check:       c,
	}
	if err := p.notifier.Notify(ctx, a); err != nil {
		p.logger.Warn("alert_failed", zap.String("check_id", c.ID), zap.Error(err))
		return
	}
	p.logger.Info("alert_sent",
		zap.String("check_id", c.ID),
		zap.String("state", string(c.State)),
		zap.String("message", a.Message),
	)
}

func (p *Processor) publish(entry domain.LogEntry) {
	if p.observer != nil {
		p.observer.Observe(entry)
	}
}
