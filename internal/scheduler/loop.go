package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Loop runs SynchronizeAll immediately and then on every interval tick until
// the context is cancelled.
type Loop struct {
	Scheduler *Scheduler
	Interval  time.Duration
	Logger    *slog.Logger
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l *Loop) Run(ctx context.Context) {
	if l.Scheduler == nil || l.Interval <= 0 {
		return
	}
	log := l.logger()

	// Run immediately at startup.
	l.runOnce(ctx, log)

	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.runOnce(ctx, log)
		}
	}
}

func (l *Loop) runOnce(ctx context.Context, log *slog.Logger) {
	report, err := l.Scheduler.SynchronizeAll(ctx)
	if err != nil {
		log.Error("synchronization run failed", "err", err)
		return
	}
	if n := report.Failures(); n > 0 {
		log.Warn("synchronization run had connector failures", "failures", n)
	}
}
