// Package scheduler drives periodic synchronization of every provisioned
// connector. Each run fans out over the registry's connectors with a bounded
// worker count; a connector synchronizes its historical window first, then
// its future window, and a failure in either is recorded and isolated so the
// rest of the run proceeds.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/attributa/attributa/internal/metrics"
	"github.com/attributa/attributa/internal/provider"
	"github.com/attributa/attributa/internal/registry"
)

const (
	defaultWorkers          = 4
	defaultHistoricalWindow = 60 * 24 * time.Hour
	defaultFutureWindow     = 15 * 24 * time.Hour
)

// ConnectorSource is the registry surface the scheduler needs: the full
// connector inventory plus cursor advancement.
type ConnectorSource interface {
	ListAll(ctx context.Context) ([]registry.Connector, error)
	AdvanceCursors(ctx context.Context, connectorID uuid.UUID, window registry.Window, through time.Time) error
}

// IngestionTrigger issues window synchronization calls to the ingestion
// service.
type IngestionTrigger interface {
	TriggerHistorical(ctx context.Context, providerPath, connectorID string, window time.Duration) error
	TriggerFuture(ctx context.Context, providerPath, connectorID string, window time.Duration) error
}

// WindowOutcome records one ingestion call made during a run.
type WindowOutcome struct {
	Window  registry.Window `json:"window"`
	OK      bool            `json:"ok"`
	Message string          `json:"message,omitempty"`
}

// ConnectorOutcome collects the window outcomes for one connector.
type ConnectorOutcome struct {
	ConnectorID   uuid.UUID       `json:"connector_id"`
	ConnectorType string          `json:"connector_type"`
	Windows       []WindowOutcome `json:"windows"`
}

// Failed reports whether any window of this connector failed.
func (c ConnectorOutcome) Failed() bool {
	for _, w := range c.Windows {
		if !w.OK {
			return true
		}
	}
	return false
}

// Report summarizes a full synchronization run.
type Report struct {
	StartedAt  time.Time          `json:"started_at"`
	Duration   time.Duration      `json:"duration"`
	Connectors []ConnectorOutcome `json:"connectors"`
}

// Failures returns the number of connectors with at least one failed window.
func (r Report) Failures() int {
	n := 0
	for _, c := range r.Connectors {
		if c.Failed() {
			n++
		}
	}
	return n
}

type Scheduler struct {
	Registry  ConnectorSource
	Ingestion IngestionTrigger
	Providers *provider.Registry

	// Workers bounds how many connectors synchronize concurrently.
	Workers          int
	HistoricalWindow time.Duration
	FutureWindow     time.Duration

	Logger *slog.Logger

	// Now is overridable for tests.
	Now func() time.Time
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return defaultWorkers
}

func (s *Scheduler) historicalWindow() time.Duration {
	if s.HistoricalWindow > 0 {
		return s.HistoricalWindow
	}
	return defaultHistoricalWindow
}

func (s *Scheduler) futureWindow() time.Duration {
	if s.FutureWindow > 0 {
		return s.FutureWindow
	}
	return defaultFutureWindow
}

// SynchronizeAll runs one synchronization pass over every connector in the
// registry. The returned error covers only the inventory listing; individual
// connector failures live in the Report and never abort the run.
func (s *Scheduler) SynchronizeAll(ctx context.Context) (Report, error) {
	start := s.now()
	log := s.logger()

	connectors, err := s.Registry.ListAll(ctx)
	if err != nil {
		return Report{StartedAt: start}, fmt.Errorf("list connectors: %w", err)
	}
	metrics.ConnectorsTotal.Set(float64(len(connectors)))

	outcomes := make([]ConnectorOutcome, len(connectors))

	var g errgroup.Group
	g.SetLimit(s.workers())
	for i, conn := range connectors {
		g.Go(func() error {
			outcomes[i] = s.synchronizeConnector(ctx, log, conn)
			return nil
		})
	}
	// Tasks never return an error; failures are captured in the outcomes.
	_ = g.Wait()

	report := Report{
		StartedAt:  start,
		Duration:   time.Since(start),
		Connectors: outcomes,
	}
	metrics.SyncRunDuration.Observe(report.Duration.Seconds())
	log.Info("synchronization run finished",
		"connectors", len(connectors),
		"failures", report.Failures(),
		"duration", report.Duration)
	return report, nil
}

// synchronizeConnector issues the historical call and then the future call.
// The windows are independent: a failed historical sync does not block the
// future sync for the same connector.
func (s *Scheduler) synchronizeConnector(ctx context.Context, log *slog.Logger, conn registry.Connector) ConnectorOutcome {
	outcome := ConnectorOutcome{
		ConnectorID:   conn.ID,
		ConnectorType: conn.ConnectorType,
	}

	def, ok := s.Providers.Get(conn.ConnectorType)
	if !ok {
		log.Error("skipping connector with unknown type",
			"connector_id", conn.ID, "connector_type", conn.ConnectorType)
		msg := fmt.Sprintf("unknown connector type %q", conn.ConnectorType)
		outcome.Windows = []WindowOutcome{
			{Window: registry.WindowHistorical, Message: msg},
			{Window: registry.WindowFuture, Message: msg},
		}
		return outcome
	}

	windows := []struct {
		kind    registry.Window
		span    time.Duration
		trigger func(context.Context, string, string, time.Duration) error
	}{
		{registry.WindowHistorical, s.historicalWindow(), s.Ingestion.TriggerHistorical},
		{registry.WindowFuture, s.futureWindow(), s.Ingestion.TriggerFuture},
	}

	for _, w := range windows {
		outcome.Windows = append(outcome.Windows, s.syncWindow(ctx, log, conn, def, w.kind, w.span, w.trigger))
	}
	return outcome
}

func (s *Scheduler) syncWindow(
	ctx context.Context,
	log *slog.Logger,
	conn registry.Connector,
	def provider.Definition,
	window registry.Window,
	span time.Duration,
	trigger func(context.Context, string, string, time.Duration) error,
) WindowOutcome {
	if err := ctx.Err(); err != nil {
		return WindowOutcome{Window: window, Message: err.Error()}
	}

	if err := trigger(ctx, def.IngestionPath(), conn.ID.String(), span); err != nil {
		metrics.IngestionCallsTotal.WithLabelValues(conn.ConnectorType, string(window), "failure").Inc()
		log.Error("window synchronization failed",
			"connector_id", conn.ID,
			"connector_type", conn.ConnectorType,
			"window", window,
			"err", err)
		return WindowOutcome{Window: window, Message: err.Error()}
	}

	// The ingestion service has accepted the window, so the cursor may move
	// forward to the point the call covered.
	through := coveredThrough(s.now(), window)
	if err := s.Registry.AdvanceCursors(ctx, conn.ID, window, through); err != nil {
		metrics.IngestionCallsTotal.WithLabelValues(conn.ConnectorType, string(window), "failure").Inc()
		log.Error("cursor advance failed",
			"connector_id", conn.ID,
			"connector_type", conn.ConnectorType,
			"window", window,
			"err", err)
		return WindowOutcome{Window: window, Message: fmt.Sprintf("advance cursor: %v", err)}
	}

	metrics.IngestionCallsTotal.WithLabelValues(conn.ConnectorType, string(window), "success").Inc()
	metrics.SyncLastSuccessTimestamp.WithLabelValues(conn.ConnectorType, string(window)).SetToCurrentTime()
	return WindowOutcome{Window: window, OK: true}
}

// coveredThrough maps a successful window call to the watermark it justifies.
// Both windows re-read data up to the moment the call was issued, so the
// covered-through point is "now" in either direction.
func coveredThrough(now time.Time, _ registry.Window) time.Time {
	return now.UTC()
}
