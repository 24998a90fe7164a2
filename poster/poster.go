// Package poster batches telemetry samples and health alerts and posts them to the backend's ingest and
// health endpoints: a bounded in-memory queue drained on a flush ticker, with best-effort upload and
// bounded retention on failure so a backend outage never blocks the control loop.
package poster

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/consus-energy/edge-controller/telemetry"
)

const (
	defaultTelemetryFlushInterval = 10 * time.Second
	defaultTelemetryFlushSize     = 200
	defaultAlertBatchInterval     = 45 * time.Second
	defaultQueueCap               = 2000
)

// Config tunes the Poster's batching and retention behaviour. Zero values take the package defaults.
type Config struct {
	TelemetryFlushInterval time.Duration
	TelemetryFlushSize     int
	AlertBatchInterval     time.Duration
	QueueCap               int
}

func (c Config) withDefaults() Config {
	if c.TelemetryFlushInterval <= 0 {
		c.TelemetryFlushInterval = defaultTelemetryFlushInterval
	}
	if c.TelemetryFlushSize <= 0 {
		c.TelemetryFlushSize = defaultTelemetryFlushSize
	}
	if c.AlertBatchInterval <= 0 {
		c.AlertBatchInterval = defaultAlertBatchInterval
	}
	if c.QueueCap <= 0 {
		c.QueueCap = defaultQueueCap
	}
	return c
}

// Counters tallies queue evictions so the controller can fold them into its own telemetry.
type Counters struct {
	TelemetryEvicted uint64
	AlertsEvicted    uint64
}

type atomicCounters struct {
	telemetryEvicted atomic.Uint64
	alertsEvicted    atomic.Uint64
}

// Poster is a multi-producer, single-consumer sink for TelemetrySamples and AlertEvents.
type Poster struct {
	cfg    Config
	client BackendClient
	log    *slog.Logger

	Telemetry chan telemetry.Sample
	Alerts    chan telemetry.AlertEvent

	telemetryQueue []telemetry.Sample
	warningQueue   []telemetry.AlertEvent

	counters atomicCounters
}

// New constructs a Poster that posts through client.
func New(client BackendClient, cfg Config, log *slog.Logger) *Poster {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Poster{
		cfg:       cfg,
		client:    client,
		log:       log,
		Telemetry: make(chan telemetry.Sample, 64),
		Alerts:    make(chan telemetry.AlertEvent, 64),
	}
}

// Run loops forever, batching and flushing queues until ctx is cancelled. On cancellation it performs one
// final best-effort flush before returning.
func (p *Poster) Run(ctx context.Context) error {
	telemetryTicker := time.NewTicker(p.cfg.TelemetryFlushInterval)
	defer telemetryTicker.Stop()
	alertTicker := time.NewTicker(p.cfg.AlertBatchInterval)
	defer alertTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.flushTelemetry()
			p.flushWarnings()
			return ctx.Err()

		case sample := <-p.Telemetry:
			p.enqueueTelemetry(sample)
			if len(p.telemetryQueue) >= p.cfg.TelemetryFlushSize {
				p.flushTelemetry()
			}

		case alert := <-p.Alerts:
			if alert.Severity == telemetry.SeverityCritical {
				p.postAlertsImmediate([]telemetry.AlertEvent{alert})
			} else {
				p.enqueueWarning(alert)
			}

		case <-telemetryTicker.C:
			p.flushTelemetry()

		case <-alertTicker.C:
			p.flushWarnings()
		}
	}
}

func (p *Poster) enqueueTelemetry(s telemetry.Sample) {
	p.telemetryQueue = append(p.telemetryQueue, s)
	if len(p.telemetryQueue) > p.cfg.QueueCap {
		evict := len(p.telemetryQueue) - p.cfg.QueueCap
		p.telemetryQueue = p.telemetryQueue[evict:]
		p.counters.telemetryEvicted.Add(uint64(evict))
		p.log.Warn("telemetry queue at capacity, evicting oldest", "evicted", evict)
	}
}

func (p *Poster) enqueueWarning(a telemetry.AlertEvent) {
	p.warningQueue = append(p.warningQueue, a)
	if len(p.warningQueue) > p.cfg.QueueCap {
		evict := len(p.warningQueue) - p.cfg.QueueCap
		p.warningQueue = p.warningQueue[evict:]
		p.counters.alertsEvicted.Add(uint64(evict))
		p.log.Warn("alert queue at capacity, evicting oldest", "evicted", evict)
	}
}

func (p *Poster) flushTelemetry() {
	if len(p.telemetryQueue) == 0 {
		return
	}
	batch := p.telemetryQueue
	p.telemetryQueue = nil

	if err := p.client.PostTelemetry(batch); err != nil {
		p.log.Error("telemetry post failed, retaining batch", "error", err, "num_samples", len(batch))
		p.telemetryQueue = append(batch, p.telemetryQueue...)
		if len(p.telemetryQueue) > p.cfg.QueueCap {
			evict := len(p.telemetryQueue) - p.cfg.QueueCap
			p.telemetryQueue = p.telemetryQueue[evict:]
			p.counters.telemetryEvicted.Add(uint64(evict))
		}
		return
	}
	p.log.Info("telemetry posted", "num_samples", len(batch))
}

func (p *Poster) flushWarnings() {
	if len(p.warningQueue) == 0 {
		return
	}
	batch := p.warningQueue
	p.warningQueue = nil

	if err := p.client.PostAlerts(batch); err != nil {
		p.log.Error("alert batch post failed, retaining batch", "error", err, "num_alerts", len(batch))
		p.warningQueue = append(batch, p.warningQueue...)
		return
	}
	p.log.Info("alert batch posted", "num_alerts", len(batch))
}

func (p *Poster) postAlertsImmediate(alerts []telemetry.AlertEvent) {
	if err := p.client.PostAlerts(alerts); err != nil {
		p.log.Error("critical alert post failed, retaining for next batch", "error", err)
		p.warningQueue = append(p.warningQueue, alerts...)
	}
}

func (p *Poster) Counters() Counters {
	return Counters{
		TelemetryEvicted: p.counters.telemetryEvicted.Load(),
		AlertsEvicted:    p.counters.alertsEvicted.Load(),
	}
}
