// Package controller sequences one battery's control loop: read telemetry, consult health, ask the EMS
// Manager for this tick's writes, and publish the results. A fixed read -> health -> EMS -> publish
// sequence on a drop-oldest ticker, so a slow tick never backs up behind the next one.
package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/consus-energy/edge-controller/edgestate"
	"github.com/consus-energy/edge-controller/ems"
	"github.com/consus-energy/edge-controller/fieldbus"
	"github.com/consus-energy/edge-controller/health"
	"github.com/consus-energy/edge-controller/poster"
	"github.com/consus-energy/edge-controller/safety"
	"github.com/consus-energy/edge-controller/telemetry"
	"github.com/consus-energy/edge-controller/writeguard"
)

// DefaultTickPeriod is the control loop's cadence when none is configured: 1 Hz, the conservative end of
// the 1-2 Hz range this device tolerates.
const DefaultTickPeriod = 1 * time.Second

// unitReader is the subset of batteryunit.Unit the loop needs, so tests can substitute batteryunit.MockUnit.
type unitReader interface {
	ReadSample(now time.Time) (telemetry.Sample, error)
}

// Battery owns one consus_id's whole vertical slice: Field-Bus Driver, Battery Unit, EMS Manager, Health
// Monitor, and Write Guard, plus the shared FaultSafeIntent cell and Backend Poster it publishes into.
type Battery struct {
	ConsusID string
	SiteID   string

	driver *fieldbus.Driver
	unit   unitReader
	ems    *ems.Manager
	health *health.Monitor
	guard  *writeguard.Guard
	intent *safety.Cell
	store  *edgestate.Store
	post   *poster.Poster
	log    *slog.Logger

	lastSample timedMetric
	ring       *telemetry.RingBuffer
}

// NewBattery wires a Battery's components together. driver may be nil only when unit is a
// batteryunit.MockUnit (test wiring); guard may be nil if write throttling is not desired.
func NewBattery(consusID, siteID string, driver *fieldbus.Driver, unit unitReader, emsManager *ems.Manager, healthMonitor *health.Monitor, guard *writeguard.Guard, intent *safety.Cell, store *edgestate.Store, post *poster.Poster, log *slog.Logger) *Battery {
	if log == nil {
		log = slog.Default()
	}
	return &Battery{
		ConsusID: consusID,
		SiteID:   siteID,
		driver:   driver,
		unit:     unit,
		ems:      emsManager,
		health:   healthMonitor,
		guard:    guard,
		intent:   intent,
		store:    store,
		post:     post,
		log:      log.With("consus_id", consusID),
		ring:     telemetry.NewRingBuffer(10 * time.Second),
	}
}

// Run connects the Field-Bus Driver, commissions the EMS, and then ticks the control loop at tickPeriod
// until ctx is cancelled. Missed ticks are dropped rather than queued: after a slow tick at most one
// pending tick runs immediately, and any further missed ticks are skipped.
func (b *Battery) Run(ctx context.Context, tickPeriod time.Duration) error {
	if tickPeriod <= 0 {
		tickPeriod = DefaultTickPeriod
	}

	if b.driver != nil {
		if err := b.driver.Connect(); err != nil {
			b.log.Error("field bus connect failed", "error", err)
		}
	}

	if err := b.ems.Commission(b.store.Settings()); err != nil {
		b.log.Warn("commissioning incomplete", "error", err)
		b.publishAlert(telemetry.AlertEvent{
			SiteID:   b.SiteID,
			ConsusID: b.ConsusID,
			Time:     time.Now(),
			Severity: telemetry.SeverityWarning,
			Code:     "COMMISSIONING_DRIFT",
			State:    telemetry.StateActive,
		})
	}

	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := b.ems.Shutdown(); err != nil {
				b.log.Error("exit-sequence write failed", "error", err)
			}
			if b.driver != nil {
				_ = b.driver.Close()
			}
			return ctx.Err()

		case t := <-ticker.C:
			b.tick(t)
		}
	}
}

func (b *Battery) tick(now time.Time) {
	settings := b.store.Settings()

	sample, readErr := b.unit.ReadSample(now)
	readOK := readErr == nil
	if readOK {
		b.lastSample.set(sample.SocPercent)
		b.ring.Add(sample)
	} else {
		b.log.Error("telemetry read failed this tick", "error", readErr)
	}

	if readOK {
		if cfg, ok := b.store.BatteryConfig(b.ConsusID); ok && cfg.MaxSocPercent > 0 && sample.SocPercent > cfg.MaxSocPercent {
			sample.HealthFlags = append(sample.HealthFlags, "soc_above_max")
		}
	}

	alertCtx := telemetry.AlertContext{
		SocPct: sample.SocPercent,
		GridW:  sample.GridW,
		PvW:    sample.PvTotalW,
		BiasW:  settings.MeterBiasW,
	}

	telemetryAge := time.Duration(0)
	if readOK {
		telemetryAge = 0
	} else if !b.lastSample.updatedAt.IsZero() {
		telemetryAge = now.Sub(b.lastSample.updatedAt)
	} else {
		telemetryAge = time.Hour // never had a good reading: treat as maximally stale
	}
	events := b.health.Poll(now, telemetryAge, alertCtx)

	if !readOK {
		// Stale telemetry is handled entirely by the Health Monitor's debounced alert; without a fresh
		// sample there is nothing safe to feed the EMS Manager's ramp/bias math this tick.
		for _, ev := range events {
			ev.SiteID = b.SiteID
			ev.ConsusID = b.ConsusID
			ev.Context = alertCtx
			if ev.Severity == telemetry.SeverityCritical {
				ev.RecentTelemetry = b.ring.Snapshot()
			}
			b.publishAlert(ev)
		}
		return
	}

	intent := b.intent.Get()
	decision, err := b.ems.Tick(now, settings, sample, intent)
	if err != nil {
		b.log.Warn("ems write failed this tick", "error", err)
	}

	if decision.InImportAC {
		sample.Mode = telemetry.ModeImportAC
	} else {
		sample.Mode = telemetry.ModeAuto
	}

	if b.guard != nil {
		c := b.guard.Counters()
		sample.WritesOK = c.WritesOK
		sample.WritesDedup = c.WritesDedup
		sample.WritesThrottlePerReg = c.WritesThrottlePerReg
		sample.WritesThrottleGlobal = c.WritesThrottleGlobal
		sample.WritesError = c.WritesError
	}

	b.publishSample(sample)
	for _, ev := range events {
		ev.SiteID = b.SiteID
		ev.ConsusID = b.ConsusID
		ev.Context = alertCtx
		if ev.Severity == telemetry.SeverityCritical {
			ev.RecentTelemetry = b.ring.Snapshot()
		}
		b.publishAlert(ev)
	}
}

// publishSample and publishAlert never block the tick: the Backend Poster's own channels are buffered, and
// a full buffer here means the poster itself is already falling behind, in which case dropping this one
// send is preferable to stalling the control loop.
func (b *Battery) publishSample(s telemetry.Sample) {
	select {
	case b.post.Telemetry <- s:
	default:
		b.log.Warn("poster telemetry channel full, dropping sample")
	}
}

func (b *Battery) publishAlert(a telemetry.AlertEvent) {
	select {
	case b.post.Alerts <- a:
	default:
		b.log.Warn("poster alert channel full, dropping alert", "code", a.Code)
	}
}
