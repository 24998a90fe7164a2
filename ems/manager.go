// Package ems drives one battery's EMS mode and setpoint every tick: commissioning, mode selection between
// Auto and Import-AC, setpoint floor/clamp/ramp, exit sequencing back to Auto, and meter-bias trim. Mode
// selection is a fixed three-row table: FaultSafeIntent active forces Auto at zero, a cheap window with
// SoC below target drives Import-AC, otherwise Auto.
package ems

import (
	"log/slog"
	"math"
	"time"

	"github.com/consus-energy/edge-controller/edgestate"
	"github.com/consus-energy/edge-controller/fieldbus"
	"github.com/consus-energy/edge-controller/registermap"
	"github.com/consus-energy/edge-controller/safety"
	"github.com/consus-energy/edge-controller/telemetry"
	timeutils "github.com/consus-energy/edge-controller/time_utils"
)

// Decision is what the EMS Manager decided to do this tick, for logging and test assertions. It does not
// guarantee the writes were accepted by the Write Guard - callers should inspect the returned error(s).
type Decision struct {
	Mode       registermap.EmsPowerMode
	SetpointW  float64
	BiasW      float64
	InImportAC bool
}

// Manager tracks the per-battery ramp state (last accepted setpoint + when) and whatever exit-sequence
// bookkeeping is needed to step Import-AC back down to Auto cleanly.
type Manager struct {
	consusID string
	driver   *fieldbus.Driver
	log      *slog.Logger

	location *time.Location

	previousSetpointW float64
	lastSetpointAt    time.Time
	wasImportAC       bool
	exitPending       bool
	commissioned      bool
}

func NewManager(consusID string, driver *fieldbus.Driver, location *time.Location, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if location == nil {
		location = time.Local
	}
	return &Manager{
		consusID: consusID,
		driver:   driver,
		log:      log.With("consus_id", consusID),
		location: location,
	}
}

// Commission issues the sequence of registers that put the inverter's EMS under external control. The
// Controller Loop calls it once when it starts; nothing in the process calls it again, including after a
// validate_modbus request. A failed or skipped write here is never fatal - the
// caller turns the returned error into a WARNING alert rather than aborting startup.
func (m *Manager) Commission(settings edgestate.Settings) error {
	writes := []struct {
		name  string
		value float64
	}{
		{registermap.RegManufacturerCode, 2},
		{registermap.RegExternalMeterEn, 1},
		{registermap.RegFeedPowerEnable, 1},
		{registermap.RegExportPowerCap, settings.ExportCapW},
	}

	var firstErr error
	for _, w := range writes {
		if err := m.driver.WriteByName(w.name, w.value); err != nil {
			m.log.Warn("commissioning write failed", "register", w.name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if settings.WriteGuard.PerRegMinS > 0 {
		// remote_comm_loss_time is optional; its absence from the register map is not an error.
		if err := m.driver.WriteByName(registermap.RegRemoteCommLossT, 0); err != nil {
			m.log.Debug("remote_comm_loss_time not written", "error", err)
		}
	}

	m.commissioned = firstErr == nil
	return firstErr
}

// Tick evaluates the mode decision table against the current settings/sample/fault state and issues the
// writes it implies. now is used both for the cheap-window check and to compute dt for the ramp. It returns
// the Decision actually attempted and the first write error encountered, if any.
func (m *Manager) Tick(now time.Time, settings edgestate.Settings, sample telemetry.Sample, intent safety.Intent) (Decision, error) {
	window := timeutils.ClockTimePeriod{
		Start: timeutils.ClockTime{Hour: settings.CheapWindow.Start.Hour, Minute: settings.CheapWindow.Start.Minute, Location: m.location},
		End:   timeutils.ClockTime{Hour: settings.CheapWindow.End.Hour, Minute: settings.CheapWindow.End.Minute, Location: m.location},
	}

	wantImportAC := !intent.Active && window.Contains(now.In(m.location)) && sample.SocPercent < settings.TargetSocPercent

	if intent.Active || !wantImportAC {
		return m.applyAuto(now, settings, sample, intent.Active)
	}
	m.exitPending = false
	return m.applyImportAC(now, settings, sample)
}

// applyAuto writes Auto mode and this tick's bias/export-cap. Leaving Import-AC takes two ticks: the tick
// the exit condition first holds, applyAuto only zeros ems_power_set and leaves the mode register alone
// (exitPending records that); only on the following tick, with the setpoint already at zero, does it write
// ems_power_mode=Auto. This keeps the two writes at least one per_reg_min_s interval apart instead of
// landing back to back in the same Tick call.
func (m *Manager) applyAuto(now time.Time, settings edgestate.Settings, sample telemetry.Sample, faultSafe bool) (Decision, error) {
	if m.wasImportAC && !m.exitPending {
		err := m.driver.WriteByName(registermap.RegEmsPowerSet, 0)
		m.exitPending = true
		m.previousSetpointW = 0
		m.lastSetpointAt = now
		return Decision{Mode: registermap.EmsModeImportAC, SetpointW: 0, InImportAC: true}, err
	}

	var firstErr error
	if err := m.driver.WriteByName(registermap.RegEmsPowerMode, float64(registermap.EmsModeAuto)); err != nil && firstErr == nil {
		firstErr = err
	}
	m.exitPending = false

	bias := settings.MeterBiasW
	if !faultSafe && settings.AutoBiasTrim.Enable {
		var err error
		bias, err = m.trimBias(sample, settings.AutoBiasTrim, settings.MeterBiasW)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if !faultSafe {
		if err := m.driver.WriteByName(registermap.RegExportPowerCap, settings.ExportCapW); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	m.previousSetpointW = 0
	m.lastSetpointAt = now
	m.wasImportAC = false

	return Decision{Mode: registermap.EmsModeAuto, SetpointW: 0, BiasW: bias}, firstErr
}

func (m *Manager) applyImportAC(now time.Time, settings edgestate.Settings, sample telemetry.Sample) (Decision, error) {
	pv := 0.0
	if settings.PvEnabled {
		pv = sample.PvTotalW
	}
	raw := settings.ImportChargePowerW - pv
	raw = math.Max(raw, settings.MinImportW)
	raw = math.Min(math.Max(raw, 0), settings.MaxChargeW)

	final := m.ramp(now, raw, settings.MaxRampRateWPerS)

	var firstErr error
	if err := m.driver.WriteByName(registermap.RegEmsPowerMode, float64(registermap.EmsModeImportAC)); err != nil {
		firstErr = err
	}
	setErr := m.driver.WriteByName(registermap.RegEmsPowerSet, final)
	if setErr != nil && firstErr == nil {
		firstErr = setErr
	}

	if setErr == nil {
		m.previousSetpointW = final
		m.lastSetpointAt = now
	}
	m.wasImportAC = true

	return Decision{Mode: registermap.EmsModeImportAC, SetpointW: final, InImportAC: true}, firstErr
}

// ramp limits the change from the last *accepted* setpoint to max_ramp_rate_w_per_s * dt, where dt is the
// time since that last accepted write (not since the last tick - a rejected write must not let the ramp
// "teleport" on the following tick).
func (m *Manager) ramp(now time.Time, raw, maxRampRateWPerS float64) float64 {
	if m.lastSetpointAt.IsZero() {
		m.lastSetpointAt = now
	}
	dt := now.Sub(m.lastSetpointAt).Seconds()
	if dt <= 0 {
		dt = 1
	}

	diff := raw - m.previousSetpointW
	maxStep := maxRampRateWPerS * dt
	if diff > maxStep {
		diff = maxStep
	} else if diff < -maxStep {
		diff = -maxStep
	}
	return m.previousSetpointW + diff
}

// Shutdown issues the exit-sequence write if the battery was last commanded into Import-AC, so a killed
// process never leaves the inverter importing against a setpoint nobody is ramping down anymore. It is a
// no-op if the battery was already in Auto.
func (m *Manager) Shutdown() error {
	if !m.wasImportAC {
		return nil
	}
	if err := m.driver.WriteByName(registermap.RegEmsPowerSet, 0); err != nil {
		return err
	}
	if err := m.driver.WriteByName(registermap.RegEmsPowerMode, float64(registermap.EmsModeAuto)); err != nil {
		return err
	}
	m.wasImportAC = false
	return nil
}

func (m *Manager) trimBias(sample telemetry.Sample, trim edgestate.AutoBiasTrim, currentBiasW float64) (float64, error) {
	r := sample.GridW - trim.TargetW
	if math.Abs(r) <= trim.DeadbandW {
		return currentBiasW, nil
	}

	step := trim.StepW
	if r > 0 {
		step = -step
	}
	newBias := currentBiasW + step
	if newBias < trim.MinW {
		newBias = trim.MinW
	}
	if newBias > trim.MaxW {
		newBias = trim.MaxW
	}

	if err := m.driver.WriteByName(registermap.RegMeterBiasW, newBias); err != nil {
		return currentBiasW, err
	}
	return newBias, nil
}
