// Package health polls a battery's health registers, runs each alert code through a debounced two-state
// machine, and folds the CRITICAL codes into a FaultSafeIntent. FAULT_SAFE is an OR-reduction: any
// CRITICAL condition being active is enough to force it, independent of which one.
package health

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/consus-energy/edge-controller/fieldbus"
	"github.com/consus-energy/edge-controller/registermap"
	"github.com/consus-energy/edge-controller/safety"
	"github.com/consus-energy/edge-controller/telemetry"
	"github.com/google/uuid"
)

// Severity-to-code table. CRITICAL codes each independently raise FAULT_SAFE while ACTIVE.
const (
	CodeEmsCheckStatus     = "EMS_CHECK_STATUS"
	CodeBmsAlarmBits       = "BMS_ALARM_BITS"
	CodeArcFault           = "ARC_FAULT"
	CodeBmsWarningBits     = "BMS_WARNING_BITS"
	CodeParallelComm       = "PARALLEL_COMM_STATUS"
	CodeMeterPath          = "METER_PATH_ANOMALY"
	CodeStaleTelemetry     = "STALE_TELEMETRY"
	CodeCommissioningDrift = "COMMISSIONING_DRIFT"
	CodeSocCrossCheck      = "SOC_CROSS_CHECK"
)

var criticalCodes = map[string]bool{
	CodeEmsCheckStatus: true,
	CodeBmsAlarmBits:   true,
	CodeArcFault:       true,
}

const staleTelemetryThreshold = 3 * time.Second

// codeState tracks one alert code's debounced state machine.
type codeState struct {
	active          bool
	consecutiveRaw  int
	consecutiveOK   int
	eventID         uuid.UUID
	count           int
}

// Monitor polls one battery's health registers and emits AlertEvents + FaultSafeIntent updates.
type Monitor struct {
	consusID string
	siteID   string
	driver   *fieldbus.Driver
	intent   *safety.Cell
	debounceN int
	log      *slog.Logger

	states map[string]*codeState
}

func NewMonitor(consusID, siteID string, driver *fieldbus.Driver, intent *safety.Cell, debounceN int, log *slog.Logger) *Monitor {
	if debounceN <= 0 {
		debounceN = 2
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		consusID:  consusID,
		siteID:    siteID,
		driver:    driver,
		intent:    intent,
		debounceN: debounceN,
		log:       log.With("consus_id", consusID),
		states:    make(map[string]*codeState),
	}
}

// Poll reads the health registers, evaluates every alert code, and returns the AlertEvents produced by
// any state transitions (or repeats, for still-ACTIVE CRITICAL codes). telemetryAge is how long ago the
// last successful telemetry sample was read, used for the stale-telemetry check. ctx carries the
// operating conditions to attach to any emitted events.
func (m *Monitor) Poll(now time.Time, telemetryAge time.Duration, ctx telemetry.AlertContext) []telemetry.AlertEvent {
	raw := m.evaluateRawConditions(now, telemetryAge)

	// The SOH-register cross-check validates the primary battery_soc_percent reading fed in via ctx - a
	// read failure here just means the raw condition can't be evaluated this poll, not a health fault of
	// its own.
	var socCrossCheckDetail string
	if soh, err := m.driver.ReadByName(registermap.RegBatterySohPercent); err == nil {
		detail, diverged := CrossCheckSoc(ctx.SocPct, soh)
		raw[CodeSocCrossCheck] = diverged
		socCrossCheckDetail = detail
	}

	var events []telemetry.AlertEvent
	anyCritical := false

	for code, isRaw := range raw {
		ev, nowActive := m.step(code, isRaw, now, ctx)
		if ev != nil {
			if code == CodeSocCrossCheck {
				ev.Detail = socCrossCheckDetail
			}
			events = append(events, *ev)
		}
		if criticalCodes[code] && nowActive {
			anyCritical = true
		}
	}

	if anyCritical {
		reason := m.firstActiveCriticalReason()
		m.intent.Set(safety.Intent{SourceCode: reason, Active: true, SinceTS: now, Reason: reason})
	} else {
		m.intent.Set(safety.Intent{Active: false, SinceTS: now})
	}

	return events
}

func (m *Monitor) firstActiveCriticalReason() string {
	for code := range criticalCodes {
		if s, ok := m.states[code]; ok && s.active {
			return code
		}
	}
	return ""
}

// step advances the debounced state machine for one code and returns an AlertEvent if this poll produced
// a transition or a repeat notification for a still-active code.
func (m *Monitor) step(code string, raw bool, now time.Time, ctx telemetry.AlertContext) (*telemetry.AlertEvent, bool) {
	s, ok := m.states[code]
	if !ok {
		s = &codeState{}
		m.states[code] = s
	}

	if raw {
		s.consecutiveRaw++
		s.consecutiveOK = 0
	} else {
		s.consecutiveOK++
		s.consecutiveRaw = 0
	}

	transitionedToActive := false
	transitionedToCleared := false

	if !s.active && s.consecutiveRaw >= m.debounceN {
		s.active = true
		s.eventID = uuid.New()
		s.count = 0
		transitionedToActive = true
	} else if s.active && s.consecutiveOK >= m.debounceN {
		s.active = false
		transitionedToCleared = true
	}

	if !s.active && !transitionedToCleared {
		return nil, false
	}

	if s.active {
		s.count++
	}

	if !transitionedToActive && !transitionedToCleared && s.active {
		// Still active with no transition this poll: only CRITICAL codes repeat every poll (so the
		// backend always has a live FaultSafeIntent justification); others only notify on transition.
		if !criticalCodes[code] {
			return nil, true
		}
	}

	state := telemetry.StateActive
	if transitionedToCleared {
		state = telemetry.StateCleared
	}

	severity := telemetry.SeverityWarning
	if criticalCodes[code] {
		severity = telemetry.SeverityCritical
	}
	if code == CodeStaleTelemetry {
		severity = telemetry.SeverityInfo
	}

	event := &telemetry.AlertEvent{
		SiteID:   m.siteID,
		ConsusID: m.consusID,
		Time:     now,
		Severity: severity,
		Code:     code,
		State:    state,
		EventID:  s.eventID,
		Count:    s.count,
		Context:  ctx,
	}

	return event, s.active
}

func (m *Monitor) evaluateRawConditions(now time.Time, telemetryAge time.Duration) map[string]bool {
	read := func(name string) (float64, error) {
		return m.driver.ReadByName(name)
	}

	emsCheck, err := read(registermap.RegEmsCheckStatus)
	emsCheckFault := err != nil || emsCheck != 1

	bmsAlarm, err := read(registermap.RegBmsAlarmBits)
	bmsAlarmFault := err != nil || bmsAlarm != 0

	arcFault, err := read(registermap.RegArcFault)
	arcFaultActive := err != nil || arcFault != 0

	bmsWarning, err := read(registermap.RegBmsWarningBits)
	bmsWarningActive := err == nil && bmsWarning != 0

	parallelComm, err := read(registermap.RegParallelCommStatus)
	parallelCommFault := err == nil && parallelComm != 0

	meterPath, err := read(registermap.RegMeterPath)
	meterPathFault := err == nil && meterPath != 0

	return map[string]bool{
		CodeEmsCheckStatus: emsCheckFault,
		CodeBmsAlarmBits:   bmsAlarmFault,
		CodeArcFault:       arcFaultActive,
		CodeBmsWarningBits: bmsWarningActive,
		CodeParallelComm:   parallelCommFault,
		CodeMeterPath:      meterPathFault,
		CodeStaleTelemetry: telemetryAge > staleTelemetryThreshold,
	}
}

// CrossCheckSoc compares the primary SOC reading against the SOH-register cross-check and returns a
// human-readable discrepancy description when they diverge beyond a few percentage points. Poll feeds the
// result into the debounced SOC_CROSS_CHECK WARNING.
func CrossCheckSoc(primary, crossCheck float64) (string, bool) {
	const tolerance = 5.0
	diff := primary - crossCheck
	if diff < 0 {
		diff = -diff
	}
	if diff <= tolerance {
		return "", false
	}
	return fmt.Sprintf("soc %.1f%% vs cross-check %.1f%% differ by %.1f%%", primary, crossCheck, diff), true
}
