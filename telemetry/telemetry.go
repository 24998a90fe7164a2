package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Mode is the EMS operating mode written to ems_power_mode and echoed back in every sample.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeImportAC Mode = "import_ac"
)

// Sample is a single battery's telemetry reading for one controller tick. Immutable once created.
type Sample struct {
	ID        uuid.UUID
	ConsusID  string
	Time      time.Time
	Mode      Mode
	AppMode   string

	SocPercent float64
	GridW      float64
	PvTotalW   float64
	PvStringsW []float64
	MpptsW     []float64
	Ct2W       float64

	BatteryV float64
	BatteryI float64
	BatteryW float64

	HealthFlags []string

	// WriteGuard counters for this tick, folded in so the backend can see write-suppression activity
	// without a separate query.
	WritesOK             uint64
	WritesDedup          uint64
	WritesThrottlePerReg uint64
	WritesThrottleGlobal uint64
	WritesError          uint64
}

// Severity classifies an AlertEvent.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// State is whether the underlying condition is currently active or has cleared.
type State string

const (
	StateActive  State = "ACTIVE"
	StateCleared State = "CLEARED"
)

// AlertContext carries the operating conditions at the moment an AlertEvent was raised or cleared, used
// by the backend to correlate an alert with what the site was doing at the time.
type AlertContext struct {
	Mode    Mode
	SocPct  float64
	GridW   float64
	PvW     float64
	BiasW   float64
}

// AlertEvent describes a single transition (or repeat) of a health condition.
type AlertEvent struct {
	SiteID   string
	ConsusID string
	Time     time.Time
	Severity Severity
	Code     string
	State    State
	// EventID is stable for the lifetime of one active interval of (Code, ConsusID): every repeat
	// notification of the same still-active condition reuses it, and a new one is minted only when the
	// condition clears and later reactivates.
	EventID uuid.UUID
	// Count is the number of consecutive poll cycles the condition has been observed as active,
	// including this one. Monotonically increases while ACTIVE, reset when it clears.
	Count   int
	Context AlertContext
	// Detail is a human-readable elaboration for codes whose raw condition isn't self-explanatory from
	// Code alone, such as the SOC cross-check's divergence description. Empty for most codes.
	Detail string

	// RecentTelemetry holds the last ~10s of samples for this battery, attached only to CRITICAL events so
	// the backend has enough context to diagnose the fault without a follow-up query.
	RecentTelemetry []Sample
}
