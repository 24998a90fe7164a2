// Package batteryunit wraps a single battery's Field-Bus Driver with a typed telemetry aggregator,
// summing PV and grid sources into one sample per read.
package batteryunit

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/consus-energy/edge-controller/fieldbus"
	"github.com/consus-energy/edge-controller/registermap"
	"github.com/consus-energy/edge-controller/telemetry"
	"github.com/google/uuid"
)

var pvStringRegisters = []string{
	registermap.RegPvString1W,
	registermap.RegPvString2W,
	registermap.RegPvString3W,
	registermap.RegPvString4W,
}

var mpptRegisters = []string{
	registermap.RegMppt1W,
	registermap.RegMppt2W,
}

// Unit wraps one consus_id's Field-Bus Driver and knows how to assemble its registers into a
// telemetry.Sample.
type Unit struct {
	ConsusID  string
	driver    *fieldbus.Driver
	pvEnabled bool
	log       *slog.Logger
}

func New(consusID string, driver *fieldbus.Driver, pvEnabled bool, log *slog.Logger) *Unit {
	if log == nil {
		log = slog.Default()
	}
	return &Unit{
		ConsusID:  consusID,
		driver:    driver,
		pvEnabled: pvEnabled,
		log:       log.With("consus_id", consusID),
	}
}

// ReadSample polls every register this unit cares about and assembles a telemetry.Sample. A register
// that cannot be read is reported as 0 in the sample and recorded as a comms_fault health flag rather
// than failing the whole read. ReadSample never returns an error: a Driver that is not connected shows up
// as a comms_fault flag on every register.
func (u *Unit) ReadSample(now time.Time) (telemetry.Sample, error) {
	sample := telemetry.Sample{
		ID:       uuid.New(),
		ConsusID: u.ConsusID,
		Time:     now,
	}

	var healthFlags []string
	read := func(name string) float64 {
		v, err := u.driver.ReadByName(name)
		if err != nil {
			u.log.Warn("comms fault reading register", "register", name, "error", err)
			healthFlags = append(healthFlags, fmt.Sprintf("comms_fault:%s", name))
			return 0
		}
		return v
	}

	sample.GridW = read(registermap.RegGridPowerW)
	sample.SocPercent = read(registermap.RegBatterySocPercent)
	sample.BatteryV = read(registermap.RegBatteryVoltageV)
	sample.BatteryI = read(registermap.RegBatteryCurrentA)
	sample.BatteryW = read(registermap.RegBatteryPowerW)

	sample.PvStringsW = make([]float64, len(pvStringRegisters))
	for i, name := range pvStringRegisters {
		sample.PvStringsW[i] = read(name)
	}

	sample.MpptsW = make([]float64, len(mpptRegisters))
	for i, name := range mpptRegisters {
		sample.MpptsW[i] = read(name)
	}

	sample.Ct2W = read(registermap.RegCt2PvW)

	if u.pvEnabled {
		total := sample.Ct2W
		for _, v := range sample.PvStringsW {
			total += v
		}
		for _, v := range sample.MpptsW {
			total += v
		}
		sample.PvTotalW = total
	}

	sample.HealthFlags = healthFlags

	return sample, nil
}

// BatterySohPercent reads the BMS state-of-health register (bms_soh_percent). The Health Monitor's SOC
// cross-check does not use it; it reads battery_soh_percent through its own driver.
func (u *Unit) BatterySohPercent() (float64, error) {
	return u.driver.ReadByName(registermap.RegBmsSohPercent)
}
