package ems

import (
	"testing"
	"time"

	"github.com/consus-energy/edge-controller/edgestate"
	"github.com/consus-energy/edge-controller/fieldbus"
	"github.com/consus-energy/edge-controller/registermap"
	"github.com/consus-energy/edge-controller/safety"
	"github.com/consus-energy/edge-controller/telemetry"
	"github.com/stretchr/testify/require"
)

func testRegisterMap(t *testing.T) *registermap.Map {
	t.Helper()
	descs := []registermap.Descriptor{
		{Name: registermap.RegEmsPowerMode, Address: 0, WordCount: 1, Scale: 1, Access: registermap.AccessReadWrite},
		{Name: registermap.RegEmsPowerSet, Address: 1, WordCount: 2, Signed: true, Scale: 1, Access: registermap.AccessReadWrite},
		{Name: registermap.RegExportPowerCap, Address: 3, WordCount: 2, Signed: true, Scale: 1, Access: registermap.AccessReadWrite},
		{Name: registermap.RegMeterBiasW, Address: 5, WordCount: 2, Signed: true, Scale: 1, Access: registermap.AccessReadWrite},
		{Name: registermap.RegManufacturerCode, Address: 7, WordCount: 1, Scale: 1, Access: registermap.AccessReadWrite},
		{Name: registermap.RegExternalMeterEn, Address: 8, WordCount: 1, Scale: 1, Access: registermap.AccessReadWrite},
		{Name: registermap.RegFeedPowerEnable, Address: 9, WordCount: 1, Scale: 1, Access: registermap.AccessReadWrite},
	}
	m, err := registermap.New(descs)
	require.NoError(t, err)
	return m
}

func testSettings() edgestate.Settings {
	return edgestate.Settings{
		CheapWindow:        edgestate.CheapWindow{Start: edgestate.ClockHHMM{Hour: 23}, End: edgestate.ClockHHMM{Hour: 5}},
		TargetSocPercent:   80,
		ImportChargePowerW: 3000,
		MinImportW:         200,
		ExportCapW:         5000,
		MaxChargeW:         5000,
		MaxRampRateWPerS:   500,
		PvEnabled:          true,
	}
}

func TestCommissionWritesExpectedRegisters(t *testing.T) {
	mt := fieldbus.NewMockTransport()
	d := fieldbus.NewDriverWithTransport(mt, testRegisterMap(t), nil, nil)
	m := NewManager("site-1-bess-1", d, time.UTC, nil)

	err := m.Commission(testSettings())
	require.NoError(t, err)

	v, err := d.ReadByName(registermap.RegManufacturerCode)
	require.NoError(t, err)
	require.Equal(t, 2.0, v)

	v, err = d.ReadByName(registermap.RegExportPowerCap)
	require.NoError(t, err)
	require.Equal(t, 5000.0, v)
}

func TestTickImportACDuringCheapWindowBelowTarget(t *testing.T) {
	mt := fieldbus.NewMockTransport()
	d := fieldbus.NewDriverWithTransport(mt, testRegisterMap(t), nil, nil)
	m := NewManager("site-1-bess-1", d, time.UTC, nil)

	now := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)
	sample := telemetry.Sample{SocPercent: 50, PvTotalW: 400}

	decision, err := m.Tick(now, testSettings(), sample, safety.Intent{})
	require.NoError(t, err)
	require.True(t, decision.InImportAC)
	require.Equal(t, registermap.EmsModeImportAC, decision.Mode)
	// raw = 3000-400 = 2600, but first-tick ramp from 0 is limited to max_ramp_rate_w_per_s * dt (1s) = 500.
	require.Equal(t, 500.0, decision.SetpointW)

	mode, err := d.ReadByName(registermap.RegEmsPowerMode)
	require.NoError(t, err)
	require.Equal(t, float64(registermap.EmsModeImportAC), mode)
}

func TestTickRampsTowardTargetOverSuccessiveTicks(t *testing.T) {
	mt := fieldbus.NewMockTransport()
	d := fieldbus.NewDriverWithTransport(mt, testRegisterMap(t), nil, nil)
	m := NewManager("site-1-bess-1", d, time.UTC, nil)

	settings := testSettings()
	sample := telemetry.Sample{SocPercent: 50, PvTotalW: 400}
	now := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)

	var last Decision
	for i := 0; i < 6; i++ {
		dec, err := m.Tick(now, settings, sample, safety.Intent{})
		require.NoError(t, err)
		last = dec
		now = now.Add(1 * time.Second)
	}
	require.InDelta(t, 2600.0, last.SetpointW, 0.001)
}

func TestTickAutoModeDuringDaytime(t *testing.T) {
	mt := fieldbus.NewMockTransport()
	d := fieldbus.NewDriverWithTransport(mt, testRegisterMap(t), nil, nil)
	m := NewManager("site-1-bess-1", d, time.UTC, nil)

	now := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)
	sample := telemetry.Sample{SocPercent: 40, GridW: 150}

	decision, err := m.Tick(now, testSettings(), sample, safety.Intent{})
	require.NoError(t, err)
	require.False(t, decision.InImportAC)
	require.Equal(t, registermap.EmsModeAuto, decision.Mode)
	require.Equal(t, 0.0, decision.SetpointW)

	cap, err := d.ReadByName(registermap.RegExportPowerCap)
	require.NoError(t, err)
	require.Equal(t, testSettings().ExportCapW, cap)
}

func TestTickBiasTrimAdjustsMeterBias(t *testing.T) {
	mt := fieldbus.NewMockTransport()
	d := fieldbus.NewDriverWithTransport(mt, testRegisterMap(t), nil, nil)
	m := NewManager("site-1-bess-1", d, time.UTC, nil)

	settings := testSettings()
	settings.MeterBiasW = 0
	settings.AutoBiasTrim = edgestate.AutoBiasTrim{Enable: true, TargetW: 0, DeadbandW: 100, StepW: 20, MinW: -200, MaxW: 200}

	now := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)
	sample := telemetry.Sample{SocPercent: 40, GridW: 150}

	decision, err := m.Tick(now, settings, sample, safety.Intent{})
	require.NoError(t, err)
	require.Equal(t, -20.0, decision.BiasW)

	bias, err := d.ReadByName(registermap.RegMeterBiasW)
	require.NoError(t, err)
	require.Equal(t, -20.0, bias)
}

func TestTickFaultSafeForcesAutoZeroSetpoint(t *testing.T) {
	mt := fieldbus.NewMockTransport()
	d := fieldbus.NewDriverWithTransport(mt, testRegisterMap(t), nil, nil)
	m := NewManager("site-1-bess-1", d, time.UTC, nil)

	now := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)
	sample := telemetry.Sample{SocPercent: 50, PvTotalW: 400}

	decision, err := m.Tick(now, testSettings(), sample, safety.Intent{Active: true, SourceCode: "ARC_FAULT"})
	require.NoError(t, err)
	require.False(t, decision.InImportAC)
	require.Equal(t, registermap.EmsModeAuto, decision.Mode)
	require.Equal(t, 0.0, decision.SetpointW)
}

func TestExitSequenceZerosSetpointBeforeLeavingImportAC(t *testing.T) {
	mt := fieldbus.NewMockTransport()
	d := fieldbus.NewDriverWithTransport(mt, testRegisterMap(t), nil, nil)
	m := NewManager("site-1-bess-1", d, time.UTC, nil)

	settings := testSettings()
	now := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)
	_, err := m.Tick(now, settings, telemetry.Sample{SocPercent: 50}, safety.Intent{})
	require.NoError(t, err)
	require.True(t, m.wasImportAC)

	// First tick of the exit condition: ems_power_set must drop to zero, but ems_power_mode must NOT flip
	// yet - that write is required to land on a later tick, at least one per_reg_min_s interval later.
	now = now.Add(1 * time.Second)
	decision, err := m.Tick(now, settings, telemetry.Sample{SocPercent: 90}, safety.Intent{})
	require.NoError(t, err)
	require.Equal(t, registermap.EmsModeImportAC, decision.Mode)
	require.True(t, decision.InImportAC)
	require.True(t, m.exitPending)

	setpoint, err := d.ReadByName(registermap.RegEmsPowerSet)
	require.NoError(t, err)
	require.Equal(t, 0.0, setpoint)

	mode, err := d.ReadByName(registermap.RegEmsPowerMode)
	require.NoError(t, err)
	require.Equal(t, float64(registermap.EmsModeImportAC), mode)

	// Next tick: the mode register finally flips to Auto.
	now = now.Add(1 * time.Second)
	decision, err = m.Tick(now, settings, telemetry.Sample{SocPercent: 90}, safety.Intent{})
	require.NoError(t, err)
	require.Equal(t, registermap.EmsModeAuto, decision.Mode)
	require.False(t, m.exitPending)
	require.False(t, m.wasImportAC)

	mode, err = d.ReadByName(registermap.RegEmsPowerMode)
	require.NoError(t, err)
	require.Equal(t, float64(registermap.EmsModeAuto), mode)
}
