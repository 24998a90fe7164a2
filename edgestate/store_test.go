package edgestate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validDoc() map[string]interface{} {
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"target_soc_percent":      80,
			"import_charge_power_w":   3000,
			"min_import_w":            500,
			"export_cap_w":            5000,
			"max_charge_w":            5000,
			"max_ramp_rate_w_per_s":   200,
			"pv_enabled":              true,
		},
		"battery_configs": map[string]interface{}{
			"site-1-bess-1": map[string]interface{}{
				"consus_id":            "site-1-bess-1",
				"host":                 "10.0.0.5",
				"port":                 502,
				"max_charge_w":         5000,
				"max_ramp_rate_w_per_s": 200,
			},
		},
	}
}

func TestApplyAcceptsValidDocument(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.Apply(validDoc()))

	settings := s.Settings()
	require.Equal(t, 80.0, settings.TargetSocPercent)

	bc, ok := s.BatteryConfig("site-1-bess-1")
	require.True(t, ok)
	require.Equal(t, "10.0.0.5", bc.Host)
}

func TestApplyRejectsOutOfRangeSoc(t *testing.T) {
	s := NewStore(nil)
	doc := validDoc()
	doc["settings"].(map[string]interface{})["target_soc_percent"] = 150

	err := s.Apply(doc)
	require.ErrorIs(t, err, ErrInvalidDocument)
}

func TestApplyRetainsPriorStateOnRejectedUpdate(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.Apply(validDoc()))

	bad := validDoc()
	bad["settings"].(map[string]interface{})["max_ramp_rate_w_per_s"] = 0
	require.Error(t, s.Apply(bad))

	settings := s.Settings()
	require.Equal(t, 200.0, settings.MaxRampRateWPerS)
}

func TestApplyPartialUpdateOnlyReplacesPresentKeys(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.Apply(validDoc()))

	require.NoError(t, s.Apply(map[string]interface{}{
		"tasks": []interface{}{
			map[string]interface{}{"name": "recommission"},
		},
	}))

	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	require.Equal(t, "recommission", tasks[0].Name)

	settings := s.Settings()
	require.Equal(t, 80.0, settings.TargetSocPercent)

	bc, ok := s.BatteryConfig("site-1-bess-1")
	require.True(t, ok)
	require.Equal(t, "10.0.0.5", bc.Host)
}

func TestBatteryConfigsReturnsIndependentSnapshot(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.Apply(validDoc()))

	snap := s.BatteryConfigs()
	snap["site-1-bess-1"] = BatteryConfig{ConsusID: "mutated"}

	bc, _ := s.BatteryConfig("site-1-bess-1")
	require.Equal(t, "site-1-bess-1", bc.ConsusID)
}
