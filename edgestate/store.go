// Package edgestate holds the process-wide Settings, BatteryConfigs and Tasks that the config bus pushes
// down, with a single writer and a per-key replace-or-retain merge on each update.
package edgestate

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mitchellh/mapstructure"
)

var (
	ErrInvalidDocument = errors.New("edge state: invalid document")
)

// Store holds the latest validated Document. Exactly one goroutine (the config-bus subscriber callback)
// calls Apply; any number of goroutines may call the Get* accessors concurrently.
type Store struct {
	mu  sync.RWMutex
	doc Document

	log *slog.Logger
}

func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{log: log}
}

// Apply decodes raw (as delivered by the config bus - a map[string]interface{} from a JSON payload)
// and replaces only the top-level sub-trees present in it ("settings", "battery_configs", "tasks"); any
// key the payload omits retains its previously applied value. The full resulting document is validated
// before the swap, and on any failure the prior state is retained unchanged and the error is returned for
// the caller to log.
func (s *Store) Apply(raw map[string]interface{}) error {
	s.mu.RLock()
	candidate := s.doc
	s.mu.RUnlock()

	if v, present := raw["settings"]; present {
		var settings Settings
		if err := decodeInto(v, &settings); err != nil {
			return fmt.Errorf("%w: settings: %v", ErrInvalidDocument, err)
		}
		candidate.Settings = settings
	}
	if v, present := raw["battery_configs"]; present {
		var bcs map[string]BatteryConfig
		if err := decodeInto(v, &bcs); err != nil {
			return fmt.Errorf("%w: battery_configs: %v", ErrInvalidDocument, err)
		}
		candidate.BatteryConfigs = bcs
	}
	if v, present := raw["tasks"]; present {
		var tasks []Task
		if err := decodeInto(v, &tasks); err != nil {
			return fmt.Errorf("%w: tasks: %v", ErrInvalidDocument, err)
		}
		candidate.Tasks = tasks
	}

	if err := validate(candidate); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	s.mu.Lock()
	s.doc = candidate
	s.mu.Unlock()

	s.log.Info("edge state updated", "num_battery_configs", len(candidate.BatteryConfigs), "num_tasks", len(candidate.Tasks))
	return nil
}

func decodeInto(raw interface{}, result interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           result,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	return decoder.Decode(raw)
}

func validate(doc Document) error {
	if doc.Settings.TargetSocPercent < 0 || doc.Settings.TargetSocPercent > 100 {
		return fmt.Errorf("target_soc_percent out of range: %v", doc.Settings.TargetSocPercent)
	}
	if doc.Settings.MinImportW < 0 {
		return fmt.Errorf("min_import_w must be non-negative: %v", doc.Settings.MinImportW)
	}
	if doc.Settings.ExportCapW < 0 {
		return fmt.Errorf("export_cap_w must be non-negative: %v", doc.Settings.ExportCapW)
	}
	if doc.Settings.MaxChargeW < 0 {
		return fmt.Errorf("max_charge_w must be non-negative: %v", doc.Settings.MaxChargeW)
	}
	if doc.Settings.MaxRampRateWPerS <= 0 {
		return fmt.Errorf("max_ramp_rate_w_per_s must be positive: %v", doc.Settings.MaxRampRateWPerS)
	}
	for id, bc := range doc.BatteryConfigs {
		if bc.ConsusID == "" {
			return fmt.Errorf("battery config %q: missing consus_id", id)
		}
		if bc.MaxChargeW < 0 {
			return fmt.Errorf("battery config %q: max_charge_w must be non-negative", id)
		}
		if bc.MaxRampRateWPerS <= 0 {
			return fmt.Errorf("battery config %q: max_ramp_rate_w_per_s must be positive", id)
		}
	}
	return nil
}

// Settings returns a copy of the currently active Settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Settings
}

// BatteryConfig returns the config for consusID and whether it is present.
func (s *Store) BatteryConfig(consusID string) (BatteryConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bc, ok := s.doc.BatteryConfigs[consusID]
	return bc, ok
}

// BatteryConfigs returns a snapshot copy of every configured battery, keyed by consus_id.
func (s *Store) BatteryConfigs() map[string]BatteryConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]BatteryConfig, len(s.doc.BatteryConfigs))
	for k, v := range s.doc.BatteryConfigs {
		out[k] = v
	}
	return out
}

// Tasks returns a snapshot copy of the currently pending tasks.
func (s *Store) Tasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, len(s.doc.Tasks))
	copy(out, s.doc.Tasks)
	return out
}
