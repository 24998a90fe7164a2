package edgestate

// ClockHHMM is a wall-clock time-of-day in site local time, delivered by the config bus as an object with
// "hour" and "minute" fields; an "HH:MM" string is not accepted. The EMS Manager turns it into a
// time_utils.ClockTime in the deployment's configured time.Location.
type ClockHHMM struct {
	Hour   int `json:"hour" mapstructure:"hour"`
	Minute int `json:"minute" mapstructure:"minute"`
}

type CheapWindow struct {
	Start ClockHHMM `json:"start" mapstructure:"start"`
	End   ClockHHMM `json:"end" mapstructure:"end"`
}

type AutoBiasTrim struct {
	Enable    bool    `json:"enable" mapstructure:"enable"`
	TargetW   float64 `json:"target_w" mapstructure:"target_w"`
	DeadbandW float64 `json:"deadband_w" mapstructure:"deadband_w"`
	StepW     float64 `json:"step_w" mapstructure:"step_w"`
	MinW      float64 `json:"min_w" mapstructure:"min_w"`
	MaxW      float64 `json:"max_w" mapstructure:"max_w"`
}

type WriteGuardSettings struct {
	PerRegMinS        float64 `json:"per_reg_min_s" mapstructure:"per_reg_min_s"`
	GlobalWritesPerS  float64 `json:"global_writes_per_s" mapstructure:"global_writes_per_s"`
}

type Endpoints struct {
	IngestURL    string `json:"ingest_url" mapstructure:"ingest_url"`
	HealthURL    string `json:"health_url" mapstructure:"health_url"`
	BootstrapURL string `json:"bootstrap_url" mapstructure:"bootstrap_url"`
}

// Settings is the process-wide, hot-reloadable deployment configuration. It applies to every battery
// unless overridden, and is replaced wholesale by every accepted config-bus update that carries a settings key.
type Settings struct {
	CheapWindow        CheapWindow        `json:"cheap_window" mapstructure:"cheap_window"`
	TargetSocPercent   float64            `json:"target_soc_percent" mapstructure:"target_soc_percent"`
	ImportChargePowerW float64            `json:"import_charge_power_w" mapstructure:"import_charge_power_w"`
	MinImportW         float64            `json:"min_import_w" mapstructure:"min_import_w"`
	ExportCapW         float64            `json:"export_cap_w" mapstructure:"export_cap_w"`
	MeterBiasW         float64            `json:"meter_bias_w" mapstructure:"meter_bias_w"`
	MaxChargeW         float64            `json:"max_charge_w" mapstructure:"max_charge_w"`
	MaxRampRateWPerS   float64            `json:"max_ramp_rate_w_per_s" mapstructure:"max_ramp_rate_w_per_s"`
	PvEnabled          bool               `json:"pv_enabled" mapstructure:"pv_enabled"`
	AutoBiasTrim       AutoBiasTrim       `json:"auto_bias_trim" mapstructure:"auto_bias_trim"`
	WriteGuard         WriteGuardSettings `json:"write_guard" mapstructure:"write_guard"`
	Endpoints          Endpoints          `json:"endpoints" mapstructure:"endpoints"`
}

// BatteryConfig describes one physical battery's field-bus endpoint and operating envelope.
type BatteryConfig struct {
	ConsusID          string  `json:"consus_id" mapstructure:"consus_id"`
	Host              string  `json:"host" mapstructure:"host"`
	Port              int     `json:"port" mapstructure:"port"`
	UnitID            uint8   `json:"unit_id" mapstructure:"unit_id"`
	// TransportKind selects the Modbus client the Field-Bus Driver dials with: "gridx" (default) or
	// "simonvetter", for sites whose serial-to-TCP gateway doesn't get on with the grid-x client.
	TransportKind     string  `json:"transport_kind" mapstructure:"transport_kind"`
	MaxChargeW        float64 `json:"max_charge_w" mapstructure:"max_charge_w"`
	MaxRampRateWPerS  float64 `json:"max_ramp_rate_w_per_s" mapstructure:"max_ramp_rate_w_per_s"`
	PvEnabled         bool    `json:"pv_enabled" mapstructure:"pv_enabled"`
	CapacityWh        float64 `json:"capacity_wh" mapstructure:"capacity_wh"`
	ReserveSocPercent float64 `json:"reserve_soc_percent" mapstructure:"reserve_soc_percent"`
	MaxSocPercent     float64 `json:"max_soc_percent" mapstructure:"max_soc_percent"`
}

// Task is a one-shot operation requested via the config bus, such as a commissioning retry.
type Task struct {
	Name    string                 `json:"name" mapstructure:"name"`
	Args    map[string]interface{} `json:"args" mapstructure:"args"`
}

// Document is the whole-state shape delivered over the config bus. An update may carry any subset of
// settings/battery_configs/tasks; each key present in the update replaces that sub-tree wholesale, and keys
// absent from the update retain their prior value (see Store.Apply).
type Document struct {
	Settings       Settings                 `json:"settings" mapstructure:"settings"`
	BatteryConfigs map[string]BatteryConfig `json:"battery_configs" mapstructure:"battery_configs"`
	Tasks          []Task                   `json:"tasks" mapstructure:"tasks"`
}
