package registermap

// Canonical register names used throughout the controller. Addresses are documented here for reference;
// the authoritative address, scale and word count for each name still comes from whatever Map is loaded
// from bootstrap at startup - these constants only pin down the *names* both sides of that contract agree
// on.
const (
	RegGridPowerW        = "grid_power_w"         // 36025
	RegBatterySocPercent = "battery_soc_percent"   // 37007
	RegBatterySohPercent = "battery_soh_percent"   // 39899, cross-check for battery_soc_percent
	RegBatteryVoltageV   = "battery_voltage_v"     // 39898 series
	RegBatteryCurrentA   = "battery_current_a"
	RegBatteryPowerW     = "battery_power_w"

	RegPvString1W = "pv_string_1_w" // 35103
	RegPvString2W = "pv_string_2_w"
	RegPvString3W = "pv_string_3_w"
	RegPvString4W = "pv_string_4_w" // ...35119

	RegMppt1W = "mppt_1_w" // 35337
	RegMppt2W = "mppt_2_w" // ...35341

	RegCt2PvW = "ct2_pv_w" // 36045

	RegEmsPowerMode = "ems_power_mode" // 47511
	RegAppMode      = "app_mode"       // 10456

	RegEmsPowerSet      = "ems_power_set"      // write target setpoint, W
	RegManufacturerCode = "manufacturer_code"  // 47505
	RegExternalMeterEn  = "external_meter_enable" // 47464
	RegFeedPowerEnable  = "feed_power_enable"  // 47509
	RegExportPowerCap   = "export_power_cap"   // 47510
	RegRemoteCommLossT  = "remote_comm_loss_time" // 42101
	RegMeterBiasW       = "meter_bias_w"          // 47120

	RegEmsCheckStatus     = "ems_check_status"      // 40008
	RegBmsWarningBits     = "bms_warning_bits"       // 39894
	RegBmsAlarmBits       = "bms_alarm_bits"         // 39896
	RegBmsSohPercent      = "bms_soh_percent"        // 39899
	RegArcFault           = "arc_fault"              // 36065
	RegParallelCommStatus = "parallel_comm_status"   // 36066
	RegMeterPath          = "meter_path"             // 50091
	RegMeterCommsA        = "meter_comms_a"          // 50092
	RegMeterCommsB        = "meter_comms_b"          // 50094
)

// EmsPowerMode is the value written to RegEmsPowerMode.
type EmsPowerMode uint16

const (
	EmsModeAuto     EmsPowerMode = 0x0001
	EmsModeImportAC EmsPowerMode = 0x0004
)
