package models

import (
	"rinnai_bridge/internal/decode"
)

// Wire field keys as sent by the vendor over HTTP and the push channel.
const (
	FieldOperationMode    = "operationMode"
	FieldHotWaterTemp     = "hotWaterTempSetting"
	FieldHeatingTempNM    = "heatingTempSettingNM"
	FieldHeatingTempHES   = "heatingTempSettingHES"
	FieldBurningState     = "burningState"
	FieldRoomTempControl  = "roomTempControl"
	FieldOutletTempCtl    = "heatingOutWaterTempControl"
	FieldReservationMode  = "heatingReservationMode"
	FieldGasConsumption   = "gasConsumption"
	FieldSupplyTime       = "actualUseTime"
	FieldPowerSupplyTime  = "totalPowerSupplyTime"
	FieldHeatingBurnTime  = "totalHeatingBurningTime"
	FieldHotWaterBurnTime = "totalHotWaterBurningTime"
	FieldHeatingBurnCount = "heatingBurningTimes"
	FieldHotWaterBurnCnt  = "hotWaterBurningTimes"
)

// hexFields are the wire fields encoded as unprefixed hex integers.
var hexFields = []string{
	FieldHotWaterTemp,
	FieldHeatingTempNM,
	FieldHeatingTempHES,
	FieldRoomTempControl,
	FieldOutletTempCtl,
	FieldSupplyTime,
	FieldPowerSupplyTime,
	FieldHeatingBurnTime,
	FieldHotWaterBurnTime,
	FieldHeatingBurnCount,
	FieldHotWaterBurnCnt,
}

// RawFields is the key→value wire map of one update, before decoding.
type RawFields map[string]string

// Clone returns an independent copy of the map.
func (r RawFields) Clone() RawFields {
	out := make(RawFields, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FieldError records one wire field that failed to decode during a merge.
// The merge itself continues; callers log these.
type FieldError struct {
	Field string
	Value string
	Err   error
}

// EnergyCounters are the usage counters of one unit, surviving restarts
// through the persisted snapshot. All but SupplyTimeHours are cumulative
// lifetime totals and only grow; SupplyTimeHours is the unit's current
// use-time reading and follows whatever the wire last reported.
type EnergyCounters struct {
	GasUsedCubicMeters   float64 `json:"gas_used_m3"`
	SupplyTimeHours      int     `json:"supply_time_hours"`
	PowerSupplyHours     int     `json:"power_supply_hours"`
	HeatingBurningHours  int     `json:"heating_burning_hours"`
	HotWaterBurningHours int     `json:"hot_water_burning_hours"`
	HeatingBurningCount  int     `json:"heating_burning_count"`
	HotWaterBurningCount int     `json:"hot_water_burning_count"`
}

// DeviceState is the typed aggregate for one unit, merged from HTTP
// snapshots and push updates. Fields absent from an update keep their
// previous value; partial frames never blank known state.
type DeviceState struct {
	// OperationModeCode is the raw operationMode wire code.
	OperationModeCode string       `json:"operation_mode_code"`
	BurningState      BurningState `json:"burning_state"`

	HotWaterTargetTemp   int `json:"hot_water_target_temp"`
	HeatingTargetTempNM  int `json:"heating_target_temp_normal"`
	HeatingTargetTempHES int `json:"heating_target_temp_eco"`

	RoomTempControl   int `json:"room_temp_control"`
	OutletTempControl int `json:"heating_outlet_temp_control"`

	ReservationMode string `json:"reservation_mode,omitempty"`

	Counters EnergyCounters `json:"counters"`

	// RawFields retains the last-known wire map for fields the typed model
	// does not cover, and for inspection.
	RawFields RawFields `json:"raw_fields,omitempty"`
}

// MergeRaw folds one wire update into the state: raw union first, then the
// hex-decode pass, then the gas special case, then typed assignment. A field
// that fails to decode is skipped and reported; the rest of the update still
// applies. Empty incoming values are "no update".
func (s *DeviceState) MergeRaw(raw RawFields) []FieldError {
	if s.RawFields == nil {
		s.RawFields = make(RawFields)
	}
	for k, v := range raw {
		s.RawFields[k] = v
	}

	var errs []FieldError

	decoded := make(map[string]int, len(hexFields))
	for _, field := range hexFields {
		v, ok := raw[field]
		if !ok || v == "" {
			continue
		}
		n, err := decode.HexInt(v)
		if err != nil {
			errs = append(errs, FieldError{Field: field, Value: v, Err: err})
			continue
		}
		decoded[field] = n
	}

	if v, ok := raw[FieldGasConsumption]; ok && v != "" {
		gas, err := decode.GasCubicMeters(v)
		if err != nil {
			errs = append(errs, FieldError{Field: FieldGasConsumption, Value: v, Err: err})
		} else if gas >= s.Counters.GasUsedCubicMeters {
			s.Counters.GasUsedCubicMeters = gas
		}
	}

	if v := raw[FieldOperationMode]; v != "" {
		s.OperationModeCode = v
	}
	if v := raw[FieldBurningState]; v != "" {
		s.BurningState = ParseBurningState(v)
	}
	if v := raw[FieldReservationMode]; v != "" {
		s.ReservationMode = v
	}

	assignTemp(&s.HotWaterTargetTemp, decoded, FieldHotWaterTemp)
	assignTemp(&s.HeatingTargetTempNM, decoded, FieldHeatingTempNM)
	assignTemp(&s.HeatingTargetTempHES, decoded, FieldHeatingTempHES)
	assignTemp(&s.RoomTempControl, decoded, FieldRoomTempControl)
	assignTemp(&s.OutletTempControl, decoded, FieldOutletTempCtl)

	assignCounter(&s.Counters.PowerSupplyHours, decoded, FieldPowerSupplyTime)
	assignCounter(&s.Counters.HeatingBurningHours, decoded, FieldHeatingBurnTime)
	assignCounter(&s.Counters.HotWaterBurningHours, decoded, FieldHotWaterBurnTime)
	assignCounter(&s.Counters.HeatingBurningCount, decoded, FieldHeatingBurnCount)
	assignCounter(&s.Counters.HotWaterBurningCount, decoded, FieldHotWaterBurnCnt)
	// Supply time is a current reading, not a lifetime total: it can reset
	// on the unit and is assigned as reported.
	if n, ok := decoded[FieldSupplyTime]; ok {
		s.Counters.SupplyTimeHours = n
	}

	return errs
}

// assignTemp applies a decoded value; zero is "not reported" on this wire
// format, never a real setting.
func assignTemp(dst *int, decoded map[string]int, field string) {
	if n, ok := decoded[field]; ok && n != 0 {
		*dst = n
	}
}

// assignCounter applies a decoded cumulative counter. Counters never
// decrease, so a lower incoming value (a stale frame) is ignored.
func assignCounter(dst *int, decoded map[string]int, field string) {
	if n, ok := decoded[field]; ok && n > *dst {
		*dst = n
	}
}

// RestoreCounters seeds the counters from a persisted snapshot. Called once
// at startup, before any merge; incoming data afterwards only raises the
// cumulative totals. The supply-time reading is only seeded when no live
// value has arrived yet.
func (s *DeviceState) RestoreCounters(c EnergyCounters) {
	if c.GasUsedCubicMeters > s.Counters.GasUsedCubicMeters {
		s.Counters.GasUsedCubicMeters = c.GasUsedCubicMeters
	}
	if s.Counters.SupplyTimeHours == 0 {
		s.Counters.SupplyTimeHours = c.SupplyTimeHours
	}
	if c.PowerSupplyHours > s.Counters.PowerSupplyHours {
		s.Counters.PowerSupplyHours = c.PowerSupplyHours
	}
	if c.HeatingBurningHours > s.Counters.HeatingBurningHours {
		s.Counters.HeatingBurningHours = c.HeatingBurningHours
	}
	if c.HotWaterBurningHours > s.Counters.HotWaterBurningHours {
		s.Counters.HotWaterBurningHours = c.HotWaterBurningHours
	}
	if c.HeatingBurningCount > s.Counters.HeatingBurningCount {
		s.Counters.HeatingBurningCount = c.HeatingBurningCount
	}
	if c.HotWaterBurningCount > s.Counters.HotWaterBurningCount {
		s.Counters.HotWaterBurningCount = c.HotWaterBurningCount
	}
}

// Mode resolves the current preset mode; unknown codes read as standby.
func (s *DeviceState) Mode() PresetMode {
	return ModeForCode(s.OperationModeCode)
}

// HVACMode is the coarse heat/off view of Mode.
func (s *DeviceState) HVACMode() HVACMode {
	if s.Mode() == ModeStandby {
		return HVACOff
	}
	return HVACHeat
}

// HVACAction derives the displayed action. A burning state claiming heat
// while the mode says standby is transient channel noise: mode's "off"
// takes precedence.
func (s *DeviceState) HVACAction() HVACAction {
	if s.Mode() == ModeStandby {
		return ActionOff
	}
	if s.BurningState.IsHeating() {
		return ActionHeating
	}
	return ActionIdle
}

// TargetTemperature picks the displayed heating setpoint for the current
// mode. Outdoor mode pins the display to MinTemp, the vendor's "LO" state.
func (s *DeviceState) TargetTemperature() int {
	switch s.Mode() {
	case ModeEnergySaving:
		return s.HeatingTargetTempHES
	case ModeOutdoor:
		return MinTemp
	default:
		return s.HeatingTargetTempNM
	}
}
