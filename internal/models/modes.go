package models

// PresetMode is a named heating operating mode beyond simple on/off.
type PresetMode string

const (
	ModeNormal       PresetMode = "normal"
	ModeEnergySaving PresetMode = "energy_saving"
	ModeOutdoor      PresetMode = "outdoor"
	ModeRapid        PresetMode = "rapid"
	ModeStandby      PresetMode = "standby"
)

// HVACMode is the coarse heat/off state exposed to the user.
type HVACMode string

const (
	HVACHeat HVACMode = "heat"
	HVACOff  HVACMode = "off"
)

// HVACAction is what the unit is currently doing.
type HVACAction string

const (
	ActionHeating HVACAction = "heating"
	ActionIdle    HVACAction = "idle"
	ActionOff     HVACAction = "off"
)

// Temperature limits for heating setpoints, °C.
const (
	MinTemp = 35
	MaxTemp = 65
)

// HeatingModeSpec describes one entry of the vendor mode table.
type HeatingModeSpec struct {
	Mode    PresetMode
	Display string
	// Codes are the raw operationMode values that map to this mode.
	// Several codes appear under more than one mode; declaration order
	// is the tie-break (first matching entry wins).
	Codes []string
	// Command/Value is the wire pair that activates the mode.
	Command string
	Value   string
	// RequiresNormal means the unit must be in normal mode before this
	// mode can be activated.
	RequiresNormal bool
}

// HeatingModes is the vendor mode table, in tie-break order.
var HeatingModes = []HeatingModeSpec{
	{Mode: ModeNormal, Display: "Normal Heating", Codes: []string{"3"}, Command: "summerWinter", Value: "31"},
	{Mode: ModeEnergySaving, Display: "Heating Energy Saving", Codes: []string{"B", "4B"}, Command: "energySavingMode", Value: "31", RequiresNormal: true},
	{Mode: ModeOutdoor, Display: "Heating Outdoor", Codes: []string{"13", "53"}, Command: "outdoorMode", Value: "31", RequiresNormal: true},
	{Mode: ModeRapid, Display: "Fast Heating", Codes: []string{"43", "4B", "53", "63"}, Command: "rapidHeating", Value: "31", RequiresNormal: true},
	{Mode: ModeStandby, Display: "Heating Off", Codes: []string{"0", "1", "2"}, Command: "summerWinter", Value: "31"},
}

// codeToMode is built once from HeatingModes; first declaration wins.
var codeToMode = func() map[string]PresetMode {
	m := make(map[string]PresetMode)
	for _, spec := range HeatingModes {
		for _, code := range spec.Codes {
			if _, exists := m[code]; !exists {
				m[code] = spec.Mode
			}
		}
	}
	return m
}()

// ModeForCode resolves a raw operationMode code. Unknown or empty codes
// resolve to standby: an unrecognized unit is treated as off.
func ModeForCode(code string) PresetMode {
	if mode, ok := codeToMode[code]; ok {
		return mode
	}
	return ModeStandby
}

// ModeSpec returns the table entry for a mode, or false for unknown modes.
func ModeSpec(mode PresetMode) (HeatingModeSpec, bool) {
	for _, spec := range HeatingModes {
		if spec.Mode == mode {
			return spec, true
		}
	}
	return HeatingModeSpec{}, false
}

// ModeSpecByDisplay resolves a user-facing display name to its table entry.
func ModeSpecByDisplay(display string) (HeatingModeSpec, bool) {
	for _, spec := range HeatingModes {
		if spec.Display == display {
			return spec, true
		}
	}
	return HeatingModeSpec{}, false
}

// BurningState is the burner status reported by the unit.
type BurningState string

const (
	BurningStandby      BurningState = "standby"
	BurningHeatingWater BurningState = "heating_water"
	BurningActive       BurningState = "burning"
	BurningError        BurningState = "error"
)

var burningStates = map[string]BurningState{
	"30": BurningStandby,
	"31": BurningHeatingWater,
	"32": BurningActive,
	"33": BurningError,
}

// ParseBurningState maps a numeric wire code to a burning state. Some feeds
// send the state already as text; anything outside the 4-code table is
// passed through unchanged.
func ParseBurningState(code string) BurningState {
	if state, ok := burningStates[code]; ok {
		return state
	}
	return BurningState(code)
}

// IsHeating reports whether the burner is actively producing heat.
func (b BurningState) IsHeating() bool {
	return b == BurningHeatingWater || b == BurningActive
}
