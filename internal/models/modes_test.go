package models

import "testing"

func TestModeForCode(t *testing.T) {
	cases := []struct {
		code string
		want PresetMode
	}{
		{"3", ModeNormal},
		{"B", ModeEnergySaving},
		{"13", ModeOutdoor},
		{"53", ModeOutdoor}, // shared with rapid; first table entry wins
		{"43", ModeRapid},
		{"63", ModeRapid},
		{"0", ModeStandby},
		{"1", ModeStandby},
		{"2", ModeStandby},
		{"", ModeStandby},   // absent reads as off
		{"7F", ModeStandby}, // unknown reads as off
	}
	for _, tc := range cases {
		if got := ModeForCode(tc.code); got != tc.want {
			t.Errorf("ModeForCode(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestModeForCode_SharedCodeTieBreak(t *testing.T) {
	// 4B appears under both energy saving and rapid; declaration order
	// resolves it to energy saving.
	if got := ModeForCode("4B"); got != ModeEnergySaving {
		t.Fatalf("ModeForCode(4B) = %v, want %v", got, ModeEnergySaving)
	}
}

func TestModeSpecByDisplay(t *testing.T) {
	spec, ok := ModeSpecByDisplay("Fast Heating")
	if !ok {
		t.Fatalf("expected Fast Heating to resolve")
	}
	if spec.Mode != ModeRapid || spec.Command != "rapidHeating" || !spec.RequiresNormal {
		t.Fatalf("unexpected spec: %+v", spec)
	}

	if _, ok := ModeSpecByDisplay("fast heating"); ok {
		t.Fatalf("display names are exact, lowercase must not resolve")
	}
}

func TestParseBurningState(t *testing.T) {
	cases := []struct {
		code string
		want BurningState
	}{
		{"30", BurningStandby},
		{"31", BurningHeatingWater},
		{"32", BurningActive},
		{"33", BurningError},
		{"idle", BurningState("idle")}, // textual feeds pass through
	}
	for _, tc := range cases {
		if got := ParseBurningState(tc.code); got != tc.want {
			t.Errorf("ParseBurningState(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestBurningState_IsHeating(t *testing.T) {
	if !BurningActive.IsHeating() || !BurningHeatingWater.IsHeating() {
		t.Fatalf("active states must report heating")
	}
	if BurningStandby.IsHeating() || BurningError.IsHeating() {
		t.Fatalf("standby and error must not report heating")
	}
}
