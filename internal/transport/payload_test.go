package transport

import (
	"encoding/json"
	"testing"

	"rinnai_bridge/internal/models"
)

func TestParseInfoPayload(t *testing.T) {
	payload := []byte(`{"code":"FFFF","enl":[
		{"id":"operationMode","data":"B"},
		{"id":"heatingTempSettingNM","data":"2D"},
		{"id":"burningState","data":""},
		{"id":"","data":"junk"}
	]}`)

	fields, err := parseInfoPayload(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(fields) != 2 || fields["operationMode"] != "B" || fields["heatingTempSettingNM"] != "2D" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestParseInfoPayload_ForeignFrameIgnored(t *testing.T) {
	fields, err := parseInfoPayload([]byte(`{"code":"0001","enl":[{"id":"operationMode","data":"3"}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if fields != nil {
		t.Fatalf("foreign code must decode to nothing, got %v", fields)
	}
}

func TestParseInfoPayload_Malformed(t *testing.T) {
	if _, err := parseInfoPayload([]byte(`{`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestParseEnergyPayload(t *testing.T) {
	payload := []byte(`{"ptn":"J05","egy":[
		{"gasConsumption":"00000BB8","totalPowerSupplyTime":120},
		{"heatingBurningTimes":"64"},
		"not an object"
	]}`)

	fields, err := parseEnergyPayload(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if fields[models.FieldGasConsumption] != "00000BB8" {
		t.Fatalf("gas = %q", fields[models.FieldGasConsumption])
	}
	if fields[models.FieldPowerSupplyTime] != "120" {
		t.Fatalf("power supply = %q", fields[models.FieldPowerSupplyTime])
	}
	if fields[models.FieldHeatingBurnCount] != "64" {
		t.Fatalf("burn count = %q", fields[models.FieldHeatingBurnCount])
	}
}

func TestParseEnergyPayload_ForeignProtocol(t *testing.T) {
	fields, err := parseEnergyPayload([]byte(`{"ptn":"J02","egy":[{"gasConsumption":"1"}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if fields != nil {
		t.Fatalf("foreign ptn must decode to nothing, got %v", fields)
	}
}

func TestBuildCommandPayload(t *testing.T) {
	device := models.Device{ID: "dev-1", MAC: "AABB", AuthCode: "auth-1", ClassID: "class-1"}
	payload, err := buildCommandPayload(device, models.RawFields{"energySavingMode": "31"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	var envelope struct {
		Code string `json:"code"`
		Enl  []struct {
			ID   string `json:"id"`
			Data string `json:"data"`
		} `json:"enl"`
		ID  string `json:"id"`
		Ptn string `json:"ptn"`
		Sum string `json:"sum"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Code != "auth-1" || envelope.ID != "class-1" || envelope.Ptn != "J00" || envelope.Sum != "1" {
		t.Fatalf("envelope = %+v", envelope)
	}
	if len(envelope.Enl) != 1 || envelope.Enl[0].ID != "energySavingMode" || envelope.Enl[0].Data != "31" {
		t.Fatalf("enl = %+v", envelope.Enl)
	}
}

func TestBuildCommandPayload_Empty(t *testing.T) {
	if _, err := buildCommandPayload(models.Device{}, nil); err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestDeviceTopic(t *testing.T) {
	if got := deviceTopic("AABBCC", topicSet); got != "rinnai/SR/01/SR/AABBCC/set/" {
		t.Fatalf("topic = %q", got)
	}
}
