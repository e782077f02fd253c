package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"rinnai_bridge/internal/models"
)

// Push frames share one envelope. Info frames carry parameter lists under
// "enl" guarded by code "FFFF"; energy frames carry entries under "egy"
// guarded by protocol tag "J05".
const (
	infoFrameCode     = "FFFF"
	energyFrameProto  = "J05"
	commandFrameProto = "J00"
)

type paramEntry struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

type pushEnvelope struct {
	Code string            `json:"code"`
	Ptn  string            `json:"ptn"`
	Enl  []paramEntry      `json:"enl"`
	Egy  []json.RawMessage `json:"egy"`
}

// energyKeys are the counter fields an energy frame may carry.
var energyKeys = []string{
	models.FieldGasConsumption,
	models.FieldSupplyTime,
	models.FieldPowerSupplyTime,
	models.FieldHeatingBurnTime,
	models.FieldHotWaterBurnTime,
	models.FieldHeatingBurnCount,
	models.FieldHotWaterBurnCnt,
}

// parseInfoPayload extracts the parameter map of an info frame. Frames with
// a foreign code or no parameters decode to an empty map, not an error.
func parseInfoPayload(payload []byte) (models.RawFields, error) {
	var envelope pushEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode info frame: %w", err)
	}
	if envelope.Code != infoFrameCode || len(envelope.Enl) == 0 {
		return nil, nil
	}

	fields := make(models.RawFields, len(envelope.Enl))
	for _, entry := range envelope.Enl {
		if entry.ID == "" || entry.Data == "" {
			continue
		}
		fields[entry.ID] = entry.Data
	}
	return fields, nil
}

// parseEnergyPayload extracts counter updates from an energy frame.
func parseEnergyPayload(payload []byte) (models.RawFields, error) {
	var envelope pushEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode energy frame: %w", err)
	}
	if envelope.Ptn != energyFrameProto || len(envelope.Egy) == 0 {
		return nil, nil
	}

	fields := make(models.RawFields)
	for _, raw := range envelope.Egy {
		var entry map[string]any
		if err := json.Unmarshal(raw, &entry); err != nil {
			// One malformed entry does not spoil the frame.
			continue
		}
		for _, key := range energyKeys {
			if v, ok := entry[key]; ok {
				if s := anyToString(v); s != "" {
					fields[key] = s
				}
			}
		}
	}
	return fields, nil
}

// commandEnvelope is the wire form of one command publish.
type commandEnvelope struct {
	Code string       `json:"code"`
	Enl  []paramEntry `json:"enl"`
	ID   string       `json:"id"`
	Ptn  string       `json:"ptn"`
	Sum  string       `json:"sum"`
}

// buildCommandPayload wraps the raw command fields in the vendor envelope,
// authenticated by the unit's auth code.
func buildCommandPayload(device models.Device, fields models.RawFields) ([]byte, error) {
	if len(fields) == 0 {
		return nil, errors.New("empty command")
	}
	entries := make([]paramEntry, 0, len(fields))
	for key, value := range fields {
		entries = append(entries, paramEntry{ID: key, Data: value})
	}
	return json.Marshal(commandEnvelope{
		Code: device.AuthCode,
		Enl:  entries,
		ID:   device.ClassID,
		Ptn:  commandFrameProto,
		Sum:  "1",
	})
}

func anyToString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}
