package service

import (
	"context"
	"fmt"
	"time"

	"rinnai_bridge/internal/models"
)

// DeviceSnapshot is the read view of one unit: identity, merged state and
// the derived climate values in one copy.
type DeviceSnapshot struct {
	Device models.Device      `json:"device"`
	State  models.DeviceState `json:"state"`

	Mode        models.PresetMode `json:"mode"`
	ModeDisplay string            `json:"mode_display"`
	HVACMode    models.HVACMode   `json:"hvac_mode"`
	HVACAction  models.HVACAction `json:"hvac_action"`
	TargetTemp  int               `json:"target_temp"`

	HasState  bool      `json:"has_state"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type MonitoringService struct {
	registry *Registry
}

func NewMonitoringService(registry *Registry) *MonitoringService {
	return &MonitoringService{registry: registry}
}

// GetDevice returns the snapshot for one unit.
func (s *MonitoringService) GetDevice(_ context.Context, deviceID string) (DeviceSnapshot, error) {
	device, state, ok := s.registry.Get(deviceID)
	if !ok {
		return DeviceSnapshot{}, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return s.snapshot(device, state, deviceID), nil
}

// ListDevices returns a snapshot per known unit, in stable id order.
func (s *MonitoringService) ListDevices(_ context.Context) []DeviceSnapshot {
	ids := s.registry.DeviceIDs()
	out := make([]DeviceSnapshot, 0, len(ids))
	for _, id := range ids {
		device, state, ok := s.registry.Get(id)
		if !ok {
			continue
		}
		out = append(out, s.snapshot(device, state, id))
	}
	return out
}

func (s *MonitoringService) snapshot(device models.Device, state models.DeviceState, deviceID string) DeviceSnapshot {
	display := ""
	if spec, ok := models.ModeSpec(state.Mode()); ok {
		display = spec.Display
	}
	return DeviceSnapshot{
		Device:      device,
		State:       state,
		Mode:        state.Mode(),
		ModeDisplay: display,
		HVACMode:    state.HVACMode(),
		HVACAction:  state.HVACAction(),
		TargetTemp:  state.TargetTemperature(),
		HasState:    s.registry.HasState(deviceID),
		UpdatedAt:   s.registry.UpdatedAt(deviceID),
	}
}
