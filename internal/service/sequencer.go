package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rinnai_bridge/internal/decode"
	"rinnai_bridge/internal/logger"
	"rinnai_bridge/internal/models"
	"rinnai_bridge/internal/repository"
	"rinnai_bridge/internal/transport"

	"github.com/google/uuid"
)

const defaultSettleDelay = 2 * time.Second

var (
	ErrUnknownMode       = errors.New("unknown preset mode")
	ErrTempOutOfRange    = fmt.Errorf("target temperature outside [%d, %d]", models.MinTemp, models.MaxTemp)
	ErrTempNotAdjustable = errors.New("current mode does not accept a target temperature")
)

// Refresher schedules an out-of-band reconciliation cycle.
type Refresher interface {
	RequestRefresh()
}

// ClimateService turns user intents into ordered wire commands. Every
// command runs the Sent -> Confirmed | Failed state machine; local state
// is only touched on Confirmed, so a failed send never changes what the
// user sees.
type ClimateService struct {
	tr        transport.Transport
	registry  *Registry
	refresher Refresher
	events    repository.EventRepo
	log       *logger.Logger

	settle time.Duration
}

func NewClimateService(tr transport.Transport, registry *Registry, refresher Refresher, events repository.EventRepo, log *logger.Logger, cfg Config) *ClimateService {
	settle := cfg.SettleDelay
	if settle == 0 {
		settle = defaultSettleDelay
	}
	return &ClimateService{
		tr:        tr,
		registry:  registry,
		refresher: refresher,
		events:    events,
		log:       log,
		settle:    settle,
	}
}

// SetPresetMode switches the unit to the mode named by its display string.
// Modes with a normal-mode precondition get the preliminary switch and a
// settle pause first; if that preliminary command fails the whole
// operation aborts.
func (s *ClimateService) SetPresetMode(ctx context.Context, deviceID, display string) error {
	target, ok := models.ModeSpecByDisplay(display)
	if !ok {
		s.log.Warnw("unknown preset mode requested", "device_id", deviceID, "mode", display)
		return fmt.Errorf("%w: %q", ErrUnknownMode, display)
	}

	if target.Mode == models.ModeStandby {
		return s.SetHVACMode(ctx, deviceID, models.HVACOff)
	}

	device, state, err := s.freshState(ctx, deviceID)
	if err != nil {
		return err
	}
	current := state.Mode()

	if target.RequiresNormal && current != models.ModeNormal && state.HVACMode() == models.HVACOff {
		if err := s.switchToNormal(ctx, device); err != nil {
			s.log.Warnw("preliminary normal-mode switch failed, aborting",
				"device_id", deviceID, "target", target.Mode, "error", err)
			return err
		}
		if err := s.waitSettle(ctx); err != nil {
			return err
		}
		current = models.ModeNormal
	}

	if current == target.Mode {
		return nil
	}

	// Switching back to normal from an active mode toggles the current
	// mode's own control instead of sending a distinct normal command.
	// Observed unit behavior, keep as is.
	command, value := target.Command, target.Value
	if target.Mode == models.ModeNormal && current != models.ModeStandby {
		if cur, ok := models.ModeSpec(current); ok {
			command, value = cur.Command, cur.Value
		}
	}

	err = s.sendCommand(ctx, device, models.RawFields{command: value},
		fmt.Sprintf("preset mode -> %s", target.Mode))
	if err != nil {
		return err
	}

	s.registry.ApplyCommandEffect(deviceID, func(st *models.DeviceState) {
		st.OperationModeCode = target.Codes[0]
	})
	s.refresher.RequestRefresh()
	return nil
}

// SetHVACMode handles the coarse heat/off intent.
func (s *ClimateService) SetHVACMode(ctx context.Context, deviceID string, mode models.HVACMode) error {
	device, state, err := s.freshState(ctx, deviceID)
	if err != nil {
		return err
	}
	standby := state.Mode() == models.ModeStandby

	switch mode {
	case models.HVACHeat:
		if !standby {
			return nil
		}
		if err := s.switchToNormal(ctx, device); err != nil {
			return err
		}
	case models.HVACOff:
		if standby {
			return nil
		}
		off, _ := models.ModeSpec(models.ModeStandby)
		err := s.sendCommand(ctx, device, models.RawFields{off.Command: off.Value}, "hvac -> off")
		if err != nil {
			return err
		}
		s.registry.ApplyCommandEffect(deviceID, func(st *models.DeviceState) {
			st.OperationModeCode = off.Codes[0]
		})
	default:
		return fmt.Errorf("%w: unsupported hvac mode %q", ErrUnknownMode, mode)
	}

	s.refresher.RequestRefresh()
	return nil
}

// SetTargetTemperature writes the heating setpoint for the current mode.
func (s *ClimateService) SetTargetTemperature(ctx context.Context, deviceID string, celsius int) error {
	if celsius < models.MinTemp || celsius > models.MaxTemp {
		s.log.Warnw("target temperature rejected",
			"device_id", deviceID, "celsius", celsius)
		return ErrTempOutOfRange
	}

	device, state, err := s.freshState(ctx, deviceID)
	if err != nil {
		return err
	}

	mode := state.Mode()
	if mode == models.ModeStandby || mode == models.ModeOutdoor {
		s.log.Warnw("target temperature rejected for current mode",
			"device_id", deviceID, "mode", mode)
		return ErrTempNotAdjustable
	}

	field := models.FieldHeatingTempNM
	if mode == models.ModeEnergySaving {
		field = models.FieldHeatingTempHES
	}

	err = s.sendCommand(ctx, device, models.RawFields{field: decode.EncodeTemp(celsius)},
		fmt.Sprintf("target temperature -> %d", celsius))
	if err != nil {
		return err
	}

	s.registry.ApplyCommandEffect(deviceID, func(st *models.DeviceState) {
		if field == models.FieldHeatingTempHES {
			st.HeatingTargetTempHES = celsius
		} else {
			st.HeatingTargetTempNM = celsius
		}
	})
	s.refresher.RequestRefresh()
	return nil
}

// SetHotWaterTemperature writes the hot water setpoint. Unlike the heating
// setpoint it is independent of the heating mode, so only the range gates
// it.
func (s *ClimateService) SetHotWaterTemperature(ctx context.Context, deviceID string, celsius int) error {
	if celsius < models.MinTemp || celsius > models.MaxTemp {
		s.log.Warnw("hot water temperature rejected",
			"device_id", deviceID, "celsius", celsius)
		return ErrTempOutOfRange
	}

	device, _, err := s.freshState(ctx, deviceID)
	if err != nil {
		return err
	}

	err = s.sendCommand(ctx, device, models.RawFields{models.FieldHotWaterTemp: decode.EncodeTemp(celsius)},
		fmt.Sprintf("hot water temperature -> %d", celsius))
	if err != nil {
		return err
	}

	s.registry.ApplyCommandEffect(deviceID, func(st *models.DeviceState) {
		st.HotWaterTargetTemp = celsius
	})
	s.refresher.RequestRefresh()
	return nil
}

// switchToNormal sends the normal-mode command and optimistically records
// the new mode on success.
func (s *ClimateService) switchToNormal(ctx context.Context, device models.Device) error {
	normal, _ := models.ModeSpec(models.ModeNormal)
	err := s.sendCommand(ctx, device, models.RawFields{normal.Command: normal.Value}, "preset mode -> normal")
	if err != nil {
		return err
	}
	s.registry.ApplyCommandEffect(device.ID, func(st *models.DeviceState) {
		st.OperationModeCode = normal.Codes[0]
	})
	return nil
}

// freshState re-reads the device over HTTP before acting so the decision
// is not based on a stale snapshot. A failed read falls back to the
// cached state with a warning.
func (s *ClimateService) freshState(ctx context.Context, deviceID string) (models.Device, models.DeviceState, error) {
	if _, _, ok := s.registry.Get(deviceID); !ok {
		return models.Device{}, models.DeviceState{}, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	raw, err := s.tr.FetchDeviceState(ctx, deviceID)
	if err != nil {
		s.log.Warnw("fresh state read failed, using cached state",
			"device_id", deviceID, "error", err)
	} else if err := s.registry.MergeFetchedState(deviceID, raw); err != nil {
		return models.Device{}, models.DeviceState{}, err
	}

	device, state, _ := s.registry.Get(deviceID)
	return device, state, nil
}

// sendCommand runs one command through its state machine and the audit
// log. The caller applies the optimistic effect only when this returns
// nil.
func (s *ClimateService) sendCommand(ctx context.Context, device models.Device, fields models.RawFields, what string) error {
	cmd := models.Command{
		ID:       uuid.NewString(),
		DeviceID: device.ID,
		Fields:   fields,
		Status:   models.CommandSent,
		SentAt:   time.Now().UTC(),
	}
	s.appendEvent(ctx, models.EventCommandSent, device.ID, what, cmd)

	if err := s.tr.SendCommand(ctx, device, fields); err != nil {
		cmd.Fail(time.Now())
		s.appendEvent(ctx, models.EventCommandFailed, device.ID, what, cmd)
		s.log.Warnw("command send failed", "device_id", device.ID, "command", what, "error", err)
		return err
	}

	cmd.Confirm(time.Now())
	s.appendEvent(ctx, models.EventCommandConfirmed, device.ID, what, cmd)
	return nil
}

func (s *ClimateService) appendEvent(ctx context.Context, typ, deviceID, what string, cmd models.Command) {
	err := s.events.Append(ctx, models.Event{
		Type:        typ,
		DeviceID:    deviceID,
		Description: what,
		Metadata: map[string]any{
			"command_id": cmd.ID,
			"fields":     cmd.Fields,
			"status":     cmd.Status,
		},
	})
	if err != nil {
		s.log.Warnw("audit event append failed", "type", typ, "error", err)
	}
}

func (s *ClimateService) waitSettle(ctx context.Context) error {
	t := time.NewTimer(s.settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
