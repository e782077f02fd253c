package service

import (
	"errors"
	"sort"
	"sync"
	"time"

	"rinnai_bridge/internal/logger"
	"rinnai_bridge/internal/models"
)

// ErrUnknownDevice is returned for ids that never appeared in a device
// list. Push frames can arrive for such ids when the list is stale.
var ErrUnknownDevice = errors.New("unknown device")

// deviceEntry is one registry slot. Its mutex serializes all state
// mutation for the device; merges apply in lock-acquisition order.
type deviceEntry struct {
	mu sync.Mutex

	device models.Device
	state  models.DeviceState

	hasState      bool
	lastHTTPFetch time.Time
	updatedAt     time.Time
}

// Registry holds every known device and its merged state. The outer RWMutex
// only guards the map; per-device mutation goes through the entry mutex.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*deviceEntry

	log      *logger.Logger
	notifier *Notifier
}

func NewRegistry(log *logger.Logger, notifier *Notifier) *Registry {
	return &Registry{
		devices:  make(map[string]*deviceEntry),
		log:      log,
		notifier: notifier,
	}
}

// UpsertFromDeviceList creates missing entries and overwrites metadata on
// existing ones. Devices are never removed during a session; a unit that
// drops out of the list just stops getting updates.
func (r *Registry) UpsertFromDeviceList(list []models.DeviceInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, info := range list {
		if info.ID == "" {
			r.log.Warnw("device list record without id, skipped", "name", info.Name)
			continue
		}
		entry, ok := r.devices[info.ID]
		if !ok {
			entry = &deviceEntry{device: models.Device{ID: info.ID}}
			r.devices[info.ID] = entry
		}
		entry.mu.Lock()
		entry.device.ApplyInfo(info)
		entry.mu.Unlock()
	}
}

func (r *Registry) entry(deviceID string) (*deviceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.devices[deviceID]
	return e, ok
}

// MergeDeviceState folds a raw update (push origin) into a device's state.
// Unknown ids are reported to the caller; a device list refresh is the
// caller's concern.
func (r *Registry) MergeDeviceState(deviceID string, raw models.RawFields) error {
	return r.merge(deviceID, raw, false)
}

// MergeFetchedState folds a raw update obtained over HTTP and records the
// fetch time for the staleness check.
func (r *Registry) MergeFetchedState(deviceID string, raw models.RawFields) error {
	return r.merge(deviceID, raw, true)
}

func (r *Registry) merge(deviceID string, raw models.RawFields, fromHTTP bool) error {
	entry, ok := r.entry(deviceID)
	if !ok {
		r.log.Warnw("state update for unknown device dropped", "device_id", deviceID)
		return ErrUnknownDevice
	}

	entry.mu.Lock()
	fieldErrs := entry.state.MergeRaw(raw)
	entry.hasState = true
	entry.updatedAt = time.Now().UTC()
	if fromHTTP {
		entry.lastHTTPFetch = entry.updatedAt
	}
	entry.mu.Unlock()

	for _, fe := range fieldErrs {
		r.log.Warnw("undecodable field skipped",
			"device_id", deviceID, "field", fe.Field, "value", fe.Value, "error", fe.Err)
	}

	r.notifier.Notify()
	return nil
}

// ApplyCommandEffect runs an optimistic mutation for a confirmed command
// under the device lock and publishes the change. Unknown ids are a no-op;
// the command already went out, there is just nothing local to update.
func (r *Registry) ApplyCommandEffect(deviceID string, apply func(*models.DeviceState)) {
	entry, ok := r.entry(deviceID)
	if !ok {
		return
	}
	entry.mu.Lock()
	apply(&entry.state)
	entry.hasState = true
	entry.updatedAt = time.Now().UTC()
	entry.mu.Unlock()

	r.notifier.Notify()
}

// Get returns a copy of the device record and its state. The bool reports
// whether the id is known; HasState on the snapshot tells whether any
// update was merged yet.
func (r *Registry) Get(deviceID string) (models.Device, models.DeviceState, bool) {
	entry, ok := r.entry(deviceID)
	if !ok {
		return models.Device{}, models.DeviceState{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	st := entry.state
	st.RawFields = entry.state.RawFields.Clone()
	return entry.device, st, true
}

// HasState reports whether any update has been merged for the device.
func (r *Registry) HasState(deviceID string) bool {
	entry, ok := r.entry(deviceID)
	if !ok {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.hasState
}

// UpdatedAt returns the time of the last merge for the device.
func (r *Registry) UpdatedAt(deviceID string) time.Time {
	entry, ok := r.entry(deviceID)
	if !ok {
		return time.Time{}
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.updatedAt
}

// NeedsFetch reports whether the device should be re-read over HTTP: no
// state yet, or the last HTTP-derived state is older than maxAge.
func (r *Registry) NeedsFetch(deviceID string, maxAge time.Duration, now time.Time) bool {
	entry, ok := r.entry(deviceID)
	if !ok {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.hasState {
		return true
	}
	return now.Sub(entry.lastHTTPFetch) > maxAge
}

// DeviceIDs returns the known ids in stable order.
func (r *Registry) DeviceIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// RestoreCounters seeds persisted counters into matching devices. Run once
// at startup after the first device list, before steady polling.
func (r *Registry) RestoreCounters(saved map[string]models.EnergyCounters) {
	for deviceID, counters := range saved {
		entry, ok := r.entry(deviceID)
		if !ok {
			continue
		}
		entry.mu.Lock()
		entry.state.RestoreCounters(counters)
		entry.mu.Unlock()
	}
}

// CountersSnapshot exports the current counters of every device that has
// state, for persistence.
func (r *Registry) CountersSnapshot() map[string]models.EnergyCounters {
	out := make(map[string]models.EnergyCounters)
	for _, id := range r.DeviceIDs() {
		entry, ok := r.entry(id)
		if !ok {
			continue
		}
		entry.mu.Lock()
		if entry.hasState {
			out[id] = entry.state.Counters
		}
		entry.mu.Unlock()
	}
	return out
}
