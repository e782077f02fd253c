package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rinnai_bridge/internal/logger"
	"rinnai_bridge/internal/models"
	"rinnai_bridge/internal/repository"
	"rinnai_bridge/internal/transport"
)

const (
	defaultPollInterval = 5 * time.Minute
	minPollInterval     = time.Minute
	maxPollInterval     = time.Hour

	defaultStaleness = time.Hour
)

// ErrEmptyDeviceList marks a bootstrap cycle that found no devices on the
// account. Retryable: the next cycle starts over.
var ErrEmptyDeviceList = errors.New("vendor device list is empty")

// ReconcilerService keeps the registry in sync with the vendor cloud. One
// goroutine owns the loop; pushes, ticks and refresh requests all funnel
// through its select, so merges per cycle happen in arrival order.
type ReconcilerService struct {
	tr       transport.Transport
	registry *Registry
	counters repository.CounterRepo
	events   repository.EventRepo
	log      *logger.Logger

	interval  time.Duration
	staleness time.Duration

	// refreshCh coalesces out-of-band refresh requests into one pending.
	refreshCh chan struct{}

	bootstrapped bool
	needsList    bool
}

func NewReconcilerService(tr transport.Transport, registry *Registry, counters repository.CounterRepo, events repository.EventRepo, log *logger.Logger, cfg Config) *ReconcilerService {
	interval := cfg.PollInterval
	if interval == 0 {
		interval = defaultPollInterval
	}
	if interval < minPollInterval {
		interval = minPollInterval
	}
	if interval > maxPollInterval {
		interval = maxPollInterval
	}
	staleness := cfg.Staleness
	if staleness == 0 {
		staleness = defaultStaleness
	}

	return &ReconcilerService{
		tr:        tr,
		registry:  registry,
		counters:  counters,
		events:    events,
		log:       log,
		interval:  interval,
		staleness: staleness,
		refreshCh: make(chan struct{}, 1),
	}
}

// RequestRefresh schedules an out-of-band cycle. Non-blocking; a request
// while one is already pending is absorbed.
func (s *ReconcilerService) RequestRefresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

// Run executes cycles until ctx is canceled. Every cycle error is
// retryable; the next tick tries again from scratch.
func (s *ReconcilerService) Run(ctx context.Context) error {
	if err := s.Cycle(ctx); err != nil {
		s.logCycleError(ctx, err)
	}

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := s.Cycle(ctx); err != nil {
				s.logCycleError(ctx, err)
			}
		case <-s.refreshCh:
			if err := s.Cycle(ctx); err != nil {
				s.logCycleError(ctx, err)
			}
		case msg, ok := <-s.tr.Pushes():
			if !ok {
				return errors.New("push channel closed")
			}
			s.handlePush(ctx, msg)
		}
	}
}

// Cycle runs one reconciliation pass: bootstrap on the first call or while
// no devices are known, steady poll afterwards.
func (s *ReconcilerService) Cycle(ctx context.Context) error {
	if err := s.tr.Login(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if !s.bootstrapped || len(s.registry.DeviceIDs()) == 0 {
		if err := s.bootstrap(ctx); err != nil {
			return err
		}
		s.bootstrapped = true
		s.registry.notifier.Notify()
		s.logDeviceStates()
		return nil
	}

	if s.needsList {
		if err := s.refreshDeviceList(ctx); err != nil {
			s.log.Warnw("device list refresh failed", "error", err)
		} else {
			s.needsList = false
		}
	}

	now := time.Now().UTC()
	for _, id := range s.registry.DeviceIDs() {
		if !s.registry.NeedsFetch(id, s.staleness, now) {
			continue
		}
		if err := s.fetchDevice(ctx, id); err != nil {
			s.log.Warnw("device state fetch failed", "device_id", id, "error", err)
		}
	}

	s.saveCounters()
	s.registry.notifier.Notify()
	s.logDeviceStates()
	return nil
}

// bootstrap logs in, loads the device list and reads every device once.
// Individual device failures are logged and skipped.
func (s *ReconcilerService) bootstrap(ctx context.Context) error {
	if err := s.refreshDeviceList(ctx); err != nil {
		return err
	}

	ids := s.registry.DeviceIDs()
	if len(ids) == 0 {
		return ErrEmptyDeviceList
	}

	if saved, err := s.counters.Load(ctx); err != nil {
		s.log.Warnw("persisted counters load failed", "error", err)
	} else {
		s.registry.RestoreCounters(saved)
	}

	for _, id := range ids {
		if err := s.fetchDevice(ctx, id); err != nil {
			s.log.Warnw("bootstrap state fetch failed", "device_id", id, "error", err)
		}
	}
	return nil
}

func (s *ReconcilerService) refreshDeviceList(ctx context.Context) error {
	list, err := s.tr.FetchDeviceList(ctx)
	if err != nil {
		return fmt.Errorf("fetch device list: %w", err)
	}
	s.registry.UpsertFromDeviceList(list)

	for _, id := range s.registry.DeviceIDs() {
		device, _, ok := s.registry.Get(id)
		if !ok {
			continue
		}
		if err := s.tr.SubscribeDevice(device); err != nil {
			s.log.Warnw("push subscribe failed", "device_id", id, "error", err)
		}
	}
	return nil
}

func (s *ReconcilerService) fetchDevice(ctx context.Context, deviceID string) error {
	raw, err := s.tr.FetchDeviceState(ctx, deviceID)
	if err != nil {
		return err
	}
	return s.registry.MergeFetchedState(deviceID, raw)
}

// handlePush merges one push frame. Unknown devices schedule a list
// refresh for the next cycle instead of failing.
func (s *ReconcilerService) handlePush(ctx context.Context, msg transport.PushMessage) {
	if len(msg.Fields) == 0 {
		return
	}
	err := s.registry.MergeDeviceState(msg.DeviceID, msg.Fields)
	if errors.Is(err, ErrUnknownDevice) {
		s.needsList = true
		s.RequestRefresh()
		return
	}
	s.saveCounters()
}

// saveCounters persists the counters snapshot without holding up the loop.
func (s *ReconcilerService) saveCounters() {
	snapshot := s.registry.CountersSnapshot()
	if len(snapshot) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.counters.Save(ctx, snapshot); err != nil {
			s.log.Warnw("counters snapshot save failed", "error", err)
		}
	}()
}

func (s *ReconcilerService) logCycleError(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.log.Errorw("reconciliation cycle failed", "error", err)
	if appendErr := s.events.Append(ctx, models.Event{
		Type:        models.EventCycleError,
		Description: err.Error(),
	}); appendErr != nil {
		s.log.Warnw("cycle error event append failed", "error", appendErr)
	}
}

// logDeviceStates emits one debug summary line per device after a cycle.
func (s *ReconcilerService) logDeviceStates() {
	for _, id := range s.registry.DeviceIDs() {
		device, st, ok := s.registry.Get(id)
		if !ok || !s.registry.HasState(id) {
			continue
		}
		s.log.Debugw("device state",
			"device_id", id,
			"name", device.Name,
			"online", device.Online,
			"mode", st.Mode(),
			"burning", st.BurningState,
			"target_temp", st.TargetTemperature(),
		)
	}
}
