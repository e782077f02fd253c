package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rinnai_bridge/internal/logger"
	"rinnai_bridge/internal/models"
	"rinnai_bridge/internal/transport"
)

// memCounterRepo is an in-memory CounterRepo safe for the reconciler's
// fire-and-forget saves.
type memCounterRepo struct {
	mu      sync.Mutex
	stored  map[string]models.EnergyCounters
	saves   int
	loadErr error
}

func newMemCounterRepo() *memCounterRepo {
	return &memCounterRepo{stored: make(map[string]models.EnergyCounters)}
}

func (m *memCounterRepo) Save(ctx context.Context, counters map[string]models.EnergyCounters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range counters {
		m.stored[k] = v
	}
	m.saves++
	return nil
}

func (m *memCounterRepo) Load(ctx context.Context) (map[string]models.EnergyCounters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(map[string]models.EnergyCounters, len(m.stored))
	for k, v := range m.stored {
		out[k] = v
	}
	return out, nil
}

func (m *memCounterRepo) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type reconcilerFixture struct {
	svc      *ReconcilerService
	tr       *fakeTransport
	registry *Registry
	counters *memCounterRepo
	events   *recordingEventRepo
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()

	tr := newFakeTransport()
	tr.list = []models.DeviceInfo{{
		ID: "dev-1", Name: "Heater", MAC: "AABBCCDDEEFF",
		AuthCode: "auth-1", ClassID: "class-1", OnlineMarker: "1",
	}}
	tr.states["dev-1"] = models.RawFields{
		models.FieldOperationMode: "3",
		models.FieldHeatingTempNM: "2D",
	}

	registry := NewRegistry(logger.Get(logger.ErrorLevel), NewNotifier())
	counters := newMemCounterRepo()
	events := &recordingEventRepo{}
	svc := NewReconcilerService(tr, registry, counters, events, logger.Get(logger.ErrorLevel), Config{})

	return &reconcilerFixture{svc: svc, tr: tr, registry: registry, counters: counters, events: events}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func TestCycle_Bootstrap(t *testing.T) {
	f := newReconcilerFixture(t)
	f.counters.stored["dev-1"] = models.EnergyCounters{HeatingBurningCount: 500}

	if err := f.svc.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	if f.tr.loginCalls != 1 {
		t.Fatalf("expected 1 login, got %d", f.tr.loginCalls)
	}
	if len(f.tr.subscribed) != 1 || f.tr.subscribed[0] != "dev-1" {
		t.Fatalf("expected push subscription for dev-1, got %v", f.tr.subscribed)
	}

	_, st, ok := f.registry.Get("dev-1")
	if !ok {
		t.Fatalf("device not registered")
	}
	if st.Mode() != models.ModeNormal || st.HeatingTargetTempNM != 45 {
		t.Fatalf("state not merged: %+v", st)
	}
	// Persisted counters restored before the first merge can lower them.
	if st.Counters.HeatingBurningCount != 500 {
		t.Fatalf("persisted counters not restored: %d", st.Counters.HeatingBurningCount)
	}
}

func TestCycle_Bootstrap_EmptyList(t *testing.T) {
	f := newReconcilerFixture(t)
	f.tr.list = nil

	err := f.svc.Cycle(context.Background())
	if !errors.Is(err, ErrEmptyDeviceList) {
		t.Fatalf("expected ErrEmptyDeviceList, got %v", err)
	}
}

func TestCycle_Bootstrap_LoginFailure(t *testing.T) {
	f := newReconcilerFixture(t)
	f.tr.loginErr = transport.ErrAuthFailed

	err := f.svc.Cycle(context.Background())
	if !errors.Is(err, transport.ErrAuthFailed) {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if len(f.tr.stateGets) != 0 {
		t.Fatalf("no fetch should happen after a failed login")
	}
}

func TestCycle_SteadyPoll_SkipsFreshDevices(t *testing.T) {
	f := newReconcilerFixture(t)

	if err := f.svc.Cycle(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	fetchesAfterBootstrap := len(f.tr.stateGets)

	// Second cycle: device state is fresh over HTTP, no re-fetch.
	if err := f.svc.Cycle(context.Background()); err != nil {
		t.Fatalf("steady cycle: %v", err)
	}
	if len(f.tr.stateGets) != fetchesAfterBootstrap {
		t.Fatalf("fresh device re-fetched: %v", f.tr.stateGets)
	}
	if f.tr.loginCalls != 2 {
		t.Fatalf("login must run each cycle, got %d", f.tr.loginCalls)
	}
}

func TestCycle_SteadyPoll_FetchFailureIsNotFatal(t *testing.T) {
	f := newReconcilerFixture(t)
	if err := f.svc.Cycle(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	f.tr.stateErr = errors.New("gateway timeout")
	f.svc.staleness = 0 // next cycle must re-fetch, and the fetch fails

	if err := f.svc.Cycle(context.Background()); err != nil {
		t.Fatalf("per-device failures must not abort the cycle: %v", err)
	}
}

func TestHandlePush_KnownDevice(t *testing.T) {
	f := newReconcilerFixture(t)
	if err := f.svc.Cycle(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	f.svc.handlePush(context.Background(), transport.PushMessage{
		DeviceID: "dev-1",
		Fields:   models.RawFields{models.FieldOperationMode: "B"},
	})

	_, st, _ := f.registry.Get("dev-1")
	if st.Mode() != models.ModeEnergySaving {
		t.Fatalf("push not merged, mode %v", st.Mode())
	}
	waitFor(t, func() bool { return f.counters.saveCount() > 0 }, "counters saved after push")
}

func TestHandlePush_UnknownDeviceSchedulesListRefresh(t *testing.T) {
	f := newReconcilerFixture(t)
	if err := f.svc.Cycle(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	f.svc.handlePush(context.Background(), transport.PushMessage{
		DeviceID: "dev-2",
		Fields:   models.RawFields{models.FieldOperationMode: "3"},
	})

	if !f.svc.needsList {
		t.Fatalf("unknown push must schedule a device list refresh")
	}
	select {
	case <-f.svc.refreshCh:
	default:
		t.Fatalf("expected a pending out-of-band refresh")
	}

	// The scheduled cycle picks up the new device.
	f.tr.list = append(f.tr.list, models.DeviceInfo{ID: "dev-2", OnlineMarker: "1"})
	f.tr.states["dev-2"] = models.RawFields{models.FieldOperationMode: "3"}
	if err := f.svc.Cycle(context.Background()); err != nil {
		t.Fatalf("refresh cycle: %v", err)
	}
	if _, _, ok := f.registry.Get("dev-2"); !ok {
		t.Fatalf("device list refresh did not register dev-2")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newReconcilerFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	waitFor(t, func() bool { return f.registry.HasState("dev-1") }, "bootstrap cycle ran")
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}

func TestCycleError_Audited(t *testing.T) {
	f := newReconcilerFixture(t)
	f.tr.list = nil

	err := f.svc.Cycle(context.Background())
	if err == nil {
		t.Fatalf("expected bootstrap error")
	}
	f.svc.logCycleError(context.Background(), err)

	if len(f.events.appended) != 1 || f.events.appended[0].Type != models.EventCycleError {
		t.Fatalf("expected one CYCLE_ERROR event, got %+v", f.events.appended)
	}
}
