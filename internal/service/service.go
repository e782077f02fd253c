package service

import (
	"context"
	"time"

	"rinnai_bridge/internal/models"
	"rinnai_bridge/internal/repository"
	"rinnai_bridge/internal/transport"

	"rinnai_bridge/internal/logger"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Climate exposes control operations: preset mode, heat/off and the two
// setpoints.
type Climate interface {
	SetPresetMode(ctx context.Context, deviceID, display string) error
	SetHVACMode(ctx context.Context, deviceID string, mode models.HVACMode) error
	SetTargetTemperature(ctx context.Context, deviceID string, celsius int) error
	SetHotWaterTemperature(ctx context.Context, deviceID string, celsius int) error
}

// Monitoring exposes read-only device snapshots.
type Monitoring interface {
	GetDevice(ctx context.Context, deviceID string) (DeviceSnapshot, error)
	ListDevices(ctx context.Context) []DeviceSnapshot
}

// EventLog exposes the append-only audit log with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.Event, error)
}

// Reconciler runs the background poll/push loop that keeps the registry
// current. Stop via context cancellation in main() for graceful shutdown.
type Reconciler interface {
	Run(ctx context.Context) error
	RequestRefresh()
}

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "COMMAND_SENT", "COMMAND_CONFIRMED", "COMMAND_FAILED", "CYCLE_ERROR"
}

// Config carries the service-level tuning knobs from the config file.
type Config struct {
	// PollInterval is the steady-poll period; clamped to [1m, 1h].
	PollInterval time.Duration
	// Staleness forces an HTTP re-fetch for devices whose last HTTP-derived
	// state is older than this.
	Staleness time.Duration
	// SettleDelay is the pause after a precondition mode switch.
	SettleDelay time.Duration
	// AuthSigningKey signs API tokens.
	AuthSigningKey string
}

//
// Root Service aggregates all sub-services.
//

type Service struct {
	Climate
	Monitoring
	EventLog
	Reconciler
	Authorization

	// Changes signals state-changed to live subscribers (websocket).
	Changes *Notifier
}

// NewService wires the repository layer and the vendor transport into the
// concrete services. The registry is shared: the reconciler writes to it,
// the sequencer reads and optimistically updates it, monitoring reads it.
func NewService(repos *repository.Repository, tr transport.Transport, log *logger.Logger, cfg Config) *Service {
	notifier := NewNotifier()
	registry := NewRegistry(log, notifier)
	reconciler := NewReconcilerService(tr, registry, repos.Counters, repos.Events, log, cfg)

	return &Service{
		Climate:       NewClimateService(tr, registry, reconciler, repos.Events, log, cfg),
		Monitoring:    NewMonitoringService(registry),
		EventLog:      NewEventLogService(repos.Events),
		Reconciler:    reconciler,
		Authorization: NewAuthService(repos.Auth, cfg.AuthSigningKey),
		Changes:       notifier,
	}
}
