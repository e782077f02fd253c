// Package transport implements the vendor cloud boundary: the polled HTTP
// API (authoritative, slow) and the MQTT push feed (fast, partial). The
// reconciliation layer only depends on the Transport interface.
package transport

import (
	"context"
	"errors"
	"time"

	"rinnai_bridge/internal/models"
)

// PushMessage is one decoded push-channel update, delivered over a channel
// to a single consumer instead of per-topic callbacks.
type PushMessage struct {
	DeviceID string
	Fields   models.RawFields
}

// Transport is the abstract vendor-cloud contract the core depends on.
type Transport interface {
	// Login authenticates against the HTTP API. Idempotent: a cached token
	// is reused until the refresh window expires.
	Login(ctx context.Context) error
	FetchDeviceList(ctx context.Context) ([]models.DeviceInfo, error)
	FetchDeviceState(ctx context.Context, deviceID string) (models.RawFields, error)
	// SendCommand publishes a command at least once; a nil return means the
	// broker accepted it.
	SendCommand(ctx context.Context, device models.Device, fields models.RawFields) error
	// SubscribeDevice registers the push topics of one unit.
	SubscribeDevice(device models.Device) error
	// Pushes is the stream of decoded push updates for all subscribed units.
	Pushes() <-chan PushMessage
	Close(ctx context.Context) error
}

// ErrAuthFailed marks an explicit authentication failure from the vendor
// API, as opposed to a transient transport error.
var ErrAuthFailed = errors.New("vendor API authentication failed")

// Config carries the vendor account and tuning knobs.
type Config struct {
	Username string
	Password string

	// APIBase is the HTTP API root, e.g. https://iot.rinnai.com.cn/app.
	APIBase string
	// BrokerURL is the MQTT endpoint, e.g. ssl://mqtt.rinnai.com.cn:8883.
	BrokerURL string

	ConnectTimeout time.Duration
	// TokenTTL is the login refresh window; default 24h.
	TokenTTL time.Duration
}

const (
	defaultConnectTimeout = 30 * time.Second
	defaultTokenTTL       = 24 * time.Hour

	minConnectTimeout = 10 * time.Second
	maxConnectTimeout = 60 * time.Second
)

// withDefaults clamps timeouts into their allowed range and fills defaults.
func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ConnectTimeout < minConnectTimeout {
		c.ConnectTimeout = minConnectTimeout
	}
	if c.ConnectTimeout > maxConnectTimeout {
		c.ConnectTimeout = maxConnectTimeout
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = defaultTokenTTL
	}
	return c
}
