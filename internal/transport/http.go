package transport

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"rinnai_bridge/internal/logger"
	"rinnai_bridge/internal/models"
)

// accessKey is the key built into the vendor's own mobile app; the HTTP API
// rejects logins without it.
const accessKey = "A39C66706B83CCF0C0EE3CB23A39454D"

const (
	loginPath       = "/V1/login"
	deviceListPath  = "/V1/device/list"
	deviceStatePath = "/V1/device/processParameter"
)

// Client talks to the vendor cloud over HTTP and MQTT. It satisfies
// Transport.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger

	// passwordHash is the uppercase MD5 digest the vendor expects in place
	// of the plain password, on both channels.
	passwordHash string

	loginMu   sync.Mutex
	token     string
	lastLogin time.Time

	push *pushClient
}

// NewClient builds a vendor cloud client. The MQTT session is established
// lazily on the first subscribe.
func NewClient(cfg Config, log *logger.Logger) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: cfg.ConnectTimeout},
		log:          log,
		passwordHash: hashPassword(cfg.Password),
	}
	c.push = newPushClient(cfg, c.passwordHash, log)
	return c
}

func hashPassword(password string) string {
	return strings.ToUpper(fmt.Sprintf("%x", md5.Sum([]byte(password))))
}

// apiResponse is the generic vendor HTTP envelope.
type apiResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// Login fetches a bearer token unless a cached one is still inside the
// refresh window. Concurrent cycles share the lock so only one login runs.
func (c *Client) Login(ctx context.Context) error {
	_, err := c.login(ctx)
	return err
}

// login returns the token from inside the critical section, so a caller
// always gets the token of the login it just went through, not whatever a
// concurrent refresh put there afterwards.
func (c *Client) login(ctx context.Context) (string, error) {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	if c.token != "" && time.Since(c.lastLogin) < c.cfg.TokenTTL {
		return c.token, nil
	}

	params := url.Values{}
	params.Set("username", c.cfg.Username)
	params.Set("password", c.passwordHash)
	params.Set("accessKey", accessKey)
	params.Set("appType", "2")
	params.Set("appVersion", "1.0.0")
	params.Set("identityLevel", "0")

	var data struct {
		Token string `json:"token"`
	}
	if err := c.getJSON(ctx, loginPath, params, "", &data); err != nil {
		return "", err
	}
	if data.Token == "" {
		return "", fmt.Errorf("%w: empty token", ErrAuthFailed)
	}

	c.token = data.Token
	c.lastLogin = time.Now()
	c.log.Debugw("vendor_login_ok", "username", c.cfg.Username)
	return c.token, nil
}

// FetchDeviceList returns the account's units.
func (c *Client) FetchDeviceList(ctx context.Context) ([]models.DeviceInfo, error) {
	token, err := c.currentToken(ctx)
	if err != nil {
		return nil, err
	}

	var data struct {
		List []models.DeviceInfo `json:"list"`
	}
	if err := c.getJSON(ctx, deviceListPath, nil, token, &data); err != nil {
		return nil, fmt.Errorf("fetch device list: %w", err)
	}
	return data.List, nil
}

// FetchDeviceState pulls the full raw parameter map of one unit.
func (c *Client) FetchDeviceState(ctx context.Context, deviceID string) (models.RawFields, error) {
	token, err := c.currentToken(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("deviceId", deviceID)

	var data map[string]any
	if err := c.getJSON(ctx, deviceStatePath, params, token, &data); err != nil {
		return nil, fmt.Errorf("fetch state for %s: %w", deviceID, err)
	}
	return stringifyFields(data), nil
}

// SendCommand publishes the command over the push channel's set topic.
func (c *Client) SendCommand(ctx context.Context, device models.Device, fields models.RawFields) error {
	return c.push.sendCommand(ctx, device, fields)
}

// SubscribeDevice registers the unit's info and energy push topics.
func (c *Client) SubscribeDevice(device models.Device) error {
	return c.push.subscribeDevice(device)
}

// Pushes returns the decoded push-update stream.
func (c *Client) Pushes() <-chan PushMessage {
	return c.push.messages
}

// Close tears down the MQTT session.
func (c *Client) Close(ctx context.Context) error {
	c.push.close()
	return nil
}

// currentToken logs in if needed and returns the bearer token.
func (c *Client) currentToken(ctx context.Context) (string, error) {
	return c.login(ctx)
}

// getJSON performs one GET against the API, checks the success envelope and
// unmarshals the data payload into out.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, token string, out any) error {
	endpoint := c.cfg.APIBase + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("vendor API status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !envelope.Success {
		if path == loginPath {
			return fmt.Errorf("%w: %s", ErrAuthFailed, envelope.Msg)
		}
		return fmt.Errorf("vendor API error: %s", envelope.Msg)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// stringifyFields flattens a decoded JSON object into the wire map. The API
// mixes string and numeric values for the same fields across firmwares.
func stringifyFields(data map[string]any) models.RawFields {
	out := make(models.RawFields, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			if val == float64(int64(val)) {
				out[k] = strconv.FormatInt(int64(val), 10)
			} else {
				out[k] = strconv.FormatFloat(val, 'f', -1, 64)
			}
		case bool:
			out[k] = strconv.FormatBool(val)
		case nil:
			// skip
		default:
			if b, err := json.Marshal(val); err == nil {
				out[k] = string(b)
			}
		}
	}
	return out
}
