package handlers

import (
	"context"
	"net/http"
	"time"

	"rinnai_bridge/internal/models"
	"rinnai_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockClimate struct {
	presetErr   error
	hvacErr     error
	tempErr     error
	hotWaterErr error

	lastDeviceID string
	lastPreset   string
	lastHVAC     models.HVACMode
	lastCelsius  int
	lastHotWater int

	presetCalls   int
	hvacCalls     int
	tempCalls     int
	hotWaterCalls int
}

func (m *mockClimate) SetPresetMode(ctx context.Context, deviceID, display string) error {
	m.presetCalls++
	m.lastDeviceID = deviceID
	m.lastPreset = display
	return m.presetErr
}
func (m *mockClimate) SetHVACMode(ctx context.Context, deviceID string, mode models.HVACMode) error {
	m.hvacCalls++
	m.lastDeviceID = deviceID
	m.lastHVAC = mode
	return m.hvacErr
}
func (m *mockClimate) SetTargetTemperature(ctx context.Context, deviceID string, celsius int) error {
	m.tempCalls++
	m.lastDeviceID = deviceID
	m.lastCelsius = celsius
	return m.tempErr
}
func (m *mockClimate) SetHotWaterTemperature(ctx context.Context, deviceID string, celsius int) error {
	m.hotWaterCalls++
	m.lastDeviceID = deviceID
	m.lastHotWater = celsius
	return m.hotWaterErr
}

type mockMonitoring struct {
	snapshots []service.DeviceSnapshot
	getErr    error
}

func (m *mockMonitoring) GetDevice(ctx context.Context, deviceID string) (service.DeviceSnapshot, error) {
	if m.getErr != nil {
		return service.DeviceSnapshot{}, m.getErr
	}
	for _, s := range m.snapshots {
		if s.Device.ID == deviceID {
			return s, nil
		}
	}
	return service.DeviceSnapshot{}, service.ErrUnknownDevice
}
func (m *mockMonitoring) ListDevices(ctx context.Context) []service.DeviceSnapshot {
	return m.snapshots
}

type mockEventLog struct {
	resp     []models.Event
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.Event, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	if s.Changes == nil {
		s.Changes = service.NewNotifier()
	}
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
