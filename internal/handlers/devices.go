package handlers

import (
	"errors"
	"net/http"

	"rinnai_bridge/internal/models"
	"rinnai_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK      = "ok"
	statusApplied = "applied"

	errGetDevice       = "failed to load device"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// commandStatus maps a sequencer error to the response code: validation
// errors are the caller's fault, unknown devices are 404, everything else
// is an upstream failure.
func commandStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUnknownMode),
		errors.Is(err, service.ErrTempOutOfRange),
		errors.Is(err, service.ErrTempNotAdjustable):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// Respond with a status and the device's fresh snapshot (best-effort).
func (h *Handler) respondWithSnapshot(c *gin.Context, deviceID string, extra gin.H) {
	ctx := c.Request.Context()
	resp := gin.H{"status": statusApplied}
	for k, v := range extra {
		resp[k] = v
	}
	if snap, err := h.services.Monitoring.GetDevice(ctx, deviceID); err == nil {
		resp["device"] = snap
	}
	c.JSON(http.StatusOK, resp)
}

// Request DTO for the setpoint.
type temperatureRequest struct {
	Celsius int `json:"celsius" binding:"required"`
}

// SetTemperatureRequest is an exported model for Swagger docs of the setTemperature payload.
type SetTemperatureRequest struct {
	// Target heating temperature in Celsius, 35 to 65 inclusive
	Celsius int `json:"celsius" example:"45"`
}

// Request DTO for the hot water setpoint.
type hotWaterRequest struct {
	Celsius int `json:"celsius" binding:"required"`
}

// SetHotWaterRequest is an exported model for Swagger docs of the setHotWater payload.
type SetHotWaterRequest struct {
	// Target hot water temperature in Celsius, 35 to 65 inclusive
	Celsius int `json:"celsius" example:"42"`
}

// Request DTO for the preset mode.
type presetRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// SetPresetRequest is an exported model for Swagger docs of the setPreset payload.
type SetPresetRequest struct {
	// Display name of the preset. Allowed: Normal Heating, Heating Energy Saving, Heating Outdoor, Fast Heating, Heating Off
	Mode string `json:"mode" example:"Heating Energy Saving"`
}

// Request DTO for the coarse heat/off state.
type hvacRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// SetHVACRequest is an exported model for Swagger docs of the setHVAC payload.
type SetHVACRequest struct {
	// Mode to set. Allowed: heat, off
	Mode string `json:"mode" example:"heat"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      List devices
// @Tags         devices
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, devices"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/devices [get]
// @Security     BearerAuth
func (h *Handler) listDevices(c *gin.Context) {
	devices := h.services.Monitoring.ListDevices(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"count":   len(devices),
		"devices": devices,
	})
}

// @Summary      Get device snapshot
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Device id"
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/devices/{id} [get]
// @Security     BearerAuth
func (h *Handler) getDevice(c *gin.Context) {
	snap, err := h.services.Monitoring.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrUnknownDevice) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errGetDevice, "device_get_failed", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// @Summary      Set target temperature
// @Description  Heating setpoint, 35 to 65 Celsius inclusive. Rejected while the unit is off or in outdoor mode.
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id    path   string                 true  "Device id"
// @Param        body  body   SetTemperatureRequest  true  "Setpoint payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/devices/{id}/temperature [post]
// @Security     BearerAuth
func (h *Handler) setTemperature(c *gin.Context) {
	var req temperatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	deviceID := c.Param("id")
	if err := h.services.Climate.SetTargetTemperature(c.Request.Context(), deviceID, req.Celsius); err != nil {
		if h.log != nil {
			h.log.Errorw("device_set_temperature_failed", "err", err, "device_id", deviceID, "celsius", req.Celsius)
		}
		c.JSON(commandStatusCode(err), gin.H{"error": err.Error()})
		return
	}
	h.respondWithSnapshot(c, deviceID, gin.H{"celsius": req.Celsius})
}

// @Summary      Set hot water temperature
// @Description  Hot water setpoint, 35 to 65 Celsius inclusive. Independent of the heating mode.
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id    path   string              true  "Device id"
// @Param        body  body   SetHotWaterRequest  true  "Setpoint payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/devices/{id}/hot-water [post]
// @Security     BearerAuth
func (h *Handler) setHotWater(c *gin.Context) {
	var req hotWaterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	deviceID := c.Param("id")
	if err := h.services.Climate.SetHotWaterTemperature(c.Request.Context(), deviceID, req.Celsius); err != nil {
		if h.log != nil {
			h.log.Errorw("device_set_hot_water_failed", "err", err, "device_id", deviceID, "celsius", req.Celsius)
		}
		c.JSON(commandStatusCode(err), gin.H{"error": err.Error()})
		return
	}
	h.respondWithSnapshot(c, deviceID, gin.H{"celsius": req.Celsius})
}

// @Summary      Set preset mode
// @Description  Switches the heating preset by its display name. Modes with a normal-mode precondition get the preliminary switch automatically.
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id    path   string            true  "Device id"
// @Param        body  body   SetPresetRequest  true  "Preset payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/devices/{id}/preset [post]
// @Security     BearerAuth
func (h *Handler) setPreset(c *gin.Context) {
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	deviceID := c.Param("id")
	if err := h.services.Climate.SetPresetMode(c.Request.Context(), deviceID, req.Mode); err != nil {
		if h.log != nil {
			h.log.Errorw("device_set_preset_failed", "err", err, "device_id", deviceID, "mode", req.Mode)
		}
		c.JSON(commandStatusCode(err), gin.H{"error": err.Error()})
		return
	}
	h.respondWithSnapshot(c, deviceID, gin.H{"mode": req.Mode})
}

// @Summary      Set heat/off
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id    path   string          true  "Device id"
// @Param        body  body   SetHVACRequest  true  "HVAC payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/devices/{id}/hvac [post]
// @Security     BearerAuth
func (h *Handler) setHVAC(c *gin.Context) {
	var req hvacRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	deviceID := c.Param("id")
	if err := h.services.Climate.SetHVACMode(c.Request.Context(), deviceID, models.HVACMode(req.Mode)); err != nil {
		if h.log != nil {
			h.log.Errorw("device_set_hvac_failed", "err", err, "device_id", deviceID, "mode", req.Mode)
		}
		c.JSON(commandStatusCode(err), gin.H{"error": err.Error()})
		return
	}
	h.respondWithSnapshot(c, deviceID, gin.H{"mode": req.Mode})
}
