// Package handlers exposes the connection supervisor and device records
// over HTTP. Authentication is delegated to the outer web layer, which
// forwards the user identity with every request.
package handlers

import (
	"encoding/json"
	"net/http"

	"walink/internal/domain"
	"walink/internal/supervisor"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// DeviceHandler handles HTTP requests for device operations
type DeviceHandler struct {
	devices    domain.DeviceRepository
	supervisor *supervisor.Supervisor
	creds      domain.CredentialStore
	maxDevices int
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(
	devices domain.DeviceRepository,
	sup *supervisor.Supervisor,
	creds domain.CredentialStore,
	maxDevices int,
) *DeviceHandler {
	return &DeviceHandler{
		devices:    devices,
		supervisor: sup,
		creds:      creds,
		maxDevices: maxDevices,
	}
}

// CreateDevice handles POST /devices
func (h *DeviceHandler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid user identity")
		return
	}

	var req CreateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	count, err := h.devices.CountByUser(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to count devices")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if count >= h.maxDevices {
		writeError(w, http.StatusConflict, domain.ErrDeviceLimitReached(userID, h.maxDevices).Error())
		return
	}

	device := domain.NewDevice(userID, req.Name)
	if err := h.devices.Create(r.Context(), device); err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to create device")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, deviceResponse(device, false))
}

// ListDevices handles GET /devices
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid user identity")
		return
	}

	devices, err := h.devices.GetByUser(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to list devices")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]DeviceResponse, 0, len(devices))
	for _, device := range devices {
		response = append(response, deviceResponse(device, h.supervisor.IsOnline(device.ID)))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": response,
		"total":   len(response),
	})
}

// GetDevice handles GET /devices/{deviceID}
func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	device, ok := h.ownedDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, deviceResponse(device, h.supervisor.IsOnline(device.ID)))
}

// DeleteDevice handles DELETE /devices/{deviceID}. The device is forced
// offline before the record and its credentials are removed.
func (h *DeviceHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	device, ok := h.ownedDevice(w, r)
	if !ok {
		return
	}

	if err := h.supervisor.Disconnect(r.Context(), device.ID); err != nil {
		log.Warn().Err(err).Str("device_id", device.ID.String()).Msg("Disconnect before delete failed")
	}

	if creds, err := h.creds.Load(r.Context(), device.UserID, device.ID); err == nil {
		if err := h.creds.Delete(r.Context(), creds); err != nil {
			log.Warn().Err(err).Str("device_id", device.ID.String()).Msg("Failed to delete credentials")
		}
	}

	if err := h.devices.Delete(r.Context(), device.ID); err != nil {
		log.Error().Err(err).Str("device_id", device.ID.String()).Msg("Failed to delete device")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ConnectDevice handles POST /devices/{deviceID}/connect
func (h *DeviceHandler) ConnectDevice(w http.ResponseWriter, r *http.Request) {
	device, ok := h.ownedDevice(w, r)
	if !ok {
		return
	}

	if err := h.supervisor.Connect(r.Context(), device.ID, device.UserID); err != nil {
		log.Error().Err(err).Str("device_id", device.ID.String()).Msg("Failed to connect device")
		writeError(w, http.StatusBadGateway, "failed to connect device")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "connecting"})
}

// DisconnectDevice handles POST /devices/{deviceID}/disconnect
func (h *DeviceHandler) DisconnectDevice(w http.ResponseWriter, r *http.Request) {
	device, ok := h.ownedDevice(w, r)
	if !ok {
		return
	}

	if err := h.supervisor.Disconnect(r.Context(), device.ID); err != nil {
		log.Error().Err(err).Str("device_id", device.ID.String()).Msg("Failed to disconnect device")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "offline"})
}

// GetQRCode handles GET /devices/{deviceID}/qr. Polling fallback for
// subscribers that missed the realtime event.
func (h *DeviceHandler) GetQRCode(w http.ResponseWriter, r *http.Request) {
	device, ok := h.ownedDevice(w, r)
	if !ok {
		return
	}

	challenge := h.supervisor.GetQRCode(device.ID)
	if challenge == nil || challenge.Expired() {
		writeError(w, http.StatusNotFound, "no pairing challenge available")
		return
	}

	writeJSON(w, http.StatusOK, QRResponse{
		QR:        challenge.Image,
		IssuedAt:  challenge.IssuedAt,
		ExpiresAt: challenge.ExpiresAt,
	})
}

// GetStatus handles GET /devices/{deviceID}/status
func (h *DeviceHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	device, ok := h.ownedDevice(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": device.ID.String(),
		"status":    string(device.Status),
		"online":    h.supervisor.IsOnline(device.ID),
		"phone":     device.Phone,
		"jid":       device.JID,
		"last_seen": device.LastSeen,
	})
}

// ownedDevice loads the device from the URL and enforces tenancy
func (h *DeviceHandler) ownedDevice(w http.ResponseWriter, r *http.Request) (*domain.Device, bool) {
	userID, ok := userIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid user identity")
		return nil, false
	}

	deviceID, err := domain.ParseDeviceID(chi.URLParam(r, "deviceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid device ID")
		return nil, false
	}

	device, err := h.devices.GetByID(r.Context(), deviceID)
	if err != nil {
		switch err.(type) {
		case *domain.NotFoundError:
			writeError(w, http.StatusNotFound, "device not found")
		default:
			log.Error().Err(err).Str("device_id", deviceID.String()).Msg("Failed to get device")
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return nil, false
	}

	if device.UserID != userID {
		// Cross-tenant access is reported as not-found, not forbidden.
		writeError(w, http.StatusNotFound, "device not found")
		return nil, false
	}

	return device, true
}
