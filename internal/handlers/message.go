package handlers

import (
	"encoding/json"
	"net/http"

	"walink/internal/domain"
	"walink/internal/supervisor"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// MessageHandler handles HTTP requests for message operations
type MessageHandler struct {
	devices    domain.DeviceRepository
	supervisor *supervisor.Supervisor
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(devices domain.DeviceRepository, sup *supervisor.Supervisor) *MessageHandler {
	return &MessageHandler{devices: devices, supervisor: sup}
}

// SendTextMessage handles POST /devices/{deviceID}/messages/text
func (h *MessageHandler) SendTextMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid user identity")
		return
	}

	deviceID, err := domain.ParseDeviceID(chi.URLParam(r, "deviceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid device ID")
		return
	}

	var req SendTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
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
		return
	}
	if device.UserID != userID {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}

	if req.Verify {
		registered, err := h.supervisor.ProbeRegistered(r.Context(), deviceID, req.Phone)
		if err != nil {
			if domain.IsNotConnected(err) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			log.Error().Err(err).Str("device_id", deviceID.String()).Msg("Recipient probe failed")
			writeError(w, http.StatusBadGateway, "failed to verify recipient")
			return
		}
		if !registered {
			writeError(w, http.StatusUnprocessableEntity, "recipient is not registered")
			return
		}
	}

	result, err := h.supervisor.Send(r.Context(), deviceID, req.Phone, req.Message)
	if err != nil {
		if domain.IsNotConnected(err) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Error().Err(err).Str("device_id", deviceID.String()).Msg("Failed to send message")
		writeError(w, http.StatusBadGateway, "failed to send message")
		return
	}

	writeJSON(w, http.StatusOK, SendTextResponse{
		MessageID: result.MessageID,
		Timestamp: result.Timestamp,
	})
}
