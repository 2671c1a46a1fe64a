package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"walink/internal/domain"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// CreateDeviceRequest is the payload for registering a new device
type CreateDeviceRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// DeviceResponse is the JSON shape of a device record
type DeviceResponse struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Status   string     `json:"status"`
	Phone    string     `json:"phone,omitempty"`
	JID      string     `json:"jid,omitempty"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// SendTextRequest is the payload for sending a text message
type SendTextRequest struct {
	// Recipient parsing requires at least 10 digits; keep the bound in sync
	// so short numbers fail validation instead of the gateway call.
	Phone   string `json:"phone" validate:"required,min=10,max=32"`
	Message string `json:"message" validate:"required,min=1,max=4096"`
	Verify  bool   `json:"verify"`
}

// SendTextResponse reports the outcome of a send
type SendTextResponse struct {
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

// QRResponse carries the current pairing challenge
type QRResponse struct {
	QR        string    `json:"qr"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func deviceResponse(device *domain.Device, online bool) DeviceResponse {
	return DeviceResponse{
		ID:       device.ID.String(),
		Name:     device.Name,
		Status:   string(device.Status),
		Phone:    device.Phone,
		JID:      device.JID,
		Online:   online,
		LastSeen: device.LastSeen,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// userIDFromRequest extracts the authenticated user. Session authentication
// itself lives in the outer web layer; it forwards the identity here.
func userIDFromRequest(r *http.Request) (domain.UserID, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		raw = r.URL.Query().Get("user_id")
	}
	userID, err := domain.ParseUserID(raw)
	if err != nil {
		return "", false
	}
	return userID, true
}
