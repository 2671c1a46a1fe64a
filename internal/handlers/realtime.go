package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"walink/internal/broadcast"
	"walink/internal/domain"
	"walink/internal/supervisor"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxInboundMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks belong to the reverse proxy in front of this service.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundCommand is a client-initiated action over the websocket
type inboundCommand struct {
	Action   string `json:"action"`
	DeviceID string `json:"device_id"`
}

// RealtimeHandler upgrades dashboard connections to websockets and bridges
// them to the event broadcaster
type RealtimeHandler struct {
	broadcaster *broadcast.Broadcaster
	supervisor  *supervisor.Supervisor
	devices     domain.DeviceRepository
}

// NewRealtimeHandler creates a new realtime handler
func NewRealtimeHandler(
	b *broadcast.Broadcaster,
	sup *supervisor.Supervisor,
	devices domain.DeviceRepository,
) *RealtimeHandler {
	return &RealtimeHandler{broadcaster: b, supervisor: sup, devices: devices}
}

// ServeWS handles GET /ws
func (h *RealtimeHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid user identity")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	sub := h.broadcaster.Subscribe(userID)
	log.Info().Str("user_id", userID.String()).Msg("Realtime subscriber connected")

	go h.writePump(conn, sub)
	h.readPump(conn, sub, userID)
}

// writePump forwards broadcast events to the socket and keeps it alive
// with pings. It exits when the subscription channel closes.
func (h *RealtimeHandler) writePump(conn *websocket.Conn, sub *broadcast.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes inbound commands until the socket drops, then tears
// down the subscription which in turn stops the write pump.
func (h *RealtimeHandler) readPump(conn *websocket.Conn, sub *broadcast.Subscription, userID domain.UserID) {
	defer func() {
		h.broadcaster.Unsubscribe(sub)
		conn.Close()
		log.Info().Str("user_id", userID.String()).Msg("Realtime subscriber disconnected")
	}()

	conn.SetReadLimit(maxInboundMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("user_id", userID.String()).Msg("Websocket closed unexpectedly")
			}
			return
		}

		var cmd inboundCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("Invalid websocket command")
			continue
		}
		h.handleCommand(cmd, userID)
	}
}

func (h *RealtimeHandler) handleCommand(cmd inboundCommand, userID domain.UserID) {
	switch cmd.Action {
	case "connect-device":
		deviceID, err := domain.ParseDeviceID(cmd.DeviceID)
		if err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Tenancy check mirrors the HTTP connect endpoint.
		device, err := h.devices.GetByID(ctx, deviceID)
		if err != nil || device.UserID != userID {
			log.Warn().
				Str("user_id", userID.String()).
				Str("device_id", cmd.DeviceID).
				Msg("Rejected connect command for unknown or foreign device")
			return
		}

		if err := h.supervisor.Connect(ctx, deviceID, userID); err != nil {
			log.Error().Err(err).Str("device_id", deviceID.String()).Msg("Failed to connect device")
		}
	default:
		log.Debug().Str("action", cmd.Action).Msg("Unknown websocket action")
	}
}
