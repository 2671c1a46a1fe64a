// Package supervisor owns every live per-device protocol connection and the
// state machine that drives it: pairing via QR challenges, status
// persistence, reconnect policy and realtime notifications.
package supervisor

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sync"
	"time"

	"walink/internal/domain"

	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

// Config holds supervisor tuning knobs
type Config struct {
	// QRTimeout is the validity window of a pairing challenge
	QRTimeout time.Duration

	// ReconnectInterval is the fixed delay before retrying a dropped connection
	ReconnectInterval time.Duration

	// MaxReconnectAttempts bounds consecutive reconnect attempts.
	// Zero means unbounded. The counter resets on a successful open.
	MaxReconnectAttempts int

	// KeepAliveInterval is how often last_seen is touched while online
	KeepAliveInterval time.Duration

	// PrintQR renders challenges to the terminal, useful during development
	PrintQR bool
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		QRTimeout:            120 * time.Second,
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 5,
		KeepAliveInterval:    60 * time.Second,
	}
}

type reconnectState struct {
	attempts int
	timer    *time.Timer
}

// Supervisor is the single authority over live device connections. The live
// map is owned exclusively by the supervisor; all transitions happen in
// reaction to adapter events or timers, serialized per device.
type Supervisor struct {
	mu         sync.Mutex
	conns      map[domain.DeviceID]*Connection
	reconnects map[domain.DeviceID]*reconnectState

	client    domain.ProtocolClient
	creds     domain.CredentialStore
	devices   domain.DeviceRepository
	events    domain.EventPublisher
	analytics domain.AnalyticsRecorder

	cfg Config
}

// New creates a connection supervisor
func New(
	client domain.ProtocolClient,
	creds domain.CredentialStore,
	devices domain.DeviceRepository,
	events domain.EventPublisher,
	analytics domain.AnalyticsRecorder,
	cfg Config,
) *Supervisor {
	if cfg.QRTimeout <= 0 {
		cfg.QRTimeout = DefaultConfig().QRTimeout
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultConfig().ReconnectInterval
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = DefaultConfig().KeepAliveInterval
	}

	return &Supervisor{
		conns:      make(map[domain.DeviceID]*Connection),
		reconnects: make(map[domain.DeviceID]*reconnectState),
		client:     client,
		creds:      creds,
		devices:    devices,
		events:     events,
		analytics:  analytics,
		cfg:        cfg,
	}
}

// Connect opens a protocol connection for the device. Idempotent: a second
// call while a connection exists is a no-op. The connection is registered
// before the adapter opens so no event can race ahead of registration.
func (s *Supervisor) Connect(ctx context.Context, deviceID domain.DeviceID, userID domain.UserID) error {
	s.mu.Lock()
	if _, exists := s.conns[deviceID]; exists {
		s.mu.Unlock()
		log.Debug().Str("device_id", deviceID.String()).Msg("Device already connected")
		return nil
	}
	s.stopReconnectTimerLocked(deviceID)
	conn := newConnection(deviceID, userID)
	s.conns[deviceID] = conn
	s.mu.Unlock()

	creds, err := s.creds.Load(ctx, userID, deviceID)
	if err != nil {
		s.unregister(conn)
		return fmt.Errorf("failed to load credentials for device %s: %w", deviceID, err)
	}

	if err := s.devices.SetStatus(ctx, deviceID, domain.StatusConnecting, "", ""); err != nil {
		log.Error().Err(err).Str("device_id", deviceID.String()).Msg("Failed to persist connecting status")
	}

	handle, events, err := s.client.Open(ctx, creds)
	if err != nil {
		s.unregister(conn)
		if perr := s.devices.SetStatus(ctx, deviceID, domain.StatusOffline, "", ""); perr != nil {
			log.Error().Err(perr).Str("device_id", deviceID.String()).Msg("Failed to persist offline status")
		}
		s.events.Publish(userID, domain.Event{
			Name:     domain.EventConnectionError,
			DeviceID: deviceID,
			Error:    err.Error(),
		})
		return fmt.Errorf("failed to open connection for device %s: %w", deviceID, err)
	}

	s.mu.Lock()
	if s.conns[deviceID] != conn {
		// The user disconnected while the handshake was in flight.
		// Do not resurrect the connection.
		s.mu.Unlock()
		handle.Close()
		log.Info().Str("device_id", deviceID.String()).Msg("Connection torn down, disconnected during open")
		return nil
	}
	conn.handle = handle
	conn.creds = creds
	s.mu.Unlock()

	go s.eventLoop(conn, events)

	log.Info().
		Str("device_id", deviceID.String()).
		Str("user_id", userID.String()).
		Msg("Device connection started")
	return nil
}

// Disconnect tears down the device connection. Always safe to call, even
// without a live connection. This is the single teardown path used by user
// logout, device deletion and QR-timeout abandonment.
func (s *Supervisor) Disconnect(ctx context.Context, deviceID domain.DeviceID) error {
	s.mu.Lock()
	conn := s.conns[deviceID]
	delete(s.conns, deviceID)
	s.clearReconnectLocked(deviceID)
	if conn != nil {
		conn.stopTimers()
	}
	s.mu.Unlock()

	if conn != nil && conn.handle != nil {
		// Best effort: device deletion must proceed even when logout fails.
		if err := conn.handle.Logout(ctx); err != nil {
			log.Warn().Err(err).Str("device_id", deviceID.String()).Msg("Logout failed during disconnect")
		}
		// Logout on an unpaired client does not drop the socket; close it
		// unconditionally so no client keeps pumping events for this device.
		conn.handle.Close()
	}

	if err := s.devices.SetStatus(ctx, deviceID, domain.StatusOffline, "", ""); err != nil {
		log.Error().Err(err).Str("device_id", deviceID.String()).Msg("Failed to persist offline status")
	}

	if conn != nil {
		s.events.Publish(conn.UserID, domain.Event{
			Name:     domain.EventDeviceDisconnected,
			DeviceID: deviceID,
		})
		log.Info().Str("device_id", deviceID.String()).Msg("Device disconnected")
	}
	return nil
}

// Send delivers a text message through the device's live connection.
// A device that is not online rejects the send before reaching the adapter.
func (s *Supervisor) Send(ctx context.Context, deviceID domain.DeviceID, recipient, text string) (*domain.SendResult, error) {
	s.mu.Lock()
	conn := s.conns[deviceID]
	var (
		handle domain.ClientHandle
		userID domain.UserID
		online bool
	)
	if conn != nil {
		handle = conn.handle
		userID = conn.UserID
		online = conn.online
	}
	s.mu.Unlock()

	if conn == nil || handle == nil || !online {
		return nil, domain.ErrNotConnected(deviceID)
	}

	result, err := handle.Send(ctx, recipient, text)
	if err != nil {
		return nil, fmt.Errorf("failed to send message from device %s: %w", deviceID, err)
	}

	if err := s.analytics.Record(ctx, userID, deviceID, domain.DirectionSent); err != nil {
		log.Error().Err(err).Str("device_id", deviceID.String()).Msg("Failed to record sent message")
	}
	return result, nil
}

// ProbeRegistered checks whether the recipient is reachable on the network
func (s *Supervisor) ProbeRegistered(ctx context.Context, deviceID domain.DeviceID, recipient string) (bool, error) {
	s.mu.Lock()
	conn := s.conns[deviceID]
	var (
		handle domain.ClientHandle
		online bool
	)
	if conn != nil {
		handle = conn.handle
		online = conn.online
	}
	s.mu.Unlock()

	if conn == nil || handle == nil || !online {
		return false, domain.ErrNotConnected(deviceID)
	}
	return handle.IsRegistered(ctx, recipient)
}

// GetClient returns the live client handle for a device, or nil
func (s *Supervisor) GetClient(deviceID domain.DeviceID) domain.ClientHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.conns[deviceID]; ok {
		return conn.handle
	}
	return nil
}

// GetQRCode returns the current pairing challenge for a device, or nil
func (s *Supervisor) GetQRCode(deviceID domain.DeviceID) *QRChallenge {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.conns[deviceID]
	if !ok || conn.qr == nil {
		return nil
	}
	challenge := *conn.qr
	return &challenge
}

// IsOnline reports whether the device has an authenticated live connection
func (s *Supervisor) IsOnline(deviceID domain.DeviceID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.conns[deviceID]
	return ok && conn.online
}

// ActiveDevices returns the device IDs with a live connection
func (s *Supervisor) ActiveDevices() []domain.DeviceID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]domain.DeviceID, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	return ids
}

// RestoreConnections reconnects every device persisted as online, staggered
// to avoid overwhelming the protocol servers on startup.
func (s *Supervisor) RestoreConnections(ctx context.Context) {
	devices, err := s.devices.GetByStatus(ctx, domain.StatusOnline)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load devices for startup reconnection")
		return
	}

	restored := 0
	for _, device := range devices {
		if ctx.Err() != nil {
			return
		}
		if !device.IsPaired() {
			continue
		}
		if err := s.Connect(ctx, device.ID, device.UserID); err != nil {
			log.Error().Err(err).Str("device_id", device.ID.String()).Msg("Failed to restore device connection")
			if perr := s.devices.SetStatus(ctx, device.ID, domain.StatusOffline, "", ""); perr != nil {
				log.Error().Err(perr).Str("device_id", device.ID.String()).Msg("Failed to demote device to offline")
			}
			continue
		}
		restored++
		time.Sleep(500 * time.Millisecond)
	}

	log.Info().Int("restored", restored).Msg("Startup reconnection completed")
}

// Shutdown disconnects all live connections
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]domain.DeviceID, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	log.Info().Int("connections", len(ids)).Msg("Shutting down all device connections")
	for _, id := range ids {
		if err := s.Disconnect(ctx, id); err != nil {
			log.Error().Err(err).Str("device_id", id.String()).Msg("Error disconnecting device during shutdown")
		}
	}
}

// eventLoop consumes events for one connection in emission order. It exits
// when the adapter closes the stream after the final ClosedEvent.
func (s *Supervisor) eventLoop(conn *Connection, events <-chan domain.ClientEvent) {
	for event := range events {
		switch e := event.(type) {
		case domain.QRChallengeEvent:
			s.handleQRChallenge(conn, e)
		case domain.OpenedEvent:
			s.handleOpened(conn, e)
		case domain.InboundMessageEvent:
			s.handleInboundMessage(conn, e)
		case domain.ClosedEvent:
			s.handleClosed(conn, e)
			return
		}
	}
}

// handleQRChallenge stores a fresh challenge, superseding any prior one,
// and arms the expiry timer.
func (s *Supervisor) handleQRChallenge(conn *Connection, e domain.QRChallengeEvent) {
	image, err := s.renderQRImage(e.Code)
	if err != nil {
		log.Error().Err(err).Str("device_id", conn.DeviceID.String()).Msg("Failed to render QR challenge")
		return
	}

	now := time.Now()
	challenge := &QRChallenge{
		Code:      e.Code,
		Image:     image,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.QRTimeout),
	}

	s.mu.Lock()
	if s.conns[conn.DeviceID] != conn {
		s.mu.Unlock()
		return
	}
	conn.qr = challenge
	conn.stopQRTimer()
	conn.qrTimer = time.AfterFunc(s.cfg.QRTimeout, func() {
		s.onQRExpired(conn)
	})
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.devices.SetStatus(ctx, conn.DeviceID, domain.StatusPendingQR, "", ""); err != nil {
		log.Error().Err(err).Str("device_id", conn.DeviceID.String()).Msg("Failed to persist pending_qr status")
	}

	s.events.Publish(conn.UserID, domain.Event{
		Name:     domain.EventQRCode,
		DeviceID: conn.DeviceID,
		QR:       image,
	})

	log.Info().Str("device_id", conn.DeviceID.String()).Msg("QR challenge issued")
}

// onQRExpired abandons a connection whose challenge was never scanned
func (s *Supervisor) onQRExpired(conn *Connection) {
	s.mu.Lock()
	if s.conns[conn.DeviceID] != conn || conn.online {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	log.Warn().Str("device_id", conn.DeviceID.String()).Msg("QR challenge expired")
	s.events.Publish(conn.UserID, domain.Event{
		Name:     domain.EventQRTimeout,
		DeviceID: conn.DeviceID,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Disconnect(ctx, conn.DeviceID); err != nil {
		log.Error().Err(err).Str("device_id", conn.DeviceID.String()).Msg("Failed to tear down expired connection")
	}
}

// handleOpened finalizes pairing: the QR challenge is cleared, identity is
// persisted and subscribers are notified.
func (s *Supervisor) handleOpened(conn *Connection, e domain.OpenedEvent) {
	s.mu.Lock()
	if s.conns[conn.DeviceID] != conn {
		s.mu.Unlock()
		return
	}
	conn.stopQRTimer()
	conn.qr = nil
	conn.online = true
	s.clearReconnectLocked(conn.DeviceID)
	s.startKeepAliveLocked(conn)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.devices.SetStatus(ctx, conn.DeviceID, domain.StatusOnline, e.Phone, e.JID); err != nil {
		log.Error().Err(err).Str("device_id", conn.DeviceID.String()).Msg("Failed to persist online status")
	}

	s.events.Publish(conn.UserID, domain.Event{
		Name:     domain.EventDeviceConnected,
		DeviceID: conn.DeviceID,
		Phone:    e.Phone,
		JID:      e.JID,
	})

	log.Info().
		Str("device_id", conn.DeviceID.String()).
		Str("jid", e.JID).
		Msg("Device connected")
}

// handleClosed classifies the close reason. A remote logout is terminal;
// anything else schedules a reconnect attempt.
func (s *Supervisor) handleClosed(conn *Connection, e domain.ClosedEvent) {
	s.mu.Lock()
	registered := s.conns[conn.DeviceID] == conn
	if registered {
		delete(s.conns, conn.DeviceID)
	}
	conn.stopTimers()
	s.mu.Unlock()

	if !registered {
		// Teardown already handled by Disconnect.
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if e.Reason == domain.CloseReasonLoggedOut {
		log.Info().Str("device_id", conn.DeviceID.String()).Msg("Session terminated by remote, re-pairing required")
		s.creds.Forget(conn.UserID, conn.DeviceID)
		if err := s.devices.SetStatus(ctx, conn.DeviceID, domain.StatusOffline, "", ""); err != nil {
			log.Error().Err(err).Str("device_id", conn.DeviceID.String()).Msg("Failed to persist offline status")
		}
		s.events.Publish(conn.UserID, domain.Event{
			Name:     domain.EventDeviceDisconnected,
			DeviceID: conn.DeviceID,
		})
		return
	}

	log.Warn().
		Err(e.Err).
		Str("device_id", conn.DeviceID.String()).
		Str("reason", e.Reason.String()).
		Msg("Connection closed, scheduling reconnect")

	if err := s.devices.SetStatus(ctx, conn.DeviceID, domain.StatusOffline, "", ""); err != nil {
		log.Error().Err(err).Str("device_id", conn.DeviceID.String()).Msg("Failed to persist offline status")
	}
	s.scheduleReconnect(conn.DeviceID, conn.UserID)
}

// handleInboundMessage forwards observed messages to the analytics counter.
// Messages are never archived here, only counted.
func (s *Supervisor) handleInboundMessage(conn *Connection, e domain.InboundMessageEvent) {
	if e.FromMe {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.analytics.Record(ctx, conn.UserID, conn.DeviceID, domain.DirectionReceived); err != nil {
		log.Error().Err(err).Str("device_id", conn.DeviceID.String()).Msg("Failed to record received message")
	}
}

// scheduleReconnect arms a fixed-delay retry. At most one attempt is
// pending per device; the attempt counter resets on a successful open and
// is dropped entirely when the user disconnects.
func (s *Supervisor) scheduleReconnect(deviceID domain.DeviceID, userID domain.UserID) {
	s.mu.Lock()
	state := s.reconnects[deviceID]
	if state == nil {
		state = &reconnectState{}
		s.reconnects[deviceID] = state
	}
	if state.timer != nil {
		s.mu.Unlock()
		return
	}
	state.attempts++
	if s.cfg.MaxReconnectAttempts > 0 && state.attempts > s.cfg.MaxReconnectAttempts {
		delete(s.reconnects, deviceID)
		s.mu.Unlock()

		log.Error().
			Str("device_id", deviceID.String()).
			Int("attempts", s.cfg.MaxReconnectAttempts).
			Msg("Reconnect attempts exhausted")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.devices.SetStatus(ctx, deviceID, domain.StatusError, "", ""); err != nil {
			log.Error().Err(err).Str("device_id", deviceID.String()).Msg("Failed to persist error status")
		}
		s.events.Publish(userID, domain.Event{
			Name:     domain.EventConnectionError,
			DeviceID: deviceID,
			Error:    "reconnect attempts exhausted",
		})
		return
	}

	state.timer = time.AfterFunc(s.cfg.ReconnectInterval, func() {
		s.mu.Lock()
		if current := s.reconnects[deviceID]; current == state {
			state.timer = nil
		}
		_, alive := s.conns[deviceID]
		s.mu.Unlock()
		if alive {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Connect(ctx, deviceID, userID); err != nil {
			log.Error().Err(err).Str("device_id", deviceID.String()).Msg("Reconnect attempt failed")
			s.scheduleReconnect(deviceID, userID)
		}
	})
	s.mu.Unlock()
}

// stopReconnectTimerLocked cancels a pending retry but keeps the attempt
// counter so a flapping connection still hits the cap
func (s *Supervisor) stopReconnectTimerLocked(deviceID domain.DeviceID) {
	if state, ok := s.reconnects[deviceID]; ok && state.timer != nil {
		state.timer.Stop()
		state.timer = nil
	}
}

// clearReconnectLocked cancels any pending retry and resets the counter
func (s *Supervisor) clearReconnectLocked(deviceID domain.DeviceID) {
	if state, ok := s.reconnects[deviceID]; ok {
		if state.timer != nil {
			state.timer.Stop()
		}
		delete(s.reconnects, deviceID)
	}
}

// startKeepAliveLocked touches last_seen periodically while online
func (s *Supervisor) startKeepAliveLocked(conn *Connection) {
	conn.stopKeepAlive()
	stop := make(chan struct{})
	conn.keepAliveStop = stop

	deviceID := conn.DeviceID
	go func() {
		ticker := time.NewTicker(s.cfg.KeepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := s.devices.TouchLastSeen(ctx, deviceID); err != nil {
					log.Error().Err(err).Str("device_id", deviceID.String()).Msg("Failed to touch last_seen")
				}
				cancel()
			case <-stop:
				return
			}
		}
	}()
}

// unregister removes a half-initialized connection after a connect failure
func (s *Supervisor) unregister(conn *Connection) {
	s.mu.Lock()
	if s.conns[conn.DeviceID] == conn {
		delete(s.conns, conn.DeviceID)
	}
	conn.stopTimers()
	s.mu.Unlock()
}

// renderQRImage encodes a challenge as a base64 PNG data URL
func (s *Supervisor) renderQRImage(code string) (string, error) {
	if s.cfg.PrintQR {
		qrterminal.GenerateHalfBlock(code, qrterminal.L, os.Stdout)
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR image: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
