package supervisor

import (
	"time"

	"walink/internal/domain"
)

// QRChallenge is the short-lived pairing payload for one connection
type QRChallenge struct {
	Code      string    `json:"-"`
	Image     string    `json:"qr"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the challenge passed its validity window
func (q *QRChallenge) Expired() bool {
	return time.Now().After(q.ExpiresAt)
}

// Connection is the live runtime handle for one device's protocol session.
// It owns every per-device resource (client handle, current QR challenge,
// timers) so teardown is a single remove-and-cancel-all operation.
// All fields are guarded by the supervisor's mutex.
type Connection struct {
	DeviceID domain.DeviceID
	UserID   domain.UserID

	handle domain.ClientHandle
	creds  domain.CredentialBundle
	qr     *QRChallenge
	online bool

	qrTimer       *time.Timer
	keepAliveStop chan struct{}
}

func newConnection(deviceID domain.DeviceID, userID domain.UserID) *Connection {
	return &Connection{
		DeviceID: deviceID,
		UserID:   userID,
	}
}

// stopQRTimer cancels the pending QR expiry, if any
func (c *Connection) stopQRTimer() {
	if c.qrTimer != nil {
		c.qrTimer.Stop()
		c.qrTimer = nil
	}
}

// stopKeepAlive cancels the keep-alive loop, if running
func (c *Connection) stopKeepAlive() {
	if c.keepAliveStop != nil {
		close(c.keepAliveStop)
		c.keepAliveStop = nil
	}
}

// stopTimers cancels every timer owned by the connection
func (c *Connection) stopTimers() {
	c.stopQRTimer()
	c.stopKeepAlive()
}
