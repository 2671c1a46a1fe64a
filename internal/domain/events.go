package domain

import "context"

// EventName identifies a realtime notification delivered to browser clients
type EventName string

const (
	EventQRCode             EventName = "qr-code"
	EventQRTimeout          EventName = "qr-timeout"
	EventDeviceConnected    EventName = "device-connected"
	EventDeviceDisconnected EventName = "device-disconnected"
	EventConnectionError    EventName = "connection-error"
)

// Event is a realtime notification scoped to the owning user. Delivery is
// best-effort and at-most-once; late subscribers use the status endpoints
// instead of a replay.
type Event struct {
	Name     EventName `json:"event"`
	DeviceID DeviceID  `json:"device_id"`
	QR       string    `json:"qr,omitempty"`
	Phone    string    `json:"phone,omitempty"`
	JID      string    `json:"jid,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// EventPublisher fans events out to the subscribers of one user
type EventPublisher interface {
	Publish(userID UserID, event Event)
}

// Direction tags an analytics tick
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// AnalyticsRecorder counts message activity per (user, device, day)
type AnalyticsRecorder interface {
	Record(ctx context.Context, userID UserID, deviceID DeviceID, dir Direction) error
}
