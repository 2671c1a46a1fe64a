package domain

import (
	"context"
	"time"
)

// CloseReason classifies why the protocol client dropped a connection.
// The supervisor reconnects on CloseReasonNetwork and treats
// CloseReasonLoggedOut as terminal.
type CloseReason int

const (
	CloseReasonUnknown CloseReason = iota
	CloseReasonNetwork
	CloseReasonLoggedOut
)

func (r CloseReason) String() string {
	switch r {
	case CloseReasonNetwork:
		return "network"
	case CloseReasonLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// ClientEvent is the tagged union a protocol-client connection streams back.
type ClientEvent interface {
	clientEvent()
}

// QRChallengeEvent carries a fresh pairing payload
type QRChallengeEvent struct {
	Code string
}

// OpenedEvent signals the connection is authenticated and online
type OpenedEvent struct {
	JID   string
	Phone string
}

// ClosedEvent signals the connection dropped. It is always the last event
// on the stream.
type ClosedEvent struct {
	Reason CloseReason
	Err    error
}

// InboundMessageEvent is an observed message, counted for analytics only
type InboundMessageEvent struct {
	MessageID string
	Sender    string
	FromMe    bool
	Timestamp time.Time
}

func (QRChallengeEvent) clientEvent()    {}
func (OpenedEvent) clientEvent()         {}
func (ClosedEvent) clientEvent()         {}
func (InboundMessageEvent) clientEvent() {}

// SendResult is returned by a successful delivery
type SendResult struct {
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientHandle is a live protocol-client connection for one device
type ClientHandle interface {
	// Send delivers a text message to the recipient (phone number or JID)
	Send(ctx context.Context, recipient, text string) (*SendResult, error)

	// IsRegistered checks whether the recipient is reachable on the network
	IsRegistered(ctx context.Context, recipient string) (bool, error)

	// Logout terminates the remote session and clears stored credentials
	Logout(ctx context.Context) error

	// Close drops the socket without touching credentials
	Close()
}

// CredentialBundle is opaque authentication state for one device,
// namespaced by (user, device)
type CredentialBundle interface {
	Key() string
}

// CredentialStore loads and disposes credential bundles. Bundles are never
// reachable by device ID alone; the owning user ID is always required.
type CredentialStore interface {
	// Load returns the stored bundle for (user, device), creating a fresh
	// unpaired one if none exists
	Load(ctx context.Context, userID UserID, deviceID DeviceID) (CredentialBundle, error)

	// Forget drops the in-memory reference for (user, device)
	Forget(userID UserID, deviceID DeviceID)

	// Delete permanently removes the stored bundle
	Delete(ctx context.Context, creds CredentialBundle) error
}

// ProtocolClient opens protocol connections from credential bundles. The
// returned event channel delivers events in emission order and is closed
// after the final ClosedEvent.
type ProtocolClient interface {
	Open(ctx context.Context, creds CredentialBundle) (ClientHandle, <-chan ClientEvent, error)
}
