package whatsapp

import (
	"context"
	"fmt"
	"sync"

	"walink/internal/domain"

	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

const eventBufferSize = 64

// Adapter opens whatsmeow connections behind the domain.ProtocolClient port.
// The supervisor never touches whatsmeow types directly.
type Adapter struct {
	logger waLog.Logger
}

// NewAdapter creates a protocol client adapter
func NewAdapter(logger waLog.Logger) *Adapter {
	return &Adapter{logger: logger}
}

// Open creates a whatsmeow client from the credential bundle, connects it
// and streams translated events. Whatsmeow's built-in reconnect is disabled;
// the supervisor owns reconnect policy.
func (a *Adapter) Open(ctx context.Context, creds domain.CredentialBundle) (domain.ClientHandle, <-chan domain.ClientEvent, error) {
	bundle, ok := creds.(*credentialBundle)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected credential bundle type %T", creds)
	}

	client := whatsmeow.NewClient(bundle.device, a.logger)
	client.EnableAutoReconnect = false

	h := &handle{
		client: client,
		key:    bundle.key,
		events: make(chan domain.ClientEvent, eventBufferSize),
	}
	client.AddEventHandler(h.translate)

	// Unpaired bundles need the QR channel armed before Connect.
	if bundle.device.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get QR channel: %w", err)
		}
		go h.pumpQR(qrChan)
	}

	if err := client.Connect(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect protocol client: %w", err)
	}

	return h, h.events, nil
}

// handle is one live whatsmeow connection
type handle struct {
	client *whatsmeow.Client
	key    string

	mu     sync.Mutex
	closed bool
	events chan domain.ClientEvent
}

// translate maps whatsmeow events onto the domain's tagged union
func (h *handle) translate(evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		jid := h.client.Store.ID
		if jid == nil {
			log.Warn().Str("cred_key", h.key).Msg("Connected event without stored identity")
			return
		}
		h.emitState(domain.OpenedEvent{JID: jid.String(), Phone: jid.User})

	case *events.PairSuccess:
		log.Info().Str("cred_key", h.key).Str("jid", v.ID.String()).Msg("Pairing successful")

	case *events.LoggedOut:
		h.emitClosed(domain.CloseReasonLoggedOut, nil)

	case *events.StreamError:
		h.emitClosed(domain.CloseReasonNetwork, fmt.Errorf("stream error: %s", v.Code))

	case *events.Disconnected:
		h.emitClosed(domain.CloseReasonNetwork, nil)

	case *events.Message:
		h.emit(domain.InboundMessageEvent{
			MessageID: v.Info.ID,
			Sender:    v.Info.Sender.String(),
			FromMe:    v.Info.IsFromMe,
			Timestamp: v.Info.Timestamp,
		})
	}
}

// pumpQR forwards pairing challenges from whatsmeow's QR channel
func (h *handle) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			h.emitState(domain.QRChallengeEvent{Code: item.Code})
		case "success":
			log.Debug().Str("cred_key", h.key).Msg("QR channel reported pairing success")
			return
		case "timeout":
			h.emitClosed(domain.CloseReasonNetwork, fmt.Errorf("pairing window expired"))
			return
		default:
			h.emitClosed(domain.CloseReasonNetwork, fmt.Errorf("pairing failed: %s", item.Event))
			return
		}
	}
}

// emit forwards a traffic event, dropping it if the consumer fell behind.
// Lifecycle transitions and close events never use this path.
func (h *handle) emit(evt domain.ClientEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	select {
	case h.events <- evt:
	default:
		log.Warn().Str("cred_key", h.key).Msg("Event buffer full, dropping event")
	}
}

// emitState forwards a lifecycle event. Losing one of these would strand
// the session state machine, so delivery blocks until the consumer catches
// up. The consumer drains until ClosedEvent, and the stream only closes
// under the same mutex, so this cannot send on a closed channel.
func (h *handle) emitState(evt domain.ClientEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.events <- evt
}

// emitClosed delivers the final ClosedEvent and closes the stream exactly once
func (h *handle) emitClosed(reason domain.CloseReason, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	h.events <- domain.ClosedEvent{Reason: reason, Err: err}
	close(h.events)
}

// Send delivers a text message to a phone number or JID
func (h *handle) Send(ctx context.Context, recipient, text string) (*domain.SendResult, error) {
	jid, err := parseRecipient(recipient)
	if err != nil {
		return nil, err
	}

	msg := &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(text),
		},
	}

	resp, err := h.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	return &domain.SendResult{
		MessageID: resp.ID,
		Timestamp: resp.Timestamp,
	}, nil
}

// IsRegistered checks whether the recipient exists on WhatsApp
func (h *handle) IsRegistered(_ context.Context, recipient string) (bool, error) {
	phone := digitsOnly(recipient)
	if phone == "" {
		return false, fmt.Errorf("invalid recipient %q", recipient)
	}

	responses, err := h.client.IsOnWhatsApp([]string{"+" + phone})
	if err != nil {
		return false, fmt.Errorf("failed to probe recipient: %w", err)
	}
	for _, resp := range responses {
		if resp.IsIn {
			return true, nil
		}
	}
	return false, nil
}

// Logout terminates the remote session and clears stored credentials
func (h *handle) Logout(ctx context.Context) error {
	if err := h.client.Logout(ctx); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// Close drops the socket without touching credentials
func (h *handle) Close() {
	h.client.Disconnect()
}

// parseRecipient accepts a full JID or a bare phone number
func parseRecipient(recipient string) (types.JID, error) {
	for _, c := range recipient {
		if c == '@' {
			jid, err := types.ParseJID(recipient)
			if err != nil {
				return types.JID{}, fmt.Errorf("invalid recipient JID %q: %w", recipient, err)
			}
			return jid, nil
		}
	}

	phone := digitsOnly(recipient)
	if len(phone) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", recipient)
	}
	return types.NewJID(phone, types.DefaultUserServer), nil
}

func digitsOnly(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
