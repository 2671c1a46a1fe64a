package whatsapp

import (
	"testing"
	"time"

	"walink/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"
)

func TestParseRecipient(t *testing.T) {
	t.Run("full JID passes through", func(t *testing.T) {
		jid, err := parseRecipient("5511999998888@s.whatsapp.net")
		require.NoError(t, err)
		assert.Equal(t, "5511999998888", jid.User)
		assert.Equal(t, types.DefaultUserServer, jid.Server)
	})

	t.Run("bare phone number gets the default server", func(t *testing.T) {
		jid, err := parseRecipient("5511999998888")
		require.NoError(t, err)
		assert.Equal(t, "5511999998888", jid.User)
		assert.Equal(t, types.DefaultUserServer, jid.Server)
	})

	t.Run("formatting characters are stripped", func(t *testing.T) {
		jid, err := parseRecipient("+55 (11) 99999-8888")
		require.NoError(t, err)
		assert.Equal(t, "5511999998888", jid.User)
	})

	t.Run("too-short numbers are rejected", func(t *testing.T) {
		_, err := parseRecipient("12345")
		require.Error(t, err)
	})

	t.Run("malformed JIDs are rejected", func(t *testing.T) {
		_, err := parseRecipient("@@@")
		require.Error(t, err)
	})
}

func TestCredKey(t *testing.T) {
	user := domain.UserID("3c9d0e1f-2a3b-4c5d-8e9f-000000000001")
	otherUser := domain.UserID("3c9d0e1f-2a3b-4c5d-8e9f-000000000002")
	device := domain.NewDeviceID()
	otherDevice := domain.NewDeviceID()

	// Two devices of one user never share a namespace, and a device ID
	// alone can never address another user's credentials.
	assert.NotEqual(t, credKey(user, device), credKey(user, otherDevice))
	assert.NotEqual(t, credKey(user, device), credKey(otherUser, device))
	assert.Contains(t, credKey(user, device), user.String())
	assert.Contains(t, credKey(user, device), device.String())
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "5511999998888", digitsOnly("+55 (11) 99999-8888"))
	assert.Equal(t, "", digitsOnly("abc"))
	assert.Equal(t, "123", digitsOnly("123"))
}

func TestEmit(t *testing.T) {
	newHandle := func() *handle {
		return &handle{key: "u/d", events: make(chan domain.ClientEvent, 1)}
	}
	inbound := func(id string) domain.InboundMessageEvent {
		return domain.InboundMessageEvent{MessageID: id, Sender: "5511999998888@s.whatsapp.net"}
	}

	t.Run("traffic overflow drops the newest event", func(t *testing.T) {
		h := newHandle()
		h.emit(inbound("first"))
		h.emit(inbound("second"))

		got := <-h.events
		assert.Equal(t, inbound("first"), got)
		select {
		case evt := <-h.events:
			t.Fatalf("unexpected buffered event: %#v", evt)
		default:
		}
	})

	t.Run("lifecycle events block instead of dropping", func(t *testing.T) {
		h := newHandle()
		h.emit(inbound("first"))

		delivered := make(chan struct{})
		go func() {
			h.emitState(domain.OpenedEvent{JID: "5511999998888:1@s.whatsapp.net", Phone: "5511999998888"})
			close(delivered)
		}()

		select {
		case <-delivered:
			t.Fatal("lifecycle event delivered before the buffer drained")
		case <-time.After(20 * time.Millisecond):
		}

		assert.Equal(t, inbound("first"), <-h.events)
		select {
		case <-delivered:
		case <-time.After(2 * time.Second):
			t.Fatal("lifecycle event never delivered")
		}
		opened, ok := (<-h.events).(domain.OpenedEvent)
		require.True(t, ok)
		assert.Equal(t, "5511999998888", opened.Phone)
	})

	t.Run("emits after close are silent no-ops", func(t *testing.T) {
		h := newHandle()
		h.emitClosed(domain.CloseReasonNetwork, nil)

		h.emit(inbound("late"))
		h.emitState(domain.OpenedEvent{})
		h.emitClosed(domain.CloseReasonLoggedOut, nil)

		closed, ok := (<-h.events).(domain.ClosedEvent)
		require.True(t, ok)
		assert.Equal(t, domain.CloseReasonNetwork, closed.Reason)

		_, open := <-h.events
		assert.False(t, open)
	})
}
