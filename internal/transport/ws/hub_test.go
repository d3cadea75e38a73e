package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

func testSubscriber(sessionID string) *Subscriber {
	return &Subscriber{
		ID:        "sub-" + sessionID,
		SessionID: sessionID,
		Send:      make(chan []byte, 8),
	}
}

func receive(t *testing.T, sub *Subscriber) domain.Event {
	t.Helper()
	select {
	case data := <-sub.Send:
		var event domain.Event
		require.NoError(t, json.Unmarshal(data, &event))
		return event
	case <-time.After(time.Second):
		t.Fatalf("subscriber %s received nothing", sub.ID)
		return domain.Event{}
	}
}

func TestHubBroadcastsToAllSubscribers(t *testing.T) {
	h := NewHub()
	go h.Run()

	all := testSubscriber("")
	h.Register(all)
	other := testSubscriber("")
	other.ID = "sub-other"
	h.Register(other)

	require.Eventually(t, func() bool { return h.SubscriberCount() == 2 }, time.Second, 10*time.Millisecond)

	h.Publish(domain.Event{EventID: "evt_1", SessionID: "ses_1", Type: domain.EventTypePauseStarted})

	for _, sub := range []*Subscriber{all, other} {
		event := receive(t, sub)
		assert.Equal(t, "evt_1", event.EventID)
		assert.Equal(t, domain.EventTypePauseStarted, event.Type)
	}
}

func TestHubFiltersBySession(t *testing.T) {
	h := NewHub()
	go h.Run()

	filtered := testSubscriber("ses_1")
	h.Register(filtered)
	require.Eventually(t, func() bool { return h.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	h.Publish(domain.Event{EventID: "evt_other", SessionID: "ses_2", Type: domain.EventTypeSessionStarted})
	h.Publish(domain.Event{EventID: "evt_mine", SessionID: "ses_1", Type: domain.EventTypePromptTriggered})

	event := receive(t, filtered)
	assert.Equal(t, "evt_mine", event.EventID)
	assert.Empty(t, filtered.Send)
}

func TestHubUnregisterClosesChannel(t *testing.T) {
	h := NewHub()
	go h.Run()

	sub := testSubscriber("")
	h.Register(sub)
	require.Eventually(t, func() bool { return h.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	h.Unregister(sub)
	require.Eventually(t, func() bool { return h.SubscriberCount() == 0 }, time.Second, 10*time.Millisecond)

	select {
	case _, ok := <-sub.Send:
		assert.False(t, ok, "send channel should be closed")
	case <-time.After(time.Second):
		t.Fatalf("send channel was not closed")
	}
}
