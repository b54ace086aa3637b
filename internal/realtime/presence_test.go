package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceHubOrderAndUnsubscribe(t *testing.T) {
	hub := NewPresenceHub()
	var calls []string

	unsubA := hub.Subscribe(PresenceFunc(func(c PresenceChange) { calls = append(calls, "a:"+c.UserID) }))
	hub.Subscribe(PresenceFunc(func(c PresenceChange) { calls = append(calls, "b:"+c.UserID) }))

	hub.Publish(PresenceChange{UserID: "U1", Online: true, At: testNow})
	assert.Equal(t, []string{"a:U1", "b:U1"}, calls)

	unsubA()
	unsubA()
	calls = nil
	hub.Publish(PresenceChange{UserID: "U2", Online: false, At: testNow})
	assert.Equal(t, []string{"b:U2"}, calls)
}

func TestPresenceHubSubscriberMayUnsubscribeDuringPublish(t *testing.T) {
	hub := NewPresenceHub()
	count := 0
	var unsub func()
	unsub = hub.Subscribe(PresenceFunc(func(PresenceChange) {
		count++
		unsub()
	}))

	hub.Publish(PresenceChange{UserID: "U1", Online: true})
	hub.Publish(PresenceChange{UserID: "U1", Online: false})
	assert.Equal(t, 1, count)
}

func TestStatusBroadcasterSkipsSubject(t *testing.T) {
	r := NewRegistry()
	h1, h2 := newFakeHandle("h1"), newFakeHandle("h2")
	r.Put("U1", h1)
	r.Put("U2", h2)

	b := &StatusBroadcaster{deliver: newDeliverer(r, zeroLogger())}
	b.PresenceChanged(PresenceChange{UserID: "U1", Online: true, At: testNow})

	assert.Empty(t, h1.events(t))
	assert.Equal(t, []map[string]any{{
		"type":      "user_status",
		"userId":    "U1",
		"isOnline":  true,
		"timestamp": testTimestamp,
	}}, h2.events(t))
}
