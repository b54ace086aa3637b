package realtime

import (
	"sync"
	"time"
)

// PresenceChange is one online/offline transition observed by the manager.
type PresenceChange struct {
	UserID string    `json:"userId"`
	Online bool      `json:"isOnline"`
	At     time.Time `json:"at"`
}

// PresenceSubscriber receives every presence change synchronously, in the
// goroutine that registered or tore down the connection.
type PresenceSubscriber interface {
	PresenceChanged(change PresenceChange)
}

// PresenceFunc adapts a function to PresenceSubscriber.
type PresenceFunc func(change PresenceChange)

// PresenceChanged calls f.
func (f PresenceFunc) PresenceChanged(change PresenceChange) { f(change) }

// PresenceHub fans presence changes out to its subscribers in subscription
// order.
type PresenceHub struct {
	mu     sync.RWMutex
	nextID int
	subs   []presenceSub
}

type presenceSub struct {
	id  int
	sub PresenceSubscriber
}

// NewPresenceHub returns a hub with no subscribers.
func NewPresenceHub() *PresenceHub {
	return &PresenceHub{}
}

// Subscribe adds s and returns a function that removes it again.
func (p *PresenceHub) Subscribe(s PresenceSubscriber) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.subs = append(p.subs, presenceSub{id: id, sub: s})

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, entry := range p.subs {
			if entry.id == id {
				p.subs = append(p.subs[:i:i], p.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers change to every subscriber.
func (p *PresenceHub) Publish(change PresenceChange) {
	p.mu.RLock()
	subs := make([]PresenceSubscriber, 0, len(p.subs))
	for _, entry := range p.subs {
		subs = append(subs, entry.sub)
	}
	p.mu.RUnlock()

	for _, s := range subs {
		s.PresenceChanged(change)
	}
}

// StatusBroadcaster is the built-in subscriber that pushes user_status to
// every other connected user.
type StatusBroadcaster struct {
	deliver *deliverer
	// muted stops the fan-out while the server is shutting down and every
	// peer is already closing.
	muted func() bool
}

// PresenceChanged broadcasts change to everyone except the subject.
func (b *StatusBroadcaster) PresenceChanged(change PresenceChange) {
	if b.muted != nil && b.muted() {
		return
	}
	b.deliver.toAllExcept(change.UserID, UserStatusEvent(change.UserID, change.Online, change.At))
}
