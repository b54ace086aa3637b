package realtime

import "sync"

// Handle is one live, authenticated connection. Send must not block; Close
// must be safe to call more than once and from any goroutine.
type Handle interface {
	ID() string
	Send(frame []byte) error
	Close(code int, reason string) error
}

// Entry is the registry record for one connected user.
type Entry struct {
	UserID string
	Handle Handle
	Online bool
}

// Registry maps a user id to that user's single live connection. It is safe
// for concurrent use by connection goroutines and HTTP handlers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Put stores handle for userID and returns the handle it replaced, if any.
func (r *Registry) Put(userID string, handle Handle) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.entries[userID]
	r.entries[userID] = Entry{UserID: userID, Handle: handle, Online: true}
	if !existed || prev.Handle == handle {
		return nil, false
	}
	return prev.Handle, true
}

// Get returns the handle registered for userID.
func (r *Registry) Get(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[userID]
	if !ok || !entry.Online {
		return nil, false
	}
	return entry.Handle, true
}

// Remove deletes the entry for userID regardless of which handle it holds.
func (r *Registry) Remove(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[userID]; !ok {
		return false
	}
	delete(r.entries, userID)
	return true
}

// RemoveIf deletes the entry for userID only while it still holds handle, so
// a superseded connection closing late cannot evict its replacement.
func (r *Registry) RemoveIf(userID string, handle Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[userID]
	if !ok || entry.Handle != handle {
		return false
	}
	delete(r.entries, userID)
	return true
}

// IsOnline reports whether userID has a registered connection.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Get(userID)
	return ok
}

// Count returns the number of registered users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ForEachExcept calls fn for every online entry other than userID. fn runs on
// a snapshot taken under the lock, so it may call back into the registry.
func (r *Registry) ForEachExcept(userID string, fn func(Entry)) {
	for _, entry := range r.Snapshot() {
		if entry.UserID == userID || !entry.Online {
			continue
		}
		fn(entry)
	}
}

// Snapshot returns a copy of every entry.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	return entries
}
