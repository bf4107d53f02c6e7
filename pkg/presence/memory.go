package presence

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	userID string
	expiry time.Time
}

// Memory is the single-instance Store. Expired entries are ignored by reads
// and collected by a background sweeper, which also reports expiry-driven
// offline transitions through the OnOffline callback.
type Memory struct {
	mu    sync.Mutex
	conns map[string]*entry
	users map[string]map[string]struct{}

	ttl time.Duration
	now func() time.Time

	onOffline func(userID string)

	stop chan struct{}
	done chan struct{}
}

func NewMemory(ttl time.Duration) *Memory {
	m := &Memory{
		conns: make(map[string]*entry),
		users: make(map[string]map[string]struct{}),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go m.sweep()
	return m
}

// OnOffline registers a callback invoked (outside the store lock) when TTL
// expiry takes a user's last connection away. Explicit disconnects report the
// transition through the Disconnect return value instead.
func (m *Memory) OnOffline(fn func(userID string)) {
	m.mu.Lock()
	m.onOffline = fn
	m.mu.Unlock()
}

func (m *Memory) Close() {
	close(m.stop)
	<-m.done
}

func (m *Memory) Connect(_ context.Context, userID, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conns[connID] = &entry{userID: userID, expiry: m.now().Add(m.ttl)}
	if m.users[userID] == nil {
		m.users[userID] = make(map[string]struct{})
	}
	m.users[userID][connID] = struct{}{}
	return nil
}

func (m *Memory) Disconnect(_ context.Context, connID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.conns[connID]
	if !ok {
		return "", false, nil
	}
	expired := m.now().After(e.expiry)
	m.removeLocked(connID, e.userID)

	// An expired entry no longer kept the user online, so its removal is
	// not a transition.
	wentOffline := !expired && !m.onlineLocked(e.userID)
	return e.userID, wentOffline, nil
}

func (m *Memory) IsOnline(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onlineLocked(userID), nil
}

func (m *Memory) ConnectionsOf(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	now := m.now()
	for connID := range m.users[userID] {
		if e, ok := m.conns[connID]; ok && now.Before(e.expiry) {
			out = append(out, connID)
		}
	}
	return out, nil
}

func (m *Memory) onlineLocked(userID string) bool {
	now := m.now()
	for connID := range m.users[userID] {
		if e, ok := m.conns[connID]; ok && now.Before(e.expiry) {
			return true
		}
	}
	return false
}

func (m *Memory) removeLocked(connID, userID string) {
	delete(m.conns, connID)
	if set, ok := m.users[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(m.users, userID)
		}
	}
}

func (m *Memory) sweep() {
	defer close(m.done)
	ticker := time.NewTicker(m.ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.collect()
		}
	}
}

func (m *Memory) collect() {
	m.mu.Lock()
	now := m.now()
	var offline []string
	for connID, e := range m.conns {
		if now.Before(e.expiry) {
			continue
		}
		m.removeLocked(connID, e.userID)
		if !m.onlineLocked(e.userID) {
			offline = append(offline, e.userID)
		}
	}
	fn := m.onOffline
	m.mu.Unlock()

	if fn != nil {
		for _, userID := range offline {
			fn(userID)
		}
	}
}
