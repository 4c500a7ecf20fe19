// Package connectivity tracks whether the sync backend is reachable and publishes
// online/offline transitions to subscribers.
package connectivity

import (
	"sync"

	"go.uber.org/zap"
)

// Monitor holds the process-wide connectivity flag.
type Monitor struct {
	log *zap.Logger

	mu     sync.Mutex
	online bool
	subs   map[int]chan bool
	next   int
}

// NewMonitor starts with the given initial state.
func NewMonitor(online bool, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{log: log.Named("connectivity"), online: online, subs: map[int]chan bool{}}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set updates the state and notifies subscribers when it changed.
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return false
	}
	m.online = online
	m.log.Info("connectivity changed", zap.Bool("online", online))
	for _, ch := range m.subs {
		// keep only the latest state for slow readers
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
	return true
}

// Subscribe returns a channel receiving the new state on every transition and a
// function that unsubscribes and closes it.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next
	m.next++
	ch := make(chan bool, 1)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}
