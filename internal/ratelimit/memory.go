package ratelimit

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"
)

type event struct {
	at time.Time
	id uint64
}

// MemoryStore keeps event logs in process memory. Entries do not survive a
// restart and are not shared between instances.
type MemoryStore struct {
	mu     sync.Mutex
	logs   map[string][]event
	nextID uint64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][]event)}
}

// Admit implements Store.
func (m *MemoryStore) Admit(_ context.Context, key string, now time.Time, window time.Duration, limit int) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := prune(m.logs[key], now, window)

	if len(events) >= limit {
		m.logs[key] = events
		return Usage{Count: len(events), Oldest: events[0].at}, nil
	}

	// Callers read the clock before taking the lock, so concurrent admits for
	// one key can arrive out of order. Keep the log sorted for prune.
	m.nextID++
	i := sort.Search(len(events), func(i int) bool { return events[i].at.After(now) })
	events = slices.Insert(events, i, event{at: now, id: m.nextID})
	m.logs[key] = events

	return Usage{
		Count:    len(events),
		Oldest:   events[0].at,
		Admitted: true,
		Token:    strconv.FormatUint(m.nextID, 10),
	}, nil
}

// Remove implements Store.
func (m *MemoryStore) Remove(_ context.Context, key, token string) error {
	id, err := strconv.ParseUint(token, 10, 64)
	if err != nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.logs[key]
	for i, ev := range events {
		if ev.id == id {
			m.logs[key] = append(events[:i:i], events[i+1:]...)
			break
		}
	}
	if len(m.logs[key]) == 0 {
		delete(m.logs, key)
	}
	return nil
}

// Sweep drops origins whose every event has left the window and returns
// how many were removed.
func (m *MemoryStore) Sweep(now time.Time, window time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, events := range m.logs {
		events = prune(events, now, window)
		if len(events) == 0 {
			delete(m.logs, key)
			removed++
			continue
		}
		m.logs[key] = events
	}
	return removed
}

// Len returns the number of tracked origins.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

// prune drops events whose age is at least window. Events are time-ordered.
func prune(events []event, now time.Time, window time.Duration) []event {
	i := 0
	for i < len(events) && now.Sub(events[i].at) >= window {
		i++
	}
	if i == 0 {
		return events
	}
	return append(events[:0:0], events[i:]...)
}
