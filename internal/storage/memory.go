package storage

import (
	"context"
	"slices"
	"sync"
)

// MemoryLedger keeps sign-ins in process memory. Contents are lost on restart.
type MemoryLedger struct {
	mu      sync.RWMutex
	signIns map[string]SignIn
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{signIns: make(map[string]SignIn)}
}

func (m *MemoryLedger) RecordSignIn(_ context.Context, ev SignInEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.signIns[ev.UserID]
	if !ok {
		entry = SignIn{UserID: ev.UserID, FirstSeen: ev.At}
	}
	entry.Email = ev.Email
	entry.LastProvider = ev.Provider
	entry.LastSeen = ev.At
	entry.Count++
	m.signIns[ev.UserID] = entry
	return nil
}

func (m *MemoryLedger) GetSignIn(_ context.Context, userID string) (*SignIn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.signIns[userID]
	if !ok {
		return nil, ErrSignInNotFound
	}
	return &entry, nil
}

func (m *MemoryLedger) RecentSignIns(_ context.Context, limit int) ([]SignIn, error) {
	m.mu.RLock()
	out := make([]SignIn, 0, len(m.signIns))
	for _, entry := range m.signIns {
		out = append(out, entry)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b SignIn) int {
		return b.LastSeen.Compare(a.LastSeen)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryLedger) Close() error {
	return nil
}
