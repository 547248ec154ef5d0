// Package session remembers the last conversation state reached by each
// user.
package session

import (
	"context"
	"sync"
)

// Memory keeps states in process memory. They are lost on restart and the
// controller re-derives them from live membership.
type Memory struct {
	mu     sync.RWMutex
	states map[int64]string
}

func NewMemory() *Memory {
	return &Memory{states: make(map[int64]string)}
}

func (m *Memory) Get(_ context.Context, userID int64) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[userID]
	return state, ok, nil
}

func (m *Memory) Set(_ context.Context, userID int64, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[userID] = state
	return nil
}
