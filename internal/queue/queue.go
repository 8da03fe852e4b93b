// Package queue is the UI mailbox: publishers append JSON payloads and the
// display page drains them oldest first.
package queue

import (
	"context"
	"encoding/json"
	"sync"
)

// Queue is an unbounded FIFO of opaque JSON payloads.
type Queue interface {
	// Publish appends payload to the tail.
	Publish(ctx context.Context, payload json.RawMessage) error
	// Subscribe removes and returns the head. ok is false when the queue is
	// empty; it never blocks waiting for a message.
	Subscribe(ctx context.Context) (payload json.RawMessage, ok bool, err error)
	// Len reports the number of queued payloads.
	Len(ctx context.Context) (int, error)
}

var (
	_ Queue = (*Memory)(nil)
	_ Queue = (*Redis)(nil)
)

// Memory keeps payloads in process memory.
type Memory struct {
	mu    sync.Mutex
	items []json.RawMessage
}

// NewMemory returns an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish implements Queue.
func (m *Memory) Publish(_ context.Context, payload json.RawMessage) error {
	dup := cloneRaw(payload)
	m.mu.Lock()
	m.items = append(m.items, dup)
	m.mu.Unlock()
	return nil
}

// Subscribe implements Queue.
func (m *Memory) Subscribe(_ context.Context) (json.RawMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return nil, false, nil
	}
	head := m.items[0]
	m.items[0] = nil
	m.items = m.items[1:]
	if len(m.items) == 0 {
		m.items = nil
	}
	return head, true, nil
}

// Len implements Queue.
func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), nil
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	dup := make(json.RawMessage, len(raw))
	copy(dup, raw)
	return dup
}
