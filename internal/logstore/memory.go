package logstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. It backs tests, simulations and
// single-process relays.
type Memory struct {
	mu     sync.Mutex
	now    func() time.Time
	games  map[uuid.UUID]*memLog
	closed bool
}

type memLog struct {
	entries []Entry
	// wake is closed and replaced on every append.
	wake chan struct{}
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock replaces time.Now as the timestamp source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory returns an empty store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{now: time.Now, games: make(map[uuid.UUID]*memLog)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// log returns gameID's log, creating it. Assumes m.mu is held.
func (m *Memory) log(gameID uuid.UUID) *memLog {
	l, ok := m.games[gameID]
	if !ok {
		l = &memLog{wake: make(chan struct{})}
		m.games[gameID] = l
	}
	return l
}

func (m *Memory) Append(ctx context.Context, gameID uuid.UUID, rec Record) (Entry, error) {
	if err := rec.Validate(); err != nil {
		return Entry{}, err
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Entry{}, ErrClosed
	}

	l := m.log(gameID)
	var last int64
	if n := len(l.entries); n > 0 {
		last = l.entries[n-1].Timestamp
	}
	e := Entry{
		GameID:    gameID,
		Seq:       int64(len(l.entries) + 1),
		Timestamp: NextTimestamp(m.now(), last),
		Record:    rec,
	}
	e.Action = slices.Clone(rec.Action)
	l.entries = append(l.entries, e)
	close(l.wake)
	l.wake = make(chan struct{})
	return e, nil
}

// Read returns gameID's entries with Seq >= from.
func (m *Memory) Read(gameID uuid.UUID, from int64) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readLocked(gameID, from)
}

func (m *Memory) readLocked(gameID uuid.UUID, from int64) []Entry {
	l, ok := m.games[gameID]
	if !ok {
		return nil
	}
	i := max(from, 1) - 1
	if i >= int64(len(l.entries)) {
		return nil
	}
	return slices.Clone(l.entries[i:])
}

func (m *Memory) Subscribe(ctx context.Context, gameID uuid.UUID, from int64) (Subscription, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	next := max(from, 1)
	return Pump(ctx, func(ctx context.Context, emit EmitFunc) error {
		for {
			m.mu.Lock()
			batch := m.readLocked(gameID, next)
			wake := m.log(gameID).wake
			closed := m.closed
			m.mu.Unlock()

			for _, e := range batch {
				if !emit(e) {
					return ctx.Err()
				}
				next = e.Seq + 1
			}
			if len(batch) > 0 {
				continue
			}
			if closed {
				return ErrClosed
			}
			select {
			case <-wake:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}), nil
}

// Close ends every subscription with ErrClosed and rejects further appends.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, l := range m.games {
		close(l.wake)
		l.wake = make(chan struct{})
	}
	return nil
}
