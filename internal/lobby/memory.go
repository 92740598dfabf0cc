package lobby

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"

	engine "github.com/jason-s-yu/keepbreathing/engine"
)

// Memory holds room assignments in process.
type Memory struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]Assignment
}

// NewMemory returns an empty slot table.
func NewMemory() *Memory {
	return &Memory{rooms: make(map[uuid.UUID]Assignment)}
}

func (m *Memory) Claim(ctx context.Context, room uuid.UUID, color engine.Color, seat Seat) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := m.rooms[room].Claim(color, seat)
	if err != nil {
		return err
	}
	m.rooms[room] = next
	return nil
}

func (m *Memory) Release(ctx context.Context, room uuid.UUID, seatID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.rooms[room]; ok {
		m.rooms[room] = a.Release(seatID)
	}
	return nil
}

func (m *Memory) Colors(ctx context.Context, room uuid.UUID) (Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(Assignment, len(m.rooms[room]))
	maps.Copy(out, m.rooms[room])
	return out, nil
}
