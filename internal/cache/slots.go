package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	engine "github.com/jason-s-yu/keepbreathing/engine"
	"github.com/jason-s-yu/keepbreathing/internal/lobby"
)

// maxCASRetries bounds optimistic retries of one claim.
const maxCASRetries = 16

// RedisSlots stores each room's color assignment in a hash of color to
// JSON seat. Writes run under WATCH so concurrent claims never both win.
type RedisSlots struct {
	client *redis.Client
}

// NewRedisSlots wraps a client returned by Connect.
func NewRedisSlots(client *redis.Client) *RedisSlots {
	return &RedisSlots{client: client}
}

func readAssignment(ctx context.Context, c redis.Cmdable, key string) (lobby.Assignment, error) {
	raw, err := c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	a := make(lobby.Assignment, len(raw))
	for color, v := range raw {
		var seat lobby.Seat
		if err := json.Unmarshal([]byte(v), &seat); err != nil {
			return nil, fmt.Errorf("decode seat for %s: %w", color, err)
		}
		a[engine.Color(color)] = seat
	}
	return a, nil
}

// update runs change against the room's current assignment and writes the
// result if nothing else wrote the room in between.
func (s *RedisSlots) update(ctx context.Context, room uuid.UUID, change func(lobby.Assignment) (lobby.Assignment, error)) error {
	key := roomKey(room)
	txf := func(tx *redis.Tx) error {
		cur, err := readAssignment(ctx, tx, key)
		if err != nil {
			return err
		}
		next, err := change(cur)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			for color, seat := range next {
				b, err := json.Marshal(seat)
				if err != nil {
					return err
				}
				pipe.HSet(ctx, key, string(color), b)
			}
			return nil
		})
		return err
	}

	for range maxCASRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("room %s: too much contention", room)
}

func (s *RedisSlots) Claim(ctx context.Context, room uuid.UUID, color engine.Color, seat lobby.Seat) error {
	return s.update(ctx, room, func(a lobby.Assignment) (lobby.Assignment, error) {
		return a.Claim(color, seat)
	})
}

func (s *RedisSlots) Release(ctx context.Context, room uuid.UUID, seatID string) error {
	return s.update(ctx, room, func(a lobby.Assignment) (lobby.Assignment, error) {
		return a.Release(seatID), nil
	})
}

func (s *RedisSlots) Colors(ctx context.Context, room uuid.UUID) (lobby.Assignment, error) {
	a, err := readAssignment(ctx, s.client, roomKey(room))
	if err != nil {
		return nil, fmt.Errorf("read room %s: %w", room, err)
	}
	return a, nil
}
