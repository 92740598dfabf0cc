// Package slotstest is a conformance suite for lobby.Slots
// implementations.
package slotstest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engine "github.com/jason-s-yu/keepbreathing/engine"
	"github.com/jason-s-yu/keepbreathing/internal/lobby"
)

// Run exercises slots. Each subtest uses a fresh room.
func Run(t *testing.T, slots lobby.Slots) {
	ctx := context.Background()

	t.Run("ClaimAndMove", func(t *testing.T) {
		room := uuid.New()
		ada := lobby.Seat{ID: "a", Name: "Ada"}
		require.NoError(t, slots.Claim(ctx, room, engine.ColorBlue, ada))
		require.NoError(t, slots.Claim(ctx, room, engine.ColorRed, ada))

		got, err := slots.Colors(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, lobby.Assignment{engine.ColorRed: ada}, got, "a seat holds one color")
	})

	t.Run("ColorTaken", func(t *testing.T) {
		room := uuid.New()
		require.NoError(t, slots.Claim(ctx, room, engine.ColorGreen, lobby.Seat{ID: "a"}))
		err := slots.Claim(ctx, room, engine.ColorGreen, lobby.Seat{ID: "b"})
		assert.ErrorIs(t, err, lobby.ErrColorTaken)
		assert.ErrorIs(t, slots.Claim(ctx, room, "teal", lobby.Seat{ID: "b"}), lobby.ErrInvalidColor)
	})

	t.Run("Release", func(t *testing.T) {
		room := uuid.New()
		require.NoError(t, slots.Claim(ctx, room, engine.ColorYellow, lobby.Seat{ID: "a"}))
		require.NoError(t, slots.Release(ctx, room, "a"))
		require.NoError(t, slots.Release(ctx, room, "nobody"))
		got, err := slots.Colors(ctx, room)
		require.NoError(t, err)
		assert.Empty(t, got)
		require.NoError(t, slots.Claim(ctx, room, engine.ColorYellow, lobby.Seat{ID: "b"}))
	})

	t.Run("ConcurrentClaims", func(t *testing.T) {
		room := uuid.New()
		const n = 8
		var wg sync.WaitGroup
		var mu sync.Mutex
		won := 0
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := slots.Claim(ctx, room, engine.ColorPurple, lobby.Seat{ID: fmt.Sprintf("p%d", i)})
				if err == nil {
					mu.Lock()
					won++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, lobby.ErrColorTaken)
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, won, "exactly one claim wins")
	})
}
