//go:build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/keepbreathing/internal/lobby/slotstest"
	"github.com/jason-s-yu/keepbreathing/internal/logstore"
	"github.com/jason-s-yu/keepbreathing/internal/logstore/storetest"
)

func connectTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLogConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) logstore.Store {
		return NewRedisLog(connectTestRedis(t), nil)
	})
}

func TestRedisLogStreamIDsAreTimestamps(t *testing.T) {
	client := connectTestRedis(t)
	s := NewRedisLog(client, nil)
	ctx := context.Background()
	game := uuid.New()
	t.Cleanup(func() { client.Del(ctx, headKey(game), streamKey(game)) })

	e, err := s.Append(ctx, game, storetest.Record("a", 1))
	require.NoError(t, err)
	msgs, err := client.XRange(ctx, streamKey(game), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	got, err := decodeMessage(game, msgs[0])
	require.NoError(t, err)
	assert.Equal(t, e.Seq, got.Seq)
	assert.Equal(t, e.SubmissionID, got.SubmissionID)
	assert.Equal(t, msgs[0].ID, formatStreamID(e.Timestamp))
}

func TestRedisSlotsConformance(t *testing.T) {
	slotstest.Run(t, NewRedisSlots(connectTestRedis(t)))
}
