// internal/cache/cache.go
//
// Package cache keeps the shared game log and lobby color slots in Redis.
// Several relays can share one Redis: the log's order and timestamps come
// from a server-side script, and slot claims are optimistic transactions.
package cache

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Connect parses a redis:// URL, opens a client and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Keys share the {game id} hash tag so one script touches one slot.
func headKey(gameID uuid.UUID) string   { return "kb:{" + gameID.String() + "}:head" }
func streamKey(gameID uuid.UUID) string { return "kb:{" + gameID.String() + "}:log" }
func roomKey(room uuid.UUID) string     { return "kb:room:" + room.String() + ":colors" }
