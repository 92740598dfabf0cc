package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/keepbreathing/internal/logstore"
)

// appendScript numbers and stamps an entry in one atomic step. The stream
// id is "<ts>-1", so stream order is timestamp order.
var appendScript = redis.NewScript(`
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local last = tonumber(redis.call('HGET', KEYS[1], 'ts') or '0')
local ts = now
if ts <= last then
  ts = last + 1
end
local seq = redis.call('HINCRBY', KEYS[1], 'seq', 1)
local stamp = string.format('%d', ts)
redis.call('HSET', KEYS[1], 'ts', stamp)
redis.call('XADD', KEYS[2], stamp .. '-1',
  'seq', seq, 'ts', stamp,
  'submission', ARGV[1], 'submitter', ARGV[2], 'action', ARGV[3])
return {seq, ts}
`)

// BlockTimeout bounds each XREAD so cancelled subscribers notice promptly.
var BlockTimeout = time.Second

// RedisLog is a logstore.Store on Redis Streams.
type RedisLog struct {
	client *redis.Client
	log    *logrus.Entry
}

// NewRedisLog wraps a client returned by Connect.
func NewRedisLog(client *redis.Client, log *logrus.Entry) *RedisLog {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RedisLog{client: client, log: log.WithField("store", "redis")}
}

func (s *RedisLog) Append(ctx context.Context, gameID uuid.UUID, rec logstore.Record) (logstore.Entry, error) {
	if err := rec.Validate(); err != nil {
		return logstore.Entry{}, err
	}
	res, err := appendScript.Run(ctx, s.client,
		[]string{headKey(gameID), streamKey(gameID)},
		rec.SubmissionID.String(), rec.Submitter, string(rec.Action),
	).Int64Slice()
	if err != nil {
		return logstore.Entry{}, fmt.Errorf("append to game %s: %w", gameID, err)
	}
	if len(res) != 2 {
		return logstore.Entry{}, fmt.Errorf("append to game %s: unexpected reply %v", gameID, res)
	}
	return logstore.Entry{GameID: gameID, Seq: res[0], Timestamp: res[1], Record: rec}, nil
}

func formatStreamID(ts int64) string { return strconv.FormatInt(ts, 10) + "-1" }

func decodeMessage(gameID uuid.UUID, msg redis.XMessage) (logstore.Entry, error) {
	str := func(key string) string {
		v, _ := msg.Values[key].(string)
		return v
	}
	e := logstore.Entry{GameID: gameID}
	var err error
	if e.Seq, err = strconv.ParseInt(str("seq"), 10, 64); err != nil {
		return e, fmt.Errorf("message %s seq: %w", msg.ID, err)
	}
	if e.Timestamp, err = strconv.ParseInt(str("ts"), 10, 64); err != nil {
		return e, fmt.Errorf("message %s ts: %w", msg.ID, err)
	}
	if e.SubmissionID, err = uuid.Parse(str("submission")); err != nil {
		return e, fmt.Errorf("message %s submission: %w", msg.ID, err)
	}
	e.Submitter = str("submitter")
	e.Action = json.RawMessage(str("action"))
	return e, nil
}

func (s *RedisLog) Subscribe(ctx context.Context, gameID uuid.UUID, from int64) (logstore.Subscription, error) {
	from = max(from, 1)
	stream := streamKey(gameID)
	return logstore.Pump(ctx, func(ctx context.Context, emit logstore.EmitFunc) error {
		// Catch up with XRANGE, then tail with blocking reads after the
		// last id seen.
		last := "0-0"
		msgs, err := s.client.XRange(ctx, stream, "-", "+").Result()
		for {
			if err != nil && !errors.Is(err, redis.Nil) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.WithError(err).WithField("game", gameID).Error("Stream read failed")
				return fmt.Errorf("read game %s: %w", gameID, err)
			}
			for _, msg := range msgs {
				last = msg.ID
				e, err := decodeMessage(gameID, msg)
				if err != nil {
					return err
				}
				if e.Seq < from {
					continue
				}
				if !emit(e) {
					return ctx.Err()
				}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			msgs = nil
			var streams []redis.XStream
			streams, err = s.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, last},
				Block:   BlockTimeout,
			}).Result()
			for _, st := range streams {
				msgs = append(msgs, st.Messages...)
			}
		}
	}), nil
}
