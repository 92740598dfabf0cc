// Package storetest is a conformance suite every logstore.Store
// implementation runs from its own tests.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/keepbreathing/internal/logstore"
)

// Timeout bounds every wait on a subscription.
var Timeout = 5 * time.Second

// Record returns a record carrying a small valid action.
func Record(submitter string, n int) logstore.Record {
	return logstore.Record{
		SubmissionID: uuid.New(),
		Submitter:    submitter,
		Action:       json.RawMessage(fmt.Sprintf(`{"type":"ROLL","playerId":%q,"dir":"down","n":%d}`, submitter, n)),
	}
}

// Next waits for the subscription's next entry.
func Next(t *testing.T, sub logstore.Subscription) logstore.Entry {
	t.Helper()
	select {
	case e, ok := <-sub.Entries():
		require.True(t, ok, "subscription ended: %v", sub.Err())
		return e
	case <-time.After(Timeout):
		t.Fatal("timed out waiting for entry")
	}
	return logstore.Entry{}
}

// Run exercises store. newStore must return an empty store for each call.
func Run(t *testing.T, newStore func(t *testing.T) logstore.Store) {
	t.Run("AppendAssignsOrder", func(t *testing.T) { testAppendAssignsOrder(t, newStore(t)) })
	t.Run("InvalidRecord", func(t *testing.T) { testInvalidRecord(t, newStore(t)) })
	t.Run("SubscribeCatchUpThenLive", func(t *testing.T) { testSubscribeCatchUp(t, newStore(t)) })
	t.Run("SubscribeFrom", func(t *testing.T) { testSubscribeFrom(t, newStore(t)) })
	t.Run("ConcurrentAppends", func(t *testing.T) { testConcurrentAppends(t, newStore(t)) })
	t.Run("CloseSubscription", func(t *testing.T) { testCloseSubscription(t, newStore(t)) })
}

func testAppendAssignsOrder(t *testing.T, s logstore.Store) {
	ctx := context.Background()
	game, other := uuid.New(), uuid.New()

	var last int64
	for i := 1; i <= 3; i++ {
		rec := Record("a", i)
		e, err := s.Append(ctx, game, rec)
		require.NoError(t, err)
		assert.Equal(t, int64(i), e.Seq)
		assert.Equal(t, game, e.GameID)
		assert.Equal(t, rec.SubmissionID, e.SubmissionID)
		assert.JSONEq(t, string(rec.Action), string(e.Action))
		assert.Greater(t, e.Timestamp, last)
		last = e.Timestamp
	}

	e, err := s.Append(ctx, other, Record("b", 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.Seq, "logs are numbered per game")
}

func testInvalidRecord(t *testing.T, s logstore.Store) {
	_, err := s.Append(context.Background(), uuid.New(), logstore.Record{SubmissionID: uuid.New()})
	assert.ErrorIs(t, err, logstore.ErrInvalidRecord)
}

func testSubscribeCatchUp(t *testing.T, s logstore.Store) {
	ctx := context.Background()
	game := uuid.New()
	first, err := s.Append(ctx, game, Record("a", 1))
	require.NoError(t, err)
	_, err = s.Append(ctx, game, Record("b", 2))
	require.NoError(t, err)

	sub, err := s.Subscribe(ctx, game, 1)
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, first.SubmissionID, Next(t, sub).SubmissionID)
	assert.Equal(t, int64(2), Next(t, sub).Seq)

	live, err := s.Append(ctx, game, Record("a", 3))
	require.NoError(t, err)
	got := Next(t, sub)
	assert.Equal(t, live.Seq, got.Seq)
	assert.Equal(t, live.Timestamp, got.Timestamp)
}

func testSubscribeFrom(t *testing.T, s logstore.Store) {
	ctx := context.Background()
	game := uuid.New()
	for i := 1; i <= 4; i++ {
		_, err := s.Append(ctx, game, Record("a", i))
		require.NoError(t, err)
	}

	sub, err := s.Subscribe(ctx, game, 3)
	require.NoError(t, err)
	defer sub.Close()
	assert.Equal(t, int64(3), Next(t, sub).Seq)
	assert.Equal(t, int64(4), Next(t, sub).Seq)
}

func testConcurrentAppends(t *testing.T, s logstore.Store) {
	ctx := context.Background()
	game := uuid.New()
	const n = 20

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Append(ctx, game, Record(fmt.Sprintf("p%d", i), i))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	sub, err := s.Subscribe(ctx, game, 1)
	require.NoError(t, err)
	defer sub.Close()
	var last int64
	for i := 1; i <= n; i++ {
		e := Next(t, sub)
		assert.Equal(t, int64(i), e.Seq)
		assert.Greater(t, e.Timestamp, last, "timestamps strictly increase")
		last = e.Timestamp
	}
}

func testCloseSubscription(t *testing.T, s logstore.Store) {
	ctx := context.Background()
	sub, err := s.Subscribe(ctx, uuid.New(), 1)
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	select {
	case _, ok := <-sub.Entries():
		assert.False(t, ok, "no entries after close")
	case <-time.After(Timeout):
		t.Fatal("Entries not closed")
	}
	assert.NoError(t, sub.Err())

	cctx, cancel := context.WithCancel(ctx)
	sub, err = s.Subscribe(cctx, uuid.New(), 1)
	require.NoError(t, err)
	cancel()
	select {
	case <-sub.Entries():
	case <-time.After(Timeout):
		t.Fatal("Entries not closed after cancel")
	}
	assert.ErrorIs(t, sub.Err(), context.Canceled)
}
