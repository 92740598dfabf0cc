package logstore

import (
	"context"
	"sync/atomic"
)

// EmitFunc hands one entry to the subscriber. It returns false once the
// subscription has been cancelled.
type EmitFunc func(Entry) bool

// Pump runs fn in its own goroutine and exposes what it emits as a
// Subscription. fn should return when ctx is done; its error becomes Err.
func Pump(ctx context.Context, fn func(ctx context.Context, emit EmitFunc) error) Subscription {
	ctx, cancel := context.WithCancel(ctx)
	p := &pump{
		ch:     make(chan Entry),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		// done closes first so Err is settled once Entries drains.
		defer close(p.ch)
		defer close(p.done)
		err := fn(ctx, func(e Entry) bool {
			select {
			case p.ch <- e:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err == nil {
			err = ctx.Err()
		}
		p.err = err
	}()
	return p
}

type pump struct {
	ch     chan Entry
	done   chan struct{}
	cancel context.CancelFunc
	closed atomic.Bool
	err    error
}

func (p *pump) Entries() <-chan Entry { return p.ch }

func (p *pump) Err() error {
	select {
	case <-p.done:
	default:
		return nil
	}
	if p.closed.Load() {
		return nil
	}
	return p.err
}

func (p *pump) Close() error {
	p.closed.Store(true)
	p.cancel()
	<-p.done
	return nil
}
