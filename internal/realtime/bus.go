package realtime

import (
	"context"
	"fmt"
	"sync"
)

type Bus interface {
	Publish(ctx context.Context, msg Message) error
	StartForwarder(ctx context.Context, onMsg func(m Message)) error
	Close() error
}

// LocalBus delivers messages to forwarders in the same process, in publish
// order. It is the bus used when no Redis address is configured.
type LocalBus struct {
	mu         sync.RWMutex
	forwarders map[int]func(Message)
	next       int
	closed     bool
}

func NewLocalBus() *LocalBus {
	return &LocalBus{forwarders: make(map[int]func(Message))}
}

func (b *LocalBus) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus closed")
	}
	fns := make([]func(Message), 0, len(b.forwarders))
	for i := 0; i < b.next; i++ {
		if fn, ok := b.forwarders[i]; ok {
			fns = append(fns, fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(msg)
	}
	return nil
}

// StartForwarder registers onMsg until ctx is cancelled.
func (b *LocalBus) StartForwarder(ctx context.Context, onMsg func(m Message)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("bus closed")
	}
	id := b.next
	b.next++
	b.forwarders[id] = onMsg
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.forwarders, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.forwarders = make(map[int]func(Message))
	b.mu.Unlock()
	return nil
}
