package services

import (
	"sync"

	"keyframes-backend/internal/realtime"
)

// outbox hands messages to publish from its own goroutine, in push order.
// push never blocks, so timeline commits do not wait on the bus.
type outbox struct {
	publish func(realtime.Message)

	mu     sync.Mutex
	queue  []realtime.Message
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newOutbox(publish func(realtime.Message)) *outbox {
	o := &outbox{
		publish: publish,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *outbox) push(msg realtime.Message) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.queue = append(o.queue, msg)
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *outbox) run() {
	defer close(o.done)
	for {
		o.mu.Lock()
		batch, closed := o.queue, o.closed
		o.queue = nil
		o.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-o.wake
			continue
		}
		for _, msg := range batch {
			o.publish(msg)
		}
	}
}

// close publishes whatever is still queued, then stops the goroutine.
func (o *outbox) close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		<-o.done
		return
	}
	o.closed = true
	o.mu.Unlock()
	o.signal()
	<-o.done
}
