// Package events carries committed message-store mutations to asynchronous
// consumers over a bounded in-memory queue. Delivery is at-least-once;
// consumers are expected to be idempotent.
package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"msgcore/pkg/telemetry"
)

const defaultCapacity = 64 * 1024
const fallbackCapacity = 1024

// Queue is a threadsafe fixed-size queue of Event items.
type Queue struct {
	ch       chan *Item
	capacity int
	dropped  uint64
	closed   int32

	enqWg     sync.WaitGroup
	closeOnce sync.Once
	inFlight  int64
}

// NewQueue creates a bounded Queue of the given capacity (>0).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = fallbackCapacity
	}
	return &Queue{ch: make(chan *Item, capacity), capacity: capacity}
}

// NewDefaultQueue creates a Queue with the default capacity.
func NewDefaultQueue() *Queue { return NewQueue(defaultCapacity) }

// Out exposes items for consumers. Do not close the channel.
func (q *Queue) Out() <-chan *Item { return q.ch }

// Dropped returns the number of events rejected for capacity. A caller
// abandoning a blocking Enqueue is not a drop.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }

// Depth returns the number of buffered-but-unprocessed events.
func (q *Queue) Depth() int64 { return atomic.LoadInt64(&q.inFlight) }

func (q *Queue) depthGauge(delta float64) {
	telemetry.QueueDepth.Add(delta)
}

var enqSeq uint64

func (q *Queue) copyEvent(ev *Event) (*Item, *bytebufferpool.ByteBuffer) {
	ne := eventPool.Get().(*Event)
	*ne = *ev
	ne.EnqSeq = atomic.AddUint64(&enqSeq, 1)
	var bb *bytebufferpool.ByteBuffer
	if len(ev.Payload) > 0 {
		bb = bytebufferpool.Get()
		bb.B = append(bb.B[:0], ev.Payload...)
		ne.Payload = bb.B[:len(ev.Payload)]
	}
	it := itemPool.Get().(*Item)
	*it = Item{Event: ne, buf: bb, q: q}
	return it, bb
}

func (q *Queue) release(it *Item, bb *bytebufferpool.ByteBuffer) {
	if bb != nil {
		bytebufferpool.Put(bb)
	}
	it.Event.Payload = nil
	eventPool.Put(it.Event)
}

// TryEnqueue enqueues without blocking; ErrQueueFull when at capacity.
func (q *Queue) TryEnqueue(ev *Event) error {
	if atomic.LoadInt32(&q.closed) == 1 {
		return ErrQueueClosed
	}
	q.enqWg.Add(1)
	defer q.enqWg.Done()
	if atomic.LoadInt32(&q.closed) == 1 {
		return ErrQueueClosed
	}

	it, bb := q.copyEvent(ev)
	select {
	case q.ch <- it:
		atomic.AddInt64(&q.inFlight, 1)
		q.depthGauge(1)
		return nil
	default:
		q.release(it, bb)
		atomic.AddUint64(&q.dropped, 1)
		telemetry.EventsDropped.Inc()
		return ErrQueueFull
	}
}

// Enqueue blocks until the event is accepted or ctx is cancelled.
func (q *Queue) Enqueue(ctx context.Context, ev *Event) error {
	if atomic.LoadInt32(&q.closed) == 1 {
		return ErrQueueClosed
	}
	q.enqWg.Add(1)
	defer q.enqWg.Done()
	if atomic.LoadInt32(&q.closed) == 1 {
		return ErrQueueClosed
	}

	it, bb := q.copyEvent(ev)
	select {
	case q.ch <- it:
		atomic.AddInt64(&q.inFlight, 1)
		q.depthGauge(1)
		return nil
	case <-ctx.Done():
		q.release(it, bb)
		return ctx.Err()
	}
}

// RunWorker dequeues items and calls handler for each, always releasing
// the item. Exits when stop closes or the queue closes; either way the
// items already buffered are handled first, so a committed mutation never
// loses its fan-out to shutdown ordering.
func (q *Queue) RunWorker(stop <-chan struct{}, handler func(*Event) error) {
	handle := func(it *Item) {
		defer it.Done()
		_ = handler(it.Event)
	}
	for {
		select {
		case it, ok := <-q.ch:
			if !ok {
				return
			}
			handle(it)
		case <-stop:
			for {
				select {
				case it, ok := <-q.ch:
					if !ok {
						return
					}
					handle(it)
				default:
					return
				}
			}
		}
	}
}

// Close marks the queue closed, waits for in-progress enqueues, and closes
// the output channel so workers drain and exit.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		atomic.StoreInt32(&q.closed, 1)
		q.enqWg.Wait()
		close(q.ch)
	})
}
