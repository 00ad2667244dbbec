package events

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// Kind names the message store event carried by an Event.
type Kind string

const (
	KindSent    Kind = "sent"
	KindEdited  Kind = "edited"
	KindDeleted Kind = "deleted"
)

// Event describes a committed message mutation. Payload holds the message
// JSON at commit time and may be backed by a pooled buffer; consumers must
// call Item.Done() exactly once when finished.
type Event struct {
	Kind  Kind
	Conv  string
	MsgID string
	// Actor is the sender, editor, or deleter that caused the event.
	Actor string
	// TS is the mutation timestamp (ns).
	TS      int64
	Payload []byte
	// EnqSeq is a monotonic enqueue sequence for deterministic ordering.
	EnqSeq uint64
}

// Item wraps an Event and owns its pooled buffer.
type Item struct {
	Event *Event

	buf  *bytebufferpool.ByteBuffer
	once sync.Once
	q    *Queue
}

// Done returns pooled resources. Safe to call more than once.
func (it *Item) Done() {
	it.once.Do(func() {
		if it.q != nil {
			atomic.AddInt64(&it.q.inFlight, -1)
			it.q.depthGauge(-1)
			it.q = nil
		}
		if it.buf != nil {
			if cap(it.buf.B) <= maxPooledBuffer {
				bytebufferpool.Put(it.buf)
			}
			it.buf = nil
		}
		if it.Event != nil {
			it.Event.Payload = nil
			eventPool.Put(it.Event)
			it.Event = nil
		}
		itemPool.Put(it)
	})
}

var eventPool = sync.Pool{New: func() any { return &Event{} }}
var itemPool = sync.Pool{New: func() any { return &Item{} }}

// maxPooledBuffer caps the buffers returned to the pool; larger ones are
// dropped so resident memory stays bounded.
const maxPooledBuffer = 256 * 1024

// ErrQueueFull is returned by TryEnqueue when the queue is at capacity.
var ErrQueueFull = errors.New("event queue full")

// ErrQueueClosed is returned when enqueueing after Close.
var ErrQueueClosed = errors.New("event queue closed")
