// Package events implements the per-job Event Bus: a bounded
// ring buffer of events with monotonic IDs, multi-subscriber fan-out,
// and replay-from-last-event-id for SSE reconnection. Ported from
// original_source/app/events/sse.py's EventEmitter/EventRegistry,
// replacing its asyncio.Queue subscribers with buffered Go channels.
package events

import (
	"sync"
)

// Event is one emitted event, replayable by its monotonic ID.
type Event struct {
	ID   int
	Name string
	Data map[string]interface{}
}

// subscriberBufferSize is the headroom each subscriber's channel has
// beyond a full ring-buffer replay, so a slow SSE client cannot block
// emit() for other subscribers indefinitely; emit
// drops the event for that one subscriber if its channel is full,
// favoring the other subscribers over a stalled one.
const subscriberBufferSize = 64

// Bus is a per-job event bus with ring-buffer replay. The zero value is
// not usable; construct with NewBus.
type Bus struct {
	mu          sync.Mutex
	bufferSize  int
	ring        []Event
	nextID      int
	subscribers map[chan Event]struct{}
	closed      bool
}

// NewBus creates a Bus whose ring buffer holds at most bufferSize events
// (default 200, configured via VPPE_SSE_RING_BUFFER_SIZE).
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 200
	}
	return &Bus{
		bufferSize:  bufferSize,
		subscribers: make(map[chan Event]struct{}),
	}
}

// Emit assigns the next monotonic ID, stores the event in the ring
// buffer (evicting the oldest on overflow), and fans it out to every
// live subscriber. Emitting on a closed bus is a no-op that returns the
// zero Event.
func (b *Bus) Emit(name string, data map[string]interface{}) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return Event{}
	}

	b.nextID++
	evt := Event{ID: b.nextID, Name: name, Data: data}

	b.ring = append(b.ring, evt)
	if len(b.ring) > b.bufferSize {
		b.ring = b.ring[len(b.ring)-b.bufferSize:]
	}

	for ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			// Slow subscriber; drop rather than block other subscribers.
		}
	}
	return evt
}

// Subscribe returns a channel of events. Every buffered event with
// ID > *afterID (or every buffered event, if afterID is nil) is replayed
// on the channel before any newly emitted event. If the bus is
// already closed, the channel is closed immediately after replay so the
// caller's range loop ends naturally. The returned unsubscribe func must
// be called when the caller is done reading.
func (b *Bus) Subscribe(afterID *int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// The channel must be large enough to hold a full replay without
	// blocking while b.mu is held (the ring buffer can hold up to
	// b.bufferSize events), plus subscriberBufferSize of headroom for
	// events emitted after Subscribe returns.
	capacity := b.bufferSize + subscriberBufferSize
	ch := make(chan Event, capacity)

	for _, evt := range b.ring {
		if afterID == nil || evt.ID > *afterID {
			ch <- evt
		}
	}

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	b.subscribers[ch] = struct{}{}
	return ch, func() { b.unsubscribe(ch) }
}

func (b *Bus) unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Close marks the bus terminated: every current subscriber's channel is
// closed (signaling end-of-stream to range loops) and any subsequent
// Subscribe call gets an already-closed channel after replay, matching
// sse.py's close() semantics.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = make(map[chan Event]struct{})
}

// IsClosed reports whether Close has been called.
func (b *Bus) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Snapshot returns a copy of every event currently held in the ring
// buffer, oldest first.
func (b *Bus) Snapshot() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.ring))
	copy(out, b.ring)
	return out
}

// Registry holds one Bus per job, created lazily.
type Registry struct {
	mu         sync.Mutex
	bufferSize int
	buses      map[string]*Bus
}

// NewRegistry creates an empty Registry; every bus it creates uses
// bufferSize as its ring buffer size.
func NewRegistry(bufferSize int) *Registry {
	return &Registry{
		bufferSize: bufferSize,
		buses:      make(map[string]*Bus),
	}
}

// GetOrCreate returns the Bus for jobID, creating an empty one if none
// exists yet. It never replaces an existing bus, closed or not: a
// closed bus still holds the terminal run's buffered events, which a
// late or reconnecting SSE subscriber must be able to replay before
// seeing the stream end. Use StartRun to open a fresh bus for a new
// pipeline run.
func (r *Registry) GetOrCreate(jobID string) *Bus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buses[jobID]; ok {
		return b
	}
	b := NewBus(r.bufferSize)
	r.buses[jobID] = b
	return b
}

// StartRun installs a fresh, open Bus for jobID, closing and discarding
// whatever bus was there before (if any). The orchestrator calls this at
// the start of every run, including retries, so progress events always
// land on a live bus rather than one left closed by a prior run.
func (r *Registry) StartRun(jobID string) *Bus {
	r.mu.Lock()
	old, existed := r.buses[jobID]
	b := NewBus(r.bufferSize)
	r.buses[jobID] = b
	r.mu.Unlock()
	if existed {
		old.Close()
	}
	return b
}

// Get returns the Bus for jobID, or nil if none exists.
func (r *Registry) Get(jobID string) *Bus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buses[jobID]
}

// Remove closes and discards the Bus for jobID, if any.
func (r *Registry) Remove(jobID string) {
	r.mu.Lock()
	b, ok := r.buses[jobID]
	if ok {
		delete(r.buses, jobID)
	}
	r.mu.Unlock()
	if ok {
		b.Close()
	}
}
