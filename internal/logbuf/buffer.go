package logbuf

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries kept per process
const DefaultCapacity = 500

// StreamStdout is the only stream a pty produces
const StreamStdout = "stdout"

// Entry is a single chunk of terminal output
type Entry struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Stream    string    `json:"stream"`
	Chunk     string    `json:"chunk"`
	Timestamp time.Time `json:"timestamp"`
}

// ring is a fixed-size circular buffer. head points at the oldest entry.
type ring struct {
	entries []Entry
	head    int
	size    int
	last    time.Time
	// seq numbers entries in append order and survives Clear
	seq uint64
}

func (r *ring) push(e Entry) {
	if len(r.entries) == 0 {
		return
	}
	if e.Timestamp.Before(r.last) {
		e.Timestamp = r.last
	}
	r.last = e.Timestamp
	r.seq++
	e.Seq = r.seq

	if r.size < len(r.entries) {
		r.entries[(r.head+r.size)%len(r.entries)] = e
		r.size++
		return
	}
	// full: overwrite the oldest and advance head
	r.entries[r.head] = e
	r.head = (r.head + 1) % len(r.entries)
}

func (r *ring) snapshot() []Entry {
	out := make([]Entry, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.entries[(r.head+i)%len(r.entries)]
	}
	return out
}

// Buffer holds the most recent output of every process, keyed by process id.
// It is safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	rings    map[string]*ring
}

// New creates a buffer keeping at most capacity entries per process
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		rings:    make(map[string]*ring),
	}
}

// Append stores an entry, evicting the oldest one when the buffer is full.
// A zero timestamp is replaced with the current time.
func (b *Buffer) Append(e Entry) Entry {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Stream == "" {
		e.Stream = StreamStdout
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rings[e.ID]
	if !ok {
		r = &ring{entries: make([]Entry, b.capacity)}
		b.rings[e.ID] = r
	}
	r.push(e)
	return r.entries[(r.head+r.size-1)%len(r.entries)]
}

// Read returns a copy of the buffered entries in append order
func (b *Buffer) Read(id string) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rings[id]
	if !ok {
		return []Entry{}
	}
	return r.snapshot()
}

// Clear empties the buffer for id but keeps it allocated
func (b *Buffer) Clear(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r, ok := b.rings[id]; ok {
		r.head, r.size = 0, 0
	}
}

// Drop removes the buffer for id entirely
func (b *Buffer) Drop(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.rings[id]
	delete(b.rings, id)
	return ok
}

// Len returns the number of buffered entries for id
func (b *Buffer) Len(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r, ok := b.rings[id]; ok {
		return r.size
	}
	return 0
}
