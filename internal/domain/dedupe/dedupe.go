// Package dedupe tracks recently delivered payloads so that repeats are
// suppressed on both ends of a session connection.
package dedupe

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxSize is the window cap used when no option overrides it.
const DefaultMaxSize = 100

// Key identifies a payload by content.
type Key uint64

// Hash derives the window key for a payload. Text is NFC-normalized first so
// visually identical narration hashes the same regardless of encoding.
func Hash(payload string) Key {
	return Key(xxhash.Sum64String(norm.NFC.String(payload)))
}

// Deduper records seen payload keys to ensure a payload is delivered at most
// once between resynchronization points.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key Key) bool

	// Unrecord removes a key so the payload may be delivered again. Used when a
	// payload was recorded but then dropped before reaching the wire.
	Unrecord(ctx context.Context, key Key)

	// Reset forgets every key; called on boundary events.
	Reset(ctx context.Context)

	Contains(key Key) bool
	Size() int64
}

// inMemoryDeduper keeps keys in insertion order. When an insert pushes the
// window past maxSize, only the most recent maxSize/2 keys survive.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[Key]struct{}
	order   []Key // oldest first
	maxSize int   // 0 or negative = unbounded
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[Key]struct{})
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		return true
	}
	d.seen[key] = struct{}{}
	d.order = append(d.order, key)

	if d.maxSize > 0 && len(d.order) > d.maxSize {
		d.trim()
	}
	return false
}

// trim keeps the most recent half of the cap. Must be called with d.mu held.
func (d *inMemoryDeduper) trim() {
	keep := d.maxSize / 2
	drop := len(d.order) - keep
	for _, k := range d.order[:drop] {
		delete(d.seen, k)
	}
	kept := make([]Key, keep, d.maxSize+1)
	copy(kept, d.order[drop:])
	d.order = kept
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key Key) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; !exists {
		return
	}
	delete(d.seen, key)
	for i := len(d.order) - 1; i >= 0; i-- {
		if d.order[i] == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

func (d *inMemoryDeduper) Reset(_ context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[Key]struct{})
	d.order = d.order[:0]
}

func (d *inMemoryDeduper) Contains(key Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[key]
	return ok
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.order))
}
