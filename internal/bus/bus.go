// Package bus fans caption and error events out to subscribers. Delivery
// is synchronous and in subscription order; subscriptions added or removed
// while an emit is in flight do not affect that pass.
package bus

import (
	"sync"

	"github.com/livecapd/livecap/internal/transcribe"
)

type Bus struct {
	captions registry[transcribe.CaptionEvent]
	errors   registry[transcribe.ErrorEvent]
}

func New() *Bus {
	return &Bus{}
}

// OnCaption registers a caption subscriber. The returned function removes
// it; other subscriptions are unaffected.
func (b *Bus) OnCaption(fn func(transcribe.CaptionEvent)) func() {
	return b.captions.add(fn)
}

// OnError registers an error subscriber. The returned function removes it.
func (b *Bus) OnError(fn func(transcribe.ErrorEvent)) func() {
	return b.errors.add(fn)
}

func (b *Bus) EmitCaption(ev transcribe.CaptionEvent) {
	b.captions.emit(ev)
}

func (b *Bus) EmitError(ev transcribe.ErrorEvent) {
	b.errors.emit(ev)
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// registry is an ordered callback collection with O(1) removal by
// identity. Removed entries become tombstones and are compacted once they
// outnumber the live ones.
type registry[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	subs    []subscriber[T]
	byID    map[uint64]int
	removed int
}

func (r *registry[T]) add(fn func(T)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byID == nil {
		r.byID = make(map[uint64]int)
	}
	r.nextID++
	id := r.nextID
	r.byID[id] = len(r.subs)
	r.subs = append(r.subs, subscriber[T]{id: id, fn: fn})
	return func() { r.remove(id) }
}

func (r *registry[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	r.subs[i].fn = nil
	r.removed++
	if r.removed*2 > len(r.subs) {
		r.compact()
	}
}

// compact requires r.mu held.
func (r *registry[T]) compact() {
	live := r.subs[:0]
	for _, s := range r.subs {
		if s.fn != nil {
			r.byID[s.id] = len(live)
			live = append(live, s)
		}
	}
	r.subs = live
	r.removed = 0
}

func (r *registry[T]) emit(v T) {
	r.mu.Lock()
	fns := make([]func(T), 0, len(r.subs)-r.removed)
	for _, s := range r.subs {
		if s.fn != nil {
			fns = append(fns, s.fn)
		}
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
