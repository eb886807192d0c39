package events

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber channel depth used when no
// explicit buffer is configured.
const DefaultBuffer = 1024

// Stream fans lifecycle events out to subscribers. Publishing never
// blocks the registry: a subscriber that falls behind loses events and
// the drop is counted.
type Stream struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	buffer  int
	closed  bool
	dropped atomic.Uint64
}

// NewStream creates a stream with the given per-subscriber buffer
func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Stream{
		subs:   make(map[uint64]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers a consumer and returns its id and channel. The
// channel is closed on Unsubscribe or when the stream shuts down.
func (s *Stream) Subscribe() (uint64, <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, s.buffer)
	if s.closed {
		close(ch)
		return 0, ch
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a consumer and closes its channel
func (s *Stream) Unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// Publish delivers an event to every subscriber without blocking
func (s *Stream) Publish(e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			// Buffer full, drop event
			s.dropped.Add(1)
		}
	}
}

// Dropped reports how many events were discarded on full buffers
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

// Close shuts the stream down and closes every subscriber channel
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
