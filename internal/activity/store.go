// Package activity keeps the bounded, newest-first activity log.
package activity

import (
	"sync"
	"time"

	"agent_office/internal/domain"
)

const DefaultCapacity = 200

// Store is a fixed-capacity ring buffer of events. Appending to a full store
// overwrites the oldest entry. Reads return copies in newest-first order.
type Store struct {
	mu    sync.RWMutex
	buf   []domain.Event
	head  int // slot the next append writes to
	count int
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{buf: make([]domain.Event, capacity)}
}

func (s *Store) Capacity() int {
	return len(s.buf)
}

func (s *Store) Append(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf[s.head] = ev
	s.head = (s.head + 1) % len(s.buf)
	if s.count < len(s.buf) {
		s.count++
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Recent returns up to n newest events. n <= 0 means all of them.
func (s *Store) Recent(n int) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > s.count {
		n = s.count
	}
	out := make([]domain.Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.buf[s.index(i)])
	}
	return out
}

func (s *Store) All() []domain.Event {
	return s.Recent(0)
}

// Head returns the newest event.
func (s *Store) Head() (domain.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return domain.Event{}, false
	}
	return s.buf[s.index(0)], true
}

// CountSince counts events stamped strictly after since.
func (s *Store) CountSince(since time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for i := 0; i < s.count; i++ {
		if s.buf[s.index(i)].Timestamp.After(since) {
			n++
		}
	}
	return n
}

// index maps a newest-first position to a buffer slot. Caller holds mu.
func (s *Store) index(pos int) int {
	size := len(s.buf)
	return ((s.head-1-pos)%size + size) % size
}
