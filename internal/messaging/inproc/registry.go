package inproc

import (
	"errors"
	"log"
	"sync"

	"agent_office/internal/domain"
)

var (
	ErrSubscriberExists = errors.New("subscriber is already registered")
)

// Registry fans envelopes out to live subscribers. Each subscriber owns a
// buffered queue; a full queue drops the envelope for that subscriber only.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]chan domain.Envelope
	buffer int
	logger *log.Logger
}

func New(buffer int, logger *log.Logger) *Registry {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		subs:   make(map[string]chan domain.Envelope),
		buffer: buffer,
		logger: logger,
	}
}

// Register adds a subscriber. The initial envelopes are queued before the
// subscriber becomes visible to Broadcast, so they always arrive first.
func (r *Registry) Register(id string, initial ...domain.Envelope) (<-chan domain.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[id]; ok {
		return nil, ErrSubscriberExists
	}
	ch := make(chan domain.Envelope, r.buffer+len(initial))
	for _, env := range initial {
		ch <- env
	}
	r.subs[id] = ch
	return ch, nil
}

// Unregister removes the subscriber and closes its queue. Unknown ids are a
// no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.subs[id]
	if !ok {
		return
	}
	delete(r.subs, id)
	close(ch)
}

// Broadcast offers env to every subscriber without blocking and returns how
// many queues accepted it.
func (r *Registry) Broadcast(env domain.Envelope) int {
	// Hold the read lock across sends so Unregister cannot close a queue
	// mid-send.
	r.mu.RLock()
	defer r.mu.RUnlock()

	sent := 0
	for id, ch := range r.subs {
		select {
		case ch <- env:
			sent++
		default:
			r.logger.Printf("subscriber queue full, dropped type=%s subscriber=%s", env.Type, id)
		}
	}
	return sent
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
