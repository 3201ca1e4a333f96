package queue

import (
	"sync"
	"time"

	"github.com/vietddude/zkrelay/internal/core/domain"
)

// hub fans queue events out to subscribers without blocking the queue.
type hub struct {
	mu     sync.Mutex
	subs   map[int]chan domain.Event
	nextID int
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan domain.Event)}
}

func (h *hub) subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.Event, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

func (h *hub) publish(ev domain.Event) {
	if ev.EmittedAt.IsZero() {
		ev.EmittedAt = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
