package registry

import (
	"errors"
	"sync"
	"time"
)

// EventType distinguishes lifecycle notifications.
type EventType string

const (
	Created EventType = "created"
	Removed EventType = "removed"
)

// Event is a lifecycle notification for one managed instance.
type Event struct {
	Type      EventType
	Instance  Managed
	Timestamp time.Time
}

// Observer receives lifecycle events. Observers run on the goroutine that
// caused the event and must not call back into the registry that produced it.
type Observer func(Event) error

// hub fans lifecycle events out to observers. It also keeps the live
// instances in creation order so a late subscriber can catch up.
type hub struct {
	mu   sync.Mutex
	live []Managed
	subs map[uint64]Observer
	ids  []uint64
	next uint64
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]Observer)}
}

// publish records ev and delivers it to the current observers, in
// subscription order. Every observer sees the event; their errors are joined.
func (h *hub) publish(typ EventType, m Managed) error {
	h.mu.Lock()
	switch typ {
	case Created:
		if m.IsRemoved() {
			h.mu.Unlock()
			return nil
		}
		h.live = append(h.live, m)
	case Removed:
		h.forget(m)
	}
	observers := make([]Observer, 0, len(h.ids))
	for _, id := range h.ids {
		observers = append(observers, h.subs[id])
	}
	h.mu.Unlock()

	ev := Event{Type: typ, Instance: m, Timestamp: time.Now()}
	var errs []error
	for _, obs := range observers {
		if err := obs(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// must hold h.mu
func (h *hub) forget(m Managed) {
	for i, live := range h.live {
		if live == m {
			h.live = append(h.live[:i], h.live[i+1:]...)
			return
		}
	}
}

// subscribe replays a Created event for every live instance and then adds
// obs, all under the hub lock, so obs misses nothing and sees nothing twice.
// When the replay fails obs is not subscribed.
func (h *hub) subscribe(obs Observer) (cancel func(), err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	var errs []error
	for _, m := range h.live {
		if m.IsRemoved() {
			continue
		}
		if err := obs(Event{Type: Created, Instance: m, Timestamp: now}); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	id := h.next
	h.next++
	h.subs[id] = obs
	h.ids = append(h.ids, id)

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(id) })
	}, nil
}

func (h *hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
	for i, v := range h.ids {
		if v == id {
			h.ids = append(h.ids[:i], h.ids[i+1:]...)
			return
		}
	}
}

func (h *hub) liveCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}
