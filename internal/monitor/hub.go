// Package monitor keeps a short in-memory feed of processing activity for
// the ops API.
package monitor

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Activity kinds published by the dispatcher.
const (
	KindProcessed  = "message.processed"
	KindDeadLetter = "message.dead_letter"
	KindSkipped    = "message.skipped"
	KindRunAlert   = "alert.run"
	KindInstAlert  = "alert.instance"
)

// Activity is one entry of the feed.
type Activity struct {
	ID   int64           `json:"id"`
	Kind string          `json:"kind"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Hub is an in-memory pub/sub with a ring buffer for late readers.
type Hub struct {
	nextID atomic.Int64
	now    func() time.Time

	mu    sync.Mutex
	ring  []Activity
	start int
	size  int

	subs      map[int]chan Activity
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		now:  time.Now,
		ring: make([]Activity, capacity),
		subs: make(map[int]chan Activity),
	}
}

// Publish records an activity. data is JSON encoded; values that fail to
// encode are recorded as an empty object.
func (h *Hub) Publish(kind string, data any) {
	if h == nil {
		return
	}
	id := h.nextID.Add(1)

	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}
	a := Activity{ID: id, Kind: kind, At: h.now().UTC(), Data: payload}

	h.mu.Lock()
	h.pushLocked(a)
	for _, ch := range h.subs {
		// Slow readers drop entries rather than block the event loop.
		select {
		case ch <- a:
		default:
		}
	}
	h.mu.Unlock()
}

// Subscribe returns a channel of new activity and a cancel func that closes it.
func (h *Hub) Subscribe() (<-chan Activity, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Activity, 64)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Since returns buffered activity with ID > lastID, oldest first.
func (h *Hub) Since(lastID int64) []Activity {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Activity, 0, h.size)
	for i := 0; i < h.size; i++ {
		a := h.ring[(h.start+i)%len(h.ring)]
		if a.ID > lastID {
			out = append(out, a)
		}
	}
	return out
}

func (h *Hub) pushLocked(a Activity) {
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = a
		h.size++
		return
	}
	// Overwrite oldest.
	h.ring[h.start] = a
	h.start = (h.start + 1) % capacity
}
