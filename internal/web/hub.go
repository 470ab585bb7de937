package web

import (
	"sync"
	"time"
)

// OrientationSnapshot is the live view of one node's orientation.
type OrientationSnapshot struct {
	Valid  bool   `json:"valid"`
	Status string `json:"status"`
	// Quaternion is (w, x, y, z), as sent to the host.
	Quaternion    [4]float64 `json:"quaternion"`
	RollDeg       float64    `json:"roll_deg"`
	PitchDeg      float64    `json:"pitch_deg"`
	YawDeg        float64    `json:"yaw_deg"`
	LastUpdateUTC string     `json:"last_update_utc,omitempty"`
}

// Hub fans out orientation snapshots to websocket listeners. It keeps the
// most recent value so new subscribers get an immediate sample. Slow
// subscribers drop samples rather than block the poll loop.
type Hub struct {
	mu       sync.RWMutex
	subs     map[int]chan OrientationSnapshot
	nextID   int
	last     OrientationSnapshot
	haveLast bool
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[int]chan OrientationSnapshot),
	}
}

func (h *Hub) Subscribe(buffer int) (int, <-chan OrientationSnapshot) {
	if h == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan OrientationSnapshot, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	last := h.last
	have := h.haveLast
	h.mu.Unlock()
	if have {
		select {
		case ch <- last:
		default:
		}
	}
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	if h == nil {
		return
	}
	h.mu.Lock()
	ch, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Publish(s OrientationSnapshot) {
	if h == nil {
		return
	}
	if s.LastUpdateUTC == "" {
		s.LastUpdateUTC = time.Now().UTC().Format(time.RFC3339Nano)
	}
	// Sends happen under the read lock so Unsubscribe cannot close a channel
	// mid-send.
	h.mu.RLock()
	for _, ch := range h.subs {
		select {
		case ch <- s:
		default:
		}
	}
	h.mu.RUnlock()

	h.mu.Lock()
	h.last = s
	h.haveLast = true
	h.mu.Unlock()
}

// Last returns the most recent snapshot, if any.
func (h *Hub) Last() (OrientationSnapshot, bool) {
	if h == nil {
		return OrientationSnapshot{}, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.haveLast
}
