package app

import (
	"sync"
	"time"
)

// Notification methods pushed to API consumers.
const (
	NotifySessionChanged    = "session_changed"
	NotifyLoansUpdated      = "loans_updated"
	NotifyOperationFinished = "operation_finished"
)

type NotificationEvent struct {
	Seq       int64     `json:"seq"`
	Method    string    `json:"method"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationHub fans session and ledger events out to API consumers.
// Events carry a monotonic sequence number; a bounded history lets a
// polling consumer resume from the last sequence it saw without a
// persistent subscription.
type NotificationHub struct {
	mu      sync.Mutex
	nextSeq int64
	limit   int
	history []NotificationEvent
	subs    map[int]chan NotificationEvent
	nextSub int
}

func NewNotificationHub(limit int) *NotificationHub {
	if limit < 1 {
		limit = 1
	}
	return &NotificationHub{
		limit: limit,
		subs:  make(map[int]chan NotificationEvent),
	}
}

func (h *NotificationHub) Publish(method string, payload any) NotificationEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSeq++
	event := NotificationEvent{
		Seq:       h.nextSeq,
		Method:    method,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	h.history = append(h.history, event)
	if len(h.history) > h.limit {
		h.history = append([]NotificationEvent(nil), h.history[len(h.history)-h.limit:]...)
	}

	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			// slow consumer: drop the subscription, the poller path
			// still has the history
			close(ch)
			delete(h.subs, id)
		}
	}

	return event
}

// Since returns the retained events after fromSeq, oldest first.
func (h *NotificationHub) Since(fromSeq int64) []NotificationEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]NotificationEvent, 0)
	for _, event := range h.history {
		if event.Seq > fromSeq {
			out = append(out, event)
		}
	}
	return out
}

// Subscribe returns the replay after fromSeq, a live channel, and a
// cancel func. The channel closes if the subscriber falls behind.
func (h *NotificationHub) Subscribe(fromSeq int64) ([]NotificationEvent, <-chan NotificationEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay := make([]NotificationEvent, 0)
	for _, event := range h.history {
		if event.Seq > fromSeq {
			replay = append(replay, event)
		}
	}

	id := h.nextSub
	h.nextSub++
	ch := make(chan NotificationEvent, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			close(sub)
			delete(h.subs, id)
		}
	}
	return replay, ch, cancel
}

func (h *NotificationHub) LastSeq() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextSeq
}
