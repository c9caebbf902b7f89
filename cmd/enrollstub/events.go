package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// activityEvent is one entry on the websocket activity feed.
type activityEvent struct {
	Type     string `json:"type"`
	TempID   string `json:"temp_id,omitempty"`
	Slot     string `json:"slot,omitempty"`
	Name     string `json:"name,omitempty"`
	Size     int64  `json:"size,omitempty"`
	RecordID string `json:"record_id,omitempty"`
	Count    int    `json:"count,omitempty"`
}

// eventHub fans upload and submission activity out to websocket
// subscribers. A slow subscriber is dropped rather than buffered.
type eventHub struct {
	mu     sync.Mutex
	subs   map[chan activityEvent]struct{}
	logger *slog.Logger
}

func newEventHub(logger *slog.Logger) *eventHub {
	return &eventHub{
		subs:   make(map[chan activityEvent]struct{}),
		logger: logger,
	}
}

func (h *eventHub) broadcast(ev activityEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *eventHub) subscribe() chan activityEvent {
	ch := make(chan activityEvent, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *eventHub) unsubscribe(ch chan activityEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *eventHub) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // dev stub, any origin
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
