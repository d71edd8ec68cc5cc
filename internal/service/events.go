package service

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mmynk/mealboard/internal/models"
	"github.com/mmynk/mealboard/internal/schedule"
)

// clientBuffer is how many group events a slow client may fall behind
// before events are dropped for it.
const clientBuffer = 16

// EventHub streams group changes to browsers as server-sent events.
// Each event carries the whole group, so a client that misses one
// catches up on the next.
type EventHub struct {
	model     *schedule.Model
	heartbeat time.Duration
	stop      func()

	mu      sync.Mutex
	clients map[chan models.Group]struct{}
	closed  bool
}

// NewEventHub starts listening to model. A heartbeat comment is written to
// idle streams every heartbeat; zero disables it.
func NewEventHub(model *schedule.Model, heartbeat time.Duration) *EventHub {
	h := &EventHub{
		model:     model,
		heartbeat: heartbeat,
		clients:   make(map[chan models.Group]struct{}),
	}
	h.stop = model.Listen(h.broadcast)
	return h
}

// Clients returns the number of connected streams.
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops listening and ends every open stream.
func (h *EventHub) Close() {
	h.stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.clients {
		close(ch)
		delete(h.clients, ch)
	}
}

// broadcast runs on the goroutine that changed the model and never blocks.
func (h *EventHub) broadcast(g models.Group) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- g:
		default:
			slog.Debug("Dropping event for slow client", "group_id", g.ID)
		}
	}
}

func (h *EventHub) subscribe() (chan models.Group, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan models.Group, clientBuffer)
	h.clients[ch] = struct{}{}
	return ch, true
}

func (h *EventHub) unsubscribe(ch chan models.Group) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

// ServeHTTP streams "group" events, starting with the current group.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("Streaming not supported by response writer")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, ok := h.subscribe()
	if !ok {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	start := time.Now()
	slog.Info("Event stream opened", "remote_addr", r.RemoteAddr, "clients", h.Clients())
	defer func() {
		slog.Info("Event stream closed", "remote_addr", r.RemoteAddr, "duration", time.Since(start))
	}()

	if g, ok := h.model.CurrentGroup(); ok {
		if err := writeEvent(w, g); err != nil {
			return
		}
	}
	flusher.Flush()

	var tick <-chan time.Time
	if h.heartbeat > 0 {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case g, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, g); err != nil {
				slog.Warn("Client disconnected during event stream", "error", err)
				return
			}
			flusher.Flush()
		case <-tick:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, g models.Group) error {
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: group\ndata: %s\n\n", data)
	return err
}
