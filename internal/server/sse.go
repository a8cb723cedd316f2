package server

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dyluth/stacks/pkg/event"
)

// sseHeartbeat is how often an idle stream emits a comment frame so proxies
// and clients can tell the connection is alive.
const sseHeartbeat = 1 * time.Second

// sseClientBuffer sizes each client's event queue. A client that falls this
// far behind starts losing events rather than stalling the simulation.
const sseClientBuffer = 64

// sseHub fans simulation events out to connected stream clients.
type sseHub struct {
	mu      sync.Mutex
	clients map[chan event.SimulationEvent]struct{}
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[chan event.SimulationEvent]struct{})}
}

// broadcast is registered as an orchestrator callback. It must never block:
// full client queues drop the event.
func (h *sseHub) broadcast(ev event.SimulationEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *sseHub) subscribe() chan event.SimulationEvent {
	ch := make(chan event.SimulationEvent, sseClientBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *sseHub) unsubscribe(ch chan event.SimulationEvent) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// handleSimStream serves the live event feed as Server-Sent Events. The
// stream opens with a connected frame, heartbeats while idle, and closes
// itself after forwarding a terminal scenario_end frame.
func (s *Server) handleSimStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	ch := s.sse.subscribe()
	defer s.sse.unsubscribe(ch)

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				s.log.WithError(err).Warn("failed to encode stream event")
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()

			if marker := ev.Marker(); marker != "" {
				fmt.Fprintf(w, "event: %s\ndata: {}\n\n", marker)
				flusher.Flush()
				return
			}
		}
	}
}
