// stream.go fans history events out to websocket subscribers. The hub
// holds one buffered channel per client; a client that cannot keep up is
// dropped so it can never stall the loop's event fanout.

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/didac-crst/fritzbox-ipv4-watchdog/internal/history"
)

const streamBuffer = 16

type hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[int]chan history.Event
	nextID  int
	closed  bool
}

func newHub(log *slog.Logger) *hub {
	return &hub{log: log, clients: make(map[int]chan history.Event)}
}

// broadcast delivers ev to every subscriber without blocking. It runs on
// the watchdog goroutine through the history store's listener fanout.
func (h *hub) broadcast(ev history.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			h.log.Warn("dropping slow event stream client", "client", id)
			close(ch)
			delete(h.clients, id)
		}
	}
}

func (h *hub) register() (int, chan history.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, nil
	}
	h.nextID++
	ch := make(chan history.Event, streamBuffer)
	h.clients[h.nextID] = ch
	return h.nextID, ch
}

func (h *hub) unregister(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[id]; ok {
		close(ch)
		delete(h.clients, id)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.clients {
		close(ch)
		delete(h.clients, id)
	}
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("event stream accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	id, ch := s.hub.register()
	if ch == nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.hub.unregister(id)

	// The stream is write-only; CloseRead reaps control frames and
	// cancels the context when the client goes away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "event stream closed")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}
