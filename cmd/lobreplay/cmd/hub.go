package cmd

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/openalpha/lobcore/internal/snapshot"
)

// wsHub is a trimmed version of the teacher's api/websocket/hub.go: no
// channel subscriptions, no per-topic buffering, just every connected
// client receiving every snapshot this replay run emits. The core package
// never imports gorilla/websocket — broadcasting is strictly this CLI's
// concern (§3 domain-stack wiring ledger).
type wsHub struct {
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcastC chan *snapshot.Snapshot
}

func newWSHub() *wsHub {
	return &wsHub{
		upgrader:   websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcastC: make(chan *snapshot.Snapshot, 256),
	}
}

func (h *wsHub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
			c.Close()
		case s := <-h.broadcastC:
			blob, err := json.Marshal(s)
			if err != nil {
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				_ = c.WriteMessage(websocket.TextMessage, blob)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *wsHub) broadcast(s *snapshot.Snapshot) {
	select {
	case h.broadcastC <- s:
	default:
		// Drop rather than block replay on a slow consumer; this is a
		// best-effort live view, not the reconciliation path.
	}
}

func (h *wsHub) serveHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.register <- conn
	go func() {
		defer func() { h.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
