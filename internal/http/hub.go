package http

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"call-assist-service/internal/observability/logging"
	"call-assist-service/internal/service/session"
)

// subscriber is one events websocket watching one call.
type subscriber struct {
	conn    *websocket.Conn
	callID  string
	initial session.View
}

// Hub pushes session views to the events websockets of each call.
// Only the run loop writes to connections. Each connection tracks the version of
// the last view it was sent, and older views are dropped.
type Hub struct {
	clients    map[string]map[*websocket.Conn]uint64
	broadcast  chan session.View
	register   chan subscriber
	unregister chan *websocket.Conn
	done       chan struct{}
	logger     zerolog.Logger
}

// NewHub creates a hub. Run must be started before views are delivered.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*websocket.Conn]uint64),
		broadcast:  make(chan session.View, 256),
		register:   make(chan subscriber),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logging.WithComponent("events-hub"),
	}
}

// Broadcast queues a view for the call's subscribers. It never blocks; when the
// queue is full the view is dropped, and the next change carries the full state anyway.
func (h *Hub) Broadcast(v session.View) {
	select {
	case h.broadcast <- v:
	default:
		h.logger.Debug().Str("callId", v.ID).Msg("Event queue full, view dropped")
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer func() {
		for _, conns := range h.clients {
			for conn := range conns {
				conn.Close()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case sub := <-h.register:
			if h.clients[sub.callID] == nil {
				h.clients[sub.callID] = make(map[*websocket.Conn]uint64)
			}
			h.clients[sub.callID][sub.conn] = 0
			h.logger.Debug().Str("callId", sub.callID).Int("subscribers", len(h.clients[sub.callID])).Msg("Events client connected")
			h.write(sub.callID, sub.conn, sub.initial)

		case conn := <-h.unregister:
			for callID, conns := range h.clients {
				if _, ok := conns[conn]; ok {
					h.drop(callID, conn)
					h.logger.Debug().Str("callId", callID).Msg("Events client disconnected")
				}
			}

		case v := <-h.broadcast:
			for conn, last := range h.clients[v.ID] {
				if v.Version <= last {
					continue
				}
				h.write(v.ID, conn, v)
			}
		}
	}
}

// subscribe registers a connection. It reports false once the hub has stopped.
func (h *Hub) subscribe(sub subscriber) bool {
	select {
	case h.register <- sub:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unsubscribe(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

func (h *Hub) write(callID string, conn *websocket.Conn, v session.View) {
	if err := conn.WriteJSON(v); err != nil {
		h.logger.Debug().Err(err).Str("callId", callID).Msg("Events write failed")
		h.drop(callID, conn)
		return
	}
	h.clients[callID][conn] = v.Version
}

func (h *Hub) drop(callID string, conn *websocket.Conn) {
	conn.Close()
	delete(h.clients[callID], conn)
	if len(h.clients[callID]) == 0 {
		delete(h.clients, callID)
	}
}
