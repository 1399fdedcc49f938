package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	json "github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/camuig/evo-trader/internal/logger"
	"github.com/camuig/evo-trader/internal/scheduler"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub streams every finished cycle to connected websocket clients.
type Hub struct {
	mu        sync.Mutex
	clients   map[*websocket.Conn]struct{}
	broadcast chan []byte
	logger    *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan []byte, 16),
		logger:    log.Named("hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				_ = c.Close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				_ = c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					_ = c.Close()
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish never blocks the scheduler; a full buffer drops the message.
func (h *Hub) Publish(res scheduler.CycleResult) {
	data, err := json.Marshal(res)
	if err != nil {
		h.logger.Error("marshal cycle", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast buffer full, dropping cycle", "id", res.ID)
	}
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade", "error", err)
		return
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	go h.readUntilClosed(conn)
}

// readUntilClosed drains client frames so close messages are noticed.
func (h *Hub) readUntilClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *Hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
