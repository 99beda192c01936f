// Package api — WebSocket hub for real-time market broadcasting.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gamby/crypto-engine/internal/metrics"
	"github.com/gamby/crypto-engine/internal/model"
	"github.com/gamby/crypto-engine/internal/trigger"
)

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	Type      string `json:"type"`
	Ticker    string `json:"ticker,omitempty"`
	Price     string `json:"price,omitempty"`
	Delta     string `json:"delta,omitempty"`
	Message   string `json:"message,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// WSHub manages WebSocket connections and broadcasts price ticks, market
// events, and trigger executions to all connected clients.
type WSHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *WSHub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
			metrics.WebSocketClients.Inc()
			slog.Info("ws client connected", "total", len(h.clients))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				metrics.WebSocketClients.Dec()
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
					metrics.WebSocketClients.Dec()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *WSHub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop if buffer full to avoid blocking the tick loop.
	}
}

// BroadcastPriceTick pushes a committed price to clients.
func (h *WSHub) BroadcastPriceTick(coin *model.Coin, delta float64) {
	h.Broadcast(WSMessage{
		Type:      "price_tick",
		Ticker:    coin.Ticker,
		Price:     coin.CurrentPrice.String(),
		Delta:     formatDelta(delta),
		Timestamp: coin.LastUpdated.Format(time.RFC3339),
	})
}

// BroadcastMarketEvent pushes a fired market event to clients.
func (h *WSHub) BroadcastMarketEvent(event *model.MarketEvent) {
	h.Broadcast(WSMessage{
		Type:      "market_event",
		Message:   event.Message,
		Delta:     formatDelta(event.Impact),
		Timestamp: event.Timestamp.Format(time.RFC3339),
	})
}

// BroadcastTriggerExecution pushes a resolved trigger order to clients.
func (h *WSHub) BroadcastTriggerExecution(exec *trigger.Execution) {
	msg := WSMessage{
		Type:    "trigger_executed",
		OrderID: exec.Order.ID,
		UserID:  exec.Order.UserID,
		Ticker:  exec.Order.Ticker,
		Status:  string(exec.Order.Status),
	}
	if exec.Order.ExecutedAt != nil {
		msg.Timestamp = exec.Order.ExecutedAt.Format(time.RFC3339)
		msg.Price = exec.Order.ExecutionPrice.String()
	}
	h.Broadcast(msg)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	h.register <- conn

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}

func formatDelta(delta float64) string {
	return strconv.FormatFloat(delta, 'f', 6, 64)
}
