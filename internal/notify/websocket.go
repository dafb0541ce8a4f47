package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/referral-triage-server/internal/domain"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 54 * time.Second
	wsSendBufferSize = 16
)

// WebSocketHub broadcasts alerts to connected dashboard clients. It is
// both a notify.Channel and an HTTP handler for the upgrade endpoint.
type WebSocketHub struct {
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

type wsEvent struct {
	Event      string                `json:"event"`
	Alert      *domain.CriticalAlert `json:"alert"`
	Recipients []string              `json:"recipients,omitempty"`
	SentAt     time.Time             `json:"sent_at"`
}

// NewWebSocketHub creates an empty hub.
func NewWebSocketHub(logger *logrus.Logger) *WebSocketHub {
	return &WebSocketHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

func (h *WebSocketHub) Name() string {
	return "websocket"
}

// Send broadcasts the alert to every connected client. Clients whose
// send buffer is full are dropped rather than allowed to stall the
// broadcast.
func (h *WebSocketHub) Send(ctx context.Context, alert *domain.CriticalAlert, recipients []string) error {
	payload, err := json.Marshal(wsEvent{
		Event:      "alert",
		Alert:      alert,
		Recipients: recipients,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			go h.remove(client)
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleUpgrade upgrades an HTTP request to a websocket connection and
// registers it with the hub.
func (h *WebSocketHub) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed websocket upgrade")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	h.logger.WithField("remote", conn.RemoteAddr().String()).Debug("Alert feed client connected")

	go h.writePump(client)
	go h.readPump(client)
}

func (h *WebSocketHub) remove(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	h.mu.Unlock()

	close(client.send)
	client.conn.Close()
}

func (h *WebSocketHub) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.remove(client)
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(client)
				return
			}
		}
	}
}

// readPump drains client messages so pong handlers run; the feed is
// broadcast-only and inbound payloads are discarded.
func (h *WebSocketHub) readPump(client *wsClient) {
	defer h.remove(client)

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
