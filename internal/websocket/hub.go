package websocket

import (
	"context"
	"time"

	"github.com/rl-arena/doubles-rating/pkg/logger"
	"go.uber.org/zap"
)

// Hub WebSocket 연결 관리 및 브로드캐스트
// Every connected client receives every message.
type Hub struct {
	clients map[string]*Client // client id -> client, owned by Run

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	count      chan chan int
	done       chan struct{}

	logger *zap.Logger
}

// Message WebSocket 메시지
type Message struct {
	Type    string      `json:"type"`
	SentAt  time.Time   `json:"sentAt"`
	Payload interface{} `json:"payload"`
}

// NewHub Hub 생성
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		logger:     logger.Named("websocket"),
	}
}

// Run serves the hub until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			return

		case client := <-h.register:
			h.clients[client.id] = client
			h.logger.Info("WebSocket client registered",
				zap.String("clientId", client.id),
				zap.Int("totalClients", len(h.clients)))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// unregisterClient 클라이언트 해제
func (h *Hub) unregisterClient(client *Client) {
	if _, exists := h.clients[client.id]; !exists {
		return
	}
	delete(h.clients, client.id)
	close(client.send)
	h.logger.Info("WebSocket client unregistered",
		zap.String("clientId", client.id),
		zap.Int("totalClients", len(h.clients)))
}

// broadcastMessage 메시지 브로드캐스트
func (h *Hub) broadcastMessage(message *Message) {
	for _, client := range h.clients {
		select {
		case client.send <- message:
		default:
			// 채널이 가득 찬 경우 연결 해제
			h.logger.Warn("Client send channel full, unregistering",
				zap.String("clientId", client.id))
			h.unregisterClient(client)
		}
	}
}

// Broadcast queues a message for every client. It never blocks: when the
// queue is full the message is dropped.
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	msg := &Message{
		Type:    msgType,
		SentAt:  time.Now().UTC(),
		Payload: payload,
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Broadcast queue full, dropping message", zap.String("type", msgType))
	}
}

// ClientCount 연결된 클라이언트 수
func (h *Hub) ClientCount(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
	case <-h.done:
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
