package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
)

// client is one subscribed connection. The write mutex serializes frames;
// gorilla allows at most one concurrent writer per connection.
type client struct {
	info    ConnInfo
	writeMu sync.Mutex
}

// Hub is the publish/subscribe layer: each connected client holds a standing
// subscription to one conversation, and every mutation pushes a typed event
// to the conversation's room.
type Hub struct {
	rooms map[int]map[*websocket.Conn]*client
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[int]map[*websocket.Conn]*client),
	}
}

// AddClient registers a websocket connection to a conversation room.
func (h *Hub) AddClient(conversationID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*websocket.Conn]*client)
	}
	h.rooms[conversationID][conn] = &client{info: info}
}

// RemoveClient removes a websocket connection. Disconnect has no other side
// effects; clients mark themselves offline explicitly.
func (h *Hub) RemoveClient(conversationID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[conversationID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// BroadcastMessage pushes a new message to all subscribers.
func (h *Hub) BroadcastMessage(conversationID int, msg models.MessageView) {
	h.broadcast(conversationID, models.ConversationEvent{Type: "message", Message: &msg})
}

// BroadcastDeletion notifies subscribers that a message was soft-deleted.
func (h *Hub) BroadcastDeletion(conversationID int, messageID int) {
	h.broadcast(conversationID, models.ConversationEvent{Type: "message_deleted", MessageID: messageID})
}

// BroadcastReaction pushes the merged reaction state of a message.
func (h *Hub) BroadcastReaction(conversationID int, messageID int, reactions []models.ReactionGroup) {
	h.broadcast(conversationID, models.ConversationEvent{Type: "reaction", MessageID: messageID, Reactions: reactions})
}

// BroadcastTyping signals that a user typed just now.
func (h *Hub) BroadcastTyping(conversationID int, userID int) {
	h.broadcast(conversationID, models.ConversationEvent{Type: "typing", UserID: userID})
}

// BroadcastRead pushes a user's advanced read watermark.
func (h *Hub) BroadcastRead(conversationID int, userID int, lastReadTime time.Time) {
	h.broadcast(conversationID, models.ConversationEvent{Type: "read", UserID: userID, LastReadTime: &lastReadTime})
}

func (h *Hub) broadcast(conversationID int, event models.ConversationEvent) {
	// snapshot the room so membership churn can't race the send loop
	h.mu.RLock()
	targets := make(map[*websocket.Conn]*client, len(h.rooms[conversationID]))
	for conn, cl := range h.rooms[conversationID] {
		targets[conn] = cl
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for conn, cl := range targets {
		cl.writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, payload)
		cl.writeMu.Unlock()
		if err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.publishWSError(conversationID, cl.info, err)
			h.RemoveClient(conversationID, conn)
		}
	}
}

func (h *Hub) publishWSError(conversationID int, info ConnInfo, err error) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "conversation",
			"resource_id": conversationID,
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.conversations", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("ws_error")
}
