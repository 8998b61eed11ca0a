package websocket

import (
	"time"

	"go-direct-chat/internal/interfaces"
	"go-direct-chat/internal/protocol"
	"go-direct-chat/pkg/config"
	"go-direct-chat/pkg/logger"

	"go.uber.org/zap"
)

// Hub is the in-process ConnectionManager: a connection registry plus a
// conversation room router. It is injectable state with an explicit
// lifecycle, not a package-level singleton.
type Hub struct {
	registry *Registry
	rooms    *RoomRouter

	eventHandler interfaces.ConnectionEventHandler

	retryCount    int
	retryInterval time.Duration
}

func NewHub() *Hub {
	wsConfig := config.GlobalConfig.WebSocket

	retryCount := wsConfig.MessageRetryCount
	if retryCount <= 0 {
		retryCount = 3
		logger.L.Warn("Invalid retryCount, using default", zap.Int("default", retryCount))
	}

	retryInterval := time.Duration(wsConfig.MessageRetryIntervalMs) * time.Millisecond
	if retryInterval <= 0 {
		retryInterval = 100 * time.Millisecond
		logger.L.Warn("Invalid retryInterval, using default", zap.Duration("default", retryInterval))
	}

	return &Hub{
		registry:      NewRegistry(),
		rooms:         NewRoomRouter(),
		retryCount:    retryCount,
		retryInterval: retryInterval,
	}
}

// Register stores the client as the live connection for its user. A previous
// connection for the same user is forcibly closed first, then presence is
// announced: connectionSuccess to the new client, userOnline to everyone
// else.
func (h *Hub) Register(client interfaces.Client) {
	userID := client.GetUserID()

	if evicted := h.registry.Put(client); evicted != nil {
		logger.L.Info("User reconnected, evicting previous connection", zap.Uint("userID", userID))
		evicted.Close()
	}
	logger.L.Info("Client registered", zap.Uint("userID", userID))

	if data, err := protocol.Encode(protocol.EventConnectionSuccess, protocol.ConnectionSuccessPayload{
		UserID:      userID,
		OnlineUsers: h.registry.Users(),
	}); err == nil {
		if err := client.QueueBytes(data); err != nil {
			logger.L.Warn("Failed to queue connectionSuccess", zap.Uint("userID", userID), zap.Error(err))
		}
	}

	h.broadcastPresence(protocol.EventUserOnline, userID)

	if h.eventHandler != nil {
		go h.eventHandler.HandleUserConnected(userID)
	}
}

// Unregister removes the client if it is still the registered handle for its
// user: an evicted connection unregistering late must not disturb its
// successor. Idempotent.
func (h *Hub) Unregister(client interfaces.Client) {
	userID := client.GetUserID()
	if !h.registry.Remove(client) {
		return
	}
	client.Close()
	h.rooms.LeaveAll(userID)
	logger.L.Info("Client unregistered", zap.Uint("userID", userID))

	h.broadcastPresence(protocol.EventUserOffline, userID)

	if h.eventHandler != nil {
		go h.eventHandler.HandleUserDisconnected(userID)
	}
}

func (h *Hub) broadcastPresence(event string, userID uint) {
	data, err := protocol.Encode(event, protocol.PresencePayload{UserID: userID})
	if err != nil {
		logger.L.Error("Failed to encode presence event", zap.String("event", event), zap.Error(err))
		return
	}
	for _, client := range h.registry.Snapshot() {
		if client.GetUserID() != userID {
			h.trySend(client, data)
		}
	}
}

// JoinRoom adds a currently connected user to a conversation room. Both the
// explicit joinChat request and the implicit join during a send land here;
// Join is idempotent so the two triggers converge regardless of order.
func (h *Hub) JoinRoom(userID uint, room string) {
	if !h.registry.Contains(userID) {
		return
	}
	h.rooms.Join(userID, room)
	logger.L.Debug("User joined room", zap.Uint("userID", userID), zap.String("room", room))
}

func (h *Hub) LeaveRoom(userID uint, room string) {
	h.rooms.Leave(userID, room)
	logger.L.Debug("User left room", zap.Uint("userID", userID), zap.String("room", room))
}

// EmitToRoom delivers the payload to every room member with a live
// connection.
func (h *Hub) EmitToRoom(room string, data []byte) {
	for _, userID := range h.rooms.Members(room) {
		if client, ok := h.registry.Get(userID); ok {
			h.trySend(client, data)
		}
	}
}

// SendMessageToUser delivers directly to the user's personal channel.
// Returns sent=false without error when the user is offline; delivery is
// best-effort and an absent recipient is not a failure.
func (h *Hub) SendMessageToUser(userID uint, data []byte) (bool, error) {
	client, ok := h.registry.Get(userID)
	if !ok {
		return false, nil
	}
	if err := client.QueueBytes(data); err != nil {
		logger.L.Warn("Failed to queue message to client", zap.Uint("targetUserID", userID), zap.Error(err))
		return false, err
	}
	return true, nil
}

func (h *Hub) IsClientConnected(userID uint) bool {
	return h.registry.Contains(userID)
}

func (h *Hub) SetEventHandler(handler interfaces.ConnectionEventHandler) {
	h.eventHandler = handler
}

// Close drops all connections. Used at shutdown.
func (h *Hub) Close() error {
	h.registry.Clear()
	return nil
}

// trySend queues with bounded retries; a client whose buffer stays full is
// disconnected, matching the slow-consumer policy of the write pump.
func (h *Hub) trySend(client interfaces.Client, data []byte) {
	if client.QueueBytes(data) == nil {
		return
	}
	for i := 0; i < h.retryCount; i++ {
		logger.L.Warn("Client send buffer full, retry attempt",
			zap.Uint("userID", client.GetUserID()),
			zap.Int("attempt", i+1))
		time.Sleep(h.retryInterval)
		if client.QueueBytes(data) == nil {
			return
		}
	}
	logger.L.Error("Client send buffer still full after retries, closing connection",
		zap.Uint("userID", client.GetUserID()),
		zap.Int("attempts", h.retryCount))
	h.Unregister(client)
}
