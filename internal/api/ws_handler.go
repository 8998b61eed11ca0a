package api

import (
	"net/http"

	"go-direct-chat/internal/interfaces"
	internalws "go-direct-chat/internal/websocket"
	"go-direct-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the deployed frontend origin
		return true
	},
}

type WSHandler struct {
	hub        interfaces.ConnectionManager
	msgHandler interfaces.MessageHandler
}

func NewWSHandler(hub interfaces.ConnectionManager, msgHandler interfaces.MessageHandler) *WSHandler {
	return &WSHandler{
		hub:        hub,
		msgHandler: msgHandler,
	}
}

// HandleConnection authenticates before upgrading: a request without a valid
// identity is rejected with plain HTTP, never a half-open socket.
func (h *WSHandler) HandleConnection(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		logger.L.Warn("WebSocket request without authenticated user")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.L.Error("Failed to upgrade WebSocket connection", zap.Uint("userID", userID), zap.Error(err))
		return
	}
	logger.L.Info("WebSocket connection upgraded", zap.Uint("userID", userID))

	client := internalws.NewClient(userID, conn, h.msgHandler, h.hub)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
