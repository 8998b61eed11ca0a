package api

import (
	"net/http"
	"strconv"

	"go-direct-chat/internal/service"
	"go-direct-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MessageHandler exposes the message REST surface: history, single fetch,
// deletion, read receipts, edits and attachment uploads.
type MessageHandler struct {
	chatService *service.ChatService
	fileService *service.FileService
}

func NewMessageHandler(chatService *service.ChatService, fileService *service.FileService) *MessageHandler {
	return &MessageHandler{
		chatService: chatService,
		fileService: fileService,
	}
}

// GetChatHistory returns the conversation with a peer, oldest first.
func (h *MessageHandler) GetChatHistory(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	peerID, err := strconv.ParseUint(c.Param("peer_id"), 10, 32)
	if err != nil || peerID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid peer ID"})
		return
	}

	// The full conversation by default: history is the recovery path for
	// broadcasts missed while disconnected, so nothing recent may be cut
	// off. Pagination is opt-in via limit/offset.
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if limit < 0 {
		limit = 0
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	messages, err := h.chatService.GetChatHistory(userID, uint(peerID), limit, offset)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *MessageHandler) GetMessage(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	messageID, err := strconv.ParseUint(c.Param("message_id"), 10, 32)
	if err != nil || messageID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	message, err := h.chatService.GetMessage(userID, uint(messageID))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, message)
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	messageID, err := strconv.ParseUint(c.Param("message_id"), 10, 32)
	if err != nil || messageID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	if err := h.chatService.DeleteMessage(userID, uint(messageID)); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

type markReadRequest struct {
	MessageIDs []uint `json:"messageIds" binding:"required"`
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.chatService.MarkRead(userID, req.MessageIDs)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

type editMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *MessageHandler) EditMessage(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	messageID, err := strconv.ParseUint(c.Param("message_id"), 10, 32)
	if err != nil || messageID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.chatService.EditMessage(userID, uint(messageID), req.Content)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, message)
}

// UploadFile stores an attachment and returns its reference. The client then
// sends a file message carrying the returned fileUrl over the socket.
func (h *MessageHandler) UploadFile(c *gin.Context) {
	if _, ok := getUserIDFromContext(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		logger.L.Warn("Failed to get file from request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid file"})
		return
	}

	stored, err := h.fileService.Store(header)
	if err != nil {
		logger.L.Error("Failed to store file", zap.Error(err), zap.String("filename", header.Filename))
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, stored)
}
