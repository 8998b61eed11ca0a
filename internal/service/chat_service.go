package service

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"go-direct-chat/internal/interfaces"
	"go-direct-chat/internal/model"
	"go-direct-chat/internal/protocol"
	"go-direct-chat/internal/websocket"
	"go-direct-chat/pkg/apperrors"
	"go-direct-chat/pkg/logger"

	"go.uber.org/zap"
)

// MessageStore is the persistence surface the chat service needs. Implemented
// by repository.MessageRepository; tests substitute an in-memory store.
type MessageStore interface {
	Create(message *model.Message) error
	FindByID(id uint) (*model.Message, error)
	FindConversation(userID1, userID2 uint, limit, offset int) ([]model.Message, error)
	Delete(messageID uint) error
	Update(message *model.Message) error
	MarkRead(recipientID uint, messageIDs []uint) (int64, error)
}

// UserStore resolves participant display fields.
type UserStore interface {
	FindByID(id uint) (*model.User, error)
}

// Attachments is the storage collaborator used when deleting file messages.
type Attachments interface {
	Delete(reference string) error
}

// ChatService is the persistence gateway and broadcast orchestrator: it
// validates and persists drafts, then fans the canonical record out to the
// conversation room and the participants' personal channels.
type ChatService struct {
	hub      interfaces.ConnectionManager
	messages MessageStore
	users    UserStore
	files    Attachments
}

func NewChatService(hub interfaces.ConnectionManager, messages MessageStore, users UserStore, files Attachments) *ChatService {
	return &ChatService{
		hub:      hub,
		messages: messages,
		users:    users,
		files:    files,
	}
}

// HandleMessage dispatches one inbound socket frame. Errors never propagate
// to the transport: they are reported to the originating connection as error
// events carrying the offending tempId, so the client can mark the
// provisional entry failed.
func (s *ChatService) HandleMessage(message []byte, senderID uint) {
	var env protocol.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		logger.L.Warn("Failed to unmarshal envelope from WebSocket",
			zap.Uint("senderID", senderID), zap.Error(err))
		s.emitError(senderID, "invalid message envelope", "")
		return
	}

	switch env.Event {
	case protocol.EventSendMessage:
		var req protocol.SendMessageRequest
		if err := env.Decode(&req); err != nil {
			s.emitError(senderID, "invalid sendMessage payload", "")
			return
		}
		if _, err := s.SendMessage(senderID, req); err != nil {
			logger.L.Error("Error processing sendMessage",
				zap.Uint("senderID", senderID),
				zap.Uint("recipientID", req.Recipient),
				zap.Error(err))
			s.emitError(senderID, err.Error(), req.TempID)
		}

	case protocol.EventDeleteMessage:
		var req protocol.DeleteMessageRequest
		if err := env.Decode(&req); err != nil {
			s.emitError(senderID, "invalid deleteMessage payload", "")
			return
		}
		if err := s.DeleteMessage(senderID, req.MessageID); err != nil {
			logger.L.Warn("Error processing deleteMessage",
				zap.Uint("senderID", senderID),
				zap.Uint("messageID", req.MessageID),
				zap.Error(err))
			s.emitError(senderID, err.Error(), "")
		}

	case protocol.EventJoinChat:
		var ref protocol.ChatRef
		if err := env.Decode(&ref); err != nil || ref.PeerID == 0 {
			return
		}
		s.hub.JoinRoom(senderID, websocket.RoomKey(senderID, ref.PeerID))

	case protocol.EventLeaveChat:
		var ref protocol.ChatRef
		if err := env.Decode(&ref); err != nil || ref.PeerID == 0 {
			return
		}
		s.hub.LeaveRoom(senderID, websocket.RoomKey(senderID, ref.PeerID))

	case protocol.EventTypingStart, protocol.EventTypingStop:
		var ref protocol.ChatRef
		if err := env.Decode(&ref); err != nil || ref.PeerID == 0 {
			return
		}
		s.relayTyping(senderID, ref.PeerID, env.Event == protocol.EventTypingStart)

	default:
		logger.L.Warn("Unknown socket event", zap.String("event", env.Event), zap.Uint("senderID", senderID))
	}
}

// SendMessage validates, persists and broadcasts one draft. The canonical
// record goes to the conversation room, defensively to the recipient's
// personal channel, and as a messageSent acknowledgment to the sender alone.
func (s *ChatService) SendMessage(senderID uint, req protocol.SendMessageRequest) (*protocol.ChatMessage, error) {
	if senderID == 0 || req.Recipient == 0 {
		return nil, apperrors.InvalidArg("invalid message format: missing sender or recipient")
	}

	msgType := req.Type
	if msgType == "" {
		msgType = protocol.TypeText
	}

	if msgType == protocol.TypeText {
		// An explicitly empty string is a valid text message; an absent
		// content field is not.
		if req.Content == nil {
			return nil, apperrors.InvalidArg("text message requires content")
		}
	} else if req.FileURL == "" {
		return nil, apperrors.InvalidArg("file message requires fileUrl")
	}

	if msgType != protocol.TypeText {
		msgType = classifyAttachment(msgType, req.FileType, req.FileName, req.FileURL)
	}

	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	now := time.Now()

	dbMessage := &model.Message{
		Type:        string(msgType),
		SenderID:    senderID,
		RecipientID: req.Recipient,
		Timestamp:   timestamp,
		Delivered:   true,
		DeliveredAt: &now,
	}
	if msgType == protocol.TypeText {
		dbMessage.Content = *req.Content
	} else {
		dbMessage.FileURL = req.FileURL
		dbMessage.FileName = req.FileName
		if dbMessage.FileName == "" {
			dbMessage.FileName = filepath.Base(req.FileURL)
		}
		dbMessage.FileSize = req.FileSize
		dbMessage.FileType = req.FileType
		if dbMessage.FileType == "" {
			dbMessage.FileType = "application/octet-stream"
		}
	}

	if err := s.messages.Create(dbMessage); err != nil {
		logger.L.Error("Error saving message to DB", zap.Uint("senderID", senderID), zap.Error(err))
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to save message", err)
	}
	logger.L.Debug("Message saved to DB", zap.Uint("messageID", dbMessage.ID))

	out := s.toChatMessage(dbMessage)
	out.TempID = req.TempID

	// Ensure both participants are in the conversation room before fan-out.
	// The recipient may not have opened this conversation yet.
	room := websocket.RoomKey(senderID, req.Recipient)
	s.hub.JoinRoom(senderID, room)
	if s.hub.IsClientConnected(req.Recipient) {
		s.hub.JoinRoom(req.Recipient, room)
	}

	if data, err := protocol.Encode(protocol.EventMessageReceived, out); err != nil {
		logger.L.Error("Failed to encode messageReceived", zap.Uint("messageID", out.ID), zap.Error(err))
	} else {
		s.hub.EmitToRoom(room, data)
		// Personal channel as well; the client cache treats the repeat
		// delivery of one canonical id as a no-op.
		if sent, err := s.hub.SendMessageToUser(req.Recipient, data); err != nil {
			logger.L.Warn("Direct delivery to recipient failed",
				zap.Uint("recipientID", req.Recipient), zap.Error(err))
		} else if !sent {
			logger.L.Debug("Recipient not connected, delivered to room only",
				zap.Uint("recipientID", req.Recipient))
		}
	}

	if ack, err := protocol.Encode(protocol.EventMessageSent, out); err != nil {
		logger.L.Error("Failed to encode messageSent ack", zap.Uint("messageID", out.ID), zap.Error(err))
	} else if _, err := s.hub.SendMessageToUser(senderID, ack); err != nil {
		logger.L.Warn("Failed to ack sender", zap.Uint("senderID", senderID), zap.Error(err))
	}

	// Broadcast failures are not rolled back: the persisted record stays
	// canonical and is recoverable through a history fetch.
	return out, nil
}

// DeleteMessage removes a persisted message and its stored attachment, then
// notifies the conversation room. Only the sender may delete.
func (s *ChatService) DeleteMessage(requesterID, messageID uint) error {
	message, err := s.messages.FindByID(messageID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to load message", err)
	}
	if message == nil {
		return apperrors.NotFound("message not found")
	}

	if message.SenderID != requesterID {
		return apperrors.Forbidden("unauthorized to delete this message")
	}

	if message.HasAttachment() && s.files != nil {
		if err := s.files.Delete(message.FileURL); err != nil {
			// Keep going: losing the file copy must not block removal of
			// the record.
			logger.L.Warn("Failed to delete attachment file",
				zap.Uint("messageID", messageID), zap.String("fileURL", message.FileURL), zap.Error(err))
		}
	}

	if err := s.messages.Delete(messageID); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to delete message", err)
	}

	payload := protocol.MessageDeletedPayload{
		MessageID: messageID,
		DeletedBy: requesterID,
		Timestamp: time.Now(),
	}
	if data, err := protocol.Encode(protocol.EventMessageDeleted, payload); err != nil {
		logger.L.Error("Failed to encode messageDeleted", zap.Uint("messageID", messageID), zap.Error(err))
	} else {
		s.hub.EmitToRoom(websocket.RoomKey(message.SenderID, message.RecipientID), data)
	}

	logger.L.Info("Message deleted", zap.Uint("messageID", messageID), zap.Uint("requesterID", requesterID))
	return nil
}

// EditMessage updates a text message's content. Sender-only, text-only. The
// updated record is rebroadcast so open caches overwrite their copy.
func (s *ChatService) EditMessage(requesterID, messageID uint, content string) (*protocol.ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.InvalidArg("message content is required")
	}

	message, err := s.messages.FindByID(messageID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to load message", err)
	}
	if message == nil {
		return nil, apperrors.NotFound("message not found")
	}
	if message.SenderID != requesterID {
		return nil, apperrors.Forbidden("unauthorized to edit this message")
	}
	if message.Type != string(protocol.TypeText) {
		return nil, apperrors.InvalidArg("only text messages can be edited")
	}

	now := time.Now()
	message.Content = content
	message.Edited = true
	message.EditedAt = &now

	if err := s.messages.Update(message); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to update message", err)
	}

	out := s.toChatMessage(message)
	if data, err := protocol.Encode(protocol.EventMessageReceived, out); err == nil {
		s.hub.EmitToRoom(websocket.RoomKey(message.SenderID, message.RecipientID), data)
	}

	return out, nil
}

// GetMessage returns one message; only its participants may read it.
func (s *ChatService) GetMessage(requesterID, messageID uint) (*protocol.ChatMessage, error) {
	message, err := s.messages.FindByID(messageID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to load message", err)
	}
	if message == nil {
		return nil, apperrors.NotFound("message not found")
	}
	if message.SenderID != requesterID && message.RecipientID != requesterID {
		return nil, apperrors.Forbidden("not a participant of this message")
	}
	return s.toChatMessage(message), nil
}

// GetChatHistory returns the conversation between the user and a peer,
// ascending by send time.
func (s *ChatService) GetChatHistory(userID, peerID uint, limit, offset int) ([]*protocol.ChatMessage, error) {
	dbMessages, err := s.messages.FindConversation(userID, peerID, limit, offset)
	if err != nil {
		logger.L.Error("Error fetching chat history", zap.Error(err),
			zap.Uint("user", userID), zap.Uint("peer", peerID))
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to retrieve chat history", err)
	}

	out := make([]*protocol.ChatMessage, 0, len(dbMessages))
	for i := range dbMessages {
		out = append(out, s.toChatMessage(&dbMessages[i]))
	}
	return out, nil
}

// MarkRead flags the given messages as read for the requesting recipient.
func (s *ChatService) MarkRead(requesterID uint, messageIDs []uint) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, apperrors.InvalidArg("message IDs are required")
	}
	updated, err := s.messages.MarkRead(requesterID, messageIDs)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInternal, "failed to mark messages read", err)
	}
	return updated, nil
}

// HandleUserConnected implements interfaces.ConnectionEventHandler.
func (s *ChatService) HandleUserConnected(userID uint) {
	logger.L.Debug("User connected", zap.Uint("userID", userID))
}

// HandleUserDisconnected implements interfaces.ConnectionEventHandler. A
// disconnect does not cancel in-flight persistence; missed broadcasts are
// recovered by the next history fetch.
func (s *ChatService) HandleUserDisconnected(userID uint) {
	logger.L.Debug("User disconnected", zap.Uint("userID", userID))
}

// relayTyping forwards a typing indicator to the peer. ChatID names the
// conversation partner the indicator belongs to, as the sender declared it.
func (s *ChatService) relayTyping(senderID, peerID uint, isTyping bool) {
	payload := protocol.TypingPayload{
		UserID:   senderID,
		ChatID:   peerID,
		IsTyping: isTyping,
	}
	data, err := protocol.Encode(protocol.EventUserTyping, payload)
	if err != nil {
		return
	}
	if _, err := s.hub.SendMessageToUser(peerID, data); err != nil {
		logger.L.Debug("Failed to relay typing event", zap.Uint("peerID", peerID), zap.Error(err))
	}
}

func (s *ChatService) emitError(userID uint, message, tempID string) {
	data, err := protocol.Encode(protocol.EventError, protocol.ErrorPayload{
		Message: message,
		TempID:  tempID,
	})
	if err != nil {
		return
	}
	if _, err := s.hub.SendMessageToUser(userID, data); err != nil {
		logger.L.Warn("Failed to emit error event", zap.Uint("userID", userID), zap.Error(err))
	}
}

// toChatMessage builds the broadcast view, enriching participant display
// fields. A missing user record falls back to a placeholder rather than
// failing the send.
func (s *ChatService) toChatMessage(m *model.Message) *protocol.ChatMessage {
	return &protocol.ChatMessage{
		ID:          m.ID,
		Type:        protocol.MessageType(m.Type),
		Content:     m.Content,
		FileURL:     m.FileURL,
		FileName:    m.FileName,
		FileSize:    m.FileSize,
		FileType:    m.FileType,
		Sender:      s.userRef(m.SenderID),
		Recipient:   s.userRef(m.RecipientID),
		Timestamp:   m.Timestamp,
		Delivered:   m.Delivered,
		DeliveredAt: m.DeliveredAt,
		Read:        m.Read,
		Edited:      m.Edited,
		Status:      "sent",
	}
}

func (s *ChatService) userRef(userID uint) protocol.UserRef {
	user, err := s.users.FindByID(userID)
	if err != nil || user == nil {
		logger.L.Warn("Failed to find user for enrichment, using fallback", zap.Uint("userID", userID), zap.Error(err))
		return protocol.UserRef{ID: userID, Username: "Unknown", Avatar: "default-avatar.png"}
	}
	return protocol.UserRef{ID: user.ID, Username: user.Username, Avatar: user.Avatar}
}

var attachmentExtensions = map[protocol.MessageType]map[string]bool{
	protocol.TypeImage: {".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".bmp": true},
	protocol.TypeVideo: {".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true},
	protocol.TypeAudio: {".mp3": true, ".wav": true, ".ogg": true, ".flac": true},
}

// classifyAttachment refines a generic file draft into image/video/audio.
// The declared MIME type wins; the filename extension is the fallback when
// the MIME type is absent or unrecognized. Explicit subtypes pass through.
func classifyAttachment(declared protocol.MessageType, mimeType, fileName, fileURL string) protocol.MessageType {
	if declared != protocol.TypeFile {
		return declared
	}

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return protocol.TypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return protocol.TypeVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return protocol.TypeAudio
	}

	name := fileName
	if name == "" {
		name = fileURL
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, subtype := range []protocol.MessageType{protocol.TypeImage, protocol.TypeVideo, protocol.TypeAudio} {
		if attachmentExtensions[subtype][ext] {
			return subtype
		}
	}
	return protocol.TypeFile
}
