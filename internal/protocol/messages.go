package protocol

import "time"

type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeVideo MessageType = "video"
	TypeAudio MessageType = "audio"
	TypeFile  MessageType = "file"
)

// HasAttachment reports whether the type carries a file reference instead of
// inline text content.
func (t MessageType) HasAttachment() bool {
	switch t {
	case TypeImage, TypeVideo, TypeAudio, TypeFile:
		return true
	}
	return false
}

// SendMessageRequest is the payload of a sendMessage event. Content is a
// pointer so an explicitly empty text message is distinguishable from an
// absent one. The server trusts the connection identity for the sender.
type SendMessageRequest struct {
	Sender    uint        `json:"sender,omitempty"`
	Recipient uint        `json:"recipient"`
	Type      MessageType `json:"messageType,omitempty"`
	Content   *string     `json:"content,omitempty"`
	FileURL   string      `json:"fileUrl,omitempty"`
	FileName  string      `json:"fileName,omitempty"`
	FileSize  int64       `json:"fileSize,omitempty"`
	FileType  string      `json:"fileType,omitempty"`
	TempID    string      `json:"tempId,omitempty"`
	Timestamp time.Time   `json:"timestamp,omitzero"`
}

// UserRef is the display view of a participant attached to broadcast
// messages.
type UserRef struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// ChatMessage is the canonical record as broadcast to clients. TempID echoes
// the sender's correlation token so the originating client can reconcile its
// provisional entry.
type ChatMessage struct {
	ID          uint        `json:"id"`
	TempID      string      `json:"tempId,omitempty"`
	Type        MessageType `json:"messageType"`
	Content     string      `json:"content,omitempty"`
	FileURL     string      `json:"fileUrl,omitempty"`
	FileName    string      `json:"fileName,omitempty"`
	FileSize    int64       `json:"fileSize,omitempty"`
	FileType    string      `json:"fileType,omitempty"`
	Sender      UserRef     `json:"sender"`
	Recipient   UserRef     `json:"recipient"`
	Timestamp   time.Time   `json:"timestamp"`
	Delivered   bool        `json:"delivered"`
	DeliveredAt *time.Time  `json:"deliveredAt,omitempty"`
	Read        bool        `json:"read"`
	Edited      bool        `json:"edited,omitempty"`
	Status      string      `json:"status"`
}

// ErrorPayload is sent to the originating connection only. TempID lets the
// client locate and mark the provisional entry that failed.
type ErrorPayload struct {
	Message string `json:"message"`
	TempID  string `json:"tempId,omitempty"`
}

type DeleteMessageRequest struct {
	MessageID uint `json:"messageId"`
}

type MessageDeletedPayload struct {
	MessageID uint      `json:"messageId"`
	DeletedBy uint      `json:"deletedBy"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRef identifies the peer of a conversation for join/leave/typing events.
type ChatRef struct {
	PeerID uint `json:"peerId"`
}

type PresencePayload struct {
	UserID uint `json:"userId"`
}

type ConnectionSuccessPayload struct {
	UserID      uint   `json:"userId"`
	OnlineUsers []uint `json:"onlineUsers"`
}

type TypingPayload struct {
	UserID   uint `json:"userId"`
	ChatID   uint `json:"chatId"`
	IsTyping bool `json:"isTyping"`
}
