package interfaces

// Client is one live realtime connection.
type Client interface {
	GetUserID() uint
	QueueBytes(data []byte) error
	Close()
}

// MessageHandler processes inbound socket frames.
// Implemented by service.ChatService.
type MessageHandler interface {
	HandleMessage(message []byte, senderID uint)
}

// ConnectionEventHandler is notified of connection lifecycle transitions.
// Implemented by service.ChatService.
type ConnectionEventHandler interface {
	HandleUserConnected(userID uint)
	HandleUserDisconnected(userID uint)
}

// ConnectionManager routes payloads to live connections: directly, or through
// conversation rooms.
type ConnectionManager interface {
	Register(client Client)
	Unregister(client Client)
	JoinRoom(userID uint, room string)
	LeaveRoom(userID uint, room string)
	EmitToRoom(room string, data []byte)
	SendMessageToUser(userID uint, data []byte) (sent bool, err error)
	IsClientConnected(userID uint) bool
	SetEventHandler(handler ConnectionEventHandler)
}
