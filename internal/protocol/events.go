package protocol

import "encoding/json"

// Event names exchanged over the persistent connection.
const (
	// client -> server
	EventSendMessage   = "sendMessage"
	EventDeleteMessage = "deleteMessage"
	EventJoinChat      = "joinChat"
	EventLeaveChat     = "leaveChat"
	EventTypingStart   = "typingStart"
	EventTypingStop    = "typingStop"

	// server -> client
	EventMessageSent       = "messageSent"
	EventMessageReceived   = "messageReceived"
	EventMessageDeleted    = "messageDeleted"
	EventError             = "error"
	EventUserOnline        = "userOnline"
	EventUserOffline       = "userOffline"
	EventConnectionSuccess = "connectionSuccess"
	EventUserTyping        = "userTyping"
)

// Envelope is the wire format for all socket traffic: a named event plus a
// structured payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode builds a marshalled envelope for the event and payload.
func Encode(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

// Decode unmarshals the envelope payload into v.
func (e *Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}
