// Package chatclient is a Go client for the chat server: it dials the
// realtime endpoint, sends drafts optimistically, and maintains a local
// conversation cache that reconciles provisional entries with the canonical
// records the server broadcasts.
package chatclient

import (
	"time"

	"go-direct-chat/internal/protocol"
)

// DeliveryState tracks a record's progress through the send pipeline.
type DeliveryState string

const (
	StatePending DeliveryState = "pending"
	StateSent    DeliveryState = "sent"
	StateRead    DeliveryState = "read"
	StateFailed  DeliveryState = "failed"
)

// Record is one cached conversation entry. A record without a server ID is
// provisional: it exists only in this cache, awaiting the canonical copy.
type Record struct {
	ID        uint
	TempID    string
	Sender    uint
	Recipient uint
	Type      protocol.MessageType
	Content   string
	FileURL   string
	FileName  string
	FileSize  int64
	FileType  string
	Timestamp time.Time
	State     DeliveryState
}

// Provisional reports whether the record has not yet been acknowledged by the
// server. The server never assigns ID zero.
func (r Record) Provisional() bool {
	return r.ID == 0
}

func fromChatMessage(m *protocol.ChatMessage) Record {
	state := StateSent
	if m.Read {
		state = StateRead
	}
	return Record{
		ID:        m.ID,
		TempID:    m.TempID,
		Sender:    m.Sender.ID,
		Recipient: m.Recipient.ID,
		Type:      m.Type,
		Content:   m.Content,
		FileURL:   m.FileURL,
		FileName:  m.FileName,
		FileSize:  m.FileSize,
		FileType:  m.FileType,
		Timestamp: m.Timestamp,
		State:     state,
	}
}
