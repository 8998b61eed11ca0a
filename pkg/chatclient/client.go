package chatclient

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go-direct-chat/internal/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is a connected chat participant focused on one conversation. Sends
// are optimistic: the draft enters the local cache immediately as a
// provisional record, and the server's acknowledgment upgrades it in place.
type Client struct {
	selfID uint
	peerID uint
	cache  *Cache

	conn      *websocket.Conn
	writeMu   sync.Mutex
	connected atomic.Bool
	done      chan struct{}
	closeOnce sync.Once

	// OnSendFailed is invoked when the server rejects a draft, after the
	// provisional record has been marked failed. Optional.
	OnSendFailed func(tempID string, reason string)
}

// Dial connects to the realtime endpoint and starts the read loop. rawURL is
// the full ws:// URL including any authentication query parameters.
func Dial(rawURL string, selfID, peerID uint) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chat server: %w", err)
	}

	c := &Client{
		selfID: selfID,
		peerID: peerID,
		cache:  NewCache(selfID, peerID),
		conn:   conn,
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) Cache() *Cache { return c.cache }

// Connected reports whether the server has acknowledged this connection.
func (c *Client) Connected() bool { return c.connected.Load() }

// SendText queues a text draft. The returned tempId identifies the
// provisional cache entry until the acknowledgment arrives.
func (c *Client) SendText(content string) (string, error) {
	return c.send(protocol.SendMessageRequest{
		Recipient: c.peerID,
		Type:      protocol.TypeText,
		Content:   &content,
	})
}

// SendFile queues a file draft referencing an already-uploaded attachment.
func (c *Client) SendFile(fileURL, fileName, mimeType string, size int64) (string, error) {
	return c.send(protocol.SendMessageRequest{
		Recipient: c.peerID,
		Type:      protocol.TypeFile,
		FileURL:   fileURL,
		FileName:  fileName,
		FileSize:  size,
		FileType:  mimeType,
	})
}

func (c *Client) send(req protocol.SendMessageRequest) (string, error) {
	req.Sender = c.selfID
	req.TempID = uuid.NewString()
	req.Timestamp = time.Now()

	record := Record{
		TempID:    req.TempID,
		Sender:    c.selfID,
		Recipient: req.Recipient,
		Type:      req.Type,
		FileURL:   req.FileURL,
		FileName:  req.FileName,
		FileSize:  req.FileSize,
		FileType:  req.FileType,
		Timestamp: req.Timestamp,
		State:     StatePending,
	}
	if req.Content != nil {
		record.Content = *req.Content
	}
	c.cache.Apply(record)

	if err := c.writeEvent(protocol.EventSendMessage, req); err != nil {
		c.cache.MarkFailed(req.TempID)
		return req.TempID, err
	}
	return req.TempID, nil
}

// DeleteMessage asks the server to remove a canonical message.
func (c *Client) DeleteMessage(messageID uint) error {
	return c.writeEvent(protocol.EventDeleteMessage, protocol.DeleteMessageRequest{MessageID: messageID})
}

// JoinChat subscribes this connection to the conversation room.
func (c *Client) JoinChat() error {
	return c.writeEvent(protocol.EventJoinChat, protocol.ChatRef{PeerID: c.peerID})
}

func (c *Client) LeaveChat() error {
	return c.writeEvent(protocol.EventLeaveChat, protocol.ChatRef{PeerID: c.peerID})
}

func (c *Client) StartTyping() error {
	return c.writeEvent(protocol.EventTypingStart, protocol.ChatRef{PeerID: c.peerID})
}

func (c *Client) StopTyping() error {
	return c.writeEvent(protocol.EventTypingStop, protocol.ChatRef{PeerID: c.peerID})
}

func (c *Client) writeEvent(event string, payload any) error {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop() {
	defer c.connected.Store(false)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				close(c.done)
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	switch env.Event {
	case protocol.EventConnectionSuccess:
		c.connected.Store(true)

	case protocol.EventMessageSent, protocol.EventMessageReceived:
		var m protocol.ChatMessage
		if err := env.Decode(&m); err != nil {
			return
		}
		c.cache.Apply(fromChatMessage(&m))

	case protocol.EventMessageDeleted:
		var p protocol.MessageDeletedPayload
		if err := env.Decode(&p); err != nil {
			return
		}
		c.cache.Remove(p.MessageID, "")

	case protocol.EventError:
		var p protocol.ErrorPayload
		if err := env.Decode(&p); err != nil {
			return
		}
		if p.TempID != "" {
			c.cache.MarkFailed(p.TempID)
		}
		if c.OnSendFailed != nil {
			c.OnSendFailed(p.TempID, p.Message)
		}
	}
}

// Done is closed when the connection terminates.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close tears down the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		err = c.conn.Close()
	})
	return err
}
