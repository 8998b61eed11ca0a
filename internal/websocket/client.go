package websocket

import (
	"errors"
	"log"
	"sync"
	"time"

	"go-direct-chat/internal/interfaces"
	"go-direct-chat/pkg/config"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // deadline for a single write
	pongWait       = 60 * time.Second    // max wait for a pong before the conn is dead
	pingPeriod     = (pongWait * 9) / 10 // must be shorter than pongWait
	maxMessageSize = 8192                // largest accepted inbound frame
)

type Client struct {
	UserID    uint
	Conn      *websocket.Conn
	Send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	handler   interfaces.MessageHandler
	manager   interfaces.ConnectionManager
}

func NewClient(userID uint, conn *websocket.Conn, handler interfaces.MessageHandler, manager interfaces.ConnectionManager) *Client {
	bufferSize := config.GlobalConfig.WebSocket.BroadcastBufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Client{
		UserID:  userID,
		Conn:    conn,
		Send:    make(chan []byte, bufferSize),
		closed:  make(chan struct{}),
		handler: handler,
		manager: manager,
	}
}

func (c *Client) GetUserID() uint {
	return c.UserID
}

// QueueBytes enqueues an outbound frame without blocking.
func (c *Client) QueueBytes(data []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return errors.New("client send buffer full")
	}
}

// Close terminates the connection. Safe to call more than once; an evicted
// connection is closed this way by the hub.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.Conn.Close()
	})
}

func (c *Client) ReadPump() {
	defer func() {
		c.manager.Unregister(c)
		c.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, messageBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: unexpected close error for user %d: %v", c.UserID, err)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.handler.HandleMessage(messageBytes, c.UserID)
		} else {
			log.Printf("Warning: Received non-text message type (%d) from user %d. Ignoring.", messageType, c.UserID)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.closed:
			return

		case messageBytes, ok := <-c.Send:
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))

			c.mu.Lock()
			err := c.Conn.WriteMessage(websocket.TextMessage, messageBytes)
			c.mu.Unlock()
			if err != nil {
				log.Printf("error: failed to write message for user %d: %v", c.UserID, err)
				return
			}

			// Drain whatever queued up while writing.
			c.mu.Lock()
			n := len(c.Send)
			for i := 0; i < n; i++ {
				batchBytes := <-c.Send
				if err := c.Conn.WriteMessage(websocket.TextMessage, batchBytes); err != nil {
					log.Printf("error: failed to write batched message for user %d: %v", c.UserID, err)
					c.mu.Unlock()
					return
				}
			}
			c.mu.Unlock()

		case <-ticker.C:
			c.mu.Lock()
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.Conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
