package websocket_test

import (
	"fmt"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go-direct-chat/internal/api"
	"go-direct-chat/internal/model"
	"go-direct-chat/internal/service"
	"go-direct-chat/internal/websocket"
	"go-direct-chat/pkg/chatclient"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Conversation flow tests against a real server: gin + upgrader + hub +
// chat service, with in-memory persistence. Clients are real websocket
// connections driven through the chatclient package.

type e2eMessageStore struct {
	mu       sync.Mutex
	nextID   uint
	messages map[uint]*model.Message
}

func newE2EMessageStore() *e2eMessageStore {
	return &e2eMessageStore{nextID: 1, messages: make(map[uint]*model.Message)}
}

func (s *e2eMessageStore) Create(m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.nextID
	s.nextID++
	copied := *m
	s.messages[m.ID] = &copied
	return nil
}

func (s *e2eMessageStore) FindByID(id uint) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (s *e2eMessageStore) FindConversation(u1, u2 uint, limit, offset int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, m := range s.messages {
		if (m.SenderID == u1 && m.RecipientID == u2) || (m.SenderID == u2 && m.RecipientID == u1) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *e2eMessageStore) Delete(id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, id)
	return nil
}

func (s *e2eMessageStore) Update(m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *m
	s.messages[m.ID] = &copied
	return nil
}

func (s *e2eMessageStore) MarkRead(recipientID uint, ids []uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now()
	for _, id := range ids {
		if m, ok := s.messages[id]; ok && m.RecipientID == recipientID && !m.Read {
			m.Read = true
			m.ReadAt = &now
			n++
		}
	}
	return n, nil
}

type e2eUserStore struct{}

func (e2eUserStore) FindByID(id uint) (*model.User, error) {
	return &model.User{ID: id, Username: fmt.Sprintf("user%d", id), Avatar: "default-avatar.png"}, nil
}

// startServer wires the full stack behind an httptest server. The /ws route
// takes the identity from a query parameter in place of the JWT middleware.
func startServer(t *testing.T) (*httptest.Server, *e2eMessageStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := websocket.NewHub()
	store := newE2EMessageStore()
	chatService := service.NewChatService(hub, store, e2eUserStore{}, nil)
	hub.SetEventHandler(chatService)
	wsHandler := api.NewWSHandler(hub, chatService)

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Query("userID"), 10, 32)
		require.NoError(t, err)
		c.Set("userID", uint(id))
		wsHandler.HandleConnection(c)
	})

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return server, store
}

func dial(t *testing.T, server *httptest.Server, selfID, peerID uint) *chatclient.Client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + fmt.Sprintf("/ws?userID=%d", selfID)
	client, err := chatclient.Dial(url, selfID, peerID)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	waitFor(t, "connection acknowledged", client.Connected)
	require.NoError(t, client.JoinChat())
	return client
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConversationConvergesToOneCanonicalRecord(t *testing.T) {
	server, store := startServer(t)

	alice := dial(t, server, 1, 2)
	bob := dial(t, server, 2, 1)

	_, err := alice.SendText("hi")
	require.NoError(t, err)

	// The sender sees a provisional entry immediately, then the ack
	// upgrades it in place.
	waitFor(t, "sender cache canonical", func() bool {
		msgs := alice.Cache().Messages()
		return len(msgs) == 1 && !msgs[0].Provisional()
	})
	waitFor(t, "recipient cache", func() bool {
		return bob.Cache().Len() == 1
	})

	aliceMsgs := alice.Cache().Messages()
	bobMsgs := bob.Cache().Messages()

	// Room delivery, personal delivery and the ack all collapsed into one
	// entry per cache, holding the same server-assigned record.
	require.Len(t, aliceMsgs, 1)
	require.Len(t, bobMsgs, 1)
	assert.Equal(t, aliceMsgs[0].ID, bobMsgs[0].ID)
	assert.Equal(t, "hi", aliceMsgs[0].Content)
	assert.Equal(t, "hi", bobMsgs[0].Content)
	assert.Equal(t, chatclient.StateSent, aliceMsgs[0].State)

	stored, err := store.FindByID(aliceMsgs[0].ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "hi", stored.Content)
	assert.True(t, stored.Delivered)
}

func TestDeletePropagatesToBothCaches(t *testing.T) {
	server, store := startServer(t)

	alice := dial(t, server, 1, 2)
	bob := dial(t, server, 2, 1)

	_, err := alice.SendText("remove me")
	require.NoError(t, err)

	waitFor(t, "message in both caches", func() bool {
		a := alice.Cache().Messages()
		return len(a) == 1 && !a[0].Provisional() && bob.Cache().Len() == 1
	})
	messageID := alice.Cache().Messages()[0].ID

	require.NoError(t, alice.DeleteMessage(messageID))

	waitFor(t, "caches emptied", func() bool {
		return alice.Cache().Len() == 0 && bob.Cache().Len() == 0
	})

	stored, err := store.FindByID(messageID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRejectedDraftIsMarkedFailed(t *testing.T) {
	server, _ := startServer(t)

	alice := dial(t, server, 1, 2)

	var mu sync.Mutex
	var failedTempID string
	alice.OnSendFailed = func(tempID, reason string) {
		mu.Lock()
		defer mu.Unlock()
		failedTempID = tempID
	}

	// A file draft without an attachment reference is rejected.
	tempID, err := alice.SendFile("", "", "", 0)
	require.NoError(t, err)

	waitFor(t, "draft marked failed", func() bool {
		msgs := alice.Cache().Messages()
		return len(msgs) == 1 && msgs[0].State == chatclient.StateFailed
	})

	msgs := alice.Cache().Messages()
	assert.True(t, msgs[0].Provisional())
	assert.Equal(t, tempID, msgs[0].TempID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, tempID, failedTempID)
}

func TestReconnectReplacesConnection(t *testing.T) {
	server, _ := startServer(t)

	first := dial(t, server, 1, 2)
	bob := dial(t, server, 2, 1)

	// Same user dials again: the old connection is evicted and closed by
	// the server.
	second := dial(t, server, 1, 2)

	waitFor(t, "old connection closed", func() bool {
		select {
		case <-first.Done():
			return true
		default:
			return false
		}
	})

	_, err := bob.SendText("after reconnect")
	require.NoError(t, err)

	// Only the new connection receives traffic.
	waitFor(t, "delivery to new connection", func() bool {
		return second.Cache().Len() == 1
	})
	assert.Equal(t, 0, first.Cache().Len())
	assert.Equal(t, "after reconnect", second.Cache().Messages()[0].Content)
}
