package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"testing"
	"time"

	"go-direct-chat/internal/interfaces"
	"go-direct-chat/internal/model"
	"go-direct-chat/internal/protocol"
	"go-direct-chat/internal/service"
	"go-direct-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.InitLogger("error", false); err != nil {
		panic(err)
	}
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type handlerMessageStore struct {
	messages []model.Message
}

func (s *handlerMessageStore) Create(m *model.Message) error {
	m.ID = uint(len(s.messages) + 1)
	s.messages = append(s.messages, *m)
	return nil
}

func (s *handlerMessageStore) FindByID(id uint) (*model.Message, error) {
	for i := range s.messages {
		if s.messages[i].ID == id {
			copied := s.messages[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *handlerMessageStore) FindConversation(u1, u2 uint, limit, offset int) ([]model.Message, error) {
	var out []model.Message
	for _, m := range s.messages {
		if (m.SenderID == u1 && m.RecipientID == u2) || (m.SenderID == u2 && m.RecipientID == u1) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *handlerMessageStore) Delete(id uint) error { return nil }

func (s *handlerMessageStore) Update(m *model.Message) error { return nil }

func (s *handlerMessageStore) MarkRead(uint, []uint) (int64, error) { return 0, nil }

type handlerUserStore struct{}

func (handlerUserStore) FindByID(id uint) (*model.User, error) {
	return &model.User{ID: id, Username: fmt.Sprintf("user%d", id)}, nil
}

type noopHub struct{}

func (noopHub) Register(interfaces.Client)   {}
func (noopHub) Unregister(interfaces.Client) {}
func (noopHub) JoinRoom(uint, string)        {}
func (noopHub) LeaveRoom(uint, string)       {}
func (noopHub) EmitToRoom(string, []byte)    {}

func (noopHub) SendMessageToUser(uint, []byte) (bool, error) { return false, nil }

func (noopHub) IsClientConnected(uint) bool { return false }

func (noopHub) SetEventHandler(interfaces.ConnectionEventHandler) {}

func newHistoryRouter(store *handlerMessageStore) *gin.Engine {
	chatService := service.NewChatService(noopHub{}, store, handlerUserStore{}, nil)
	handler := NewMessageHandler(chatService, nil)

	router := gin.New()
	router.GET("/api/messages/history/:peer_id", func(c *gin.Context) {
		c.Set("userID", uint(1))
		handler.GetChatHistory(c)
	})
	return router
}

func fetchHistory(t *testing.T, router *gin.Engine, path string) []protocol.ChatMessage {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", path, nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Messages []protocol.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Messages
}

func TestGetChatHistoryReturnsFullConversationByDefault(t *testing.T) {
	store := &handlerMessageStore{}
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 120; i++ {
		require.NoError(t, store.Create(&model.Message{
			Type:        "text",
			Content:     fmt.Sprintf("m%d", i),
			SenderID:    1,
			RecipientID: 2,
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		}))
	}
	router := newHistoryRouter(store)

	// No query params: everything, oldest first. A reconnecting client
	// recovers missed broadcasts through this fetch, so the tail must be
	// present.
	messages := fetchHistory(t, router, "/api/messages/history/2")
	require.Len(t, messages, 120)
	assert.Equal(t, "m0", messages[0].Content)
	assert.Equal(t, "m119", messages[len(messages)-1].Content)

	// Pagination stays available when asked for.
	page := fetchHistory(t, router, "/api/messages/history/2?limit=50&offset=10")
	require.Len(t, page, 50)
	assert.Equal(t, "m10", page[0].Content)

	// Garbage pagination values fall back to the full fetch.
	all := fetchHistory(t, router, "/api/messages/history/2?limit=-5&offset=-1")
	assert.Len(t, all, 120)
}

func TestGetChatHistoryRejectsBadPeer(t *testing.T) {
	router := newHistoryRouter(&handlerMessageStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/messages/history/notanumber", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
