package repository

import (
	"testing"
	"time"

	"go-direct-chat/internal/model"
	"go-direct-chat/pkg/config"
	"go-direct-chat/pkg/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestMessages(t *testing.T) (*MessageRepository, *model.User, *model.User) {
	if err := config.InitTest(); err != nil {
		t.Fatalf("Failed to initialize config: %v", err)
	}
	if err := db.InitDB(); err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	cleanupMessageTable(t)
	cleanupUserTable(t)

	userRepo := NewUserRepository()
	messageRepo := NewMessageRepository()

	user1 := &model.User{
		Username: "testuser1",
		Email:    "test1@example.com",
		Password: "password123",
	}
	user2 := &model.User{
		Username: "testuser2",
		Email:    "test2@example.com",
		Password: "password123",
	}

	if err := userRepo.Create(user1); err != nil {
		t.Fatalf("Failed to create test user1: %v", err)
	}
	if err := userRepo.Create(user2); err != nil {
		t.Fatalf("Failed to create test user2: %v", err)
	}

	return messageRepo, user1, user2
}

func TestMessageRepository_Create(t *testing.T) {
	messageRepo, user1, user2 := setupTestMessages(t)

	message := &model.Message{
		Type:        "text",
		Content:     "Test message",
		SenderID:    user1.ID,
		RecipientID: user2.ID,
		Timestamp:   time.Now(),
	}

	err := messageRepo.Create(message)
	assert.NoError(t, err)
	assert.NotZero(t, message.ID)
}

func TestMessageRepository_FindConversation(t *testing.T) {
	messageRepo, user1, user2 := setupTestMessages(t)

	base := time.Now().Add(-time.Minute)
	seed := []*model.Message{
		{Type: "text", Content: "first", SenderID: user1.ID, RecipientID: user2.ID, Timestamp: base},
		{Type: "text", Content: "second", SenderID: user2.ID, RecipientID: user1.ID, Timestamp: base.Add(time.Second)},
		{Type: "text", Content: "third", SenderID: user1.ID, RecipientID: user2.ID, Timestamp: base.Add(2 * time.Second)},
	}
	for _, m := range seed {
		require.NoError(t, messageRepo.Create(m))
	}

	// Both directions, ascending by send time, regardless of argument order.
	messages, err := messageRepo.FindConversation(user2.ID, user1.ID, 50, 0)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
	assert.Equal(t, "third", messages[2].Content)

	// Zero limit means the whole conversation, not LIMIT 0.
	all, err := messageRepo.FindConversation(user1.ID, user2.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Pagination is opt-in.
	page, err := messageRepo.FindConversation(user1.ID, user2.ID, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "second", page[0].Content)
}

func TestMessageRepository_FindByID(t *testing.T) {
	messageRepo, user1, user2 := setupTestMessages(t)

	message := &model.Message{
		Type:        "text",
		Content:     "findable",
		SenderID:    user1.ID,
		RecipientID: user2.ID,
		Timestamp:   time.Now(),
	}
	require.NoError(t, messageRepo.Create(message))

	found, err := messageRepo.FindByID(message.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "findable", found.Content)

	missing, err := messageRepo.FindByID(999999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMessageRepository_Delete(t *testing.T) {
	messageRepo, user1, user2 := setupTestMessages(t)

	message := &model.Message{
		Type:        "text",
		Content:     "to delete",
		SenderID:    user1.ID,
		RecipientID: user2.ID,
		Timestamp:   time.Now(),
	}
	require.NoError(t, messageRepo.Create(message))

	require.NoError(t, messageRepo.Delete(message.ID))

	found, err := messageRepo.FindByID(message.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestMessageRepository_MarkRead(t *testing.T) {
	messageRepo, user1, user2 := setupTestMessages(t)

	a := &model.Message{Type: "text", Content: "a", SenderID: user1.ID, RecipientID: user2.ID, Timestamp: time.Now()}
	b := &model.Message{Type: "text", Content: "b", SenderID: user1.ID, RecipientID: user2.ID, Timestamp: time.Now()}
	require.NoError(t, messageRepo.Create(a))
	require.NoError(t, messageRepo.Create(b))

	// Only the recipient's rows flip.
	updated, err := messageRepo.MarkRead(user1.ID, []uint{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)

	updated, err = messageRepo.MarkRead(user2.ID, []uint{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	// Already read: no-op.
	updated, err = messageRepo.MarkRead(user2.ID, []uint{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)

	found, err := messageRepo.FindByID(a.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.Read)
	assert.NotNil(t, found.ReadAt)
}

func cleanupUserTable(t *testing.T) {
	if err := db.DB.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&model.User{}).Error; err != nil {
		t.Logf("Failed to cleanup users table: %v", err)
	}
}

func cleanupMessageTable(t *testing.T) {
	if err := db.DB.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&model.Message{}).Error; err != nil {
		t.Logf("Failed to cleanup messages table: %v", err)
	}
}
