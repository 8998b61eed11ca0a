package repository

import (
	"errors"
	"time"

	"go-direct-chat/internal/model"
	"go-direct-chat/pkg/db"

	"gorm.io/gorm"
)

// MessageRepository handles message persistence.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{db: db.DB}
}

func (r *MessageRepository) Create(message *model.Message) error {
	return r.db.Create(message).Error
}

func (r *MessageRepository) FindByID(id uint) (*model.Message, error) {
	var message model.Message
	if err := r.db.First(&message, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

// FindConversation returns the messages exchanged between two users in either
// direction, ascending by send time. A limit of zero returns the whole
// conversation.
func (r *MessageRepository) FindConversation(userID1, userID2 uint, limit, offset int) ([]model.Message, error) {
	var messages []model.Message
	query := r.db.Where(
		"(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
		userID1, userID2, userID2, userID1,
	).Order("timestamp ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	err := query.Find(&messages).Error

	return messages, err
}

func (r *MessageRepository) Delete(messageID uint) error {
	return r.db.Delete(&model.Message{}, messageID).Error
}

func (r *MessageRepository) Update(message *model.Message) error {
	return r.db.Save(message).Error
}

// MarkRead flags the given messages as read, but only where the caller is the
// recipient and the flag is not already set. Returns the number of rows
// updated.
func (r *MessageRepository) MarkRead(recipientID uint, messageIDs []uint) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	now := time.Now()
	result := r.db.Model(&model.Message{}).
		Where("id IN ? AND recipient_id = ? AND `read` = ?", messageIDs, recipientID, false).
		Updates(map[string]interface{}{"read": true, "read_at": &now})
	return result.RowsAffected, result.Error
}
