package model

import (
	"time"

	"gorm.io/gorm"
)

// Message is the canonical unit of conversation. The ID is assigned at
// persistence time and is immutable; client correlation tokens never reach
// this table.
type Message struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Type        string         `gorm:"type:varchar(16);default:'text';index" json:"message_type"`
	Content     string         `gorm:"type:text" json:"content"`
	FileURL     string         `gorm:"type:varchar(512)" json:"file_url"`
	FileName    string         `gorm:"type:varchar(255)" json:"file_name"`
	FileSize    int64          `json:"file_size"`
	FileType    string         `gorm:"type:varchar(128)" json:"file_type"`
	SenderID    uint           `gorm:"index:idx_conversation" json:"sender_id"`
	RecipientID uint           `gorm:"index:idx_conversation" json:"recipient_id"`
	Timestamp   time.Time      `gorm:"index" json:"timestamp"`
	Delivered   bool           `json:"delivered"`
	DeliveredAt *time.Time     `json:"delivered_at"`
	Read        bool           `json:"read"`
	ReadAt      *time.Time     `json:"read_at"`
	Edited      bool           `json:"edited"`
	EditedAt    *time.Time     `json:"edited_at"`
	CreatedAt   time.Time      `json:"created_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Sender      User           `gorm:"foreignKey:SenderID" json:"sender"`
	Recipient   User           `gorm:"foreignKey:RecipientID" json:"recipient"`
}

// HasAttachment reports whether the message carries a file reference rather
// than inline text content.
func (m *Message) HasAttachment() bool {
	return m.Type != "text" && m.FileURL != ""
}
