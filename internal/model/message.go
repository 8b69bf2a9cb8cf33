package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	// MaxImageURLLength matches the ImageURL column size.
	MaxImageURLLength = 1024
)

// Message is immutable once appended to a chat.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	ChatID    string    `gorm:"size:26;not null;uniqueIndex:idx_chat_seq" json:"-"`
	Seq       int       `gorm:"not null;uniqueIndex:idx_chat_seq" json:"-"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	ImageURL  string    `gorm:"size:1024" json:"image,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
}
