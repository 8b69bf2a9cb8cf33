package model

import "time"

const (
	DefaultChatName = "New Chat"
	// OfflineChatID is the chat reference for the ephemeral, never persisted chat.
	OfflineChatID = "owner-chat"
)

type Chat struct {
	ID        string    `gorm:"primaryKey;size:26" json:"_id"`
	UserID    uint      `gorm:"not null;index" json:"userId"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	Messages  []Message `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE" json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `gorm:"index" json:"updatedAt"`
}
