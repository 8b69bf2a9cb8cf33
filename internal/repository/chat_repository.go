package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dahdouh-ai/internal/model"
)

// ErrChatNotFound covers both missing chats and chats owned by someone else.
var ErrChatNotFound = errors.New("chat not found")

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(ctx context.Context, chat *model.Chat) error {
	if err := r.db.WithContext(ctx).Omit("Messages").Create(chat).Error; err != nil {
		return fmt.Errorf("create chat failed: %w", err)
	}
	return nil
}

// Get loads a chat owned by userID without its messages.
func (r *ChatRepository) Get(ctx context.Context, userID uint, chatID string) (*model.Chat, error) {
	var chat model.Chat
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", chatID, userID).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("get chat failed: %w", err)
	}
	return &chat, nil
}

// List returns every chat of userID with messages, most recently updated first.
func (r *ChatRepository) List(ctx context.Context, userID uint) ([]model.Chat, error) {
	var chats []model.Chat
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("list chats failed: %w", err)
	}
	return chats, nil
}

// Append stores msg as the next message of the chat. The chat row is locked for
// the duration of the transaction so concurrent appends get distinct sequence numbers.
func (r *ChatRepository) Append(ctx context.Context, userID uint, chatID string, msg *model.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chat model.Chat
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", chatID, userID).
			First(&chat).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChatNotFound
			}
			return fmt.Errorf("lock chat failed: %w", err)
		}

		var last int
		if err := tx.Model(&model.Message{}).
			Where("chat_id = ?", chatID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&last).Error; err != nil {
			return fmt.Errorf("read last sequence failed: %w", err)
		}

		msg.ChatID = chatID
		msg.Seq = last + 1
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now()
		}
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("append message failed: %w", err)
		}
		if err := tx.Model(&model.Chat{}).
			Where("id = ?", chatID).
			UpdateColumn("updated_at", msg.CreatedAt).Error; err != nil {
			return fmt.Errorf("touch chat failed: %w", err)
		}
		return nil
	})
}

func (r *ChatRepository) Rename(ctx context.Context, userID uint, chatID, name string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chat model.Chat
		if err := tx.Where("id = ? AND user_id = ?", chatID, userID).First(&chat).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChatNotFound
			}
			return fmt.Errorf("get chat failed: %w", err)
		}
		if err := tx.Model(&chat).Updates(map[string]interface{}{
			"name":       name,
			"updated_at": time.Now(),
		}).Error; err != nil {
			return fmt.Errorf("rename chat failed: %w", err)
		}
		return nil
	})
}

// RenameIfDefault renames a chat that still carries the default name. It reports
// whether a row was changed.
func (r *ChatRepository) RenameIfDefault(ctx context.Context, chatID, name string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Chat{}).
		Where("id = ? AND name = ?", chatID, model.DefaultChatName).
		Update("name", name)
	if res.Error != nil {
		return false, fmt.Errorf("auto rename chat failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *ChatRepository) Delete(ctx context.Context, userID uint, chatID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", chatID, userID).Delete(&model.Chat{})
		if res.Error != nil {
			return fmt.Errorf("delete chat failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrChatNotFound
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&model.Message{}).Error; err != nil {
			return fmt.Errorf("delete chat messages failed: %w", err)
		}
		return nil
	})
}

// Messages returns the last limit messages of a chat in chronological order.
// limit <= 0 returns the whole chat.
func (r *ChatRepository) Messages(ctx context.Context, chatID string, limit int) ([]model.Message, error) {
	query := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("seq DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var messages []model.Message
	if err := query.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
