package app

import (
	"context"
	"fmt"

	"dahdouh-ai/internal/model"
)

// ChatHandle is the target of a turn: a stored chat or the in-memory owner chat.
// Appending works the same for both; only durable handles reach the store.
type ChatHandle interface {
	ChatID() string
	Durable() bool
	History(ctx context.Context, limit int) ([]model.Message, error)
	Append(ctx context.Context, msg *model.Message) error
}

type durableChat struct {
	store  ChatStore
	userID uint
	chat   *model.Chat
}

func (h *durableChat) ChatID() string { return h.chat.ID }

func (h *durableChat) Durable() bool { return true }

func (h *durableChat) History(ctx context.Context, limit int) ([]model.Message, error) {
	return h.store.Messages(ctx, h.chat.ID, limit)
}

func (h *durableChat) Append(ctx context.Context, msg *model.Message) error {
	if err := h.store.Append(ctx, h.userID, h.chat.ID, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// ephemeralChat lives for one request and is never stored.
type ephemeralChat struct {
	messages []model.Message
}

func (h *ephemeralChat) ChatID() string { return model.OfflineChatID }

func (h *ephemeralChat) Durable() bool { return false }

func (h *ephemeralChat) History(_ context.Context, limit int) ([]model.Message, error) {
	if limit <= 0 || limit >= len(h.messages) {
		return h.messages, nil
	}
	return h.messages[len(h.messages)-limit:], nil
}

func (h *ephemeralChat) Append(_ context.Context, msg *model.Message) error {
	msg.ChatID = model.OfflineChatID
	msg.Seq = len(h.messages) + 1
	h.messages = append(h.messages, *msg)
	return nil
}
