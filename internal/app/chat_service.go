package app

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"dahdouh-ai/internal/model"
	"dahdouh-ai/internal/pkg/chatid"
)

const maxChatNameRunes = 128

// ChatService owns chat lifecycle outside of turns: create, list, history,
// rename and delete.
type ChatService struct {
	chats        ChatStore
	historyCache HistoryCache
	log          zerolog.Logger
}

func NewChatService(chats ChatStore, historyCache HistoryCache, log zerolog.Logger) *ChatService {
	return &ChatService{
		chats:        chats,
		historyCache: historyCache,
		log:          log.With().Str("component", "chat").Logger(),
	}
}

func (s *ChatService) Create(ctx context.Context, userID uint, name string) (*model.Chat, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = model.DefaultChatName
	}
	if utf8.RuneCountInString(name) > maxChatNameRunes {
		return nil, ErrInvalidChatName
	}

	chat := &model.Chat{
		ID:       chatid.New(),
		UserID:   userID,
		Name:     name,
		Messages: []model.Message{},
	}
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *ChatService) List(ctx context.Context, userID uint) ([]model.Chat, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	chats, err := s.chats.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range chats {
		if chats[i].Messages == nil {
			chats[i].Messages = []model.Message{}
		}
	}
	return chats, nil
}

// History returns the last limit messages of a chat, served from the cache when
// possible. limit <= 0 returns the whole chat.
func (s *ChatService) History(ctx context.Context, userID uint, chatID string, limit int) ([]model.Message, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == model.OfflineChatID {
		return []model.Message{}, nil
	}
	if !chatid.IsValid(chatID) {
		return nil, ErrInvalidChatID
	}
	if _, err := s.chats.Get(ctx, userID, chatID); err != nil {
		return nil, err
	}

	if s.historyCache != nil {
		cached, hit, err := s.historyCache.GetHistory(ctx, chatID)
		if err != nil {
			s.log.Warn().Err(err).Str("chat_id", chatID).Msg("read history cache failed")
		} else if hit {
			return trimMessages(cached, limit), nil
		}
	}

	messages, err := s.chats.Messages(ctx, chatID, 0)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if err := s.historyCache.SetHistory(ctx, chatID, messages); err != nil {
			s.log.Warn().Err(err).Str("chat_id", chatID).Msg("write history cache failed")
		}
	}
	return trimMessages(messages, limit), nil
}

func (s *ChatService) Rename(ctx context.Context, userID uint, chatID, name string) error {
	if userID == 0 {
		return ErrUnauthorized
	}
	chatID = strings.TrimSpace(chatID)
	if !chatid.IsValid(chatID) {
		return ErrInvalidChatID
	}
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxChatNameRunes {
		return ErrInvalidChatName
	}
	return s.chats.Rename(ctx, userID, chatID, name)
}

func (s *ChatService) Delete(ctx context.Context, userID uint, chatID string) error {
	if userID == 0 {
		return ErrUnauthorized
	}
	chatID = strings.TrimSpace(chatID)
	if !chatid.IsValid(chatID) {
		return ErrInvalidChatID
	}
	if err := s.chats.Delete(ctx, userID, chatID); err != nil {
		return err
	}
	if s.historyCache != nil {
		if err := s.historyCache.DeleteHistory(ctx, chatID); err != nil {
			s.log.Warn().Err(err).Str("chat_id", chatID).Msg("drop history cache failed")
		}
	}
	return nil
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if messages == nil {
		return []model.Message{}
	}
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
