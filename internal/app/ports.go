package app

import (
	"context"

	"dahdouh-ai/internal/ai"
	"dahdouh-ai/internal/model"
	"dahdouh-ai/internal/storage"
)

// ChatStore is the owner-scoped chat persistence used by the services.
type ChatStore interface {
	Create(ctx context.Context, chat *model.Chat) error
	Get(ctx context.Context, userID uint, chatID string) (*model.Chat, error)
	List(ctx context.Context, userID uint) ([]model.Chat, error)
	Append(ctx context.Context, userID uint, chatID string, msg *model.Message) error
	Rename(ctx context.Context, userID uint, chatID, name string) error
	Delete(ctx context.Context, userID uint, chatID string) error
	Messages(ctx context.Context, chatID string, limit int) ([]model.Message, error)
}

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint) (*model.User, error)
}

type Generator interface {
	Generate(ctx context.Context, m ai.Modality) (*ai.Generation, error)
}

type ImageUploader interface {
	Store(ctx context.Context, data []byte, contentType, suggestedName string) (*storage.Asset, error)
	Resolve(ctx context.Context, rawURL string) (*storage.Asset, []byte, error)
}

type ChatLocker interface {
	Lock(ctx context.Context, chatID string) (func(), error)
}

type TurnEventPublisher interface {
	PublishTurn(ctx context.Context, event model.TurnEvent) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, chatID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, chatID string, messages []model.Message) error
	DeleteHistory(ctx context.Context, chatID string) error
}
