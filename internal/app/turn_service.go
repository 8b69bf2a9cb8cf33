package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dahdouh-ai/internal/ai"
	"dahdouh-ai/internal/metrics"
	"dahdouh-ai/internal/model"
	"dahdouh-ai/internal/pkg/chatid"
	"dahdouh-ai/internal/storage"
)

// TurnService runs one user turn: resolve the chat, upload the image, persist the
// prompt, generate a reply and persist it.
type TurnService struct {
	chats        ChatStore
	generator    Generator
	uploader     ImageUploader
	locker       ChatLocker
	publisher    TurnEventPublisher
	historyCache HistoryCache
	systemPrompt string
	maxContext   int
	now          func() time.Time
	log          zerolog.Logger
}

type TurnServiceConfig struct {
	SystemPrompt string
	MaxContext   int
}

type ImageInput struct {
	Data        []byte
	ContentType string
	Filename    string
}

type TurnInput struct {
	UserID uint
	ChatID string
	Prompt string
	// Image is a freshly attached file. ImageURL must be a URL issued by the
	// uploader and is ignored when Image is set.
	Image    *ImageInput
	ImageURL string
}

type TurnResult struct {
	ChatID      string        `json:"chatId"`
	UserMessage model.Message `json:"userMessage"`
	Message     model.Message `json:"message"`
	Modality    string        `json:"modality"`
	Provider    string        `json:"provider"`
	Durable     bool          `json:"durable"`
	Persisted   bool          `json:"persisted"`
}

// NewTurnService wires the orchestrator. uploader, locker, publisher and
// historyCache may be nil.
func NewTurnService(
	chats ChatStore,
	generator Generator,
	uploader ImageUploader,
	locker ChatLocker,
	publisher TurnEventPublisher,
	historyCache HistoryCache,
	cfg TurnServiceConfig,
	log zerolog.Logger,
) *TurnService {
	if cfg.MaxContext <= 0 {
		cfg.MaxContext = 20
	}
	return &TurnService{
		chats:        chats,
		generator:    generator,
		uploader:     uploader,
		locker:       locker,
		publisher:    publisher,
		historyCache: historyCache,
		systemPrompt: cfg.SystemPrompt,
		maxContext:   cfg.MaxContext,
		now:          time.Now,
		log:          log.With().Str("component", "turn").Logger(),
	}
}

func (s *TurnService) SubmitTurn(ctx context.Context, input TurnInput) (*TurnResult, error) {
	if input.UserID == 0 {
		return nil, ErrUnauthorized
	}
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		return nil, ErrPromptEmpty
	}
	chatID := strings.TrimSpace(input.ChatID)
	if chatID != model.OfflineChatID && !chatid.IsValid(chatID) {
		return nil, ErrInvalidChatID
	}

	handle, err := s.resolve(ctx, input.UserID, chatID)
	if err != nil {
		return nil, err
	}

	if handle.Durable() && s.locker != nil {
		unlock, err := s.locker.Lock(ctx, chatID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		defer unlock()
	}

	image, err := s.prepareImage(ctx, input)
	if err != nil {
		s.observe(ai.KindVision, "upload_error")
		return nil, err
	}

	var modality ai.Modality
	if image.Empty() {
		history, err := handle.History(ctx, s.maxContext)
		if err != nil {
			return nil, fmt.Errorf("load chat context failed: %w", err)
		}
		modality = ai.Text{SystemPrompt: s.systemPrompt, History: toChatMessages(history), Prompt: prompt}
	} else {
		modality = ai.Vision{Prompt: prompt, Image: image}
	}

	userMsg := &model.Message{
		Role:      model.RoleUser,
		Content:   prompt,
		ImageURL:  image.URL,
		CreatedAt: s.now(),
	}
	if err := handle.Append(ctx, userMsg); err != nil {
		s.observe(modality.Kind(), "persist_error")
		return nil, err
	}
	if handle.Durable() {
		defer s.invalidateHistory(ctx, chatID)
	}

	gen, err := s.generator.Generate(ctx, modality)
	if err != nil {
		s.observe(modality.Kind(), "generation_error")
		s.log.Warn().Err(err).Str("chat_id", chatID).Str("modality", modality.Kind()).Msg("turn generation failed")
		return nil, &TurnError{
			Err:              fmt.Errorf("%w: %w", ErrGeneration, err),
			UserMessageSaved: handle.Durable(),
		}
	}

	reply := &model.Message{
		Role:      model.RoleAssistant,
		Content:   gen.Text,
		CreatedAt: s.now(),
	}
	if !reply.CreatedAt.After(userMsg.CreatedAt) {
		reply.CreatedAt = userMsg.CreatedAt.Add(time.Millisecond)
	}

	result := &TurnResult{
		ChatID:      handle.ChatID(),
		UserMessage: *userMsg,
		Modality:    gen.Modality,
		Provider:    gen.Provider,
		Durable:     handle.Durable(),
	}
	if err := handle.Append(ctx, reply); err != nil {
		s.observe(modality.Kind(), "persist_error")
		s.log.Error().Err(err).Str("chat_id", chatID).Msg("assistant message not persisted")
		result.Message = *reply
		return result, nil
	}
	result.Message = *reply
	result.Persisted = handle.Durable()
	s.observe(modality.Kind(), "ok")

	if handle.Durable() {
		s.afterDurableTurn(ctx, input.UserID, chatID, prompt, modality.Kind())
	}
	return result, nil
}

func (s *TurnService) resolve(ctx context.Context, userID uint, chatID string) (ChatHandle, error) {
	if chatID == model.OfflineChatID {
		return &ephemeralChat{}, nil
	}
	chat, err := s.chats.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	return &durableChat{store: s.chats, userID: userID, chat: chat}, nil
}

// prepareImage uploads an attached file so the user message can reference it.
// The bytes stay on the image for providers that take inline data. A referenced
// URL must resolve to an earlier upload.
func (s *TurnService) prepareImage(ctx context.Context, input TurnInput) (ai.Image, error) {
	if input.Image == nil || len(input.Image.Data) == 0 {
		return s.resolveImage(ctx, strings.TrimSpace(input.ImageURL))
	}
	image := ai.Image{Data: input.Image.Data, MIMEType: input.Image.ContentType}
	if s.uploader == nil {
		return image, nil
	}
	asset, err := s.uploader.Store(ctx, input.Image.Data, input.Image.ContentType, input.Image.Filename)
	switch {
	case errors.Is(err, storage.ErrStorageDisabled):
		return image, nil
	case errors.Is(err, storage.ErrFileTooLarge), errors.Is(err, ErrStorage):
		return ai.Image{}, err
	case err != nil:
		return ai.Image{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	image.URL = asset.URL
	image.MIMEType = asset.ContentType
	return image, nil
}

func (s *TurnService) resolveImage(ctx context.Context, rawURL string) (ai.Image, error) {
	if rawURL == "" {
		return ai.Image{}, nil
	}
	if len(rawURL) > model.MaxImageURLLength {
		return ai.Image{}, fmt.Errorf("%w: image url longer than %d bytes", ErrInvalidInput, model.MaxImageURLLength)
	}
	if s.uploader == nil {
		return ai.Image{}, ErrImageRejected
	}
	asset, data, err := s.uploader.Resolve(ctx, rawURL)
	if err != nil {
		return ai.Image{}, err
	}
	return ai.Image{URL: asset.URL, Data: data, MIMEType: asset.ContentType}, nil
}

// invalidateHistory runs once the prompt is stored, whatever happens to the reply.
func (s *TurnService) invalidateHistory(ctx context.Context, chatID string) {
	if s.historyCache == nil {
		return
	}
	if err := s.historyCache.DeleteHistory(context.WithoutCancel(ctx), chatID); err != nil {
		s.log.Warn().Err(err).Str("chat_id", chatID).Msg("invalidate history cache failed")
	}
}

func (s *TurnService) afterDurableTurn(ctx context.Context, userID uint, chatID, prompt, kind string) {
	if s.publisher != nil {
		event := model.TurnEvent{ChatID: chatID, UserID: userID, Prompt: prompt, Modality: kind, At: s.now()}
		if err := s.publisher.PublishTurn(ctx, event); err != nil {
			s.log.Warn().Err(err).Str("chat_id", chatID).Msg("publish turn event failed")
		}
	}
}

func (s *TurnService) observe(kind, outcome string) {
	metrics.TurnsTotal.WithLabelValues(kind, outcome).Inc()
}

func toChatMessages(history []model.Message) []ai.ChatMessage {
	out := make([]ai.ChatMessage, 0, len(history))
	for _, m := range history {
		content := m.Content
		if content == "" && m.ImageURL != "" {
			content = "[image] " + m.ImageURL
		}
		role := m.Role
		if role == "" {
			role = model.RoleUser
		}
		out = append(out, ai.ChatMessage{Role: role, Content: content})
	}
	return out
}
