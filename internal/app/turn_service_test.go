package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dahdouh-ai/internal/ai"
	"dahdouh-ai/internal/model"
	"dahdouh-ai/internal/pkg/chatid"
	"dahdouh-ai/internal/storage"
)

const (
	ownerID    uint = 1
	strangerID uint = 2
)

type turnFixture struct {
	chats     *memoryChats
	gen       *recordingGenerator
	uploader  *fakeUploader
	locker    *countingLocker
	publisher *capturePublisher
	cache     *mapCache
	svc       *TurnService
	chatID    string
}

func newTurnFixture(t *testing.T, seed ...model.Message) *turnFixture {
	t.Helper()
	id := chatid.New()
	f := &turnFixture{
		chats:     newMemoryChats(model.Chat{ID: id, UserID: ownerID, Name: model.DefaultChatName, Messages: seed}),
		gen:       &recordingGenerator{},
		uploader:  &fakeUploader{},
		locker:    &countingLocker{},
		publisher: &capturePublisher{},
		cache:     newMapCache(),
		chatID:    id,
	}
	f.svc = NewTurnService(f.chats, f.gen, f.uploader, f.locker, f.publisher, f.cache,
		TurnServiceConfig{SystemPrompt: "be helpful", MaxContext: 4}, zerolog.Nop())
	return f
}

func TestSubmitTurn_TextAppendsUserThenAssistant(t *testing.T) {
	f := newTurnFixture(t)
	f.gen.reply = "Hi! How can I help?"

	res, err := f.svc.SubmitTurn(context.Background(), TurnInput{UserID: ownerID, ChatID: f.chatID, Prompt: "  Hello  "})
	require.NoError(t, err)

	assert.Equal(t, model.RoleAssistant, res.Message.Role)
	assert.Equal(t, "Hi! How can I help?", res.Message.Content)
	assert.True(t, res.Persisted)
	assert.True(t, res.Durable)
	assert.Equal(t, ai.KindText, res.Modality)

	msgs := f.chats.messages(f.chatID)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.True(t, msgs[1].CreatedAt.After(msgs[0].CreatedAt))
	assert.Equal(t, 1, msgs[0].Seq)
	assert.Equal(t, 2, msgs[1].Seq)
}

func TestSubmitTurn_AssistantTimestampStrictlyAfterUser(t *testing.T) {
	f := newTurnFixture(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = fixedClock(now)

	res, err := f.svc.SubmitTurn(context.Background(), TurnInput{UserID: ownerID, ChatID: f.chatID, Prompt: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, now, res.UserMessage.CreatedAt)
	assert.Equal(t, now.Add(time.Millisecond), res.Message.CreatedAt)
}

func TestSubmitTurn_TextCarriesContext(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	var seed []model.Message
	for i, content := range []string{"one", "two", "three", "four", "five", "six"} {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		seed = append(seed, model.Message{Role: role, Content: content, Seq: i + 1, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	f := newTurnFixture(t, seed...)

	_, err := f.svc.SubmitTurn(context.Background(), TurnInput{UserID: ownerID, ChatID: f.chatID, Prompt: "seven"})
	require.NoError(t, err)

	require.Len(t, f.gen.calls, 1)
	text, ok := f.gen.calls[0].(ai.Text)
	require.True(t, ok)
	assert.Equal(t, "be helpful", text.SystemPrompt)
	assert.Equal(t, "seven", text.Prompt)
	require.Len(t, text.History, 4)
	assert.Equal(t, "three", text.History[0].Content)
	assert.Equal(t, "six", text.History[3].Content)
}

func TestSubmitTurn_ModalityFollowsImage(t *testing.T) {
	f := newTurnFixture(t)

	_, err := f.svc.SubmitTurn(context.Background(), TurnInput{
		UserID: ownerID,
		ChatID: f.chatID,
		Prompt: "What is in this picture?",
		Image:  &ImageInput{Data: []byte("png"), ContentType: "image/png", Filename: "cat.png"},
	})
	require.NoError(t, err)

	_, err = f.svc.SubmitTurn(context.Background(), TurnInput{UserID: ownerID, ChatID: f.chatID, Prompt: "thanks"})
	require.NoError(t, err)

	require.Len(t, f.gen.calls, 2)
	vision, ok := f.gen.calls[0].(ai.Vision)
	require.True(t, ok, "image turn must use vision")
	assert.Equal(t, []byte("png"), vision.Image.Data)
	assert.Equal(t, "https://cdn.test/01J0000000000000000000000-cat.png", vision.Image.URL)
	_, ok = f.gen.calls[1].(ai.Text)
	assert.True(t, ok, "text turn must use text")

	msgs := f.chats.messages(f.chatID)
	require.Len(t, msgs, 4)
	assert.Equal(t, vision.Image.URL, msgs[0].ImageURL)
	assert.Equal(t, "reply to vision", msgs[1].Content)
}

func TestSubmitTurn_PreviouslyUploadedURL(t *testing.T) {
	f := newTurnFixture(t)

	_, err := f.svc.SubmitTurn(context.Background(), TurnInput{
		UserID:   ownerID,
		ChatID:   f.chatID,
		Prompt:   "describe",
		ImageURL: "https://cdn.test/earlier.png",
	})
	require.NoError(t, err)

	assert.Zero(t, f.uploader.calls)
	assert.Equal(t, 1, f.uploader.resolves)
	vision, ok := f.gen.calls[0].(ai.Vision)
	require.True(t, ok)
	assert.Equal(t, "https://cdn.test/earlier.png", vision.Image.URL)
	assert.Equal(t, "https://cdn.test/earlier.png", f.chats.messages(f.chatID)[0].ImageURL)
}

func TestSubmitTurn_RejectedBeforeAnyMutation(t *testing.T) {
	cases := []struct {
		name  string
		input func(chatID string) TurnInput
		want  error
	}{
		{"unauthenticated", func(id string) TurnInput { return TurnInput{ChatID: id, Prompt: "Hello"} }, ErrUnauthorized},
		{"empty prompt", func(id string) TurnInput { return TurnInput{UserID: ownerID, ChatID: id, Prompt: ""} }, ErrPromptEmpty},
		{"whitespace prompt", func(id string) TurnInput { return TurnInput{UserID: ownerID, ChatID: id, Prompt: " \n\t "} }, ErrPromptEmpty},
		{"missing chat id", func(string) TurnInput { return TurnInput{UserID: ownerID, Prompt: "Hello"} }, ErrInvalidChatID},
		{"malformed chat id", func(string) TurnInput { return TurnInput{UserID: ownerID, ChatID: "not-a-ulid", Prompt: "Hello"} }, ErrInvalidChatID},
		{"unknown chat", func(string) TurnInput { return TurnInput{UserID: ownerID, ChatID: chatid.New(), Prompt: "Hello"} }, ErrChatNotFound},
		{"foreign chat", func(id string) TurnInput { return TurnInput{UserID: strangerID, ChatID: id, Prompt: "Hello"} }, ErrChatNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newTurnFixture(t, model.Message{Role: model.RoleUser, Content: "earlier", Seq: 1, CreatedAt: time.Now()})

			_, err := f.svc.SubmitTurn(context.Background(), tc.input(f.chatID))
			require.ErrorIs(t, err, tc.want)

			assert.Len(t, f.chats.messages(f.chatID), 1)
			assert.Zero(t, f.chats.appends)
			assert.Empty(t, f.gen.calls)
			assert.Zero(t, f.uploader.calls)
			assert.Zero(t, f.locker.acquired)
		})
	}
}

func TestSubmitTurn_GenerationFailureKeepsUserMessage(t *testing.T) {
	f := newTurnFixture(t)
	f.gen.err = ai.ErrUpstreamStatus

	_, err := f.svc.SubmitTurn(context.Background(), TurnInput{UserID: ownerID, ChatID: f.chatID, Prompt: "Hello"})
	require.ErrorIs(t, err, ErrGeneration)
	require.ErrorIs(t, err, ai.ErrUpstreamStatus)

	var turnErr *TurnError
	require.True(t, errors.As(err, &turnErr))
	assert.True(t, turnErr.UserMessageSaved)

	msgs := f.chats.messages(f.chatID)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Empty(t, f.publisher.events)
	assert.Equal(t, f.locker.acquired, f.locker.released)
}

func TestSubmitTurn_FailedTurnRefreshesCachedHistory(t *testing.T) {
	cases := []struct {
		name    string
		prepare func(f *turnFixture)
	}{
		{"generation failure", func(f *turnFixture) { f.gen.err = ai.ErrUpstreamStatus }},
		{"assistant persist failure", func(f *turnFixture) {
			f.chats.appendErr = func(n int) error {
				if n == 2 {
					return errBoom
				}
				return nil
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newTurnFixture(t)
			chats := NewChatService(f.chats, f.cache, zerolog.Nop())

			before, err := chats.History(context.Background(), ownerID, f.chatID, 0)
			require.NoError(t, err)
			require.Empty(t, before)
			require.Contains(t, f.cache.entries, f.chatID)

			tc.prepare(f)
			_, _ = f.svc.SubmitTurn(context.Background(), TurnInput{UserID: ownerID, ChatID: f.chatID, Prompt: "Hello"})

			after, err := chats.History(context.Background(), ownerID, f.chatID, 0)
			require.NoError(t, err)
			require.Len(t, after, 1)
			assert.Equal(t, "Hello", after[0].Content)
		})
	}
}

func TestSubmitTurn_ImageURLMustBeAnUpload(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want error
	}{
		{"metadata endpoint", "http://169.254.169.254/latest/meta-data/iam", ErrImageRejected},
		{"internal host", "http://redis.internal:6379/", ErrImageRejected},
		{"lookalike host", "https://cdn.test.evil.example/x.png", ErrImageRejected},
		{"over long", "https://cdn.test/" + strings.Repeat("a", model.MaxImageURLLength), ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newTurnFixture(t)

			_, err := f.svc.SubmitTurn(context.Background(), TurnInput{
				UserID:   ownerID,
				ChatID:   f.chatID,
				Prompt:   "describe",
				ImageURL: tc.url,
			})
			require.ErrorIs(t, err, tc.want)

			var turnErr *TurnError
			assert.False(t, errors.As(err, &turnErr))
			assert.Zero(t, f.chats.appends)
			assert.Empty(t, f.gen.calls)
		})
	}
}

func TestSubmitTurn_ImageURLWithoutUploaderIsRejected(t *testing.T) {
	f := newTurnFixture(t)
	f.svc.uploader = nil

	_, err := f.svc.SubmitTurn(context.Background(), TurnInput{
		UserID:   ownerID,
		ChatID:   f.chatID,
		Prompt:   "describe",
		ImageURL: "https://cdn.test/earlier.png",
	})
	require.ErrorIs(t, err, ErrImageRejected)
	assert.Empty(t, f.gen.calls)
}

func TestSubmitTurn_DisabledStorageSendsImageInline(t *testing.T) {
	f := newTurnFixture(t)
	f.uploader.err = storage.ErrStorageDisabled

	_, err := f.svc.SubmitTurn(context.Background(), TurnInput{
		UserID: ownerID,
		ChatID: f.chatID,
		Prompt: "look",
		Image:  &ImageInput{Data: []byte("png"), ContentType: "image/png", Filename: "a.png"},
	})
	require.NoError(t, err)

	vision, ok := f.gen.calls[0].(ai.Vision)
	require.True(t, ok)
	assert.Equal(t, []byte("png"), vision.Image.Data)
	assert.Empty(t, vision.Image.URL)
	assert.Empty(t, f.chats.messages(f.chatID)[0].ImageURL)
}

func TestSubmitTurn_AssistantPersistFailureStillReturnsReply(t *testing.T) {
	f := newTurnFixture(t)
	f.gen.reply = "generated anyway"
	f.chats.appendErr = func(n int) error {
		if n == 2 {
			return errBoom
		}
		return nil
	}

	res, err := f.svc.SubmitTurn(context.Background(), TurnInput{UserID: ownerID, ChatID: f.chatID, Prompt: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "generated anyway", res.Message.Content)
	assert.False(t, res.Persisted)
	assert.True(t, res.Durable)
	assert.Len(t, f.chats.messages(f.chatID), 1)
	assert.Empty(t, f.publisher.events)
}

func TestSubmitTurn_UserPersistFailure(t *testing.T) {
	f := newTurnFixture(t)
	f.chats.appendErr = func(int) error { return errBoom }

	_, err := f.svc.SubmitTurn(context.Background(), TurnInput{UserID: ownerID, ChatID: f.chatID, Prompt: "Hello"})
	require.ErrorIs(t, err, ErrPersistence)
	assert.Empty(t, f.gen.calls)
}

func TestSubmitTurn_UploadFailureIsStorageError(t *testing.T) {
	f := newTurnFixture(t)
	f.uploader.err = errors.New("bucket unavailable")

	_, err := f.svc.SubmitTurn(context.Background(), TurnInput{
		UserID: ownerID,
		ChatID: f.chatID,
		Prompt: "look",
		Image:  &ImageInput{Data: []byte("png"), ContentType: "image/png", Filename: "a.png"},
	})
	require.ErrorIs(t, err, ErrStorage)
	assert.NotErrorIs(t, err, ErrGeneration)

	var turnErr *TurnError
	assert.False(t, errors.As(err, &turnErr))
	assert.Empty(t, f.chats.messages(f.chatID))
	assert.Empty(t, f.gen.calls)
}

func TestSubmitTurn_OversizedImageIsNotStorageError(t *testing.T) {
	f := newTurnFixture(t)
	f.uploader.err = storage.ErrFileTooLarge

	_, err := f.svc.SubmitTurn(context.Background(), TurnInput{
		UserID: ownerID,
		ChatID: f.chatID,
		Prompt: "look",
		Image:  &ImageInput{Data: []byte("png"), Filename: "a.png"},
	})
	require.ErrorIs(t, err, storage.ErrFileTooLarge)
	assert.NotErrorIs(t, err, ErrStorage)
}

func TestSubmitTurn_OwnerChatIsEphemeral(t *testing.T) {
	f := newTurnFixture(t)

	res, err := f.svc.SubmitTurn(context.Background(), TurnInput{UserID: ownerID, ChatID: model.OfflineChatID, Prompt: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, model.OfflineChatID, res.ChatID)
	assert.False(t, res.Durable)
	assert.False(t, res.Persisted)
	assert.Equal(t, "reply to text", res.Message.Content)

	assert.Zero(t, f.chats.appends)
	assert.Zero(t, f.locker.acquired)
	assert.Empty(t, f.publisher.events)
	assert.Zero(t, f.cache.deletes)
}

func TestSubmitTurn_OwnerChatGenerationFailureSavesNothing(t *testing.T) {
	f := newTurnFixture(t)
	f.gen.err = ai.ErrUnparseable

	_, err := f.svc.SubmitTurn(context.Background(), TurnInput{UserID: ownerID, ChatID: model.OfflineChatID, Prompt: "Hello"})
	var turnErr *TurnError
	require.True(t, errors.As(err, &turnErr))
	assert.False(t, turnErr.UserMessageSaved)
}

func TestSubmitTurn_DurableSideEffects(t *testing.T) {
	f := newTurnFixture(t)
	f.cache.entries[f.chatID] = []model.Message{{Content: "stale"}}

	_, err := f.svc.SubmitTurn(context.Background(), TurnInput{UserID: ownerID, ChatID: f.chatID, Prompt: "Hello"})
	require.NoError(t, err)

	assert.Equal(t, 1, f.locker.acquired)
	assert.Equal(t, 1, f.locker.released)
	_, cached := f.cache.entries[f.chatID]
	assert.False(t, cached)

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, f.chatID, event.ChatID)
	assert.Equal(t, ownerID, event.UserID)
	assert.Equal(t, "Hello", event.Prompt)
	assert.Equal(t, ai.KindText, event.Modality)
}

func TestSubmitTurn_PublishFailureDoesNotFailTurn(t *testing.T) {
	f := newTurnFixture(t)
	f.publisher.err = errBoom

	res, err := f.svc.SubmitTurn(context.Background(), TurnInput{UserID: ownerID, ChatID: f.chatID, Prompt: "Hello"})
	require.NoError(t, err)
	assert.True(t, res.Persisted)
}

func TestSubmitTurn_LockFailure(t *testing.T) {
	f := newTurnFixture(t)
	f.locker.err = context.DeadlineExceeded

	_, err := f.svc.SubmitTurn(context.Background(), TurnInput{UserID: ownerID, ChatID: f.chatID, Prompt: "Hello"})
	require.Error(t, err)
	assert.Zero(t, f.chats.appends)
}

func TestSubmitTurn_DuplicateSubmissionsAreIndependent(t *testing.T) {
	f := newTurnFixture(t)
	for i := 0; i < 3; i++ {
		_, err := f.svc.SubmitTurn(context.Background(), TurnInput{UserID: ownerID, ChatID: f.chatID, Prompt: "same"})
		require.NoError(t, err)
	}
	msgs := f.chats.messages(f.chatID)
	require.Len(t, msgs, 6)
	for i := 1; i < len(msgs); i++ {
		assert.Equal(t, msgs[i-1].Seq+1, msgs[i].Seq)
	}
}
