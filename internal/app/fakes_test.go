package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"dahdouh-ai/internal/ai"
	"dahdouh-ai/internal/model"
	"dahdouh-ai/internal/storage"
)

type memoryChats struct {
	mu        sync.Mutex
	chats     map[string]*model.Chat
	appendErr func(n int) error
	appends   int
}

func newMemoryChats(chats ...model.Chat) *memoryChats {
	m := &memoryChats{chats: map[string]*model.Chat{}}
	for i := range chats {
		c := chats[i]
		m.chats[c.ID] = &c
	}
	return m
}

func (m *memoryChats) Create(_ context.Context, chat *model.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *chat
	m.chats[c.ID] = &c
	return nil
}

func (m *memoryChats) owned(userID uint, chatID string) (*model.Chat, error) {
	c, ok := m.chats[chatID]
	if !ok || c.UserID != userID {
		return nil, ErrChatNotFound
	}
	return c, nil
}

func (m *memoryChats) Get(_ context.Context, userID uint, chatID string) (*model.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.owned(userID, chatID)
	if err != nil {
		return nil, err
	}
	out := *c
	out.Messages = nil
	return &out, nil
}

func (m *memoryChats) List(_ context.Context, userID uint) ([]model.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Chat
	for _, c := range m.chats {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memoryChats) Append(_ context.Context, userID uint, chatID string, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	if m.appendErr != nil {
		if err := m.appendErr(m.appends); err != nil {
			return err
		}
	}
	c, err := m.owned(userID, chatID)
	if err != nil {
		return err
	}
	msg.ChatID = chatID
	msg.Seq = len(c.Messages) + 1
	c.Messages = append(c.Messages, *msg)
	c.UpdatedAt = msg.CreatedAt
	return nil
}

func (m *memoryChats) Rename(_ context.Context, userID uint, chatID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.owned(userID, chatID)
	if err != nil {
		return err
	}
	c.Name = name
	return nil
}

func (m *memoryChats) Delete(_ context.Context, userID uint, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.owned(userID, chatID); err != nil {
		return err
	}
	delete(m.chats, chatID)
	return nil
}

func (m *memoryChats) Messages(_ context.Context, chatID string, limit int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[chatID]
	if !ok {
		return nil, nil
	}
	msgs := append([]model.Message(nil), c.Messages...)
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (m *memoryChats) messages(chatID string) []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.chats[chatID]; ok {
		return append([]model.Message(nil), c.Messages...)
	}
	return nil
}

type recordingGenerator struct {
	mu    sync.Mutex
	calls []ai.Modality
	reply string
	err   error
}

func (g *recordingGenerator) Generate(_ context.Context, m ai.Modality) (*ai.Generation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, m)
	if g.err != nil {
		return nil, g.err
	}
	reply := g.reply
	if reply == "" {
		reply = "reply to " + m.Kind()
	}
	return &ai.Generation{Text: reply, Provider: "fake:" + m.Kind(), Modality: m.Kind()}, nil
}

type fakeUploader struct {
	err      error
	calls    int
	resolves int
}

func (u *fakeUploader) Store(_ context.Context, data []byte, contentType, name string) (*storage.Asset, error) {
	u.calls++
	if u.err != nil {
		return nil, u.err
	}
	key := "01J0000000000000000000000-" + name
	return &storage.Asset{Key: key, URL: "https://cdn.test/" + key, ContentType: contentType, Size: len(data)}, nil
}

// Resolve accepts only URLs under https://cdn.test/, like a bucket with a public base URL.
func (u *fakeUploader) Resolve(_ context.Context, rawURL string) (*storage.Asset, []byte, error) {
	u.resolves++
	key, ok := strings.CutPrefix(rawURL, "https://cdn.test/")
	if !ok || key == "" {
		return nil, nil, storage.ErrForeignObject
	}
	return &storage.Asset{Key: key, URL: rawURL}, nil, nil
}

type countingLocker struct {
	mu       sync.Mutex
	locked   map[string]bool
	acquired int
	released int
	err      error
}

func (l *countingLocker) Lock(_ context.Context, chatID string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked == nil {
		l.locked = map[string]bool{}
	}
	l.locked[chatID] = true
	l.acquired++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.locked[chatID] = false
		l.released++
	}, nil
}

type capturePublisher struct {
	events []model.TurnEvent
	err    error
}

func (p *capturePublisher) PublishTurn(_ context.Context, event model.TurnEvent) error {
	p.events = append(p.events, event)
	return p.err
}

type mapCache struct {
	entries map[string][]model.Message
	deletes int
	sets    int
}

func newMapCache() *mapCache { return &mapCache{entries: map[string][]model.Message{}} }

func (c *mapCache) GetHistory(_ context.Context, chatID string) ([]model.Message, bool, error) {
	msgs, ok := c.entries[chatID]
	return msgs, ok, nil
}

func (c *mapCache) SetHistory(_ context.Context, chatID string, messages []model.Message) error {
	c.sets++
	c.entries[chatID] = messages
	return nil
}

func (c *mapCache) DeleteHistory(_ context.Context, chatID string) error {
	c.deletes++
	delete(c.entries, chatID)
	return nil
}

var errBoom = errors.New("boom")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
