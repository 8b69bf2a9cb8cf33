package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"dahdouh-ai/internal/metrics"
	"dahdouh-ai/internal/model"
	"dahdouh-ai/internal/platform/rabbitmq"
)

const titleRunes = 30

type ChatTitler interface {
	RenameIfDefault(ctx context.Context, chatID, name string) (bool, error)
}

type HistoryInvalidator interface {
	DeleteHistory(ctx context.Context, chatID string) error
}

// ChatTitleWorker names chats after their first prompt. Chats the user already
// renamed are left alone.
type ChatTitleWorker struct {
	conn      *amqp.Connection
	chats     ChatTitler
	cache     HistoryInvalidator
	queueName string
	log       zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewChatTitleWorker(conn *amqp.Connection, chats ChatTitler, cache HistoryInvalidator, queueName string, log zerolog.Logger) *ChatTitleWorker {
	return &ChatTitleWorker{
		conn:      conn,
		chats:     chats,
		cache:     cache,
		queueName: queueName,
		log:       log.With().Str("component", "chat_title_worker").Logger(),
	}
}

func (w *ChatTitleWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, deliveries, err := rabbitmq.Consume(w.conn, w.queueName)
	if err != nil {
		return err
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.log.Warn().Msg("delivery channel closed")
					return
				}
				if err := w.Handle(workerCtx, d.Body); err != nil {
					w.log.Error().Err(err).Msg("handle turn event failed")
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.log.Info().Str("queue", w.queueName).Msg("chat title worker started")
	return nil
}

// Handle applies one TurnEvent payload.
func (w *ChatTitleWorker) Handle(ctx context.Context, body []byte) error {
	var event model.TurnEvent
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.TitleEventsTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("decode turn event failed: %w", err)
	}

	title := TitleFromPrompt(event.Prompt)
	if event.ChatID == "" || event.ChatID == model.OfflineChatID || title == "" {
		metrics.TitleEventsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	renamed, err := w.chats.RenameIfDefault(ctx, event.ChatID, title)
	if err != nil {
		metrics.TitleEventsTotal.WithLabelValues("error").Inc()
		return err
	}
	if !renamed {
		metrics.TitleEventsTotal.WithLabelValues("unchanged").Inc()
		return nil
	}

	if w.cache != nil {
		if err := w.cache.DeleteHistory(ctx, event.ChatID); err != nil {
			w.log.Warn().Err(err).Str("chat_id", event.ChatID).Msg("invalidate history cache failed")
		}
	}
	metrics.TitleEventsTotal.WithLabelValues("renamed").Inc()
	w.log.Debug().Str("chat_id", event.ChatID).Str("title", title).Msg("chat titled")
	return nil
}

func (w *ChatTitleWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// TitleFromPrompt collapses whitespace and keeps the first 30 runes.
func TitleFromPrompt(prompt string) string {
	fields := strings.FieldsFunc(prompt, unicode.IsSpace)
	runes := []rune(strings.Join(fields, " "))
	if len(runes) > titleRunes {
		runes = runes[:titleRunes]
	}
	return strings.TrimSpace(string(runes))
}
