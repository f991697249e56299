package notify

import (
	"context"
	"sync"

	"github.com/spiffcs/repopulse/internal/log"
)

// Sink delivers a rendered message to a chat.
type Sink interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Ensure sinks implement Sink.
var (
	_ Sink = (*LogSink)(nil)
	_ Sink = (*MemorySink)(nil)
	_ Sink = (*TelegramSink)(nil)
)

// LogSink writes messages to the log instead of a chat. Used when no bot
// token is configured.
type LogSink struct{}

func (LogSink) Send(ctx context.Context, chatID int64, text string) error {
	log.InfoContext(ctx, "notification", "chat_id", chatID, "text", text)
	return nil
}

// Message is a delivered notification.
type Message struct {
	ChatID int64
	Text   string
}

// MemorySink records messages in memory. Err, when set, is returned from
// every Send and nothing is recorded.
type MemorySink struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

func (s *MemorySink) Send(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.messages = append(s.messages, Message{ChatID: chatID, Text: text})
	return nil
}

// Messages returns a copy of the recorded messages.
func (s *MemorySink) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}
