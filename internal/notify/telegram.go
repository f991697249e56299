package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sony/gobreaker"

	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/metrics"
)

const (
	breakerName        = "telegram"
	breakerTripFails   = 5
	breakerOpenTimeout = 30 * time.Second
	telegramTimeout    = 15 * time.Second
)

// TelegramSink sends messages through the Telegram Bot API behind a
// circuit breaker, so an unreachable API fails fast for the rest of a cycle.
type TelegramSink struct {
	bot *tgbotapi.BotAPI
	cb  *gobreaker.CircuitBreaker
}

// NewTelegramSink connects to the Bot API. endpoint may be empty for the
// public API; it takes the tgbotapi.APIEndpoint form ("…/bot%s/%s").
func NewTelegramSink(token, endpoint string, client *http.Client) (*TelegramSink, error) {
	if token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: telegramTimeout}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	log.Debug("telegram bot authorized", "username", bot.Self.UserName)

	return &TelegramSink{bot: bot, cb: newBreaker()}, nil
}

func newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripFails
		},
		// A rejected message (blocked bot, unknown chat) says nothing about
		// the API's health.
		IsSuccessful: func(err error) bool {
			var apiErr *tgbotapi.Error
			if errors.As(err, &apiErr) {
				return apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Send posts text to chatID with Markdown formatting.
func (s *TelegramSink) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	_, err := s.cb.Execute(func() (interface{}, error) {
		return s.bot.Send(msg)
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// State returns the circuit breaker state.
func (s *TelegramSink) State() gobreaker.State {
	return s.cb.State()
}
