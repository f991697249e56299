package server

import (
	"context"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/spiffcs/repopulse/internal/filter"
	"github.com/spiffcs/repopulse/internal/ghclient"
	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/metrics"
	"github.com/spiffcs/repopulse/internal/model"
	"github.com/spiffcs/repopulse/internal/notify"
	"github.com/spiffcs/repopulse/internal/store"
)

// WebhookStore is the part of the store the webhook uses.
type WebhookStore interface {
	store.EventStore
	ListSubscriptionsByRepo(ctx context.Context, fullName string) ([]model.Subscription, error)
}

// Webhook receives GitHub issue and pull request events and notifies
// matching subscriptions right away. It does not touch watermarks, so the
// poller may announce the same item again.
type Webhook struct {
	secret        []byte
	store         WebhookStore
	sink          notify.Sink
	clock         clockwork.Clock
	maxTitleWidth int
}

// NewWebhook creates a Webhook validating deliveries with secret.
func NewWebhook(secret string, st WebhookStore, sink notify.Sink, clock clockwork.Clock, maxTitleWidth int) *Webhook {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Webhook{
		secret:        []byte(secret),
		store:         st,
		sink:          sink,
		clock:         clock,
		maxTitleWidth: maxTitleWidth,
	}
}

type webhookResponse struct {
	Status    string `json:"status"`
	Delivered int    `json:"delivered,omitempty"`
}

// Handle processes one delivery.
func (w *Webhook) Handle(c echo.Context) error {
	r := c.Request()
	ctx := r.Context()
	event := gh.WebHookType(r)

	payload, err := gh.ValidatePayload(r, w.secret)
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues(event, "invalid_signature").Inc()
		log.WarnContext(ctx, "rejected webhook delivery", "event", event, "error", err)
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
	}

	deliveryID := gh.DeliveryID(r)
	if deliveryID == "" {
		metrics.WebhookDeliveriesTotal.WithLabelValues(event, "invalid").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing delivery id"})
	}

	seen, err := w.store.IsEventProcessed(ctx, deliveryID)
	if err != nil {
		log.ErrorContext(ctx, "failed to check delivery", "delivery_id", deliveryID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	if seen {
		metrics.WebhookDeliveriesTotal.WithLabelValues(event, "duplicate").Inc()
		return c.JSON(http.StatusOK, webhookResponse{Status: "duplicate"})
	}

	parsed, err := gh.ParseWebHook(event, payload)
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues(event, "invalid").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unparseable payload"})
	}

	item, ok := openedItem(parsed)
	delivered := 0
	if ok {
		delivered, err = w.dispatch(ctx, item)
		if err != nil {
			log.ErrorContext(ctx, "failed to dispatch webhook item", "delivery_id", deliveryID, "item", item.Key(), "error", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
	}

	if err := w.store.MarkEventProcessed(ctx, deliveryID, w.clock.Now()); err != nil {
		log.ErrorContext(ctx, "failed to record delivery", "delivery_id", deliveryID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	result := "ignored"
	if ok {
		result = "processed"
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues(event, result).Inc()
	log.DebugContext(ctx, "webhook delivery handled", "delivery_id", deliveryID, "event", event, "result", result, "delivered", delivered)
	return c.JSON(http.StatusOK, webhookResponse{Status: result, Delivered: delivered})
}

// openedItem extracts the item of an "opened" issues or pull_request event.
func openedItem(event any) (model.Item, bool) {
	switch e := event.(type) {
	case *gh.IssuesEvent:
		if e.GetAction() != "opened" || e.Issue == nil || e.Issue.IsPullRequest() {
			return model.Item{}, false
		}
		return ghclient.IssueItem(strings.ToLower(e.GetRepo().GetFullName()), e.Issue), true
	case *gh.PullRequestEvent:
		if e.GetAction() != "opened" || e.PullRequest == nil {
			return model.Item{}, false
		}
		return ghclient.PullRequestItem(strings.ToLower(e.GetRepo().GetFullName()), e.PullRequest), true
	default:
		return model.Item{}, false
	}
}

// dispatch notifies every subscription of the item's repository whose filter
// accepts it. Send failures are logged and skipped.
func (w *Webhook) dispatch(ctx context.Context, item model.Item) (int, error) {
	subs, err := w.store.ListSubscriptionsByRepo(ctx, item.Repository)
	if err != nil {
		return 0, err
	}

	now := w.clock.Now()
	delivered := 0
	for _, sub := range subs {
		if !filter.Matches(item, sub.Filter) {
			metrics.NotificationsTotal.WithLabelValues("filtered").Inc()
			continue
		}
		if err := w.sink.Send(ctx, sub.ChatID, notify.Format(item, now, w.maxTitleWidth)); err != nil {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			log.WarnContext(ctx, "failed to send notification", "chat_id", sub.ChatID, "item", item.Key(), "error", err)
			continue
		}
		delivered++
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	}
	return delivered, nil
}
