package notify

import (
	"context"
	"errors"
	"fmt"

	"ProTrdx/internal/domain/repository"
	"ProTrdx/pkg/config"
	xhttp "ProTrdx/pkg/http"
)

// Multi fans a notification out to every configured channel.
type Multi struct {
	channels []repository.Notifier
}

func NewMulti(channels ...repository.Notifier) *Multi {
	return &Multi{channels: channels}
}

// FromConfig builds the channels that have credentials. An empty Multi is valid.
func FromConfig(cfg *config.Config) *Multi {
	client := xhttp.NewClient(xhttp.WithTimeout(cfg.Notify.Timeout), xhttp.WithHeader("User-Agent", "protrdx-notify"))
	var channels []repository.Notifier
	tg := cfg.Notify.Telegram
	if tg.BotToken != "" && tg.ChatID != "" {
		channels = append(channels, NewTelegram(client, tg.APIURL, tg.BotToken, tg.ChatID))
	}
	if cfg.Notify.Slack.WebhookURL != "" {
		channels = append(channels, NewSlack(client, cfg.Notify.Slack.WebhookURL))
	}
	return NewMulti(channels...)
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Enabled() bool { return len(m.channels) > 0 }

// Notify tries every channel and joins the failures.
func (m *Multi) Notify(ctx context.Context, caption, chartPath string) error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Notify(ctx, caption, chartPath); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}
